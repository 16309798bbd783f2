// Package fileutil provides the atomic write used for catalogue and asset files.
package fileutil
