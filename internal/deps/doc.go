// Package deps resolves the ffmpeg executable used for transcoding and reports
// whether it is usable.
package deps
