// Package assetserver exposes the asset store over HTTP so inline voice
// results can reference public URLs.
//
// Only bare file names directly inside the store are served; anything that
// looks like a path, a hidden file or an in-flight ingestion yields 404.
package assetserver
