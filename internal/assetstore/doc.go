// Package assetstore stores voice clips as bare-named files in one directory.
//
// Assets are addressed by catalogue.AssetRef, never by path; Path exists only
// for collaborators (ffmpeg, the HTTP server) that must hand a file name to
// the operating system. Writes are atomic. Ingestion scratch files live in the
// same directory under a reserved prefix so the final rename never crosses a
// filesystem, and Sweep clears any left by a crash.
package assetstore
