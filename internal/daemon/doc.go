// Package daemon coordinates the long-running memebox process.
//
// It holds the flock-based single-instance lock, recovers state left behind
// by a previous run (in-flight ingestions and scratch files), and runs the
// event dispatcher, the asset HTTP server and the catalogue watcher under one
// errgroup so a fatal failure in any of them stops the others.
//
// Keep orchestration logic here: request handling lives in package bot and
// ingestion in package ingest.
package daemon
