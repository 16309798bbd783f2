package preflight

import (
	"context"

	"memebox/internal/config"
	"memebox/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the local readiness checks for the given config: the asset
// and state directories must be writable and ffmpeg must resolve.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Asset directory", cfg.Paths.AssetsDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}

	ffmpeg := deps.CheckFFmpeg(cfg.FFmpegBinary())
	detail := ffmpeg.Command
	if !ffmpeg.Available {
		detail = ffmpeg.Detail
	}
	results = append(results, Result{Name: ffmpeg.Name, Passed: ffmpeg.Available, Detail: detail})

	return results
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
