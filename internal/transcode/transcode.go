package transcode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"memebox/internal/logging"
)

// ErrTranscodeFailed reports that ffmpeg could not produce the voice file.
var ErrTranscodeFailed = errors.New("transcode failed")

var commandContext = exec.CommandContext

const (
	defaultBitrate    = "32k"
	defaultSampleRate = 48000
	defaultChannels   = 1
	defaultTimeout    = 2 * time.Minute
	partialSuffix     = ".partial"
)

// Options configures a Transcoder. Zero values select the platform voice
// defaults: Opus at 32 kbit/s, 48 kHz, mono.
type Options struct {
	Binary      string
	Bitrate     string
	SampleRate  int
	Channels    int
	Timeout     time.Duration
	MaxParallel int
	Logger      *slog.Logger
}

// Transcoder converts arbitrary audio into Opus-in-Ogg voice messages by
// running ffmpeg. Concurrent invocations are bounded by MaxParallel.
type Transcoder struct {
	binary     string
	bitrate    string
	sampleRate int
	channels   int
	timeout    time.Duration
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// New constructs a Transcoder from opts.
func New(opts Options) *Transcoder {
	t := &Transcoder{
		binary:     strings.TrimSpace(opts.Binary),
		bitrate:    strings.TrimSpace(opts.Bitrate),
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
		timeout:    opts.Timeout,
		logger:     logging.NewComponentLogger(opts.Logger, "transcode"),
	}
	if t.binary == "" {
		t.binary = "ffmpeg"
	}
	if t.bitrate == "" {
		t.bitrate = defaultBitrate
	}
	if t.sampleRate <= 0 {
		t.sampleRate = defaultSampleRate
	}
	if t.channels <= 0 {
		t.channels = defaultChannels
	}
	if t.timeout <= 0 {
		t.timeout = defaultTimeout
	}
	parallel := opts.MaxParallel
	if parallel <= 0 {
		parallel = 1
	}
	t.sem = semaphore.NewWeighted(int64(parallel))
	return t
}

// Transcode converts input into an Ogg/Opus voice file at output. ffmpeg
// writes to a sibling partial file that is renamed into place on success and
// removed on failure, so output either holds a complete file or is untouched.
func (t *Transcoder) Transcode(ctx context.Context, input, output string) error {
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("%w: input %s: %w", ErrTranscodeFailed, input, err)
	}

	if err := t.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: waiting for transcode slot: %w", ErrTranscodeFailed, err)
	}
	defer t.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	partial := output + partialSuffix
	defer func() {
		if err := os.Remove(partial); err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn("failed to remove partial transcode output",
				logging.String("path", partial),
				logging.Error(err),
			)
		}
	}()

	started := time.Now()
	cmd := commandContext(runCtx, t.binary, t.args(input, partial)...) //nolint:gosec
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if runCtx.Err() != nil {
			return fmt.Errorf("%w: ffmpeg: %w", ErrTranscodeFailed, runCtx.Err())
		}
		return fmt.Errorf("%w: ffmpeg: %w: %s", ErrTranscodeFailed, err, detail)
	}

	info, err := os.Stat(partial)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: ffmpeg produced no output", ErrTranscodeFailed)
	}
	if err := os.Rename(partial, output); err != nil {
		return fmt.Errorf("%w: finalize output: %w", ErrTranscodeFailed, err)
	}

	t.logger.Debug("transcode complete",
		logging.String("output", output),
		logging.Int64("bytes", info.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (t *Transcoder) args(input, output string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-vn",
		"-c:a", "libopus",
		"-b:a", t.bitrate,
		"-ar", strconv.Itoa(t.sampleRate),
		"-ac", strconv.Itoa(t.channels),
		"-f", "ogg",
		output,
	}
}
