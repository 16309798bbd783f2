package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"memebox/internal/logging"
)

func stubCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		helperArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFMPEG_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	output := args[len(args)-1]

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "success":
		if err := os.WriteFile(output, []byte("OggS-fake-opus"), 0o644); err != nil {
			os.Exit(2)
		}
		os.Exit(0)
	case "failure":
		_ = os.WriteFile(output, []byte("half"), 0o644)
		fmt.Fprintln(os.Stderr, "Invalid data found when processing input")
		os.Exit(1)
	case "empty":
		os.Exit(0)
	case "hang":
		time.Sleep(30 * time.Second)
		os.Exit(0)
	}
	os.Exit(3)
}

func writeInput(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "upload.mp3")
	if err := os.WriteFile(input, []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}
	return input, filepath.Join(dir, "laugh_1700000000.ogg")
}

func TestTranscodeSuccess(t *testing.T) {
	stubCommand(t, "success")
	input, output := writeInput(t)

	tr := New(Options{Logger: logging.NewNop()})
	if err := tr.Transcode(context.Background(), input, output); err != nil {
		t.Fatalf("Transcode returned error: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if !strings.HasPrefix(string(data), "OggS") {
		t.Fatalf("unexpected output %q", data)
	}
	if _, err := os.Stat(output + partialSuffix); !os.IsNotExist(err) {
		t.Fatal("partial file should be renamed away")
	}
}

func TestTranscodeFailureRemovesPartial(t *testing.T) {
	stubCommand(t, "failure")
	input, output := writeInput(t)

	tr := New(Options{Logger: logging.NewNop()})
	err := tr.Transcode(context.Background(), input, output)
	if !errors.Is(err, ErrTranscodeFailed) {
		t.Fatalf("expected ErrTranscodeFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("expected ffmpeg output in error, got %v", err)
	}
	for _, path := range []string{output, output + partialSuffix} {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			t.Fatalf("expected %s to be absent", path)
		}
	}
}

func TestTranscodeEmptyOutputFails(t *testing.T) {
	stubCommand(t, "empty")
	input, output := writeInput(t)

	tr := New(Options{Logger: logging.NewNop()})
	if err := tr.Transcode(context.Background(), input, output); !errors.Is(err, ErrTranscodeFailed) {
		t.Fatalf("expected ErrTranscodeFailed, got %v", err)
	}
}

func TestTranscodeTimeout(t *testing.T) {
	stubCommand(t, "hang")
	input, output := writeInput(t)

	tr := New(Options{Timeout: 200 * time.Millisecond, Logger: logging.NewNop()})
	start := time.Now()
	err := tr.Transcode(context.Background(), input, output)
	if !errors.Is(err, ErrTranscodeFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline failure, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("timeout did not stop ffmpeg")
	}
}

func TestTranscodeMissingInput(t *testing.T) {
	tr := New(Options{Logger: logging.NewNop()})
	err := tr.Transcode(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"), filepath.Join(t.TempDir(), "out.ogg"))
	if !errors.Is(err, ErrTranscodeFailed) {
		t.Fatalf("expected ErrTranscodeFailed, got %v", err)
	}
}

func TestArgsMatchVoiceFormat(t *testing.T) {
	tr := New(Options{})
	got := strings.Join(tr.args("in.mp3", "out.ogg.partial"), " ")
	want := "-y -hide_banner -loglevel error -i in.mp3 -vn -c:a libopus -b:a 32k -ar 48000 -ac 1 -f ogg out.ogg.partial"
	if got != want {
		t.Fatalf("unexpected args:\n got %s\nwant %s", got, want)
	}
}
