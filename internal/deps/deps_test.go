package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestResolveFFmpegPathExplicitFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs not supported on windows")
	}
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, "ffmpeg")
	if err := os.WriteFile(ffmpegPath, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}

	got, err := ResolveFFmpegPath(ffmpegPath)
	if err != nil {
		t.Fatalf("ResolveFFmpegPath returned error: %v", err)
	}
	if got != ffmpegPath {
		t.Fatalf("expected %q, got %q", ffmpegPath, got)
	}
}

func TestResolveFFmpegPathRejectsNonExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on windows")
	}
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, "ffmpeg")
	if err := os.WriteFile(ffmpegPath, []byte("not a binary"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := ResolveFFmpegPath(ffmpegPath); err == nil {
		t.Fatal("expected error for non-executable file")
	}
}

func TestCheckFFmpegPathLookup(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs not supported on windows")
	}
	binDir := t.TempDir()
	ffmpegPath := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(ffmpegPath, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	status := CheckFFmpeg("")
	if !status.Available {
		t.Fatalf("expected ffmpeg on PATH to be available, got detail %q", status.Detail)
	}
	if status.Command != ffmpegPath {
		t.Fatalf("expected command %q, got %q", ffmpegPath, status.Command)
	}

	t.Setenv("PATH", t.TempDir())
	status = CheckFFmpeg("ffmpeg")
	if status.Available {
		t.Fatal("expected ffmpeg to be unavailable with empty PATH")
	}
	if status.Detail == "" {
		t.Fatal("expected detail for missing ffmpeg")
	}
}
