package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveFFmpegPath returns the ffmpeg executable memebox will run.
//
// A configured value containing a path separator must point at an executable
// file. A bare name is resolved from PATH. An empty value means "ffmpeg".
func ResolveFFmpegPath(configured string) (string, error) {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = "ffmpeg"
	}
	if strings.ContainsRune(name, filepath.Separator) {
		info, err := os.Stat(name)
		if err != nil {
			return "", fmt.Errorf("ffmpeg binary %q: %w", name, err)
		}
		if !isExecutable(info) {
			return "", fmt.Errorf("ffmpeg binary %q is not executable", name)
		}
		return name, nil
	}
	resolved, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("binary %q not found: %w", name, err)
	}
	return resolved, nil
}

// CheckFFmpeg reports whether the configured ffmpeg binary is usable.
func CheckFFmpeg(configured string) Status {
	result := Status{
		Name:        "FFmpeg",
		Command:     strings.TrimSpace(configured),
		Description: "Required for voice transcoding",
	}
	if result.Command == "" {
		result.Command = "ffmpeg"
	}
	resolved, err := ResolveFFmpegPath(configured)
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	result.Command = resolved
	result.Available = true
	return result
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
