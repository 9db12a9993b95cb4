package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckFFmpeg reports the FFmpeg binary the encoder will execute.
//
// Bundled ab-av1 installs ship ffmpeg next to the ab-av1 executable, so the
// check prefers a sibling binary before falling back to PATH resolution. The
// status output then names the binary the encode will actually run.
func CheckFFmpeg(abAv1Command string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Invoked by ab-av1 for sampling and encoding",
	}

	abAv1 := strings.TrimSpace(abAv1Command)
	if abAv1 != "" {
		if resolved, err := exec.LookPath(abAv1); err == nil {
			if candidate, ok := siblingBinary(resolved, "ffmpeg"); ok {
				if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
					result.Command = candidate
					result.Available = true
					return result
				}
			}
		}
	}

	ffmpegName := "ffmpeg"
	if ffmpegPath, err := exec.LookPath(ffmpegName); err == nil {
		result.Command = ffmpegPath
		result.Available = true
		return result
	}

	result.Command = ffmpegName
	result.Detail = fmt.Sprintf("binary %q not found", ffmpegName)
	return result
}

func siblingBinary(resolvedPath, name string) (string, bool) {
	if resolvedPath == "" {
		return "", false
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(resolvedPath), name), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
