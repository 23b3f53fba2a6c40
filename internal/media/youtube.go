package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glizzus/needsmorejpeg/internal/process"
)

var ErrInvalidTarget = errors.New("invalid youtube-dl target")

const searchPrefix = "ytsearch:"

// ValidateTarget accepts http(s) links and ytsearch queries. Anything that
// could be read as a youtube-dl flag is refused.
func ValidateTarget(target string) error {
	if strings.HasPrefix(target, "-") {
		return ErrInvalidTarget
	}
	if !strings.HasPrefix(target, "http") && !strings.HasPrefix(target, searchPrefix) {
		return ErrInvalidTarget
	}
	return nil
}

// SearchTarget turns a free-text query into a youtube-dl search target.
func SearchTarget(query string) string {
	return searchPrefix + " " + query
}

// YoutubeDL downloads the audio of a video as mp3.
type YoutubeDL struct {
	Path    string
	TempDir string
}

// Args builds the youtube-dl command line writing to output.
func (y *YoutubeDL) Args(target, output string) []string {
	return []string{
		target,
		"--no-playlist",
		"--no-continue",
		"-f", "bestaudio",
		"--extract-audio",
		"--audio-format", "mp3",
		"-o", output,
	}
}

// Download fetches target into a fresh temporary directory and returns the
// audio file and that directory. The caller owns the directory.
func (y *YoutubeDL) Download(ctx context.Context, target string) (file, dir string, err error) {
	if err := ValidateTarget(target); err != nil {
		return "", "", err
	}

	dir, err = os.MkdirTemp(y.TempDir, "needsmorejpeg-yt-")
	if err != nil {
		return "", "", fmt.Errorf("failed to create download directory: %w", err)
	}
	file = filepath.Join(dir, "audio.mp3")

	bin := y.Path
	if bin == "" {
		bin = "youtube-dl"
	}
	if _, err := process.Run(ctx, bin, y.Args(target, file), nil); err != nil {
		return "", "", errors.Join(err, os.RemoveAll(dir))
	}
	return file, dir, nil
}
