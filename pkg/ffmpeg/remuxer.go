package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// maxStderr bounds how much ffmpeg diagnostic output is kept for error messages.
const maxStderr = 2048

// Remuxer repackages media into another container with stream copy.
type Remuxer struct {
	ffmpegPath string
}

// NewRemuxer resolves ffmpegPath (a name on PATH or a file path).
func NewRemuxer(ffmpegPath string) (*Remuxer, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	resolved, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	return &Remuxer{ffmpegPath: resolved}, nil
}

// OutputPath returns the path Remux writes for input and container.
func OutputPath(input, container string) string {
	container = strings.TrimPrefix(strings.ToLower(container), ".")
	base := strings.TrimSuffix(input, filepath.Ext(input))
	out := base + "." + container
	if out == input {
		out = base + ".remux." + container
	}
	return out
}

// Args returns the ffmpeg arguments for a stream copy of input into output.
func Args(input, output, container string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", input,
		"-c", "copy",
	}
	switch strings.ToLower(strings.TrimPrefix(container, ".")) {
	case "mp4", "mov", "m4a":
		// ADTS AAC from transport streams needs converting for ISO BMFF containers.
		args = append(args, "-bsf:a", "aac_adtstoasc")
	}
	return append(args, output)
}

// Remux stream-copies input into container and returns the new file's path.
// No re-encoding is done. A nonzero exit is returned as an error carrying the
// tail of ffmpeg's stderr.
func (r *Remuxer) Remux(ctx context.Context, input, container string) (string, error) {
	if container == "" {
		return "", fmt.Errorf("remux: container is required")
	}
	if _, err := os.Stat(input); err != nil {
		return "", fmt.Errorf("stat input: %w", err)
	}

	output := OutputPath(input, container)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.ffmpegPath, Args(input, output, container)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(output)
		if msg := tail(stderr.String()); msg != "" {
			return "", fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return "", fmt.Errorf("ffmpeg: %w", err)
	}

	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	return output, nil
}

// Version returns the first line of `ffmpeg -version`.
func (r *Remuxer) Version(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, r.ffmpegPath, "-version").Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(output), "\n")
	if line = strings.TrimSpace(line); line != "" {
		return line, nil
	}
	return "unknown", nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[len(s)-maxStderr:]
	}
	return s
}
