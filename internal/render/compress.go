package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// compressTimeout bounds one compression run independently of the render
// timeout.
const compressTimeout = 120 * time.Second

// Compressor shrinks an oversized artifact. Implementations return the
// path of the artifact to keep; on any failure the caller keeps the
// original, compression is never fatal.
type Compressor interface {
	Compress(ctx context.Context, path string) (string, error)
}

// FFmpegCompressor re-encodes with libx264 at a fixed CRF.
type FFmpegCompressor struct {
	Bin string
}

func NewFFmpegCompressor(bin string) *FFmpegCompressor {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegCompressor{Bin: bin}
}

func (c *FFmpegCompressor) Compress(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, compressTimeout)
	defer cancel()

	out := compressedPath(path)
	cmd := exec.CommandContext(ctx, c.Bin,
		"-i", path,
		"-vcodec", "libx264",
		"-crf", "28",
		"-preset", "fast",
		"-y",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("ffmpeg: %s", Diagnostic(stderr.String(), ""))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("compressed artifact missing: %w", err)
	}

	// Keep only the compressed copy.
	_ = os.Remove(path)
	return out, nil
}

func compressedPath(path string) string {
	if i := strings.LastIndex(path, "."); i > 0 {
		return path[:i] + "_compressed" + path[i:]
	}
	return path + "_compressed"
}
