// Package render invokes the external render and compression
// collaborators. Nothing in here touches job state; callers translate
// results into lifecycle transitions.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// maxDiagnosticBytes bounds how much collaborator output is retained as
// an error detail.
const maxDiagnosticBytes = 500

// qualityPresets maps the public quality tier to the renderer's preset
// string.
var qualityPresets = map[string]string{
	"low":    "low_quality",
	"medium": "medium_quality",
	"high":   "high_quality",
	"ultra":  "fourk_quality",
}

// Preset resolves a quality tier to the renderer preset, falling back to
// medium for unknown tiers.
func Preset(quality string) string {
	if p, ok := qualityPresets[quality]; ok {
		return p
	}
	return qualityPresets["medium"]
}

// Request describes one render invocation.
type Request struct {
	ScenePath string
	OutputDir string
	Format    string
	Quality   string
}

// Result is a successful render outcome.
type Result struct {
	ArtifactPath string
	SizeBytes    int64
	Duration     time.Duration
}

// Engine turns a scene script into a video artifact.
type Engine interface {
	Render(ctx context.Context, req Request) (Result, error)
}

// CLIEngine shells out to the manim binary. The collaborator contract:
// exit zero and exactly one *.{format} artifact in the output directory;
// anything else is a failure with diagnostics drawn from stderr.
type CLIEngine struct {
	Bin string
}

func NewCLIEngine(bin string) *CLIEngine {
	if bin == "" {
		bin = "manim"
	}
	return &CLIEngine{Bin: bin}
}

func (e *CLIEngine) Render(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Bin,
		req.ScenePath,
		"--output_dir", req.OutputDir,
		"--format", req.Format,
		"--quality", Preset(req.Quality),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		// Timeout or cancellation; the caller distinguishes the two.
		return Result{}, ctx.Err()
	}
	if runErr != nil {
		return Result{}, fmt.Errorf("%s", Diagnostic(stderr.String(), stdout.String()))
	}

	artifact, size, err := findArtifact(req.OutputDir, req.Format)
	if err != nil {
		return Result{}, err
	}

	return Result{
		ArtifactPath: artifact,
		SizeBytes:    size,
		Duration:     time.Since(start),
	}, nil
}

// findArtifact locates the single rendered artifact for the format.
func findArtifact(dir, format string) (string, int64, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*."+format))
	if err != nil {
		return "", 0, err
	}
	if len(matches) == 0 {
		return "", 0, fmt.Errorf("no %s artifact produced", format)
	}
	st, err := os.Stat(matches[0])
	if err != nil {
		return "", 0, fmt.Errorf("artifact not readable: %w", err)
	}
	return matches[0], st.Size(), nil
}

// Diagnostic picks the most useful collaborator output and truncates it
// so failed jobs never retain unbounded error text.
func Diagnostic(stderr, stdout string) string {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = strings.TrimSpace(stdout)
	}
	if msg == "" {
		msg = "unknown render error"
	}
	if len(msg) > maxDiagnosticBytes {
		msg = msg[:maxDiagnosticBytes]
	}
	return msg
}
