// renderctl is the one-shot companion to the manimd service: it renders
// a single scene file or cleans up job directories without going through
// the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"manimd/internal/config"
	"manimd/internal/notify"
	"manimd/internal/pkg/logger"
	"manimd/internal/render"
	"manimd/internal/retention"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(logger.Config{
		Level:       config.Env("LOG_LEVEL", "info"),
		Format:      config.Env("LOG_FORMAT", "json"),
		ServiceName: "renderctl",
	})

	app := &cli.Command{
		Name:  "renderctl",
		Usage: "one-shot render and cleanup operations",
		Commands: []*cli.Command{
			{
				Name:  "render",
				Usage: "render a scene file and print the result as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "job-id",
						Usage:    "job identifier",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "scene",
						Usage:    "path to the scene file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "output directory root",
						Value: config.DefaultJobsDir,
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "output format (mp4, webm)",
						Value: "mp4",
					},
					&cli.StringFlag{
						Name:  "quality",
						Usage: "quality tier (low, medium, high, ultra)",
						Value: "medium",
					},
					&cli.IntFlag{
						Name:  "timeout",
						Usage: "render timeout in seconds",
						Value: int(config.DefaultRenderTimeout / time.Second),
					},
					&cli.StringFlag{
						Name:  "callback-url",
						Usage: "URL to POST the result to on success",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return renderAction(ctx, cmd, log)
				},
			},
			{
				Name:  "cleanup",
				Usage: "delete job directories",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "job-id",
						Usage: "job identifier to clean up",
					},
					&cli.StringFlag{
						Name:  "jobs-dir",
						Usage: "jobs directory root",
						Value: config.DefaultJobsDir,
					},
					&cli.BoolFlag{
						Name:  "expired",
						Usage: "sweep all job directories older than --max-age-hours",
					},
					&cli.IntFlag{
						Name:  "max-age-hours",
						Usage: "age threshold for --expired",
						Value: 24,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return cleanupAction(cmd, log)
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.LogFatal("command failed", err)
	}
}

// renderResult is the JSON document printed on stdout, matching the
// terminal webhook payload.
type renderResult struct {
	JobID                 string  `json:"job_id"`
	Status                string  `json:"status"`
	VideoPath             string  `json:"video_path,omitempty"`
	VideoSizeBytes        int64   `json:"video_size_bytes,omitempty"`
	RenderDurationSeconds float64 `json:"render_duration_seconds"`
	Error                 string  `json:"error,omitempty"`
}

func renderAction(ctx context.Context, cmd *cli.Command, log *logger.Logger) error {
	jobID := cmd.String("job-id")
	timeout := time.Duration(cmd.Int("timeout")) * time.Second
	outputDir := filepath.Join(cmd.String("output-dir"), jobID)

	log = log.WithJobID(jobID)
	log.Info("starting render", "quality", cmd.String("quality"), "format", cmd.String("format"))

	engine := render.NewCLIEngine(config.Env("MANIM_BIN", "manim"))

	renderCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := engine.Render(renderCtx, render.Request{
		ScenePath: cmd.String("scene"),
		OutputDir: outputDir,
		Format:    cmd.String("format"),
		Quality:   cmd.String("quality"),
	})

	result := renderResult{JobID: jobID}
	switch {
	case err == nil:
		result.Status = "success"
		result.VideoPath = res.ArtifactPath
		result.VideoSizeBytes = res.SizeBytes
		result.RenderDurationSeconds = res.Duration.Seconds()
	case renderCtx.Err() == context.DeadlineExceeded:
		result.Status = "timeout"
		result.Error = fmt.Sprintf("render exceeded %s timeout", timeout)
		result.RenderDurationSeconds = timeout.Seconds()
	default:
		result.Status = "error"
		result.Error = render.Diagnostic(err.Error(), "")
	}

	out, _ := json.Marshal(result)
	fmt.Println(string(out))

	if url := cmd.String("callback-url"); url != "" && result.Status == "success" {
		nc := notify.NewClient("", log)
		nc.PostCallback(ctx, url, notify.CallbackPayload{
			JobID:                 result.JobID,
			Status:                result.Status,
			VideoPath:             result.VideoPath,
			VideoSizeBytes:        result.VideoSizeBytes,
			RenderDurationSeconds: result.RenderDurationSeconds,
		})
	}

	if result.Status != "success" {
		return fmt.Errorf("render %s: %s", result.Status, result.Error)
	}
	return nil
}

func cleanupAction(cmd *cli.Command, log *logger.Logger) error {
	jobsDir := cmd.String("jobs-dir")

	if cmd.Bool("expired") {
		maxAge := time.Duration(cmd.Int("max-age-hours")) * time.Hour
		removed, err := retention.SweepExpired(jobsDir, maxAge)
		if err != nil {
			return err
		}
		log.Info("expired cleanup complete", "jobs_removed", removed)
		fmt.Printf(`{"jobs_removed":%d}`+"\n", removed)
		return nil
	}

	jobID := cmd.String("job-id")
	if jobID == "" {
		return fmt.Errorf("either --job-id or --expired is required")
	}
	if err := retention.RemoveJobDir(jobsDir, jobID); err != nil {
		return err
	}
	log.WithJobID(jobID).Info("job directory removed")
	fmt.Printf(`{"job_id":%q,"deleted":true}`+"\n", jobID)
	return nil
}
