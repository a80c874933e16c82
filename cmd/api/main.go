package main

import (
	"context"
	"net/http"
	"time"

	"manimd/internal/config"
	"manimd/internal/dispatch"
	"manimd/internal/httpapi"
	"manimd/internal/httpapi/handlers"
	"manimd/internal/notify"
	"manimd/internal/pkg/logger"
	"manimd/internal/pkg/shutdown"
	"manimd/internal/render"
	"manimd/internal/retention"
	"manimd/internal/storage"
	"manimd/internal/store"
)

func main() {
	log := logger.New(logger.Config{
		Level:       config.Env("LOG_LEVEL", "info"),
		Format:      config.Env("LOG_FORMAT", "json"),
		ServiceName: "manimd-api",
	})

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}
	log.Info("starting manimd API",
		"version", handlers.Version,
		"jobs_dir", cfg.JobsDir,
		"render_timeout", cfg.RenderTimeout.String(),
		"retention", cfg.Retention.String(),
	)

	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	mirror, err := storage.NewProvider()
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	if mirror != nil {
		log.Info("artifact mirroring enabled", "provider", mirror.Provider())
	}

	jobs := store.New()
	notifier := notify.NewClient(cfg.WorkerBaseURL, log)

	dispatcher := dispatch.New(dispatch.Deps{
		Store:           jobs,
		Engine:          render.NewCLIEngine(cfg.ManimBin),
		Compressor:      render.NewFFmpegCompressor(cfg.FFmpegBin),
		Notifier:        notifier,
		Mirror:          mirror,
		RenderTimeout:   cfg.RenderTimeout,
		MaxArtifactSize: cfg.MaxArtifactSize,
		Log:             log,
	})

	sweeper := retention.NewSweeper(jobs, cfg.JobsDir, mirror, cfg.Retention, log)
	shutdownMgr.RegisterSimple("retention-sweeper", sweeper.Close)

	router := httpapi.NewRouter(handlers.Deps{
		Store:      jobs,
		Dispatcher: dispatcher,
		Sweeper:    sweeper,
		Notifier:   notifier,
		JobsDir:    cfg.JobsDir,
		Log:        log,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}
