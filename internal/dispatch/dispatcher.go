// Package dispatch executes admitted jobs. Each job runs on its own
// goroutine, bounded only by the render wall-clock timeout; every exit
// path reaches a terminal status and releases the job's execution lock.
package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"manimd/internal/model"
	"manimd/internal/notify"
	"manimd/internal/pkg/errors"
	"manimd/internal/pkg/logger"
	"manimd/internal/ports"
	"manimd/internal/render"
	"manimd/internal/store"
)

// errSuperseded aborts a store update when another actor already moved
// the job past the state the dispatcher expected. Always benign.
var errSuperseded = stderrors.New("transition superseded")

// Deps wires the dispatcher's collaborators.
type Deps struct {
	Store      *store.Store
	Engine     render.Engine
	Compressor render.Compressor
	Notifier   *notify.Client
	// Mirror, when non-nil, receives a copy of each completed artifact.
	Mirror ports.StorageProvider

	RenderTimeout   time.Duration
	MaxArtifactSize int64

	Log *logger.Logger
}

type Dispatcher struct {
	store      *store.Store
	engine     render.Engine
	compressor render.Compressor
	notifier   *notify.Client
	mirror     ports.StorageProvider

	renderTimeout   time.Duration
	maxArtifactSize int64

	locks *lockTable
	log   *logger.Logger
}

func New(d Deps) *Dispatcher {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Dispatcher{
		store:           d.Store,
		engine:          d.Engine,
		compressor:      d.Compressor,
		notifier:        d.Notifier,
		mirror:          d.Mirror,
		renderTimeout:   d.RenderTimeout,
		maxArtifactSize: d.MaxArtifactSize,
		locks:           newLockTable(),
		log:             log.WithComponent("dispatch"),
	}
}

// Start admits the job for execution and returns immediately. Starting a
// job whose execution lock is already held is a no-op.
func (d *Dispatcher) Start(jobID string) {
	if !d.locks.tryAcquire(jobID) {
		d.log.WithJobID(jobID).Warn("job already executing, start ignored")
		return
	}
	go func() {
		defer d.locks.release(jobID)
		d.run(jobID)
	}()
}

// outcome is the execution result before it is folded into job state.
type outcome struct {
	failed       bool
	errorDetail  string
	artifactPath string
	sizeBytes    int64
	remoteKey    string
	duration     time.Duration
}

func (d *Dispatcher) run(jobID string) {
	log := d.log.WithJobID(jobID)

	job, err := d.store.Get(jobID)
	if err != nil {
		// Swept before execution began.
		log.Debug("job gone before execution")
		return
	}

	if !d.markRendering(jobID) {
		// Cancelled (or otherwise moved on) before execution began.
		log.Info("job no longer queued, skipping execution")
		return
	}

	ctx := logger.ContextWithJobID(context.Background(), jobID)
	d.notifier.NotifyProgress(ctx, jobID, 0.1, "render started")

	out := d.execute(ctx, job)

	final, ok := d.finalize(jobID, out)
	if !ok {
		return
	}

	if out.failed {
		log.Error("job failed", "error", out.errorDetail, "duration_ms", out.duration.Milliseconds())
	} else {
		log.Info("job completed",
			"artifact", out.artifactPath,
			"size_bytes", out.sizeBytes,
			"duration_ms", out.duration.Milliseconds(),
		)
	}

	d.notifier.NotifyStatus(ctx, jobID, string(final), out.errorDetail)
	if job.CallbackURL != "" {
		d.notifier.PostCallback(ctx, job.CallbackURL, notify.CallbackPayload{
			JobID:                 jobID,
			Status:                string(final),
			VideoPath:             out.artifactPath,
			VideoSizeBytes:        out.sizeBytes,
			RenderDurationSeconds: out.duration.Seconds(),
			Error:                 out.errorDetail,
		})
	}
}

// markRendering performs the queued->rendering transition. It reports
// false when the job is no longer queued.
func (d *Dispatcher) markRendering(jobID string) bool {
	err := d.store.Update(jobID, func(j *model.Job) error {
		if j.Status != model.JobQueued {
			return errSuperseded
		}
		now := time.Now().UTC()
		j.Status = model.JobRendering
		j.StartedAt = &now
		return nil
	})
	return err == nil
}

// execute runs the render collaborator and post-processing. It never
// mutates job state.
func (d *Dispatcher) execute(ctx context.Context, job model.Job) outcome {
	log := d.log.WithJobID(job.ID)
	start := time.Now()

	renderCtx, cancel := context.WithTimeout(ctx, d.renderTimeout)
	defer cancel()

	res, err := d.engine.Render(renderCtx, render.Request{
		ScenePath: job.ScenePath,
		OutputDir: job.JobDir,
		Format:    job.Options.OutputFormat,
		Quality:   job.Options.Quality,
	})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return outcome{
				failed:      true,
				errorDetail: fmt.Sprintf("render exceeded %s timeout", d.renderTimeout),
				duration:    d.renderTimeout,
			}
		}
		return outcome{
			failed:      true,
			errorDetail: render.Diagnostic(err.Error(), ""),
			duration:    time.Since(start),
		}
	}

	out := outcome{
		artifactPath: res.ArtifactPath,
		sizeBytes:    res.SizeBytes,
		duration:     res.Duration,
	}

	if out.sizeBytes > d.maxArtifactSize && d.compressor != nil {
		log.Warn("artifact exceeds size threshold, compressing",
			"size_bytes", out.sizeBytes,
			"max_bytes", d.maxArtifactSize,
		)
		compressed, cerr := d.compressor.Compress(ctx, out.artifactPath)
		if cerr != nil {
			// Compression failure is non-fatal; the original artifact
			// stands.
			log.Warn("compression failed", "error", cerr.Error())
		} else if st, serr := os.Stat(compressed); serr == nil {
			out.artifactPath = compressed
			out.sizeBytes = st.Size()
		}
	}

	if d.mirror != nil {
		out.remoteKey = d.uploadMirror(ctx, job, out)
	}

	return out
}

// uploadMirror copies the artifact to the configured storage provider.
// Failures are logged and ignored; the local artifact is authoritative
// for the retention window.
func (d *Dispatcher) uploadMirror(ctx context.Context, job model.Job, out outcome) string {
	log := d.log.WithJobID(job.ID)

	f, err := os.Open(out.artifactPath)
	if err != nil {
		log.Warn("mirror skipped, artifact unreadable", "error", err.Error())
		return ""
	}
	defer f.Close()

	put, err := d.mirror.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   fmt.Sprintf("videos/%s.%s", job.ID, job.Options.OutputFormat),
		ContentType: "video/" + job.Options.OutputFormat,
		Reader:      f,
		Size:        out.sizeBytes,
	})
	if err != nil {
		log.Warn("mirror upload failed", "error", err.Error())
		return ""
	}
	log.Info("artifact mirrored", "provider", d.mirror.Provider(), "key", put.ObjectKey)
	return put.ObjectKey
}

// finalize records the terminal status. A job cancelled mid-flight keeps
// its cancelled status: the late result is discarded. Returns the
// recorded status and whether it was recorded.
func (d *Dispatcher) finalize(jobID string, out outcome) (model.JobStatus, bool) {
	final := model.JobComplete
	if out.failed {
		final = model.JobFailed
	}

	err := d.store.Update(jobID, func(j *model.Job) error {
		if j.Status == model.JobCancelled {
			return errSuperseded
		}
		now := time.Now().UTC()
		j.Status = final
		j.CompletedAt = &now
		j.RenderDuration = out.duration
		if out.failed {
			j.ErrorDetail = out.errorDetail
		} else {
			j.ArtifactPath = out.artifactPath
			j.SizeBytes = out.sizeBytes
			j.RemoteKey = out.remoteKey
		}
		return nil
	})
	switch {
	case err == nil:
		return final, true
	case stderrors.Is(err, errSuperseded):
		d.log.WithJobID(jobID).Info("job cancelled during render, late result discarded")
		return model.JobCancelled, false
	case errors.IsNotFound(err):
		d.log.WithJobID(jobID).Debug("job swept during render, result discarded")
		return "", false
	default:
		d.log.WithJobID(jobID).Error("failed to record terminal status", "error", err.Error())
		return "", false
	}
}
