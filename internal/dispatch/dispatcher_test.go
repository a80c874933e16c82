package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"manimd/internal/model"
	"manimd/internal/notify"
	"manimd/internal/pkg/logger"
	"manimd/internal/render"
	"manimd/internal/store"
)

// fakeEngine lets tests script the render collaborator.
type fakeEngine struct {
	mu      sync.Mutex
	calls   int
	result  render.Result
	err     error
	block   chan struct{} // when non-nil, Render waits here or for ctx
	started chan struct{} // closed-ish signal per call, buffered
}

func (f *fakeEngine) Render(ctx context.Context, req render.Request) (render.Result, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return render.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return render.Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCompressor struct {
	calls int32
	out   string
	err   error
}

func (f *fakeCompressor) Compress(ctx context.Context, path string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "text"})
}

func seedJob(t *testing.T, s *store.Store, id string) {
	t.Helper()
	err := s.Create(model.Job{
		ID:      id,
		Status:  model.JobQueued,
		Payload: "from manim import *",
		Options: model.RenderOptions{OutputFormat: "mp4", Quality: "medium"},
		JobDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
}

func newTestDispatcher(s *store.Store, eng render.Engine, comp render.Compressor) *Dispatcher {
	return New(Deps{
		Store:           s,
		Engine:          eng,
		Compressor:      comp,
		Notifier:        notify.NewClient("", quietLogger()),
		RenderTimeout:   2 * time.Second,
		MaxArtifactSize: 1 << 20,
		Log:             quietLogger(),
	})
}

func waitForStatus(t *testing.T, s *store.Store, id string, want model.JobStatus) model.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.Get(id)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, err := s.Get(id)
	t.Fatalf("job never reached %s, last state: %+v err=%v", want, job, err)
	return model.Job{}
}

func TestSuccessfulRun(t *testing.T) {
	s := store.New()
	seedJob(t, s, "a")

	eng := &fakeEngine{result: render.Result{
		ArtifactPath: "/tmp/out.mp4",
		SizeBytes:    1024,
		Duration:     42 * time.Millisecond,
	}}
	d := newTestDispatcher(s, eng, nil)

	d.Start("a")

	job := waitForStatus(t, s, "a", model.JobComplete)
	if job.ArtifactPath != "/tmp/out.mp4" {
		t.Errorf("expected artifact path recorded, got %q", job.ArtifactPath)
	}
	if job.SizeBytes != 1024 {
		t.Errorf("expected size recorded, got %d", job.SizeBytes)
	}
	if job.CompletedAt == nil || job.StartedAt == nil {
		t.Error("expected started/completed timestamps to be set")
	}
	if job.RenderDuration != 42*time.Millisecond {
		t.Errorf("expected render duration recorded, got %s", job.RenderDuration)
	}
}

func TestFailedRun(t *testing.T) {
	s := store.New()
	seedJob(t, s, "a")

	eng := &fakeEngine{err: fmt.Errorf("scene has no Scene subclass")}
	d := newTestDispatcher(s, eng, nil)

	d.Start("a")

	job := waitForStatus(t, s, "a", model.JobFailed)
	if job.ErrorDetail == "" {
		t.Error("expected error detail on failed job")
	}
	if job.ArtifactPath != "" {
		t.Errorf("failed job must not carry an artifact, got %q", job.ArtifactPath)
	}
}

func TestTimeoutMarksFailed(t *testing.T) {
	s := store.New()
	seedJob(t, s, "a")

	eng := &fakeEngine{block: make(chan struct{})} // never unblocked
	d := New(Deps{
		Store:           s,
		Engine:          eng,
		Notifier:        notify.NewClient("", quietLogger()),
		RenderTimeout:   50 * time.Millisecond,
		MaxArtifactSize: 1 << 20,
		Log:             quietLogger(),
	})

	d.Start("a")

	job := waitForStatus(t, s, "a", model.JobFailed)
	want := fmt.Sprintf("render exceeded %s timeout", 50*time.Millisecond)
	if job.ErrorDetail != want {
		t.Errorf("expected %q, got %q", want, job.ErrorDetail)
	}
	if job.RenderDuration != 50*time.Millisecond {
		t.Errorf("expected duration pinned to the timeout, got %s", job.RenderDuration)
	}
}

func TestStartWhileExecutingIsNoop(t *testing.T) {
	s := store.New()
	seedJob(t, s, "a")

	eng := &fakeEngine{
		block:   make(chan struct{}),
		started: make(chan struct{}, 2),
		result:  render.Result{ArtifactPath: "/tmp/out.mp4", SizeBytes: 1},
	}
	d := newTestDispatcher(s, eng, nil)

	d.Start("a")
	<-eng.started // first execution is inside Render

	d.Start("a") // lock held, must not spawn a second execution
	close(eng.block)

	waitForStatus(t, s, "a", model.JobComplete)
	if got := eng.callCount(); got != 1 {
		t.Errorf("expected exactly one render execution, got %d", got)
	}
}

func TestCancelDuringRenderDiscardsResult(t *testing.T) {
	s := store.New()
	seedJob(t, s, "a")

	eng := &fakeEngine{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
		result:  render.Result{ArtifactPath: "/tmp/out.mp4", SizeBytes: 1},
	}
	d := newTestDispatcher(s, eng, nil)

	d.Start("a")
	<-eng.started

	// Cancel while the render is in flight.
	err := s.Update("a", func(j *model.Job) error {
		now := time.Now().UTC()
		j.Status = model.JobCancelled
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		t.Fatalf("cancel update: %v", err)
	}

	close(eng.block)

	// Give the dispatcher time to attempt finalization, then verify the
	// cancelled status survived.
	time.Sleep(100 * time.Millisecond)
	job, err := s.Get("a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != model.JobCancelled {
		t.Errorf("late result must be discarded, got status %s", job.Status)
	}
	if job.ArtifactPath != "" {
		t.Errorf("cancelled job must not gain an artifact, got %q", job.ArtifactPath)
	}
}

func TestCancelBeforeExecutionSkipsRender(t *testing.T) {
	s := store.New()
	seedJob(t, s, "a")

	// Move the job off queued before the dispatcher runs.
	if err := s.Update("a", func(j *model.Job) error {
		j.Status = model.JobCancelled
		return nil
	}); err != nil {
		t.Fatalf("cancel update: %v", err)
	}

	eng := &fakeEngine{result: render.Result{ArtifactPath: "/tmp/out.mp4"}}
	d := newTestDispatcher(s, eng, nil)

	d.Start("a")
	time.Sleep(100 * time.Millisecond)

	if got := eng.callCount(); got != 0 {
		t.Errorf("cancelled job must not render, got %d executions", got)
	}
	job, _ := s.Get("a")
	if job.Status != model.JobCancelled {
		t.Errorf("expected cancelled, got %s", job.Status)
	}
}

func TestSweptJobIsSkipped(t *testing.T) {
	s := store.New()

	eng := &fakeEngine{result: render.Result{ArtifactPath: "/tmp/out.mp4"}}
	d := newTestDispatcher(s, eng, nil)

	d.Start("gone")
	time.Sleep(100 * time.Millisecond)

	if got := eng.callCount(); got != 0 {
		t.Errorf("absent job must not render, got %d executions", got)
	}
}

func TestCompressionFailureIsNonFatal(t *testing.T) {
	s := store.New()
	seedJob(t, s, "a")

	eng := &fakeEngine{result: render.Result{
		ArtifactPath: "/tmp/out.mp4",
		SizeBytes:    10 << 20, // over the 1 MiB test threshold
	}}
	comp := &fakeCompressor{err: fmt.Errorf("ffmpeg exploded")}
	d := newTestDispatcher(s, eng, comp)

	d.Start("a")

	job := waitForStatus(t, s, "a", model.JobComplete)
	if atomic.LoadInt32(&comp.calls) != 1 {
		t.Errorf("expected one compression attempt, got %d", comp.calls)
	}
	if job.ArtifactPath != "/tmp/out.mp4" {
		t.Errorf("original artifact must stand after failed compression, got %q", job.ArtifactPath)
	}
	if job.SizeBytes != 10<<20 {
		t.Errorf("original size must stand, got %d", job.SizeBytes)
	}
}

func TestSmallArtifactSkipsCompression(t *testing.T) {
	s := store.New()
	seedJob(t, s, "a")

	eng := &fakeEngine{result: render.Result{ArtifactPath: "/tmp/out.mp4", SizeBytes: 100}}
	comp := &fakeCompressor{out: "/tmp/out_compressed.mp4"}
	d := newTestDispatcher(s, eng, comp)

	d.Start("a")

	waitForStatus(t, s, "a", model.JobComplete)
	if atomic.LoadInt32(&comp.calls) != 0 {
		t.Errorf("artifact under threshold must not be compressed, got %d calls", comp.calls)
	}
}
