package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"manimd/internal/httpkit"
	"manimd/internal/model"
	"manimd/internal/pkg/errors"
)

type renderRequest struct {
	JobID        string `json:"job_id,omitempty"`
	Code         string `json:"code"`
	Problem      string `json:"problem,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	Quality      string `json:"quality,omitempty"`
	CallbackURL  string `json:"callback_url,omitempty"`
}

// PostRender admits a render job: it writes the scene file, creates the
// record, starts execution and arms the retention sweep. There is no
// admission limit; every valid job starts executing immediately.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteError(w, errors.Validation("invalid json body"))
		return
	}

	if strings.TrimSpace(req.Code) == "" {
		httpkit.WriteError(w, errors.ValidationField("code", "no code provided"))
		return
	}

	format := req.OutputFormat
	if format == "" {
		format = "mp4"
	}
	if !model.ValidFormats[format] {
		httpkit.WriteError(w, errors.ValidationField("output_format", "unsupported output format: "+format))
		return
	}

	quality := req.Quality
	if quality == "" {
		quality = "medium"
	}
	if !model.ValidQualities[quality] {
		httpkit.WriteError(w, errors.ValidationField("quality", "unsupported quality tier: "+quality))
		return
	}

	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}

	jobDir := filepath.Join(h.jobsDir, jobID)
	job := model.Job{
		ID:          jobID,
		Status:      model.JobQueued,
		Payload:     req.Code,
		Problem:     req.Problem,
		Options:     model.RenderOptions{OutputFormat: format, Quality: quality},
		JobDir:      jobDir,
		ScenePath:   filepath.Join(jobDir, "scene.py"),
		CallbackURL: req.CallbackURL,
		CreatedAt:   time.Now().UTC(),
	}

	// Reserve the ID before touching the filesystem so a duplicate
	// submit can never clobber an existing job's scene file.
	if err := h.store.Create(job); err != nil {
		httpkit.WriteError(w, err)
		return
	}

	if err := h.writeScene(job); err != nil {
		h.store.Delete(jobID)
		h.log.WithJobID(jobID).Error("scene write failed", "error", err.Error())
		httpkit.WriteError(w, errors.Wrap(err, "api.submit", "failed to stage job"))
		return
	}

	h.dispatcher.Start(jobID)
	h.sweeper.Schedule(jobID)

	h.log.FromContext(r.Context()).WithJobID(jobID).Info("job admitted",
		"format", format,
		"quality", quality,
	)

	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": string(model.JobQueued),
	})
}

func (h *Handler) writeScene(job model.Job) error {
	if err := os.MkdirAll(job.JobDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(job.ScenePath, []byte(job.Payload), 0o644)
}

// GetStatus reports the job's lifecycle state. Response fields are gated
// by status so callers never see fields from a state the job has not
// reached.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.store.Get(jobID)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	resp := map[string]any{
		"job_id":     job.ID,
		"status":     string(job.Status),
		"created_at": job.CreatedAt,
	}
	switch job.Status {
	case model.JobRendering:
		resp["started_at"] = job.StartedAt
	case model.JobComplete:
		resp["video_url"] = "/download/" + job.ID
		resp["completed_at"] = job.CompletedAt
		resp["file_size"] = job.SizeBytes
		resp["render_duration_seconds"] = job.RenderDuration.Seconds()
	case model.JobFailed:
		resp["error"] = job.ErrorDetail
	case model.JobCancelled:
		resp["completed_at"] = job.CompletedAt
	}

	httpkit.WriteJSON(w, http.StatusOK, resp)
}

// Download streams the artifact. Anything but a completed job with a
// readable artifact is a 404; callers cannot distinguish pending from
// unknown via this endpoint.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.store.Get(jobID)
	if err != nil || job.Status != model.JobComplete || job.ArtifactPath == "" {
		httpkit.WriteError(w, errors.NotFound("video", jobID))
		return
	}

	f, err := os.Open(job.ArtifactPath)
	if err != nil {
		httpkit.WriteError(w, errors.NotFound("video", jobID))
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		httpkit.WriteError(w, errors.NotFound("video", jobID))
		return
	}

	w.Header().Set("Content-Type", "video/"+job.Options.OutputFormat)
	w.Header().Set("Content-Disposition", `attachment; filename="`+job.ID+"."+job.Options.OutputFormat+`"`)
	http.ServeContent(w, r, job.ID+"."+job.Options.OutputFormat, st.ModTime(), f)
}

// Cancel marks a non-terminal job cancelled. The transition is atomic
// with respect to the dispatcher: whichever side commits first wins, and
// a cancelled job is never overwritten by a late render result.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	err := h.store.Update(jobID, func(j *model.Job) error {
		if j.Status.Terminal() {
			return errors.Conflict("cannot cancel a finished job").WithField("status", string(j.Status))
		}
		now := time.Now().UTC()
		j.Status = model.JobCancelled
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	h.log.FromContext(r.Context()).WithJobID(jobID).Info("job cancelled")

	go h.notifier.NotifyStatus(context.Background(), jobID, string(model.JobCancelled), "cancelled by user")

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"status": string(model.JobCancelled),
	})
}
