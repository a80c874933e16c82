package model

import "time"

// JobStatus is the lifecycle state of a render job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRendering JobStatus = "rendering"
	JobComplete  JobStatus = "complete"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobComplete, JobFailed, JobCancelled:
		return true
	}
	return false
}

// RenderOptions are fixed at submission time.
type RenderOptions struct {
	// OutputFormat is the container format of the artifact (mp4, webm).
	OutputFormat string `json:"output_format"`
	// Quality is the rendering quality tier (low, medium, high, ultra).
	// It maps to a discrete renderer preset.
	Quality string `json:"quality"`
}

// Job is one render request and its tracked lifecycle state.
//
// Records are append-only: status transitions follow a strict path
// (queued -> rendering -> complete|failed, or queued|rendering -> cancelled)
// and a field belonging to a later state is never populated before that
// state is entered, nor cleared once set. The store owns the canonical
// record; everything outside the store works on copies.
type Job struct {
	ID      string        `json:"id"`
	Status  JobStatus     `json:"status"`
	Payload string        `json:"-"`
	Problem string        `json:"problem,omitempty"`
	Options RenderOptions `json:"options"`

	// JobDir is the per-job working directory, ScenePath the scene file
	// inside it that the render engine consumes.
	JobDir    string `json:"-"`
	ScenePath string `json:"-"`

	// CallbackURL, when set, receives the terminal webhook.
	CallbackURL string `json:"-"`

	// ArtifactPath and SizeBytes are set only on entry into complete.
	ArtifactPath string `json:"artifact_path,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`

	// RemoteKey is the storage-provider object key when the artifact was
	// mirrored to remote storage.
	RemoteKey string `json:"-"`

	// ErrorDetail is set only on entry into failed.
	ErrorDetail string `json:"error,omitempty"`

	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	RenderDuration time.Duration `json:"-"`
}

// ValidFormats and ValidQualities are the accepted option values.
var (
	ValidFormats   = map[string]bool{"mp4": true, "webm": true}
	ValidQualities = map[string]bool{"low": true, "medium": true, "high": true, "ultra": true}
)
