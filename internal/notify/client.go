// Package notify delivers status, progress and completion callbacks to
// external callers. Delivery failures are reported to the caller for
// logging only and never escalate into the render path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"manimd/internal/pkg/logger"
)

const (
	// attemptTimeout bounds a single delivery attempt.
	attemptTimeout = 30 * time.Second
	// maxAttempts and retryDelay define the bounded-retry policy for
	// terminal notifications. Progress updates are never retried.
	maxAttempts = 3
	retryDelay  = 1 * time.Second
)

// StatusUpdate is the payload of a status notification.
type StatusUpdate struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ProgressUpdate is the payload of a best-effort progress notification.
type ProgressUpdate struct {
	JobID    string  `json:"job_id"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

// CallbackPayload is the terminal webhook sent to a caller-supplied URL.
type CallbackPayload struct {
	JobID                 string  `json:"job_id"`
	Status                string  `json:"status"`
	VideoPath             string  `json:"video_path,omitempty"`
	VideoSizeBytes        int64   `json:"video_size_bytes,omitempty"`
	RenderDurationSeconds float64 `json:"render_duration_seconds"`
	Error                 string  `json:"error,omitempty"`
}

// Client posts notifications over HTTP.
type Client struct {
	// workerURL is the optional base URL of the upstream worker that
	// mirrors job state; empty disables status/progress streams.
	workerURL string
	hc        *http.Client
	log       *logger.Logger
}

func NewClient(workerURL string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Client{
		workerURL: workerURL,
		hc:        &http.Client{Timeout: attemptTimeout},
		log:       log.WithComponent("notify"),
	}
}

// NotifyStatus delivers a status update with bounded retry. It returns
// whether delivery eventually succeeded.
func (c *Client) NotifyStatus(ctx context.Context, jobID, status, detail string) bool {
	if c.workerURL == "" {
		return false
	}
	url := fmt.Sprintf("%s/api/v1/jobs/%s/status", c.workerURL, jobID)
	payload := StatusUpdate{
		JobID:     jobID,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	ok := c.postRetry(ctx, url, payload)
	if ok {
		c.log.WithJobID(jobID).Info("status update sent", "status", status)
	} else {
		c.log.WithJobID(jobID).Error("all status update attempts failed", "status", status)
	}
	return ok
}

// NotifyProgress delivers a single best-effort progress update.
func (c *Client) NotifyProgress(ctx context.Context, jobID string, fraction float64, message string) bool {
	if c.workerURL == "" {
		return false
	}
	url := fmt.Sprintf("%s/api/v1/jobs/%s/progress", c.workerURL, jobID)
	err := c.post(ctx, url, ProgressUpdate{JobID: jobID, Progress: fraction, Message: message})
	if err != nil {
		c.log.WithJobID(jobID).Warn("progress update failed", "error", err.Error())
		return false
	}
	return true
}

// PostCallback delivers the terminal webhook with bounded retry.
func (c *Client) PostCallback(ctx context.Context, url string, payload CallbackPayload) bool {
	ok := c.postRetry(ctx, url, payload)
	if ok {
		c.log.WithJobID(payload.JobID).Info("callback sent", "status", payload.Status)
	} else {
		c.log.WithJobID(payload.JobID).Error("callback delivery failed", "url", url)
	}
	return ok
}

// postRetry applies the fixed retry policy: maxAttempts attempts with a
// constant inter-attempt delay, each bounded by the attempt timeout.
func (c *Client) postRetry(ctx context.Context, url string, payload any) bool {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), maxAttempts-1),
		ctx,
	)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := c.post(ctx, url, payload); err != nil {
			c.log.Warn("delivery attempt failed",
				"url", url,
				"attempt", attempt,
				"error", err.Error(),
			)
			return err
		}
		return nil
	}, policy)
	return err == nil
}

func (c *Client) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("notify http %d", res.StatusCode)
	}
	return nil
}
