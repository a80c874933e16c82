package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"manimd/internal/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "text"})
}

func TestNotifyStatus(t *testing.T) {
	t.Run("delivers payload", func(t *testing.T) {
		var got StatusUpdate
		var path string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &got)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, quietLogger())
		if !c.NotifyStatus(context.Background(), "job1", "complete", "") {
			t.Fatal("expected delivery to succeed")
		}
		if path != "/api/v1/jobs/job1/status" {
			t.Errorf("unexpected path %q", path)
		}
		if got.JobID != "job1" || got.Status != "complete" {
			t.Errorf("unexpected payload: %+v", got)
		}
		if got.Timestamp == "" {
			t.Error("expected timestamp in payload")
		}
	})

	t.Run("retries up to three attempts", func(t *testing.T) {
		var attempts int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, quietLogger())
		if !c.NotifyStatus(context.Background(), "job1", "failed", "boom") {
			t.Fatal("expected third attempt to succeed")
		}
		if n := atomic.LoadInt32(&attempts); n != 3 {
			t.Errorf("expected 3 attempts, got %d", n)
		}
	})

	t.Run("gives up after three attempts", func(t *testing.T) {
		var attempts int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, quietLogger())
		if c.NotifyStatus(context.Background(), "job1", "complete", "") {
			t.Fatal("expected delivery to fail")
		}
		if n := atomic.LoadInt32(&attempts); n != 3 {
			t.Errorf("expected exactly 3 attempts, got %d", n)
		}
	})

	t.Run("disabled without worker url", func(t *testing.T) {
		c := NewClient("", quietLogger())
		if c.NotifyStatus(context.Background(), "job1", "complete", "") {
			t.Error("expected no-op when worker url is empty")
		}
	})
}

func TestNotifyProgressSingleAttempt(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, quietLogger())
	if c.NotifyProgress(context.Background(), "job1", 0.5, "halfway") {
		t.Error("expected progress delivery to fail")
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("progress must never be retried, got %d attempts", n)
	}
}

func TestPostCallback(t *testing.T) {
	var got CallbackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("", quietLogger())
	ok := c.PostCallback(context.Background(), srv.URL, CallbackPayload{
		JobID:                 "job1",
		Status:                "complete",
		VideoPath:             "/tmp/out.mp4",
		VideoSizeBytes:        2048,
		RenderDurationSeconds: 12.5,
	})
	if !ok {
		t.Fatal("expected callback to succeed")
	}
	if got.JobID != "job1" || got.VideoSizeBytes != 2048 {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestPostCallbackUnreachable(t *testing.T) {
	c := NewClient("", quietLogger())
	ok := c.PostCallback(context.Background(), "http://127.0.0.1:1/callback", CallbackPayload{
		JobID:  "job1",
		Status: "failed",
	})
	if ok {
		t.Error("expected callback to an unreachable host to fail")
	}
}
