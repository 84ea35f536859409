package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"discflow/internal/config"
	"discflow/internal/notifications"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured = append(captured, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyError(context.Background(), errors.New("boom"), "scan"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyStageCompleted(ctx, "convert", "Heat (1995)", 90*time.Second+400*time.Millisecond); err != nil {
		t.Fatalf("NotifyStageCompleted: %v", err)
	}
	if err := svc.NotifyStageFailed(ctx, "scan", "DISC_1", errors.New("no titles")); err != nil {
		t.Fatalf("NotifyStageFailed: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("nil map"), "scan stage, metadata provider \"Sidecar\""); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}

	tests := []capturedRequest{
		{title: "discflow - Convert complete", tags: "discflow,convert,completed", priority: "high", body: "✅ Heat (1995) finished convert in 1m30s"},
		{title: "discflow - Scan failed", tags: "discflow,scan,failed", body: "⚠️ DISC_1: no titles"},
		{title: "discflow - Error", tags: "discflow,error,alert", priority: "high", body: "❌ Error in scan stage, metadata provider \"Sidecar\": nil map"},
	}
	if len(*captured) != len(tests) {
		t.Fatalf("expected %d requests, got %d", len(tests), len(*captured))
	}
	for i, want := range tests {
		if got := (*captured)[i]; got != want {
			t.Fatalf("request %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestNtfyServiceRespectsToggles(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.StageResults = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	_ = svc.NotifyStageCompleted(ctx, "scan", "x", time.Second)
	_ = svc.NotifyStageFailed(ctx, "scan", "x", nil)
	_ = svc.NotifyError(ctx, nil, "")
	if len(*captured) != 0 {
		t.Fatalf("expected no requests, got %d", len(*captured))
	}
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if len(*captured) != 1 {
		t.Fatal("test notification should always be sent")
	}
}

func TestNtfyServiceSurfacesHTTPErrors(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}
