package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"dockd/internal/notifications"
	"dockd/internal/testsupport"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg)
	if err := svc.NotifySessionCompleted(context.Background(), "20260824_120000", 1, 10); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "device detected",
			notify: func(svc notifications.Service) error {
				return svc.NotifyDeviceDetected(context.Background(), "/dev/sda")
			},
			expectTitle:   "Dock - Device Detected",
			expectMessage: "Wearable docked: /dev/sda",
			expectTags:    "dockd,device,detected",
		},
		{
			name: "firmware flashed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyFirmwareFlashed(context.Background(), "fw_v3.bin")
			},
			expectTitle:   "Dock - Firmware Updated",
			expectMessage: "Firmware flashed: fw_v3.bin",
			expectTags:    "dockd,firmware,flashed",
		},
		{
			name: "session completed",
			notify: func(svc notifications.Service) error {
				return svc.NotifySessionCompleted(context.Background(), "20260824_120000", 2, 480)
			},
			expectTitle:    "Dock - Session Complete",
			expectMessage:  "Session 20260824_120000 archived: 2 file(s), 480 record(s) published",
			expectTags:     "dockd,session,completed",
			expectPriority: "high",
		},
		{
			name: "session aborted",
			notify: func(svc notifications.Service) error {
				return svc.NotifySessionAborted(context.Background(), "20260824_120000", "mount helper failed")
			},
			expectTitle:    "Dock - Session Aborted",
			expectMessage:  "Session 20260824_120000 aborted: mount helper failed",
			expectTags:     "dockd,session,aborted",
			expectPriority: "high",
		},
		{
			name: "error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("dfu-util exited 74"), "firmware")
			},
			expectTitle:    "Dock - Error",
			expectMessage:  "Error in firmware: dfu-util exited 74",
			expectTags:     "dockd,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(server.URL))
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsCategoryToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for disabled category: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(server.URL))
	cfg.Notifications.Sessions = false
	cfg.Notifications.Firmware = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(cfg)
	ctx := context.Background()
	if err := svc.NotifyDeviceDetected(ctx, "/dev/sda"); err != nil {
		t.Fatalf("disabled session notification should be silent: %v", err)
	}
	if err := svc.NotifyFirmwareFlashed(ctx, "fw.bin"); err != nil {
		t.Fatalf("disabled firmware notification should be silent: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), "decode"); err != nil {
		t.Fatalf("disabled error notification should be silent: %v", err)
	}
}

func TestNtfyServiceSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(server.URL))

	svc := notifications.NewService(cfg)
	if err := svc.NotifyError(context.Background(), errors.New("boom"), "decode"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
