package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mywio/reelsaver/pkg/core"
)

func TestNormalizePatternsPushover(t *testing.T) {
	input := []string{" notify_* ", "", "download_*", "notify_*", "  "}
	out := normalizePatterns(input)
	assert.Equal(t, []string{"notify_*", "download_*"}, out)
}

func TestParseSubscribePatternsPushover(t *testing.T) {
	tests := []struct {
		name    string
		section map[string]any
		want    []string
	}{
		{
			name:    "missing",
			section: map[string]any{},
			want:    nil,
		},
		{
			name: "string_list",
			section: map[string]any{
				"subscribe": []string{" notify_* ", "download_*"},
			},
			want: []string{"notify_*", "download_*"},
		},
		{
			name: "any_list",
			section: map[string]any{
				"subscribe": []any{" notify_*", 123, "download_*", "notify_*"},
			},
			want: []string{"notify_*", "123", "download_*"},
		},
		{
			name: "csv_string",
			section: map[string]any{
				"subscribe": "notify_*, download_*",
			},
			want: []string{"notify_*", "download_*"},
		},
		{
			name: "scalar",
			section: map[string]any{
				"subscribe": 42,
			},
			want: []string{"42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := parseSubscribePatterns(tt.section)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestFormatEvent(t *testing.T) {
	msg := formatEvent(core.InternalEvent{
		Type:    core.EventReelFailed,
		URL:     "https://www.instagram.com/reel/abc/",
		String:  "Error processing video: HTTP error! status: 500",
		Details: map[string]interface{}{"stage": "processing", "error": "HTTP error! status: 500"},
	})
	assert.Equal(t, "[notify_reel_failed] Error processing video: HTTP error! status: 500\n"+
		"Reel: https://www.instagram.com/reel/abc/\n"+
		"error: HTTP error! status: 500\n"+
		"stage: processing", msg)
}

func TestPushoverForwardsEvents(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		received <- payload
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := core.NewModuleManager(logger)
	defer mgr.Bridge().Close()
	mgr.SetConfig(map[string]map[string]any{
		"pushover": {"token": "tok", "user": "usr", "api_url": srv.URL},
	})

	p := &PushoverNotifier{}
	require.NoError(t, p.Init(context.Background(), logger, mgr))
	assert.Equal(t, core.StatusHealthy, p.Status())

	mgr.Publish(context.Background(), core.InternalEvent{
		Type:   core.EventReelFailed,
		String: "Download failed: Unknown error",
	})

	select {
	case payload := <-received:
		assert.Equal(t, "tok", payload["token"])
		assert.Equal(t, "reelsaver", payload["title"])
		assert.EqualValues(t, 1, payload["priority"])
		assert.Contains(t, payload["message"], "Download failed: Unknown error")
	case <-time.After(2 * time.Second):
		t.Fatal("pushover was not called")
	}
}

func TestPushoverDisabledWithoutCredentials(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := core.NewModuleManager(logger)
	defer mgr.Bridge().Close()

	p := &PushoverNotifier{}
	require.NoError(t, p.Init(context.Background(), logger, mgr))
	assert.Equal(t, core.StatusDegraded, p.Status())

	_, err := p.Execute(context.Background(), "notify", map[string]interface{}{"message": "hi"})
	assert.Error(t, err)
}
