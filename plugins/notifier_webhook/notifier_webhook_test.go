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

func TestWebhookForwardsSubscribedEvents(t *testing.T) {
	type delivery struct {
		auth    string
		payload webhookPayload
	}
	received := make(chan delivery, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		_ = json.NewDecoder(r.Body).Decode(&payload)
		received <- delivery{auth: r.Header.Get("X-Api-Key"), payload: payload}
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := core.NewModuleManager(logger)
	defer mgr.Bridge().Close()
	mgr.SetConfig(map[string]map[string]any{
		"webhook": {
			"url":       srv.URL,
			"subscribe": "notify_reel_*",
			"headers":   map[string]any{"X-Api-Key": "k"},
		},
	})

	p := &WebhookPlugin{}
	require.NoError(t, p.Init(context.Background(), logger, mgr))
	assert.Equal(t, core.StatusHealthy, p.Status())

	mgr.Publish(context.Background(), core.InternalEvent{Type: core.EventDownloadFailed, String: "ignored"})
	mgr.Publish(context.Background(), core.InternalEvent{
		Type:    core.EventReelProcessed,
		Source:  "coordinator",
		URL:     "https://www.instagram.com/reel/abc/",
		String:  "Video processed and downloading.",
		Details: map[string]interface{}{"download_id": 42},
	})

	select {
	case d := <-received:
		assert.Equal(t, "k", d.auth)
		assert.Equal(t, core.EventReelProcessed, d.payload.EventType)
		assert.Equal(t, "https://www.instagram.com/reel/abc/", d.payload.URL)
		assert.EqualValues(t, 42, d.payload.Details["download_id"])
		assert.False(t, d.payload.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not called")
	}

	select {
	case d := <-received:
		t.Fatalf("unexpected delivery for %s", d.payload.EventType)
	case <-time.After(100 * time.Millisecond):
	}

	view := p.Config().(webhookConfigView)
	assert.Equal(t, []string{"X-Api-Key"}, view.Headers)
	assert.Equal(t, []string{"notify_reel_*"}, view.Subscribe)
}

func TestWebhookExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := &WebhookPlugin{logger: logger, url: srv.URL, client: srv.Client(), enabled: true}

	_, err := p.Execute(context.Background(), "notify", map[string]interface{}{
		"event": core.InternalEvent{Type: core.EventReelFailed},
	})
	assert.EqualError(t, err, "webhook status 502")

	_, err = p.Execute(context.Background(), "notify", map[string]interface{}{"event": "nope"})
	assert.Error(t, err)
	_, err = p.Execute(context.Background(), "other", nil)
	assert.Error(t, err)
}
