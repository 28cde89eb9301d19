// plugins/webhook_trigger/webhook_trigger.go
// Plugin exposing an HTTP endpoint that asks the pipeline to process a reel
// (e.g., from a phone shortcut or another service)

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mywio/reelsaver/pkg/core"
	"github.com/mywio/reelsaver/pkg/reel"
)

const eventWebhookReceived core.EventTypeName = "webhook_received"

var defaultAllowedHosts = []string{"instagram.com", "www.instagram.com"}

type WebhookTriggerPlugin struct {
	token        core.Secret
	allowedHosts []string
	timeout      time.Duration
	logger       *slog.Logger
	registry     core.PluginRegistry
	ready        bool
}

type webhookTriggerConfig struct {
	Token        string   `yaml:"token"`
	AllowedHosts []string `yaml:"allowed_hosts"`
	Timeout      string   `yaml:"timeout"`
}

type triggerRequest struct {
	URL string `json:"url"`
}

type triggerResponse struct {
	RequestID string `json:"request_id"`
	reel.Result
}

func (p *WebhookTriggerPlugin) Name() string {
	return "webhook_trigger"
}

func (p *WebhookTriggerPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	p.registry = registry

	if registry != nil {
		cfg := registry.GetConfig()
		if section, ok := cfg["webhook_trigger"]; ok {
			var wcfg webhookTriggerConfig
			if err := core.DecodeConfigSection(section, &wcfg); err != nil {
				p.logger.Warn("Invalid webhook_trigger config", "error", err)
			}
			p.token = core.NewSecret(wcfg.Token)
			p.allowedHosts = normalizeHosts(wcfg.AllowedHosts)
			if wcfg.Timeout != "" {
				d, err := time.ParseDuration(wcfg.Timeout)
				if err != nil {
					p.logger.Warn("Invalid webhook_trigger timeout", "timeout", wcfg.Timeout, "error", err)
				}
				p.timeout = d
			}
		}
	}
	if len(p.allowedHosts) == 0 {
		p.allowedHosts = defaultAllowedHosts
	}

	if !p.token.IsSet() {
		p.logger.Warn("WEBHOOK_TOKEN not set, endpoint is unsecured (use with caution)")
	} else {
		p.logger.Info("Webhook Trigger Plugin Initialized", "secured", true)
	}

	if registry == nil {
		return nil
	}
	if err := registry.RegisterEventType(core.EventTypeDesc{
		Name:        eventWebhookReceived,
		Description: "Processing request received over the webhook trigger",
		PayloadSpec: map[string]core.PayloadField{
			"request_id": {Type: "string", Description: "Trigger request id", Required: true},
		},
	}); err != nil {
		p.logger.Warn("Event type already registered", "event", eventWebhookReceived, "error", err)
	}
	registry.GetRouter().HandleFunc("/trigger/process", p.handleProcess).Methods(http.MethodPost)
	p.ready = true
	return nil
}

func (p *WebhookTriggerPlugin) Start(_ context.Context) error {
	// routes are served by the core HTTP server
	return nil
}

func (p *WebhookTriggerPlugin) Stop(ctx context.Context) error {
	return nil
}

func (p *WebhookTriggerPlugin) Description() string {
	return "Webhook trigger for processing a reel on demand"
}

func (p *WebhookTriggerPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityTrigger}
}

func (p *WebhookTriggerPlugin) Status() core.ServiceStatus {
	if !p.ready {
		return core.StatusDegraded
	}
	if !p.token.IsSet() {
		return core.StatusUnhealthy
	}
	return core.StatusHealthy
}

type webhookTriggerConfigView struct {
	Token        core.Secret `json:"token"`
	AllowedHosts []string    `json:"allowed_hosts"`
	Timeout      string      `json:"timeout,omitempty"`
}

func (p *WebhookTriggerPlugin) Config() any {
	view := webhookTriggerConfigView{Token: p.token, AllowedHosts: p.allowedHosts}
	if p.timeout > 0 {
		view.Timeout = p.timeout.String()
	}
	return view
}

// Execute supports "process" with param url.
func (p *WebhookTriggerPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "process" {
		return nil, fmt.Errorf("unsupported action: %s", action)
	}
	u, _ := params["url"].(string)
	if err := p.validateURL(u); err != nil {
		return nil, err
	}
	return p.process(ctx, u)
}

func (p *WebhookTriggerPlugin) process(ctx context.Context, reelURL string) (reel.Result, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.registry.Bridge().Call(ctx, reel.NewRequest(reelURL))
}

// HTTP handler for /trigger/process
func (p *WebhookTriggerPlugin) handleProcess(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	logger := p.logger.With("request_id", requestID)

	// Optional token auth
	if p.token.IsSet() {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != p.token.Value {
			core.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := p.validateURL(req.URL); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	logger.Info("Processing trigger received via webhook",
		"url", req.URL,
		"client_ip", r.RemoteAddr,
		"user_agent", r.UserAgent())

	// Publish an event (useful for logging/auditing)
	p.registry.Publish(r.Context(), core.InternalEvent{
		Type:   eventWebhookReceived,
		Source: p.Name(),
		URL:    req.URL,
		Details: map[string]interface{}{
			"request_id": requestID,
			"client_ip":  r.RemoteAddr,
			"user_agent": r.UserAgent(),
		},
	})

	res, err := p.process(r.Context(), req.URL)
	switch {
	case errors.Is(err, reel.ErrChannelUnavailable):
		logger.Error("Pipeline not available", "error", err)
		core.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Timed out waiting for the pipeline", "timeout", p.timeout)
		core.WriteJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "timed out waiting for result"})
		return
	case err != nil:
		logger.Warn("Trigger request abandoned", "error", err)
		core.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	logger.Info("Trigger finished", "success", res.Success, "message", res.Message)
	core.WriteJSON(w, http.StatusOK, triggerResponse{RequestID: requestID, Result: res})
}

func (p *WebhookTriggerPlugin) validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid url: %q", raw)
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range p.allowedHosts {
		if host == allowed {
			return nil
		}
	}
	return fmt.Errorf("url host %q is not allowed", host)
}

func normalizeHosts(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Exported symbol that core looks up
var Plugin core.Plugin = &WebhookTriggerPlugin{}

// Main for standalone testing
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	p := &WebhookTriggerPlugin{}
	ctx := context.Background()

	if err := p.Init(ctx, logger, nil); err != nil {
		logger.Error("Init failed", "error", err)
		return
	}
	for _, arg := range os.Args[1:] {
		logger.Info("Validating url", "url", arg, "error", p.validateURL(arg))
	}
}
