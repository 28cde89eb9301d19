// plugins/notifier_pushover/pushover.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/mywio/reelsaver/pkg/core"
)

const defaultPushoverURL = "https://api.pushover.net/1/messages.json"

type PushoverNotifier struct {
	logger        *slog.Logger
	client        *http.Client
	apiURL        string
	token         core.Secret
	user          string
	title         string
	priorities    map[string]int
	enabled       bool
	subscriptions []string
}

type pushoverConfig struct {
	Token      string         `yaml:"token"`
	User       string         `yaml:"user"`
	Title      string         `yaml:"title"`
	APIURL     string         `yaml:"api_url"`
	Priorities map[string]int `yaml:"priorities"`
}

func (n *PushoverNotifier) Name() string {
	return "pushover"
}

func (n *PushoverNotifier) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	n.logger = logger
	var subscribeProvided bool
	var subscribePatterns []string
	if registry != nil {
		n.client = registry.GetHTTPClient()
		cfg := registry.GetConfig()
		if section, ok := cfg["pushover"]; ok {
			if _, okSub := section["subscribe"]; okSub {
				subscribeProvided = true
			}
			var pushoverCfg pushoverConfig
			if err := core.DecodeConfigSection(section, &pushoverCfg); err != nil {
				n.logger.WarnContext(ctx, "Invalid pushover config", "error", err)
			}
			n.token = core.NewSecret(pushoverCfg.Token)
			n.user = pushoverCfg.User
			n.title = pushoverCfg.Title
			n.apiURL = pushoverCfg.APIURL
			n.priorities = pushoverCfg.Priorities
			subscribePatterns = parseSubscribePatterns(section)
		}
	}
	if n.client == nil {
		n.client = http.DefaultClient
	}
	if n.apiURL == "" {
		n.apiURL = defaultPushoverURL
	}
	if n.title == "" {
		n.title = "reelsaver"
	}
	if n.priorities == nil {
		n.priorities = map[string]int{string(core.EventReelFailed): 1}
	}
	if !n.token.IsSet() || n.user == "" {
		n.logger.WarnContext(ctx, "Pushover token or user not set, notifications disabled")
		n.enabled = false
		return nil
	}
	n.enabled = true
	n.logger.InfoContext(ctx, "Pushover Notifier Initialized")

	if registry != nil {
		if !subscribeProvided {
			subscribePatterns = []string{"notify_*"}
		}
		n.subscriptions = append([]string(nil), subscribePatterns...)
		for _, pattern := range subscribePatterns {
			registry.Subscribe(pattern, n.process)
		}
		if len(subscribePatterns) == 0 {
			n.logger.InfoContext(ctx, "Pushover notifier has no subscriptions configured; skipping event registration")
		}
	}

	return nil
}

func (n *PushoverNotifier) Start(ctx context.Context) error {
	return nil
}

func (n *PushoverNotifier) Stop(ctx context.Context) error {
	return nil
}

func (n *PushoverNotifier) Description() string {
	return "Pushover notifier for reel processing results"
}

func (n *PushoverNotifier) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityNotifier}
}

func (n *PushoverNotifier) Status() core.ServiceStatus {
	if n.enabled {
		return core.StatusHealthy
	}
	return core.StatusDegraded
}

func (n *PushoverNotifier) process(ctx context.Context, event core.InternalEvent) {
	if !n.enabled {
		return
	}
	if err := n.send(ctx, n.title, formatEvent(event), n.priorities[string(event.Type)]); err != nil {
		n.logger.ErrorContext(ctx, "Failed to send Pushover notification", "event", event.Type, "error", err)
	}
}

// Execute supports "notify" with params message, title and priority.
func (n *PushoverNotifier) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "notify" {
		return nil, fmt.Errorf("unsupported action: %s", action)
	}
	if !n.enabled {
		return nil, fmt.Errorf("pushover notifier is disabled")
	}
	message, _ := params["message"].(string)
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("missing message")
	}
	title, _ := params["title"].(string)
	if title == "" {
		title = n.title
	}
	priority, _ := params["priority"].(int)

	if err := n.send(ctx, title, message, priority); err != nil {
		return nil, err
	}
	return map[string]string{"status": "delivered"}, nil
}

// Exported symbol that core looks up
var Plugin core.Plugin = &PushoverNotifier{}

type pushoverConfigView struct {
	Token      core.Secret    `json:"token"`
	User       string         `json:"user"`
	Title      string         `json:"title"`
	Priorities map[string]int `json:"priorities,omitempty"`
	Subscribe  []string       `json:"subscribe,omitempty"`
	Enabled    bool           `json:"enabled"`
}

func (n *PushoverNotifier) Config() any {
	return pushoverConfigView{
		Token:      n.token,
		User:       n.user,
		Title:      n.title,
		Priorities: n.priorities,
		Subscribe:  append([]string(nil), n.subscriptions...),
		Enabled:    n.enabled,
	}
}

// formatEvent renders an event as a short plain-text message.
func formatEvent(event core.InternalEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", event.Type, event.String)
	if event.URL != "" {
		fmt.Fprintf(&b, "\nReel: %s", event.URL)
	}
	keys := make([]string, 0, len(event.Details))
	for k := range event.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, event.Details[k])
	}
	return b.String()
}

func (n *PushoverNotifier) send(ctx context.Context, title, message string, priority int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	payload := map[string]interface{}{
		"token":    n.token.Value,
		"user":     n.user,
		"message":  message,
		"title":    title,
		"priority": priority,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover API error: %d", resp.StatusCode)
	}

	n.logger.InfoContext(ctx, "Pushover notification delivered successfully")
	return nil
}

func normalizePatterns(values []string) []string {
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func parseSubscribePatterns(section map[string]any) []string {
	raw, ok := section["subscribe"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return normalizePatterns(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return normalizePatterns(out)
	case string:
		parts := strings.Split(v, ",")
		return normalizePatterns(parts)
	default:
		return normalizePatterns([]string{fmt.Sprint(v)})
	}
}

// main is required for package main; the package is loaded with -buildmode=plugin.
func main() {}
