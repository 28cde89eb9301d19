package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"github.com/mywio/reelsaver/pkg/core"
)

// accessFunc reads the payload of a fully qualified secret version.
type accessFunc func(ctx context.Context, name string) ([]byte, error)

type cachedSecret struct {
	value     string
	fetchedAt time.Time
}

type SecretManagerPlugin struct {
	client    *secretmanager.Client
	access    accessFunc
	logger    *slog.Logger
	projectID string
	secrets   map[string]string // env-style key -> secret version name
	cacheTTL  time.Duration

	mu    sync.Mutex
	cache map[string]cachedSecret
}

type secretManagerConfig struct {
	ProjectID string            `yaml:"project_id"`
	Secrets   map[string]string `yaml:"secrets"`
	CacheTTL  string            `yaml:"cache_ttl"`
}

var Plugin core.Plugin = &SecretManagerPlugin{}

func (p *SecretManagerPlugin) Name() string {
	return "google_secret_manager"
}

func (p *SecretManagerPlugin) Description() string {
	return "Reads service secrets such as PROCESSOR_TOKEN from Google Secret Manager"
}

func (p *SecretManagerPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	p.cache = make(map[string]cachedSecret)
	p.cacheTTL = 5 * time.Minute

	if registry != nil {
		if section, ok := registry.GetConfig()["google_secret_manager"]; ok {
			var scfg secretManagerConfig
			if err := core.DecodeConfigSection(section, &scfg); err != nil {
				p.logger.WarnContext(ctx, "Invalid google_secret_manager config", "error", err)
			}
			p.projectID = strings.TrimSpace(scfg.ProjectID)
			p.secrets = scfg.Secrets
			if scfg.CacheTTL != "" {
				if d, err := time.ParseDuration(scfg.CacheTTL); err == nil {
					p.cacheTTL = d
				} else {
					p.logger.WarnContext(ctx, "Invalid cache_ttl", "value", scfg.CacheTTL, "error", err)
				}
			}
		}
	}

	if p.projectID == "" || len(p.secrets) == 0 {
		p.logger.WarnContext(ctx, "google_secret_manager has no project_id or secrets configured, disabled")
		return nil
	}

	if p.access == nil {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			// stay registered but report unhealthy; other secrets plugins still work
			p.logger.ErrorContext(ctx, "Failed to create Secret Manager client", "error", err)
			return nil
		}
		p.client = client
		p.access = func(ctx context.Context, name string) ([]byte, error) {
			resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
			if err != nil {
				return nil, err
			}
			return resp.GetPayload().GetData(), nil
		}
	}
	p.logger.InfoContext(ctx, "google_secret_manager initialized", "project", p.projectID, "secrets", len(p.secrets))
	return nil
}

func (p *SecretManagerPlugin) Start(ctx context.Context) error {
	p.logger.Info("Secret Manager Plugin Started")
	return nil
}

func (p *SecretManagerPlugin) Stop(ctx context.Context) error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *SecretManagerPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilitySecrets}
}

func (p *SecretManagerPlugin) Status() core.ServiceStatus {
	switch {
	case p.projectID == "" || len(p.secrets) == 0:
		return core.StatusDegraded
	case p.access == nil:
		return core.StatusUnhealthy
	default:
		return core.StatusHealthy
	}
}

type secretManagerConfigView struct {
	ProjectID string   `json:"project_id"`
	Keys      []string `json:"keys"`
	CacheTTL  string   `json:"cache_ttl"`
}

func (p *SecretManagerPlugin) Config() any {
	keys := make([]string, 0, len(p.secrets))
	for k := range p.secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return secretManagerConfigView{ProjectID: p.projectID, Keys: keys, CacheTTL: p.cacheTTL.String()}
}

// Execute supports "get_secrets" with an optional "keys" filter.
func (p *SecretManagerPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "get_secrets" {
		return nil, fmt.Errorf("unknown action: %s", action)
	}
	out := map[string]string{}
	if p.access == nil {
		return out, nil
	}

	wanted := requestedKeys(params)
	for key, secret := range p.secrets {
		if len(wanted) > 0 {
			if _, ok := wanted[key]; !ok {
				continue
			}
		}
		value, err := p.get(ctx, key, secret)
		if err != nil {
			return nil, fmt.Errorf("access secret %s: %w", key, err)
		}
		out[key] = value
	}
	return out, nil
}

func (p *SecretManagerPlugin) get(ctx context.Context, key, secret string) (string, error) {
	p.mu.Lock()
	cached, ok := p.cache[key]
	p.mu.Unlock()
	if ok && time.Since(cached.fetchedAt) < p.cacheTTL {
		return cached.value, nil
	}

	data, err := p.access(ctx, p.versionName(secret))
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(string(data))

	p.mu.Lock()
	p.cache[key] = cachedSecret{value: value, fetchedAt: time.Now()}
	p.mu.Unlock()
	return value, nil
}

// versionName expands a short secret id to its latest version.
func (p *SecretManagerPlugin) versionName(secret string) string {
	if strings.HasPrefix(secret, "projects/") {
		if !strings.Contains(secret, "/versions/") {
			return secret + "/versions/latest"
		}
		return secret
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", p.projectID, secret)
}

func requestedKeys(params map[string]interface{}) map[string]struct{} {
	out := map[string]struct{}{}
	switch v := params["keys"].(type) {
	case []string:
		for _, k := range v {
			out[k] = struct{}{}
		}
	case []interface{}:
		for _, k := range v {
			out[fmt.Sprint(k)] = struct{}{}
		}
	}
	return out
}

// main is required for package main; the package is loaded with -buildmode=plugin.
func main() {}
