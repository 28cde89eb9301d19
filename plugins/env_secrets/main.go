package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mywio/reelsaver/pkg/core"
)

const eventSecretMissing core.EventTypeName = "notify_env_secret_missing"

type EnvSecretsPlugin struct {
	logger   *slog.Logger
	registry core.PluginRegistry
	keys     []string
	prefixes []string
	enabled  bool
}

var Plugin core.Plugin = &EnvSecretsPlugin{}

func (p *EnvSecretsPlugin) Name() string {
	return "env_secrets"
}

func (p *EnvSecretsPlugin) Description() string {
	return "Serves allowlisted environment variables as secrets (e.g. PROCESSOR_TOKEN)"
}

func (p *EnvSecretsPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	p.registry = registry

	if registry != nil {
		cfg := registry.GetConfig()
		if section, ok := cfg["env_secrets"]; ok {
			// lists may arrive as comma separated env values
			p.keys = stringList(section["keys"])
			p.prefixes = stringList(section["prefixes"])
		}
	}

	if len(p.keys) == 0 && len(p.prefixes) == 0 {
		p.logger.WarnContext(ctx, "env_secrets has no keys or prefixes configured, disabled")
		p.enabled = false
		return nil
	}

	p.enabled = true
	p.logger.InfoContext(ctx, "env_secrets initialized", "keys", len(p.keys), "prefixes", len(p.prefixes))
	return nil
}

func (p *EnvSecretsPlugin) Start(ctx context.Context) error {
	return nil
}

func (p *EnvSecretsPlugin) Stop(ctx context.Context) error {
	return nil
}

func (p *EnvSecretsPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilitySecrets}
}

func (p *EnvSecretsPlugin) Status() core.ServiceStatus {
	if p.enabled {
		return core.StatusHealthy
	}
	return core.StatusDegraded
}

type envSecretsConfigView struct {
	Keys     []string `json:"keys"`
	Prefixes []string `json:"prefixes"`
	Enabled  bool     `json:"enabled"`
}

func (p *EnvSecretsPlugin) Config() any {
	return envSecretsConfigView{Keys: p.keys, Prefixes: p.prefixes, Enabled: p.enabled}
}

// Execute supports "get_secrets". An optional "keys" param narrows the
// result to the named variables; it never widens the allowlist.
func (p *EnvSecretsPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "get_secrets" {
		return nil, fmt.Errorf("unknown action: %s", action)
	}
	if !p.enabled {
		return map[string]string{}, nil
	}

	secrets := make(map[string]string)

	for _, key := range p.keys {
		value, ok := os.LookupEnv(key)
		if !ok {
			p.logger.WarnContext(ctx, "Env var not set", "key", key)
			if p.registry != nil {
				p.registry.Publish(ctx, core.InternalEvent{
					Type:   eventSecretMissing,
					Source: p.Name(),
					String: fmt.Sprintf("Env var %s not set", key),
					Details: map[string]interface{}{
						"key": key,
					},
				})
			}
			continue
		}
		secrets[key] = value
	}

	if len(p.prefixes) > 0 {
		for _, env := range os.Environ() {
			key, value, ok := strings.Cut(env, "=")
			if !ok {
				continue
			}
			for _, prefix := range p.prefixes {
				if strings.HasPrefix(key, prefix) {
					if _, exists := secrets[key]; !exists {
						secrets[key] = value
					}
					break
				}
			}
		}
	}

	if wanted := stringList(params["keys"]); len(wanted) > 0 {
		filtered := make(map[string]string, len(wanted))
		for _, k := range wanted {
			if v, ok := secrets[k]; ok {
				filtered[k] = v
			}
		}
		secrets = filtered
	}

	return secrets, nil
}

func stringList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return normalizeList(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return normalizeList(out)
	case string:
		return normalizeList(strings.Split(v, ","))
	default:
		return nil
	}
}

func normalizeList(values []string) []string {
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

// main is required for package main; the package is loaded with -buildmode=plugin.
func main() {}
