package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultServiceURL           = "http://127.0.0.1:5000"
	DefaultDownloadDir          = "./downloads"
	DefaultFilename             = "watermarked_video.mp4"
	DefaultNotificationDuration = 3 * time.Second
	DefaultHTTPAddr             = "127.0.0.1:8090"
	DefaultPluginsDir           = "plugins"
	DefaultMaxParallelWrites    = 2
	DefaultPrompt               = PromptTerminal
)

// Save prompt modes
const (
	PromptTerminal = "terminal"
	PromptAuto     = "auto"
)

type Config struct {
	ServiceURL           string
	ServiceToken         string
	PageURL              string
	PageFile             string
	DownloadDir          string
	Filename             string
	Prompt               string
	NotificationDuration time.Duration
	RescanInterval       time.Duration // 0 disables the periodic rescan
	HooksDir             string
	HTTPAddr             string
	PluginsDir           string
	LogLevel             string
	LogFormat            string
	MaxParallelWrites    int
}

// LoadConfig reads the core config from REELSAVER_* environment variables.
// Unset values stay empty so a config file can fill them in.
func LoadConfig() Config {
	notify, _ := time.ParseDuration(os.Getenv("REELSAVER_NOTIFICATION_DURATION"))
	rescan, _ := time.ParseDuration(os.Getenv("REELSAVER_RESCAN_INTERVAL"))
	writes, _ := strconv.Atoi(os.Getenv("REELSAVER_MAX_PARALLEL_WRITES"))

	return Config{
		ServiceURL:           os.Getenv("REELSAVER_SERVICE_URL"),
		ServiceToken:         os.Getenv("REELSAVER_SERVICE_TOKEN"),
		PageURL:              os.Getenv("REELSAVER_PAGE_URL"),
		PageFile:             os.Getenv("REELSAVER_PAGE_FILE"),
		DownloadDir:          os.Getenv("REELSAVER_DOWNLOAD_DIR"),
		Filename:             os.Getenv("REELSAVER_FILENAME"),
		Prompt:               os.Getenv("REELSAVER_PROMPT"),
		NotificationDuration: notify,
		RescanInterval:       rescan,
		HooksDir:             os.Getenv("REELSAVER_HOOKS_DIR"),
		HTTPAddr:             os.Getenv("REELSAVER_HTTP_ADDR"),
		PluginsDir:           os.Getenv("PLUGINS_DIR"),
		LogLevel:             os.Getenv("LOG_LEVEL"),
		LogFormat:            os.Getenv("LOG_FORMAT"),
		MaxParallelWrites:    writes,
	}
}

// WithDefaults fills every unset field with its default.
func (c Config) WithDefaults() Config {
	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	c.ServiceURL = strings.TrimSuffix(c.ServiceURL, "/")
	if c.DownloadDir == "" {
		c.DownloadDir = DefaultDownloadDir
	}
	if c.Filename == "" {
		c.Filename = DefaultFilename
	}
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}
	if c.NotificationDuration <= 0 {
		c.NotificationDuration = DefaultNotificationDuration
	}
	if c.RescanInterval < 0 {
		c.RescanInterval = 0
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = DefaultHTTPAddr
	}
	if c.PluginsDir == "" {
		c.PluginsDir = DefaultPluginsDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MaxParallelWrites <= 0 {
		c.MaxParallelWrites = DefaultMaxParallelWrites
	}
	return c
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.ServiceURL, "http://") && !strings.HasPrefix(c.ServiceURL, "https://") {
		return fmt.Errorf("service_url must be an http(s) URL, got %q", c.ServiceURL)
	}
	if strings.ContainsAny(c.Filename, `/\`) {
		return fmt.Errorf("filename must not contain directories, got %q", c.Filename)
	}
	switch c.Prompt {
	case PromptTerminal, PromptAuto:
	default:
		return fmt.Errorf("prompt must be %q or %q, got %q", PromptTerminal, PromptAuto, c.Prompt)
	}
	return nil
}

// ConfigMap is a sectioned configuration map keyed by plugin name (or "core").
// Values are YAML-friendly scalars or nested maps/lists.
type ConfigMap map[string]map[string]any

// LoadConfigFile loads a YAML config file from disk.
// Returns an empty map if the file does not exist or is empty.
func LoadConfigFile(path string) (ConfigMap, error) {
	if path == "" {
		return ConfigMap{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ConfigMap{}, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return ConfigMap{}, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	return normalizeConfigMap(raw), nil
}

// LoadConfigMapFromEnv builds the plugin sections from environment variables.
// Unset variables are left out so file values are not overwritten by blanks.
func LoadConfigMapFromEnv() ConfigMap {
	cfg := ConfigMap{}
	set := func(section, key, env string) {
		v, ok := os.LookupEnv(env)
		if !ok || v == "" {
			return
		}
		if cfg[section] == nil {
			cfg[section] = map[string]any{}
		}
		cfg[section][key] = v
	}

	set("pushover", "token", "NOTIFY_PUSHOVER_TOKEN")
	set("pushover", "user", "NOTIFY_PUSHOVER_USER")
	set("pushover", "subscribe", "NOTIFY_PUSHOVER_EVENTS")
	set("webhook", "url", "NOTIFY_WEBHOOK_URL")
	set("webhook", "subscribe", "NOTIFY_WEBHOOK_EVENTS")
	set("webhook_trigger", "token", "WEBHOOK_TOKEN")
	set("env_secrets", "keys", "ENV_SECRETS_KEYS")
	set("env_secrets", "prefixes", "ENV_SECRETS_PREFIXES")
	set("google_secret_manager", "project_id", "GOOGLE_CLOUD_PROJECT")
	set("release_check", "repository", "RELEASE_CHECK_REPOSITORY")
	set("release_check", "token", "GITHUB_TOKEN")
	set("release_check", "current_version", "REELSAVER_VERSION")
	return cfg
}

// LoadConfigFromMap builds a core Config from the "core" section of a config file.
func LoadConfigFromMap(m map[string]any) Config {
	cfg := Config{}

	if v, ok := getString(m, "service_url"); ok {
		cfg.ServiceURL = v
	}
	if v, ok := getString(m, "service_token"); ok {
		cfg.ServiceToken = v
	}
	if v, ok := getString(m, "page_url"); ok {
		cfg.PageURL = v
	}
	if v, ok := getString(m, "page_file"); ok {
		cfg.PageFile = v
	}
	if v, ok := getString(m, "download_dir"); ok {
		cfg.DownloadDir = v
	}
	if v, ok := getString(m, "filename"); ok {
		cfg.Filename = v
	}
	if v, ok := getString(m, "prompt"); ok {
		cfg.Prompt = strings.ToLower(v)
	}
	if v, ok := getDuration(m, "notification_duration"); ok {
		cfg.NotificationDuration = v
	}
	if v, ok := getDuration(m, "rescan_interval"); ok {
		cfg.RescanInterval = v
	}
	if v, ok := getString(m, "hooks_dir"); ok {
		cfg.HooksDir = v
	}
	if v, ok := getString(m, "http_addr"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := getString(m, "plugins_dir"); ok {
		cfg.PluginsDir = v
	}
	if v, ok := getString(m, "log_level"); ok {
		cfg.LogLevel = v
	}
	if v, ok := getString(m, "log_format"); ok {
		cfg.LogFormat = v
	}
	if v, ok := getInt(m, "max_parallel_writes"); ok {
		cfg.MaxParallelWrites = v
	}

	return cfg
}

// MergeConfig uses primary values when set, otherwise falls back.
func MergeConfig(primary, fallback Config) Config {
	out := primary
	pick := func(dst *string, fb string) {
		if *dst == "" {
			*dst = fb
		}
	}
	pick(&out.ServiceURL, fallback.ServiceURL)
	pick(&out.ServiceToken, fallback.ServiceToken)
	pick(&out.PageURL, fallback.PageURL)
	pick(&out.PageFile, fallback.PageFile)
	pick(&out.DownloadDir, fallback.DownloadDir)
	pick(&out.Filename, fallback.Filename)
	pick(&out.Prompt, fallback.Prompt)
	pick(&out.HooksDir, fallback.HooksDir)
	pick(&out.HTTPAddr, fallback.HTTPAddr)
	pick(&out.PluginsDir, fallback.PluginsDir)
	pick(&out.LogLevel, fallback.LogLevel)
	pick(&out.LogFormat, fallback.LogFormat)
	if out.NotificationDuration == 0 {
		out.NotificationDuration = fallback.NotificationDuration
	}
	if out.RescanInterval == 0 {
		out.RescanInterval = fallback.RescanInterval
	}
	if out.MaxParallelWrites == 0 {
		out.MaxParallelWrites = fallback.MaxParallelWrites
	}
	return out
}

// MergeConfigMap merges primary over fallback (primary wins).
func MergeConfigMap(primary, fallback ConfigMap) ConfigMap {
	out := cloneConfigMap(fallback)
	for section, vals := range primary {
		if len(vals) == 0 {
			continue
		}
		merged := map[string]any{}
		if existing, ok := out[section]; ok {
			for k, v := range existing {
				merged[k] = v
			}
		}
		for k, v := range vals {
			merged[k] = v
		}
		out[section] = merged
	}
	return out
}

func cloneConfigMap(src ConfigMap) ConfigMap {
	dst := ConfigMap{}
	for section, vals := range src {
		sectionCopy := map[string]any{}
		for k, v := range vals {
			sectionCopy[k] = v
		}
		dst[section] = sectionCopy
	}
	return dst
}

func normalizeConfigMap(raw map[string]any) ConfigMap {
	out := ConfigMap{}
	for key, value := range raw {
		if m := normalizeStringMap(value); m != nil {
			out[key] = m
		}
	}
	return out
}

func normalizeStringMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		out := map[string]any{}
		for k, v := range t {
			out[k] = normalizeValue(v)
		}
		return out
	case map[any]any:
		out := map[string]any{}
		for k, v := range t {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = normalizeValue(v)
		}
		return out
	default:
		return nil
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any, map[any]any:
		return normalizeStringMap(t)
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, normalizeValue(item))
		}
		return out
	default:
		return v
	}
}

func getString(m map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			switch t := v.(type) {
			case string:
				return strings.TrimSpace(t), true
			default:
				return strings.TrimSpace(fmt.Sprint(t)), true
			}
		}
	}
	return "", false
}

func getInt(m map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case int:
				return t, true
			case int64:
				return int(t), true
			case float64:
				return int(t), true
			case string:
				n, err := strconv.Atoi(strings.TrimSpace(t))
				if err == nil {
					return n, true
				}
			}
		}
	}
	return 0, false
}

func getDuration(m map[string]any, keys ...string) (time.Duration, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case time.Duration:
				return t, true
			case string:
				d, err := time.ParseDuration(strings.TrimSpace(t))
				if err == nil {
					return d, true
				}
			case int:
				return time.Duration(t) * time.Second, true
			case int64:
				return time.Duration(t) * time.Second, true
			case float64:
				return time.Duration(t * float64(time.Second)), true
			}
		}
	}
	return 0, false
}
