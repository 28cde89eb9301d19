package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("REELSAVER_SERVICE_URL", "http://processor:5000")
	t.Setenv("REELSAVER_NOTIFICATION_DURATION", "5s")
	t.Setenv("REELSAVER_MAX_PARALLEL_WRITES", "4")
	t.Setenv("REELSAVER_PROMPT", "auto")

	cfg := LoadConfig()
	assert.Equal(t, "http://processor:5000", cfg.ServiceURL)
	assert.Equal(t, 5*time.Second, cfg.NotificationDuration)
	assert.Equal(t, 4, cfg.MaxParallelWrites)
	assert.Equal(t, PromptAuto, cfg.Prompt)
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{ServiceURL: "http://localhost:5000/"}.WithDefaults()

	assert.Equal(t, "http://localhost:5000", cfg.ServiceURL)
	assert.Equal(t, DefaultDownloadDir, cfg.DownloadDir)
	assert.Equal(t, DefaultFilename, cfg.Filename)
	assert.Equal(t, DefaultNotificationDuration, cfg.NotificationDuration)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, PromptTerminal, cfg.Prompt)
	assert.Equal(t, DefaultMaxParallelWrites, cfg.MaxParallelWrites)
	assert.Zero(t, cfg.RescanInterval)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad scheme", Config{ServiceURL: "ftp://x"}},
		{"nested filename", Config{Filename: "../video.mp4"}},
		{"unknown prompt", Config{Prompt: "gui"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MergeConfig(tt.cfg, Config{}).WithDefaults()
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigFileAndMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
core:
  service_url: http://file:5000
  notification_duration: 2s
  rescan_interval: 10
  max_parallel_writes: 3
pushover:
  token: file-token
  user: file-user
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	fileMap, err := LoadConfigFile(path)
	require.NoError(t, err)

	fileCfg := LoadConfigFromMap(fileMap["core"])
	assert.Equal(t, "http://file:5000", fileCfg.ServiceURL)
	assert.Equal(t, 2*time.Second, fileCfg.NotificationDuration)
	assert.Equal(t, 10*time.Second, fileCfg.RescanInterval)
	assert.Equal(t, 3, fileCfg.MaxParallelWrites)

	merged := MergeConfig(fileCfg, Config{ServiceURL: "http://env:5000", Filename: "env.mp4"})
	assert.Equal(t, "http://file:5000", merged.ServiceURL)
	assert.Equal(t, "env.mp4", merged.Filename)

	envMap := ConfigMap{"pushover": {"token": "env-token"}}
	out := MergeConfigMap(fileMap, envMap)
	assert.Equal(t, "file-token", out["pushover"]["token"])
	assert.Equal(t, "file-user", out["pushover"]["user"])
}

func TestLoadConfigFileMissing(t *testing.T) {
	m, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoadConfigMapFromEnvSkipsUnset(t *testing.T) {
	t.Setenv("NOTIFY_WEBHOOK_URL", "http://hook")
	m := LoadConfigMapFromEnv()
	assert.Equal(t, "http://hook", m["webhook"]["url"])
	_, ok := m["google_secret_manager"]
	if os.Getenv("GOOGLE_CLOUD_PROJECT") == "" {
		assert.False(t, ok)
	}
}
