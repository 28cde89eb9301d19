package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mywio/reelsaver/pkg/core"
)

func newManager(t *testing.T, section map[string]any) (*core.ModuleManager, *slog.Logger) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	mgr := core.NewModuleManager(logger)
	t.Cleanup(mgr.Bridge().Close)
	if section != nil {
		mgr.SetConfig(map[string]map[string]any{"env_secrets": section})
	}
	return mgr, logger
}

func TestEnvSecretsPlugin_AllowsKeysAndPrefixes(t *testing.T) {
	t.Setenv("PROCESSOR_TOKEN", "tok")
	t.Setenv("REEL_EXTRA", "abc123")

	mgr, logger := newManager(t, map[string]any{
		"keys":     []string{"PROCESSOR_TOKEN", "MISSING_SECRET_VAR"},
		"prefixes": []string{"REEL_"},
	})

	p := &EnvSecretsPlugin{}
	require.NoError(t, p.Init(context.Background(), logger, mgr))

	res, err := p.Execute(context.Background(), "get_secrets", map[string]interface{}{})
	require.NoError(t, err)

	secrets, ok := res.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "tok", secrets["PROCESSOR_TOKEN"])
	assert.Equal(t, "abc123", secrets["REEL_EXTRA"])
	_, exists := secrets["MISSING_SECRET_VAR"]
	assert.False(t, exists)
}

func TestEnvSecretsPlugin_NarrowsToRequestedKeys(t *testing.T) {
	t.Setenv("PROCESSOR_TOKEN", "tok")
	t.Setenv("OTHER_SECRET", "x")

	mgr, logger := newManager(t, map[string]any{"keys": "PROCESSOR_TOKEN"})
	p := &EnvSecretsPlugin{}
	require.NoError(t, p.Init(context.Background(), logger, mgr))

	res, err := p.Execute(context.Background(), "get_secrets", map[string]interface{}{
		"keys": []string{"PROCESSOR_TOKEN", "OTHER_SECRET"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PROCESSOR_TOKEN": "tok"}, res)
}

func TestEnvSecretsPlugin_PublishesMissingKeys(t *testing.T) {
	mgr, logger := newManager(t, map[string]any{"keys": []string{"MISSING_SECRET_VAR"}})
	missing := make(chan core.InternalEvent, 1)
	mgr.Subscribe(string(eventSecretMissing), func(ctx context.Context, ev core.InternalEvent) {
		missing <- ev
	})

	p := &EnvSecretsPlugin{}
	require.NoError(t, p.Init(context.Background(), logger, mgr))
	_, err := p.Execute(context.Background(), "get_secrets", nil)
	require.NoError(t, err)

	select {
	case ev := <-missing:
		assert.Equal(t, "MISSING_SECRET_VAR", ev.Details["key"])
	case <-time.After(time.Second):
		t.Fatal("missing key was not reported")
	}
}

func TestEnvSecretsPlugin_DisabledWithoutConfig(t *testing.T) {
	mgr, logger := newManager(t, nil)

	p := &EnvSecretsPlugin{}
	require.NoError(t, p.Init(context.Background(), logger, mgr))
	assert.Equal(t, core.StatusDegraded, p.Status())

	res, err := p.Execute(context.Background(), "get_secrets", map[string]interface{}{})
	assert.NoError(t, err)

	secrets, ok := res.(map[string]string)
	assert.True(t, ok)
	assert.Len(t, secrets, 0)
}

func TestEnvSecretsPlugin_UnknownAction(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	p := &EnvSecretsPlugin{}
	err := p.Init(context.Background(), logger, nil)
	assert.NoError(t, err)

	_, err = p.Execute(context.Background(), "nope", map[string]interface{}{})
	assert.Error(t, err)
}
