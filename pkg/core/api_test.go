package core

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testPlugin struct {
	name string
	caps []Capability
}

func (p *testPlugin) Name() string { return p.name }
func (p *testPlugin) Init(ctx context.Context, logger *slog.Logger, registry PluginRegistry) error {
	return nil
}
func (p *testPlugin) Start(ctx context.Context) error { return nil }
func (p *testPlugin) Stop(ctx context.Context) error  { return nil }
func (p *testPlugin) Description() string             { return "test plugin" }
func (p *testPlugin) Capabilities() []Capability {
	if p.caps != nil {
		return p.caps
	}
	return []Capability{CapabilityAPI}
}
func (p *testPlugin) Status() ServiceStatus { return StatusHealthy }
func (p *testPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	return nil, nil
}
func (p *testPlugin) Config() any {
	return map[string]any{"token": Secret{Value: "abc"}}
}

func newTestManager() *ModuleManager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewModuleManager(logger)
}

func TestPluginsAPIList_NoConfig(t *testing.T) {
	mgr := newTestManager()
	mgr.Register(&testPlugin{name: "test"})

	req := httptest.NewRequest(http.MethodGet, "/api/plugins", nil)
	rr := httptest.NewRecorder()
	mgr.GetRouter().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var out []pluginInfo
	err := json.NewDecoder(rr.Body).Decode(&out)
	assert.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, "test", out[0].Name)
	assert.Nil(t, out[0].Config)
}

func TestPluginsAPIList_WithConfig(t *testing.T) {
	mgr := newTestManager()
	mgr.Register(&testPlugin{name: "test"})

	req := httptest.NewRequest(http.MethodGet, "/api/plugins?include_config=true", nil)
	rr := httptest.NewRecorder()
	mgr.GetRouter().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var out []pluginInfo
	err := json.NewDecoder(rr.Body).Decode(&out)
	assert.NoError(t, err)
	assert.Len(t, out, 1)
	cfg, ok := out[0].Config.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "REDACTED", cfg["token"])
}

func TestPluginsAPIDetail(t *testing.T) {
	mgr := newTestManager()
	mgr.Register(&testPlugin{name: "test"})

	req := httptest.NewRequest(http.MethodGet, "/api/plugins/test", nil)
	rr := httptest.NewRecorder()
	mgr.GetRouter().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var out pluginInfo
	err := json.NewDecoder(rr.Body).Decode(&out)
	assert.NoError(t, err)
	assert.Equal(t, "test", out.Name)
	cfg, ok := out.Config.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "REDACTED", cfg["token"])
}

func TestPluginsAPIDetail_NotFound(t *testing.T) {
	mgr := newTestManager()

	req := httptest.NewRequest(http.MethodGet, "/api/plugins/missing", nil)
	rr := httptest.NewRecorder()
	mgr.GetRouter().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	mgr := newTestManager()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	mgr.GetRouter().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGetPluginsWithCapability(t *testing.T) {
	mgr := newTestManager()
	mgr.Register(&testPlugin{name: "a", caps: []Capability{CapabilitySecrets}})
	mgr.Register(&testPlugin{name: "b", caps: []Capability{CapabilityNotifier}})

	secrets := mgr.GetPluginsWithCapability(CapabilitySecrets)
	assert.Len(t, secrets, 1)
	assert.Equal(t, "a", secrets[0].Name())
	assert.Empty(t, mgr.GetPluginsWithCapability(CapabilityUpdates))
}
