package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"plugin"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/mywio/reelsaver/pkg/bridge"
)

type Module interface {
	Name() string
	Init(ctx context.Context, logger *slog.Logger, registry PluginRegistry) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Plugin interface {
	Module
	Description() string
	Capabilities() []Capability
	Status() ServiceStatus
	Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error)
}

// ConfigProvider is implemented by plugins that expose their effective config.
// Secrets must be wrapped in Secret so they are redacted.
type ConfigProvider interface {
	Config() any
}

// PluginRegistry is the view of the host handed to modules during Init.
type PluginRegistry interface {
	GetConfig() map[string]map[string]any
	GetHTTPClient() *http.Client
	GetRouter() *mux.Router
	Bridge() *bridge.Router
	RegisterEventType(desc EventTypeDesc) error
	Subscribe(pattern string, handler Listener)
	Publish(ctx context.Context, event InternalEvent)
	GetPlugin(name string) (Plugin, error)
	GetPluginsWithCapability(capability Capability) []Plugin
	ListPlugins() []Plugin
}

type ModuleManager struct {
	modules    []Module
	logger     *slog.Logger
	config     map[string]map[string]any
	httpClient *http.Client
	broker     *Broker
	bridge     *bridge.Router
	mux        *mux.Router
	server     *http.Server
	serverOnce sync.Once
	mu         sync.RWMutex
}

func NewModuleManager(logger *slog.Logger) *ModuleManager {
	m := &ModuleManager{
		modules:    []Module{},
		logger:     logger,
		config:     map[string]map[string]any{},
		httpClient: http.DefaultClient,
		broker:     NewBroker(logger.With("component", "broker")),
		bridge:     bridge.NewRouter(context.Background(), logger.With("component", "bridge")),
		mux:        mux.NewRouter(),
	}
	m.registerCoreRoutes()
	return m
}

func (m *ModuleManager) Register(mod Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules = append(m.modules, mod)
}

func (m *ModuleManager) SetConfig(cfg map[string]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg == nil {
		cfg = map[string]map[string]any{}
	}
	m.config = cfg
}

func (m *ModuleManager) GetConfig() map[string]map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *ModuleManager) SetHTTPClient(client *http.Client) {
	m.httpClient = client
}

func (m *ModuleManager) GetHTTPClient() *http.Client {
	return m.httpClient
}

func (m *ModuleManager) GetRouter() *mux.Router {
	return m.mux
}

func (m *ModuleManager) Bridge() *bridge.Router {
	return m.bridge
}

func (m *ModuleManager) RegisterEventType(desc EventTypeDesc) error {
	return m.broker.RegisterEventType(desc)
}

func (m *ModuleManager) Subscribe(pattern string, handler Listener) {
	m.broker.Subscribe(pattern, handler)
}

func (m *ModuleManager) Publish(ctx context.Context, event InternalEvent) {
	m.broker.Publish(ctx, event)
}

func (m *ModuleManager) ListPlugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Plugin{}
	for _, mod := range m.modules {
		if p, ok := mod.(Plugin); ok {
			out = append(out, p)
		}
	}
	return out
}

func (m *ModuleManager) GetPlugin(name string) (Plugin, error) {
	for _, p := range m.ListPlugins() {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("plugin %s not found", name)
}

func (m *ModuleManager) GetPluginsWithCapability(capability Capability) []Plugin {
	out := []Plugin{}
	for _, p := range m.ListPlugins() {
		for _, c := range p.Capabilities() {
			if c == capability {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func (m *ModuleManager) LoadPlugins(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Warn("Plugins directory not found", "dir", dir)
			return nil
		}
		return fmt.Errorf("failed to read plugins dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".so") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		m.logger.Info("Loading plugin", "path", path)

		p, err := plugin.Open(path)
		if err != nil {
			m.logger.Error("Failed to open plugin", "path", path, "error", err)
			continue
		}

		sym, err := p.Lookup("Plugin")
		if err != nil {
			m.logger.Error("Plugin symbol not found", "path", path, "error", err)
			continue
		}

		// Lookup returns a pointer to the exported variable.
		var plug Plugin
		switch v := sym.(type) {
		case *Plugin:
			plug = *v
		case Plugin:
			plug = v
		default:
			m.logger.Error("Plugin has wrong type", "path", path)
			continue
		}

		m.Register(plug)
		m.logger.Info("Plugin loaded successfully", "name", plug.Name())
	}
	return nil
}

func (m *ModuleManager) Init(ctx context.Context) error {
	for _, mod := range m.snapshot() {
		if err := mod.Init(ctx, m.logger.With("module", mod.Name()), m); err != nil {
			return fmt.Errorf("init %s: %w", mod.Name(), err)
		}
	}
	return nil
}

func (m *ModuleManager) Start(ctx context.Context) {
	m.startHTTPServer()
	for _, mod := range m.snapshot() {
		go func(mod Module) {
			m.logger.Info("Starting module", "module", mod.Name())
			if err := mod.Start(ctx); err != nil {
				m.logger.Error("Module failed", "module", mod.Name(), "error", err)
			}
		}(mod)
	}
}

func (m *ModuleManager) Stop(ctx context.Context) {
	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			m.logger.Error("HTTP server shutdown failed", "error", err)
		}
	}

	mods := m.snapshot()
	for i := len(mods) - 1; i >= 0; i-- {
		mod := mods[i]
		m.logger.Info("Stopping module", "module", mod.Name())
		if err := mod.Stop(ctx); err != nil {
			m.logger.Error("Error stopping module", "module", mod.Name(), "error", err)
		}
	}
	m.bridge.Close()
}

func (m *ModuleManager) snapshot() []Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Module(nil), m.modules...)
}
