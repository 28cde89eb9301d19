package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/mywio/reelsaver/pkg/config"
	"github.com/mywio/reelsaver/pkg/content"
	"github.com/mywio/reelsaver/pkg/coordinator"
	"github.com/mywio/reelsaver/pkg/core"
)

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if err, ok := a.Value.Any().(error); ok {
				aErr := tint.Err(err)
				aErr.Key = a.Key
				return aErr
			}
			return a
		},
	}))
}

func main() {
	// .env is optional, variables may come from the environment
	envErr := godotenv.Load()

	// Load Config
	cfgEnv := config.LoadConfig()
	cfgMapEnv := config.LoadConfigMapFromEnv()
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfgMapFile, fileErr := config.LoadConfigFile(configPath)
	cfgMap := config.MergeConfigMap(cfgMapFile, cfgMapEnv)

	cfg := cfgEnv
	if coreSection, ok := cfgMapFile["core"]; ok {
		cfgFile := config.LoadConfigFromMap(coreSection)
		cfg = config.MergeConfig(cfgFile, cfgEnv)
	}
	cfg = cfg.WithDefaults()

	// Setup Logger
	logger := newLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	if envErr != nil && !os.IsNotExist(envErr) {
		logger.Warn("Failed to load .env file", "error", envErr)
	}
	if fileErr != nil {
		logger.Error("Failed to load config file", "path", configPath, "error", fileErr)
	}

	// Validation
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// the HTTP API reads its address from the core section
	if cfgMap["core"] == nil {
		cfgMap["core"] = map[string]any{}
	}
	cfgMap["core"]["http_addr"] = cfg.HTTPAddr

	// Setup Module Manager
	mgr := core.NewModuleManager(logger)
	mgr.SetConfig(cfgMap)
	mgr.SetHTTPClient(&http.Client{Timeout: 15 * time.Second})

	// Load Plugins
	if err := mgr.LoadPlugins(cfg.PluginsDir); err != nil {
		logger.Error("Failed to load plugins", "error", err)
	}

	// Register Modules
	// background before page so the page sees a receiver from its first click
	mgr.Register(coordinator.New(cfg))
	mgr.Register(content.NewPage(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Init(ctx); err != nil {
		logger.Error("Failed to initialize modules", "error", err)
		os.Exit(1)
	}

	mgr.Start(ctx)
	logger.Info("reelsaver running", "api", cfg.HTTPAddr, "service", cfg.ServiceURL)

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down...", "signal", sig)

	// Graceful Shutdown
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	mgr.Stop(stopCtx)
	cancel()
	logger.Info("Shutdown complete")
}
