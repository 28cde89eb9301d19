// Package coordinator is the background side of the pipeline. It answers
// processReel requests from the bridge by calling the processing service and
// handing the video to the download facility.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mywio/reelsaver/pkg/blob"
	"github.com/mywio/reelsaver/pkg/bridge"
	"github.com/mywio/reelsaver/pkg/config"
	"github.com/mywio/reelsaver/pkg/core"
	"github.com/mywio/reelsaver/pkg/download"
	"github.com/mywio/reelsaver/pkg/reel"
)

// BlobOrigin scopes the blob URLs created by the coordinator.
const BlobOrigin = "reelsaver"

// TokenSecretKey is looked up in the output of secrets plugins.
const TokenSecretKey = "PROCESSOR_TOKEN"

// Downloader enqueues a save and returns its identifier.
type Downloader interface {
	Download(ctx context.Context, opts download.Options) (int, error)
}

type Option func(*Coordinator)

// WithDownloader replaces the download manager built during Init.
func WithDownloader(d Downloader) Option {
	return func(c *Coordinator) { c.downloads = d }
}

// WithBlobStore shares a blob store with the download facility.
func WithBlobStore(s *blob.Store) Option {
	return func(c *Coordinator) { c.blobs = s }
}

// WithHTTPClient sets the client used for the processing service.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Coordinator) { c.client = client }
}

// WithPrompter sets how save prompts are answered.
func WithPrompter(p download.Prompter) Option {
	return func(c *Coordinator) { c.prompter = p }
}

type Coordinator struct {
	cfg      config.Config
	logger   *slog.Logger
	registry core.PluginRegistry

	client    *http.Client
	blobs     *blob.Store
	downloads Downloader
	manager   *download.Manager
	prompter  download.Prompter
	token     core.Secret

	health   healthState
	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(cfg config.Config, opts ...Option) *Coordinator {
	c := &Coordinator{cfg: cfg, token: core.NewSecret(cfg.ServiceToken)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Name() string {
	return "coordinator"
}

func (c *Coordinator) Description() string {
	return "Sends reels to the processing service and saves the result"
}

func (c *Coordinator) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityAPI}
}

func (c *Coordinator) Status() core.ServiceStatus {
	return c.health.status()
}

func (c *Coordinator) Config() any {
	return map[string]any{
		"service_url":   c.cfg.ServiceURL,
		"service_token": c.token,
		"download_dir":  c.cfg.DownloadDir,
		"filename":      c.cfg.Filename,
		"prompt":        c.cfg.Prompt,
		"hooks_dir":     c.cfg.HooksDir,
	}
}

func (c *Coordinator) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	c.logger = logger
	c.registry = registry
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if c.client == nil {
		// the service call has no deadline
		c.client = &http.Client{}
	}
	if c.blobs == nil {
		c.blobs = blob.NewStore(BlobOrigin)
	}
	if c.prompter == nil {
		c.prompter = promptFor(c.cfg.Prompt)
	}
	if c.downloads == nil {
		c.manager = download.NewManager(download.Config{
			Dir:         c.cfg.DownloadDir,
			HooksDir:    c.cfg.HooksDir,
			MaxParallel: c.cfg.MaxParallelWrites,
			Prompter:    c.prompter,
			OnUpdate:    c.onDownloadUpdate,
		}, c.blobs, logger.With("component", "download"))
		c.downloads = c.manager
	}

	if err := c.registerEvents(); err != nil {
		return fmt.Errorf("register events: %w", err)
	}

	registry.Bridge().Handle(reel.ActionProcessReel, c.handleProcessReel)
	c.logger.Info("Coordinator ready", "service", c.cfg.ServiceURL, "download_dir", c.cfg.DownloadDir)
	return nil
}

func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.CheckHealth(ctx); err != nil {
		c.logger.Warn("Processing service is not reachable yet", "error", err)
	}
	return nil
}

func (c *Coordinator) Stop(ctx context.Context) error {
	c.registry.Bridge().Remove(reel.ActionProcessReel)
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		if c.manager != nil {
			c.manager.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Coordinator stopped gracefully")
	case <-ctx.Done():
		c.logger.Warn("Context cancelled while waiting for requests to finish")
		return ctx.Err()
	}
	return nil
}

// Execute supports "process" (params: url) and "health".
func (c *Coordinator) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "process":
		url, _ := params["url"].(string)
		if url == "" {
			return nil, fmt.Errorf("missing url")
		}
		return c.Process(ctx, url), nil
	case "health":
		err := c.CheckHealth(ctx)
		return map[string]any{"status": c.Status(), "healthy": err == nil}, nil
	default:
		return nil, fmt.Errorf("unknown action: %s", action)
	}
}

// handleProcessReel answers asynchronously; the work outlives the send.
func (c *Coordinator) handleProcessReel(_ context.Context, req reel.Request) *bridge.Future {
	fut := bridge.NewFuture()
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		fut.Resolve(c.Process(c.ctx, req.URL))
	}()
	return fut
}

func (c *Coordinator) registerEvents() error {
	descs := []core.EventTypeDesc{
		{
			Name:        core.EventReelProcessed,
			Description: "A reel was processed and its download enqueued",
			PayloadSpec: map[string]core.PayloadField{
				"download_id": {Type: "int", Description: "Download identifier", Required: true},
				"duration":    {Type: "time.Duration", Description: "Processing time", Required: true},
			},
		},
		{
			Name:        core.EventReelFailed,
			Description: "Processing a reel failed",
			PayloadSpec: map[string]core.PayloadField{
				"stage": {Type: "string", Description: "processing or download", Required: true},
			},
		},
		{
			Name:        core.EventDownloadDone,
			Description: "A download has been written to disk",
			PayloadSpec: map[string]core.PayloadField{
				"path": {Type: "string", Description: "Saved file", Required: true},
			},
		},
		{
			Name:        core.EventDownloadFailed,
			Description: "Writing a download failed",
		},
	}
	for _, d := range descs {
		if err := c.registry.RegisterEventType(d); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) onDownloadUpdate(item download.Item) {
	if !item.State.IsFinished() {
		return
	}
	ev := core.InternalEvent{
		Source: "download",
		Details: map[string]interface{}{
			"download_id": item.ID,
			"path":        item.Path,
			"bytes":       item.Bytes,
		},
	}
	if item.State == download.StateComplete {
		ev.Type = core.EventDownloadDone
		ev.String = fmt.Sprintf("Saved %s", item.Filename)
	} else {
		ev.Type = core.EventDownloadFailed
		ev.Details["error"] = item.Error
		ev.String = fmt.Sprintf("Saving %s failed: %s", item.Filename, item.Error)
	}
	c.registry.Publish(context.Background(), ev)
}

func promptFor(mode string) download.Prompter {
	if mode == config.PromptAuto {
		return download.AutoAccept{}
	}
	return download.NewTerminalPrompter()
}
