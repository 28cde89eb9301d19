// Package content is the page side of the pipeline: it mirrors a feed page,
// attaches trigger controls to its videos and shows the results.
package content

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/mywio/reelsaver/pkg/config"
	"github.com/mywio/reelsaver/pkg/core"
	"github.com/mywio/reelsaver/pkg/dom"
)

const blankPage = `<!DOCTYPE html><html><head></head><body></body></html>`

// Page is the core module that owns the page context.
type Page struct {
	cfg      config.Config
	logger   *slog.Logger
	registry core.PluginRegistry

	loop     *dom.EventLoop
	doc      *dom.Document
	notifier *Notifier
	watcher  *Watcher

	running atomic.Bool
}

func NewPage(cfg config.Config) *Page {
	return &Page{cfg: cfg}
}

func (p *Page) Name() string {
	return "page"
}

func (p *Page) Description() string {
	return "Feed page mirror with reel trigger controls"
}

func (p *Page) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityTrigger, core.CapabilityAPI}
}

func (p *Page) Status() core.ServiceStatus {
	if p.running.Load() {
		return core.StatusHealthy
	}
	return core.StatusUnknown
}

func (p *Page) Config() any {
	return map[string]any{
		"page_url":              p.cfg.PageURL,
		"page_file":             p.cfg.PageFile,
		"notification_duration": p.cfg.NotificationDuration.String(),
		"rescan_interval":       p.cfg.RescanInterval.String(),
	}
}

func (p *Page) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	p.registry = registry
	p.loop = dom.NewEventLoop()

	doc, err := p.load(ctx)
	if err != nil {
		return err
	}
	p.doc = doc
	p.notifier = NewNotifier(doc, p.cfg.NotificationDuration)
	p.watcher = NewWatcher(doc, registry.Bridge(), p.notifier, p.cfg.RescanInterval, logger)

	p.registerRoutes(registry.GetRouter())
	p.logger.Info("Page loaded", "url", doc.URL)
	return nil
}

func (p *Page) load(ctx context.Context) (*dom.Document, error) {
	url := p.cfg.PageURL
	switch {
	case p.cfg.PageFile != "":
		f, err := os.Open(p.cfg.PageFile)
		if err != nil {
			return nil, fmt.Errorf("open page file: %w", err)
		}
		defer f.Close()
		if url == "" {
			abs, err := filepath.Abs(p.cfg.PageFile)
			if err != nil {
				return nil, fmt.Errorf("resolve page file: %w", err)
			}
			url = "file://" + filepath.ToSlash(abs)
		}
		return dom.Parse(f, url, p.loop)

	case url != "":
		body, err := p.fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return dom.Parse(body, url, p.loop)

	default:
		p.logger.Warn("No page_url or page_file configured, starting with a blank page")
		return dom.Parse(strings.NewReader(blankPage), "about:blank", p.loop)
	}
}

func (p *Page) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	resp, err := p.registry.GetHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (p *Page) Start(ctx context.Context) error {
	go p.loop.Run(ctx)
	p.running.Store(true)
	if err := p.watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	return nil
}

func (p *Page) Stop(ctx context.Context) error {
	defer p.running.Store(false)
	err := p.watcher.Stop(ctx)
	p.loop.Stop()
	return err
}

// Execute supports "rescan" and "click" (params: id).
func (p *Page) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "rescan":
		var attached int
		if err := p.loop.Do(ctx, func() { attached = p.watcher.Rescan("manual") }); err != nil {
			return nil, err
		}
		return attached, nil
	case "click":
		id, _ := params["id"].(string)
		return p.click(ctx, id)
	default:
		return nil, fmt.Errorf("unknown action: %s", action)
	}
}

// Document exposes the page for callers that post onto Loop.
func (p *Page) Document() *dom.Document {
	return p.doc
}

func (p *Page) Watcher() *Watcher {
	return p.watcher
}
