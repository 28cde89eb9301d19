package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/mod/semver"
	"golang.org/x/oauth2"

	"github.com/mywio/reelsaver/pkg/core"
)

type ReleaseCheckPlugin struct {
	repository     string
	owner, repo    string
	token          core.Secret
	currentVersion string
	interval       time.Duration
	baseURL        string

	client   *github.Client
	logger   *slog.Logger
	registry core.PluginRegistry

	mu       sync.Mutex
	latest   string
	lastErr  error
	notified string

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

type releaseCheckConfig struct {
	Repository     string `yaml:"repository"`
	Token          string `yaml:"token"`
	CurrentVersion string `yaml:"current_version"`
	Interval       string `yaml:"interval"`
	BaseURL        string `yaml:"base_url"`
}

type checkResult struct {
	Current         string `json:"current"`
	Latest          string `json:"latest"`
	URL             string `json:"url,omitempty"`
	UpdateAvailable bool   `json:"update_available"`
}

var Plugin core.Plugin = &ReleaseCheckPlugin{}

func (p *ReleaseCheckPlugin) Name() string {
	return "release_check"
}

func (p *ReleaseCheckPlugin) Description() string {
	return "Checks GitHub for a newer reelsaver release"
}

func (p *ReleaseCheckPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	p.registry = registry
	p.stopCh = make(chan struct{})

	httpClient := http.DefaultClient
	if registry != nil {
		if section, ok := registry.GetConfig()["release_check"]; ok {
			var rcfg releaseCheckConfig
			if err := core.DecodeConfigSection(section, &rcfg); err != nil {
				p.logger.Warn("Invalid release_check config", "error", err)
			}
			p.repository = strings.TrimSpace(rcfg.Repository)
			p.token = core.NewSecret(rcfg.Token)
			p.currentVersion = strings.TrimSpace(rcfg.CurrentVersion)
			p.baseURL = rcfg.BaseURL
			if rcfg.Interval != "" {
				d, err := time.ParseDuration(rcfg.Interval)
				if err != nil {
					p.logger.Warn("Invalid release_check interval", "interval", rcfg.Interval, "error", err)
				}
				p.interval = d
			}
		}
		if c := registry.GetHTTPClient(); c != nil {
			httpClient = c
		}
	}

	if p.repository == "" {
		p.logger.Warn("release_check repository not set, update checks disabled")
		return nil
	}
	owner, repo, ok := strings.Cut(p.repository, "/")
	if !ok || owner == "" || repo == "" {
		return fmt.Errorf("release_check repository must be owner/name, got %q", p.repository)
	}
	p.owner, p.repo = owner, repo

	if p.token.IsSet() {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.token.Value})
		httpClient = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, httpClient), ts)
	}
	p.client = github.NewClient(httpClient)
	if p.baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(p.baseURL, "/") + "/")
		if err != nil {
			return fmt.Errorf("invalid release_check base_url: %w", err)
		}
		p.client.BaseURL = u
	}

	if registry != nil {
		if err := registry.RegisterEventType(core.EventTypeDesc{
			Name:        core.EventUpdateAvailable,
			Description: "A newer release is published on GitHub",
			PayloadSpec: map[string]core.PayloadField{
				"current": {Type: "string", Description: "Running version", Required: true},
				"latest":  {Type: "string", Description: "Latest release tag", Required: true},
			},
		}); err != nil {
			p.logger.Debug("Event type already registered", "event", core.EventUpdateAvailable, "error", err)
		}
	}
	return nil
}

func (p *ReleaseCheckPlugin) Start(ctx context.Context) error {
	if p.client == nil || p.started {
		return nil
	}
	p.started = true
	p.logger.Info("Starting release check", "repository", p.repository, "current", p.currentVersion, "interval", p.interval)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// Run once immediately
		p.runCheck(ctx)
		if p.interval <= 0 {
			return
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.runCheck(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (p *ReleaseCheckPlugin) Stop(ctx context.Context) error {
	if !p.started {
		return nil
	}
	p.started = false
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("Context cancelled while waiting for release check to stop")
		return ctx.Err()
	}
}

func (p *ReleaseCheckPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityUpdates}
}

func (p *ReleaseCheckPlugin) Status() core.ServiceStatus {
	if p.client == nil {
		return core.StatusDegraded
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastErr != nil {
		return core.StatusUnhealthy
	}
	return core.StatusHealthy
}

type releaseCheckConfigView struct {
	Repository     string      `json:"repository"`
	Token          core.Secret `json:"token"`
	CurrentVersion string      `json:"current_version"`
	Interval       string      `json:"interval,omitempty"`
	Latest         string      `json:"latest,omitempty"`
}

func (p *ReleaseCheckPlugin) Config() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	view := releaseCheckConfigView{
		Repository:     p.repository,
		Token:          p.token,
		CurrentVersion: p.currentVersion,
		Latest:         p.latest,
	}
	if p.interval > 0 {
		view.Interval = p.interval.String()
	}
	return view
}

// Execute supports "check".
func (p *ReleaseCheckPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "check" {
		return nil, fmt.Errorf("unsupported action: %s", action)
	}
	if p.client == nil {
		return nil, fmt.Errorf("release check is not configured")
	}
	return p.check(ctx)
}

func (p *ReleaseCheckPlugin) runCheck(ctx context.Context) {
	res, err := p.check(ctx)
	if err != nil {
		p.logger.Warn("Release check failed", "repository", p.repository, "error", err)
		return
	}
	p.logger.Debug("Release check done", "current", res.Current, "latest", res.Latest, "update", res.UpdateAvailable)
}

func (p *ReleaseCheckPlugin) check(ctx context.Context) (checkResult, error) {
	release, _, err := p.client.Repositories.GetLatestRelease(ctx, p.owner, p.repo)

	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	if err != nil {
		return checkResult{}, err
	}

	res := checkResult{
		Current: p.currentVersion,
		Latest:  release.GetTagName(),
		URL:     release.GetHTMLURL(),
	}
	res.UpdateAvailable = newerVersion(res.Latest, p.currentVersion)

	p.mu.Lock()
	p.latest = res.Latest
	announce := res.UpdateAvailable && p.notified != res.Latest
	if announce {
		p.notified = res.Latest
	}
	p.mu.Unlock()

	if announce && p.registry != nil {
		p.logger.Info("New release available", "current", res.Current, "latest", res.Latest)
		p.registry.Publish(ctx, core.InternalEvent{
			Type:   core.EventUpdateAvailable,
			Source: p.Name(),
			URL:    res.URL,
			String: fmt.Sprintf("reelsaver %s is available (running %s)", res.Latest, res.Current),
			Details: map[string]interface{}{
				"current": res.Current,
				"latest":  res.Latest,
			},
		})
	}
	return res, nil
}

// canonicalVersion adds the "v" prefix semver expects. Tags that are not
// semantic versions return "".
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

// newerVersion reports whether latest is a newer semantic version than
// current.
func newerVersion(latest, current string) bool {
	l, c := canonicalVersion(latest), canonicalVersion(current)
	if l == "" || c == "" {
		return false
	}
	return semver.Compare(l, c) > 0
}

// Main for standalone testing
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if len(os.Args) < 3 {
		logger.Error("usage: release_check owner/name current-version")
		return
	}
	p := &ReleaseCheckPlugin{repository: os.Args[1], currentVersion: os.Args[2]}
	owner, repo, _ := strings.Cut(p.repository, "/")
	p.owner, p.repo, p.logger = owner, repo, logger
	p.client = github.NewClient(nil)

	res, err := p.check(context.Background())
	if err != nil {
		logger.Error("Check failed", "error", err)
		return
	}
	logger.Info("Check result", "current", res.Current, "latest", res.Latest, "update", res.UpdateAvailable)
}
