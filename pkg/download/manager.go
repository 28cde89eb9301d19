package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mywio/reelsaver/pkg/blob"
	"github.com/mywio/reelsaver/pkg/metrics"
	"github.com/mywio/reelsaver/pkg/utils"
)

var (
	ErrInvalidURL      = errors.New("Invalid URL")
	ErrInvalidFilename = errors.New("Invalid filename")
)

// Resolver looks up blob URLs.
type Resolver interface {
	Resolve(url string) (blob.Blob, bool)
}

// Config for a Manager.
type Config struct {
	Dir         string
	HooksDir    string
	MaxParallel int
	Prompter    Prompter
	OnUpdate    func(Item) // called after every state change
	HookTimeout time.Duration
}

// Manager enqueues downloads and writes them to disk.
type Manager struct {
	cfg      Config
	resolver Resolver
	logger   *slog.Logger
	sem      *semaphore.Weighted

	mu       sync.Mutex
	nextID   int
	items    map[int]*Item
	reserved map[string]struct{}
	wg       sync.WaitGroup
}

func NewManager(cfg Config, resolver Resolver, logger *slog.Logger) *Manager {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	if cfg.Prompter == nil {
		cfg.Prompter = AutoAccept{}
	}
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = 5 * time.Minute
	}
	return &Manager{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(cfg.MaxParallel)),
		items:    make(map[int]*Item),
		reserved: make(map[string]struct{}),
	}
}

// Download enqueues a save of opts.URL and returns its identifier. The
// payload is captured before returning, so the blob URL may be revoked as soon
// as Download returns. The file itself is written asynchronously.
func (m *Manager) Download(ctx context.Context, opts Options) (int, error) {
	if err := validateFilename(opts.Filename); err != nil {
		metrics.DownloadsTotal.WithLabelValues("rejected").Inc()
		return 0, err
	}
	b, ok := m.resolver.Resolve(opts.URL)
	if !ok {
		metrics.DownloadsTotal.WithLabelValues("rejected").Inc()
		return 0, ErrInvalidURL
	}

	suggested := filepath.Join(m.cfg.Dir, opts.Filename)
	target := suggested
	if opts.SaveAs {
		chosen, err := m.cfg.Prompter.PromptSaveAs(ctx, suggested)
		if err != nil {
			metrics.DownloadsTotal.WithLabelValues("canceled").Inc()
			return 0, err
		}
		target = chosen
		if !filepath.IsAbs(target) && filepath.Dir(target) == "." {
			target = filepath.Join(m.cfg.Dir, target)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		metrics.DownloadsTotal.WithLabelValues("rejected").Inc()
		return 0, fmt.Errorf("failed to create download directory: %w", err)
	}

	m.mu.Lock()
	path, err := m.reserveLocked(target)
	if err != nil {
		m.mu.Unlock()
		metrics.DownloadsTotal.WithLabelValues("rejected").Inc()
		return 0, err
	}
	m.nextID++
	item := &Item{
		ID:        m.nextID,
		Filename:  filepath.Base(path),
		Path:      path,
		Bytes:     int64(b.Size()),
		State:     StateInProgress,
		StartedAt: time.Now(),
	}
	m.items[item.ID] = item
	snapshot := *item
	m.mu.Unlock()

	m.logger.Info("Download enqueued", "id", item.ID, "path", path, "bytes", b.Size())
	m.notify(snapshot)

	m.wg.Add(1)
	go m.write(item.ID, path, b.Data)
	return item.ID, nil
}

// Get returns a snapshot of the item with id.
func (m *Manager) Get(id int) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Wait blocks until every enqueued download has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) write(id int, path string, data []byte) {
	defer m.wg.Done()

	// writes are not tied to the request that enqueued them
	ctx := context.Background()
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(id, err)
		return
	}
	metrics.DownloadsInFlight.Inc()
	err := writeFile(path, data)
	metrics.DownloadsInFlight.Dec()
	m.sem.Release(1)

	if err == nil {
		hookCtx, cancel := context.WithTimeout(ctx, m.cfg.HookTimeout)
		env := []string{
			fmt.Sprintf("DOWNLOAD_ID=%d", id),
			fmt.Sprintf("DOWNLOAD_PATH=%s", path),
		}
		if hookErr := utils.ExecuteHooks(hookCtx, m.cfg.HooksDir, env, m.logger.With("download_id", id)); hookErr != nil {
			m.logger.Error("Post-download hook failed", "id", id, "error", hookErr)
		}
		cancel()
	}
	m.finish(id, err)
}

func (m *Manager) finish(id int, err error) {
	m.mu.Lock()
	item := m.items[id]
	delete(m.reserved, item.Path)
	item.FinishedAt = time.Now()
	if err != nil {
		item.State = StateInterrupted
		item.Error = err.Error()
	} else {
		item.State = StateComplete
	}
	snapshot := *item
	m.mu.Unlock()

	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("failed").Inc()
		m.logger.Error("Download interrupted", "id", id, "path", snapshot.Path, "error", err)
	} else {
		metrics.DownloadsTotal.WithLabelValues("complete").Inc()
		m.logger.Info("Download complete", "id", id, "path", snapshot.Path)
	}
	m.notify(snapshot)
}

func (m *Manager) notify(item Item) {
	if m.cfg.OnUpdate != nil {
		m.cfg.OnUpdate(item)
	}
}

// reserveLocked picks a path that neither exists on disk nor is being
// written, appending " (n)" before the extension as needed.
func (m *Manager) reserveLocked(target string) (string, error) {
	ext := filepath.Ext(target)
	base := strings.TrimSuffix(target, ext)
	candidate := target
	for n := 1; ; n++ {
		if _, taken := m.reserved[candidate]; !taken {
			_, err := os.Stat(candidate)
			if os.IsNotExist(err) {
				break
			}
			if err != nil {
				return "", fmt.Errorf("failed to check %s: %w", candidate, err)
			}
		}
		candidate = base + " (" + strconv.Itoa(n) + ")" + ext
	}
	m.reserved[candidate] = struct{}{}
	return candidate, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	partial := path + ".part"
	if err := os.WriteFile(partial, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", partial, err)
	}
	if err := os.Rename(partial, path); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}

func validateFilename(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return ErrInvalidFilename
	}
	if strings.ContainsAny(name, `/\`) {
		return ErrInvalidFilename
	}
	return nil
}
