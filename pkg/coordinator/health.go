package coordinator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mywio/reelsaver/pkg/core"
)

type healthState struct {
	mu        sync.RWMutex
	checked   bool
	healthy   bool
	checkedAt time.Time
}

func (h *healthState) set(healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checked = true
	h.healthy = healthy
	h.checkedAt = time.Now()
}

func (h *healthState) status() core.ServiceStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch {
	case !h.checked:
		return core.StatusUnknown
	case h.healthy:
		return core.StatusHealthy
	default:
		return core.StatusDegraded
	}
}

// CheckHealth asks the processing service whether it is up and records the
// answer for Status.
func (c *Coordinator) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ServiceURL+"/health", nil)
	if err != nil {
		c.health.set(false)
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.health.set(false)
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.health.set(false)
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	c.health.set(true)
	return nil
}
