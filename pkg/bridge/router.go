// Package bridge is the request/response channel between the page context
// and the background context.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mywio/reelsaver/pkg/metrics"
	"github.com/mywio/reelsaver/pkg/reel"
)

// Handler receives a request in the background context. Returning a non-nil
// Future keeps the reply slot open until the future resolves; returning nil
// closes it and any reply is dropped.
type Handler func(ctx context.Context, req reel.Request) *Future

// ReplyFunc is invoked at most once with the reply to a sent request.
type ReplyFunc func(res reel.Result)

// Router routes requests by action name to registered handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewRouter creates an open router. Pending replies are abandoned when ctx
// is cancelled or Close is called.
func NewRouter(ctx context.Context, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	rctx, cancel := context.WithCancel(ctx)
	return &Router{
		handlers: make(map[string]Handler),
		logger:   logger,
		ctx:      rctx,
		cancel:   cancel,
	}
}

// Handle registers h for action, replacing any earlier handler.
func (r *Router) Handle(action string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
	r.logger.Debug("Bridge handler registered", "action", action)
}

// Remove unregisters the handler for action.
func (r *Router) Remove(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, action)
}

// Send dispatches req to its handler synchronously. If the handler answers
// asynchronously, onReply is called once from a router goroutine when the
// future resolves. A wrapped reel.ErrChannelUnavailable is returned when no
// receiver exists; onReply is then never called.
func (r *Router) Send(req reel.Request, onReply ReplyFunc) error {
	r.mu.RLock()
	h, ok := r.handlers[req.Action]
	if r.closed || !ok {
		r.mu.RUnlock()
		metrics.BridgeMessagesTotal.WithLabelValues(req.Action, "unavailable").Inc()
		return fmt.Errorf("send %q: %w", req.Action, reel.ErrChannelUnavailable)
	}
	// Close sets closed under the write lock before waiting, so every Add
	// happens before Wait.
	r.wg.Add(1)
	r.mu.RUnlock()

	fut := h(r.ctx, req)
	if fut == nil {
		r.wg.Done()
		metrics.BridgeMessagesTotal.WithLabelValues(req.Action, "dropped").Inc()
		r.logger.Debug("Handler did not keep the reply channel open, reply dropped", "action", req.Action)
		return nil
	}

	go func() {
		defer r.wg.Done()
		select {
		case <-fut.Done():
			metrics.BridgeMessagesTotal.WithLabelValues(req.Action, "replied").Inc()
			if onReply != nil {
				onReply(fut.Result())
			}
		case <-r.ctx.Done():
			r.logger.Warn("Bridge closed before reply was delivered", "action", req.Action)
		}
	}()
	return nil
}

// Call sends req and blocks until the reply arrives or ctx ends. It is meant
// for callers outside the page context, such as HTTP triggers.
func (r *Router) Call(ctx context.Context, req reel.Request) (reel.Result, error) {
	replies := make(chan reel.Result, 1)
	if err := r.Send(req, func(res reel.Result) { replies <- res }); err != nil {
		return reel.Result{}, err
	}
	select {
	case res := <-replies:
		return res, nil
	case <-ctx.Done():
		return reel.Result{}, ctx.Err()
	case <-r.ctx.Done():
		return reel.Result{}, fmt.Errorf("call %q: %w", req.Action, reel.ErrChannelUnavailable)
	}
}

// Close tears the channel down. New sends fail and pending replies are
// never delivered.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}
