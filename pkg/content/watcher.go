package content

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/mywio/reelsaver/pkg/dom"
	"github.com/mywio/reelsaver/pkg/metrics"
)

// Watcher attaches one trigger control to the container of every video in
// the page, now and whenever the page changes.
type Watcher struct {
	doc      *dom.Document
	sender   Sender
	notifier *Notifier
	logger   *slog.Logger
	interval time.Duration

	// loop goroutine only
	observer *dom.MutationObserver
	controls []*Trigger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

func NewWatcher(doc *dom.Document, sender Sender, notifier *Notifier, interval time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		doc:      doc,
		sender:   sender,
		notifier: notifier,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start observes the body and performs the initial scan. With a non-zero
// interval the page is also rescanned on every tick.
func (w *Watcher) Start(ctx context.Context) error {
	if w.started {
		return nil
	}
	w.started = true

	err := w.doc.Loop.Do(ctx, func() {
		w.observer = w.doc.NewMutationObserver(func(records []dom.MutationRecord, _ *dom.MutationObserver) {
			for _, rec := range records {
				if rec.Type == dom.ChildList {
					w.Rescan("mutation")
					return
				}
			}
		})
		w.observer.Observe(w.doc.Body(), dom.ObserveOptions{ChildList: true, Subtree: true})
		w.Rescan("startup")
	})
	if err != nil {
		return err
	}

	if w.interval > 0 {
		w.wg.Add(1)
		go w.tick(ctx)
	}
	return nil
}

func (w *Watcher) tick(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.doc.Loop.Post(func() { w.Rescan("interval") })
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends observation and the periodic rescan.
func (w *Watcher) Stop(ctx context.Context) error {
	if !w.started {
		return nil
	}
	close(w.stopCh)
	w.wg.Wait()
	err := w.doc.Loop.Do(ctx, func() {
		if w.observer != nil {
			w.observer.Disconnect()
		}
	})
	if err == dom.ErrLoopStopped {
		return nil
	}
	return err
}

// Rescan attaches controls to every video container that has none and
// returns how many were attached. Must run on the page loop.
func (w *Watcher) Rescan(cause string) int {
	metrics.WatcherScansTotal.WithLabelValues(cause).Inc()
	w.prune()

	attached := 0
	for _, video := range dom.ElementsByTag(w.doc.Root, atom.Video) {
		container := video.Parent
		if container == nil || container.Type != html.ElementNode {
			continue
		}
		if dom.ByID(container, ButtonID) != nil {
			continue
		}
		t := newTrigger(w.doc, container, video, w.sender, w.notifier, w.logger)
		t.attach()
		w.controls = append(w.controls, t)
		attached++
	}

	if attached > 0 {
		metrics.ControlsAttachedTotal.Add(float64(attached))
		w.logger.Info("Attached trigger controls", "count", attached, "cause", cause, "total", len(w.controls))
	}
	return attached
}

// prune forgets controls whose button left the page.
func (w *Watcher) prune() {
	kept := w.controls[:0]
	for _, t := range w.controls {
		if t.Connected() {
			kept = append(kept, t)
			continue
		}
		t.release()
	}
	for i := len(kept); i < len(w.controls); i++ {
		w.controls[i] = nil
	}
	w.controls = kept
}

// Controls returns the attached controls in attach order. Must run on the
// page loop.
func (w *Watcher) Controls() []*Trigger {
	out := make([]*Trigger, len(w.controls))
	copy(out, w.controls)
	return out
}

// Control finds an attached control by id. Must run on the page loop.
func (w *Watcher) Control(id string) *Trigger {
	for _, t := range w.controls {
		if t.ID == id {
			return t
		}
	}
	return nil
}
