package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Broker fans internal events out to subscribers.
type Broker struct {
	logger *slog.Logger

	// eventTypes maps name -> desc (for discoverability/validation)
	eventTypes   map[EventTypeName]EventTypeDesc
	eventTypesMu sync.RWMutex

	// subscribers maps eventType (or pattern like "notify_*") -> []Listener
	subscribers   map[string][]Listener
	subscribersMu sync.RWMutex
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger:      logger,
		eventTypes:  make(map[EventTypeName]EventTypeDesc),
		subscribers: make(map[string][]Listener),
	}
}

// RegisterEventType lets plugins/core define a new event type
func (b *Broker) RegisterEventType(desc EventTypeDesc) error {
	b.eventTypesMu.Lock()
	defer b.eventTypesMu.Unlock()

	if _, exists := b.eventTypes[desc.Name]; exists {
		return fmt.Errorf("event type %s already registered", desc.Name)
	}
	b.eventTypes[desc.Name] = desc
	b.logger.Debug("Registered event type", "name", desc.Name, "description", desc.Description)
	return nil
}

// EventTypes returns a snapshot of the registered event types.
func (b *Broker) EventTypes() []EventTypeDesc {
	b.eventTypesMu.RLock()
	defer b.eventTypesMu.RUnlock()
	out := make([]EventTypeDesc, 0, len(b.eventTypes))
	for _, desc := range b.eventTypes {
		out = append(out, desc)
	}
	return out
}

// Subscribe registers a handler for an event type or pattern
// Pattern support: exact "download_complete" or wildcard "notify_*"
func (b *Broker) Subscribe(pattern string, handler Listener) {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	b.subscribers[pattern] = append(b.subscribers[pattern], handler)
	b.logger.Debug("Subscribed to pattern", "pattern", pattern)
}

// Publish sends an event to all matching subscribers (async)
func (b *Broker) Publish(ctx context.Context, event InternalEvent) {
	if ctx == nil {
		ctx = context.Background()
	}
	event.Timestamp = time.Now()

	b.eventTypesMu.RLock()
	desc, ok := b.eventTypes[event.Type]
	b.eventTypesMu.RUnlock()
	if ok {
		for field, spec := range desc.PayloadSpec {
			if spec.Required {
				if _, has := event.Details[field]; !has {
					b.logger.Warn("Published event missing required field", "event", event.Type, "field", field)
				}
			}
		}
	}

	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()

	for pattern, listeners := range b.subscribers {
		if matchesPattern(string(event.Type), pattern) {
			for _, listener := range listeners {
				go listener(ctx, event) // Async dispatch
			}
		}
	}
}

// matchesPattern: Simple wildcard support (e.g., "notify_*" matches "notify_reel_failed")
func matchesPattern(eventType, pattern string) bool {
	if pattern == eventType || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(eventType, prefix)
	}
	return false
}
