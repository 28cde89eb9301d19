package core

import (
	"context"
	"time"
)

// EventTypeName is a string alias for event type identifiers (e.g., "notify_reel_processed")
type EventTypeName string

// EventTypeDesc defines the "class" for an event type (registered dynamically)
type EventTypeDesc struct {
	Name        EventTypeName           // Unique ID, e.g., "download_complete"
	Description string                  // Human-readable, e.g., "Fired when a download has been written to disk"
	PayloadSpec map[string]PayloadField // Optional: Expected fields in event.Details (for validation/docs)
}

// PayloadField describes a field in the event payload
type PayloadField struct {
	Type        string // e.g., "string", "int", "bool"
	Description string
	Required    bool
}

// InternalEvent is the payload sent over the bus
type InternalEvent struct {
	Type      EventTypeName          `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"` // "coordinator", "download", "webhook_trigger", etc.
	URL       string                 `json:"url,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	String    string                 `json:"string,omitempty"`
}

// Listener is a handler func for subscribers
type Listener func(ctx context.Context, event InternalEvent)

// Core event types published by the pipeline.
const (
	EventReelProcessed   EventTypeName = "notify_reel_processed"
	EventReelFailed      EventTypeName = "notify_reel_failed"
	EventDownloadDone    EventTypeName = "download_complete"
	EventDownloadFailed  EventTypeName = "notify_download_failed"
	EventUpdateAvailable EventTypeName = "notify_update_available"
)
