package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes events in the bot's event log.
type EventType string

const (
	// Lifecycle events
	EventTypeBotStarted EventType = "bot.started"
	EventTypeBotStopped EventType = "bot.stopped"

	// Notification events
	EventTypeNotificationsFetched EventType = "notifications.fetched"
	EventTypeNotificationsFlushed EventType = "notifications.flushed"

	// Reply events
	EventTypeReplySent        EventType = "reply.sent"
	EventTypeReplyFailed      EventType = "reply.failed"
	EventTypeReplySkipped     EventType = "reply.skipped"
	EventTypeReplyRegenerated EventType = "reply.regenerated"

	// System events
	EventTypeError EventType = "error"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeBot          EntityType = "bot"
	EntityTypeNotification EntityType = "notification"
	EntityTypeStatus       EntityType = "status"
	EntityTypeInstance     EntityType = "instance"
)

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		validation.AddMessage("entity_type", "entity_type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		validation.AddMessage("entity_id", "entity_id is required")
	}
	return validation.Err()
}

// NotificationsFetchedPayload is the payload for notifications.fetched events.
type NotificationsFetchedPayload struct {
	Count    int `json:"count"`
	Mentions int `json:"mentions"`
}

// ReplySentPayload is the payload for reply.sent events.
type ReplySentPayload struct {
	NotificationID string     `json:"notification_id"`
	ReplyStatusID  string     `json:"reply_status_id,omitempty"`
	Account        string     `json:"account"`
	Visibility     Visibility `json:"visibility"`
	WordCount      int        `json:"word_count"`
	Rule           int        `json:"rule"`
}

// ReplyFailedPayload is the payload for reply.failed events.
type ReplyFailedPayload struct {
	NotificationID string `json:"notification_id"`
	Account        string `json:"account,omitempty"`
	Error          string `json:"error"`
}

// ReplySkippedPayload is the payload for reply.skipped events.
type ReplySkippedPayload struct {
	NotificationID string `json:"notification_id"`
	Reason         string `json:"reason"`
}

// ReplyRegeneratedPayload is the payload for reply.regenerated events.
type ReplyRegeneratedPayload struct {
	NotificationID string `json:"notification_id"`
	Regenerations  int    `json:"regenerations"`
	Capped         bool   `json:"capped"`
}

// ErrorPayload is the payload for error events.
type ErrorPayload struct {
	Error   string `json:"error"`
	Context string `json:"context,omitempty"`
}
