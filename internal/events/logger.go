// Package events provides helper functions for logging bot events.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mrrp-bot/mrrp/internal/models"
)

// Repository is the minimal interface needed to write events.
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
}

// LogBotStarted records that the polling loop started for an account.
func LogBotStarted(ctx context.Context, repo Repository, instance, username string) error {
	return record(ctx, repo, models.EventTypeBotStarted, models.EntityTypeInstance, instance, nil,
		map[string]string{"username": username})
}

// LogBotStopped records that the polling loop exited.
func LogBotStopped(ctx context.Context, repo Repository, instance, reason string) error {
	return record(ctx, repo, models.EventTypeBotStopped, models.EntityTypeInstance, instance, nil,
		map[string]string{"reason": reason})
}

// LogNotificationsFetched records a polled batch.
func LogNotificationsFetched(ctx context.Context, repo Repository, instance string, count, mentions int) error {
	return record(ctx, repo, models.EventTypeNotificationsFetched, models.EntityTypeInstance, instance,
		models.NotificationsFetchedPayload{Count: count, Mentions: mentions}, nil)
}

// LogNotificationsFlushed records a flush of the secondary instance.
func LogNotificationsFlushed(ctx context.Context, repo Repository, instance string) error {
	return record(ctx, repo, models.EventTypeNotificationsFlushed, models.EntityTypeInstance, instance, nil, nil)
}

// LogReplySent records a posted reply.
func LogReplySent(ctx context.Context, repo Repository, statusID string, payload models.ReplySentPayload) error {
	if payload.NotificationID == "" {
		return fmt.Errorf("notification id is required")
	}
	return record(ctx, repo, models.EventTypeReplySent, models.EntityTypeStatus, statusID, payload, nil)
}

// LogReplyFailed records a reply that could not be posted.
func LogReplyFailed(ctx context.Context, repo Repository, notificationID, account string, cause error) error {
	if cause == nil {
		return fmt.Errorf("cause is required")
	}
	return record(ctx, repo, models.EventTypeReplyFailed, models.EntityTypeNotification, notificationID,
		models.ReplyFailedPayload{NotificationID: notificationID, Account: account, Error: cause.Error()}, nil)
}

// LogReplySkipped records a mention the bot chose not to answer.
func LogReplySkipped(ctx context.Context, repo Repository, notificationID, reason string) error {
	return record(ctx, repo, models.EventTypeReplySkipped, models.EntityTypeNotification, notificationID,
		models.ReplySkippedPayload{NotificationID: notificationID, Reason: reason}, nil)
}

// LogReplyRegenerated records emoji-only drafts discarded by the guard.
func LogReplyRegenerated(ctx context.Context, repo Repository, notificationID string, regenerations int, capped bool) error {
	return record(ctx, repo, models.EventTypeReplyRegenerated, models.EntityTypeNotification, notificationID,
		models.ReplyRegeneratedPayload{NotificationID: notificationID, Regenerations: regenerations, Capped: capped}, nil)
}

// LogError records a loop-level failure.
func LogError(ctx context.Context, repo Repository, instance, where string, cause error) error {
	if cause == nil {
		return fmt.Errorf("cause is required")
	}
	return record(ctx, repo, models.EventTypeError, models.EntityTypeBot, instance,
		models.ErrorPayload{Error: cause.Error(), Context: where}, nil)
}

func record(ctx context.Context, repo Repository, eventType models.EventType, entityType models.EntityType, entityID string, payload any, metadata map[string]string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if entityID == "" {
		return fmt.Errorf("%s id is required", entityType)
	}

	event := &models.Event{
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		event.Payload = data
	}

	return repo.Create(ctx, event)
}
