// Package worker holds the background consumers: the event-to-
// notification recorder and the statement export drain. Both run in the
// worker binary, apart from the request path.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"stash/internal/core"
	"stash/internal/event"
)

type NotificationStore interface {
	InsertNotification(ctx context.Context, n core.Notification) (core.Notification, error)
}

// Notifier turns consumed ledger events into stored notifications.
type Notifier struct {
	store NotificationStore
}

func NewNotifier(store NotificationStore) *Notifier {
	return &Notifier{store: store}
}

// HandleEvent records one event as a notification row. Returning an
// error makes the consumer nack and requeue the delivery.
func (n *Notifier) HandleEvent(ctx context.Context, e *event.Event) error {
	if e.OwnerID == "" {
		// Nothing to attach the notification to; drop it
		slog.WarnContext(ctx, "Dropping event without owner", "kind", e.Kind)
		return nil
	}

	payload, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	saved, err := n.store.InsertNotification(ctx, core.Notification{
		OwnerID: e.OwnerID,
		Kind:    e.Kind,
		Title:   e.Title,
		Body:    e.Body,
		Payload: string(payload),
	})
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	slog.InfoContext(ctx, "Notification recorded",
		"id", saved.ID,
		"owner_id", e.OwnerID,
		"kind", e.Kind)
	return nil
}
