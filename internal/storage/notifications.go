package storage

import (
	"context"
	"fmt"
	"time"

	"stash/internal/core"
)

func (r *Repository) InsertNotification(ctx context.Context, n core.Notification) (core.Notification, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (owner_id, kind, title, body, payload, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		n.OwnerID, n.Kind, n.Title, n.Body, n.Payload, now)
	if err != nil {
		return core.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Notification{}, fmt.Errorf("last insert id: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	return n, nil
}

func (r *Repository) ListNotifications(ctx context.Context, ownerID string, limit int) ([]core.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, kind, title, body, payload, is_read, created_at
		 FROM notifications WHERE owner_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var n core.Notification
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Kind, &n.Title, &n.Body,
			&n.Payload, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) MarkNotificationRead(ctx context.Context, ownerID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND owner_id = ?`,
		id, ownerID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %d: %w", id, core.ErrNotFound)
	}
	return nil
}
