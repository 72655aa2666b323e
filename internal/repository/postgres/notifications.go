package postgres

import (
	"context"
	"time"

	"chatpilot.io/pilot/internal/domain"
)

const insertNotification = `
INSERT INTO notifications (id, user_id, type, title, message, resource_type, resource_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// InsertNotification stores an unread inbox row.
func (q *Queries) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := q.db.Exec(ctx, insertNotification,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.ResourceType, n.ResourceID,
	)
	return err
}

const listNotifications = `
SELECT id, user_id, type, title, message, resource_type, resource_id, read, created_at
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`

// ListNotifications returns the newest inbox rows for a user.
func (q *Queries) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.Query(ctx, listNotifications, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&n.ResourceType, &n.ResourceID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

const deleteNotificationsBefore = `DELETE FROM notifications WHERE created_at < $1`

// DeleteNotificationsBefore removes inbox rows older than cutoff.
func (q *Queries) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteNotificationsBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
