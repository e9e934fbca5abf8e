package database

import (
	"context"
	"database/sql"
	"time"
)

func insertNotifications(ctx context.Context, tx *sql.Tx, notifications []Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO notifications (id, user_id, type, room_id, sender_id, sender_name, vibe_type, message, read, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range notifications {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			n.Id, n.UserId, n.Type, n.RoomId, n.SenderId, n.SenderName, n.VibeType, n.Message, n.Read, n.CreatedAt,
		); err != nil {
			return err
		}
	}

	return nil
}

func (db *PgVibeRepository) CreateNotifications(ctx context.Context, notifications []Notification) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return insertNotifications(ctx, tx, notifications)
	})
}

func (db *PgVibeRepository) ListNotifications(ctx context.Context, accountId int) ([]Notification, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, user_id, type, room_id, sender_id, sender_name, vibe_type, message, read, created_at "+
			"FROM notifications WHERE user_id = $1 ORDER BY created_at DESC",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(
			&n.Id,
			&n.UserId,
			&n.Type,
			&n.RoomId,
			&n.SenderId,
			&n.SenderName,
			&n.VibeType,
			&n.Message,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (db *PgVibeRepository) MarkNotificationRead(ctx context.Context, accountId int, id string) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2",
		id,
		accountId,
	)
	if err != nil {
		return err
	}

	return expectRows(res)
}

func (db *PgVibeRepository) DeleteNotification(ctx context.Context, accountId int, id string) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM notifications WHERE id = $1 AND user_id = $2",
		id,
		accountId,
	)
	if err != nil {
		return err
	}

	return expectRows(res)
}

func (db *PgVibeRepository) DeleteReadNotifications(ctx context.Context, accountId int) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM notifications WHERE user_id = $1 AND read",
		accountId,
	)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	return int(n), err
}
