package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMessageLimit = 20
	defaultVibeLimit    = 50
	// MaxPageLimit caps how many messages or vibes one query returns.
	MaxPageLimit     = 100
	messageRetention = 7 * 24 * time.Hour
)

func pageLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}

	return min(limit, MaxPageLimit)
}

// CreateVibe stores the vibe and a notification for every other member of
// the room in one transaction.
func (db *PgVibeRepository) CreateVibe(ctx context.Context, params CreateVibeParams) (Vibe, []Notification, error) {
	vibe := Vibe{
		Id:         uuid.NewString(),
		RoomId:     params.RoomId,
		SenderId:   params.SenderId,
		SenderName: params.SenderName,
		Type:       params.Type,
		SentAt:     params.SentAt,
	}

	var notifications []Notification
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO vibes (id, room_id, sender_id, sender_name, type, sent_at) VALUES ($1, $2, $3, $4, $5, $6)",
			vibe.Id,
			vibe.RoomId,
			vibe.SenderId,
			vibe.SenderName,
			vibe.Type,
			vibe.SentAt,
		)
		if err != nil {
			return fmt.Errorf("insert vibe: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			"SELECT account_id FROM subscriptions WHERE room_id = $1 AND account_id <> $2",
			params.RoomId,
			params.SenderId,
		)
		if err != nil {
			return fmt.Errorf("select recipients: %w", err)
		}

		var recipients []int
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			recipients = append(recipients, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, userId := range recipients {
			notifications = append(notifications, Notification{
				Id:         uuid.NewString(),
				UserId:     userId,
				Type:       "vibe",
				RoomId:     params.RoomExternalId,
				SenderId:   params.SenderId,
				SenderName: params.SenderName,
				VibeType:   params.Type,
				CreatedAt:  params.SentAt,
			})
		}

		return insertNotifications(ctx, tx, notifications)
	})
	if err != nil {
		return Vibe{}, nil, err
	}

	return vibe, notifications, nil
}

func (db *PgVibeRepository) ListVibes(ctx context.Context, roomId, limit int) ([]Vibe, error) {
	limit = pageLimit(limit, defaultVibeLimit)

	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, room_id, sender_id, sender_name, type, sent_at FROM vibes "+
			"WHERE room_id = $1 ORDER BY sent_at DESC LIMIT $2",
		roomId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vibes := []Vibe{}
	for rows.Next() {
		var v Vibe
		if err := rows.Scan(&v.Id, &v.RoomId, &v.SenderId, &v.SenderName, &v.Type, &v.SentAt); err != nil {
			return nil, err
		}
		vibes = append(vibes, v)
	}

	return vibes, rows.Err()
}

// CreateMessage stores msg and advances the room sequence to msg.SeqId.
func (db *PgVibeRepository) CreateMessage(ctx context.Context, msg Message) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE rooms SET seq_id = $1, updated_at = $3 WHERE id = $2",
			msg.SeqId, msg.RoomId, msg.SentAt,
		); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO messages (seq_id, room_id, sender_id, content, sent_at) VALUES ($1, $2, $3, $4, $5)",
			msg.SeqId,
			msg.RoomId,
			msg.SenderId,
			msg.Content,
			msg.SentAt,
		)

		return err
	})
}

// GetMessages returns the newest limit messages with seq ids strictly between
// after and before, oldest first. Zero leaves a bound open.
func (db *PgVibeRepository) GetMessages(ctx context.Context, roomId, after, before, limit int) ([]Message, error) {
	var upper, lower int = 1<<31 - 1, 0
	if before > 0 {
		upper = before - 1
	}

	if after > 0 {
		lower = after + 1
	}

	limit = pageLimit(limit, defaultMessageLimit)

	rows, err := db.conn.QueryContext(ctx,
		"SELECT * FROM (SELECT id, seq_id, room_id, sender_id, content, sent_at, viewed, viewed_at FROM messages "+
			"WHERE room_id = $1 AND seq_id BETWEEN $2 AND $3 ORDER BY seq_id DESC LIMIT $4) m ORDER BY seq_id ASC",
		roomId,
		lower,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var (
			msg      Message
			viewedAt sql.NullTime
		)
		if err := rows.Scan(&msg.Id, &msg.SeqId, &msg.RoomId, &msg.SenderId, &msg.Content, &msg.SentAt, &msg.Viewed, &viewedAt); err != nil {
			return nil, err
		}
		if viewedAt.Valid {
			msg.ViewedAt = &viewedAt.Time
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// MarkMessagesViewed flags every unviewed message in the room that was not
// sent by accountId and returns how many were updated.
func (db *PgVibeRepository) MarkMessagesViewed(ctx context.Context, roomId, accountId int) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET viewed = TRUE, viewed_at = $3 WHERE room_id = $1 AND sender_id <> $2 AND NOT viewed",
		roomId,
		accountId,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	return int(n), err
}

// MarkMessageViewed flags a single message. Messages sent by accountId and
// messages already viewed are left alone, so the count is 0 or 1.
func (db *PgVibeRepository) MarkMessageViewed(ctx context.Context, roomId, seqId, accountId int) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET viewed = TRUE, viewed_at = $4 WHERE room_id = $1 AND seq_id = $2 AND sender_id <> $3 AND NOT viewed",
		roomId,
		seqId,
		accountId,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	return int(n), err
}

// CleanupMessages deletes the messages that the room's retention policy no
// longer keeps.
func (db *PgVibeRepository) CleanupMessages(ctx context.Context, roomId int, retention string, now time.Time) (int, error) {
	var (
		res sql.Result
		err error
	)

	switch retention {
	case "7days":
		res, err = db.conn.ExecContext(ctx,
			"DELETE FROM messages WHERE room_id = $1 AND sent_at < $2",
			roomId,
			now.Add(-messageRetention),
		)
	case "afterView":
		res, err = db.conn.ExecContext(ctx,
			"DELETE FROM messages WHERE room_id = $1 AND viewed",
			roomId,
		)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	return int(n), err
}
