package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	roomColumns     = "r.id, r.external_id, r.name, r.owner_id, r.message_retention, r.seq_id, r.created_at, r.updated_at"
	createSubQuery  = "INSERT INTO subscriptions (account_id, room_id, created_at, updated_at) VALUES ($1, $2, $3, $3) ON CONFLICT (account_id, room_id) DO NOTHING"
	roomMemberQuery = "SELECT " + roomColumns + ", COALESCE(array_agg(s.account_id) FILTER (WHERE s.account_id IS NOT NULL), '{}') " +
		"FROM rooms r LEFT JOIN subscriptions s ON s.room_id = r.id "
)

func scanRoom(row scanner, extra ...any) (Room, error) {
	var room Room
	dest := []any{
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.OwnerId,
		&room.MessageRetention,
		&room.SeqId,
		&room.CreatedAt,
		&room.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)

	return room, err
}

// scanRoomWithMemberIds scans a row from roomMemberQuery.
func scanRoomWithMemberIds(row scanner) (Room, error) {
	var ids pq.Int64Array
	room, err := scanRoom(row, &ids)
	if err != nil {
		return room, err
	}

	room.MemberIds = make([]int, len(ids))
	for i, id := range ids {
		room.MemberIds[i] = int(id)
	}

	return room, nil
}

func (db *PgVibeRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	var room Room
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		row := tx.QueryRowContext(ctx,
			"INSERT INTO rooms AS r (name, external_id, owner_id, created_at, updated_at) "+
				"VALUES ($1, $2, $3, $4, $4) RETURNING "+roomColumns,
			params.Name,
			params.ExternalId,
			params.OwnerId,
			now,
		)

		var err error
		room, err = scanRoom(row)
		if err != nil {
			return err
		}

		if _, err = tx.ExecContext(ctx, createSubQuery, params.OwnerId, room.Id, now); err != nil {
			return err
		}

		room.MemberIds = []int{params.OwnerId}
		return nil
	})
	if err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgVibeRepository) GetRoomByExternalId(ctx context.Context, externalId string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		roomMemberQuery+"WHERE r.external_id = $1 GROUP BY r.id",
		externalId,
	)

	return scanRoomWithMemberIds(row)
}

func (db *PgVibeRepository) GetRoomWithMembers(ctx context.Context, roomId int) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms r WHERE r.id = $1",
		roomId,
	)
	room, err := scanRoom(row)
	if err != nil {
		return Room{}, err
	}

	members, err := db.GetMembersByRoomId(ctx, roomId)
	if err != nil {
		return Room{}, fmt.Errorf("get members: %w", err)
	}

	room.Members = members
	room.MemberIds = make([]int, len(members))
	for i, m := range members {
		room.MemberIds[i] = m.Id
	}

	return room, nil
}

func (db *PgVibeRepository) listRooms(ctx context.Context, query string, args ...any) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		room, err := scanRoomWithMemberIds(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgVibeRepository) ListRoomsForUser(ctx context.Context, accountId int) ([]Room, error) {
	return db.listRooms(ctx,
		roomMemberQuery+"WHERE r.id IN (SELECT room_id FROM subscriptions WHERE account_id = $1) "+
			"GROUP BY r.id ORDER BY r.created_at DESC",
		accountId,
	)
}

func (db *PgVibeRepository) ListRooms(ctx context.Context) ([]Room, error) {
	return db.listRooms(ctx, roomMemberQuery+"GROUP BY r.id ORDER BY r.id")
}

func (db *PgVibeRepository) ListRoomsWithRetention(ctx context.Context) ([]Room, error) {
	return db.listRooms(ctx,
		roomMemberQuery+"WHERE r.message_retention <> 'never' GROUP BY r.id ORDER BY r.id",
	)
}

func (db *PgVibeRepository) DeleteRoom(ctx context.Context, roomId int) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM subscriptions WHERE room_id = $1",
			"DELETE FROM vibes WHERE room_id = $1",
			"DELETE FROM messages WHERE room_id = $1",
		} {
			if _, err := tx.ExecContext(ctx, q, roomId); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = $1", roomId)
		if err != nil {
			return err
		}

		return expectRows(res)
	})
}

func (db *PgVibeRepository) UpdateRoomRetention(ctx context.Context, roomId int, retention string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE rooms AS r SET message_retention = $2, updated_at = $3 WHERE r.id = $1 RETURNING "+roomColumns,
		roomId,
		retention,
		time.Now().UTC(),
	)

	return scanRoom(row)
}

// CreateSubscription adds the account to the room. It reports whether a new
// membership was created; joining twice is a no-op.
func (db *PgVibeRepository) CreateSubscription(ctx context.Context, accountId, roomId int) (bool, error) {
	res, err := db.conn.ExecContext(ctx, createSubQuery, accountId, roomId, time.Now().UTC())
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (db *PgVibeRepository) SubscriptionExists(ctx context.Context, accountId, roomId int) (bool, error) {
	var id int
	err := db.conn.QueryRowContext(ctx,
		"SELECT id FROM subscriptions WHERE account_id = $1 AND room_id = $2 LIMIT 1",
		accountId,
		roomId,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (db *PgVibeRepository) DeleteSubscription(ctx context.Context, accountId, roomId int) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM subscriptions WHERE account_id = $1 AND room_id = $2",
		accountId,
		roomId,
	)
	if err != nil {
		return err
	}

	return expectRows(res)
}

func (db *PgVibeRepository) GetMembersByRoomId(ctx context.Context, roomId int) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+prefixed("a", accountColumns)+" FROM subscriptions s "+
			"JOIN accounts a ON s.account_id = a.id WHERE s.room_id = $1 ORDER BY s.created_at",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]User, 0)
	for rows.Next() {
		u, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, u)
	}

	return members, rows.Err()
}
