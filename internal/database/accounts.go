package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const accountColumns = "id, email, display_name, phone_number, date_of_birth, gender, photo_url, " +
	"online, last_seen, is_admin, email_notifications, push_notifications, password_hash, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (User, error) {
	var (
		u        User
		lastSeen sql.NullTime
	)
	err := row.Scan(
		&u.Id,
		&u.EmailAddress,
		&u.DisplayName,
		&u.PhoneNumber,
		&u.DateOfBirth,
		&u.Gender,
		&u.PhotoURL,
		&u.Online,
		&lastSeen,
		&u.IsAdmin,
		&u.EmailNotifications,
		&u.PushNotifications,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if lastSeen.Valid {
		u.LastSeen = &lastSeen.Time
	}

	return u, err
}

func (db *PgVibeRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO accounts (email, display_name, phone_number, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING "+accountColumns,
		params.EmailAddress,
		params.DisplayName,
		params.PhoneNumber,
		params.PasswordHash,
		now,
	)

	return scanAccount(row)
}

func (db *PgVibeRepository) UpdateAccount(ctx context.Context, params UpdateAccountParams) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE accounts SET display_name = $2, phone_number = $3, date_of_birth = $4, gender = $5, updated_at = $6 "+
			"WHERE id = $1 RETURNING "+accountColumns,
		params.UserId,
		params.DisplayName,
		params.PhoneNumber,
		params.DateOfBirth,
		params.Gender,
		time.Now().UTC(),
	)

	return scanAccount(row)
}

func (db *PgVibeRepository) UpdateSettings(ctx context.Context, params UpdateSettingsParams) (User, error) {
	var emailNotifications, pushNotifications sql.NullBool
	if params.EmailNotifications != nil {
		emailNotifications = sql.NullBool{Bool: *params.EmailNotifications, Valid: true}
	}
	if params.PushNotifications != nil {
		pushNotifications = sql.NullBool{Bool: *params.PushNotifications, Valid: true}
	}

	row := db.conn.QueryRowContext(ctx,
		"UPDATE accounts SET email_notifications = COALESCE($2, email_notifications), "+
			"push_notifications = COALESCE($3, push_notifications), updated_at = $4 "+
			"WHERE id = $1 RETURNING "+accountColumns,
		params.UserId,
		emailNotifications,
		pushNotifications,
		time.Now().UTC(),
	)

	return scanAccount(row)
}

func (db *PgVibeRepository) UpdatePassword(ctx context.Context, accountId int, passwordHash string) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1",
		accountId,
		passwordHash,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	return expectRows(res)
}

func (db *PgVibeRepository) GetAccountById(ctx context.Context, accountId int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	return scanAccount(row)
}

func (db *PgVibeRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	return scanAccount(row)
}

// DeleteAccount removes the account along with every room it owns and
// returns the external ids of those rooms.
func (db *PgVibeRepository) DeleteAccount(ctx context.Context, accountId int) ([]string, error) {
	var deletedRooms []string
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "DELETE FROM rooms WHERE owner_id = $1 RETURNING external_id", accountId)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var externalId string
			if err := rows.Scan(&externalId); err != nil {
				return err
			}
			deletedRooms = append(deletedRooms, externalId)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM accounts WHERE id = $1", accountId)
		if err != nil {
			return err
		}

		return expectRows(res)
	})
	if err != nil {
		return nil, err
	}

	return deletedRooms, nil
}

func (db *PgVibeRepository) UpdateUserStatus(ctx context.Context, accountId int, online bool) error {
	var lastSeen sql.NullTime
	if !online {
		lastSeen = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET online = $2, last_seen = $3 WHERE id = $1",
		accountId,
		online,
		lastSeen,
	)

	return err
}

func (db *PgVibeRepository) ListAccounts(ctx context.Context) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgVibeRepository) CountStats(ctx context.Context) (Stats, error) {
	var s Stats
	err := db.conn.QueryRowContext(ctx,
		"SELECT (SELECT count(*) FROM accounts), (SELECT count(*) FROM rooms), "+
			"(SELECT count(*) FROM accounts WHERE online)",
	).Scan(&s.UserCount, &s.RoomCount, &s.ActiveUsers)

	return s, err
}

// expectRows returns sql.ErrNoRows when a statement matched nothing.
func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// prefixed qualifies each column in a comma separated list with alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}

	return strings.Join(cols, ", ")
}
