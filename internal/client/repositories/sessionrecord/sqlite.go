package sessionrecord

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/securetask/authkit/internal/client/models"
	"github.com/securetask/authkit/internal/dbx"
)

// Row keys inside the session_record table. The "auth-storage" prefix is the
// well-known name of the record.
const (
	tokenKey   = "auth-storage/token"
	profileKey = "auth-storage/profile"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) get(ctx context.Context, q dbx.DBTX, key string) ([]byte, error) {
	var value []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM session_record WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session_record[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) set(ctx context.Context, q dbx.DBTX, key string, value []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO session_record (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set session_record[%s]: %w", key, err)
	}
	return nil
}

// Load reads the token and profile rows. A record missing either half
// (e.g. after an interrupted write with an older schema) is treated as absent
// rather than surfaced as a half-authenticated state.
func (r *SQLiteRepository) Load(ctx context.Context) (*Record, error) {
	token, err := r.get(ctx, r.db, tokenKey)
	if err != nil {
		return nil, err
	}
	profileData, err := r.get(ctx, r.db, profileKey)
	if err != nil {
		return nil, err
	}
	if len(token) == 0 || len(profileData) == 0 {
		return nil, nil
	}

	var profile models.UserProfile
	if err := json.Unmarshal(profileData, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode stored profile: %w", err)
	}
	return &Record{Token: string(token), Profile: profile}, nil
}

// Save commits token and profile in a single transaction so the record is
// never observable with only one of the two.
func (r *SQLiteRepository) Save(ctx context.Context, rec Record) error {
	profileData, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := r.set(ctx, tx, tokenKey, []byte(rec.Token)); err != nil {
			return err
		}
		return r.set(ctx, tx, profileKey, profileData)
	})
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM session_record`)
		if err != nil {
			return fmt.Errorf("failed to clear session_record: %w", err)
		}
		return nil
	})
}
