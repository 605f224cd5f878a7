package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/groupguard/groupguard/internal/biz/domain"

	_ "modernc.org/sqlite"
)

// Store keeps group overrides and active mutes in sqlite. It implements
// repo.OverrideRepo and repo.MuteRepo.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; one connection also keeps :memory: shared
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS group_overrides (
			group_id TEXT PRIMARY KEY,
			override TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS active_mutes (
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			until INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (group_id, user_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_active_mutes_until ON active_mutes(until)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &Store{db: db}, nil
}

// GetOverride returns the stored override of a group, or an empty one
func (s *Store) GetOverride(ctx context.Context, groupID string) (domain.PolicyOverride, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT override FROM group_overrides WHERE group_id = ?`, groupID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PolicyOverride{}, nil
	}
	if err != nil {
		return domain.PolicyOverride{}, fmt.Errorf("failed to query override: %w", err)
	}

	var o domain.PolicyOverride
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return domain.PolicyOverride{}, fmt.Errorf("failed to decode override: %w", err)
	}
	return o, nil
}

// SaveOverride creates or replaces the override of a group
func (s *Store) SaveOverride(ctx context.Context, groupID string, o domain.PolicyOverride) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode override: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO group_overrides (group_id, override, updated_at)
		VALUES (?, ?, ?)
	`, groupID, string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	return nil
}

// DeleteOverride removes the override of a group
func (s *Store) DeleteOverride(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM group_overrides WHERE group_id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	return nil
}

// ListOverrides returns every stored override keyed by group
func (s *Store) ListOverrides(ctx context.Context) (map[string]domain.PolicyOverride, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id, override FROM group_overrides`)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.PolicyOverride)
	for rows.Next() {
		var groupID, raw string
		if err := rows.Scan(&groupID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		var o domain.PolicyOverride
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("failed to decode override for %s: %w", groupID, err)
		}
		out[groupID] = o
	}
	return out, rows.Err()
}

// SaveMute records a mute, extending an existing one
func (s *Store) SaveMute(ctx context.Context, m *domain.ActiveMute) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO active_mutes (group_id, user_id, until, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(group_id, user_id) DO UPDATE SET until = MAX(until, excluded.until)
	`, m.GroupID, m.UserID, m.Until.Unix(), m.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save mute: %w", err)
	}
	return nil
}

// DueMutes returns the mutes whose deadline is at or before now
func (s *Store) DueMutes(ctx context.Context, now time.Time) ([]*domain.ActiveMute, error) {
	return s.queryMutes(ctx, `
		SELECT group_id, user_id, until, created_at FROM active_mutes
		WHERE until <= ?
		ORDER BY until
	`, now.Unix())
}

// ListMutes returns the active mutes of a group, or of all groups when groupID is empty
func (s *Store) ListMutes(ctx context.Context, groupID string) ([]*domain.ActiveMute, error) {
	if groupID == "" {
		return s.queryMutes(ctx, `
			SELECT group_id, user_id, until, created_at FROM active_mutes
			ORDER BY until
		`)
	}
	return s.queryMutes(ctx, `
		SELECT group_id, user_id, until, created_at FROM active_mutes
		WHERE group_id = ?
		ORDER BY until
	`, groupID)
}

// DeleteMute forgets a lifted mute
func (s *Store) DeleteMute(ctx context.Context, groupID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM active_mutes WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete mute: %w", err)
	}
	return nil
}

func (s *Store) queryMutes(ctx context.Context, query string, args ...any) ([]*domain.ActiveMute, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mutes: %w", err)
	}
	defer rows.Close()

	var mutes []*domain.ActiveMute
	for rows.Next() {
		var m domain.ActiveMute
		var until, createdAt int64
		if err := rows.Scan(&m.GroupID, &m.UserID, &until, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan mute: %w", err)
		}
		m.Until = time.Unix(until, 0)
		m.CreatedAt = time.Unix(createdAt, 0)
		mutes = append(mutes, &m)
	}
	return mutes, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
