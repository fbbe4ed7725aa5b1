// Package history keeps an audit trail of game events and the commands the
// bridge ran in response.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	SourceChat     = "chat"
	SourceShell    = "shell"
	SourceAPI      = "api"
	SourceSchedule = "schedule"
)

type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source,omitempty"`
	Player    string    `json:"player,omitempty"`
	Text      string    `json:"text,omitempty"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append stores e, filling in ID and CreatedAt when empty.
func (s *Store) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, kind, source, player, text, result, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Source, e.Player, e.Text, e.Result, e.Error, e.CreatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("insert history: %w", err)
	}
	return e, nil
}

// List returns the newest entries first. An empty kind matches all.
func (s *Store) List(ctx context.Context, kind string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, source, player, text, result, error, created_at FROM history
		WHERE ? = '' OR kind = ?
		ORDER BY created_at DESC LIMIT ?`,
		kind, kind, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Source, &e.Player, &e.Text, &e.Result, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than age.
func (s *Store) Prune(ctx context.Context, age time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
