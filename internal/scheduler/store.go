package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
)

// ActionBackup takes a world backup. Any other action is sent to the
// server as a console command.
const ActionBackup = "backup"

var (
	ErrNotFound      = errors.New("schedule not found")
	ErrInvalidCron   = errors.New("invalid cron expression")
	ErrInvalidAction = errors.New("invalid action")
)

type Schedule struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CronExpr  string `json:"cron_expr"`
	Action    string `json:"action"`
	Enabled   bool   `json:"enabled"`
	LastRun   string `json:"last_run"`
	CreatedAt string `json:"created_at"`
}

// Patch holds the fields of an update; nil fields are left unchanged.
type Patch struct {
	Name     *string `json:"name"`
	CronExpr *string `json:"cron_expr"`
	Action   *string `json:"action"`
	Enabled  *bool   `json:"enabled"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func Validate(cronExpr, action string) error {
	if !gronx.New().IsValid(cronExpr) {
		return fmt.Errorf("%w: %q", ErrInvalidCron, cronExpr)
	}
	if strings.TrimSpace(action) == "" || strings.ContainsAny(action, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	return nil
}

const selectSchedule = `SELECT id, name, cron_expr, action, enabled, COALESCE(last_run, ''), created_at FROM schedules`

func scanSchedule(row interface{ Scan(...any) error }) (Schedule, error) {
	var s Schedule
	var enabled int
	err := row.Scan(&s.ID, &s.Name, &s.CronExpr, &s.Action, &enabled, &s.LastRun, &s.CreatedAt)
	s.Enabled = enabled == 1
	return s, err
}

func (s *Store) List(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx, selectSchedule+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := []Schedule{}
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			continue
		}
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (Schedule, error) {
	sc, err := scanSchedule(s.db.QueryRowContext(ctx, selectSchedule+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, ErrNotFound
	}
	return sc, err
}

func (s *Store) Create(ctx context.Context, name, cronExpr, action string) (Schedule, error) {
	if name == "" {
		return Schedule{}, errors.New("name required")
	}
	if err := Validate(cronExpr, action); err != nil {
		return Schedule{}, err
	}
	id := uuid.New().String()[:8]
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, name, cron_expr, action) VALUES (?, ?, ?, ?)`,
		id, name, cronExpr, action,
	)
	if err != nil {
		return Schedule{}, fmt.Errorf("create schedule: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Store) Update(ctx context.Context, id string, p Patch) (Schedule, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return Schedule{}, err
	}
	if p.Name != nil {
		cur.Name = *p.Name
	}
	if p.CronExpr != nil {
		cur.CronExpr = *p.CronExpr
	}
	if p.Action != nil {
		cur.Action = *p.Action
	}
	if p.Enabled != nil {
		cur.Enabled = *p.Enabled
	}
	if err := Validate(cur.CronExpr, cur.Action); err != nil {
		return Schedule{}, err
	}
	enabled := 0
	if cur.Enabled {
		enabled = 1
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE schedules SET name = ?, cron_expr = ?, action = ?, enabled = ? WHERE id = ?`,
		cur.Name, cur.CronExpr, cur.Action, enabled, id,
	)
	if err != nil {
		return Schedule{}, fmt.Errorf("update schedule: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
