package scheduler

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"github.com/reedfamily/craftbridge/internal/backup"
	"github.com/reedfamily/craftbridge/internal/history"
	"github.com/reedfamily/craftbridge/internal/logx"
)

type Backuper interface {
	Create(ctx context.Context, reason string) (*backup.Backup, error)
}

type Console interface {
	Send(ctx context.Context, cmd string) (string, error)
}

type Recorder interface {
	Append(ctx context.Context, e history.Entry) (history.Entry, error)
}

type Scheduler struct {
	store   *Store
	backup  Backuper
	console Console
	history Recorder
	cron    *gronx.Gronx
	log     zerolog.Logger
	cancel  context.CancelFunc
}

// New returns a scheduler; history may be nil.
func New(store *Store, backupSvc Backuper, console Console, history Recorder) *Scheduler {
	return &Scheduler{
		store:   store,
		backup:  backupSvc,
		console: console,
		history: history,
		cron:    gronx.New(),
		log:     logx.Component("scheduler"),
	}
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		// Check once a minute, aligned to the minute
		for {
			now := time.Now()
			nextMinute := now.Truncate(time.Minute).Add(time.Minute)

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(nextMinute)):
				s.Tick(ctx, nextMinute)
			}
		}
	}()

	s.log.Info().Msg("scheduler started")
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Tick runs every enabled schedule that is due at now.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	schedules, err := s.store.List(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list schedules")
		return
	}

	for _, sc := range schedules {
		if !sc.Enabled {
			continue
		}
		due, err := s.cron.IsDue(sc.CronExpr, now)
		if err != nil {
			s.log.Warn().Err(err).Str("schedule", sc.ID).Str("cron", sc.CronExpr).Msg("invalid cron")
			continue
		}
		if !due {
			continue
		}

		s.log.Info().Str("schedule", sc.ID).Str("action", sc.Action).Msg("running schedule")
		s.Run(ctx, sc)

		if _, err := s.store.db.ExecContext(ctx, `UPDATE schedules SET last_run = ? WHERE id = ?`, now.UTC(), sc.ID); err != nil {
			s.log.Warn().Err(err).Str("schedule", sc.ID).Msg("update last_run")
		}
	}
}

// Run executes one schedule's action immediately.
func (s *Scheduler) Run(ctx context.Context, sc Schedule) (string, error) {
	var (
		result string
		err    error
	)
	if sc.Action == ActionBackup {
		var b *backup.Backup
		if b, err = s.backup.Create(ctx, "schedule "+sc.Name); err == nil {
			result = b.Filename
		}
	} else {
		result, err = s.console.Send(ctx, sc.Action)
	}

	entry := history.Entry{Kind: "schedule", Source: history.SourceSchedule, Text: sc.Action, Result: result}
	if err != nil {
		entry.Error = err.Error()
		s.log.Error().Err(err).Str("schedule", sc.ID).Str("action", sc.Action).Msg("schedule failed")
	}
	if s.history != nil {
		if _, herr := s.history.Append(ctx, entry); herr != nil {
			s.log.Warn().Err(herr).Msg("record schedule run")
		}
	}
	return result, err
}
