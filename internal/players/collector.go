// Package players polls the server for its online player list.
package players

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/reedfamily/craftbridge/internal/game"
	"github.com/reedfamily/craftbridge/internal/logx"
	"github.com/reedfamily/craftbridge/internal/metrics"
)

type Snapshot struct {
	game.PlayerList
	RecordedAt time.Time `json:"recorded_at"`
}

// Querier runs a console command and returns the reply.
type Querier interface {
	Send(ctx context.Context, cmd string) (string, error)
}

type Collector struct {
	db       *sql.DB
	adapter  game.Adapter
	console  Querier
	interval time.Duration
	log      zerolog.Logger

	mu        sync.RWMutex
	latest    *Snapshot
	listeners []chan Snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCollector polls every interval. db may be nil to skip persistence.
func NewCollector(db *sql.DB, adapter game.Adapter, console Querier, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{
		db:       db,
		adapter:  adapter,
		console:  console,
		interval: interval,
		log:      logx.Component("players"),
	}
}

func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
					c.log.Warn().Err(err).Msg("player poll failed")
				}
			}
		}
	}()

	c.log.Info().Dur("interval", c.interval).Msg("player collector started")
}

func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

// Refresh polls the server now, stores the result and notifies listeners.
func (c *Collector) Refresh(ctx context.Context) (Snapshot, error) {
	body, err := c.console.Send(ctx, c.adapter.PlayerCommand())
	if err != nil {
		return Snapshot{}, err
	}
	list, err := c.adapter.ParsePlayerList(body)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{PlayerList: list, RecordedAt: time.Now().UTC()}
	metrics.PlayersOnline(list.Online)

	if c.db != nil {
		names, _ := json.Marshal(list.Names)
		if _, err := c.db.ExecContext(ctx,
			`INSERT INTO players (online, max_players, names, recorded_at) VALUES (?, ?, ?, ?)`,
			list.Online, list.Max, string(names), snap.RecordedAt,
		); err != nil {
			c.log.Warn().Err(err).Msg("store player snapshot")
		}
		if _, err := c.db.ExecContext(ctx, `DELETE FROM players WHERE recorded_at < ?`, snap.RecordedAt.Add(-24*time.Hour)); err != nil {
			c.log.Warn().Err(err).Msg("player snapshot cleanup")
		}
	}

	c.mu.Lock()
	c.latest = &snap
	listeners := append([]chan Snapshot(nil), c.listeners...)
	c.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- snap:
		default:
		}
	}
	return snap, nil
}

// Latest returns the last successful poll, if any.
func (c *Collector) Latest() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return Snapshot{}, false
	}
	return *c.latest, true
}

// History returns stored snapshots since the given time, oldest first.
func (c *Collector) History(ctx context.Context, since time.Time) ([]Snapshot, error) {
	out := []Snapshot{}
	if c.db == nil {
		return out, nil
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT online, max_players, names, recorded_at FROM players WHERE recorded_at >= ? ORDER BY recorded_at`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s Snapshot
		var names string
		if err := rows.Scan(&s.Online, &s.Max, &names, &s.RecordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(names), &s.Names); err != nil {
			s.Names = []string{}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *Collector) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	c.listeners = append(c.listeners, ch)
	c.mu.Unlock()
	return ch
}

func (c *Collector) Unsubscribe(ch chan Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, l := range c.listeners {
		if l == ch {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}
