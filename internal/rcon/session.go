package rcon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/reedfamily/craftbridge/internal/logx"
	"github.com/reedfamily/craftbridge/internal/metrics"
)

const DefaultAttempts = 3

var (
	ErrAuthentication    = errors.New("rcon: authentication rejected")
	ErrAttemptsExhausted = errors.New("rcon: attempts exhausted")
)

// Transport is the connection a Session drives. *Client implements it.
type Transport interface {
	Authenticate(ctx context.Context, password string) (bool, error)
	SendCommand(ctx context.Context, command string) (Response, error)
	Close() error
}

// Dialer opens a fresh transport.
type Dialer func(ctx context.Context) (Transport, error)

// Backoff returns the delay after failed attempt n (1-based): n seconds.
func Backoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

// Session wraps one lazily opened connection with reconnect and bounded
// retry. A failed connection is closed and replaced, never repaired. Calls
// are serialized on the session, and the lock is held through the backoff
// sleeps: while one call is failing (up to 1s+2s+3s with the default
// backoff, plus I/O time) every other caller waits behind it. Connected
// does not take the lock.
type Session struct {
	dial     Dialer
	password string
	attempts int
	backoff  func(attempt int) time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	log      zerolog.Logger

	mu   sync.Mutex
	conn Transport

	// connected mirrors conn != nil so Connected does not wait out a retry.
	connected atomic.Bool
}

type SessionOption func(*Session)

func WithDialer(d Dialer) SessionOption {
	return func(s *Session) { s.dial = d }
}

func WithAttempts(n int) SessionOption {
	return func(s *Session) { s.attempts = n }
}

func WithBackoff(f func(attempt int) time.Duration) SessionOption {
	return func(s *Session) { s.backoff = f }
}

// WithSleep replaces the backoff sleep, mainly so tests can record delays.
func WithSleep(f func(ctx context.Context, d time.Duration) error) SessionOption {
	return func(s *Session) { s.sleep = f }
}

// NewSession returns a session for addr. No connection is made until the
// first command.
func NewSession(addr, password string, opts ...SessionOption) *Session {
	s := &Session{
		dial: func(ctx context.Context) (Transport, error) {
			c, err := Dial(ctx, addr)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		password: password,
		attempts: DefaultAttempts,
		backoff:  Backoff,
		sleep: func(ctx context.Context, d time.Duration) error {
			if !sleepContext(ctx, d) {
				return ctx.Err()
			}
			return nil
		},
		log: logx.Component("rcon").With().Str("addr", addr).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendCommand sends command over RCON. A dial error or a rejected login ends
// the call at once. Any other failure drops the connection and the whole
// call is retried after a growing delay, up to the attempt limit.
func (s *Session) SendCommand(ctx context.Context, command string) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if s.conn == nil {
			if err := s.connect(ctx); err != nil {
				return Response{}, err
			}
		}

		metrics.RCONAttempt()
		resp, err := s.conn.SendCommand(ctx, command)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		metrics.RCONFailure("io")
		s.drop()

		delay := s.backoff(attempt)
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("rcon command failed; reconnecting")
		if err := s.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
	}

	metrics.RCONFailure("exhausted")
	return Response{}, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, s.attempts, lastErr)
}

// Connected reports whether an authenticated connection is currently held.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Close drops the current connection, if any.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop()
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		metrics.RCONFailure("dial")
		return err
	}
	ok, err := conn.Authenticate(ctx, s.password)
	if err != nil {
		conn.Close()
		metrics.RCONFailure("auth")
		return fmt.Errorf("rcon: authenticate: %w", err)
	}
	if !ok {
		conn.Close()
		metrics.RCONFailure("auth")
		return ErrAuthentication
	}
	s.conn = conn
	s.connected.Store(true)
	metrics.RCONConnected(true)
	s.log.Info().Msg("rcon connected")
	return nil
}

func (s *Session) drop() {
	if s.conn == nil {
		return
	}
	s.conn.Close()
	s.conn = nil
	s.connected.Store(false)
	metrics.RCONConnected(false)
}
