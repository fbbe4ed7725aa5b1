// Package process runs or attaches to the game server process and turns its
// output into game events.
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/reedfamily/craftbridge/internal/game"
	"github.com/reedfamily/craftbridge/internal/logx"
	"github.com/reedfamily/craftbridge/internal/metrics"
)

// Handle is a running server process with line-oriented output streams and
// a writable stdin.
type Handle interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Stdin() io.Writer
	Wait() error
}

const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Line is one raw output line as read from the process.
type Line struct {
	Stream string    `json:"stream"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// EventHandler receives classified events one at a time.
type EventHandler func(ctx context.Context, ev game.Event)

// Source reads process output and delivers events to a single handler.
// Both streams share one lock, so at most one line is being handled at any
// moment and a reader does not take its next line until the handler has
// returned. A slow handler therefore backs up the process's own output.
type Source struct {
	adapter game.Adapter
	handler EventHandler
	observe func(Line)
	log     zerolog.Logger

	mu sync.Mutex
}

type SourceOption func(*Source)

// WithLineObserver is called with every raw line, before parsing.
func WithLineObserver(f func(Line)) SourceOption {
	return func(s *Source) { s.observe = f }
}

func WithLogger(l zerolog.Logger) SourceOption {
	return func(s *Source) { s.log = l }
}

func NewSource(adapter game.Adapter, handler EventHandler, opts ...SourceOption) *Source {
	s := &Source{
		adapter: adapter,
		handler: handler,
		observe: func(Line) {},
		log:     logx.Component("process"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads both streams until they are exhausted. After ctx is cancelled
// lines are still drained so the process never blocks on a full pipe, but
// no further events are delivered.
func (s *Source) Run(ctx context.Context, stdout, stderr io.Reader) error {
	var wg sync.WaitGroup
	errs := make([]error, 2)
	readers := []struct {
		stream string
		r      io.Reader
	}{{StreamStdout, stdout}, {StreamStderr, stderr}}

	for i, rd := range readers {
		if rd.r == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.scan(ctx, rd.stream, rd.r)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// MaxLineBytes is how much of one output line is kept. The remainder of a
// longer line is read and dropped so the pipe keeps draining.
const MaxLineBytes = 1 << 20

func (s *Source) scan(ctx context.Context, stream string, r io.Reader) error {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		text, truncated, err := readLine(br, MaxLineBytes)
		if truncated {
			s.log.Warn().Str("stream", stream).Int("kept", MaxLineBytes).Msg("output line too long; truncated")
		}
		if err == nil || text != "" {
			s.deliver(ctx, Line{Stream: stream, Text: text, Time: time.Now()})
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", stream, err)
		}
	}
}

// readLine returns the next line without its line ending, keeping at most
// limit bytes. The final line of a stream may end at EOF instead of '\n'.
func readLine(br *bufio.Reader, limit int) (string, bool, error) {
	var (
		line      []byte
		truncated bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		chunk = bytes.TrimSuffix(chunk, []byte("\n"))
		if room := limit - len(line); len(chunk) > room {
			chunk, truncated = chunk[:room], true
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(bytes.TrimSuffix(line, []byte("\r"))), truncated, err
	}
}

func (s *Source) deliver(ctx context.Context, line Line) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observe(line)
	if ctx.Err() != nil {
		return
	}

	if line.Stream == StreamStderr {
		metrics.LogLine(line.Stream, "raw")
		s.log.Error().Str("line", line.Text).Msg("server stderr")
		s.dispatch(ctx, game.Event{Kind: game.ProcessError, Text: line.Text, Line: game.LogLine{Raw: line.Text}})
		return
	}

	s.log.Info().Str("line", line.Text).Msg("server")
	parsed, err := s.adapter.ParseLine(line.Text)
	if err != nil {
		metrics.LogLine(line.Stream, "unparsable")
		s.log.Warn().Str("line", line.Text).Msg("failed to parse log line")
		return
	}
	metrics.LogLine(line.Stream, "parsed")
	for _, ev := range s.adapter.Classify(parsed) {
		s.dispatch(ctx, ev)
	}
}

// dispatch runs the handler for one event. A panic is logged and swallowed
// so one bad event cannot stop the reader.
func (s *Source) dispatch(ctx context.Context, ev game.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Stringer("kind", ev.Kind).Str("line", ev.Line.Raw).Msg("event handler panicked")
		}
	}()
	metrics.Event(ev.Kind.String())
	s.handler(ctx, ev)
}
