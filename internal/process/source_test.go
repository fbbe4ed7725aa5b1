package process

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reedfamily/craftbridge/internal/game"
	"github.com/reedfamily/craftbridge/internal/game/minecraft"
)

type recorder struct {
	mu     sync.Mutex
	events []game.Event
}

func (r *recorder) handle(ctx context.Context, ev game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []game.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]game.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func TestSourceClassifiesStdout(t *testing.T) {
	rec := &recorder{}
	src := NewSource(minecraft.New(game.DefaultMarkers), rec.handle)
	stdout := strings.NewReader(strings.Join([]string{
		"[12:00:00] [Server thread/INFO]: Steve joined the game",
		`[12:00:01] [Server thread/INFO]: <Steve> AzCraft: {"commandName":"hello","arguments":["x"]}`,
		"[12:00:02] [Server thread/INFO]: Steve left the game",
	}, "\n"))

	if err := src.Run(context.Background(), stdout, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := rec.kinds()
	want := []game.EventKind{game.PlayerJoined, game.ChatCommandReceived, game.PlayerLeft}
	if len(got) != len(want) {
		t.Fatalf("kinds = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kinds = %v; want %v", got, want)
		}
	}
	if rec.events[1].Text != `{"commandName":"hello","arguments":["x"]}` {
		t.Fatalf("command text = %q", rec.events[1].Text)
	}
}

func TestSourceUnparsableLineWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	rec := &recorder{}
	src := NewSource(minecraft.New(game.DefaultMarkers), rec.handle, WithLogger(zerolog.New(&buf).Level(zerolog.WarnLevel)))

	if err := src.Run(context.Background(), strings.NewReader("Loading libraries, please wait...\n"), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(rec.kinds()); n != 0 {
		t.Fatalf("got %d events; want none", n)
	}
	if n := strings.Count(buf.String(), `"level":"warn"`); n != 1 {
		t.Fatalf("got %d warnings; want 1: %s", n, buf.String())
	}
}

func TestSourceStderrIsProcessError(t *testing.T) {
	rec := &recorder{}
	src := NewSource(minecraft.New(game.DefaultMarkers), rec.handle, WithLogger(zerolog.Nop()))

	if err := src.Run(context.Background(), nil, strings.NewReader("Exception in thread main\n")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Kind != game.ProcessError || rec.events[0].Text != "Exception in thread main" {
		t.Fatalf("events = %+v", rec.events)
	}
}

func TestSourceRecoversHandlerPanic(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, ev game.Event) {
		calls++
		if calls == 1 {
			panic("boom")
		}
	}
	src := NewSource(minecraft.New(game.DefaultMarkers), handler, WithLogger(zerolog.Nop()))
	stdout := strings.NewReader("[12:00:00] [Server thread/INFO]: Alex joined the game\n[12:00:01] [Server thread/INFO]: Alex left the game\n")

	if err := src.Run(context.Background(), stdout, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d; want 2", calls)
	}
}

func TestSourceSerialisesHandlers(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	handler := func(ctx context.Context, ev game.Event) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}
	src := NewSource(minecraft.New(game.DefaultMarkers), handler, WithLogger(zerolog.Nop()))

	var out, errs strings.Builder
	for i := 0; i < 20; i++ {
		out.WriteString("[12:00:00] [Server thread/INFO]: Alex joined the game\n")
		errs.WriteString("warning\n")
	}
	if err := src.Run(context.Background(), strings.NewReader(out.String()), strings.NewReader(errs.String())); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak != 1 {
		t.Fatalf("peak concurrent handlers = %d; want 1", peak)
	}
}

func TestSourceStopsDeliveringAfterCancel(t *testing.T) {
	rec := &recorder{}
	var lines int
	src := NewSource(minecraft.New(game.DefaultMarkers), rec.handle, WithLogger(zerolog.Nop()), WithLineObserver(func(Line) { lines++ }))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stdout := strings.NewReader("[12:00:00] [Server thread/INFO]: Alex joined the game\n")
	if err := src.Run(ctx, stdout, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("events delivered after cancel: %+v", rec.events)
	}
	if lines != 1 {
		t.Fatalf("observed %d lines; want 1", lines)
	}
}

func TestSourceSurvivesOverlongLine(t *testing.T) {
	rec := &recorder{}
	src := NewSource(minecraft.New(game.DefaultMarkers), rec.handle, WithLogger(zerolog.Nop()))

	pr, pw := io.Pipe()
	written := make(chan error, 1)
	go func() {
		long := "[12:00:00] [Server thread/INFO]: " + strings.Repeat("x", 2<<20)
		_, err := io.WriteString(pw, long+"\r\n[12:00:01] [Server thread/INFO]: Bob joined the game\n")
		pw.Close()
		written <- err
	}()

	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background(), pr, nil) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("reader stalled on an overlong line")
	}
	if err := <-written; err != nil {
		t.Fatalf("write: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 || rec.events[0].Kind != game.PlayerJoined || rec.events[0].Player != "Bob" {
		t.Fatalf("events = %+v; want one join by Bob", rec.events)
	}
}

func TestReadLineTruncates(t *testing.T) {
	br := bufio.NewReaderSize(strings.NewReader(strings.Repeat("a", 100)+"\nshort\r\ntail"), 16)

	tests := []struct {
		text      string
		truncated bool
		err       error
	}{
		{strings.Repeat("a", 40), true, nil},
		{"short", false, nil},
		{"tail", false, io.EOF},
	}
	for i, tt := range tests {
		text, truncated, err := readLine(br, 40)
		if text != tt.text || truncated != tt.truncated || err != tt.err {
			t.Fatalf("line %d = %q, %v, %v; want %q, %v, %v", i, text, truncated, err, tt.text, tt.truncated, tt.err)
		}
	}
}

func TestSinkAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf)
	if err := sink.Send("say hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := sink.Send("stop"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if buf.String() != "say hi\nstop\n" {
		t.Fatalf("stdin = %q", buf.String())
	}
	if err := sink.Send("say a\nop me"); err != ErrMultiline {
		t.Fatalf("err = %v; want ErrMultiline", err)
	}
}
