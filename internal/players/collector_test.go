package players

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/reedfamily/craftbridge/internal/db"
	"github.com/reedfamily/craftbridge/internal/game"
	"github.com/reedfamily/craftbridge/internal/game/minecraft"
)

type fakeConsole struct {
	reply string
	err   error
	sent  []string
}

func (f *fakeConsole) Send(ctx context.Context, cmd string) (string, error) {
	f.sent = append(f.sent, cmd)
	return f.reply, f.err
}

func TestRefresh(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "players.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	fc := &fakeConsole{reply: "There are 2 of a max of 20 players online: Alice, Bob"}
	c := NewCollector(conn, minecraft.New(game.DefaultMarkers), fc, time.Minute)
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	snap, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(fc.sent) != 1 || fc.sent[0] != "list" {
		t.Fatalf("sent = %q", fc.sent)
	}
	if snap.Online != 2 || snap.Max != 20 || len(snap.Names) != 2 || snap.Names[1] != "Bob" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if got := <-ch; got.Online != 2 {
		t.Fatalf("listener got %+v", got)
	}
	if latest, ok := c.Latest(); !ok || latest.Max != 20 {
		t.Fatalf("Latest = %+v, %v", latest, ok)
	}

	hist, err := c.History(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Names[0] != "Alice" {
		t.Fatalf("history = %+v", hist)
	}
}

func TestRefreshErrors(t *testing.T) {
	c := NewCollector(nil, minecraft.New(game.DefaultMarkers), &fakeConsole{err: errors.New("offline")}, 0)
	if _, err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected console error")
	}
	c = NewCollector(nil, minecraft.New(game.DefaultMarkers), &fakeConsole{reply: "Unknown command"}, 0)
	if _, err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
	if _, ok := c.Latest(); ok {
		t.Fatal("Latest set after failed polls")
	}
}
