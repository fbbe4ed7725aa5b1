package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub(nil)
	a, b := h.Subscribe(), h.Subscribe()
	defer h.Unsubscribe(a)

	h.Publish(TypeEvent, "joined")
	for _, ch := range []chan Message{a, b} {
		select {
		case msg := <-ch:
			if msg.Type != TypeEvent || msg.Data != "joined" {
				t.Fatalf("msg = %+v", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("listener got nothing")
		}
	}

	h.Unsubscribe(b)
	if _, ok := <-b; ok {
		t.Fatal("unsubscribed channel still open")
	}
	if h.Listeners() != 1 {
		t.Fatalf("listeners = %d", h.Listeners())
	}
}

func TestHubDropsForSlowListener(t *testing.T) {
	h := NewHub(nil)
	ch := h.Subscribe()
	for i := 0; i < cap(ch)+10; i++ {
		h.Publish(TypeLine, i)
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered %d; want %d", len(ch), cap(ch))
	}
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(ctx context.Context, msg Message) error {
	f.calls++
	return errors.New("down")
}

func TestHubSkipsLinesExternally(t *testing.T) {
	f := &failingPublisher{}
	h := NewHub(f)
	h.Publish(TypeLine, "noise")
	h.Publish(TypeCommand, "hello")
	if f.calls != 1 {
		t.Fatalf("external calls = %d; want 1", f.calls)
	}
}

func TestRedisPublisher(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	pub, err := NewRedisPublisher(ctx, mr.Addr(), "")
	if err != nil {
		t.Fatalf("NewRedisPublisher: %v", err)
	}
	defer pub.Close()

	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer c.Close()
	sub := c.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	h := NewHub(pub)
	h.Publish(TypeEvent, map[string]string{"kind": "player_join", "player": "Steve"})

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	m, err := sub.ReceiveMessage(rctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	var got struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal([]byte(m.Payload), &got); err != nil {
		t.Fatalf("payload %q: %v", m.Payload, err)
	}
	if got.Type != TypeEvent || got.Data["player"] != "Steve" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestNewRedisPublisherUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedisPublisher(ctx, "redis://127.0.0.1:1/0", ""); err == nil {
		t.Fatal("expected ping failure")
	}
}
