// Package events fans out bridge activity (console lines, game events,
// command results, player snapshots) to live listeners and an optional
// external publisher.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/reedfamily/craftbridge/internal/logx"
)

const (
	TypeLine    = "line"
	TypeEvent   = "event"
	TypeCommand = "command"
	TypePlayers = "players"
)

type Message struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Publisher forwards messages outside the process.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Hub delivers messages to subscribers. Each subscriber has a small
// buffer; a message that does not fit is dropped for that subscriber only.
type Hub struct {
	mu        sync.RWMutex
	listeners map[chan Message]struct{}
	external  Publisher
	log       zerolog.Logger
}

func NewHub(external Publisher) *Hub {
	return &Hub{
		listeners: make(map[chan Message]struct{}),
		external:  external,
		log:       logx.Component("events"),
	}
}

func (h *Hub) Subscribe() chan Message {
	ch := make(chan Message, 64)
	h.mu.Lock()
	h.listeners[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[ch]; ok {
		delete(h.listeners, ch)
		close(ch)
	}
}

// Publish never blocks on a listener. The external publisher, if any, is
// called synchronously with a short timeout.
func (h *Hub) Publish(typ string, data any) {
	msg := Message{Type: typ, Time: time.Now().UTC(), Data: data}

	h.mu.RLock()
	for ch := range h.listeners {
		select {
		case ch <- msg:
		default:
		}
	}
	h.mu.RUnlock()

	if h.external == nil || typ == TypeLine {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.external.Publish(ctx, msg); err != nil {
		h.log.Warn().Err(err).Str("type", typ).Msg("external publish failed")
	}
}

func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
