package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/reedfamily/craftbridge/internal/events"
)

// LineWriter writes a console command to the server's stdin.
type LineWriter interface {
	Send(cmd string) error
}

type ConsoleHandler struct {
	hub   *events.Hub
	stdin LineWriter
}

func NewConsoleHandler(hub *events.Hub, stdin LineWriter) *ConsoleHandler {
	return &ConsoleHandler{hub: hub, stdin: stdin}
}

// Handle streams console lines and bridge events to the client as JSON
// messages. Text frames from the client are written to the server's stdin,
// one command per frame.
func (h *ConsoleHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("console websocket upgrade")
		return
	}
	defer conn.Close()

	ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(ch)

	// Read from WebSocket -> server stdin
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			typ, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if typ != websocket.TextMessage || h.stdin == nil {
				continue
			}
			cmd := strings.TrimSpace(string(msg))
			if cmd == "" {
				continue
			}
			if err := h.stdin.Send(cmd); err != nil {
				log.Warn().Err(err).Msg("console write")
				return
			}
			log.Info().Str("command", cmd).Msg("console command")
		}
	}()

	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
