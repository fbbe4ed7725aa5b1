package api

import (
	"net/http"
	"time"

	"github.com/reedfamily/craftbridge/internal/players"
)

type PlayerHandler struct {
	collector *players.Collector
}

func NewPlayerHandler(collector *players.Collector) *PlayerHandler {
	return &PlayerHandler{collector: collector}
}

// Latest returns the last player poll, polling now if there is none yet
// or ?refresh=1 is given.
func (h *PlayerHandler) Latest(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.collector.Latest()
	if !ok || r.URL.Query().Get("refresh") == "1" {
		var err error
		if snap, err = h.collector.Refresh(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, "failed to query players: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

// History returns stored snapshots for ?period= (default 1h).
func (h *PlayerHandler) History(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1h"
	}
	d, err := time.ParseDuration(period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period: use format like 1h, 6h, 24h")
		return
	}
	result, err := h.collector.History(r.Context(), time.Now().Add(-d))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query players")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Live pushes a snapshot over a websocket each time the collector polls.
func (h *PlayerHandler) Live(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("players websocket upgrade")
		return
	}
	defer conn.Close()

	ch := h.collector.Subscribe()
	defer h.collector.Unsubscribe(ch)

	if latest, ok := h.collector.Latest(); ok {
		if err := conn.WriteJSON(latest); err != nil {
			return
		}
	}

	// Read from client to detect disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(s); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
