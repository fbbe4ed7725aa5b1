package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/reedfamily/craftbridge/internal/command"
	"github.com/reedfamily/craftbridge/internal/history"
	"github.com/reedfamily/craftbridge/internal/rcon"
)

// Dispatcher runs a command envelope the same way a chat command runs.
type Dispatcher interface {
	Dispatch(ctx context.Context, source, player, text string) (string, error)
}

type Console interface {
	Send(ctx context.Context, cmd string) (string, error)
}

type CommandHandler struct {
	registry *command.Registry
	bridge   Dispatcher
	console  Console
	history  *history.Store
}

func NewCommandHandler(registry *command.Registry, bridge Dispatcher, console Console, hist *history.Store) *CommandHandler {
	return &CommandHandler{registry: registry, bridge: bridge, console: console, history: hist}
}

// List returns the command table.
func (h *CommandHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Handlers())
}

// Dispatch runs a command envelope, e.g.
// {"commandName":"say","arguments":["hi"]}.
func (h *CommandHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var env command.Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Name == "" {
		writeError(w, http.StatusBadRequest, "body must be a command envelope")
		return
	}
	result, err := h.bridge.Dispatch(r.Context(), history.SourceAPI, "", string(body))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"result": result})
	case errors.Is(err, command.ErrCommandNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, command.ErrArityMismatch), errors.Is(err, command.ErrArgumentType):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// RCON sends a raw console command and returns the reply.
func (h *CommandHandler) RCON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "command required")
		return
	}
	body, err := h.console.Send(r.Context(), req.Command)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, rcon.ErrAuthentication) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": body})
}

// History returns audit entries, newest first. ?kind= filters, ?limit=
// caps the count.
func (h *CommandHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.history.List(r.Context(), r.URL.Query().Get("kind"), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
