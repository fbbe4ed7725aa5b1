// Package bridge reacts to game events: it dispatches chat commands, runs
// shell commands and relays their output back into the game.
package bridge

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/reedfamily/craftbridge/internal/command"
	"github.com/reedfamily/craftbridge/internal/events"
	"github.com/reedfamily/craftbridge/internal/game"
	"github.com/reedfamily/craftbridge/internal/history"
	"github.com/reedfamily/craftbridge/internal/logx"
	"github.com/reedfamily/craftbridge/internal/metrics"
	"github.com/reedfamily/craftbridge/internal/rcon"
	"github.com/reedfamily/craftbridge/internal/shell"
)

// Sender delivers a console command over RCON.
type Sender interface {
	SendCommand(ctx context.Context, cmd string) (rcon.Response, error)
}

type Recorder interface {
	Append(ctx context.Context, e history.Entry) (history.Entry, error)
}

type Publisher interface {
	Publish(typ string, data any)
}

type Controller struct {
	registry *command.Registry
	shell    shell.Runner
	rcon     Sender
	history  Recorder
	hub      Publisher
	log      zerolog.Logger
}

type Option func(*Controller)

func WithHistory(r Recorder) Option { return func(c *Controller) { c.history = r } }

func WithPublisher(p Publisher) Option { return func(c *Controller) { c.hub = p } }

func WithLogger(l zerolog.Logger) Option { return func(c *Controller) { c.log = l } }

// New returns a controller. sh may be nil, in which case shell events are
// logged and ignored.
func New(registry *command.Registry, sh shell.Runner, rc Sender, opts ...Option) *Controller {
	c := &Controller{
		registry: registry,
		shell:    sh,
		rcon:     rc,
		log:      logx.Component("bridge"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleEvent never returns an error: failures are logged and recorded.
func (c *Controller) HandleEvent(ctx context.Context, ev game.Event) {
	c.publish(events.TypeEvent, ev)

	switch ev.Kind {
	case game.PlayerJoined, game.PlayerLeft:
		c.log.Info().Str("player", ev.Player).Stringer("kind", ev.Kind).Msg("player presence")
		c.record(ctx, history.Entry{Kind: ev.Kind.String(), Player: ev.Player, Text: ev.Line.Message})

	case game.ChatCommandReceived:
		c.handleChatCommand(ctx, ev)

	case game.ShellCommandReceived:
		c.handleShellCommand(ctx, ev)

	case game.ProcessError:
		c.log.Error().Str("line", ev.Text).Msg("process error")
		c.record(ctx, history.Entry{Kind: ev.Kind.String(), Text: ev.Text})
	}
}

// Dispatch parses text as a command envelope and runs it. It is the entry
// point for chat commands and for commands submitted over the API.
func (c *Controller) Dispatch(ctx context.Context, source, player, text string) (string, error) {
	env := command.ParseEnvelope(text)
	log := c.log.With().Str("command", env.Name).Str("player", player).Str("source", source).Logger()

	result, err := c.registry.Dispatch(ctx, env)
	entry := history.Entry{Kind: "command", Source: source, Player: player, Text: text, Result: result}
	switch {
	case err == nil:
		metrics.Dispatch("ok")
		log.Info().Str("result", result).Msg("command executed")
	case errors.Is(err, command.ErrCommandNotFound):
		metrics.Dispatch("not_found")
		log.Warn().Err(err).Msg("unknown command")
	case errors.Is(err, command.ErrArityMismatch), errors.Is(err, command.ErrArgumentType):
		metrics.Dispatch("bad_arguments")
		log.Warn().Err(err).Msg("bad command arguments")
	default:
		metrics.Dispatch("failed")
		log.Error().Err(err).Msg("command failed")
	}
	if err != nil {
		entry.Error = err.Error()
	}
	c.record(ctx, entry)
	c.publish(events.TypeCommand, entry)
	return result, err
}

func (c *Controller) handleChatCommand(ctx context.Context, ev game.Event) {
	c.Dispatch(ctx, history.SourceChat, ev.Player, ev.Text)
}

// handleShellCommand runs the text through the shell and says each
// non-empty output line in order, one RCON round trip per line.
func (c *Controller) handleShellCommand(ctx context.Context, ev game.Event) {
	log := c.log.With().Str("player", ev.Player).Str("shell", ev.Text).Logger()
	entry := history.Entry{Kind: "shell", Source: history.SourceShell, Player: ev.Player, Text: ev.Text}
	defer func() {
		c.record(ctx, entry)
		c.publish(events.TypeCommand, entry)
	}()

	if c.shell == nil {
		log.Warn().Msg("shell commands are disabled")
		entry.Error = "shell disabled"
		return
	}

	out, err := c.shell.Run(ctx, ev.Text)
	entry.Result = out
	if err != nil {
		log.Error().Err(err).Msg("shell command failed")
		entry.Error = err.Error()
		var failed *shell.CommandFailedError
		if !errors.As(err, &failed) {
			return
		}
	}

	for _, line := range OutputLines(out) {
		if _, err := c.rcon.SendCommand(ctx, "say "+line); err != nil {
			log.Error().Err(err).Msg("relay shell output")
			if entry.Error == "" {
				entry.Error = err.Error()
			}
			return
		}
	}
}

// OutputLines splits on both \n and \r and drops empty lines.
func OutputLines(out string) []string {
	return strings.FieldsFunc(out, func(r rune) bool { return r == '\n' || r == '\r' })
}

func (c *Controller) record(ctx context.Context, e history.Entry) {
	if c.history == nil {
		return
	}
	if _, err := c.history.Append(ctx, e); err != nil {
		c.log.Warn().Err(err).Str("kind", e.Kind).Msg("record history")
	}
}

func (c *Controller) publish(typ string, data any) {
	if c.hub != nil {
		c.hub.Publish(typ, data)
	}
}
