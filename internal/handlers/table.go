// Package handlers declares the commands players can run from chat.
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/reedfamily/craftbridge/internal/backup"
	"github.com/reedfamily/craftbridge/internal/command"
	"github.com/reedfamily/craftbridge/internal/console"
	"github.com/reedfamily/craftbridge/internal/players"
)

type Console interface {
	Send(ctx context.Context, cmd string) (string, error)
	Say(message string) error
	Summon(entity string, pos console.Position, nbt command.Value) error
	Fill(from, to console.Position, block string) error
	SetBlock(pos console.Position, block string, nbt command.Value) error
	Kill(selector string) error
}

type Players interface {
	Refresh(ctx context.Context) (players.Snapshot, error)
}

type Backups interface {
	Create(ctx context.Context, reason string) (*backup.Backup, error)
}

// Deps are the collaborators the handlers close over. Players and Backups
// are optional; their commands are left out when nil.
type Deps struct {
	Console Console
	Players Players
	Backups Backups

	// RawRCON adds the rcon command, which lets anyone who can chat run any
	// console command.
	RawRCON bool
}

func param(name string, kind command.ParamKind) command.Param {
	return command.Param{Name: name, Kind: kind}
}

func pos(args command.Args, first int) console.Position {
	return console.At(float64(args.Int(first)), float64(args.Int(first+1)), float64(args.Int(first+2)))
}

// Table returns the full command table for d.
func Table(d Deps) []command.Handler {
	c := d.Console
	table := []command.Handler{
		{
			Name:        "hello",
			Description: "Greets name in the bridge log",
			Params:      []command.Param{param("name", command.ParamString)},
			Invoke: func(ctx context.Context, args command.Args) (string, error) {
				return fmt.Sprintf("Hello %s!", args.String(0)), nil
			},
		},
		{
			Name:        "say",
			Description: "Broadcasts message to all players",
			Params:      []command.Param{param("message", command.ParamString)},
			Invoke: func(ctx context.Context, args command.Args) (string, error) {
				return "", c.Say(args.String(0))
			},
		},
		{
			Name:        "fill",
			Description: "Fills the box between two corners with block",
			Params: []command.Param{
				param("x1", command.ParamInt), param("y1", command.ParamInt), param("z1", command.ParamInt),
				param("x2", command.ParamInt), param("y2", command.ParamInt), param("z2", command.ParamInt),
				param("block", command.ParamString),
			},
			Invoke: func(ctx context.Context, args command.Args) (string, error) {
				if args.String(6) == "" {
					return "", fmt.Errorf("fill: block required")
				}
				return "", c.Fill(pos(args, 0), pos(args, 3), args.String(6))
			},
		},
		{
			Name:        "setblock",
			Description: "Places block at a position, with optional NBT data",
			Params: []command.Param{
				param("x", command.ParamInt), param("y", command.ParamInt), param("z", command.ParamInt),
				param("block", command.ParamString), param("nbt", command.ParamObject),
			},
			Invoke: func(ctx context.Context, args command.Args) (string, error) {
				if args.String(3) == "" {
					return "", fmt.Errorf("setblock: block required")
				}
				return "", c.SetBlock(pos(args, 0), args.String(3), args.Object(4))
			},
		},
		{
			Name:        "summon",
			Description: "Summons entity at a position, with optional NBT data",
			Params: []command.Param{
				param("entity", command.ParamString),
				param("x", command.ParamInt), param("y", command.ParamInt), param("z", command.ParamInt),
				param("nbt", command.ParamObject),
			},
			Invoke: func(ctx context.Context, args command.Args) (string, error) {
				if args.String(0) == "" {
					return "", fmt.Errorf("summon: entity required")
				}
				return "", c.Summon(args.String(0), pos(args, 1), args.Object(4))
			},
		},
		{
			Name:        "kill",
			Description: "Kills entities matching selector",
			Params:      []command.Param{param("selector", command.ParamString)},
			Invoke: func(ctx context.Context, args command.Args) (string, error) {
				if args.String(0) == "" {
					return "", fmt.Errorf("kill: selector required")
				}
				return "", c.Kill(args.String(0))
			},
		},
	}

	if d.RawRCON {
		table = append(table, command.Handler{
			Name:        "rcon",
			Description: "Runs a console command and broadcasts the reply",
			Params:      []command.Param{param("command", command.ParamString)},
			Invoke: func(ctx context.Context, args command.Args) (string, error) {
				body, err := c.Send(ctx, args.String(0))
				if err != nil {
					return "", err
				}
				if body = strings.TrimSpace(body); body != "" {
					if err := c.Say(body); err != nil {
						return body, err
					}
				}
				return body, nil
			},
		})
	}
	if d.Players != nil {
		table = append(table, command.Handler{
			Name:        "players",
			Description: "Broadcasts the online player list",
			Invoke: func(ctx context.Context, args command.Args) (string, error) {
				snap, err := d.Players.Refresh(ctx)
				if err != nil {
					return "", err
				}
				msg := fmt.Sprintf("%d/%d online", snap.Online, snap.Max)
				if len(snap.Names) > 0 {
					msg += ": " + strings.Join(snap.Names, ", ")
				}
				return msg, c.Say(msg)
			},
		})
	}
	if d.Backups != nil {
		table = append(table, command.Handler{
			Name:        "backup",
			Description: "Takes a world backup",
			Invoke: func(ctx context.Context, args command.Args) (string, error) {
				if err := c.Say("Backing up the world..."); err != nil {
					return "", err
				}
				b, err := d.Backups.Create(ctx, "chat")
				if err != nil {
					c.Say("Backup failed")
					return "", err
				}
				msg := fmt.Sprintf("Backup %s done (%d bytes)", b.ID, b.SizeBytes)
				return msg, c.Say(msg)
			},
		})
	}
	return table
}

// NewRegistry builds the registry for d.
func NewRegistry(d Deps) (*command.Registry, error) {
	return command.NewRegistry(Table(d))
}
