// Package console is the bridge's way of talking back to the server: RCON
// for commands that need a reply, stdin for fire-and-forget world edits.
package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/reedfamily/craftbridge/internal/command"
	"github.com/reedfamily/craftbridge/internal/rcon"
)

// CommandSender sends a command and waits for the server's reply.
type CommandSender interface {
	SendCommand(ctx context.Context, cmd string) (rcon.Response, error)
}

// LineWriter writes a command to the server's stdin without a reply.
type LineWriter interface {
	Send(cmd string) error
}

type Console struct {
	rcon  CommandSender
	stdin LineWriter
}

func New(rcon CommandSender, stdin LineWriter) *Console {
	return &Console{rcon: rcon, stdin: stdin}
}

// Send runs cmd over RCON and returns the reply body.
func (c *Console) Send(ctx context.Context, cmd string) (string, error) {
	resp, err := c.rcon.SendCommand(ctx, cmd)
	if err != nil {
		return "", err
	}
	return resp.Body, nil
}

// SendVoid writes cmd to stdin.
func (c *Console) SendVoid(cmd string) error {
	if c.stdin == nil {
		return fmt.Errorf("console: no stdin attached")
	}
	return c.stdin.Send(cmd)
}

func (c *Console) Say(message string) error {
	return c.SendVoid("say " + message)
}

func (c *Console) Summon(entity string, pos Position, nbt command.Value) error {
	return c.SendVoid(join("summon", entity, pos.String(), SNBT(nbt)))
}

func (c *Console) Fill(from, to Position, block string) error {
	return c.SendVoid(join("fill", from.String(), to.String(), block))
}

func (c *Console) SetBlock(pos Position, block string, nbt command.Value) error {
	return c.SendVoid(join("setblock", pos.String(), block+SNBT(nbt)))
}

func (c *Console) Kill(selector string) error {
	return c.SendVoid(join("kill", selector))
}

func join(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
