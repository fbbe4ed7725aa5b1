package command

import (
	"encoding/json"
	"strings"
)

// Envelope names a command and carries its raw arguments.
type Envelope struct {
	Name string  `json:"commandName"`
	Args []Value `json:"arguments"`
}

// ParseEnvelope decodes {"commandName": ..., "arguments": [...]}. Anything
// that does not decode to that shape becomes an envelope whose name is the
// whole text and which has no arguments, so free chat after the marker
// still resolves to a lookup.
func ParseEnvelope(text string) Envelope {
	text = strings.TrimSpace(text)
	var wire struct {
		Name *string         `json:"commandName"`
		Args json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text), &wire); err != nil || wire.Name == nil || *wire.Name == "" {
		return Envelope{Name: text}
	}

	env := Envelope{Name: *wire.Name}
	if len(wire.Args) > 0 && string(wire.Args) != "null" {
		if err := json.Unmarshal(wire.Args, &env.Args); err != nil {
			return Envelope{Name: text}
		}
	}
	return env
}
