package game

import (
	"errors"
	"fmt"
)

// Adapter provides game-specific behavior for the managed server.
type Adapter interface {
	// Game returns the game identifier (e.g., "minecraft")
	Game() string

	// ParseLine splits a raw stdout line into its timestamp, source, level
	// and message. Lines that do not follow the server's format return
	// ErrUnparsable.
	ParseLine(line string) (LogLine, error)

	// Classify derives events from a parsed line. The checks are
	// independent, so one line can yield more than one event.
	Classify(line LogLine) []Event

	// PlayerCommand returns the command to list online players
	PlayerCommand() string

	// ParsePlayerList reads the response to PlayerCommand.
	ParsePlayerList(body string) (PlayerList, error)

	// StopCommand returns the graceful stop command for the server
	StopCommand() string
}

// Markers are the chat prefixes that carry embedded commands.
type Markers struct {
	Chat  string `yaml:"chat"`
	Shell string `yaml:"shell"`
}

var DefaultMarkers = Markers{Chat: "AzCraft:", Shell: "pwsh:"}

var ErrUnparsable = errors.New("game: unparsable log line")

type PlayerList struct {
	Online int      `json:"online"`
	Max    int      `json:"max"`
	Names  []string `json:"names"`
}

type LogLine struct {
	Time    string `json:"time"`
	Source  string `json:"source"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Raw     string `json:"raw"`
}

type EventKind int

const (
	PlayerJoined EventKind = iota + 1
	PlayerLeft
	ChatCommandReceived
	ShellCommandReceived
	ProcessError
)

func (k EventKind) String() string {
	switch k {
	case PlayerJoined:
		return "player_join"
	case PlayerLeft:
		return "player_leave"
	case ChatCommandReceived:
		return "chat_command"
	case ShellCommandReceived:
		return "shell_command"
	case ProcessError:
		return "process_error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is one classified occurrence. Player is set for join/leave, Text
// for commands and process errors.
type Event struct {
	Kind   EventKind `json:"kind"`
	Player string    `json:"player,omitempty"`
	Text   string    `json:"text,omitempty"`
	Line   LogLine   `json:"line"`
}
