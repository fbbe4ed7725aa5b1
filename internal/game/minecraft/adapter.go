package minecraft

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/reedfamily/craftbridge/internal/game"
)

func init() {
	game.Register("minecraft", func(m game.Markers) game.Adapter {
		return New(m)
	})
}

type Adapter struct {
	markers game.Markers
}

func New(markers game.Markers) *Adapter {
	return &Adapter{markers: markers}
}

// [18:41:02] [Server thread/INFO]: Bob joined the game
var lineRe = regexp.MustCompile(`\[(\d{2}:\d{2}:\d{2})\] \[(.*?)\]: (.+)`)

var (
	// There are 2 of a max of 20 players online: Alice, Bob
	listRe = regexp.MustCompile(`There are (\d+) of a max(?: of)? (\d+) players online:(.*)`)
	// There are 2/20 players online: (pre-1.13 servers)
	legacyListRe = regexp.MustCompile(`There are (\d+)/(\d+) players online:(.*)`)
)

func (a *Adapter) Game() string { return "minecraft" }

func (a *Adapter) ParseLine(line string) (game.LogLine, error) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return game.LogLine{}, fmt.Errorf("%w: %q", game.ErrUnparsable, line)
	}
	source, level := m[2], ""
	if i := strings.LastIndex(m[2], "/"); i >= 0 {
		source, level = m[2][:i], m[2][i+1:]
	}
	return game.LogLine{
		Time:    m[1],
		Source:  source,
		Level:   level,
		Message: m[3],
		Raw:     line,
	}, nil
}

func (a *Adapter) Classify(line game.LogLine) []game.Event {
	msg := line.Message
	var events []game.Event

	if strings.Contains(msg, "joined the game") {
		events = append(events, game.Event{Kind: game.PlayerJoined, Player: firstToken(msg), Line: line})
	}
	if strings.Contains(msg, "left the game") {
		events = append(events, game.Event{Kind: game.PlayerLeft, Player: firstToken(msg), Line: line})
	}
	if text, ok := afterMarker(msg, a.markers.Chat); ok {
		events = append(events, game.Event{Kind: game.ChatCommandReceived, Player: chatAuthor(msg), Text: text, Line: line})
	}
	if text, ok := afterMarker(msg, a.markers.Shell); ok {
		events = append(events, game.Event{Kind: game.ShellCommandReceived, Player: chatAuthor(msg), Text: text, Line: line})
	}
	return events
}

func (a *Adapter) PlayerCommand() string { return "list" }
func (a *Adapter) StopCommand() string   { return "stop" }

func (a *Adapter) ParsePlayerList(body string) (game.PlayerList, error) {
	m := listRe.FindStringSubmatch(body)
	if m == nil {
		m = legacyListRe.FindStringSubmatch(body)
	}
	if m == nil {
		return game.PlayerList{}, fmt.Errorf("minecraft: unexpected list response %q", body)
	}
	online, _ := strconv.Atoi(m[1])
	maxPlayers, _ := strconv.Atoi(m[2])
	names := []string{}
	for _, n := range strings.Split(m[3], ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return game.PlayerList{Online: online, Max: maxPlayers, Names: names}, nil
}

func firstToken(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

func afterMarker(msg, marker string) (string, bool) {
	if marker == "" {
		return "", false
	}
	_, after, ok := strings.Cut(msg, marker)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(after), true
}

// chatAuthor returns the player of a "<name> text" chat line, or the
// "[name]" of a command-block or /say line.
func chatAuthor(msg string) string {
	tok := firstToken(msg)
	if len(tok) > 2 && (tok[0] == '<' && tok[len(tok)-1] == '>' || tok[0] == '[' && tok[len(tok)-1] == ']') {
		return tok[1 : len(tok)-1]
	}
	return ""
}
