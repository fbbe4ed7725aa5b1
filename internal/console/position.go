package console

import (
	"fmt"
	"strconv"
	"strings"
)

// Coord is one axis of a block position. Relative coordinates render with
// a leading "~" and are resolved by the server against the executor.
type Coord struct {
	Value    float64
	Relative bool
}

func (c Coord) String() string {
	v := strconv.FormatFloat(c.Value, 'f', -1, 64)
	if c.Relative {
		if c.Value == 0 {
			return "~"
		}
		return "~" + v
	}
	return v
}

type Position struct {
	X, Y, Z Coord
}

// At is an absolute position.
func At(x, y, z float64) Position {
	return Position{X: Coord{Value: x}, Y: Coord{Value: y}, Z: Coord{Value: z}}
}

// Offset is a position relative to the command executor.
func Offset(dx, dy, dz float64) Position {
	return Position{X: Coord{dx, true}, Y: Coord{dy, true}, Z: Coord{dz, true}}
}

func (p Position) WithX(c Coord) Position { p.X = c; return p }
func (p Position) WithY(c Coord) Position { p.Y = c; return p }
func (p Position) WithZ(c Coord) Position { p.Z = c; return p }

func (p Position) String() string {
	return p.X.String() + " " + p.Y.String() + " " + p.Z.String()
}

// ParsePosition reads "x y z" where each axis is a number, "~" or "~n".
func ParsePosition(s string) (Position, error) {
	f := strings.Fields(s)
	if len(f) != 3 {
		return Position{}, fmt.Errorf("position %q: want 3 coordinates", s)
	}
	var axes [3]Coord
	for i, tok := range f {
		c, err := parseCoord(tok)
		if err != nil {
			return Position{}, fmt.Errorf("position %q: %w", s, err)
		}
		axes[i] = c
	}
	return Position{X: axes[0], Y: axes[1], Z: axes[2]}, nil
}

func parseCoord(tok string) (Coord, error) {
	rel := strings.HasPrefix(tok, "~")
	num := strings.TrimPrefix(tok, "~")
	if rel && num == "" {
		return Coord{Relative: true}, nil
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Coord{}, fmt.Errorf("coordinate %q: %w", tok, err)
	}
	return Coord{Value: v, Relative: rel}, nil
}
