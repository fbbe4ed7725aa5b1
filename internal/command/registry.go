// Package command decodes chat-embedded command envelopes and dispatches
// them through a static table of typed handlers.
package command

import (
	"context"
	"fmt"
	"math"
	"sort"
)

type ParamKind int

const (
	ParamString ParamKind = iota
	ParamInt
	ParamFloat
	ParamBool
	ParamStrings
	ParamObject
)

func (k ParamKind) String() string {
	switch k {
	case ParamString:
		return "string"
	case ParamInt:
		return "int"
	case ParamFloat:
		return "float"
	case ParamBool:
		return "bool"
	case ParamStrings:
		return "[]string"
	case ParamObject:
		return "object"
	default:
		return fmt.Sprintf("param(%d)", int(k))
	}
}

func (k ParamKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k ParamKind) zero() any {
	switch k {
	case ParamString:
		return ""
	case ParamInt:
		return 0
	case ParamFloat:
		return 0.0
	case ParamBool:
		return false
	case ParamStrings:
		return []string(nil)
	default:
		return Value{}
	}
}

type Param struct {
	Name string    `json:"name"`
	Kind ParamKind `json:"kind"`
}

// Handler binds a command name to its parameter list and implementation.
type Handler struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Params      []Param `json:"params"`

	Invoke func(ctx context.Context, args Args) (string, error) `json:"-"`
}

// Args holds converted arguments, one per declared parameter. Parameters
// the caller did not supply hold their kind's zero value.
type Args struct {
	values []any
}

func (a Args) Len() int { return len(a.values) }

func (a Args) String(i int) string {
	s, _ := a.at(i).(string)
	return s
}

func (a Args) Int(i int) int {
	n, _ := a.at(i).(int)
	return n
}

func (a Args) Float(i int) float64 {
	f, _ := a.at(i).(float64)
	return f
}

func (a Args) Bool(i int) bool {
	b, _ := a.at(i).(bool)
	return b
}

func (a Args) Strings(i int) []string {
	s, _ := a.at(i).([]string)
	return s
}

func (a Args) Object(i int) Value {
	v, _ := a.at(i).(Value)
	return v
}

func (a Args) at(i int) any {
	if i < 0 || i >= len(a.values) {
		return nil
	}
	return a.values[i]
}

// Registry maps command names to handlers. It is built once and never
// modified, so it is safe for concurrent lookups.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a registry from a declarative table. Names must be
// non-empty and unique, and every handler needs an Invoke func.
func NewRegistry(table []Handler) (*Registry, error) {
	handlers := make(map[string]Handler, len(table))
	for _, h := range table {
		if h.Name == "" {
			return nil, fmt.Errorf("command: handler with empty name")
		}
		if h.Invoke == nil {
			return nil, fmt.Errorf("command: handler %q has no implementation", h.Name)
		}
		if _, dup := handlers[h.Name]; dup {
			return nil, fmt.Errorf("command: duplicate handler %q", h.Name)
		}
		h.Params = append([]Param(nil), h.Params...)
		handlers[h.Name] = h
	}
	return &Registry{handlers: handlers}, nil
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Handlers returns every handler sorted by name.
func (r *Registry) Handlers() []Handler {
	out := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Len() int { return len(r.handlers) }

// Dispatch looks up env.Name, binds its arguments and invokes the handler.
func (r *Registry) Dispatch(ctx context.Context, env Envelope) (string, error) {
	h, ok := r.handlers[env.Name]
	if !ok {
		return "", &NotFoundError{Name: env.Name}
	}
	args, err := Bind(h, env.Args)
	if err != nil {
		return "", err
	}
	return h.Invoke(ctx, args)
}

// Bind converts supplied values to the handler's declared parameter kinds.
// Supplying fewer values than parameters is allowed; supplying more is not.
func Bind(h Handler, supplied []Value) (Args, error) {
	if len(supplied) > len(h.Params) {
		return Args{}, &ArityError{Name: h.Name, Declared: len(h.Params), Supplied: len(supplied)}
	}
	values := make([]any, len(h.Params))
	for i, p := range h.Params {
		if i >= len(supplied) {
			values[i] = p.Kind.zero()
			continue
		}
		v, ok := convert(supplied[i], p.Kind)
		if !ok {
			return Args{}, &ArgumentTypeError{Name: h.Name, Position: i, Param: p.Name, Want: p.Kind, Got: supplied[i].Kind()}
		}
		values[i] = v
	}
	return Args{values: values}, nil
}

func convert(v Value, kind ParamKind) (any, bool) {
	if kind == ParamObject {
		return v, true
	}
	if v.Kind() == KindNull {
		return kind.zero(), true
	}
	switch kind {
	case ParamString:
		if v.Kind() == KindString {
			return v.Str(), true
		}
	case ParamInt:
		n := v.Num()
		if v.Kind() == KindNumber && n == math.Trunc(n) && n >= math.MinInt32 && n <= math.MaxInt32 {
			return int(n), true
		}
	case ParamFloat:
		if v.Kind() == KindNumber {
			return v.Num(), true
		}
	case ParamBool:
		if v.Kind() == KindBool {
			return v.Bool(), true
		}
	case ParamStrings:
		if v.Kind() != KindArray {
			return nil, false
		}
		out := make([]string, 0, len(v.Items()))
		for _, item := range v.Items() {
			if item.Kind() != KindString {
				return nil, false
			}
			out = append(out, item.Str())
		}
		return out, true
	}
	return nil, false
}
