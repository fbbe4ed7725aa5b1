package command

import (
	"context"
	"errors"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	env := ParseEnvelope(`{"commandName":"hello","arguments":["x"]}`)
	if env.Name != "hello" {
		t.Fatalf("name = %q", env.Name)
	}
	if len(env.Args) != 1 || env.Args[0].Kind() != KindString || env.Args[0].Str() != "x" {
		t.Fatalf("args = %v", env.Args)
	}
}

func TestParseEnvelopeTypedValues(t *testing.T) {
	env := ParseEnvelope(`{"commandName":"summon","arguments":["chicken",1.5,true,null,["a"],{"NoAI":true}]}`)
	want := []Kind{KindString, KindNumber, KindBool, KindNull, KindArray, KindObject}
	if len(env.Args) != len(want) {
		t.Fatalf("args = %v", env.Args)
	}
	for i, k := range want {
		if env.Args[i].Kind() != k {
			t.Errorf("arg %d kind = %v; want %v", i, env.Args[i].Kind(), k)
		}
	}
	if !env.Args[5].Fields()["NoAI"].Bool() {
		t.Errorf("object field not decoded: %v", env.Args[5])
	}
}

func TestParseEnvelopeFallback(t *testing.T) {
	cases := map[string]string{
		"players":                            "players",
		"  hello there ":                     "hello there",
		`{"commandName":`:                    `{"commandName":`,
		`{"arguments":[]}`:                   `{"arguments":[]}`,
		`{"commandName":"x","arguments":{}}`: `{"commandName":"x","arguments":{}}`,
		`["hello"]`:                          `["hello"]`,
		`{"commandName":42}`:                 `{"commandName":42}`,
	}
	for text, name := range cases {
		env := ParseEnvelope(text)
		if env.Name != name || len(env.Args) != 0 {
			t.Errorf("ParseEnvelope(%q) = %+v; want raw-name fallback %q", text, env, name)
		}
	}
}

func TestParseEnvelopeMissingArguments(t *testing.T) {
	env := ParseEnvelope(`{"commandName":"players"}`)
	if env.Name != "players" || len(env.Args) != 0 {
		t.Fatalf("env = %+v", env)
	}
}

func testRegistry(t *testing.T, got *[]any) *Registry {
	t.Helper()
	r, err := NewRegistry([]Handler{
		{
			Name:   "greet",
			Params: []Param{{Name: "name", Kind: ParamString}, {Name: "times", Kind: ParamInt}},
			Invoke: func(ctx context.Context, args Args) (string, error) {
				*got = []any{args.String(0), args.Int(1)}
				return "ok", nil
			},
		},
		{
			Name:   "tags",
			Params: []Param{{Name: "tags", Kind: ParamStrings}, {Name: "loud", Kind: ParamBool}, {Name: "scale", Kind: ParamFloat}},
			Invoke: func(ctx context.Context, args Args) (string, error) {
				*got = []any{args.Strings(0), args.Bool(1), args.Float(2)}
				return "", nil
			},
		},
		{
			Name: "fail",
			Invoke: func(ctx context.Context, args Args) (string, error) {
				return "", errors.New("boom")
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestDispatchNotFound(t *testing.T) {
	var got []any
	r := testRegistry(t, &got)
	_, err := r.Dispatch(context.Background(), Envelope{Name: "nope"})
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Name != "nope" || !errors.Is(err, ErrCommandNotFound) {
		t.Fatalf("err = %v; want NotFoundError(nope)", err)
	}
}

func TestDispatchTooManyArguments(t *testing.T) {
	var got []any
	r := testRegistry(t, &got)
	_, err := r.Dispatch(context.Background(), Envelope{Name: "greet", Args: []Value{String("a"), Number(1), Number(2)}})
	var ae *ArityError
	if !errors.As(err, &ae) || ae.Declared != 2 || ae.Supplied != 3 {
		t.Fatalf("err = %v; want ArityError 2/3", err)
	}
	if got != nil {
		t.Fatalf("handler ran despite arity mismatch")
	}
}

func TestDispatchMissingArgumentsTakeDefaults(t *testing.T) {
	var got []any
	r := testRegistry(t, &got)
	res, err := r.Dispatch(context.Background(), Envelope{Name: "greet", Args: []Value{String("Bob")}})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res != "ok" {
		t.Fatalf("result = %q", res)
	}
	if got[0] != "Bob" || got[1] != 0 {
		t.Fatalf("args = %v; want [Bob 0]", got)
	}

	if _, err := r.Dispatch(context.Background(), Envelope{Name: "tags"}); err != nil {
		t.Fatalf("Dispatch with no args: %v", err)
	}
	if got[0].([]string) != nil || got[1] != false || got[2] != 0.0 {
		t.Fatalf("defaults = %v", got)
	}
}

func TestDispatchArgumentTypeMismatch(t *testing.T) {
	var got []any
	r := testRegistry(t, &got)
	cases := []struct {
		env Envelope
		pos int
	}{
		{Envelope{Name: "greet", Args: []Value{Number(1)}}, 0},
		{Envelope{Name: "greet", Args: []Value{String("a"), Number(1.5)}}, 1},
		{Envelope{Name: "greet", Args: []Value{String("a"), String("2")}}, 1},
		{Envelope{Name: "tags", Args: []Value{Array(String("a"), Number(1))}}, 0},
		{Envelope{Name: "tags", Args: []Value{Array(), String("yes")}}, 1},
	}
	for _, tc := range cases {
		_, err := r.Dispatch(context.Background(), tc.env)
		var te *ArgumentTypeError
		if !errors.As(err, &te) || te.Position != tc.pos || !errors.Is(err, ErrArgumentType) {
			t.Errorf("Dispatch(%+v) err = %v; want ArgumentTypeError at %d", tc.env, err, tc.pos)
		}
	}
}

func TestDispatchConvertsValues(t *testing.T) {
	var got []any
	r := testRegistry(t, &got)
	_, err := r.Dispatch(context.Background(), Envelope{Name: "tags", Args: []Value{Array(String("a"), String("b")), Bool(true), Number(2)}})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	tags := got[0].([]string)
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" || got[1] != true || got[2] != 2.0 {
		t.Fatalf("args = %v", got)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	var got []any
	r := testRegistry(t, &got)
	if _, err := r.Dispatch(context.Background(), Envelope{Name: "fail"}); err == nil || err.Error() != "boom" {
		t.Fatalf("err = %v; want boom", err)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	noop := func(ctx context.Context, args Args) (string, error) { return "", nil }
	_, err := NewRegistry([]Handler{{Name: "a", Invoke: noop}, {Name: "a", Invoke: noop}})
	if err == nil {
		t.Fatalf("duplicate names accepted")
	}
	if _, err := NewRegistry([]Handler{{Name: "a"}}); err == nil {
		t.Fatalf("handler without Invoke accepted")
	}
}
