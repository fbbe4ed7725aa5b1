package command

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one argument as it arrived in an envelope, before it is bound to
// a parameter type.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	arr  []Value
	obj  map[string]Value
}

func String(s string) Value           { return Value{kind: KindString, str: s} }
func Number(n float64) Value          { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value               { return Value{kind: KindBool, b: b} }
func Array(vs ...Value) Value         { return Value{kind: KindArray, arr: vs} }
func Object(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Str() string { return v.str }

func (v Value) Num() float64 { return v.num }

func (v Value) Bool() bool { return v.b }

func (v Value) Items() []Value { return v.arr }

func (v Value) Fields() map[string]Value { return v.obj }

// Keys returns the object's keys in sorted order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// Any converts the value back to plain Go types.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Any()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Any()
		}
		return out
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNull:
		return "null"
	default:
		b, err := json.Marshal(v.Any())
		if err != nil {
			return fmt.Sprintf("<%s>", v.kind)
		}
		return string(b)
	}
}

func fromAny(raw any) Value {
	switch x := raw.(type) {
	case string:
		return String(x)
	case float64:
		return Number(x)
	case bool:
		return Bool(x)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = fromAny(item)
		}
		return Array(items...)
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			fields[k] = fromAny(item)
		}
		return Object(fields)
	default:
		return Value{}
	}
}
