package console

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/reedfamily/craftbridge/internal/command"
)

var bareKey = regexp.MustCompile(`^[A-Za-z0-9_.+-]+$`)

// SNBT renders v as stringified NBT: objects become compounds, arrays
// lists, numbers doubles ("1.5d"), booleans bytes ("1b") and strings
// quoted strings. Null renders as the empty string so it can be omitted
// from a command.
func SNBT(v command.Value) string {
	var b strings.Builder
	writeSNBT(&b, v)
	return b.String()
}

func writeSNBT(b *strings.Builder, v command.Value) {
	switch v.Kind() {
	case command.KindNull:
	case command.KindString:
		b.WriteString(quote(v.Str()))
	case command.KindNumber:
		b.WriteString(strconv.FormatFloat(v.Num(), 'f', -1, 64))
		b.WriteByte('d')
	case command.KindBool:
		if v.Bool() {
			b.WriteString("1b")
		} else {
			b.WriteString("0b")
		}
	case command.KindArray:
		b.WriteByte('[')
		for i, item := range v.Items() {
			if i > 0 {
				b.WriteByte(',')
			}
			writeSNBT(b, item)
		}
		b.WriteByte(']')
	case command.KindObject:
		b.WriteByte('{')
		fields := v.Fields()
		for i, k := range v.Keys() {
			if i > 0 {
				b.WriteByte(',')
			}
			if bareKey.MatchString(k) {
				b.WriteString(k)
			} else {
				b.WriteString(quote(k))
			}
			b.WriteByte(':')
			writeSNBT(b, fields[k])
		}
		b.WriteByte('}')
	}
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
