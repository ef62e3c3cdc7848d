package types

import (
	"fmt"
	"strings"
)

// compositeField is one column of a Postgres row literal. Postgres prints
// NULL as an empty unquoted field and the empty string as "".
type compositeField struct {
	text string
	null bool
}

func (f compositeField) ptr() *string {
	if f.null {
		return nil
	}
	v := f.text
	return &v
}

// formatComposite renders a row literal; nil fields become NULL.
func formatComposite(fields ...*string) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		if f == nil {
			continue
		}
		b.WriteByte('"')
		for _, r := range *f {
			if r == '"' || r == '\\' {
				b.WriteRune(r)
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
	}
	b.WriteByte(')')
	return b.String()
}

func parseComposite(raw string, want int) ([]compositeField, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '(' || raw[len(raw)-1] != ')' {
		return nil, fmt.Errorf("composite: invalid literal %q", raw)
	}
	body := raw[1 : len(raw)-1]

	var fields []compositeField
	var cur strings.Builder
	quoted, inQuotes := false, false
	flush := func() {
		text := cur.String()
		null := !quoted && (text == "" || strings.EqualFold(text, "NULL"))
		fields = append(fields, compositeField{text: text, null: null})
		cur.Reset()
		quoted = false
	}

	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch {
		case ch == '\\' && i+1 < len(body):
			i++
			cur.WriteByte(body[i])
		case ch == '"' && inQuotes && i+1 < len(body) && body[i+1] == '"':
			i++
			cur.WriteByte('"')
		case ch == '"':
			inQuotes = !inQuotes
			quoted = true
		case ch == ',' && !inQuotes:
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("composite: unterminated quote in %q", raw)
	}
	flush()

	if want > 0 && len(fields) != want {
		return nil, fmt.Errorf("composite: got %d fields, want %d", len(fields), want)
	}
	return fields, nil
}
