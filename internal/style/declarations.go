package style

import (
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Declarations is an insertion-ordered mapping of property to value.
type Declarations struct {
	keys   []string
	values map[string]string
}

// NewDeclarations returns an empty set.
func NewDeclarations() *Declarations {
	return &Declarations{values: map[string]string{}}
}

// ParseDeclarations parses an inline style attribute value. Malformed
// declarations are skipped; later duplicates of a property overwrite earlier
// ones while keeping the first position.
func ParseDeclarations(s string) *Declarations {
	d := NewDeclarations()
	if strings.TrimSpace(s) == "" {
		return d
	}
	p := css.NewParser(parse.NewInputString(s), true)
	// The parser always advances; the bound only protects against a stalled
	// lexer on pathological input.
	for guard := len(s) + 16; guard > 0; guard-- {
		gt, _, data := p.Next()
		if gt == css.ErrorGrammar {
			if p.Err() != nil {
				break
			}
			continue
		}
		if gt != css.DeclarationGrammar && gt != css.CustomPropertyGrammar {
			continue
		}
		prop := strings.TrimSpace(string(data))
		if gt == css.DeclarationGrammar {
			prop = strings.ToLower(prop)
		}
		val := joinValues(p.Values())
		if prop == "" || val == "" {
			continue
		}
		d.Set(prop, val)
	}
	return d
}

func joinValues(tokens []css.Token) string {
	var b strings.Builder
	for _, t := range tokens {
		if t.TokenType == css.WhitespaceToken {
			b.WriteByte(' ')
			continue
		}
		b.Write(t.Data)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Set assigns prop, appending it when new.
func (d *Declarations) Set(prop, val string) {
	if _, ok := d.values[prop]; !ok {
		d.keys = append(d.keys, prop)
	}
	d.values[prop] = val
}

// Get returns the value of prop.
func (d *Declarations) Get(prop string) (string, bool) {
	v, ok := d.values[prop]
	return v, ok
}

// Len returns the number of properties.
func (d *Declarations) Len() int { return len(d.keys) }

// Keys returns properties in order.
func (d *Declarations) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Merge overlays incoming onto d. Incoming values win on conflicts; existing
// properties keep their position. It reports whether anything changed.
func (d *Declarations) Merge(incoming *Declarations) bool {
	changed := false
	for _, k := range incoming.keys {
		v := incoming.values[k]
		if cur, ok := d.values[k]; ok && cur == v {
			continue
		}
		d.Set(k, v)
		changed = true
	}
	return changed
}

// String serializes as "prop: value; prop: value".
func (d *Declarations) String() string {
	parts := make([]string, 0, len(d.keys))
	for _, k := range d.keys {
		parts = append(parts, k+": "+d.values[k])
	}
	return strings.Join(parts, "; ")
}
