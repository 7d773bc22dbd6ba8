package stylerecord

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	"github.com/hyperifyio/pagemigrate/internal/dom"
)

// StyleRecord describes the intended appearance and identity of one source
// element. Records are read-only once discovered.
type StyleRecord struct {
	ID          string            `json:"id,omitempty"`
	ClassName   string            `json:"className,omitempty"`
	DataMeshID  string            `json:"dataMeshId,omitempty"`
	DataTestID  string            `json:"dataTestId,omitempty"`
	TagName     string            `json:"tagName,omitempty"`
	ParentID    string            `json:"parentId,omitempty"`
	TextContent string            `json:"textContent,omitempty"`
	Styles      map[string]string `json:"styles,omitempty"`
	// OriginalIndex is the discovery position within one Discover call.
	OriginalIndex int `json:"originalIndex"`
	// Path is the JSON path the record was found at, for diagnostics.
	Path string `json:"path,omitempty"`
}

// HasIdentity reports whether the record carries any field the matcher can
// resolve against.
func (r StyleRecord) HasIdentity() bool {
	return r.ID != "" || r.DataMeshID != "" || r.DataTestID != "" || strings.TrimSpace(r.ClassName) != ""
}

// Label returns a short human readable name used in logs and diagnostics.
func (r StyleRecord) Label() string {
	switch {
	case r.ID != "":
		return "#" + r.ID
	case r.DataMeshID != "":
		return "mesh:" + r.DataMeshID
	case r.DataTestID != "":
		return "testid:" + r.DataTestID
	case r.ClassName != "":
		return "." + strings.Join(strings.Fields(r.ClassName), ".")
	}
	return fmt.Sprintf("record[%d]", r.OriginalIndex)
}

// Signature derives an order-independent identity string from the record's
// identifying fields. Two records describing the same logical element share a
// signature regardless of where in the input they were found.
func Signature(r StyleRecord) string {
	classes := strings.Fields(r.ClassName)
	sort.Strings(classes)
	parts := []string{
		"id=" + r.ID,
		"class=" + strings.Join(classes, " "),
		"mesh=" + r.DataMeshID,
		"testid=" + r.DataTestID,
		"tag=" + strings.ToLower(r.TagName),
		"parent=" + r.ParentID,
		"text=" + dom.NormalizeText(r.TextContent),
	}
	return strings.Join(parts, "|")
}

// Declarations serializes the record's styles as "prop: value" pairs in
// property order. Property names are converted to their hyphenated form.
func Declarations(r StyleRecord) string {
	if len(r.Styles) == 0 {
		return ""
	}
	props := make(map[string]string, len(r.Styles))
	for k, v := range r.Styles {
		v = strings.TrimSpace(v)
		k = Kebab(strings.TrimSpace(k))
		if k == "" || v == "" {
			continue
		}
		props[k] = v
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+props[k])
	}
	return strings.Join(parts, "; ")
}

// Kebab converts camelCase property names ("backgroundColor", "WebkitBoxShadow")
// to CSS form ("background-color", "-webkit-box-shadow"). Names already
// containing a hyphen are returned lowercased.
func Kebab(name string) string {
	if strings.Contains(name, "-") {
		return strings.ToLower(name)
	}
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 || isVendorPrefix(name) {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isVendorPrefix(name string) bool {
	for _, p := range []string{"Webkit", "Moz", "Ms", "O"} {
		if strings.HasPrefix(name, p) && len(name) > len(p) && unicode.IsUpper(rune(name[len(p)])) {
			return true
		}
	}
	return false
}

// LoadGroups decodes the style map input: a JSON object whose values are
// arbitrarily nested style groups.
func LoadGroups(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var groups map[string]any
	if err := dec.Decode(&groups); err != nil {
		return nil, fmt.Errorf("decode style map: %w", err)
	}
	if groups == nil {
		groups = map[string]any{}
	}
	return groups, nil
}

// Discover walks decoded JSON of any depth and returns every object that
// looks like a style record. Object keys are visited in sorted order so the
// assigned OriginalIndex values are stable for a given input.
func Discover(raw any) []StyleRecord {
	d := &discoverer{}
	d.walk(raw, "$")
	return d.out
}

type discoverer struct {
	out []StyleRecord
}

func (d *discoverer) walk(v any, path string) {
	switch t := v.(type) {
	case map[string]any:
		if rec, ok := recordFrom(t); ok {
			rec.OriginalIndex = len(d.out)
			rec.Path = path
			d.out = append(d.out, rec)
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if isStyleBagKey(k) {
				continue
			}
			d.walk(t[k], path+"."+k)
		}
	case []any:
		for i, item := range t {
			d.walk(item, path+"["+strconv.Itoa(i)+"]")
		}
	}
}

var (
	styleBagKeys  = []string{"styles", "style", "computedStyles", "computedStyle", "css"}
	classKeys     = []string{"className", "class"}
	idKeys        = []string{"id", "elementId"}
	testIDKeys    = []string{"dataTestId", "data-testid", "data-test-id", "testId"}
	meshIDKeys    = []string{"dataMeshId", "data-mesh-id", "meshId"}
	tagKeys       = []string{"tagName", "tag", "type", "component"}
	parentKeys    = []string{"parentId", "parent"}
	textKeys      = []string{"textContent", "text", "innerText"}
	structureKeys = []string{"type", "tag", "tagName", "component", "html"}
)

func isStyleBagKey(k string) bool {
	for _, s := range styleBagKeys {
		if k == s {
			return true
		}
	}
	return false
}

func recordFrom(m map[string]any) (StyleRecord, bool) {
	var rec StyleRecord
	candidate := false
	for _, k := range styleBagKeys {
		if bag, ok := m[k]; ok {
			if styles := styleBag(bag); len(styles) > 0 {
				rec.Styles = styles
				candidate = true
				break
			}
		}
	}
	rec.ID = firstString(m, idKeys)
	rec.ClassName = firstString(m, classKeys)
	rec.DataTestID = firstString(m, testIDKeys)
	rec.DataMeshID = firstString(m, meshIDKeys)
	rec.TagName = firstString(m, tagKeys)
	rec.ParentID = firstString(m, parentKeys)
	rec.TextContent = firstString(m, textKeys)
	if rec.ID != "" || rec.ClassName != "" || rec.DataTestID != "" || rec.DataMeshID != "" {
		candidate = true
	}
	if !candidate {
		for _, k := range structureKeys {
			if _, ok := m[k]; ok {
				candidate = true
				break
			}
		}
	}
	return rec, candidate
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s := scalar(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// styleBag accepts either an object of property to value or a declaration
// string such as "color: red; margin: 0".
func styleBag(v any) map[string]string {
	out := map[string]string{}
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if s := scalar(val); s != "" {
				out[k] = s
			}
		}
	case string:
		inlineDeclarations(t, out)
	}
	return out
}

// inlineDeclarations tokenizes a declaration string so that semicolons inside
// url() and quoted values do not end a declaration.
func inlineDeclarations(s string, out map[string]string) {
	if strings.TrimSpace(s) == "" {
		return
	}
	p := css.NewParser(parse.NewInputString(s), true)
	for guard := len(s) + 16; guard > 0; guard-- {
		gt, _, data := p.Next()
		if gt == css.ErrorGrammar {
			if p.Err() != nil {
				return
			}
			continue
		}
		if gt != css.DeclarationGrammar && gt != css.CustomPropertyGrammar {
			continue
		}
		var b strings.Builder
		for _, tok := range p.Values() {
			if tok.TokenType == css.WhitespaceToken {
				b.WriteByte(' ')
				continue
			}
			b.Write(tok.Data)
		}
		prop := strings.TrimSpace(string(data))
		val := strings.Join(strings.Fields(b.String()), " ")
		if prop != "" && val != "" {
			out[prop] = val
		}
	}
}
