package placeholder

import (
	"regexp"
	"strings"
)

// DefaultMaxPasses bounds the substitution loop.
const DefaultMaxPasses = 30

// tokenRe matches any bracketed token of the general form {{name-123}}.
var tokenRe = regexp.MustCompile(`\{\{\s*([A-Za-z][A-Za-z0-9_]*-[0-9]+)\s*\}\}`)

// Result is the outcome of a resolution.
type Result struct {
	HTML          string   `json:"-"`
	Passes        int      `json:"passes"`
	Substitutions int      `json:"substitutions"`
	CapReached    bool     `json:"capReached"`
	Unresolved    []string `json:"unresolved,omitempty"`
}

// Resolve substitutes known tokens in doc until a pass makes no change or
// maxPasses passes have run. Each pass handles rewritten subtrees, then leaf
// content, then backgrounds, then any token left over against all maps, which
// picks up tokens introduced by values substituted earlier in the same pass.
// Tokens still present afterwards are reported, not treated as errors.
func Resolve(doc string, m *Maps, maxPasses int) Result {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	res := Result{}
	for pass := 1; pass <= maxPasses; pass++ {
		res.Passes = pass
		n := 0
		for _, ns := range order {
			var c int
			doc, c = substitute(doc, func(tok string) (string, bool) { return m.Get(ns, tok) })
			n += c
		}
		var c int
		doc, c = substitute(doc, m.Lookup)
		n += c
		res.Substitutions += n
		if n == 0 {
			break
		}
		if pass == maxPasses {
			res.CapReached = hasKnown(doc, m)
		}
	}
	res.HTML = doc
	res.Unresolved = Scan(doc)
	return res
}

func substitute(doc string, lookup func(string) (string, bool)) (string, int) {
	if !strings.Contains(doc, "{{") {
		return doc, 0
	}
	count := 0
	out := tokenRe.ReplaceAllStringFunc(doc, func(match string) string {
		tok := tokenRe.FindStringSubmatch(match)[1]
		v, ok := lookup(tok)
		if !ok {
			return match
		}
		count++
		return v
	})
	return out, count
}

func hasKnown(doc string, m *Maps) bool {
	for _, tok := range Scan(doc) {
		if _, ok := m.Lookup(tok); ok {
			return true
		}
	}
	return false
}

// Scan returns the distinct tokens present in doc in order of appearance.
func Scan(doc string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range tokenRe.FindAllStringSubmatch(doc, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
