package placeholder

import (
	"fmt"
	"sort"
)

// Namespace scopes a family of tokens. Each namespace has its own token map.
type Namespace int

const (
	Background Namespace = iota
	LeafContent
	RewrittenSubtree
)

func (n Namespace) String() string {
	switch n {
	case Background:
		return "background"
	case LeafContent:
		return "leafContent"
	case RewrittenSubtree:
		return "rewrittenSubtree"
	}
	return fmt.Sprintf("namespace(%d)", int(n))
}

// Token returns the seq-th token of the namespace: bg-01, widget-1, template-0001.
func (n Namespace) Token(seq int) string {
	switch n {
	case Background:
		return fmt.Sprintf("bg-%02d", seq)
	case LeafContent:
		return fmt.Sprintf("widget-%d", seq)
	case RewrittenSubtree:
		return fmt.Sprintf("template-%04d", seq)
	}
	return fmt.Sprintf("token-%d", seq)
}

// Wrap brackets a token the way it appears in markup.
func Wrap(token string) string { return "{{" + token + "}}" }

// Entry is one token and the markup it stands for. An empty Value marks a
// failed optimization and resolves to nothing.
type Entry struct {
	Token     string    `json:"token"`
	Namespace Namespace `json:"-"`
	Space     string    `json:"namespace"`
	Value     string    `json:"value"`
}

// Maps holds the three token maps of one section run. A Maps value is owned
// by a single pipeline run and must not be shared.
type Maps struct {
	spaces [3]map[string]string
	seq    [3]int
}

// NewMaps returns empty maps.
func NewMaps() *Maps {
	m := &Maps{}
	for i := range m.spaces {
		m.spaces[i] = map[string]string{}
	}
	return m
}

// Next allocates the next token in ns. Sequences start at 1.
func (m *Maps) Next(ns Namespace) string {
	m.seq[ns]++
	return ns.Token(m.seq[ns])
}

// Set records value for token in ns.
func (m *Maps) Set(ns Namespace, token, value string) {
	m.spaces[ns][token] = value
}

// Get looks a token up in one namespace.
func (m *Maps) Get(ns Namespace, token string) (string, bool) {
	v, ok := m.spaces[ns][token]
	return v, ok
}

// Lookup searches every namespace in resolution order.
func (m *Maps) Lookup(token string) (string, bool) {
	for _, ns := range order {
		if v, ok := m.spaces[ns][token]; ok {
			return v, true
		}
	}
	return "", false
}

// Len returns the number of tokens in ns.
func (m *Maps) Len(ns Namespace) int { return len(m.spaces[ns]) }

// Entries lists every entry sorted by namespace then token.
func (m *Maps) Entries() []Entry {
	var out []Entry
	for _, ns := range order {
		keys := make([]string, 0, len(m.spaces[ns]))
		for k := range m.spaces[ns] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, Entry{Token: k, Namespace: ns, Space: ns.String(), Value: m.spaces[ns][k]})
		}
	}
	return out
}

var order = []Namespace{RewrittenSubtree, LeafContent, Background}
