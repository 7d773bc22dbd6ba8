package segment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maruel/natural"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hyperifyio/pagemigrate/internal/dom"
	"github.com/hyperifyio/pagemigrate/internal/stylerecord"
)

// Section is one independently migrated chunk of the source document. It is
// immutable once created.
type Section struct {
	Index        int                       `json:"index"`
	ID           string                    `json:"id"`
	HTML         string                    `json:"-"`
	StyleRecords []stylerecord.StyleRecord `json:"styleRecords"`
	// GroupKey names the style group paired with the section, if any.
	GroupKey string `json:"groupKey,omitempty"`
	// Pairing explains how GroupKey was chosen: "key", "id-field", "position" or "".
	Pairing string `json:"pairing,omitempty"`
}

// Split partitions documentHTML into sections and pairs each with a style
// record group from groups. Groups matched by key or id field are claimed
// first; remaining sections take the unclaimed groups in natural key order.
func Split(documentHTML string, groups map[string]any) ([]Section, error) {
	doc, err := dom.ParseDocument(documentHTML)
	if err != nil {
		return nil, err
	}
	boundaries := Boundaries(doc)
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Sort(natural.StringSlice(keys))

	sections := make([]Section, 0, len(boundaries))
	for i, n := range boundaries {
		markup, err := dom.Outer(n)
		if err != nil {
			return nil, fmt.Errorf("render section %d: %w", i, err)
		}
		id := dom.Attr(n, "id")
		if id == "" {
			id = fmt.Sprintf("section_%d", i)
		}
		sections = append(sections, Section{Index: i, ID: id, HTML: markup})
	}

	// Identity pairing runs for every section before any positional pairing,
	// so a position never takes a group that names a later section.
	claimed := map[string]bool{}
	for i := range sections {
		if key, how := matchGroup(sections[i].ID, keys, groups, claimed); key != "" {
			claimed[key] = true
			sections[i].GroupKey, sections[i].Pairing = key, how
		}
	}
	var free []string
	for _, k := range keys {
		if !claimed[k] {
			free = append(free, k)
		}
	}
	for i := range sections {
		if sections[i].GroupKey != "" || len(free) == 0 {
			continue
		}
		sections[i].GroupKey, sections[i].Pairing = free[0], "position"
		free = free[1:]
	}

	for i := range sections {
		sec := &sections[i]
		if sec.GroupKey != "" {
			sec.StyleRecords = stylerecord.Discover(groups[sec.GroupKey])
		}
		log.Debug().Int("section", i).Str("id", sec.ID).Str("group", sec.GroupKey).Str("pairing", sec.Pairing).Int("records", len(sec.StyleRecords)).Msg("segmented")
	}
	return sections, nil
}

// matchGroup prefers an unclaimed key containing the section id, then an
// unclaimed group whose id field equals it.
func matchGroup(id string, keys []string, groups map[string]any, claimed map[string]bool) (string, string) {
	for _, k := range keys {
		if !claimed[k] && strings.Contains(k, id) {
			return k, "key"
		}
	}
	for _, k := range keys {
		if claimed[k] {
			continue
		}
		if m, ok := groups[k].(map[string]any); ok {
			if s, ok := m["id"].(string); ok && s == id {
				return k, "id-field"
			}
		}
	}
	return "", ""
}

// Boundaries returns the section containers of doc in document order:
// <section> children of <body>; otherwise the outermost <section> elements;
// otherwise the outermost <div> elements.
func Boundaries(doc *html.Node) []*html.Node {
	body := dom.FindFirst(doc, "body")
	if body == nil {
		return nil
	}
	var direct []*html.Node
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Section {
			direct = append(direct, c)
		}
	}
	if len(direct) > 0 {
		return direct
	}
	for _, tag := range []atom.Atom{atom.Section, atom.Div} {
		if out := outermost(body, tag); len(out) > 0 {
			return out
		}
	}
	return nil
}

func outermost(body *html.Node, tag atom.Atom) []*html.Node {
	var out []*html.Node
	for _, n := range dom.Elements(body) {
		if n.DataAtom != tag {
			continue
		}
		if dom.HasAncestor(n, body, func(p *html.Node) bool { return p.DataAtom == tag }) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Head returns the inner markup of the document's <head>, used to rebuild a
// complete document around migrated sections.
func Head(documentHTML string) (string, error) {
	doc, err := dom.ParseDocument(documentHTML)
	if err != nil {
		return "", err
	}
	head := dom.FindFirst(doc, "head")
	if head == nil {
		return "", nil
	}
	return dom.Inner(head)
}
