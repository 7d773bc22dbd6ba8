package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hyperifyio/pagemigrate/internal/dom"
	"github.com/hyperifyio/pagemigrate/internal/placeholder"
)

// DecorativePrefix marks background/underlay layers by element id.
const DecorativePrefix = "bgLayers"

// Subtree is one removed piece of markup and the token that replaced it.
type Subtree struct {
	Token string `json:"token"`
	ID    string `json:"id,omitempty"`
	Tag   string `json:"tag"`
	HTML  string `json:"html"`
}

// Predicate selects subtrees to extract.
type Predicate func(n *html.Node) bool

// Extractor replaces every subtree matching Match with a fresh token from
// Namespace. Traversal is top-down and does not descend into a matched
// subtree, so nested matches travel with their outermost match.
type Extractor struct {
	Name      string
	Namespace placeholder.Namespace
	Match     Predicate
}

// Extract walks the tree under root, swaps matches for bracketed tokens and
// returns the removed subtrees in document order. Tokens are allocated from
// maps so numbering is per run; values are left to the caller.
func (e Extractor) Extract(root *html.Node, maps *placeholder.Maps) ([]Subtree, error) {
	var matches []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && e.Match(c) {
				matches = append(matches, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)

	out := make([]Subtree, 0, len(matches))
	for _, n := range matches {
		markup, err := dom.Outer(n)
		if err != nil {
			return out, fmt.Errorf("%s: render %s: %w", e.Name, n.Data, err)
		}
		tok := maps.Next(e.Namespace)
		dom.Replace(n, placeholder.Wrap(tok))
		out = append(out, Subtree{Token: tok, ID: dom.Attr(n, "id"), Tag: n.Data, HTML: markup})
	}
	return out, nil
}

// DecorativeLayers extracts background layers into the background namespace.
func DecorativeLayers() Extractor {
	return Extractor{Name: "decorative-layers", Namespace: placeholder.Background, Match: IsDecorative}
}

// LeafContent extracts content leaves into the leaf-content namespace.
func LeafContent() Extractor {
	return Extractor{Name: "leaf-content", Namespace: placeholder.LeafContent, Match: IsLeaf}
}

// IsDecorative reports whether n's id carries the decorative-layer prefix.
func IsDecorative(n *html.Node) bool {
	return strings.HasPrefix(dom.Attr(n, "id"), DecorativePrefix)
}

var leafTags = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.P: true, atom.Img: true, atom.Video: true, atom.A: true, atom.Button: true,
	atom.Span: true, atom.Label: true, atom.Strong: true, atom.Em: true,
	atom.B: true, atom.I: true, atom.Picture: true, atom.Svg: true,
}

// IsLeaf reports whether n is a content leaf.
func IsLeaf(n *html.Node) bool {
	if n.DataAtom != 0 {
		return leafTags[n.DataAtom]
	}
	return strings.EqualFold(n.Data, "svg")
}

// TopMostContainers returns the id-bearing, non-decorative elements under
// root that have no id-bearing ancestor below root. These are the largest
// identifiable chunks left after layer extraction.
func TopMostContainers(root *html.Node) []*html.Node {
	hasID := func(n *html.Node) bool { return dom.Attr(n, "id") != "" }
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if hasID(c) && !IsDecorative(c) && !dom.HasAncestor(c, root, hasID) {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)
	return out
}
