package dom

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// ParseFragment parses markup in a body context and returns a synthetic <body>
// element holding the parsed nodes as children. The returned node is the root
// of the working tree; it is never part of rendered output.
func ParseFragment(markup string) (*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

// ParseDocument parses a full document.
func ParseDocument(markup string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// Outer renders n including its own tag.
func Outer(n *html.Node) (string, error) {
	var b bytes.Buffer
	if err := html.Render(&b, n); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Inner renders the children of n.
func Inner(n *html.Node) (string, error) {
	var b bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

// FindFirst returns the first element named tag in document order.
func FindFirst(n *html.Node, tag string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := FindFirst(c, tag); res != nil {
			return res
		}
	}
	return nil
}

// Elements returns every element below n (n excluded) in document order.
func Elements(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// Attr returns the value of key on n, or "".
func Attr(n *html.Node, key string) string {
	v, _ := Lookup(n, key)
	return v
}

// Lookup returns the value of key on n and whether it is present.
func Lookup(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets key on n, appending the attribute when absent.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// HasAncestor reports whether any proper ancestor of n satisfies pred. The
// walk stops before stop, which may be nil.
func HasAncestor(n, stop *html.Node, pred func(*html.Node) bool) bool {
	for p := n.Parent; p != nil && p != stop; p = p.Parent {
		if p.Type == html.ElementNode && pred(p) {
			return true
		}
	}
	return false
}

// IsRoot reports whether n is a document node, the <html> element or the
// synthetic root returned by ParseFragment.
func IsRoot(n *html.Node) bool {
	if n == nil {
		return false
	}
	if n.Type == html.DocumentNode || n.Parent == nil {
		return true
	}
	if n.Type == html.ElementNode && n.DataAtom == atom.Html {
		return true
	}
	return n.Parent.Type == html.DocumentNode
}

// TextContent returns the concatenated text below n with whitespace runs
// collapsed to single spaces and the result NFC-normalized.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		switch cur.Type {
		case html.TextNode:
			b.WriteString(cur.Data)
		case html.ElementNode:
			if cur.DataAtom == atom.Script || cur.DataAtom == atom.Style {
				return
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return NormalizeText(b.String())
}

// NormalizeText collapses whitespace and applies NFC normalization so text
// copied from different sources compares equal.
func NormalizeText(s string) string {
	return norm.NFC.String(collapseSpaces(strings.TrimSpace(s)))
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\u00a0' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}

// Replace swaps n for a text node carrying text and returns the detached n.
func Replace(n *html.Node, text string) *html.Node {
	if n.Parent == nil {
		return n
	}
	t := &html.Node{Type: html.TextNode, Data: text}
	n.Parent.InsertBefore(t, n)
	n.Parent.RemoveChild(n)
	return n
}
