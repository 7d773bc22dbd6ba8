package dom

import (
	"testing"

	"golang.org/x/net/html"
)

func TestParseFragment_RootIsSynthetic(t *testing.T) {
	root, err := ParseFragment(`<div id="a"><p>x</p></div><span>y</span>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !IsRoot(root) {
		t.Fatalf("fragment root should report IsRoot")
	}
	els := Elements(root)
	if len(els) != 3 || els[0].Data != "div" || els[1].Data != "p" || els[2].Data != "span" {
		t.Fatalf("unexpected elements in document order: %v", tags(els))
	}
	if IsRoot(els[0]) {
		t.Fatalf("child of fragment root must not be a root")
	}
	got, err := Inner(root)
	if err != nil {
		t.Fatalf("inner: %v", err)
	}
	if got != `<div id="a"><p>x</p></div><span>y</span>` {
		t.Fatalf("round trip changed markup: %s", got)
	}
}

func TestReplaceAndAttrs(t *testing.T) {
	root, _ := ParseFragment(`<section><div id="x" class="c">t</div></section>`)
	div := Elements(root)[1]
	if Attr(div, "id") != "x" {
		t.Fatalf("attr lookup failed")
	}
	if _, ok := Lookup(div, "style"); ok {
		t.Fatalf("style should be absent")
	}
	SetAttr(div, "style", "color: red")
	SetAttr(div, "class", "d")
	if Attr(div, "style") != "color: red" || Attr(div, "class") != "d" {
		t.Fatalf("SetAttr did not update: %+v", div.Attr)
	}
	detached := Replace(div, "{{widget-1}}")
	if detached != div || div.Parent != nil {
		t.Fatalf("replace should detach the node")
	}
	out, _ := Inner(root)
	if out != "<section>{{widget-1}}</section>" {
		t.Fatalf("unexpected markup after replace: %s", out)
	}
}

func TestHasAncestorStopsAtBoundary(t *testing.T) {
	root, _ := ParseFragment(`<div id="outer"><div><p>x</p></div></div>`)
	p := FindFirst(root, "p")
	hasID := func(n *html.Node) bool { return Attr(n, "id") != "" }
	if !HasAncestor(p, root, hasID) {
		t.Fatalf("expected id-bearing ancestor")
	}
	outer := FindFirst(root, "div")
	if HasAncestor(p, outer, hasID) {
		t.Fatalf("walk must stop before the stop node")
	}
}

func TestTextContentNormalizes(t *testing.T) {
	root, _ := ParseFragment("<div>  Hello\n\t<b>wor ld</b><script>ignored()</script> </div>")
	if got := TextContent(root); got != "Hello wor ld" {
		t.Fatalf("got %q", got)
	}
	// Decomposed e + combining acute normalizes to the precomposed form.
	if NormalizeText("cafe\u0301") != "caf\u00e9" {
		t.Fatalf("expected NFC normalization")
	}
}

func TestIsRootOnDocument(t *testing.T) {
	doc, err := ParseDocument("<html><body><section></section></body></html>")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !IsRoot(doc) || !IsRoot(FindFirst(doc, "html")) {
		t.Fatalf("document and html element are roots")
	}
	if IsRoot(FindFirst(doc, "section")) {
		t.Fatalf("section is not a root")
	}
}

func tags(ns []*html.Node) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Data
	}
	return out
}
