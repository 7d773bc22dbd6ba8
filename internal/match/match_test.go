package match

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/hyperifyio/pagemigrate/internal/dom"
	"github.com/hyperifyio/pagemigrate/internal/stylerecord"
)

func parse(t *testing.T, markup string) *html.Node {
	t.Helper()
	root, err := dom.ParseFragment(markup)
	require.NoError(t, err)
	return root
}

func TestMatch_IDBeatsClass(t *testing.T) {
	root := parse(t, `<div class="card" id="other">x</div><div id="comp-1">y</div>`)
	m := &Matcher{}
	res, err := m.Match(root, stylerecord.StyleRecord{ID: "comp-1", ClassName: "card"})
	require.NoError(t, err)
	require.Equal(t, MethodUniqueID, res.Method)
	require.Equal(t, 100, res.Confidence)
	require.Equal(t, "comp-1", dom.Attr(res.Node, "id"))
}

func TestMatch_StrictPriorityAcrossStrategies(t *testing.T) {
	// id and mesh id point at different elements; id wins outright.
	root := parse(t, `<div data-mesh-id="m1">a</div><div id="x">b</div>`)
	res, err := (&Matcher{}).Match(root, stylerecord.StyleRecord{ID: "x", DataMeshID: "m1"})
	require.NoError(t, err)
	require.Equal(t, "x", dom.Attr(res.Node, "id"))

	res, err = (&Matcher{}).Match(root, stylerecord.StyleRecord{DataMeshID: "m1", ClassName: "none"})
	require.NoError(t, err)
	require.Equal(t, MethodUniqueMeshID, res.Method)
	require.Equal(t, 95, res.Confidence)
}

func TestMatch_TestIDAcceptsBothSpellings(t *testing.T) {
	root := parse(t, `<button data-test-id="cta">Go</button>`)
	res, err := (&Matcher{}).Match(root, stylerecord.StyleRecord{DataTestID: "cta"})
	require.NoError(t, err)
	require.Equal(t, MethodUniqueTestID, res.Method)
	require.Equal(t, "button", res.Node.Data)
}

func TestMatch_AmbiguousIDPrefersFirstInDocumentOrder(t *testing.T) {
	root := parse(t, `<p id="dup">first</p><p id="dup">second</p>`)
	for i := 0; i < 5; i++ {
		res, err := (&Matcher{}).Match(root, stylerecord.StyleRecord{ID: "dup"})
		require.NoError(t, err)
		require.Equal(t, MethodAmbiguousID, res.Method)
		require.Equal(t, "first", dom.TextContent(res.Node))
		require.Equal(t, 2, res.Pooled)
	}
}

func TestMatch_ClassRankedByContext(t *testing.T) {
	root := parse(t, `<div id="p1"><span class="label">Other</span></div>`+
		`<div id="p2"><h3 class="label">Price</h3></div>`)
	rec := stylerecord.StyleRecord{ClassName: "label", TextContent: " Price ", TagName: "H3", ParentID: "p2"}
	res, err := (&Matcher{}).Match(root, rec)
	require.NoError(t, err)
	require.Equal(t, MethodClass, res.Method)
	require.Equal(t, "h3", res.Node.Data)
	// base 40, second in list -1, text +30, tag +20, parent +25
	require.Equal(t, 114, res.Confidence)
}

func TestMatch_InvalidSelectorIsCountedAndSkipped(t *testing.T) {
	root := parse(t, `<div class="ok">x</div>`)
	res, err := (&Matcher{}).Match(root, stylerecord.StyleRecord{ClassName: "1bad ok"})
	require.NoError(t, err)
	require.Equal(t, 1, res.SelectorErrors)
	require.Equal(t, "ok", dom.Attr(res.Node, "class"))

	_, err = (&Matcher{}).Match(root, stylerecord.StyleRecord{ClassName: "[["})
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestMatch_NoMatch(t *testing.T) {
	root := parse(t, `<div id="a"></div>`)
	_, err := (&Matcher{}).Match(root, stylerecord.StyleRecord{ID: "zzz"})
	require.ErrorIs(t, err, ErrNoMatch)
	_, err = (&Matcher{}).Match(root, stylerecord.StyleRecord{})
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestMatch_RootIsNeverSelected(t *testing.T) {
	root := parse(t, `<div id="a"></div>`)
	root.Attr = append(root.Attr, html.Attribute{Key: "id", Val: "root"})
	_, err := (&Matcher{}).Match(root, stylerecord.StyleRecord{ID: "root"})
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestMatch_CustomStrategies(t *testing.T) {
	root := parse(t, `<div id="a" class="c"></div>`)
	m := &Matcher{Strategies: []Strategy{ByClass}}
	res, err := m.Match(root, stylerecord.StyleRecord{ID: "a", ClassName: "c"})
	require.NoError(t, err)
	require.Equal(t, MethodClass, res.Method)
}

func TestMatch_RecordWithoutIdentity(t *testing.T) {
	root := parse(t, `<div><p>Hello</p></div>`)
	rec := stylerecord.StyleRecord{TagName: "p", TextContent: "Hello", Styles: map[string]string{"color": "red"}}
	require.False(t, rec.HasIdentity())
	_, err := (&Matcher{}).Match(root, rec)
	require.ErrorIs(t, err, ErrNoMatch)

	byTag := func(root *html.Node, rec stylerecord.StyleRecord) Outcome {
		n := dom.FindFirst(root, rec.TagName)
		if n == nil {
			return Outcome{}
		}
		return Outcome{Kind: Unique, Candidates: []Candidate{{Node: n, Confidence: 1, Method: "tag"}}}
	}
	res, err := (&Matcher{Strategies: []Strategy{byTag}}).Match(root, rec)
	require.NoError(t, err)
	require.Equal(t, Method("tag"), res.Method)
}

func TestAttrSelectorEscapesQuotes(t *testing.T) {
	root := parse(t, `<div id='say "hi"'></div>`)
	res, err := (&Matcher{}).Match(root, stylerecord.StyleRecord{ID: `say "hi"`})
	require.NoError(t, err)
	require.Equal(t, MethodUniqueID, res.Method)
}
