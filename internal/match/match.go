package match

import (
	"errors"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hyperifyio/pagemigrate/internal/dom"
	"github.com/hyperifyio/pagemigrate/internal/stylerecord"
)

// Method names the strategy that produced a candidate.
type Method string

const (
	MethodUniqueID        Method = "unique-id"
	MethodAmbiguousID     Method = "ambiguous-id"
	MethodUniqueMeshID    Method = "unique-mesh-id"
	MethodAmbiguousMeshID Method = "ambiguous-mesh-id"
	MethodUniqueTestID    Method = "unique-test-id"
	MethodAmbiguousTestID Method = "ambiguous-test-id"
	MethodClass           Method = "class"
)

// Scores per strategy. Ambiguous candidates lose one point per position in
// the match list so the first match in document order ranks highest.
const (
	scoreUniqueID        = 100
	scoreAmbiguousID     = 90
	scoreUniqueMeshID    = 95
	scoreAmbiguousMeshID = 85
	scoreUniqueTestID    = 80
	scoreAmbiguousTestID = 70
	scoreClassBase       = 40

	bonusText   = 30
	bonusTag    = 20
	bonusParent = 25
)

// ErrNoMatch is returned when no strategy produced a usable candidate.
var ErrNoMatch = errors.New("no matching element")

// Candidate is one plausible element for a record.
type Candidate struct {
	Node       *html.Node
	Confidence int
	Method     Method
}

// Kind tags the outcome of a single strategy.
type Kind int

const (
	// None means the strategy did not apply or found nothing.
	None Kind = iota
	// Unique means exactly one element matched; matching stops here.
	Unique
	// Ambiguous means several elements matched; they are pooled for ranking.
	Ambiguous
)

// Outcome is the tagged result of one strategy.
type Outcome struct {
	Kind       Kind
	Candidates []Candidate
	// SelectorErrors counts selectors that failed to compile.
	SelectorErrors int
}

// Strategy resolves a record against the tree rooted at root.
type Strategy func(root *html.Node, rec stylerecord.StyleRecord) Outcome

// Result carries the chosen candidate plus bookkeeping for diagnostics.
type Result struct {
	Candidate
	Pooled         int
	SelectorErrors int
}

// Matcher applies its strategies in order. The zero value uses the default
// id > mesh-id > test-id > class ordering.
type Matcher struct {
	Strategies []Strategy
}

// DefaultStrategies returns the strategies in strict priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{ByID, ByMeshID, ByTestID, ByClass}
}

// Match returns the single best element for rec. A unique hit from an earlier
// strategy wins outright; otherwise ambiguous candidates from every strategy
// are ranked by confidence, ties keeping discovery order.
func (m *Matcher) Match(root *html.Node, rec stylerecord.StyleRecord) (Result, error) {
	strategies := m.Strategies
	if len(strategies) == 0 {
		// Every default strategy keys on an identity field.
		if !rec.HasIdentity() {
			return Result{}, ErrNoMatch
		}
		strategies = DefaultStrategies()
	}
	var pool []Candidate
	selectorErrors := 0
	for _, s := range strategies {
		out := s(root, rec)
		selectorErrors += out.SelectorErrors
		switch out.Kind {
		case Unique:
			c := out.Candidates[0]
			if !rejected(root, c.Node) {
				return Result{Candidate: c, Pooled: len(pool), SelectorErrors: selectorErrors}, nil
			}
		case Ambiguous:
			for _, c := range out.Candidates {
				if !rejected(root, c.Node) {
					pool = append(pool, c)
				}
			}
		}
	}
	if len(pool) == 0 {
		return Result{SelectorErrors: selectorErrors}, ErrNoMatch
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Confidence > pool[j].Confidence })
	return Result{Candidate: pool[0], Pooled: len(pool), SelectorErrors: selectorErrors}, nil
}

func rejected(root, n *html.Node) bool {
	return n == nil || n == root || dom.IsRoot(n)
}

// ByID selects by exact id attribute.
func ByID(root *html.Node, rec stylerecord.StyleRecord) Outcome {
	if rec.ID == "" {
		return Outcome{}
	}
	return exact(root, attrSelector("id", rec.ID), scoreUniqueID, MethodUniqueID, scoreAmbiguousID, MethodAmbiguousID)
}

// ByMeshID selects by data-mesh-id.
func ByMeshID(root *html.Node, rec stylerecord.StyleRecord) Outcome {
	if rec.DataMeshID == "" {
		return Outcome{}
	}
	return exact(root, attrSelector("data-mesh-id", rec.DataMeshID), scoreUniqueMeshID, MethodUniqueMeshID, scoreAmbiguousMeshID, MethodAmbiguousMeshID)
}

// ByTestID selects by either spelling of the test id attribute.
func ByTestID(root *html.Node, rec stylerecord.StyleRecord) Outcome {
	if rec.DataTestID == "" {
		return Outcome{}
	}
	sel := attrSelector("data-testid", rec.DataTestID) + ", " + attrSelector("data-test-id", rec.DataTestID)
	return exact(root, sel, scoreUniqueTestID, MethodUniqueTestID, scoreAmbiguousTestID, MethodAmbiguousTestID)
}

// ByClass scores every element carrying one of the record's class tokens.
// Class matching never produces a unique hit.
func ByClass(root *html.Node, rec stylerecord.StyleRecord) Outcome {
	tokens := strings.Fields(rec.ClassName)
	if len(tokens) == 0 {
		return Outcome{}
	}
	out := Outcome{}
	text := ""
	if rec.TextContent != "" {
		text = dom.NormalizeText(rec.TextContent)
	}
	for _, tok := range tokens {
		nodes, err := selectAll(root, "."+tok)
		if err != nil {
			out.SelectorErrors++
			continue
		}
		for i, n := range nodes {
			score := scoreClassBase + contextBonus(root, n, rec, text) - i
			out.Candidates = append(out.Candidates, Candidate{Node: n, Confidence: score, Method: MethodClass})
		}
	}
	if len(out.Candidates) > 0 {
		out.Kind = Ambiguous
	}
	return out
}

func contextBonus(root, n *html.Node, rec stylerecord.StyleRecord, text string) int {
	bonus := 0
	if text != "" && dom.TextContent(n) == text {
		bonus += bonusText
	}
	if rec.TagName != "" && strings.EqualFold(n.Data, rec.TagName) {
		bonus += bonusTag
	}
	if rec.ParentID != "" && dom.HasAncestor(n, root, func(p *html.Node) bool { return dom.Attr(p, "id") == rec.ParentID }) {
		bonus += bonusParent
	}
	return bonus
}

func exact(root *html.Node, sel string, uniqueScore int, uniqueMethod Method, ambiguousScore int, ambiguousMethod Method) Outcome {
	nodes, err := selectAll(root, sel)
	if err != nil {
		return Outcome{SelectorErrors: 1}
	}
	switch len(nodes) {
	case 0:
		return Outcome{}
	case 1:
		return Outcome{Kind: Unique, Candidates: []Candidate{{Node: nodes[0], Confidence: uniqueScore, Method: uniqueMethod}}}
	}
	out := Outcome{Kind: Ambiguous, Candidates: make([]Candidate, 0, len(nodes))}
	for i, n := range nodes {
		out.Candidates = append(out.Candidates, Candidate{Node: n, Confidence: ambiguousScore - i, Method: ambiguousMethod})
	}
	return out
}

// selectAll compiles sel and returns matches in document order. Compilation
// errors are returned rather than panicking so callers can count them.
func selectAll(root *html.Node, sel string) ([]*html.Node, error) {
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return nil, err
	}
	return compiled.MatchAll(root), nil
}

// attrSelector builds [key="val"] with the value escaped as a CSS string.
func attrSelector(key, val string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return "[" + key + `="` + r.Replace(val) + `"]`
}
