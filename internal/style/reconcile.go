package style

import (
	"errors"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/hyperifyio/pagemigrate/internal/dom"
	"github.com/hyperifyio/pagemigrate/internal/match"
	"github.com/hyperifyio/pagemigrate/internal/stylerecord"
)

// Status is the outcome of applying one record.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusAlreadyProcessed Status = "already-processed"
	StatusNoMatch          Status = "no-match"
	StatusEmptyStyles      Status = "empty-styles"
)

// Application records what happened to a single record.
type Application struct {
	Index          int          `json:"originalIndex"`
	Label          string       `json:"label"`
	Status         Status       `json:"status"`
	Method         match.Method `json:"method,omitempty"`
	Confidence     int          `json:"confidence,omitempty"`
	Changed        bool         `json:"changed"`
	SelectorErrors int          `json:"selectorErrors,omitempty"`
}

// Report tallies a reconciliation pass.
type Report struct {
	Applications []Application `json:"applications"`
	Applied      int           `json:"applied"`
	Duplicates   int           `json:"duplicates"`
	Unmatched    int           `json:"unmatched"`
	Empty        int           `json:"empty"`
}

// Reconciler merges style records into inline styles. One Reconciler serves a
// single pipeline run; it remembers which signatures were already applied and
// must not be shared across concurrent runs.
type Reconciler struct {
	Matcher   *match.Matcher
	processed map[string]struct{}
}

// NewReconciler returns a reconciler with an empty processed set.
func NewReconciler(m *match.Matcher) *Reconciler {
	if m == nil {
		m = &match.Matcher{}
	}
	return &Reconciler{Matcher: m, processed: map[string]struct{}{}}
}

// Apply resolves rec to an element under root and merges its styles into the
// element's style attribute.
func (r *Reconciler) Apply(root *html.Node, rec stylerecord.StyleRecord) Application {
	app := Application{Index: rec.OriginalIndex, Label: rec.Label()}
	sig := stylerecord.Signature(rec)
	if _, seen := r.processed[sig]; seen {
		app.Status = StatusAlreadyProcessed
		return app
	}
	decls := stylerecord.Declarations(rec)
	if decls == "" {
		app.Status = StatusEmptyStyles
		return app
	}
	res, err := r.Matcher.Match(root, rec)
	app.SelectorErrors = res.SelectorErrors
	if err != nil {
		if !errors.Is(err, match.ErrNoMatch) {
			log.Debug().Err(err).Str("record", app.Label).Msg("match error")
		}
		app.Status = StatusNoMatch
		return app
	}
	r.processed[sig] = struct{}{}
	app.Method = res.Method
	app.Confidence = res.Confidence
	app.Changed = MergeInto(res.Node, decls)
	app.Status = StatusSuccess
	return app
}

// Reconcile applies every record in OriginalIndex order.
func (r *Reconciler) Reconcile(root *html.Node, records []stylerecord.StyleRecord) Report {
	ordered := append([]stylerecord.StyleRecord(nil), records...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].OriginalIndex < ordered[j].OriginalIndex })
	var rep Report
	for _, rec := range ordered {
		app := r.Apply(root, rec)
		switch app.Status {
		case StatusSuccess:
			rep.Applied++
		case StatusAlreadyProcessed:
			rep.Duplicates++
		case StatusNoMatch:
			rep.Unmatched++
		case StatusEmptyStyles:
			rep.Empty++
		}
		rep.Applications = append(rep.Applications, app)
	}
	return rep
}

// MergeInto overlays decls onto n's inline style and reports whether the
// attribute changed.
func MergeInto(n *html.Node, decls string) bool {
	existing := ParseDeclarations(dom.Attr(n, "style"))
	if !existing.Merge(ParseDeclarations(decls)) {
		return false
	}
	dom.SetAttr(n, "style", existing.String())
	return true
}
