package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/hyperifyio/pagemigrate/internal/dom"
	"github.com/hyperifyio/pagemigrate/internal/extract"
	"github.com/hyperifyio/pagemigrate/internal/match"
	"github.com/hyperifyio/pagemigrate/internal/optimize"
	"github.com/hyperifyio/pagemigrate/internal/placeholder"
	"github.com/hyperifyio/pagemigrate/internal/segment"
	"github.com/hyperifyio/pagemigrate/internal/style"
)

// Result is the outcome of one section run. A failed section keeps its index
// and contributes no html to the assembled document.
type Result struct {
	Index          int                 `json:"index"`
	ID             string              `json:"id"`
	HTML           string              `json:"-"`
	State          State               `json:"state"`
	Succeeded      bool                `json:"succeeded"`
	Degraded       bool                `json:"degraded"`
	BytesBefore    int                 `json:"bytesBefore"`
	BytesAfter     int                 `json:"bytesAfter"`
	Diagnostics    []Diagnostic        `json:"diagnostics,omitempty"`
	Reconciliation style.Report        `json:"reconciliation"`
	Layers         []optimize.Outcome  `json:"layers,omitempty"`
	Containers     []optimize.Outcome  `json:"containers,omitempty"`
	Resolution     placeholder.Result  `json:"resolution"`
	Placeholders   []placeholder.Entry `json:"placeholders,omitempty"`
	Elapsed        time.Duration       `json:"elapsed"`
}

// SectionPipeline runs one section through every stage. Its fields are
// configuration only; all working state is created per Run, so one pipeline
// can serve concurrent sections and repeated runs.
type SectionPipeline struct {
	Adapter *optimize.Adapter
	// Matcher defaults to the standard strategy chain.
	Matcher *match.Matcher
	// MaxPasses caps resolution. Zero means placeholder.DefaultMaxPasses.
	MaxPasses int
	Hooks     *Hooks
}

var errNoAdapter = errors.New("no optimizer adapter configured")

type run struct {
	p      *SectionPipeline
	sec    segment.Section
	root   *html.Node
	maps   *placeholder.Maps
	result Result
}

// Run executes the state machine for sec. It never returns an error: every
// failure is recorded in the Result.
func (p *SectionPipeline) Run(ctx context.Context, sec segment.Section) (res Result) {
	started := time.Now()
	r := &run{
		p:    p,
		sec:  sec,
		maps: placeholder.NewMaps(),
		result: Result{
			Index:       sec.Index,
			ID:          sec.ID,
			State:       Segmented,
			BytesBefore: len(sec.HTML),
		},
	}
	defer func() {
		if v := recover(); v != nil {
			r.fail(fmt.Errorf("panic: %v", v))
		}
		r.result.Elapsed = time.Since(started)
		res = r.result
		p.Hooks.result(res)
	}()

	r.emit(sec.HTML, sec)
	for _, step := range []func(context.Context) error{r.reconcile, r.layers, r.leaves, r.containers, r.resolve} {
		if err := ctx.Err(); err != nil {
			r.fail(fmt.Errorf("cancelled: %w", err))
			return
		}
		if err := step(ctx); err != nil {
			r.fail(err)
			return
		}
	}
	r.result.State = Done
	r.result.Succeeded = true
	log.Info().Int("section", sec.Index).Str("id", sec.ID).Int("before", r.result.BytesBefore).Int("after", r.result.BytesAfter).Bool("degraded", r.result.Degraded).Msg("section migrated")
	return
}

func (r *run) fail(err error) {
	r.diag(KindSectionFailure, r.sec.ID, err.Error())
	r.result.State = Failed
	r.result.Succeeded = false
	r.result.HTML = ""
	r.result.BytesAfter = 0
	log.Warn().Err(err).Int("section", r.sec.Index).Str("id", r.sec.ID).Msg("section failed")
}

func (r *run) diag(kind Kind, subject, msg string) {
	r.result.Diagnostics = append(r.result.Diagnostics, Diagnostic{Stage: r.result.State, Kind: kind, Subject: subject, Message: msg})
}

func (r *run) advance(s State, data any) error {
	r.result.State = s
	markup, err := dom.Inner(r.root)
	if err != nil {
		return fmt.Errorf("render after %s: %w", s, err)
	}
	r.emit(markup, data)
	return nil
}

func (r *run) emit(markup string, data any) {
	r.p.Hooks.snapshot(Snapshot{Section: r.sec.Index, SectionID: r.sec.ID, Stage: r.result.State, HTML: markup, Data: data})
}

func (r *run) reconcile(context.Context) error {
	root, err := dom.ParseFragment(r.sec.HTML)
	if err != nil {
		return err
	}
	r.root = root
	rep := style.NewReconciler(r.p.Matcher).Reconcile(root, r.sec.StyleRecords)
	r.result.Reconciliation = rep
	r.result.State = StylesReconciled
	for _, a := range rep.Applications {
		switch a.Status {
		case style.StatusNoMatch:
			r.diag(KindMatchNotFound, a.Label, "no element matched")
		case style.StatusAlreadyProcessed:
			r.diag(KindDuplicateApplication, a.Label, "signature already applied")
		}
		if a.SelectorErrors > 0 {
			r.diag(KindSelectorSyntax, a.Label, fmt.Sprintf("%d invalid selector(s) skipped", a.SelectorErrors))
		}
	}
	log.Debug().Int("section", r.sec.Index).Int("applied", rep.Applied).Int("duplicates", rep.Duplicates).Int("unmatched", rep.Unmatched).Msg("styles reconciled")
	return r.advance(StylesReconciled, rep)
}

// layers swaps decorative layers for background tokens and optimizes them
// before anything else, so later stages see only the tokens.
func (r *run) layers(ctx context.Context) error {
	subs, err := extract.DecorativeLayers().Extract(r.root, r.maps)
	if err != nil {
		return err
	}
	r.result.State = LayersExtracted
	tasks := make([]optimize.Task, len(subs))
	for i, s := range subs {
		tasks[i] = optimize.Task{Token: s.Token, HTML: s.HTML, Class: optimize.DecorativeLayer, Hint: s.ID}
	}
	r.result.Layers = r.dispatch(ctx, placeholder.Background, tasks)
	return r.advance(LayersExtracted, subs)
}

// leaves keeps content leaves verbatim; only their position is tokenized.
func (r *run) leaves(context.Context) error {
	subs, err := extract.LeafContent().Extract(r.root, r.maps)
	if err != nil {
		return err
	}
	for _, s := range subs {
		r.maps.Set(placeholder.LeafContent, s.Token, s.HTML)
	}
	return r.advance(LeavesExtracted, subs)
}

func (r *run) containers(ctx context.Context) error {
	nodes := extract.TopMostContainers(r.root)
	tasks := make([]optimize.Task, 0, len(nodes))
	for _, n := range nodes {
		markup, err := dom.Outer(n)
		if err != nil {
			return fmt.Errorf("render container %s: %w", dom.Attr(n, "id"), err)
		}
		tok := r.maps.Next(placeholder.RewrittenSubtree)
		dom.Replace(n, placeholder.Wrap(tok))
		tasks = append(tasks, optimize.Task{Token: tok, HTML: markup, Class: optimize.GenericContainer, Hint: dom.Attr(n, "id")})
	}
	r.result.State = Optimized
	r.result.Containers = r.dispatch(ctx, placeholder.RewrittenSubtree, tasks)
	return r.advance(Optimized, r.result.Containers)
}

func (r *run) dispatch(ctx context.Context, ns placeholder.Namespace, tasks []optimize.Task) []optimize.Outcome {
	if len(tasks) == 0 {
		return nil
	}
	var outs []optimize.Outcome
	if r.p.Adapter != nil {
		outs = r.p.Adapter.Run(ctx, tasks)
	} else {
		outs = make([]optimize.Outcome, len(tasks))
		for i, t := range tasks {
			outs[i] = optimize.Outcome{Token: t.Token, Err: errNoAdapter, Error: errNoAdapter.Error()}
		}
	}
	for _, o := range outs {
		r.maps.Set(ns, o.Token, o.HTML)
		if o.Failed() {
			r.result.Degraded = true
			r.diag(KindOptimizerFailure, o.Token, o.Error)
		}
	}
	return outs
}

func (r *run) resolve(context.Context) error {
	working, err := dom.Inner(r.root)
	if err != nil {
		return fmt.Errorf("render working tree: %w", err)
	}
	res := placeholder.Resolve(working, r.maps, r.p.MaxPasses)
	r.result.State = Resolved
	r.result.Resolution = res
	r.result.Placeholders = r.maps.Entries()
	if res.CapReached {
		r.diag(KindIterationCap, "", fmt.Sprintf("stopped after %d passes", res.Passes))
	}
	for _, tok := range res.Unresolved {
		r.diag(KindUnresolvedPlaceholder, tok, "token left in output")
	}
	r.result.HTML = res.HTML
	r.result.BytesAfter = len(res.HTML)
	r.emit(res.HTML, res)
	return nil
}
