package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperifyio/pagemigrate/internal/optimize"
	"github.com/hyperifyio/pagemigrate/internal/placeholder"
	"github.com/hyperifyio/pagemigrate/internal/segment"
	"github.com/hyperifyio/pagemigrate/internal/stylerecord"
)

const layeredSection = `<section id="s1">` +
	`<div id="bgLayers_x" style="position:absolute;top:0;bottom:0;left:0;right:0">` +
	`<div data-testid="colorUnderlay" style="background-color:rgb(1,2,3)"></div>` +
	`<div id="bgMedia_x"></div>` +
	`</div>` +
	`<p>Hi</p>` +
	`</section>`

// layerOpt rewrites decorative layers with layerHTML and echoes containers.
func layerOpt(layerHTML string, layerErr error) optimize.Func {
	return func(ctx context.Context, markup string, class optimize.Classification, _ string) (string, error) {
		if class == optimize.DecorativeLayer {
			return layerHTML, layerErr
		}
		return markup, nil
	}
}

func TestSectionPipeline_DecorativeLayerBecomesBackgroundToken(t *testing.T) {
	var mu sync.Mutex
	snaps := map[State]string{}
	p := &SectionPipeline{
		Adapter: &optimize.Adapter{Optimizer: layerOpt(`<div class="bg" style="background-color:rgb(1,2,3)"></div>`, nil)},
		Hooks: &Hooks{OnSnapshot: func(s Snapshot) {
			mu.Lock()
			snaps[s.Stage] = s.HTML
			mu.Unlock()
		}},
	}
	res := p.Run(context.Background(), segment.Section{Index: 0, ID: "s1", HTML: layeredSection})

	if !res.Succeeded || res.State != Done || res.Degraded {
		t.Fatalf("unexpected result state: %+v", res)
	}
	if len(res.Layers) != 1 || res.Layers[0].Token != "bg-01" {
		t.Fatalf("expected a single bg-01 layer, got %+v", res.Layers)
	}
	if got := snaps[LayersExtracted]; !strings.Contains(got, "{{bg-01}}") || strings.Contains(got, "bgLayers_x") {
		t.Fatalf("layer not replaced by token after extraction: %s", got)
	}
	if got := snaps[LeavesExtracted]; !strings.Contains(got, "{{widget-1}}") {
		t.Fatalf("leaf not tokenized: %s", got)
	}
	if got := snaps[Optimized]; got != "{{template-0001}}" {
		t.Fatalf("section container should collapse to one token, got %s", got)
	}
	want := `<section id="s1"><div class="bg" style="background-color:rgb(1,2,3)"></div><p>Hi</p></section>`
	if res.HTML != want {
		t.Fatalf("resolved html mismatch\n got: %s\nwant: %s", res.HTML, want)
	}
	if strings.Contains(res.HTML, "{{") {
		t.Fatalf("tokens left in output: %s", res.HTML)
	}
	if res.BytesBefore != len(layeredSection) || res.BytesAfter != len(want) {
		t.Fatalf("byte counts: before=%d after=%d", res.BytesBefore, res.BytesAfter)
	}
}

func TestSectionPipeline_FailedLayerResolvesToEmpty(t *testing.T) {
	p := &SectionPipeline{Adapter: &optimize.Adapter{Optimizer: layerOpt("", errors.New("optimizer unavailable"))}}
	res := p.Run(context.Background(), segment.Section{Index: 0, ID: "s1", HTML: layeredSection})

	if !res.Succeeded || !res.Degraded {
		t.Fatalf("expected degraded success, got %+v", res)
	}
	if res.HTML != `<section id="s1"><p>Hi</p></section>` {
		t.Fatalf("unexpected html: %s", res.HTML)
	}
	if !hasKind(res.Diagnostics, KindOptimizerFailure) {
		t.Fatalf("missing optimizer-failure diagnostic: %+v", res.Diagnostics)
	}
}

func TestSectionPipeline_TimedOutLayerStillSucceeds(t *testing.T) {
	slow := optimize.Func(func(ctx context.Context, markup string, class optimize.Classification, _ string) (string, error) {
		if class == optimize.DecorativeLayer {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return markup, nil
	})
	p := &SectionPipeline{Adapter: &optimize.Adapter{Optimizer: slow, Timeout: 30 * time.Millisecond}}
	res := p.Run(context.Background(), segment.Section{Index: 0, ID: "s1", HTML: layeredSection})

	if !res.Succeeded || res.State != Done {
		t.Fatalf("timeout must degrade, not fail: %+v", res)
	}
	if res.HTML != `<section id="s1"><p>Hi</p></section>` {
		t.Fatalf("unexpected html: %s", res.HTML)
	}
	if v, ok := findEntry(res.Placeholders, "bg-01"); !ok || v != "" {
		t.Fatalf("bg-01 should map to empty string, got %q (present=%v)", v, ok)
	}
}

func TestSectionPipeline_FailedContainerDropsItsContent(t *testing.T) {
	opt := optimize.Func(func(ctx context.Context, markup string, class optimize.Classification, hint string) (string, error) {
		if hint == "card-b" {
			return "", errors.New("malformed")
		}
		return markup, nil
	})
	sec := segment.Section{Index: 0, ID: "section_0", HTML: `<section><div id="card-a"><h2>A</h2></div><div id="card-b"><h2>B</h2></div></section>`}
	res := (&SectionPipeline{Adapter: &optimize.Adapter{Optimizer: opt}}).Run(context.Background(), sec)

	if len(res.Containers) != 2 {
		t.Fatalf("expected two containers, got %+v", res.Containers)
	}
	if res.HTML != `<section><div id="card-a"><h2>A</h2></div></section>` {
		t.Fatalf("unexpected html: %s", res.HTML)
	}
	if !res.Succeeded || !res.Degraded {
		t.Fatalf("expected degraded success: %+v", res)
	}
}

func TestSectionPipeline_ReconcilesStylesAndReportsDuplicates(t *testing.T) {
	records := []stylerecord.StyleRecord{
		{ID: "comp-1", ClassName: "card", TextContent: "Hello", Styles: map[string]string{"color": "red"}, OriginalIndex: 0, Path: "a.b"},
		{ID: "comp-1", ClassName: "card", TextContent: "Hello", Styles: map[string]string{"color": "red"}, OriginalIndex: 1, Path: "c.d"},
		{ID: "missing", Styles: map[string]string{"margin": "0"}, OriginalIndex: 2},
	}
	sec := segment.Section{Index: 0, ID: "s1", HTML: `<section id="s1"><div id="comp-1" class="card">Hello</div></section>`, StyleRecords: records}
	res := (&SectionPipeline{Adapter: &optimize.Adapter{Optimizer: optimize.Static{}}}).Run(context.Background(), sec)

	rep := res.Reconciliation
	if rep.Applied != 1 || rep.Duplicates != 1 || rep.Unmatched != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if !strings.Contains(res.HTML, `style="color: red"`) {
		t.Fatalf("style not merged: %s", res.HTML)
	}
	if !hasKind(res.Diagnostics, KindMatchNotFound) || !hasKind(res.Diagnostics, KindDuplicateApplication) {
		t.Fatalf("missing reconciliation diagnostics: %+v", res.Diagnostics)
	}
	if !res.Succeeded || res.Degraded {
		t.Fatalf("reconciliation diagnostics must not degrade the section: %+v", res)
	}
}

func TestSectionPipeline_SnapshotsFollowStageOrder(t *testing.T) {
	var stages []State
	p := &SectionPipeline{
		Adapter: &optimize.Adapter{Optimizer: optimize.Static{}},
		Hooks:   &Hooks{OnSnapshot: func(s Snapshot) { stages = append(stages, s.Stage) }},
	}
	res := p.Run(context.Background(), segment.Section{Index: 0, ID: "s1", HTML: layeredSection})
	if res.State != Done {
		t.Fatalf("expected done, got %s", res.State)
	}
	want := []State{Segmented, StylesReconciled, LayersExtracted, LeavesExtracted, Optimized, Resolved}
	if strings.Join(stateNames(stages), ",") != strings.Join(stateNames(want), ",") {
		t.Fatalf("snapshot order %v, want %v", stages, want)
	}
}

func stateNames(ss []State) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func TestSectionPipeline_PanicFailsOnlyThatSection(t *testing.T) {
	p := &SectionPipeline{
		Adapter: &optimize.Adapter{Optimizer: optimize.Static{}},
		Hooks: &Hooks{OnSnapshot: func(s Snapshot) {
			if s.Stage == LeavesExtracted {
				panic("snapshot writer exploded")
			}
		}},
	}
	res := p.Run(context.Background(), segment.Section{Index: 3, ID: "s3", HTML: `<section id="s3"><p>x</p></section>`})
	if res.Succeeded || res.State != Failed || res.HTML != "" {
		t.Fatalf("expected failed section, got %+v", res)
	}
	if !hasKind(res.Diagnostics, KindSectionFailure) {
		t.Fatalf("missing section-failure diagnostic: %+v", res.Diagnostics)
	}
}

func TestSectionPipeline_UnresolvedTokenIsReported(t *testing.T) {
	// Leaf markup that itself carries an unknown token survives resolution.
	sec := segment.Section{Index: 0, ID: "s1", HTML: `<section id="s1"><p>{{foreign-7}}</p></section>`}
	res := (&SectionPipeline{Adapter: &optimize.Adapter{Optimizer: optimize.Static{}}}).Run(context.Background(), sec)
	if !res.Succeeded {
		t.Fatalf("unresolved tokens must not fail the section: %+v", res)
	}
	if len(res.Resolution.Unresolved) != 1 || res.Resolution.Unresolved[0] != "foreign-7" {
		t.Fatalf("unexpected unresolved list: %v", res.Resolution.Unresolved)
	}
	if !hasKind(res.Diagnostics, KindUnresolvedPlaceholder) {
		t.Fatalf("missing unresolved-placeholder diagnostic")
	}
}

func TestSectionPipeline_NilAdapterDegrades(t *testing.T) {
	res := (&SectionPipeline{}).Run(context.Background(), segment.Section{Index: 0, ID: "s1", HTML: layeredSection})
	if !res.Succeeded || !res.Degraded || res.HTML != "" {
		t.Fatalf("expected degraded empty output, got %+v", res)
	}
}

func hasKind(ds []Diagnostic, k Kind) bool {
	for _, d := range ds {
		if d.Kind == k {
			return true
		}
	}
	return false
}

func findEntry(es []placeholder.Entry, tok string) (string, bool) {
	for _, e := range es {
		if e.Token == tok {
			return e.Value, true
		}
	}
	return "", false
}
