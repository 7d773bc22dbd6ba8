package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/pagemigrate/internal/segment"
)

// DefaultSectionConcurrency bounds concurrently running sections.
const DefaultSectionConcurrency = 4

// Accumulator collects section results keyed by index. It is scoped to one
// orchestrator run and safe for concurrent writers.
type Accumulator struct {
	mu      sync.Mutex
	want    int
	results map[int]Result
}

// NewAccumulator expects results for indices 0..n-1.
func NewAccumulator(n int) *Accumulator {
	return &Accumulator{want: n, results: make(map[int]Result, n)}
}

// Put stores r under r.Index. Out-of-range and repeated indices are rejected.
func (a *Accumulator) Put(r Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r.Index < 0 || r.Index >= a.want {
		return fmt.Errorf("section index %d out of range [0,%d)", r.Index, a.want)
	}
	if _, dup := a.results[r.Index]; dup {
		return fmt.Errorf("section index %d already recorded", r.Index)
	}
	a.results[r.Index] = r
	return nil
}

// Complete reports whether every index has a result.
func (a *Accumulator) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results) == a.want
}

// Ordered returns the results in index order once complete.
func (a *Accumulator) Ordered() ([]Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.results) != a.want {
		missing := make([]int, 0, a.want-len(a.results))
		for i := 0; i < a.want; i++ {
			if _, ok := a.results[i]; !ok {
				missing = append(missing, i)
			}
		}
		return nil, fmt.Errorf("incomplete: missing sections %v", missing)
	}
	out := make([]Result, 0, a.want)
	for _, r := range a.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Assembly is the outcome of one orchestrator run.
type Assembly struct {
	Results   []Result      `json:"sections"`
	Body      string        `json:"-"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Degraded  int           `json:"degraded"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Orchestrator runs sections concurrently and assembles them in index order.
type Orchestrator struct {
	Pipeline *SectionPipeline
	// Concurrency caps running sections. Zero means DefaultSectionConcurrency.
	Concurrency int
}

// Run migrates every section. Section failures are recorded in their results
// and never abort the run; cancellation of ctx fails the sections that have
// not finished.
func (o *Orchestrator) Run(ctx context.Context, sections []segment.Section) (Assembly, error) {
	started := time.Now()
	acc := NewAccumulator(len(sections))
	limit := o.Concurrency
	if limit <= 0 {
		limit = DefaultSectionConcurrency
	}
	p := o.Pipeline
	if p == nil {
		p = &SectionPipeline{}
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, sec := range sections {
		g.Go(func() error {
			return acc.Put(p.Run(ctx, sec))
		})
	}
	if err := g.Wait(); err != nil {
		return Assembly{}, err
	}
	results, err := acc.Ordered()
	if err != nil {
		return Assembly{}, err
	}
	asm := Assembly{Results: results, Body: Join(results), Elapsed: time.Since(started)}
	for _, r := range results {
		switch {
		case !r.Succeeded:
			asm.Failed++
		case r.Degraded:
			asm.Succeeded++
			asm.Degraded++
		default:
			asm.Succeeded++
		}
	}
	log.Info().Int("sections", len(results)).Int("succeeded", asm.Succeeded).Int("failed", asm.Failed).Int("degraded", asm.Degraded).Dur("elapsed", asm.Elapsed).Msg("migration assembled")
	return asm, nil
}

// Join concatenates the html of succeeded sections in slice order.
func Join(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		if !r.Succeeded {
			continue
		}
		b.WriteString(r.HTML)
		b.WriteByte('\n')
	}
	return b.String()
}

// Assemble wraps the joined sections in a complete document carrying head.
func Assemble(head string, results []Result) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	if h := strings.TrimSpace(head); h != "" {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString(Join(results))
	b.WriteString("</body>\n</html>\n")
	return b.String()
}
