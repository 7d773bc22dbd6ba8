package optimize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Classification tells the optimizer what kind of subtree it receives.
type Classification string

const (
	DecorativeLayer  Classification = "decorative-layer"
	GenericContainer Classification = "generic-container"
)

// DefaultTimeout bounds a single optimizer call.
const DefaultTimeout = 180 * time.Second

// Optimizer rewrites one subtree. Implementations may fail or block; the
// Adapter bounds and absorbs both.
type Optimizer interface {
	Optimize(ctx context.Context, markup string, class Classification, hint string) (string, error)
}

// Func adapts a plain function to Optimizer.
type Func func(ctx context.Context, markup string, class Classification, hint string) (string, error)

func (f Func) Optimize(ctx context.Context, markup string, class Classification, hint string) (string, error) {
	return f(ctx, markup, class, hint)
}

// ErrEmptyRewrite is reported when the optimizer returns blank markup.
var ErrEmptyRewrite = errors.New("optimizer returned empty markup")

// Task is one subtree to rewrite.
type Task struct {
	Token string
	HTML  string
	Class Classification
	// Hint is an identifier the optimizer may use for naming, typically the
	// subtree's element id.
	Hint string
}

// Outcome is the result of one task. HTML is "" whenever Err is set.
type Outcome struct {
	Token   string        `json:"token"`
	HTML    string        `json:"html"`
	Err     error         `json:"-"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Failed reports whether the task fell back to the empty rewrite.
func (o Outcome) Failed() bool { return o.Err != nil }

// Adapter dispatches tasks to an Optimizer with bounded concurrency and a
// per-task timeout. A failed or timed out task yields "" and never cancels
// its siblings.
type Adapter struct {
	Optimizer Optimizer
	// Timeout per task. Zero means DefaultTimeout.
	Timeout time.Duration
	// Concurrency caps in-flight tasks for one Run. Zero or negative runs
	// every task of the batch in parallel.
	Concurrency int
	// Limiter optionally paces calls across every Run sharing this Adapter.
	Limiter *rate.Limiter
}

// Run executes tasks and returns outcomes in task order.
func (a *Adapter) Run(ctx context.Context, tasks []Task) []Outcome {
	out := make([]Outcome, len(tasks))
	if len(tasks) == 0 {
		return out
	}
	var g errgroup.Group
	limit := a.Concurrency
	if limit <= 0 {
		limit = len(tasks)
	}
	g.SetLimit(limit)
	for i, t := range tasks {
		g.Go(func() error {
			out[i] = a.runOne(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (a *Adapter) runOne(ctx context.Context, t Task) Outcome {
	started := time.Now()
	res := Outcome{Token: t.Token}
	html, err := a.call(ctx, t)
	res.Elapsed = time.Since(started)
	if err == nil && strings.TrimSpace(html) == "" {
		err = ErrEmptyRewrite
	}
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		log.Warn().Err(err).Str("token", t.Token).Str("class", string(t.Class)).Dur("elapsed", res.Elapsed).Msg("optimizer task failed; using empty fallback")
		return res
	}
	res.HTML = html
	log.Debug().Str("token", t.Token).Str("class", string(t.Class)).Int("in", len(t.HTML)).Int("out", len(html)).Dur("elapsed", res.Elapsed).Msg("optimizer task done")
	return res
}

// call runs the optimizer in its own goroutine so a call that ignores its
// context is abandoned once the timeout fires.
func (a *Adapter) call(ctx context.Context, t Task) (string, error) {
	if a.Optimizer == nil {
		return "", errors.New("optimizer not configured")
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if a.Limiter != nil {
		if err := a.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}
	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("optimizer panic: %v", r)}
			}
		}()
		html, err := a.Optimizer.Optimize(ctx, t.HTML, t.Class, t.Hint)
		done <- result{html: html, err: err}
	}()
	select {
	case r := <-done:
		return r.html, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("optimizer %s: %w", t.Token, ctx.Err())
	}
}
