package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/pagemigrate/internal/cache"
	"github.com/hyperifyio/pagemigrate/internal/fetch"
	"github.com/hyperifyio/pagemigrate/internal/llm"
	"github.com/hyperifyio/pagemigrate/internal/optimize"
	"github.com/hyperifyio/pagemigrate/internal/pipeline"
	"github.com/hyperifyio/pagemigrate/internal/segment"
	"github.com/hyperifyio/pagemigrate/internal/stylerecord"
)

// ErrInputLoad is returned when the document or the style map cannot be read
// or parsed. It is the only error that aborts a run; the CLI maps it to a
// non-zero exit code.
var ErrInputLoad = errors.New("input load failed")

type App struct {
	cfg       Config
	optimizer optimize.Optimizer
	rewrites  *cache.RewriteCache
	limiter   *rate.Limiter
}

// Option customizes an App.
type Option func(*App)

// WithOptimizer replaces the optimizer built from configuration.
func WithOptimizer(o optimize.Optimizer) Option {
	return func(a *App) { a.optimizer = o }
}

func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	cfg = cfg.withDefaults()
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
				log.Warn().Err(err).Msg("cache purge failed")
			} else if n > 0 {
				log.Info().Int("removed", n).Dur("maxAge", cfg.CacheMaxAge).Msg("purged stale rewrites")
			}
		}
		a.rewrites = &cache.RewriteCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	}
	if cfg.OptimizerRate > 0 {
		burst := int(cfg.OptimizerRate)
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.OptimizerRate), burst)
	}

	if a.optimizer != nil {
		return a, nil
	}
	if cfg.DryRun {
		a.optimizer = optimize.Static{}
		return a, nil
	}

	provider := llm.NewOpenAIProvider(cfg.LLMBaseURL, cfg.LLMAPIKey, newOptimizerHTTPClient(cfg.OptimizerConcurrency))
	preflight(ctx, provider, cfg.LLMModel)
	a.optimizer = &optimize.LLMOptimizer{
		Client:       provider,
		Model:        cfg.LLMModel,
		Cache:        a.rewrites,
		SystemPrompt: cfg.SystemPrompt,
		CacheOnly:    cfg.LLMCacheOnly,
	}
	return a, nil
}

// preflight lists models as a best-effort connectivity check. It never fails
// the run; optimizer failures later degrade sections instead.
func preflight(ctx context.Context, c llm.ModelLister, model string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := c.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	for _, m := range models.Models {
		if m.ID == model {
			log.Info().Int("count", len(models.Models)).Str("model", model).Msg("LLM model available")
			return
		}
	}
	log.Warn().Int("count", len(models.Models)).Str("model", model).Msg("configured model not listed by server")
}

// Run migrates the input document. Input loading and output write errors are
// returned; section, optimizer and artifact problems are logged and recorded
// in the summary.
func (a *App) Run(ctx context.Context) error {
	doc, groups, err := a.loadInputs(ctx)
	if err != nil {
		return err
	}
	sections, err := segment.Split(doc, groups)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputLoad, err)
	}
	head, err := segment.Head(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputLoad, err)
	}
	runID := uuid.NewString()
	log.Info().Str("run", runID).Int("sections", len(sections)).Int("groups", len(groups)).Bool("dryRun", a.cfg.DryRun).Msg("migration started")

	hooks := &pipeline.Hooks{}
	var artifacts *artifactWriter
	if a.cfg.ArtifactsDir != "" {
		if artifacts, err = newArtifactWriter(a.cfg.ArtifactsDir, runID); err != nil {
			log.Warn().Err(err).Msg("artifacts disabled")
		} else {
			hooks.OnSnapshot = artifacts.snapshot
			hooks.OnResult = artifacts.result
		}
	}

	orch := &pipeline.Orchestrator{
		Concurrency: a.cfg.SectionConcurrency,
		Pipeline: &pipeline.SectionPipeline{
			Adapter: &optimize.Adapter{
				Optimizer:   a.optimizer,
				Timeout:     a.cfg.OptimizerTimeout,
				Concurrency: a.cfg.OptimizerConcurrency,
				Limiter:     a.limiter,
			},
			MaxPasses: a.cfg.MaxResolvePasses,
			Hooks:     hooks,
		},
	}
	asm, err := orch.Run(ctx, sections)
	if err != nil {
		// Only reachable on an accumulator invariant violation.
		return fmt.Errorf("assemble sections: %w", err)
	}

	final := pipeline.Assemble(head, asm.Results)
	if dir := filepath.Dir(a.cfg.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(a.cfg.OutputPath, []byte(final), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Info().Str("out", a.cfg.OutputPath).Int("bytes", len(final)).Msg("wrote output")

	summary := buildSummary(summaryMeta{
		RunID:        runID,
		Version:      BuildVersion,
		Model:        a.cfg.LLMModel,
		LLMBaseURL:   a.cfg.LLMBaseURL,
		DryRun:       a.cfg.DryRun,
		RewriteCache: a.rewrites != nil,
		GeneratedAt:  time.Now().UTC(),
	}, asm)
	a.writeReports(summary, artifacts)
	return nil
}

func (a *App) loadInputs(ctx context.Context) (string, map[string]any, error) {
	loader := &fetch.Client{
		HTTPClient:        &http.Client{},
		UserAgent:         "pagemigrate/" + BuildVersion,
		MaxAttempts:       3,
		PerRequestTimeout: 30 * time.Second,
	}
	doc, err := loader.Load(ctx, a.cfg.InputPath, fetch.HTMLTypes)
	if err != nil {
		return "", nil, fmt.Errorf("%w: read document: %v", ErrInputLoad, err)
	}
	groups := map[string]any{}
	if a.cfg.StylesPath != "" {
		raw, err := loader.Load(ctx, a.cfg.StylesPath, fetch.JSONTypes)
		if err != nil {
			return "", nil, fmt.Errorf("%w: read style map: %v", ErrInputLoad, err)
		}
		if groups, err = stylerecord.LoadGroups(bytes.NewReader(raw)); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInputLoad, err)
		}
	}
	return string(doc), groups, nil
}

// writeReports writes the summary sidecar, the optional PDF and, when
// artifacts are enabled, summary.json plus SHA256SUMS. Failures are warnings.
func (a *App) writeReports(s migrationSummary, artifacts *artifactWriter) {
	data, err := marshalSummaryJSON(s)
	if err != nil {
		log.Warn().Err(err).Msg("encode summary")
		return
	}
	if err := os.WriteFile(deriveSummarySidecarPath(a.cfg.OutputPath), data, 0o644); err != nil {
		log.Warn().Err(err).Msg("write summary sidecar")
	}
	if a.cfg.SummaryPDFPath != "" {
		if err := writeSummaryPDF(s, a.cfg.SummaryPDFPath); err != nil {
			log.Warn().Err(err).Str("path", a.cfg.SummaryPDFPath).Msg("write summary pdf")
		}
	}
	if artifacts == nil {
		return
	}
	artifacts.write("summary.json", data)
	if err := artifacts.finish(); err != nil {
		log.Warn().Err(err).Str("dir", artifacts.dir).Msg("some artifacts were not written")
		return
	}
	log.Info().Str("dir", artifacts.dir).Msg("wrote artifacts")
}
