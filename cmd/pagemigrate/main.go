package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/pagemigrate/internal/app"
)

// exitInputLoad is returned when the document or style map cannot be loaded,
// or the configuration cannot run at all.
const exitInputLoad = 2

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	os.Exit(execute(os.Args[1:]))
}

// execute runs the CLI with args and returns the process exit code.
func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}
	log.Error().Err(err).Msg("run failed")
	var cfgErr configError
	if errors.Is(err, app.ErrInputLoad) || errors.As(err, &cfgErr) {
		return exitInputLoad
	}
	// Anything else already produced output; report it as a warning.
	return 0
}

// configError marks configuration problems detected before the run starts.
type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pagemigrate",
		Short:         "Migrate exported page markup into compact, style-reconciled sections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.VersionString())
		},
	}
}

// migrateFlags holds raw flag values. Only flags the user actually set are
// copied into the config so the file and env layers stay visible.
type migrateFlags struct {
	configPath       string
	envFiles         []string
	systemPromptFile string
	cfg              app.Config
}

func newMigrateCmd() *cobra.Command {
	return (&migrateFlags{}).command()
}

func (f *migrateFlags) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the section migration pipeline over one document",
		Long: `Splits the input document into sections, reconciles each section with its
style records, rewrites decorative layers and content containers through the
optimizer and writes the reassembled document.

Precedence: flags > environment > config file > defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return configError{err}
			}
			if cfg.Verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return run(cmd.Context(), cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "Path to YAML or JSON config file")
	fl.StringSliceVar(&f.envFiles, "env-file", []string{".env"}, "Dotenv files to load before reading the environment")

	c := &f.cfg
	fl.StringVar(&c.InputPath, "input", "", "Path to the source HTML document")
	fl.StringVar(&c.StylesPath, "styles", "", "Path to the style map JSON (optional)")
	fl.StringVar(&c.OutputPath, "output", app.DefaultOutputPath, "Path to write the migrated document")
	fl.StringVar(&c.ArtifactsDir, "artifacts", "", "Directory for per-section stage snapshots (disabled when empty)")
	fl.StringVar(&c.SummaryPDFPath, "summary.pdf", "", "Optional path for a PDF run summary")

	fl.StringVar(&c.LLMBaseURL, "llm.base", "", "OpenAI-compatible base URL")
	fl.StringVar(&c.LLMModel, "llm.model", "", "Model name")
	fl.StringVar(&c.LLMAPIKey, "llm.key", "", "API key for the OpenAI-compatible server")
	fl.StringVar(&c.SystemPrompt, "llm.systemPrompt", "", "Override the optimizer system prompt (inline string)")
	fl.StringVar(&f.systemPromptFile, "llm.systemPromptFile", "", "Path to a file containing the optimizer system prompt")

	fl.DurationVar(&c.OptimizerTimeout, "optimizer.timeout", app.DefaultOptimizerTimeout, "Timeout for a single optimizer call")
	fl.IntVar(&c.OptimizerConcurrency, "optimizer.concurrency", app.DefaultOptimizerConcurrency, "Maximum concurrent optimizer calls per section")
	fl.Float64Var(&c.OptimizerRate, "optimizer.rate", 0, "Optimizer requests per second across the run; 0 disables pacing")
	fl.IntVar(&c.SectionConcurrency, "sections.concurrency", app.DefaultSectionConcurrency, "Maximum sections processed in parallel")
	fl.IntVar(&c.MaxResolvePasses, "resolve.maxPasses", app.DefaultMaxResolvePasses, "Placeholder resolution pass limit")

	fl.StringVar(&c.CacheDir, "cache.dir", app.DefaultCacheDir, "Rewrite cache directory; empty disables caching")
	fl.DurationVar(&c.CacheMaxAge, "cache.maxAge", 0, "Purge cached rewrites older than this before the run; 0 disables")
	fl.BoolVar(&c.CacheClear, "cache.clear", false, "Clear the rewrite cache before the run")
	fl.BoolVar(&c.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	fl.BoolVar(&c.LLMCacheOnly, "cache.only", false, "Serve rewrites from cache only; misses degrade the section")

	fl.BoolVar(&c.DryRun, "dry-run", false, "Run every stage without calling the model")
	fl.BoolVarP(&c.Verbose, "verbose", "v", false, "Verbose logging")
	return cmd
}

// resolve layers defaults, config file, environment and explicitly set flags.
func (f *migrateFlags) resolve(cmd *cobra.Command) (app.Config, error) {
	if err := app.LoadEnvFiles(f.envFiles...); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}

	cfg := app.Config{
		OutputPath:           app.DefaultOutputPath,
		CacheDir:             app.DefaultCacheDir,
		OptimizerTimeout:     app.DefaultOptimizerTimeout,
		OptimizerConcurrency: app.DefaultOptimizerConcurrency,
		SectionConcurrency:   app.DefaultSectionConcurrency,
		MaxResolvePasses:     app.DefaultMaxResolvePasses,
	}
	if f.configPath != "" {
		fc, err := app.LoadConfigFile(f.configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("load config %s: %w", f.configPath, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	f.applyChanged(cmd, &cfg)

	if strings.TrimSpace(f.systemPromptFile) != "" {
		b, err := os.ReadFile(f.systemPromptFile)
		if err != nil {
			return app.Config{}, fmt.Errorf("read system prompt: %w", err)
		}
		cfg.SystemPrompt = string(b)
	}
	if err := app.ValidateConfig(cfg); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

func (f *migrateFlags) applyChanged(cmd *cobra.Command, cfg *app.Config) {
	changed := cmd.Flags().Changed
	c := f.cfg
	set := map[string]func(){
		"input":                 func() { cfg.InputPath = c.InputPath },
		"styles":                func() { cfg.StylesPath = c.StylesPath },
		"output":                func() { cfg.OutputPath = c.OutputPath },
		"artifacts":             func() { cfg.ArtifactsDir = c.ArtifactsDir },
		"summary.pdf":           func() { cfg.SummaryPDFPath = c.SummaryPDFPath },
		"llm.base":              func() { cfg.LLMBaseURL = c.LLMBaseURL },
		"llm.model":             func() { cfg.LLMModel = c.LLMModel },
		"llm.key":               func() { cfg.LLMAPIKey = c.LLMAPIKey },
		"llm.systemPrompt":      func() { cfg.SystemPrompt = c.SystemPrompt },
		"optimizer.timeout":     func() { cfg.OptimizerTimeout = c.OptimizerTimeout },
		"optimizer.concurrency": func() { cfg.OptimizerConcurrency = c.OptimizerConcurrency },
		"optimizer.rate":        func() { cfg.OptimizerRate = c.OptimizerRate },
		"sections.concurrency":  func() { cfg.SectionConcurrency = c.SectionConcurrency },
		"resolve.maxPasses":     func() { cfg.MaxResolvePasses = c.MaxResolvePasses },
		"cache.dir":             func() { cfg.CacheDir = c.CacheDir },
		"cache.maxAge":          func() { cfg.CacheMaxAge = c.CacheMaxAge },
		"cache.clear":           func() { cfg.CacheClear = c.CacheClear },
		"cache.strictPerms":     func() { cfg.CacheStrictPerms = c.CacheStrictPerms },
		"cache.only":            func() { cfg.LLMCacheOnly = c.LLMCacheOnly },
		"dry-run":               func() { cfg.DryRun = c.DryRun },
		"verbose":               func() { cfg.Verbose = c.Verbose },
	}
	for name, apply := range set {
		if changed(name) {
			apply()
		}
	}
}

func run(ctx context.Context, cfg app.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	return a.Run(ctx)
}
