package app

import "time"

// Defaults applied to zero-valued settings and used by the CLI flags.
const (
	DefaultOutputPath           = "migrated.html"
	DefaultCacheDir             = ".pagemigrate-cache"
	DefaultOptimizerTimeout     = 180 * time.Second
	DefaultOptimizerConcurrency = 8
	DefaultSectionConcurrency   = 4
	DefaultMaxResolvePasses     = 30
)

// Config holds runtime configuration for the application.
type Config struct {
	// Inputs
	InputPath  string
	StylesPath string

	// Outputs
	OutputPath     string
	ArtifactsDir   string
	SummaryPDFPath string

	// LLM optimizer
	LLMBaseURL   string
	LLMModel     string
	LLMAPIKey    string
	SystemPrompt string

	// Scheduling
	OptimizerTimeout     time.Duration
	OptimizerConcurrency int
	// OptimizerRate paces optimizer requests per second; 0 disables pacing.
	OptimizerRate      float64
	SectionConcurrency int
	MaxResolvePasses   int

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	LLMCacheOnly     bool

	// Behavior
	DryRun  bool
	Verbose bool
}

// withDefaults fills zero-valued limits.
func (c Config) withDefaults() Config {
	if c.OutputPath == "" {
		c.OutputPath = DefaultOutputPath
	}
	if c.OptimizerTimeout <= 0 {
		c.OptimizerTimeout = DefaultOptimizerTimeout
	}
	if c.OptimizerConcurrency <= 0 {
		c.OptimizerConcurrency = DefaultOptimizerConcurrency
	}
	if c.SectionConcurrency <= 0 {
		c.SectionConcurrency = DefaultSectionConcurrency
	}
	if c.MaxResolvePasses <= 0 {
		c.MaxResolvePasses = DefaultMaxResolvePasses
	}
	return c
}
