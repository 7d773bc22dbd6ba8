package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the single-file configuration schema. Sections mirror the
// flag and environment names.
type FileConfig struct {
	Input      string `yaml:"input" json:"input"`
	Styles     string `yaml:"styles" json:"styles"`
	Output     string `yaml:"output" json:"output"`
	Artifacts  string `yaml:"artifacts" json:"artifacts"`
	SummaryPDF string `yaml:"summaryPDF" json:"summaryPDF"`

	LLM struct {
		BaseURL      string `yaml:"base" json:"base"`
		Model        string `yaml:"model" json:"model"`
		APIKey       string `yaml:"key" json:"key"`
		SystemPrompt string `yaml:"systemPrompt" json:"systemPrompt"`
	} `yaml:"llm" json:"llm"`

	Optimizer struct {
		Timeout     time.Duration `yaml:"timeout" json:"timeout"`
		Concurrency int           `yaml:"concurrency" json:"concurrency"`
		Rate        float64       `yaml:"rate" json:"rate"`
	} `yaml:"optimizer" json:"optimizer"`

	Sections struct {
		Concurrency int `yaml:"concurrency" json:"concurrency"`
	} `yaml:"sections" json:"sections"`

	Resolve struct {
		MaxPasses int `yaml:"maxPasses" json:"maxPasses"`
	} `yaml:"resolve" json:"resolve"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
		Only        bool          `yaml:"only" json:"only"`
	} `yaml:"cache" json:"cache"`

	DryRun  bool `yaml:"dryRun" json:"dryRun"`
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig. Unknown extensions are
// tried as YAML first, then JSON.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig fills fields of cfg that are unset or still at their flag
// default from fc. Explicit flags keep precedence.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setStr := func(dst *string, def, v string) {
		if (*dst == "" || *dst == def) && v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, def, v int) {
		if (*dst == 0 || *dst == def) && v > 0 {
			*dst = v
		}
	}
	setDur := func(dst *time.Duration, def, v time.Duration) {
		if (*dst == 0 || *dst == def) && v > 0 {
			*dst = v
		}
	}

	setStr(&cfg.InputPath, "", fc.Input)
	setStr(&cfg.StylesPath, "", fc.Styles)
	setStr(&cfg.OutputPath, DefaultOutputPath, fc.Output)
	setStr(&cfg.ArtifactsDir, "", fc.Artifacts)
	setStr(&cfg.SummaryPDFPath, "", fc.SummaryPDF)

	setStr(&cfg.LLMBaseURL, "", fc.LLM.BaseURL)
	setStr(&cfg.LLMModel, "", fc.LLM.Model)
	setStr(&cfg.LLMAPIKey, "", fc.LLM.APIKey)
	setStr(&cfg.SystemPrompt, "", fc.LLM.SystemPrompt)

	setDur(&cfg.OptimizerTimeout, DefaultOptimizerTimeout, fc.Optimizer.Timeout)
	setInt(&cfg.OptimizerConcurrency, DefaultOptimizerConcurrency, fc.Optimizer.Concurrency)
	if cfg.OptimizerRate == 0 && fc.Optimizer.Rate > 0 {
		cfg.OptimizerRate = fc.Optimizer.Rate
	}
	setInt(&cfg.SectionConcurrency, DefaultSectionConcurrency, fc.Sections.Concurrency)
	setInt(&cfg.MaxResolvePasses, DefaultMaxResolvePasses, fc.Resolve.MaxPasses)

	setStr(&cfg.CacheDir, DefaultCacheDir, fc.Cache.Dir)
	setDur(&cfg.CacheMaxAge, 0, fc.Cache.MaxAge)
	cfg.CacheClear = cfg.CacheClear || fc.Cache.Clear
	cfg.CacheStrictPerms = cfg.CacheStrictPerms || fc.Cache.StrictPerms
	cfg.LLMCacheOnly = cfg.LLMCacheOnly || fc.Cache.Only

	cfg.DryRun = cfg.DryRun || fc.DryRun
	cfg.Verbose = cfg.Verbose || fc.Verbose
}

// ValidateConfig rejects configurations that cannot run. LLM settings may be
// omitted in dry-run mode.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.InputPath) == "" {
		return errors.New("config: input path is required")
	}
	if strings.TrimSpace(cfg.OutputPath) == "" {
		return errors.New("config: output path is required")
	}
	if !cfg.DryRun && strings.TrimSpace(cfg.LLMModel) == "" {
		return errors.New("config: llm.model is required (or set LLM_MODEL, or use --dry-run)")
	}
	if cfg.OptimizerTimeout < 0 || cfg.OptimizerConcurrency < 0 || cfg.SectionConcurrency < 0 || cfg.MaxResolvePasses < 0 || cfg.OptimizerRate < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	return nil
}
