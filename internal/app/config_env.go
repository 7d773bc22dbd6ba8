package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	applyEnv(cfg, false)
}

// ApplyEnvOverrides overwrites cfg fields with environment variables that are
// set. It lets env take precedence over a config file while flags applied
// afterwards stay highest.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	applyEnv(cfg, true)
}

func applyEnv(cfg *Config, force bool) {
	str := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" && (force || *dst == "") {
			*dst = v
		}
	}
	integer := func(dst *int, key string) {
		if force || *dst == 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	duration := func(dst *time.Duration, key string) {
		if force || *dst == 0 {
			if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil && d > 0 {
				*dst = d
			}
		}
	}
	boolean := func(dst *bool, key string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			if force {
				*dst = false
			}
		}
	}

	str(&cfg.LLMBaseURL, "LLM_BASE_URL")
	str(&cfg.LLMModel, "LLM_MODEL")
	str(&cfg.LLMAPIKey, "LLM_API_KEY")
	str(&cfg.SystemPrompt, "OPTIMIZER_SYSTEM_PROMPT")
	str(&cfg.ArtifactsDir, "ARTIFACTS_DIR")
	str(&cfg.CacheDir, "CACHE_DIR")

	duration(&cfg.OptimizerTimeout, "OPTIMIZER_TIMEOUT")
	integer(&cfg.OptimizerConcurrency, "OPTIMIZER_CONCURRENCY")
	integer(&cfg.SectionConcurrency, "SECTION_CONCURRENCY")
	integer(&cfg.MaxResolvePasses, "RESOLVE_MAX_PASSES")
	duration(&cfg.CacheMaxAge, "CACHE_MAX_AGE")
	if force || cfg.OptimizerRate == 0 {
		if f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv("OPTIMIZER_RATE")), 64); err == nil && f >= 0 {
			cfg.OptimizerRate = f
		}
	}

	boolean(&cfg.DryRun, "DRY_RUN")
	boolean(&cfg.Verbose, "VERBOSE")
	boolean(&cfg.CacheClear, "CACHE_CLEAR")
	boolean(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	boolean(&cfg.LLMCacheOnly, "LLM_CACHE_ONLY")
}
