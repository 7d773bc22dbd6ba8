package budget

import (
	"math"
	"strings"
)

// Markup tokenizes denser than prose; tags and attribute syntax average close
// to three characters per token.
const (
	proseCharsPerToken  = 4.0
	markupCharsPerToken = 3.0
	minOutputReserve    = 512
	minHeadroom         = 512
	defaultContext      = 8192
)

// EstimateTokens estimates the prose token count of s.
func EstimateTokens(s string) int {
	return ceilDiv(len(s), proseCharsPerToken)
}

// EstimateMarkupTokens estimates the token count of an html payload.
func EstimateMarkupTokens(s string) int {
	return ceilDiv(len(s), markupCharsPerToken)
}

func ceilDiv(chars int, per float64) int {
	if chars <= 0 {
		return 0
	}
	return int(math.Ceil(float64(chars) / per))
}

// ModelContextTokens returns an estimated context window for modelName.
// Unknown models fall back to a conservative default.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return defaultContext
	}
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	for _, s := range suffixSizes {
		if strings.HasSuffix(name, s.suffix) {
			return s.tokens
		}
	}
	if strings.Contains(name, "-mini") {
		return 128_000
	}
	return defaultContext
}

// Check is the sizing verdict for one optimizer request.
type Check struct {
	PromptTokens   int  `json:"promptTokens"`
	ReservedOutput int  `json:"reservedOutput"`
	Headroom       int  `json:"headroom"`
	Context        int  `json:"context"`
	Fits           bool `json:"fits"`
}

// CheckRewrite sizes a rewrite request. The rewritten markup is expected to
// be no larger than the input, so the output reservation mirrors the payload.
func CheckRewrite(modelName, system, user, payload string) Check {
	c := Check{
		PromptTokens:   EstimateTokens(system) + EstimateTokens(user) + EstimateMarkupTokens(payload),
		ReservedOutput: max(minOutputReserve, EstimateMarkupTokens(payload)),
		Context:        ModelContextTokens(modelName),
	}
	c.Headroom = max(minHeadroom, int(math.Ceil(float64(c.Context)*0.05)))
	c.Fits = c.Context-c.ReservedOutput-c.Headroom-c.PromptTokens > 0
	return c
}

var knownModelMax = map[string]int{
	"gpt-4o":             128_000,
	"gpt-4o-mini":        128_000,
	"gpt-4.1":            1_000_000,
	"gpt-4-turbo":        128_000,
	"gpt-3.5-turbo":      16_384,
	"claude-3-5-sonnet":  200_000,
	"claude-3-haiku":     200_000,
	"llama-3":            8_192,
	"llama-3.1":          128_000,
	"openai/gpt-oss-20b": 131_072,
	"gpt-oss-20b":        131_072,
}

var suffixSizes = []struct {
	suffix string
	tokens int
}{
	{"1m", 1_000_000},
	{"512k", 512_000},
	{"200k", 200_000},
	{"128k", 128_000},
	{"32k", 32_768},
}
