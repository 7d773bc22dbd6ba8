package optimize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/pagemigrate/internal/budget"
	"github.com/hyperifyio/pagemigrate/internal/cache"
	"github.com/hyperifyio/pagemigrate/internal/llm"
)

var (
	// ErrNotConfigured means the optimizer lacks a client or model.
	ErrNotConfigured = errors.New("llm optimizer not configured")
	// ErrPromptTooLarge means the subtree does not fit the model context.
	ErrPromptTooLarge = errors.New("subtree exceeds model context budget")
	// ErrCacheMiss is returned in cache-only mode when no entry exists.
	ErrCacheMiss = errors.New("rewrite not cached")
)

const defaultSystemPrompt = "You are a markup optimizer. Rewrite the given HTML fragment into compact, equivalent HTML: " +
	"flatten redundant absolutely-positioned wrappers, fold inline styles into the fewest elements, and keep visual intent. " +
	"Every placeholder of the form {{name-123}} must appear in your output exactly once and unchanged. " +
	"Output only the HTML fragment, with no commentary and no code fences."

// LLMOptimizer rewrites subtrees with a chat model behind llm.Client.
type LLMOptimizer struct {
	Client llm.Client
	Model  string
	Cache  *cache.RewriteCache
	// SystemPrompt overrides the default system message when non-empty.
	SystemPrompt string
	// CacheOnly serves from cache and fails on a miss.
	CacheOnly bool
	// RetryBackoff is the pause before the single retry. Zero means 250ms.
	RetryBackoff time.Duration
	Temperature  float32
}

// Optimize implements Optimizer.
func (o *LLMOptimizer) Optimize(ctx context.Context, markup string, class Classification, hint string) (string, error) {
	if o.Client == nil || strings.TrimSpace(o.Model) == "" {
		return "", ErrNotConfigured
	}
	system := defaultSystemPrompt
	if strings.TrimSpace(o.SystemPrompt) != "" {
		system = o.SystemPrompt
	}
	user := buildUserMessage(class, hint, markup)

	key := cache.KeyFrom(o.Model, system+"\n\n"+user)
	if o.Cache != nil {
		if e, ok, _ := o.Cache.Get(ctx, key); ok && strings.TrimSpace(e.HTML) != "" {
			return e.HTML, nil
		}
	}
	if o.CacheOnly {
		return "", ErrCacheMiss
	}
	if c := budget.CheckRewrite(o.Model, system, buildUserMessage(class, hint, ""), markup); !c.Fits {
		return "", fmt.Errorf("%w: %d prompt tokens, %d context", ErrPromptTooLarge, c.PromptTokens, c.Context)
	}

	req := openai.ChatCompletionRequest{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: o.Temperature,
		N:           1,
	}
	resp, err := o.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Debug().Err(err).Str("hint", hint).Msg("optimizer call failed; retrying once")
		if err := sleep(ctx, o.backoff()); err != nil {
			return "", err
		}
		resp, err = o.Client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", fmt.Errorf("optimizer call (after retry): %w", err)
		}
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyRewrite
	}
	out := StripFences(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyRewrite
	}
	if o.Cache != nil {
		if err := o.Cache.Put(ctx, key, cache.Entry{Model: o.Model, Classification: string(class), HTML: out}); err != nil {
			log.Debug().Err(err).Msg("rewrite cache write failed")
		}
	}
	return out, nil
}

func (o *LLMOptimizer) backoff() time.Duration {
	if o.RetryBackoff > 0 {
		return o.RetryBackoff
	}
	return 250 * time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func buildUserMessage(class Classification, hint, markup string) string {
	var sb strings.Builder
	switch class {
	case DecorativeLayer:
		sb.WriteString("The fragment is a decorative background layer. Collapse its underlay and media wrappers into a single element where possible.")
	default:
		sb.WriteString("The fragment is a content container. Preserve reading order and every placeholder.")
	}
	if strings.TrimSpace(hint) != "" {
		sb.WriteString("\nIdentifier: ")
		sb.WriteString(hint)
	}
	sb.WriteString("\n\nHTML:\n")
	sb.WriteString(markup)
	return sb.String()
}

// StripFences removes a surrounding Markdown code fence, if any, and trims
// the result.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Static returns every subtree unchanged. It stands in for the model in dry
// runs so the pipeline exercises every stage without network calls.
type Static struct{}

func (Static) Optimize(_ context.Context, markup string, _ Classification, _ string) (string, error) {
	return markup, nil
}
