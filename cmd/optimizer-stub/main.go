// Command optimizer-stub serves the two OpenAI-compatible endpoints the
// migration optimizer calls. Chat completions echo the HTML payload of the
// user message inside a code fence, so a run against the stub exercises the
// full transport path and reproduces the input structure.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	model := envOr("MODEL_ID", "test-model")
	addr := envOr("ADDR", ":8081")
	delay, _ := time.ParseDuration(os.Getenv("STUB_DELAY"))
	failEvery, _ := strconv.Atoi(os.Getenv("STUB_FAIL_EVERY"))

	h := &stub{model: model, delay: delay, failEvery: int64(failEvery)}
	log.Info().Str("addr", addr).Str("model", model).Dur("delay", delay).Int("failEvery", failEvery).Msg("optimizer stub listening")
	if err := http.ListenAndServe(addr, h.routes()); err != nil {
		log.Fatal().Err(err).Msg("stub server stopped")
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

type stub struct {
	model string
	delay time.Duration
	// failEvery makes every n-th completion return 503; 0 never fails.
	failEvery int64
	requests  atomic.Int64
}

func (s *stub) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", s.models)
	mux.HandleFunc("/v1/chat/completions", s.completions)
	return mux
}

func (s *stub) models(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   []map[string]any{{"id": s.model, "object": "model"}},
	})
}

func (s *stub) completions(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	n := s.requests.Add(1)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if s.failEvery > 0 && n%s.failEvery == 0 {
		log.Debug().Int64("request", n).Msg("injected failure")
		http.Error(w, "injected failure", http.StatusServiceUnavailable)
		return
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}
	markup := echoPayload(req)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      fmt.Sprintf("chatcmpl-stub-%d", n),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   s.model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": "```html\n" + markup + "\n```"},
		}},
	})
}

// echoPayload returns the markup after the "HTML:" marker of the last user
// message, or the whole message when the marker is absent.
func echoPayload(req chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		m := req.Messages[i]
		if m.Role != "user" {
			continue
		}
		if _, after, ok := strings.Cut(m.Content, "HTML:\n"); ok {
			return after
		}
		return m.Content
	}
	return ""
}
