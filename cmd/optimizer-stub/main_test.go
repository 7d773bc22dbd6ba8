package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(body))
	h.ServeHTTP(rec, req)
	return rec
}

func TestCompletions_EchoesMarkupInFence(t *testing.T) {
	s := &stub{model: "m"}
	rec := post(t, s.routes(), `{"model":"m","messages":[{"role":"system","content":"sys"},{"role":"user","content":"The fragment is a content container.\n\nHTML:\n<div id=\"a\">{{widget-1}}</div>"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("expected one choice, got %d", len(resp.Choices))
	}
	want := "```html\n<div id=\"a\">{{widget-1}}</div>\n```"
	if got := resp.Choices[0].Message.Content; got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}
}

func TestCompletions_InjectedFailures(t *testing.T) {
	s := &stub{model: "m", failEvery: 2}
	h := s.routes()
	body := `{"messages":[{"role":"user","content":"HTML:\n<p>x</p>"}]}`
	if rec := post(t, h, body); rec.Code != http.StatusOK {
		t.Fatalf("first request status %d", rec.Code)
	}
	if rec := post(t, h, body); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("second request status %d, want 503", rec.Code)
	}
	if rec := post(t, h, "{"); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid json status %d", rec.Code)
	}
}

func TestModels_ListsConfiguredModel(t *testing.T) {
	s := &stub{model: "stub-model"}
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if !strings.Contains(rec.Body.String(), `"stub-model"`) {
		t.Fatalf("model missing from %s", rec.Body.String())
	}
}
