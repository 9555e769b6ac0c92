package infer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/roboplan/roboplan/pkg/models"
)

// ─── Driver selection ───────────────────────────────────────

func TestNewSelectsDriver(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{"", "openai"},
		{"openai", "openai"},
		{"OpenAI", "openai"},
		{"ollama", "ollama"},
	}
	for _, tt := range tests {
		e, err := New(Config{Kind: tt.kind})
		if err != nil {
			t.Fatalf("New(%q) error = %v", tt.kind, err)
		}
		if e.Kind() != tt.want {
			t.Errorf("New(%q).Kind() = %q, want %q", tt.kind, e.Kind(), tt.want)
		}
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(Config{Kind: "bogus"}); err == nil {
		t.Error("New(bogus) error = nil, want error")
	}
}

// ─── Thinking extraction ────────────────────────────────────

func TestSplitThinking(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantAnswer   string
		wantThinking string
	}{
		{"no block", "just an answer", "just an answer", ""},
		{"with block", "<think>cup is left of plate</think>pick up the cup", "pick up the cup", "cup is left of plate"},
		{"leading whitespace", "\n <think>hm</think> done", "done", "hm"},
		{"unterminated", "<think>still going", "", "still going"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, thinking := splitThinking(tt.content)
			if answer != tt.wantAnswer {
				t.Errorf("answer = %q, want %q", answer, tt.wantAnswer)
			}
			if thinking != tt.wantThinking {
				t.Errorf("thinking = %q, want %q", thinking, tt.wantThinking)
			}
		})
	}
}

// ─── OpenAI-compatible wire format ──────────────────────────

func TestOpenAIInfer(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("request path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "<think>reasoning</think>a red cup"}},
			},
		})
	}))
	defer srv.Close()

	e := newOpenAIEngine(Config{Endpoint: srv.URL + "/v1", Model: "robobrain2"})

	res, err := e.Infer(context.Background(), &models.InferRequest{
		Prompt:         "what do you see?",
		Image:          "http://example.com/scene.jpg",
		Task:           "general",
		EnableThinking: true,
	})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}

	if res.Answer != "a red cup" {
		t.Errorf("Answer = %q, want %q", res.Answer, "a red cup")
	}
	if res.Thinking != "reasoning" {
		t.Errorf("Thinking = %q, want %q", res.Thinking, "reasoning")
	}
	if gotReq.Model != "robobrain2" {
		t.Errorf("request model = %q, want %q", gotReq.Model, "robobrain2")
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("request has %d messages, want 2 (system + user)", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", gotReq.Messages[0].Role)
	}
}

func TestOpenAIInfer_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := newOpenAIEngine(Config{Endpoint: srv.URL + "/v1"})
	if _, err := e.Infer(context.Background(), &models.InferRequest{Prompt: "hi"}); err == nil {
		t.Error("Infer() error = nil, want error on 503")
	}
}

func TestOpenAIInfer_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	e := newOpenAIEngine(Config{Endpoint: srv.URL + "/v1"})
	if _, err := e.Infer(context.Background(), &models.InferRequest{Prompt: "hi"}); err == nil {
		t.Error("Infer() error = nil, want error on empty choices")
	}
}
