// Package infer defines the inference capability contract and its HTTP
// backend drivers.
//
// The conversation and planning core treats inference as an atomic call:
// (prompt, image, task, thinking) → (answer, thinking?). Backends are
// OpenAI-compatible vision endpoints (vLLM, LMDeploy, hosted APIs) and
// Ollama; both speak the chat/completions wire format with image_url
// content parts.
package infer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roboplan/roboplan/pkg/models"
)

// Engine is the inference capability the orchestration core depends on.
// Implementations must be safe for use from a single session at a time;
// the sessions layer serializes access per session.
type Engine interface {
	// Kind identifies the backend driver ("openai", "ollama", ...).
	Kind() string

	// Infer performs one synchronous inference call. It must not retry on
	// its own: callers decide retry policy.
	Infer(ctx context.Context, req *models.InferRequest) (*models.InferResult, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// Config selects and configures a backend driver.
type Config struct {
	Kind     string        // "openai" or "ollama"
	Endpoint string        // base URL, e.g. "http://localhost:8000/v1"
	APIKey   string        // bearer token for openai-compatible backends
	Model    string        // model name sent to the backend
	Timeout  time.Duration // per-request timeout (0 = driver default)
}

// New creates the engine described by cfg.
func New(cfg Config) (Engine, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "openai":
		return newOpenAIEngine(cfg), nil
	case "ollama":
		return newOllamaEngine(cfg), nil
	default:
		return nil, fmt.Errorf("unknown inference backend kind: %q", cfg.Kind)
	}
}

// splitThinking separates a leading <think>...</think> block from the
// answer text. Reasoning-tuned checkpoints emit their chain of thought in
// this form when thinking mode is on.
func splitThinking(content string) (answer, thinking string) {
	trimmed := strings.TrimLeft(content, " \n\t")
	if !strings.HasPrefix(trimmed, "<think>") {
		return strings.TrimSpace(content), ""
	}
	rest := trimmed[len("<think>"):]
	end := strings.Index(rest, "</think>")
	if end < 0 {
		// Unterminated block: treat everything as thinking, no answer.
		return "", strings.TrimSpace(rest)
	}
	thinking = strings.TrimSpace(rest[:end])
	answer = strings.TrimSpace(rest[end+len("</think>"):])
	return answer, thinking
}

// taskInstruction maps a task tag to the system instruction sent alongside
// the user prompt.
func taskInstruction(task string) string {
	switch strings.ToLower(task) {
	case "grounding":
		return "You are a robot vision assistant. Answer with the bounding box of the referenced object as [x1, y1, x2, y2]."
	case "affordance":
		return "You are a robot vision assistant. Answer with the affordance region for the requested action as [x1, y1, x2, y2]."
	case "trajectory":
		return "You are a robot vision assistant. Answer with a trajectory as a list of (x, y) waypoints."
	case "pointing":
		return "You are a robot vision assistant. Answer with point coordinates as (x, y)."
	default:
		return "You are a robot vision assistant. Answer the question about the image concisely."
	}
}
