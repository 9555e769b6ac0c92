package infer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roboplan/roboplan/pkg/models"
)

// ollamaEngine talks to a local Ollama daemon through its OpenAI-compatible
// endpoint. Separate from openAIEngine because Ollama needs no auth, has a
// different default origin, and its health check lists local tags.
type ollamaEngine struct {
	endpoint string
	model    string
	client   *http.Client
}

func newOllamaEngine(cfg Config) *ollamaEngine {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ollamaEngine{
		endpoint: endpoint,
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *ollamaEngine) Kind() string { return "ollama" }

func (e *ollamaEngine) Infer(ctx context.Context, req *models.InferRequest) (*models.InferResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:    e.model,
		Messages: buildMessages(req),
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	url := e.endpoint + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ollama: empty choices in response")
	}

	answer, thinking := splitThinking(resp.Choices[0].Message.Content)
	return &models.InferResult{Answer: answer, Thinking: thinking}, nil
}

func (e *ollamaEngine) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	url := e.endpoint + "/api/tags"
	httpReq, err := http.NewRequestWithContext(healthCtx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("ollama: create request: %w", err)
	}
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama: daemon unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	return nil
}

var _ Engine = (*ollamaEngine)(nil)
