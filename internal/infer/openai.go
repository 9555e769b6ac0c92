package infer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roboplan/roboplan/pkg/models"
)

const defaultTimeout = 120 * time.Second

// openAIEngine talks to any OpenAI-compatible chat/completions endpoint
// with vision support (vLLM, LMDeploy, hosted APIs).
type openAIEngine struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func newOpenAIEngine(cfg Config) *openAIEngine {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:8000/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &openAIEngine{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *openAIEngine) Kind() string { return "openai" }

// Wire types for the chat/completions request. Message content is a list
// of typed parts so an image_url part can ride along with the text.
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	EnableThinking bool          `json:"enable_thinking,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

func buildMessages(req *models.InferRequest) []chatMessage {
	parts := []contentPart{}
	if req.Image != "" {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: req.Image}})
	}
	parts = append(parts, contentPart{Type: "text", Text: req.Prompt})

	return []chatMessage{
		{Role: "system", Content: taskInstruction(req.Task)},
		{Role: "user", Content: parts},
	}
}

func (e *openAIEngine) Infer(ctx context.Context, req *models.InferRequest) (*models.InferResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:          e.model,
		Messages:       buildMessages(req),
		EnableThinking: req.EnableThinking,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	url := e.endpoint + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("openai: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	msg := resp.Choices[0].Message
	answer, thinking := splitThinking(msg.Content)
	if thinking == "" {
		thinking = msg.ReasoningContent
	}

	log.Debug().
		Str("backend", e.Kind()).
		Str("task", req.Task).
		Dur("latency", time.Since(start)).
		Msg("inference call completed")

	return &models.InferResult{Answer: answer, Thinking: thinking}, nil
}

func (e *openAIEngine) HealthCheck(ctx context.Context) error {
	url := e.endpoint + "/models"
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("openai: create request: %w", err)
	}
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("openai: backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai: status %d", resp.StatusCode)
	}
	return nil
}

// Compile-time check that openAIEngine implements Engine.
var _ Engine = (*openAIEngine)(nil)
