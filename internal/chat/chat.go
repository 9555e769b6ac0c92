// Package chat implements the inference orchestrator: it decides per
// request whether conversation context is folded into the prompt, invokes
// the inference capability, and records the resulting turn pair.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/roboplan/roboplan/internal/infer"
	"github.com/roboplan/roboplan/internal/memory"
	"github.com/roboplan/roboplan/pkg/models"
)

// Input errors. These are reported to the caller and never end a session.
var (
	ErrNoImage     = errors.New("no image set")
	ErrEmptyQuery  = errors.New("empty query")
	ErrInvalidTask = errors.New("invalid task tag")
)

// ErrInference marks failures of the inference backend, as opposed to
// input errors. Transport layers match it with errors.Is.
var ErrInference = errors.New("inference failed")

// DefaultContextPairs is how many recent turn pairs are folded into a
// context-augmented prompt.
const DefaultContextPairs = 3

// Chat owns one conversation memory and the injected inference engine.
// It is not safe for concurrent use; the sessions layer holds one
// exclusive lock per session.
type Chat struct {
	engine       infer.Engine
	mem          *memory.Memory
	useContext   bool
	thinking     bool
	contextPairs int
}

// New creates a chat orchestrator around the given engine. The engine is a
// constructor argument by design: there is no process-wide model singleton.
func New(engine infer.Engine, maxTurns int) *Chat {
	return &Chat{
		engine:       engine,
		mem:          memory.New(maxTurns),
		useContext:   true,
		thinking:     true,
		contextPairs: DefaultContextPairs,
	}
}

// Memory exposes the underlying turn store for read operations
// (history, summaries, snapshots).
func (c *Chat) Memory() *memory.Memory { return c.mem }

// SetContextPairs sets how many recent pairs are folded into augmented
// prompts. Non-positive values reset to the default.
func (c *Chat) SetContextPairs(n int) {
	if n <= 0 {
		n = DefaultContextPairs
	}
	c.contextPairs = n
}

// SetUseContext toggles context folding for subsequent Ask calls only.
func (c *Chat) SetUseContext(on bool) { c.useContext = on }

// UseContext reports whether context folding is enabled.
func (c *Chat) UseContext() bool { return c.useContext }

// SetThinking toggles thinking mode for subsequent Ask calls only.
func (c *Chat) SetThinking(on bool) { c.thinking = on }

// Thinking reports whether thinking mode is enabled.
func (c *Chat) Thinking() bool { return c.thinking }

// SetImage replaces the active image without clearing history.
func (c *Chat) SetImage(ref string) {
	c.mem.SetImage(ref)
	log.Info().Str("image", ref).Msg("active image set")
}

// Clear empties the conversation memory and unsets the image.
func (c *Chat) Clear() {
	c.mem.Clear()
	log.Info().Msg("conversation memory cleared")
}

// Ask runs one inference round-trip.
//
// When context use is enabled and at least one prior pair exists, the
// prompt sent to the engine is the rendered context window, a blank-line
// separator, and the query. The turn recorded in memory is always the raw
// query, never the augmented prompt.
//
// On engine failure the turn store is left untouched, so a retried
// identical query produces a clean pair.
func (c *Chat) Ask(ctx context.Context, query, taskTag string) (*models.AskResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if taskTag == "" {
		taskTag = models.DefaultTaskTag
	}
	if !models.ValidTaskTag(taskTag) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTask, taskTag)
	}

	image := c.mem.CurrentImage()
	if image == "" {
		return nil, ErrNoImage
	}

	effective := query
	contextUsed := false
	if c.useContext && c.mem.PairCount() >= 1 {
		if prefix := c.mem.RenderContext(c.contextPairs); prefix != "" {
			effective = prefix + "\n\n" + query
			contextUsed = true
		}
	}

	res, err := c.engine.Infer(ctx, &models.InferRequest{
		Prompt:         effective,
		Image:          image,
		Task:           taskTag,
		EnableThinking: c.thinking,
	})
	if err != nil {
		log.Warn().Err(err).Str("task", taskTag).Msg("inference failed, history unchanged")
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	c.mem.AppendUser(query, image, taskTag)
	c.mem.AppendAssistant(res.Answer)

	return &models.AskResult{
		Answer:      res.Answer,
		Thinking:    res.Thinking,
		ContextUsed: contextUsed,
		TurnNumber:  c.mem.PairCount(),
	}, nil
}
