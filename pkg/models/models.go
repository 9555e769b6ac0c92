// Package models defines the shared domain types for the roboplan core:
// conversation turns, planning sessions, pipeline runs, and the inference
// request/response contract.
package models

import (
	"strings"
	"time"
)

// ── Conversation ─────────────────────────────────────────────

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message in a conversation. Turns are append-only
// and never mutated after creation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ImageRef  string    `json:"image_ref,omitempty"` // set on user turns that introduce/change an image
	TaskTag   string    `json:"task_tag,omitempty"`  // set on user turns
	Timestamp time.Time `json:"timestamp"`
}

// ConversationSnapshot is the on-disk shape of a saved conversation.
// Loading a snapshot reconstructs the memory's turn count, ordering, and
// current image exactly.
type ConversationSnapshot struct {
	Turns        []Turn    `json:"turns"`
	CurrentImage string    `json:"current_image,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// AskResult is the outcome of one successful inference round-trip.
type AskResult struct {
	Answer      string `json:"answer"`
	Thinking    string `json:"thinking,omitempty"`
	ContextUsed bool   `json:"context_used"`
	TurnNumber  int    `json:"turn_number"` // completed user/assistant pair count
}

// ── Task tags ────────────────────────────────────────────────

// TaskTags is the closed set of task-type labels the inference backend
// understands.
var TaskTags = []string{"general", "grounding", "affordance", "trajectory", "pointing"}

// DefaultTaskTag is used when the caller does not specify a task.
const DefaultTaskTag = "general"

// ValidTaskTag reports whether tag names a known task type (case-insensitive).
func ValidTaskTag(tag string) bool {
	tag = strings.ToLower(tag)
	for _, t := range TaskTags {
		if t == tag {
			return true
		}
	}
	return false
}

// ── Inference contract ───────────────────────────────────────

// InferRequest is the atomic call made against the inference capability.
// The core never inspects model internals.
type InferRequest struct {
	Prompt         string `json:"prompt"`
	Image          string `json:"image,omitempty"` // path or URL of the active image
	Task           string `json:"task,omitempty"`
	EnableThinking bool   `json:"enable_thinking"`
}

// InferResult carries the model's answer and, when thinking is enabled and
// the backend emits it, the raw reasoning text.
type InferResult struct {
	Answer   string `json:"answer"`
	Thinking string `json:"thinking,omitempty"`
}

// ── Query types ──────────────────────────────────────────────

// QueryType identifies which planning template family to use.
type QueryType string

const (
	QueryPlanning             QueryType = "planning"
	QueryPlanningWithContext  QueryType = "planning_with_context"
	QueryPlanningRemaining    QueryType = "planning_remaining"
	QueryFuturePrediction     QueryType = "future_prediction"
	QuerySuccessDetection     QueryType = "success_detection"
	QueryAffordancePositive   QueryType = "affordance_positive"
	QueryAffordanceNegative   QueryType = "affordance_negative"
	QueryGenerativeAffordance QueryType = "generative_affordance"
	QueryPastDescription      QueryType = "past_description"
)

// QueryTypes lists all known query types in a stable order.
var QueryTypes = []QueryType{
	QueryPlanning,
	QueryPlanningWithContext,
	QueryPlanningRemaining,
	QueryFuturePrediction,
	QuerySuccessDetection,
	QueryAffordancePositive,
	QueryAffordanceNegative,
	QueryGenerativeAffordance,
	QueryPastDescription,
}

// queryAliases maps short names accepted on the command surface to their
// canonical query type.
var queryAliases = map[string]QueryType{
	"planning":              QueryPlanning,
	"plan":                  QueryPlanning,
	"next":                  QueryPlanning,
	"planning_with_context": QueryPlanningWithContext,
	"planning_context":      QueryPlanningWithContext,
	"context":               QueryPlanningWithContext,
	"planning_remaining":    QueryPlanningRemaining,
	"planning_remain":       QueryPlanningRemaining,
	"remain":                QueryPlanningRemaining,
	"remaining":             QueryPlanningRemaining,
	"future_prediction":     QueryFuturePrediction,
	"future":                QueryFuturePrediction,
	"predict":               QueryFuturePrediction,
	"success_detection":     QuerySuccessDetection,
	"success":               QuerySuccessDetection,
	"done":                  QuerySuccessDetection,
	"affordance_positive":   QueryAffordancePositive,
	"affordance_pos":        QueryAffordancePositive,
	"can":                   QueryAffordancePositive,
	"feasible":              QueryAffordancePositive,
	"affordance_negative":   QueryAffordanceNegative,
	"affordance_neg":        QueryAffordanceNegative,
	"doing":                 QueryAffordanceNegative,
	"generative_affordance": QueryGenerativeAffordance,
	"affordance_gen":        QueryGenerativeAffordance,
	"available":             QueryGenerativeAffordance,
	"what_can":              QueryGenerativeAffordance,
	"past_description":      QueryPastDescription,
	"past":                  QueryPastDescription,
	"last":                  QueryPastDescription,
	"previous":              QueryPastDescription,
}

// ParseQueryType resolves a query type name or alias, case-insensitively.
func ParseQueryType(s string) (QueryType, bool) {
	qt, ok := queryAliases[strings.ToLower(strings.TrimSpace(s))]
	return qt, ok
}

// QueryTypeDescriptions gives a one-line description per query type, used
// by the query-type listing endpoint.
var QueryTypeDescriptions = map[QueryType]string{
	QueryPlanning:             "Determine the next step to achieve a long-horizon goal",
	QueryPlanningWithContext:  "Determine next step given completed tasks",
	QueryPlanningRemaining:    "Determine the next N steps to complete a goal",
	QueryFuturePrediction:     "Predict what will happen after a task",
	QuerySuccessDetection:     "Determine if a task was completed successfully",
	QueryAffordancePositive:   "Determine if a task can be done right now",
	QueryAffordanceNegative:   "Determine if a specific task is currently being done",
	QueryGenerativeAffordance: "Determine what actions are possible right now",
	QueryPastDescription:      "Describe what task was just completed",
}

// ── Planning pipeline ────────────────────────────────────────

// TaskRecord is one audit entry in a planning session's task history.
type TaskRecord struct {
	Task      string    `json:"task"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StepResult records one stage of a pipeline run.
type StepResult struct {
	QueryType QueryType `json:"query_type"`
	Prompt    string    `json:"prompt"`
	Answer    string    `json:"answer"`
	Thinking  string    `json:"thinking,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// PipelineRun is the immutable result of one 4-stage planning pipeline
// execution. It is persisted once and never updated in place.
type PipelineRun struct {
	ID        string       `json:"id"`
	Goal      string       `json:"goal"`
	Steps     []StepResult `json:"steps"`
	Timestamp time.Time    `json:"timestamp"`
}

// ── Sessions ─────────────────────────────────────────────────

// SessionInfo is the API-visible summary of a session.
type SessionInfo struct {
	ID           string    `json:"id"`
	CurrentImage string    `json:"current_image,omitempty"`
	TurnCount    int       `json:"turn_count"`
	Goal         string    `json:"goal,omitempty"`
	UseContext   bool      `json:"use_context"`
	Thinking     bool      `json:"thinking"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
