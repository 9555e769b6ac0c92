package planning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/roboplan/roboplan/pkg/models"
)

// Asker is the one conversation operation the planner needs. *chat.Chat
// satisfies it.
type Asker interface {
	Ask(ctx context.Context, query, taskTag string) (*models.AskResult, error)
}

// RunStore persists completed pipeline runs. The planner writes a run
// exactly once, after the last stage, whatever the per-stage outcomes were.
type RunStore interface {
	WriteRun(run *models.PipelineRun) (string, error)
}

// Planner drives templated planning queries and the four-stage pipeline
// against a conversation.
type Planner struct {
	session *Session
	tmpl    *Templates
	chat    Asker
	runs    RunStore
}

// NewPlanner wires a planner to its conversation, template engine, and run
// store. runs may be nil when persistence is not wanted.
func NewPlanner(chat Asker, tmpl *Templates, runs RunStore) *Planner {
	return &Planner{
		session: NewSession(),
		tmpl:    tmpl,
		chat:    chat,
		runs:    runs,
	}
}

// Session exposes the planning state tracker.
func (p *Planner) Session() *Session { return p.session }

// Query runs one templated planning query. Planning queries always use the
// general task tag.
func (p *Planner) Query(ctx context.Context, qt models.QueryType, vars Vars) (*models.StepResult, error) {
	step, err := p.stage(ctx, qt, vars)
	if err != nil {
		return nil, fmt.Errorf("planning query %s: %w", qt, err)
	}
	return &step, nil
}

// stage renders the prompt once, asks, and records the outcome either way.
// The error is returned alongside the step so callers keep the typed chain
// while the pipeline keeps only the recorded message.
func (p *Planner) stage(ctx context.Context, qt models.QueryType, vars Vars) (models.StepResult, error) {
	prompt := p.tmpl.Prompt(qt, p.session, vars)

	log.Info().Str("query_type", string(qt)).Str("prompt", prompt).Msg("planning query")

	res, err := p.chat.Ask(ctx, prompt, models.DefaultTaskTag)
	if err != nil {
		log.Warn().Err(err).Str("query_type", string(qt)).Msg("planning query failed")
		return models.StepResult{
			QueryType: qt,
			Prompt:    prompt,
			Error:     err.Error(),
		}, err
	}
	return models.StepResult{
		QueryType: qt,
		Prompt:    prompt,
		Answer:    res.Answer,
		Thinking:  res.Thinking,
		Success:   true,
	}, nil
}

// Custom runs a free-form planning query, bypassing the template table.
func (p *Planner) Custom(ctx context.Context, prompt string) (*models.StepResult, error) {
	res, err := p.chat.Ask(ctx, prompt, models.DefaultTaskTag)
	if err != nil {
		return nil, fmt.Errorf("custom query: %w", err)
	}
	return &models.StepResult{
		QueryType: "custom",
		Prompt:    prompt,
		Answer:    res.Answer,
		Thinking:  res.Thinking,
		Success:   true,
	}, nil
}

// RunPipeline executes the fixed planning pipeline for a goal:
//
//  1. generative_affordance — what can be done now
//  2. planning              — the first step toward the goal
//  3. affordance_positive   — is that step feasible (task extracted from
//     stage 2's answer, "the first step" when extraction fails)
//  4. planning_remaining    — the next five steps
//
// The goal is installed on the session first, so stage prompts see it. A
// failed stage is recorded with its error and the pipeline continues; the
// run is persisted regardless of stage outcomes. The returned error covers
// persistence only.
func (p *Planner) RunPipeline(ctx context.Context, goal string) (*models.PipelineRun, error) {
	p.session.SetGoal(goal)

	run := &models.PipelineRun{
		ID:        uuid.NewString(),
		Goal:      goal,
		Timestamp: time.Now().UTC(),
	}

	// Stage 1: available actions.
	step1, _ := p.stage(ctx, models.QueryGenerativeAffordance, Vars{})
	run.Steps = append(run.Steps, step1)

	// Stage 2: first step toward the goal.
	step2, _ := p.stage(ctx, models.QueryPlanning, Vars{Goal: goal})
	run.Steps = append(run.Steps, step2)

	firstTask := ""
	if step2.Success {
		firstTask = ExtractTask(step2.Answer)
		if firstTask != "" {
			p.session.SetCurrentTask(firstTask)
		}
	}

	// Stage 3: feasibility of the first step.
	feasTask := firstTask
	if feasTask == "" {
		feasTask = "the first step"
	}
	step3, _ := p.stage(ctx, models.QueryAffordancePositive, Vars{Task: feasTask})
	run.Steps = append(run.Steps, step3)

	// Stage 4: remaining steps.
	step4, _ := p.stage(ctx, models.QueryPlanningRemaining, Vars{Goal: goal, NumSteps: DefaultNumSteps})
	run.Steps = append(run.Steps, step4)

	if p.runs != nil {
		dir, err := p.runs.WriteRun(run)
		if err != nil {
			return run, fmt.Errorf("persist pipeline run: %w", err)
		}
		log.Info().Str("run_id", run.ID).Str("dir", dir).Msg("pipeline run saved")
	}
	return run, nil
}
