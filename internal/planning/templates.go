package planning

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/roboplan/roboplan/pkg/models"
)

// Five phrasings per query type. Paraphrase variation keeps repeated
// queries of the same type from collapsing to one fixed string.
var queryTemplates = map[models.QueryType][]string{
	models.QueryPlanning: {
		"The objective is {goal}, what should be the next step to move forward?",
		"In pursuit of achieving {goal}, what's the next action to take?",
		"To reach the goal of {goal}, which task should be prioritized next?",
		"Given the goal of {goal}, what is the most logical next move?",
		"With the aim of {goal}, what should you focus on next?",
	},
	models.QueryPlanningWithContext: {
		"So far, you've completed these steps: {completed_steps}. What's the next move to achieve the goal of {goal}?",
		"With the following steps completed: {completed_steps}. What is the next logical step toward {goal}?",
		"Considering the goal of {goal}, and having done {completed_steps}, what should you do next?",
		"You are working towards {goal}. After completing steps {completed_steps}, what's the next immediate task?",
		"Given your progress so far ({completed_steps}), what's the next step toward achieving {goal}?",
	},
	models.QueryPlanningRemaining: {
		"With {goal} as the goal and the steps {completed_steps} completed, what are the next {num_steps} things to do?",
		"To work toward {goal}, what are the next {num_steps} steps after completing {completed_steps}?",
		"Here's what's been done so far: {completed_steps}. What are the next {num_steps} tasks to take toward the goal of {goal}?",
		"The goal is {goal}. After completing {completed_steps}, what are the next {num_steps} steps you should take?",
		"Given the progress so far: {completed_steps}, what's the next set of {num_steps} steps to move closer to {goal}?",
	},
	models.QueryFuturePrediction: {
		"Based on the current situation, what is expected to happen after {last_task}?",
		"What do you think will happen after {last_task} is completed?",
		"Considering the current sequence of tasks, what's likely to occur after {last_task}?",
		"Given the context, what will most likely happen following {last_task}?",
		"After {last_task}, what's the most probable next event?",
	},
	models.QuerySuccessDetection: {
		"Was {task} completed successfully?",
		"Has {task} been fully carried out?",
		"Has {task} reached completion?",
		"Was {task} finalized?",
		"Can we say that {task} was accomplished?",
	},
	models.QueryAffordancePositive: {
		"Is {task} something that can be accomplished right now?",
		"Can {task} be initiated at this moment?",
		"Is it feasible to begin {task} immediately?",
		"Is now a suitable time to carry out {task}?",
		"Can you proceed with {task} given the current conditions?",
	},
	models.QueryAffordanceNegative: {
		"Is {task} what you're working on at the moment?",
		"Are you currently engaged in {task}?",
		"Is this {task} you're focused on right now?",
		"Is this {task} you're handling at present?",
		"Are you doing {task} at this very moment?",
	},
	models.QueryGenerativeAffordance: {
		"What can you do at this moment?",
		"Which task is possible to start right now?",
		"Given the current situation, what action can be taken?",
		"What's the next available action?",
		"Considering the circumstances, what task can you begin now?",
	},
	models.QueryPastDescription: {
		"What was the last task completed?",
		"What just occurred?",
		"What was the most recent action taken?",
		"What task did you just finish?",
		"What happened immediately before this?",
	},
}

// DefaultPrompt is used when a query names no known type and no custom
// prompt is supplied.
const DefaultPrompt = "Describe what you see."

// DefaultNumSteps is substituted for {num_steps} when unspecified.
const DefaultNumSteps = "5"

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

var knownPlaceholders = map[string]bool{
	"goal":            true,
	"completed_steps": true,
	"last_task":       true,
	"task":            true,
	"num_steps":       true,
}

// ValidateTemplates checks the template table at startup: every query type
// must have at least one phrasing, and every placeholder must be one the
// substitution step knows how to fill. A typo like {goall} would otherwise
// leak into prompts silently.
func ValidateTemplates() error {
	for _, qt := range models.QueryTypes {
		phrasings, ok := queryTemplates[qt]
		if !ok || len(phrasings) == 0 {
			return fmt.Errorf("query type %q has no templates", qt)
		}
		for _, tmpl := range phrasings {
			for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
				if !knownPlaceholders[m[1]] {
					return fmt.Errorf("template for %q references unknown placeholder {%s}", qt, m[1])
				}
			}
		}
	}
	return nil
}

// Vars carries explicit placeholder values for one query. Empty fields fall
// back to session state, then to fixed defaults.
type Vars struct {
	Goal           string
	CompletedSteps string
	LastTask       string
	Task           string
	NumSteps       string
	CustomPrompt   string
}

// Templates renders query prompts by picking one of the phrasings for a
// query type. The random source is injected so tests and replayable runs
// can fix the choice.
type Templates struct {
	rng *rand.Rand
}

// NewTemplates creates a template engine around rng. A nil rng gets a
// time-seeded source.
func NewTemplates(rng *rand.Rand) *Templates {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Templates{rng: rng}
}

// Prompt generates the prompt for a query type, resolving each placeholder
// through the fallback chain: explicit var, then session state, then a
// fixed default. Unknown query types fall back to the custom prompt, or to
// DefaultPrompt when none is given.
func (t *Templates) Prompt(qt models.QueryType, session *Session, vars Vars) string {
	phrasings, ok := queryTemplates[qt]
	if !ok {
		if vars.CustomPrompt != "" {
			return vars.CustomPrompt
		}
		return DefaultPrompt
	}

	tmpl := phrasings[t.rng.Intn(len(phrasings))]

	goal := vars.Goal
	if goal == "" && session != nil {
		goal = session.Goal()
	}
	if goal == "" {
		goal = "complete the task"
	}

	completed := vars.CompletedSteps
	if completed == "" && session != nil {
		completed = session.CompletedStepsString()
	}
	if completed == "" {
		completed = "none"
	}

	lastTask := vars.LastTask
	if lastTask == "" && session != nil {
		lastTask = session.LastTask()
	}
	if lastTask == "" {
		lastTask = "starting the task"
	}

	task := vars.Task
	if task == "" && session != nil {
		task = session.CurrentTask()
	}
	if task == "" {
		task = "the current task"
	}

	numSteps := vars.NumSteps
	if numSteps == "" {
		numSteps = DefaultNumSteps
	}

	r := strings.NewReplacer(
		"{goal}", goal,
		"{completed_steps}", completed,
		"{last_task}", lastTask,
		"{task}", task,
		"{num_steps}", numSteps,
	)
	return r.Replace(tmpl)
}

// Phrasings returns a copy of the template phrasings for a query type.
func Phrasings(qt models.QueryType) []string {
	src := queryTemplates[qt]
	out := make([]string, len(src))
	copy(out, src)
	return out
}
