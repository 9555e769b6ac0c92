// Package planning implements the planning session tracker, the templated
// query generator, and the fixed four-stage planning pipeline.
package planning

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roboplan/roboplan/pkg/models"
)

// Session tracks the mutable planning state: the long-horizon goal, the
// ordered list of completed tasks, the task in progress, and an append-only
// audit history that survives goal changes.
type Session struct {
	mu             sync.RWMutex
	goal           string
	completedTasks []string
	currentTask    string
	taskHistory    []models.TaskRecord
}

// NewSession returns an empty planning session.
func NewSession() *Session {
	return &Session{}
}

// SetGoal sets the long-horizon goal and resets completed tasks and the
// current task. The audit history is kept: it records everything that
// happened in the session, across goals.
func (s *Session) SetGoal(goal string) {
	s.mu.Lock()
	s.goal = goal
	s.completedTasks = nil
	s.currentTask = ""
	s.mu.Unlock()
	log.Info().Str("goal", goal).Msg("planning goal set")
}

// Goal returns the current goal, or "" when none is set.
func (s *Session) Goal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goal
}

// AddCompletedTask marks a task as completed, appending to both the ordered
// completed list and the audit history.
func (s *Session) AddCompletedTask(task string) {
	s.mu.Lock()
	s.completedTasks = append(s.completedTasks, task)
	s.taskHistory = append(s.taskHistory, models.TaskRecord{
		Task:      task,
		Status:    "completed",
		Timestamp: time.Now().UTC(),
	})
	n := len(s.completedTasks)
	s.mu.Unlock()
	log.Info().Int("n", n).Str("task", task).Msg("task completed")
}

// SetCurrentTask sets the task being worked on.
func (s *Session) SetCurrentTask(task string) {
	s.mu.Lock()
	s.currentTask = task
	s.mu.Unlock()
	log.Info().Str("task", task).Msg("current task set")
}

// CurrentTask returns the task in progress, or "" when none is set.
func (s *Session) CurrentTask() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTask
}

// CompletedTasks returns a copy of the completed tasks in completion order.
func (s *Session) CompletedTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.completedTasks))
	copy(out, s.completedTasks)
	return out
}

// TaskHistory returns a copy of the audit history.
func (s *Session) TaskHistory() []models.TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TaskRecord, len(s.taskHistory))
	copy(out, s.taskHistory)
	return out
}

// CompletedStepsString renders the completed tasks as "1-task, 2-task", or
// "none" when nothing has been completed. This is the form the templates
// substitute for {completed_steps}.
func (s *Session) CompletedStepsString() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.completedTasks) == 0 {
		return "none"
	}
	parts := make([]string, len(s.completedTasks))
	for i, task := range s.completedTasks {
		parts[i] = fmt.Sprintf("%d-%s", i+1, task)
	}
	return strings.Join(parts, ", ")
}

// LastTask returns the most recently completed task, or "starting the task"
// when nothing has been completed yet.
func (s *Session) LastTask() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.completedTasks) == 0 {
		return "starting the task"
	}
	return s.completedTasks[len(s.completedTasks)-1]
}

// Reset clears all planning state including the audit history.
func (s *Session) Reset() {
	s.mu.Lock()
	s.goal = ""
	s.completedTasks = nil
	s.currentTask = ""
	s.taskHistory = nil
	s.mu.Unlock()
	log.Info().Msg("planning session reset")
}

// Status is a point-in-time view of the session for API responses.
type Status struct {
	Goal           string              `json:"goal,omitempty"`
	CurrentTask    string              `json:"current_task,omitempty"`
	CompletedTasks []string            `json:"completed_tasks"`
	TaskHistory    []models.TaskRecord `json:"task_history"`
}

// Status snapshots the session state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	completed := make([]string, len(s.completedTasks))
	copy(completed, s.completedTasks)
	history := make([]models.TaskRecord, len(s.taskHistory))
	copy(history, s.taskHistory)
	return Status{
		Goal:           s.goal,
		CurrentTask:    s.currentTask,
		CompletedTasks: completed,
		TaskHistory:    history,
	}
}

// Render formats the status as a human-readable block.
func (st Status) Render() string {
	var b strings.Builder
	goal := st.Goal
	if goal == "" {
		goal = "Not set"
	}
	current := st.CurrentTask
	if current == "" {
		current = "None"
	}
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	fmt.Fprintf(&b, "Current Task: %s\n", current)
	fmt.Fprintf(&b, "Completed Tasks (%d):\n", len(st.CompletedTasks))
	for i, task := range st.CompletedTasks {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, task)
	}
	return b.String()
}
