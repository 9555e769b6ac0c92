// Package memory implements the bounded conversation turn store and the
// context assembler that folds recent turns into a prompt prefix.
package memory

import (
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/roboplan/roboplan/pkg/models"
)

// DefaultMaxTurns bounds retained history when no explicit limit is given.
// 20 turns = 10 user/assistant pairs.
const DefaultMaxTurns = 20

// Memory is a bounded FIFO of conversation turns tied to one active image.
// Turns are appended only; when the bound is exceeded the oldest turns are
// dropped first, preserving the order of the remainder.
type Memory struct {
	mu           sync.RWMutex
	turns        []models.Turn
	currentImage string
	maxTurns     int
}

// New creates an empty memory retaining up to maxTurns turns.
// Non-positive maxTurns falls back to DefaultMaxTurns.
func New(maxTurns int) *Memory {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Memory{
		turns:    make([]models.Turn, 0, maxTurns),
		maxTurns: maxTurns,
	}
}

// AppendUser appends a user turn. imageRef and taskTag may be empty.
func (m *Memory) AppendUser(text, imageRef, taskTag string) {
	m.append(models.Turn{
		Role:      models.RoleUser,
		Content:   text,
		ImageRef:  imageRef,
		TaskTag:   taskTag,
		Timestamp: time.Now().UTC(),
	})
}

// AppendAssistant appends an assistant turn.
func (m *Memory) AppendAssistant(text string) {
	m.append(models.Turn{
		Role:      models.RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
}

func (m *Memory) append(t models.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.turns) >= m.maxTurns {
		// Drop oldest turns until the bound holds
		m.turns = m.turns[len(m.turns)-m.maxTurns+1:]
	}
	m.turns = append(m.turns, t)
}

// SetImage replaces the active image. History is deliberately NOT cleared:
// context may span images, and callers that want a fresh subject call Clear.
func (m *Memory) SetImage(ref string) {
	m.mu.Lock()
	m.currentImage = ref
	m.mu.Unlock()
}

// CurrentImage returns the active image reference, or "" if unset.
func (m *Memory) CurrentImage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentImage
}

// Clear empties the turn log and unsets the active image.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.turns = m.turns[:0]
	m.currentImage = ""
	m.mu.Unlock()
}

// Len returns the number of retained turns.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// PairCount returns the number of completed user/assistant pairs.
func (m *Memory) PairCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns) / 2
}

// Turns returns a copy of the retained turns, oldest first.
func (m *Memory) Turns() []models.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Restore replaces the memory's contents from a snapshot, enforcing the
// retention bound on the restored turns (most recent kept).
func (m *Memory) Restore(snap *models.ConversationSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := snap.Turns
	if len(turns) > m.maxTurns {
		turns = turns[len(turns)-m.maxTurns:]
	}
	m.turns = make([]models.Turn, len(turns))
	copy(m.turns, turns)
	m.currentImage = snap.CurrentImage
}

// Snapshot captures the current state for persistence.
func (m *Memory) Snapshot() *models.ConversationSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns := make([]models.Turn, len(m.turns))
	copy(turns, m.turns)
	return &models.ConversationSnapshot{
		Turns:        turns,
		CurrentImage: m.currentImage,
		SavedAt:      time.Now().UTC(),
	}
}

// RenderContext renders the most recent maxPairs user/assistant turn pairs
// as a prompt prefix, oldest of the selected window first:
//
//	User: what do you see?
//	Assistant: a red cup on a table.
//
// Task tags are omitted. Returns "" when no turns exist. Pure read.
func (m *Memory) RenderContext(maxPairs int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.turns) == 0 {
		return ""
	}

	window := m.turns
	if maxPairs > 0 && len(window) > maxPairs*2 {
		window = window[len(window)-maxPairs*2:]
	}

	var b strings.Builder
	for _, t := range window {
		switch t.Role {
		case models.RoleUser:
			b.WriteString("User: ")
		case models.RoleAssistant:
			b.WriteString("Assistant: ")
		}
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summary returns a lazy, restartable rendering of all turns, one line per
// turn. Each range over the sequence starts from the beginning.
func (m *Memory) Summary() iter.Seq[string] {
	return func(yield func(string) bool) {
		for i, t := range m.Turns() {
			label := "You"
			if t.Role == models.RoleAssistant {
				label = "Robot"
			}
			line := fmt.Sprintf("[%d] %s: %s", i+1, label, t.Content)
			if t.TaskTag != "" {
				line += fmt.Sprintf(" (task: %s)", t.TaskTag)
			}
			if !yield(line) {
				return
			}
		}
	}
}
