// Package sessions manages the set of live conversation/planning sessions.
// Each session owns one chat orchestrator and one planner; access to a
// session is serialized through a per-session lock so interleaved requests
// never interleave a session's turn pairs.
package sessions

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/roboplan/roboplan/internal/chat"
	"github.com/roboplan/roboplan/internal/infer"
	"github.com/roboplan/roboplan/internal/planning"
	"github.com/roboplan/roboplan/pkg/models"
)

// ErrNotFound is returned when a requested session does not exist.
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return "session not found: " + e.Key
}

// Session is one live conversation with its planning state.
type Session struct {
	ID        string
	Chat      *chat.Chat
	Planner   *planning.Planner
	CreatedAt time.Time
	UpdatedAt time.Time

	mu sync.Mutex
}

// Info summarizes the session for API responses. It takes the session
// lock, so it must not be called from inside a With closure.
func (s *Session) Info() models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SessionInfo{
		ID:           s.ID,
		CurrentImage: s.Chat.Memory().CurrentImage(),
		TurnCount:    s.Chat.Memory().Len(),
		Goal:         s.Planner.Session().Goal(),
		UseContext:   s.Chat.UseContext(),
		Thinking:     s.Chat.Thinking(),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// Service creates and tracks sessions. The inference engine, template
// engine, and run store are shared across sessions; conversation and
// planning state are per-session.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	engine       infer.Engine
	tmpl         *planning.Templates
	runs         planning.RunStore
	maxTurns     int
	contextPairs int
}

// NewService wires a session service to its shared dependencies.
func NewService(engine infer.Engine, tmpl *planning.Templates, runs planning.RunStore, maxTurns, contextPairs int) *Service {
	return &Service{
		sessions:     make(map[string]*Session),
		engine:       engine,
		tmpl:         tmpl,
		runs:         runs,
		maxTurns:     maxTurns,
		contextPairs: contextPairs,
	}
}

// Create starts a new session and returns it.
func (s *Service) Create() *Session {
	now := time.Now().UTC()
	c := chat.New(s.engine, s.maxTurns)
	c.SetContextPairs(s.contextPairs)
	sess := &Session{
		ID:        uuid.NewString(),
		Chat:      c,
		Planner:   planning.NewPlanner(c, s.tmpl, s.runs),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	log.Info().Str("session_id", sess.ID).Msg("session created")
	return sess
}

// With runs fn while holding the session's exclusive lock, then bumps its
// UpdatedAt. Handlers use this for every session-scoped operation.
func (s *Service) With(id string, fn func(*Session) error) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return &ErrNotFound{Key: id}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	err := fn(sess)
	sess.UpdatedAt = time.Now().UTC()
	return err
}

// Info returns the summary of one session.
func (s *Service) Info(id string) (models.SessionInfo, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return models.SessionInfo{}, &ErrNotFound{Key: id}
	}
	return sess.Info(), nil
}

// List returns summaries of all live sessions.
func (s *Service) List() []models.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	return out
}

// Delete removes a session.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return &ErrNotFound{Key: id}
	}
	delete(s.sessions, id)
	log.Info().Str("session_id", id).Msg("session deleted")
	return nil
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
