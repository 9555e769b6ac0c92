// Package handlers implements the HTTP handlers for the roboplan server.
// All conversation and planning state lives in the sessions service; every
// session-scoped handler funnels through Service.With so requests against
// one session serialize.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/roboplan/roboplan/internal/chat"
	"github.com/roboplan/roboplan/internal/infer"
	"github.com/roboplan/roboplan/internal/planning"
	"github.com/roboplan/roboplan/internal/results"
	"github.com/roboplan/roboplan/internal/sessions"
	"github.com/roboplan/roboplan/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Sessions *sessions.Service
	Engine   infer.Engine
	Results  *results.Writer
}

// New creates a Handlers instance.
func New(svc *sessions.Service, engine infer.Engine, res *results.Writer) *Handlers {
	return &Handlers{Sessions: svc, Engine: engine, Results: res}
}

// ── Sessions ─────────────────────────────────────────────────

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.Sessions.Create()
	respondJSON(w, http.StatusCreated, sess.Info())
}

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	infos := h.Sessions.List()
	if infos == nil {
		infos = []models.SessionInfo{}
	}
	respondJSON(w, http.StatusOK, infos)
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.Sessions.Info(sessionID(r))
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Delete(sessionID(r)); err != nil {
		respondSessionErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Conversation ─────────────────────────────────────────────

type setImageRequest struct {
	Image string `json:"image"`
}

func (h *Handlers) SetImage(w http.ResponseWriter, r *http.Request) {
	var req setImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Image) == "" {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		s.Chat.SetImage(req.Image)
		return nil
	})
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"image": req.Image})
}

type askRequest struct {
	Query string `json:"query"`
	Task  string `json:"task,omitempty"`
}

func (h *Handlers) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var result *models.AskResult
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		var askErr error
		result, askErr = s.Chat.Ask(r.Context(), req.Query, req.Task)
		return askErr
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNoImage), errors.Is(err, chat.ErrEmptyQuery), errors.Is(err, chat.ErrInvalidTask):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondOpErr(w, err)
		}
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	var turns []models.Turn
	var image string
	summary := []string{}
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		turns = s.Chat.Memory().Turns()
		image = s.Chat.Memory().CurrentImage()
		for line := range s.Chat.Memory().Summary() {
			summary = append(summary, line)
		}
		return nil
	})
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	if turns == nil {
		turns = []models.Turn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"turns":         turns,
		"summary":       summary,
		"current_image": image,
	})
}

func (h *Handlers) ClearConversation(w http.ResponseWriter, r *http.Request) {
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		s.Chat.Clear()
		return nil
	})
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settingsRequest struct {
	UseContext *bool `json:"use_context,omitempty"`
	Thinking   *bool `json:"thinking,omitempty"`
}

func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		if req.UseContext != nil {
			s.Chat.SetUseContext(*req.UseContext)
		}
		if req.Thinking != nil {
			s.Chat.SetThinking(*req.Thinking)
		}
		return nil
	})
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	info, err := h.Sessions.Info(sessionID(r))
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// ── Conversation persistence ─────────────────────────────────

type persistRequest struct {
	Path string `json:"path"`
}

func (p persistRequest) valid() bool {
	return strings.TrimSpace(p.Path) != "" && filepath.Ext(p.Path) == ".json"
}

func (h *Handlers) SaveConversation(w http.ResponseWriter, r *http.Request) {
	var req persistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		respondError(w, http.StatusBadRequest, "path ending in .json is required")
		return
	}
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		return s.Chat.Save(req.Path)
	})
	if err != nil {
		respondOpErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"path": req.Path})
}

func (h *Handlers) LoadConversation(w http.ResponseWriter, r *http.Request) {
	var req persistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		respondError(w, http.StatusBadRequest, "path ending in .json is required")
		return
	}
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		return s.Chat.Load(req.Path)
	})
	if err != nil {
		respondOpErr(w, err)
		return
	}
	info, err := h.Sessions.Info(sessionID(r))
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// ── Planning session ─────────────────────────────────────────

type goalRequest struct {
	Goal string `json:"goal"`
}

func (h *Handlers) SetGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Goal) == "" {
		respondError(w, http.StatusBadRequest, "goal is required")
		return
	}
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		s.Planner.Session().SetGoal(req.Goal)
		return nil
	})
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"goal": req.Goal})
}

type taskRequest struct {
	Task string `json:"task"`
}

func (h *Handlers) AddCompletedTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Task) == "" {
		respondError(w, http.StatusBadRequest, "task is required")
		return
	}
	var status planning.Status
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		s.Planner.Session().AddCompletedTask(req.Task)
		status = s.Planner.Session().Status()
		return nil
	})
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *Handlers) SetCurrentTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Task) == "" {
		respondError(w, http.StatusBadRequest, "task is required")
		return
	}
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		s.Planner.Session().SetCurrentTask(req.Task)
		return nil
	})
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"current_task": req.Task})
}

func (h *Handlers) PlanningStatus(w http.ResponseWriter, r *http.Request) {
	var status planning.Status
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		status = s.Planner.Session().Status()
		return nil
	})
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *Handlers) ResetPlanning(w http.ResponseWriter, r *http.Request) {
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		s.Planner.Session().Reset()
		return nil
	})
	if err != nil {
		respondSessionErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Planning queries & pipeline ──────────────────────────────

type queryRequest struct {
	QueryType string `json:"query_type,omitempty"`
	Prompt    string `json:"prompt,omitempty"` // custom query when query_type is absent

	// Explicit template variables; empty fields fall back to session state.
	Goal           string `json:"goal,omitempty"`
	CompletedSteps string `json:"completed_steps,omitempty"`
	LastTask       string `json:"last_task,omitempty"`
	Task           string `json:"task,omitempty"`
	NumSteps       string `json:"num_steps,omitempty"`
}

func (h *Handlers) PlanningQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var step *models.StepResult
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		if req.QueryType == "" {
			if strings.TrimSpace(req.Prompt) == "" {
				return errBadQuery
			}
			var qErr error
			step, qErr = s.Planner.Custom(r.Context(), req.Prompt)
			return qErr
		}

		qt, ok := models.ParseQueryType(req.QueryType)
		if !ok {
			return errBadQuery
		}
		vars := planning.Vars{
			Goal:           req.Goal,
			CompletedSteps: req.CompletedSteps,
			LastTask:       req.LastTask,
			Task:           req.Task,
			NumSteps:       req.NumSteps,
		}
		var qErr error
		step, qErr = s.Planner.Query(r.Context(), qt, vars)
		return qErr
	})
	if err != nil {
		if errors.Is(err, errBadQuery) {
			respondError(w, http.StatusBadRequest, "query_type or prompt is required; see /api/v1/querytypes")
			return
		}
		if errors.Is(err, chat.ErrNoImage) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondOpErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, step)
}

var errBadQuery = errors.New("bad query")

type pipelineRequest struct {
	Goal string `json:"goal"`
}

func (h *Handlers) RunPipeline(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Goal) == "" {
		respondError(w, http.StatusBadRequest, "goal is required")
		return
	}

	var run *models.PipelineRun
	err := h.Sessions.With(sessionID(r), func(s *sessions.Session) error {
		if s.Chat.Memory().CurrentImage() == "" {
			return chat.ErrNoImage
		}
		var pErr error
		run, pErr = s.Planner.RunPipeline(r.Context(), req.Goal)
		return pErr
	})
	if err != nil {
		if errors.Is(err, chat.ErrNoImage) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Persistence failed after the stages ran; surface both.
		if run != nil {
			log.Warn().Err(err).Str("run_id", run.ID).Msg("pipeline completed but persistence failed")
			respondJSON(w, http.StatusOK, map[string]any{"run": run, "warning": err.Error()})
			return
		}
		respondOpErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// ── Backend health ───────────────────────────────────────────

func (h *Handlers) BackendHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.HealthCheck(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"backend": h.Engine.Kind(),
			"status":  "unreachable",
			"error":   err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"backend": h.Engine.Kind(),
		"status":  "healthy",
	})
}

// ── Query type catalog & runs ────────────────────────────────

func (h *Handlers) ListQueryTypes(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Phrasings   []string `json:"phrasings"`
	}
	out := make([]entry, 0, len(models.QueryTypes))
	for _, qt := range models.QueryTypes {
		out = append(out, entry{
			Name:        string(qt),
			Description: models.QueryTypeDescriptions[qt],
			Phrasings:   planning.Phrasings(qt),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Results.ListRuns()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []string{}
	}
	respondJSON(w, http.StatusOK, runs)
}

// ── Helpers ──────────────────────────────────────────────────

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondSessionErr maps a not-found session to 404, anything else to 500.
func respondSessionErr(w http.ResponseWriter, err error) {
	var nf *sessions.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// respondOpErr is respondSessionErr plus a 502 for inference failures:
// errors from the backend are the backend's fault, not the client's.
func respondOpErr(w http.ResponseWriter, err error) {
	var nf *sessions.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, chat.ErrInference) {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
