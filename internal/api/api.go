// Package api exposes answering, rating and optimization state over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abhisek/skillissue/internal/challenge"
	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/store"
)

// Challenges is the challenge lifecycle used by the handlers.
type Challenges interface {
	Answer(ctx context.Context, challengeID string, selectedIndex int, responseTimeMs int64) (*challenge.AnswerResult, error)
	Rate(ctx context.Context, challengeID string, rating int) error
}

// Store is the read side used by the handlers.
type Store interface {
	Ping(ctx context.Context) error
	ListJobs(ctx context.Context, status store.JobStatus, limit int) ([]store.OptimizationJob, error)
	ActivePrompt(ctx context.Context, skillID string, level int) (*store.PromptVersion, error)
}

// Server holds the handler dependencies.
type Server struct {
	challenges Challenges
	store      Store
	log        *logger.Logger
}

// New creates a Server.
func New(challenges Challenges, st Store, log *logger.Logger) *Server {
	return &Server{
		challenges: challenges,
		store:      st,
		log:        logger.OrNop(log).With("component", "api"),
	}
}

// Router returns the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/challenges/{id}/answer", s.handleAnswer)
		r.Post("/challenges/{id}/rating", s.handleRating)
		r.Get("/optimization/jobs", s.handleListJobs)
		r.Get("/prompts/{skillID}/{level}", s.handleActivePrompt)
	})
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start).Round(time.Microsecond), "request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type answerRequest struct {
	SelectedIndex  *int  `json:"selected_index"`
	ResponseTimeMs int64 `json:"response_time_ms"`
}

type answerResponse struct {
	ChallengeID      string `json:"challenge_id"`
	Correct          bool   `json:"correct"`
	CorrectIndex     int    `json:"correct_index"`
	Explanation      string `json:"explanation,omitempty"`
	DifficultyTarget int    `json:"difficulty_target"`
	Delta            int    `json:"delta"`
	Phase            string `json:"phase"`
	Reason           string `json:"reason"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.SelectedIndex == nil {
		s.writeError(w, http.StatusBadRequest, errors.New("selected_index required"))
		return
	}
	if req.ResponseTimeMs < 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("response_time_ms must not be negative"))
		return
	}

	res, err := s.challenges.Answer(r.Context(), chi.URLParam(r, "id"), *req.SelectedIndex, req.ResponseTimeMs)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{
		ChallengeID:      res.Challenge.ID,
		Correct:          res.Correct,
		CorrectIndex:     res.Challenge.CorrectIndex,
		Explanation:      res.Challenge.Explanation,
		DifficultyTarget: res.Outcome.DifficultyTarget,
		Delta:            res.Outcome.Delta,
		Phase:            string(res.Outcome.Phase),
		Reason:           res.Outcome.Reason,
	})
}

type ratingRequest struct {
	Rating int `json:"rating"`
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if err := s.challenges.Rate(r.Context(), chi.URLParam(r, "id"), req.Rating); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type jobResponse struct {
	ID                    string     `json:"id"`
	SkillID               string     `json:"skill_id"`
	DifficultyLevel       int        `json:"difficulty_level"`
	Status                string     `json:"status"`
	TriggerReason         string     `json:"trigger_reason"`
	AvgRatingAtTrigger    float64    `json:"avg_rating_at_trigger"`
	QuestionsCount        int        `json:"questions_count"`
	CreatedAt             time.Time  `json:"created_at"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	ResultPromptVersionID *string    `json:"result_prompt_version_id,omitempty"`
	ErrorMessage          *string    `json:"error_message,omitempty"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := store.JobStatus(r.URL.Query().Get("status"))
	switch status {
	case "", store.JobPending, store.JobRunning, store.JobCompleted, store.JobFailed:
	default:
		s.writeError(w, http.StatusBadRequest, errors.New("unknown status "+string(status)))
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	jobs, err := s.store.ListJobs(r.Context(), status, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobResponse{
			ID:                    j.ID,
			SkillID:               j.SkillID,
			DifficultyLevel:       j.DifficultyLevel,
			Status:                string(j.Status),
			TriggerReason:         j.TriggerReason,
			AvgRatingAtTrigger:    j.AvgRatingAtTrigger,
			QuestionsCount:        j.QuestionsCount,
			CreatedAt:             j.CreatedAt,
			StartedAt:             j.StartedAt,
			CompletedAt:           j.CompletedAt,
			ResultPromptVersionID: j.ResultPromptVersionID,
			ErrorMessage:          j.ErrorMessage,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

type promptResponse struct {
	ID                 string     `json:"id"`
	SkillID            string     `json:"skill_id"`
	DifficultyLevel    int        `json:"difficulty_level"`
	Version            int        `json:"version"`
	Content            string     `json:"content"`
	BaselineScore      float64    `json:"baseline_score"`
	CurrentScore       float64    `json:"current_score"`
	ImprovementPercent float64    `json:"improvement_percent"`
	DeployedAt         *time.Time `json:"deployed_at,omitempty"`
}

func (s *Server) handleActivePrompt(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil || level < 1 || level > 10 {
		s.writeError(w, http.StatusBadRequest, errors.New("level must be between 1 and 10"))
		return
	}
	v, err := s.store.ActivePrompt(r.Context(), chi.URLParam(r, "skillID"), level)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{
		ID:                 v.ID,
		SkillID:            v.SkillID,
		DifficultyLevel:    v.DifficultyLevel,
		Version:            v.Version,
		Content:            v.Content,
		BaselineScore:      v.BaselineScore,
		CurrentScore:       v.CurrentScore,
		ImprovementPercent: v.ImprovementPercent,
		DeployedAt:         v.DeployedAt,
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, challenge.ErrInvalidAnswer), errors.Is(err, challenge.ErrInvalidRating):
		return http.StatusBadRequest
	case errors.Is(err, challenge.ErrAlreadyAnswered), errors.Is(err, challenge.ErrChallengeExpired),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "error", err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
