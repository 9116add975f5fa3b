package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sharpmind/trainer-hub/internal/application/command"
	"github.com/sharpmind/trainer-hub/internal/application/lifecycle"
	"github.com/sharpmind/trainer-hub/internal/application/query"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/scheduler"
	"github.com/sharpmind/trainer-hub/pkg/circuitbreaker"
	"github.com/sharpmind/trainer-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"name":    "Trainer Hub API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":     "/health",
			"sessions":   "/api/v1/sessions",
			"promotions": "/api/v1/promotions/pending",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"healthy": true,
			"version": s.config.Version,
		})
		return
	}
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil && !s.deps.Health.Check(r.Context()).Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NOT READY"))
		return
	}
	_, _ = w.Write([]byte("READY"))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("OK"))
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	// CreateRequest.Validate reports an unknown curriculum with the other problems.
	curriculum, _ := shared.ParseCurriculum(req.Curriculum)
	result, err := s.deps.Sessions.Create(r.Context(), lifecycle.CreateRequest{
		StudentID:      req.StudentID,
		TrainerID:      req.TrainerID,
		Curriculum:     curriculum,
		Level:          req.Level,
		AgeGroup:       shared.AgeGroup(req.AgeGroup),
		SessionType:    shared.SessionType(req.SessionType),
		QuestionCount:  req.QuestionCount,
		Settings:       req.Settings.toDomain(),
		CustomSettings: req.CustomSettings,
	})
	if err != nil {
		s.respondError(w, r, "create_session", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, result)
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	views := s.deps.Sessions.ListActive()
	writeJSONWithMeta(w, r, http.StatusOK, views, &ResponseMeta{Count: len(views)})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Sessions.GetStatus(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, "get_status", err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	current, err := s.deps.Sessions.GetCurrentExercise(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, "get_exercise", err)
		return
	}
	writeJSON(w, r, http.StatusOK, current)
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req SubmitAnswerRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.deps.Sessions.SubmitAnswer(r.Context(), chi.URLParam(r, "sessionID"), req.Answer, req.TimeSpent)
	if err != nil {
		s.respondError(w, r, "submit_answer", err)
		return
	}
	writeJSON(w, r, http.StatusOK, AnswerResponse{AnswerResult: result, Completion: toCompletionDTO(result.Completion)})
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.deps.Sessions.Skip(r.Context(), chi.URLParam(r, "sessionID"), req.Reason)
	if err != nil {
		s.respondError(w, r, "skip", err)
		return
	}
	writeJSON(w, r, http.StatusOK, SkipResponse{SkipResult: result, Completion: toCompletionDTO(result.Completion)})
}

func (s *Server) handleRequestHint(w http.ResponseWriter, r *http.Request) {
	var req HintRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.deps.Sessions.RequestHint(r.Context(), chi.URLParam(r, "sessionID"), req.HintIndex)
	if err != nil {
		s.respondError(w, r, "request_hint", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.deps.Sessions.Pause(r.Context(), chi.URLParam(r, "sessionID"), req.Reason)
	if err != nil {
		s.respondError(w, r, "pause", err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Sessions.Resume(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, "resume", err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.deps.Sessions.Complete(r.Context(), chi.URLParam(r, "sessionID"), req.Reason)
	if err != nil {
		s.respondError(w, r, "complete", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCompletionDTO(result))
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	var req AnnotateRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.deps.Annotator.Handle(r.Context(), command.AnnotateSessionCommand{
		SessionID: chi.URLParam(r, "sessionID"),
		TrainerID: req.TrainerID,
		Notes:     req.Notes,
	})
	if err != nil {
		s.respondError(w, r, "annotate", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"session_id":   result.SessionID,
		"notes":        result.Notes,
		"annotated_at": result.AnnotatedAt,
	})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Analysis.Handle(r.Context(), query.GetSessionAnalysisQuery{
		SessionID:   chi.URLParam(r, "sessionID"),
		RequesterID: r.URL.Query().Get("requester_id"),
	})
	if err != nil {
		s.respondError(w, r, "analysis", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handlePendingDecisions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	dto, err := s.deps.Decisions.Pending(r.Context(), query.ListPendingDecisionsQuery{
		TrainerID: r.URL.Query().Get("trainer_id"),
		Limit:     limit,
	})
	if err != nil {
		s.respondError(w, r, "pending_decisions", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, toDecisionDTOs(dto.Decisions), &ResponseMeta{Count: dto.Count})
}

func (s *Server) handlePromotionHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	dto, err := s.deps.Decisions.History(r.Context(), query.GetPromotionHistoryQuery{
		StudentID: chi.URLParam(r, "studentID"),
		Limit:     limit,
	})
	if err != nil {
		s.respondError(w, r, "promotion_history", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, toDecisionDTOs(dto.Decisions), &ResponseMeta{Count: dto.Count})
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Decisions.Get(r.Context(), chi.URLParam(r, "decisionID"))
	if err != nil {
		s.respondError(w, r, "get_decision", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toDecisionDTO(d))
}

func (s *Server) handleReviewDecision(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.deps.Reviews.Handle(r.Context(), command.ReviewPromotionCommand{
		DecisionID: chi.URLParam(r, "decisionID"),
		ReviewerID: req.ReviewerID,
		Approve:    req.Approve,
		Note:       req.Note,
	})
	if err != nil {
		s.respondError(w, r, "review", err)
		return
	}
	writeJSON(w, r, http.StatusOK, ReviewResponse{Decision: toDecisionDTO(result.Decision), Promoted: result.Promoted})
}

func (s *Server) handleGetCriteria(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Criteria.Handle(chi.URLParam(r, "curriculum"), chi.URLParam(r, "level"))
	if err != nil {
		s.respondError(w, r, "get_criteria", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleReplaceCriteria(w http.ResponseWriter, r *http.Request) {
	var doc json.RawMessage
	if !s.decode(w, r, &doc) {
		return
	}
	result, err := s.deps.CriteriaAdmin.Handle(r.Context(), command.ReplaceCriteriaCommand{
		Document:   doc,
		ReplacedBy: r.RemoteAddr,
	})
	if err != nil {
		s.respondError(w, r, "replace_criteria", err)
		return
	}
	writeJSON(w, r, http.StatusOK, CriteriaReplacedDTO{Levels: result.Levels})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	infos := s.deps.Jobs.ListJobs()
	jobs := make([]JobDTO, 0, len(infos))
	for _, info := range infos {
		jobs = append(jobs, toJobDTO(info))
	}
	writeJSONWithMeta(w, r, http.StatusOK, jobs, &ResponseMeta{Count: len(jobs)})
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "jobName")
	result, err := s.deps.Jobs.RunNow(r.Context(), name)
	if result == nil {
		s.respondError(w, r, "run_job", err)
		return
	}

	dto := JobRunDTO{
		Job:        name,
		Success:    result.Success,
		DurationMs: float64(result.Duration) / float64(time.Millisecond),
	}
	if err != nil {
		dto.Error = err.Error()
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	entries := s.deps.DeadLetters.DeadLetters()
	letters := make([]DeadLetterDTO, 0, len(entries))
	for _, e := range entries {
		letters = append(letters, toDeadLetterDTO(e))
	}
	writeJSONWithMeta(w, r, http.StatusOK, letters, &ResponseMeta{Count: len(letters)})
}

func (s *Server) handleRetryDeadLetters(w http.ResponseWriter, r *http.Request) {
	succeeded, failed := s.deps.DeadLetters.RetryDeadLetters(r.Context())
	logger.FromContext(r.Context()).Info("dead letters retried", logger.Int("succeeded", succeeded), logger.Int("failed", failed))
	writeJSON(w, r, http.StatusOK, DeadLetterRetryDTO{Succeeded: succeeded, Failed: failed})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeJSON(r, dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

// statusFor maps an application error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, "generator_unavailable"
	case errors.Is(err, scheduler.ErrJobNotFound), shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, shared.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case shared.IsInvalidState(err):
		return http.StatusConflict, "invalid_state"
	case shared.IsPolicyViolation(err):
		return http.StatusForbidden, "policy_violation"
	case shared.IsExternalService(err):
		return http.StatusBadGateway, "external_service_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	message := err.Error()

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logger.Operation(op), logger.Err(err))
		if status == http.StatusInternalServerError {
			message = "An unexpected error occurred"
		}
	} else {
		log.Debug("request rejected", logger.Operation(op), logger.StatusCode(status), logger.Err(err))
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeError(w, r, status, code, strings.TrimSpace(message))
}
