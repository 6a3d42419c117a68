package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/promptwise/promptwise/internal/engine"
	"github.com/promptwise/promptwise/internal/log"
	"github.com/promptwise/promptwise/internal/promptlog"
)

// maxBodyBytes limits request bodies to keep decode costs bounded.
const maxBodyBytes = 1024 * 1024

// Generator is the slice of the generation gateway the API depends on.
type Generator interface {
	Optimize(ctx context.Context, prompt string, mode engine.Mode) (string, error)
	Explain(ctx context.Context, original, optimized string, mode engine.Mode) (string, error)
	Followup(ctx context.Context, questions, priorContext, preferences string) (string, error)
}

// PromptHandler serves the stateless prompt-optimization endpoints. Each
// request performs exactly one generation operation; nothing is read from or
// written to conversation sessions.
type PromptHandler struct {
	gen            Generator
	recorder       promptlog.Recorder
	logger         log.Logger
	persistTimeout time.Duration
}

// NewPromptHandler creates a new prompt handler.
func NewPromptHandler(gen Generator, recorder promptlog.Recorder, logger log.Logger, persistTimeout time.Duration) *PromptHandler {
	return &PromptHandler{
		gen:            gen,
		recorder:       recorder,
		logger:         logger,
		persistTimeout: persistTimeout,
	}
}

// RegisterRoutes registers prompt routes on the given mux.
func (h *PromptHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/optimize", h.optimize)
	mux.HandleFunc("POST /api/explain", h.explain)
	mux.HandleFunc("POST /api/followup", h.followup)
	mux.HandleFunc("POST /api/feedback", h.feedback)
}

// OptimizeRequest is the body of POST /api/optimize.
type OptimizeRequest struct {
	Prompt string `json:"prompt"`
	Mode   string `json:"mode"`
}

// OptimizeResponse carries the optimized text plus the record id of the
// logged run. ID is empty when persistence is disabled or failed; the text
// is valid either way.
type OptimizeResponse struct {
	ID            string `json:"id,omitempty"`
	OptimizedText string `json:"optimizedText"`
}

func (h *PromptHandler) optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "missing_prompt", "prompt is required", h.logger)
		return
	}

	mode := engine.NormalizeMode(req.Mode)
	optimized, err := h.gen.Optimize(r.Context(), req.Prompt, mode)
	if err != nil {
		h.generationError(w, "optimize", err)
		return
	}

	// The response embeds the record id, so this one write happens
	// in-request, time-boxed; a failed write only costs the id.
	var recordID string
	if h.recorder.Enabled() {
		ctx, cancel := context.WithTimeout(r.Context(), h.persistTimeout)
		defer cancel()
		recordID, err = h.recorder.LogOptimization(ctx, req.Prompt, optimized, string(mode))
		if err != nil {
			h.logger.Warn("optimization persistence failed", "error", err)
			recordID = ""
		}
	}

	writeJSON(w, http.StatusOK, OptimizeResponse{ID: recordID, OptimizedText: optimized}, h.logger)
}

// ExplainRequest is the body of POST /api/explain.
type ExplainRequest struct {
	OriginalPrompt string `json:"originalPrompt"`
	OptimizedText  string `json:"optimizedText"`
	Mode           string `json:"mode"`
	RecordID       string `json:"recordId"`
}

// ExplainResponse is the body of a successful explain call.
type ExplainResponse struct {
	ExplanationText string `json:"explanationText"`
}

func (h *PromptHandler) explain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.OriginalPrompt == "" || req.OptimizedText == "" {
		writeError(w, http.StatusBadRequest, "missing_prompts", "originalPrompt and optimizedText are required", h.logger)
		return
	}

	explanation, err := h.gen.Explain(r.Context(), req.OriginalPrompt, req.OptimizedText, engine.NormalizeMode(req.Mode))
	if err != nil {
		h.generationError(w, "explain", err)
		return
	}

	if analysis, ok := engine.ExtractAnalysis(explanation); ok {
		h.logExplanation(r.Context(), req.RecordID, analysis)
	}

	writeJSON(w, http.StatusOK, ExplainResponse{ExplanationText: explanation}, h.logger)
}

// FollowupRequest is the body of POST /api/followup. Answers carries the
// prior exchange the questions refer to; Preferences may be empty.
type FollowupRequest struct {
	RecordID       string `json:"recordId"`
	QuestionsAsked string `json:"questionsAsked"`
	Answers        string `json:"answers"`
	Preferences    string `json:"preferences"`
}

// FollowupResponse is the body of a successful follow-up call.
type FollowupResponse struct {
	FollowupText string `json:"followupText"`
}

func (h *PromptHandler) followup(w http.ResponseWriter, r *http.Request) {
	var req FollowupRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.QuestionsAsked == "" {
		writeError(w, http.StatusBadRequest, "missing_questions", "questionsAsked is required", h.logger)
		return
	}

	answer, err := h.gen.Followup(r.Context(), req.QuestionsAsked, req.Answers, req.Preferences)
	if err != nil {
		h.generationError(w, "followup", err)
		return
	}

	if h.recorder.Enabled() && req.RecordID != "" {
		ctx, cancel := context.WithTimeout(r.Context(), h.persistTimeout)
		defer cancel()
		if err := h.recorder.LogFollowup(ctx, req.RecordID, req.QuestionsAsked, answer, req.Preferences); err != nil {
			h.logger.Warn("followup persistence failed", "record_id", req.RecordID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, FollowupResponse{FollowupText: answer}, h.logger)
}

// FeedbackRequest is the body of POST /api/feedback: a structured analysis
// the caller already has, to be attached to an earlier optimization record.
type FeedbackRequest struct {
	RecordID string           `json:"recordId"`
	Analysis *engine.Analysis `json:"analysis"`
}

// FeedbackResponse reports whether the analysis was recorded or skipped.
type FeedbackResponse struct {
	Status string `json:"status"`
}

func (h *PromptHandler) feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Analysis == nil {
		writeError(w, http.StatusBadRequest, "missing_analysis", "analysis is required", h.logger)
		return
	}

	if !h.recorder.Enabled() || req.RecordID == "" {
		writeJSON(w, http.StatusOK, FeedbackResponse{Status: "skipped"}, h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.persistTimeout)
	defer cancel()
	if err := h.recorder.LogExplanation(ctx, req.RecordID, req.Analysis); err != nil {
		h.logger.Warn("feedback persistence failed", "record_id", req.RecordID, "error", err)
		writeJSON(w, http.StatusOK, FeedbackResponse{Status: "skipped"}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, FeedbackResponse{Status: "recorded"}, h.logger)
}

// decode reads a JSON body into dst, writing the error response itself on
// failure. Returns false when the request was already answered.
func (h *PromptHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return false
	}
	return true
}

// generationError maps gateway failures onto HTTP statuses.
func (h *PromptHandler) generationError(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("generation failed", "op", op, "error", err)
	if errors.Is(err, engine.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "generation engine unavailable, retry later", h.logger)
		return
	}
	writeError(w, http.StatusInternalServerError, "generation_failed", "generation failed", h.logger)
}

// logExplanation records a parsed analysis block, time-boxed, never
// surfacing the outcome to the caller.
func (h *PromptHandler) logExplanation(ctx context.Context, recordID string, analysis *engine.Analysis) {
	if !h.recorder.Enabled() || recordID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	defer cancel()
	if err := h.recorder.LogExplanation(ctx, recordID, analysis); err != nil {
		h.logger.Warn("explanation persistence failed", "record_id", recordID, "error", err)
	}
}
