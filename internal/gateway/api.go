// ABOUTME: HTTP API handlers for conversation turns, job control, and SSE job streaming.
// ABOUTME: Thin JSON layer over the session manager and job tracker.

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carenav/navigator/internal/jobs"
	"github.com/carenav/navigator/internal/store"
)

// ConverseRequest is the JSON request body for POST /api/converse.
type ConverseRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// ConverseResponse is the JSON response for POST /api/converse.
type ConverseResponse struct {
	Reply           string `json:"reply"`
	CrisisTriggered bool   `json:"crisis_triggered,omitempty"`
	JobReference    string `json:"job_reference,omitempty"`
}

// StartJobRequest is the JSON request body for POST /api/jobs/start.
type StartJobRequest struct {
	UserID   string `json:"user_id"`
	Criteria string `json:"criteria"`
}

// CancelJobRequest is the JSON request body for POST /api/jobs/cancel.
type CancelJobRequest struct {
	UserID string `json:"user_id"`
	JobID  string `json:"job_id"`
}

// CancelJobResponse is the JSON response for POST /api/jobs/cancel.
type CancelJobResponse struct {
	Accepted bool   `json:"accepted"`
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
}

// JobResponse is the JSON shape of a search job.
type JobResponse struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Criteria    string           `json:"criteria"`
	Status      string           `json:"status"`
	Results     []store.Facility `json:"results,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
}

// TurnResponse is the JSON shape of one history turn.
type TurnResponse struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Verdicts  []store.Verdict `json:"verdicts,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// HistoryResponse is the JSON response for GET /api/sessions/{user_id}/history.
type HistoryResponse struct {
	UserID string         `json:"user_id"`
	Turns  []TurnResponse `json:"turns"`
}

// handleConverse handles POST /api/converse.
// A 400 is returned only for a malformed request; every pipeline outcome,
// including guardrail short-circuits and degraded mode, is a 200 with a reply.
func (g *Gateway) handleConverse(w http.ResponseWriter, r *http.Request) {
	var req ConverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Message == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id and message are required")
		return
	}

	res, err := g.sessions.HandleMessage(r.Context(), req.UserID, req.Message)
	if err != nil {
		g.logger.Error("conversation turn failed", "user_id", req.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, ConverseResponse{
		Reply:           res.Reply,
		CrisisTriggered: res.CrisisTriggered,
		JobReference:    res.JobReference,
	})
}

// handleStartJob handles POST /api/jobs/start. Starting a job while one is
// active supersedes the old one: it is cancelled before the new job is queued.
func (g *Gateway) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Criteria == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id and criteria are required")
		return
	}

	job, err := g.tracker.Start(r.Context(), req.UserID, req.Criteria)
	if err != nil {
		if errors.Is(err, jobs.ErrTrackerClosed) {
			g.sendJSONError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		g.logger.Error("starting job failed", "user_id", req.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusAccepted, jobToResponse(job))
}

// handleJobStatus handles GET /api/jobs/status?user_id=X&job_id=Y.
// Omitting job_id returns the user's most recent job. A user with no jobs
// gets a not_started placeholder rather than an error.
func (g *Gateway) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	job, err := g.tracker.Status(r.Context(), userID, r.URL.Query().Get("job_id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		g.sendJSON(w, http.StatusOK, JobResponse{
			UserID: userID,
			Status: string(store.JobNotStarted),
		})
		return
	}
	if err != nil {
		g.logger.Error("job status failed", "user_id", userID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, jobToResponse(job))
}

// handleCancelJob handles POST /api/jobs/cancel. Cancelling a job that is
// already terminal is an accepted no-op, so retried cancels are safe.
func (g *Gateway) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	var req CancelJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.JobID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id and job_id are required")
		return
	}

	accepted, err := g.tracker.Cancel(r.Context(), req.UserID, req.JobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		g.logger.Error("cancelling job failed", "user_id", req.UserID, "job_id", req.JobID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	job, err := g.tracker.Status(r.Context(), req.UserID, req.JobID)
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusAccepted, CancelJobResponse{
		Accepted: accepted,
		JobID:    job.ID,
		Status:   string(job.Status),
	})
}

// handleJobStream handles GET /api/jobs/stream?user_id=X&job_id=Y.
// The current status is sent first so a late subscriber never misses the
// terminal state, then live transitions stream until the job finishes.
func (g *Gateway) handleJobStream(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	job, err := g.tracker.Status(r.Context(), userID, r.URL.Query().Get("job_id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		g.logger.Error("job stream lookup failed", "user_id", userID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	updates, subID := g.tracker.Subscribe(r.Context(), job.ID)
	defer g.tracker.Unsubscribe(job.ID, subID)

	// Re-read the status now that the subscription exists. A job that went
	// terminal between the first lookup and Subscribe has already had its
	// stream closed, so the stale snapshot would wait on updates that never
	// come; the re-read sees the terminal state and ends the stream instead.
	job, err = g.tracker.Status(r.Context(), userID, job.ID)
	if err != nil {
		g.logger.Error("job stream snapshot failed", "user_id", userID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "status", jobToResponse(job))
	flusher.Flush()
	if job.Status.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case update, open := <-updates:
			if !open {
				return
			}
			g.writeSSEEvent(w, "status", update)
			flusher.Flush()
			if update.Status.Terminal() {
				return
			}
		}
	}
}

// handleHistory handles GET /api/sessions/{user_id}/history?limit=N.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	turns, err := g.sessions.History(r.Context(), userID, limit)
	if err != nil {
		g.logger.Error("loading history failed", "user_id", userID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := HistoryResponse{UserID: userID, Turns: make([]TurnResponse, 0, len(turns))}
	for _, t := range turns {
		resp.Turns = append(resp.Turns, TurnResponse{
			ID:        t.ID,
			Role:      string(t.Role),
			Content:   t.Content,
			Verdicts:  t.Verdicts,
			Timestamp: t.Timestamp.Format(time.RFC3339),
		})
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleHealthz handles GET /healthz.
func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func jobToResponse(job *store.SearchJob) JobResponse {
	return JobResponse{
		ID:          job.ID,
		UserID:      job.UserID,
		Criteria:    job.Criteria,
		Status:      string(job.Status),
		Results:     job.Results,
		ErrorDetail: job.ErrorDetail,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	}
}

// sendJSON writes a JSON response with the given status code.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Error("encoding response failed", "error", err)
	}
}

// sendJSONError writes a JSON error response with the given status code.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeSSEEvent writes a single Server-Sent Event frame.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("marshaling SSE data failed", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
