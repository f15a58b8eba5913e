package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/usecase"
)

// QueueHandler exposes queue status, estimates and statistics over HTTP.
type QueueHandler struct {
	queue     *usecase.QueueService
	estimator *usecase.Estimator
	presence  *usecase.PresenceService
	stats     *usecase.StatsService
}

// NewQueueHandler creates a queue handler.
func NewQueueHandler(
	queue *usecase.QueueService,
	estimator *usecase.Estimator,
	presence *usecase.PresenceService,
	stats *usecase.StatsService,
) *QueueHandler {
	return &QueueHandler{queue: queue, estimator: estimator, presence: presence, stats: stats}
}

// RegisterRoutes registers the queue routes.
func (h *QueueHandler) RegisterRoutes(router *mux.Router, auth *AuthMiddleware) {
	router.HandleFunc("/api/v1/queues/{queueID}", auth.RequireUser(h.Get)).Methods("GET")
	router.HandleFunc("/api/v1/queues/{queueID}/status", auth.RequireUser(h.SetStatus)).Methods("POST")
	router.HandleFunc("/api/v1/queues/{queueID}/capacity", auth.RequireUser(h.Capacity)).Methods("GET")
	router.HandleFunc("/api/v1/queues/{queueID}/clear", auth.RequireUser(h.Clear)).Methods("POST")
	router.HandleFunc("/api/v1/queues/{queueID}/wait", auth.RequireUser(h.Wait)).Methods("GET")
	router.HandleFunc("/api/v1/queues/{queueID}/wait/me", auth.RequireUser(h.MyWait)).Methods("GET")
	router.HandleFunc("/api/v1/queues/{queueID}/stats", auth.RequireUser(h.Stats)).Methods("GET")
	router.HandleFunc("/api/v1/queues/{queueID}/stats/graders/{userID}", auth.RequireUser(h.GraderStats)).Methods("GET")
	router.HandleFunc("/api/v1/queues/{queueID}/sessions", auth.RequireUser(h.Sessions)).Methods("GET")
	router.HandleFunc("/api/v1/courses/{courseID}/login", auth.RequireUser(h.Login)).Methods("POST")
	router.HandleFunc("/api/v1/courses/{courseID}/logout", auth.RequireUser(h.Logout)).Methods("POST")
	router.HandleFunc("/api/v1/courses/{courseID}/graders", auth.RequireUser(h.Graders)).Methods("GET")
}

// Get returns the queue.
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	q, err := h.queue.Queue(r.Context(), mux.Vars(r)["queueID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// SetStatus applies an administrative queue status change.
func (h *QueueHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.QueueStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.NewValidationError("invalid request body"))
		return
	}
	q, err := h.queue.SetQueueStatus(r.Context(), mux.Vars(r)["queueID"], UserID(r), body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// Capacity reports whether the queue is at high capacity.
func (h *QueueHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	info, err := h.queue.HighCapacity(r.Context(), mux.Vars(r)["queueID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Clear cancels every unresolved ticket on the queue.
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.queue.ClearTickets(r.Context(), mux.Vars(r)["queueID"], UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// Wait estimates the wait for a ticket submitted now.
func (h *QueueHandler) Wait(w http.ResponseWriter, r *http.Request) {
	queueID := mux.Vars(r)["queueID"]
	wait, err := h.estimator.QueueWaitTime(r.Context(), queueID)
	if err != nil {
		writeError(w, err)
		return
	}
	next, err := h.estimator.WaitTimeForNextTutor(r.Context(), queueID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue_wait_seconds": int(wait.Seconds()),
		"next_tutor_seconds": int(next.Seconds()),
	})
}

// MyWait estimates the wait for the caller's pending ticket.
func (h *QueueHandler) MyWait(w http.ResponseWriter, r *http.Request) {
	wait, ok, err := h.estimator.WaitTimeFor(r.Context(), mux.Vars(r)["queueID"], UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"estimate_available": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"estimate_available": true,
		"wait_seconds":       int(wait.Seconds()),
	})
}

// Stats returns the queue's event counts per kind.
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.stats.EventCounts(r.Context(), mux.Vars(r)["queueID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// GraderStats returns one grader's total help time on the queue.
func (h *QueueHandler) GraderStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	helpTime, err := h.stats.GraderHelpTime(r.Context(), vars["queueID"], vars["userID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"grader":            vars["userID"],
		"help_time_seconds": int(helpTime.Seconds()),
	})
}

// Sessions returns grader duty sessions since an optional RFC3339 time.
func (h *QueueHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, domain.NewValidationError("since must be RFC3339"))
			return
		}
		since = parsed
	}
	sessions, err := h.stats.DutySessions(r.Context(), mux.Vars(r)["queueID"], since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Login records the caller going on duty for the course.
func (h *QueueHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := h.presence.Login(r.Context(), mux.Vars(r)["courseID"], UserID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logout records the caller going off duty for the course.
func (h *QueueHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.presence.Logout(r.Context(), mux.Vars(r)["courseID"], UserID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Graders lists the course's graders currently on duty.
func (h *QueueHandler) Graders(w http.ResponseWriter, r *http.Request) {
	graders, err := h.presence.ActiveGraders(r.Context(), mux.Vars(r)["courseID"])
	if err != nil {
		writeError(w, err)
		return
	}
	if graders == nil {
		graders = []string{}
	}
	writeJSON(w, http.StatusOK, graders)
}
