package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/usecase"
)

// TicketHandler exposes the ticket lifecycle over HTTP.
type TicketHandler struct {
	queue *usecase.QueueService
}

// NewTicketHandler creates a ticket handler.
func NewTicketHandler(queue *usecase.QueueService) *TicketHandler {
	return &TicketHandler{queue: queue}
}

// RegisterRoutes registers the ticket routes. All routes require an
// authenticated user.
func (h *TicketHandler) RegisterRoutes(router *mux.Router, auth *AuthMiddleware) {
	router.HandleFunc("/api/v1/queues/{queueID}/tickets", auth.RequireUser(h.Submit)).Methods("POST")
	router.HandleFunc("/api/v1/tickets/{id}", auth.RequireUser(h.Get)).Methods("GET")
	router.HandleFunc("/api/v1/tickets/{id}", auth.RequireUser(h.Update)).Methods("PATCH")
	router.HandleFunc("/api/v1/tickets/{id}/accept", auth.RequireUser(h.Accept)).Methods("POST")
	router.HandleFunc("/api/v1/tickets/{id}/defer", auth.RequireUser(h.Defer)).Methods("POST")
	router.HandleFunc("/api/v1/tickets/{id}/resolve", auth.RequireUser(h.Resolve)).Methods("POST")
	router.HandleFunc("/api/v1/tickets/{id}/cancel", auth.RequireUser(h.Cancel)).Methods("POST")
	router.HandleFunc("/api/v1/tickets/{id}/comments", auth.RequireUser(h.Comment)).Methods("POST")
	router.HandleFunc("/api/v1/tickets/{id}/events", auth.RequireUser(h.Events)).Methods("GET")
	router.HandleFunc("/api/v1/tickets/{id}/position", auth.RequireUser(h.Position)).Methods("GET")
}

// Submit handles ticket submission.
func (h *TicketHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var params domain.TicketParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, domain.NewValidationError("invalid request body"))
		return
	}
	t, err := h.queue.Submit(r.Context(), mux.Vars(r)["queueID"], UserID(r), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Get returns one ticket.
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.queue.Ticket(r.Context(), mux.Vars(r)["id"], UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Update applies a student edit.
func (h *TicketHandler) Update(w http.ResponseWriter, r *http.Request) {
	var upd domain.TicketUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, domain.NewValidationError("invalid request body"))
		return
	}
	t, err := h.queue.StudentUpdate(r.Context(), mux.Vars(r)["id"], UserID(r), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Accept assigns the ticket to the acting grader.
func (h *TicketHandler) Accept(w http.ResponseWriter, r *http.Request) {
	t, err := h.queue.Accept(r.Context(), mux.Vars(r)["id"], UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Defer returns the ticket to the queue.
func (h *TicketHandler) Defer(w http.ResponseWriter, r *http.Request) {
	t, err := h.queue.Defer(r.Context(), mux.Vars(r)["id"], UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Resolve closes the ticket as helped.
func (h *TicketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	t, err := h.queue.Resolve(r.Context(), mux.Vars(r)["id"], UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Cancel closes the ticket without resolution.
func (h *TicketHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	t, err := h.queue.Cancel(r.Context(), mux.Vars(r)["id"], UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Comment appends a comment to the ticket's trail.
func (h *TicketHandler) Comment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.NewValidationError("invalid request body"))
		return
	}
	ev, err := h.queue.Comment(r.Context(), mux.Vars(r)["id"], UserID(r), body.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// Events returns the ticket's permission-filtered history, newest first
// for display.
func (h *TicketHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.queue.Events(r.Context(), mux.Vars(r)["id"], UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	// The log is stored ascending for duration math; clients read it
	// newest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	writeJSON(w, http.StatusOK, events)
}

// Position returns the ticket's rank in its queue.
func (h *TicketHandler) Position(w http.ResponseWriter, r *http.Request) {
	position, err := h.queue.Position(r.Context(), mux.Vars(r)["id"], UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"position": position})
}
