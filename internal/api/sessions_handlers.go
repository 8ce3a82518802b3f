package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"slidecast/internal/models"
	"slidecast/internal/storage"
)

type createSessionRequest struct {
	Title string `json:"title"`
}

type sessionResponse struct {
	SessionID string     `json:"sessionId"`
	Title     string     `json:"title"`
	StartTime *time.Time `json:"startTime"`
	Status    string     `json:"status"`
}

func newSessionResponse(session models.Session) sessionResponse {
	return sessionResponse{
		SessionID: session.ID,
		Title:     session.Title,
		StartTime: session.StartTime,
		Status:    string(session.Status),
	}
}

// CreateSession handles POST /api/v1/session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, methodNotAllowed(r.Method))
		return
	}
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeValidationError(w, map[string]string{"title": "must not be empty"})
		return
	}

	session, err := h.Store.CreateSession(identity.UserID, req.Title)
	if err != nil {
		h.Logger.Error("create session failed", "owner_id", identity.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to create session"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"sessionId": session.ID})
}

// ListSessions handles GET /api/v1/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, methodNotAllowed(r.Method))
		return
	}
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	sessions := h.Store.ListSessions(identity.UserID)
	responses := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		responses = append(responses, newSessionResponse(session))
	}
	writeJSON(w, http.StatusOK, responses)
}

// SessionByID dispatches /api/v1/session/{id}/... sub-routes.
func (h *Handler) SessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/session/")
	parts := strings.Split(path, "/")
	for len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("session id missing"))
		return
	}
	sessionID := parts[0]

	if _, ok := h.requireIdentity(w, r); !ok {
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "start":
		h.startSession(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "end":
		h.endSession(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "slides":
		h.listSlides(w, r, sessionID)
	case len(parts) == 3 && parts[1] == "slides" && parts[2] == "pdf":
		h.uploadSlides(w, r, sessionID)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown session route"))
	}
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, methodNotAllowed(r.Method))
		return
	}

	session, err := h.Store.StartSession(sessionID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, storage.ErrSessionAlreadyStarted):
			writeError(w, http.StatusBadRequest, err)
		default:
			h.Logger.Error("start session failed", "session_id", sessionID, "error", err)
			writeError(w, http.StatusInternalServerError, errors.New("unable to start session"))
		}
		return
	}
	h.metrics().SessionStarted()
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, methodNotAllowed(r.Method))
		return
	}

	session, err := h.Store.EndSession(sessionID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, storage.ErrSessionNotStarted):
			writeError(w, http.StatusBadRequest, err)
		default:
			h.Logger.Error("end session failed", "session_id", sessionID, "error", err)
			writeError(w, http.StatusInternalServerError, errors.New("unable to end session"))
		}
		return
	}
	h.metrics().SessionEnded()
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}
