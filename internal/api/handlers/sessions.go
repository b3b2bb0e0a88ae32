// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/trview/internal/torrents"
)

// maxFilterBodySize bounds the request body, not the filter text. Any filter
// that fits is stored as given.
const maxFilterBodySize = 1 << 20

type sessionStore interface {
	Open() (*torrents.Session, error)
	Get(id string) (*torrents.Session, error)
	Close(id string)
}

type SessionsHandler struct {
	sessions sessionStore
}

func NewSessionsHandler(sessions sessionStore) *SessionsHandler {
	return &SessionsHandler{sessions: sessions}
}

// SessionResponse is a page session id plus its current snapshot.
type SessionResponse struct {
	ID string `json:"id"`
	torrents.Snapshot
}

type SetFilterRequest struct {
	Filter *string `json:"filter"`
}

func newSessionResponse(session *torrents.Session) SessionResponse {
	return SessionResponse{ID: session.ID, Snapshot: session.View.Snapshot()}
}

func (h *SessionsHandler) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, torrents.ErrSessionNotFound):
		RespondError(w, http.StatusNotFound, "Page session not found")
	case errors.Is(err, torrents.ErrShuttingDown):
		RespondError(w, http.StatusServiceUnavailable, "Server is shutting down")
	default:
		log.Error().Err(err).Msg("Page session error")
		RespondError(w, http.StatusInternalServerError, "Page session error")
	}
}

// OpenSession creates a page session and starts its fetch.
func (h *SessionsHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Open()
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *SessionsHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	var req SetFilterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFilterBodySize)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Filter == nil {
		RespondError(w, http.StatusBadRequest, "filter is required")
		return
	}

	session.View.SetFilter(*req.Filter)

	RespondJSON(w, http.StatusOK, newSessionResponse(session))
}

// CloseSession tears the session down. Unknown ids are not an error so a
// page can close twice.
func (h *SessionsHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Close(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}
