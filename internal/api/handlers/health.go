// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/trview/internal/transmission"
)

const readinessTimeout = 5 * time.Second

type daemonProbe interface {
	SessionInfo(ctx context.Context) (*transmission.SessionInfo, error)
}

type HealthHandler struct {
	probe daemonProbe
}

// NewHealthHandler builds the health endpoints. A nil probe makes readiness
// always succeed.
func NewHealthHandler(probe daemonProbe) *HealthHandler {
	return &HealthHandler{probe: probe}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReady reports ready once the daemon answers session-get.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.probe == nil {
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	info, err := h.probe.SessionInfo(ctx)
	if err != nil {
		fetchErr := transmission.AsFetchError(transmission.MethodSessionGet, err)
		log.Debug().Err(fetchErr).Msg("Readiness probe failed")
		RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"kind":   string(fetchErr.Kind),
			"error":  fetchErr.Error(),
		})
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"status":        "ready",
		"daemonVersion": info.Version,
	})
}
