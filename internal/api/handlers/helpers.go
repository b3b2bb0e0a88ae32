// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/trview/internal/transmission"
)

type ErrorResponse struct {
	Error string                 `json:"error"`
	Kind  transmission.ErrorKind `json:"kind,omitempty"`
}

// RespondJSON writes data as a JSON body with the given status.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondFetchError reports a failed daemon call as 502 with its kind.
func RespondFetchError(w http.ResponseWriter, method string, err error) {
	fetchErr := transmission.AsFetchError(method, err)
	RespondJSON(w, http.StatusBadGateway, ErrorResponse{
		Error: fetchErr.Error(),
		Kind:  fetchErr.Kind,
	})
}
