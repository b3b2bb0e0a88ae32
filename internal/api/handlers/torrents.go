// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/trview/internal/torrents"
	"github.com/autobrr/trview/internal/transmission"
)

// daemonClient is the subset of transmission.Client used here (used for testing)
type daemonClient interface {
	FetchTorrents(ctx context.Context) ([]transmission.RemoteTorrent, error)
	PortTest(ctx context.Context) (bool, error)
	SessionInfo(ctx context.Context) (*transmission.SessionInfo, error)
}

type TorrentsHandler struct {
	daemon daemonClient
}

func NewTorrentsHandler(daemon daemonClient) *TorrentsHandler {
	return &TorrentsHandler{daemon: daemon}
}

// ListTorrents fetches the torrent list directly, bypassing page sessions.
// The optional filter query parameter narrows the result.
func (h *TorrentsHandler) ListTorrents(w http.ResponseWriter, r *http.Request) {
	records, err := h.daemon.FetchTorrents(r.Context())
	if err != nil {
		RespondFetchError(w, transmission.MethodTorrentGet, err)
		return
	}

	filter := r.URL.Query().Get("filter")
	snapshot := torrents.BuildSnapshot(torrents.FetchResult{
		State:    torrents.StateReady,
		Torrents: transmission.NormalizeAll(records),
	}, filter)

	log.Debug().
		Int("total", snapshot.Total).
		Int("visible", snapshot.Visible).
		Str("filter", filter).
		Msg("Listed torrents")

	RespondJSON(w, http.StatusOK, snapshot)
}

type TorrentCountResponse struct {
	Count int `json:"count"`
}

func (h *TorrentsHandler) CountTorrents(w http.ResponseWriter, r *http.Request) {
	records, err := h.daemon.FetchTorrents(r.Context())
	if err != nil {
		RespondFetchError(w, transmission.MethodTorrentGet, err)
		return
	}

	RespondJSON(w, http.StatusOK, TorrentCountResponse{Count: len(records)})
}

type PortTestResponse struct {
	OK         bool                   `json:"ok"`
	PortIsOpen bool                   `json:"portIsOpen"`
	Status     string                 `json:"status"`
	Kind       transmission.ErrorKind `json:"kind,omitempty"`
}

// PortTest always answers 200; a failed daemon call is reported in the body.
func (h *TorrentsHandler) PortTest(w http.ResponseWriter, r *http.Request) {
	open, err := h.daemon.PortTest(r.Context())

	resp := PortTestResponse{
		OK:         err == nil,
		PortIsOpen: open,
		Status:     fmt.Sprintf("Response ok? %t", err == nil),
	}
	if err != nil {
		resp.Kind = transmission.KindOf(err)
		log.Error().Err(err).Msg("Port test failed")
	} else {
		log.Debug().Bool("portIsOpen", open).Msg("Port test completed")
	}

	RespondJSON(w, http.StatusOK, resp)
}

type DaemonInfoResponse struct {
	Version           string `json:"version"`
	SemVer            string `json:"semver,omitempty"`
	RPCVersion        int    `json:"rpcVersion"`
	RPCVersionMinimum int    `json:"rpcVersionMinimum"`
	Supported         bool   `json:"supported"`
}

func (h *TorrentsHandler) DaemonInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.daemon.SessionInfo(r.Context())
	if err != nil {
		RespondFetchError(w, transmission.MethodSessionGet, err)
		return
	}

	resp := DaemonInfoResponse{
		Version:           info.Version,
		RPCVersion:        info.RPCVersion,
		RPCVersionMinimum: info.RPCVersionMinimum,
		Supported:         info.Supported(),
	}
	if v, err := info.SemVer(); err == nil {
		resp.SemVer = v.String()
	}

	RespondJSON(w, http.StatusOK, resp)
}
