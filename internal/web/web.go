// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package web

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/trview/internal/torrents"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets
var assetsFS embed.FS

type sessionOpener interface {
	Open() (*torrents.Session, error)
	Close(id string)
}

// Handler serves the torrent list page and its static assets.
type Handler struct {
	version  string
	baseURL  string
	sessions sessionOpener
	index    *template.Template
	assets   http.Handler
}

type indexData struct {
	Version   string
	BaseURL   string
	SessionID string
	Snapshot  torrents.Snapshot
}

func NewHandler(version, baseURL string, sessions sessionOpener) (*Handler, error) {
	if baseURL == "" {
		baseURL = "/"
	}

	index, err := template.New("index.html").Funcs(template.FuncMap{
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse index template")
	}

	assets, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		return nil, errors.Wrap(err, "open embedded assets")
	}

	prefix := strings.TrimSuffix(baseURL, "/") + "/assets/"

	return &Handler{
		version:  version,
		baseURL:  baseURL,
		sessions: sessions,
		index:    index,
		assets:   http.StripPrefix(prefix, http.FileServer(http.FS(assets))),
	}, nil
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.serveIndex)
	r.Get("/assets/*", h.assets.ServeHTTP)
}

// serveIndex opens a page session and paints whatever it holds right away,
// which is normally the loading state.
func (h *Handler) serveIndex(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Open()
	if err != nil {
		if errors.Is(err, torrents.ErrShuttingDown) {
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		log.Error().Err(err).Msg("Failed to open page session")
		http.Error(w, "Failed to open page session", http.StatusInternalServerError)
		return
	}

	data := indexData{
		Version:   h.version,
		BaseURL:   h.baseURL,
		SessionID: session.ID,
		Snapshot:  session.View.Snapshot(),
	}

	var buf bytes.Buffer
	if err := h.index.Execute(&buf, data); err != nil {
		h.sessions.Close(session.ID)
		log.Error().Err(err).Msg("Failed to render index page")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}
