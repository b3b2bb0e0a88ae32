// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package web

import (
	"context"
	"html/template"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/trview/internal/torrents"
	"github.com/autobrr/trview/internal/transmission"
)

type blockingGateway struct {
	release chan struct{}
}

func (g *blockingGateway) FetchTorrents(ctx context.Context) ([]transmission.RemoteTorrent, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	name := "<script>alert(1)</script>"
	id := int64(1)
	return []transmission.RemoteTorrent{{ID: &id, Name: &name}}, nil
}

// fixedOpener hands out one prepared session.
type fixedOpener struct {
	session *torrents.Session
	err     error
	closed  []string
}

func (o *fixedOpener) Open() (*torrents.Session, error) {
	return o.session, o.err
}

func (o *fixedOpener) Close(id string) {
	o.closed = append(o.closed, id)
}

func newRouter(t *testing.T, baseURL string, opener sessionOpener) *chi.Mux {
	t.Helper()

	h, err := NewHandler("test", baseURL, opener)
	require.NoError(t, err)

	r := chi.NewRouter()
	if baseURL == "/" {
		h.RegisterRoutes(r)
	} else {
		r.Route(strings.TrimSuffix(baseURL, "/"), func(sub chi.Router) {
			h.RegisterRoutes(sub)
		})
	}
	return r
}

func get(t *testing.T, r http.Handler, path string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestIndexRendersLoadingState(t *testing.T) {
	gateway := &blockingGateway{release: make(chan struct{})}
	t.Cleanup(func() { close(gateway.release) })

	sessions := torrents.NewSessions(gateway)
	t.Cleanup(sessions.Shutdown)

	resp, body := get(t, newRouter(t, "/", sessions), "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "Loading torrents")
	assert.Contains(t, body, `data-state="pending"`)
	assert.Contains(t, body, `src="/assets/app.js"`)
	assert.Equal(t, 1, sessions.Len())
}

func TestIndexRendersReadyListEscaped(t *testing.T) {
	gateway := &blockingGateway{release: make(chan struct{})}
	close(gateway.release)

	resource := torrents.NewResource(gateway)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := resource.Wait(ctx)
	require.NoError(t, err)

	session := &torrents.Session{ID: "fixed-id", Resource: resource, View: torrents.NewView(resource)}

	_, body := get(t, newRouter(t, "/trview/", &fixedOpener{session: session}), "/trview/")
	assert.Contains(t, body, `data-session="fixed-id"`)
	assert.Contains(t, body, `data-key="id:1"`)
	assert.Contains(t, body, "1 of 1 torrents")
	assert.Contains(t, body, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, `href="/trview/assets/app.css"`)
}

func TestIndexRendersFailure(t *testing.T) {
	resource := torrents.NewResource(failingGateway{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := resource.Wait(ctx)
	require.NoError(t, err)

	session := &torrents.Session{ID: "failed", Resource: resource, View: torrents.NewView(resource)}

	_, body := get(t, newRouter(t, "/", &fixedOpener{session: session}), "/")
	assert.Contains(t, body, "Could not load torrents (protocol error)")
	assert.Contains(t, body, `data-state="failed"`)
	assert.Contains(t, body, `id="filter"`)
}

type failingGateway struct{}

func (failingGateway) FetchTorrents(context.Context) ([]transmission.RemoteTorrent, error) {
	return nil, &transmission.FetchError{Kind: transmission.KindProtocol, Method: transmission.MethodTorrentGet, Err: assert.AnError}
}

func TestIndexShuttingDown(t *testing.T) {
	resp, _ := get(t, newRouter(t, "/", &fixedOpener{err: torrents.ErrShuttingDown}), "/")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAssetsServed(t *testing.T) {
	for _, baseURL := range []string{"/", "/trview/"} {
		t.Run(baseURL, func(t *testing.T) {
			r := newRouter(t, baseURL, &fixedOpener{err: torrents.ErrShuttingDown})

			resp, body := get(t, r, baseURL+"assets/app.js")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, body, "sendBeacon")
			assert.Contains(t, body, "event.persisted")

			resp, _ = get(t, r, baseURL+"assets/app.css")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestIndexRenderFailureClosesSession(t *testing.T) {
	gateway := &blockingGateway{release: make(chan struct{})}
	t.Cleanup(func() { close(gateway.release) })

	sessions := torrents.NewSessions(gateway)
	t.Cleanup(sessions.Shutdown)

	h, err := NewHandler("test", "/", sessions)
	require.NoError(t, err)
	h.index = template.Must(template.New("index.html").Parse(`{{.NoSuchField}}`))

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	resp, _ := get(t, r, "/")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 0, sessions.Len())
}
