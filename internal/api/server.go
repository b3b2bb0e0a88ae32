// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/trview/internal/api/handlers"
	"github.com/autobrr/trview/internal/api/middleware"
	"github.com/autobrr/trview/internal/config"
	"github.com/autobrr/trview/internal/torrents"
	"github.com/autobrr/trview/internal/transmission"
	"github.com/autobrr/trview/internal/web"
	"github.com/autobrr/trview/internal/web/swagger"
)

// Daemon is the Transmission client surface the server needs.
type Daemon interface {
	FetchTorrents(ctx context.Context) ([]transmission.RemoteTorrent, error)
	PortTest(ctx context.Context) (bool, error)
	SessionInfo(ctx context.Context) (*transmission.SessionInfo, error)
}

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.AppConfig
	version string

	daemon   Daemon
	sessions *torrents.Sessions
}

type Dependencies struct {
	Config   *config.AppConfig
	Version  string
	Daemon   Daemon
	Sessions *torrents.Sessions
}

func NewServer(deps *Dependencies) *Server {
	s := Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:   log.Logger.With().Str("module", "api").Logger(),
		config:   deps.Config,
		version:  deps.Version,
		daemon:   deps.Daemon,
		sessions: deps.Sessions,
	}

	return &s
}

// ListenAndServeReady serves until shutdown and signals once the listener is active.
func (s *Server) ListenAndServeReady(ready chan<- struct{}) error {
	return s.open(ready)
}

func (s *Server) open(ready chan<- struct{}) error {
	addr := net.JoinHostPort(s.config.Config.Host, fmt.Sprint(s.config.Config.Port))

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto, ready)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msgf("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string, ready chan<- struct{}) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// Replace 0.0.0.0 or :: with localhost for clickable links
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}
	clickableURL := fmt.Sprintf("http://%s%s", host, s.config.Config.BaseURL)

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Str("base_url", s.config.Config.BaseURL).
		Msgf("Starting web server - Open: %s", clickableURL)

	handler, err := s.Handler()
	if err != nil {
		listener.Close()
		return fmt.Errorf("build router: %w", err)
	}

	s.server.Handler = handler

	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() (*chi.Mux, error) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID) // Must be before logger to capture request ID
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.GzipCompressionLevel(2),
		httpcompression.Prefer(httpcompression.PreferServer),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowedMethods:  []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:  []string{"Accept", "Content-Type"},
		AllowOriginFunc: func(origin string) bool { return true },
		MaxAge:          300,
	})
	r.Use(corsMiddleware.Handler)

	healthHandler := handlers.NewHealthHandler(s.daemon)
	torrentsHandler := handlers.NewTorrentsHandler(s.daemon)
	sessionsHandler := handlers.NewSessionsHandler(s.sessions)

	apiRouter := chi.NewRouter()

	apiRouter.Group(func(r chi.Router) {
		r.Use(middleware.Logger(s.logger))

		r.Route("/torrents", func(r chi.Router) {
			r.Get("/", torrentsHandler.ListTorrents)
			r.Get("/count", torrentsHandler.CountTorrents)
		})

		r.Get("/port-test", torrentsHandler.PortTest)
		r.Get("/daemon", torrentsHandler.DaemonInfo)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionsHandler.OpenSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", sessionsHandler.GetSession)
				r.Delete("/", sessionsHandler.CloseSession)
				r.Put("/filter", sessionsHandler.SetFilter)
				r.Post("/close", sessionsHandler.CloseSession)
			})
		})
	})

	baseURL := s.config.Config.BaseURL
	if baseURL == "" {
		baseURL = "/"
	}

	swaggerHandler, err := swagger.NewHandler(baseURL)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load OpenAPI document")
	} else {
		swaggerHandler.RegisterRoutes(apiRouter)
	}

	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/healthz/readiness", healthHandler.HandleReady)
	r.Get("/healthz/liveness", healthHandler.HandleLiveness)

	// Mount API routes BEFORE web handler to prevent catch-all from intercepting API requests
	r.Mount(baseURL+"api", apiRouter)

	webHandler, err := web.NewHandler(s.version, baseURL, s.sessions)
	if err != nil {
		return nil, fmt.Errorf("build web handler: %w", err)
	}

	if baseURL != "/" {
		trimmedBaseURL := strings.TrimSuffix(baseURL, "/")

		r.Route(trimmedBaseURL, func(sub chi.Router) {
			webHandler.RegisterRoutes(sub)
		})

		r.Get("/", func(w http.ResponseWriter, request *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Must use baseUrl: " + s.config.Config.BaseURL + " instead of /"))
		})
	} else {
		webHandler.RegisterRoutes(r)
	}

	return r, nil
}
