// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrents

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNotFound = errors.New("page session not found")
	ErrShuttingDown    = errors.New("page sessions are shutting down")
)

// DefaultIdleTimeout applies when no idle timeout is configured.
const DefaultIdleTimeout = 10 * time.Minute

// maxSessionAge bounds how long the registry keeps an entry whatever the idle
// timeout is.
const maxSessionAge = 24 * time.Hour

// Recorder receives session lifecycle events.
type Recorder interface {
	FetchSettled(state State, count int)
	SessionsActive(n int)
}

// Session is one open page: a single fetch and the filter typed on that page.
type Session struct {
	ID        string
	CreatedAt time.Time
	Resource  *Resource
	View      *View

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// touch resets the idle timer and runs refresh, both under the session lock so
// a concurrent close cannot interleave. It reports false once closed.
func (s *Session) touch(idle time.Duration, refresh func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.timer.Reset(idle)
	refresh()
	return true
}

// close reports whether this call did the teardown.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.timer.Stop()
	s.Resource.Close()
	return true
}

type SessionsOption func(*Sessions)

func WithIdleTimeout(idle time.Duration) SessionsOption {
	return func(s *Sessions) {
		s.SetIdleTimeout(idle)
	}
}

func WithRecorder(recorder Recorder) SessionsOption {
	return func(s *Sessions) {
		s.recorder = recorder
	}
}

// Sessions tracks the live page sessions. Each session is torn down when it is
// closed explicitly, when it goes unobserved for the idle timeout, or on
// Shutdown.
type Sessions struct {
	gateway  Gateway
	idle     atomic.Int64
	recorder Recorder
	logger   zerolog.Logger

	cache    *ttlcache.Cache[string, *Session]
	active   atomic.Int64
	shutdown atomic.Bool
}

func NewSessions(gateway Gateway, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		gateway: gateway,
		logger:  log.Logger.With().Str("module", "sessions").Logger(),
	}
	s.idle.Store(int64(DefaultIdleTimeout))
	for _, opt := range opts {
		opt(s)
	}

	// Idle timers do the teardown; the cache TTL only bounds entries that
	// somehow outlive them.
	s.cache = ttlcache.New(ttlcache.Options[string, *Session]{}.
		SetDefaultTTL(maxSessionAge))

	return s
}

// SetIdleTimeout changes the idle timeout. Live sessions pick it up on their
// next observation. Non-positive values are ignored.
func (s *Sessions) SetIdleTimeout(idle time.Duration) {
	if idle <= 0 {
		return
	}
	if idle > maxSessionAge {
		idle = maxSessionAge
	}
	s.idle.Store(int64(idle))
}

func (s *Sessions) IdleTimeout() time.Duration {
	return time.Duration(s.idle.Load())
}

// Open starts a page session. The fetch starts on the first observation.
func (s *Sessions) Open() (*Session, error) {
	if s.shutdown.Load() {
		return nil, ErrShuttingDown
	}

	session := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
	session.Resource = NewResource(s.gateway, WithSettleHook(s.settled))
	session.View = NewView(session.Resource)

	// Held until the session is registered so an early expiry waits for it.
	session.mu.Lock()
	session.timer = time.AfterFunc(s.IdleTimeout(), func() {
		s.expire(session)
	})
	s.cache.Set(session.ID, session, ttlcache.DefaultTTL)
	s.reportActive(s.active.Add(1))
	session.mu.Unlock()

	s.logger.Debug().Str("session", session.ID).Msg("Opened page session")
	return session, nil
}

// Get returns a live session and extends its idle deadline.
func (s *Sessions) Get(id string) (*Session, error) {
	session, ok := s.cache.Get(id)
	if !ok || session == nil {
		return nil, ErrSessionNotFound
	}
	refreshed := session.touch(s.IdleTimeout(), func() {
		s.cache.Set(id, session, ttlcache.DefaultTTL)
	})
	if !refreshed {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close tears a session down. Closing an unknown session is not an error.
func (s *Sessions) Close(id string) {
	session, ok := s.cache.Get(id)
	if !ok || session == nil {
		return
	}
	s.teardown(session, "closed")
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	return int(s.active.Load())
}

// Shutdown closes every live session and refuses new ones.
func (s *Sessions) Shutdown() {
	if !s.shutdown.CompareAndSwap(false, true) {
		return
	}

	for _, id := range s.cache.GetKeys() {
		if session, ok := s.cache.Get(id); ok && session != nil {
			s.teardown(session, "shutdown")
		}
	}
	s.cache.Close()
}

func (s *Sessions) expire(session *Session) {
	s.teardown(session, "idle")
}

func (s *Sessions) teardown(session *Session, reason string) {
	if !session.close() {
		return
	}
	s.cache.Delete(session.ID)
	s.reportActive(s.active.Add(-1))

	s.logger.Debug().
		Str("session", session.ID).
		Str("reason", reason).
		Dur("age", time.Since(session.CreatedAt)).
		Msg("Closed page session")
}

func (s *Sessions) settled(result FetchResult) {
	if s.recorder != nil {
		s.recorder.FetchSettled(result.State, len(result.Torrents))
	}
}

func (s *Sessions) reportActive(n int64) {
	if s.recorder != nil {
		s.recorder.SessionsActive(int(n))
	}
}
