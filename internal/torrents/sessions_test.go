// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrents

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	settled []State
	active  []int
}

func (r *recorder) FetchSettled(state State, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, state)
}

func (r *recorder) SessionsActive(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = append(r.active, n)
}

func (r *recorder) snapshot() ([]State, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.settled...), append([]int(nil), r.active...)
}

func newTestSessions(t *testing.T, gateway Gateway, opts ...SessionsOption) *Sessions {
	t.Helper()
	s := NewSessions(gateway, opts...)
	t.Cleanup(s.Shutdown)
	return s
}

func TestSessionsOpenGetClose(t *testing.T) {
	rec := &recorder{}
	s := newTestSessions(t, &stubGateway{records: sampleRecords()}, WithRecorder(rec))

	session, err := s.Open()
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, 1, s.Len())

	got, err := s.Get(session.ID)
	require.NoError(t, err)
	assert.Same(t, session, got)

	waitSettled(t, got.Resource)
	assert.Len(t, got.View.Derive(), 3)

	s.Close(session.ID)
	assert.Equal(t, 0, s.Len())

	_, err = s.Get(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// closing twice is harmless
	s.Close(session.ID)
	assert.Equal(t, 0, s.Len())

	assert.Eventually(t, func() bool {
		settled, _ := rec.snapshot()
		return len(settled) == 1
	}, 2*time.Second, 10*time.Millisecond)

	settled, active := rec.snapshot()
	assert.Equal(t, []State{StateReady}, settled)
	assert.Equal(t, []int{1, 0}, active)
}

func TestSessionsAreIndependent(t *testing.T) {
	s := newTestSessions(t, &stubGateway{records: sampleRecords()})

	first, err := s.Open()
	require.NoError(t, err)
	second, err := s.Open()
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	first.View.SetFilter("alpha")
	waitSettled(t, first.Resource)
	waitSettled(t, second.Resource)

	assert.Len(t, first.View.Derive(), 1)
	assert.Len(t, second.View.Derive(), 3)
}

func TestSessionsGetUnknown(t *testing.T) {
	s := newTestSessions(t, &stubGateway{})

	_, err := s.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	s.Close("does-not-exist")
}

func TestSessionsCloseCancelsFetch(t *testing.T) {
	gateway := &stubGateway{records: sampleRecords(), release: make(chan struct{})}
	t.Cleanup(func() { close(gateway.release) })
	s := newTestSessions(t, gateway)

	session, err := s.Open()
	require.NoError(t, err)
	assert.Equal(t, StatePending, session.View.Snapshot().State)

	s.Close(session.ID)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatePending, session.Resource.Peek().State)
}

func TestSessionsIdleExpiry(t *testing.T) {
	s := newTestSessions(t, &stubGateway{records: sampleRecords()}, WithIdleTimeout(50*time.Millisecond))

	session, err := s.Open()
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return s.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	_, err = s.Get(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionsTouchExtendsIdleDeadline(t *testing.T) {
	s := newTestSessions(t, &stubGateway{records: sampleRecords()}, WithIdleTimeout(200*time.Millisecond))

	session, err := s.Open()
	require.NoError(t, err)

	for range 5 {
		time.Sleep(80 * time.Millisecond)
		_, err := s.Get(session.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.Len())
}

func TestSessionsShutdown(t *testing.T) {
	s := NewSessions(&stubGateway{records: sampleRecords()})

	for range 3 {
		_, err := s.Open()
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Len())

	s.Shutdown()
	assert.Equal(t, 0, s.Len())

	_, err := s.Open()
	assert.ErrorIs(t, err, ErrShuttingDown)

	s.Shutdown()
}

func TestSessionsSetIdleTimeout(t *testing.T) {
	s := newTestSessions(t, &stubGateway{})
	assert.Equal(t, DefaultIdleTimeout, s.IdleTimeout())

	s.SetIdleTimeout(0)
	assert.Equal(t, DefaultIdleTimeout, s.IdleTimeout())

	s.SetIdleTimeout(time.Minute)
	assert.Equal(t, time.Minute, s.IdleTimeout())

	s.SetIdleTimeout(48 * time.Hour)
	assert.Equal(t, maxSessionAge, s.IdleTimeout())
}

func TestSessionsGetDoesNotRevivePastClose(t *testing.T) {
	s := newTestSessions(t, &stubGateway{records: sampleRecords()})

	for range 50 {
		session, err := s.Open()
		require.NoError(t, err)

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 20 {
					_, _ = s.Get(session.ID)
				}
			}()
		}
		s.Close(session.ID)
		wg.Wait()

		_, cached := s.cache.Get(session.ID)
		assert.False(t, cached, "closed session %s is back in the cache", session.ID)
	}
	assert.Equal(t, 0, s.Len())
}
