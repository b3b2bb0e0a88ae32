// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrents

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/trview/internal/transmission"
)

var ErrResourceClosed = errors.New("torrent resource closed")

// Gateway is the part of the daemon client the resource depends on.
type Gateway interface {
	FetchTorrents(ctx context.Context) ([]transmission.RemoteTorrent, error)
}

type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// FetchResult is the observable state of a Resource. Torrents is set only when
// Ready and Err only when Failed. Torrents is shared between observers and
// must not be modified.
type FetchResult struct {
	State    State
	Torrents []transmission.TorrentView
	Err      *transmission.FetchError
}

func (r FetchResult) Ready() bool {
	return r.State == StateReady
}

type ResourceOption func(*Resource)

// WithSettleHook registers fn to be called once with the final result.
func WithSettleHook(fn func(FetchResult)) ResourceOption {
	return func(r *Resource) {
		r.onSettle = fn
	}
}

// Resource loads the torrent list at most once. The load starts on the first
// Observe and never blocks the observer.
type Resource struct {
	gateway  Gateway
	onSettle func(FetchResult)
	logger   zerolog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	result  FetchResult
	cancel  context.CancelFunc

	done     chan struct{}
	closedCh chan struct{}
}

func NewResource(gateway Gateway, opts ...ResourceOption) *Resource {
	r := &Resource{
		gateway:  gateway,
		logger:   log.Logger.With().Str("module", "torrents").Logger(),
		result:   FetchResult{State: StatePending},
		done:     make(chan struct{}),
		closedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe returns the current result, starting the load if this is the first
// observation.
func (r *Resource) Observe() FetchResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started && !r.closed {
		r.started = true
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		go r.load(ctx)
	}

	return r.result
}

// Peek returns the current result without starting the load.
func (r *Resource) Peek() FetchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Done is closed once the resource is Ready or Failed.
func (r *Resource) Done() <-chan struct{} {
	return r.done
}

// Wait observes the resource and blocks until it settles.
func (r *Resource) Wait(ctx context.Context) (FetchResult, error) {
	r.Observe()

	select {
	case <-r.done:
		return r.Peek(), nil
	case <-r.closedCh:
		return r.Peek(), ErrResourceClosed
	case <-ctx.Done():
		return r.Peek(), ctx.Err()
	}
}

// Close cancels an in-flight load. A result arriving afterwards is dropped and
// the resource keeps whatever state it had.
func (r *Resource) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.closedCh)
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Resource) load(ctx context.Context) {
	records, err := r.gateway.FetchTorrents(ctx)

	var result FetchResult
	if err != nil {
		result = FetchResult{
			State: StateFailed,
			Err:   transmission.AsFetchError(transmission.MethodTorrentGet, err),
		}
	} else {
		result = FetchResult{
			State:    StateReady,
			Torrents: transmission.NormalizeAll(records),
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Debug().Str("state", string(result.State)).Msg("Discarding torrent list for closed resource")
		return
	}
	r.result = result
	r.cancel()
	close(r.done)
	r.mu.Unlock()

	if result.Err != nil {
		r.logger.Warn().Err(result.Err).Str("kind", string(result.Err.Kind)).Msg("Failed to load torrent list")
	} else {
		r.logger.Debug().Int("count", len(result.Torrents)).Msg("Loaded torrent list")
	}

	if r.onSettle != nil {
		r.onSettle(result)
	}
}
