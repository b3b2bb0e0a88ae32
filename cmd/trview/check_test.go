// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/trview/internal/transmission"
)

type fakeDaemon struct {
	records []transmission.RemoteTorrent
	portErr error
}

func (f *fakeDaemon) FetchTorrents(ctx context.Context) ([]transmission.RemoteTorrent, error) {
	return f.records, nil
}

func (f *fakeDaemon) PortTest(ctx context.Context) (bool, error) {
	return f.portErr == nil, f.portErr
}

func (f *fakeDaemon) SessionInfo(ctx context.Context) (*transmission.SessionInfo, error) {
	return &transmission.SessionInfo{Version: "2.33", RPCVersion: 15, RPCVersionMinimum: 1}, nil
}

func TestRunChecks(t *testing.T) {
	daemon := &fakeDaemon{records: make([]transmission.RemoteTorrent, 4)}

	report, err := runChecks(context.Background(), daemon)
	require.NoError(t, err)
	assert.True(t, report.PortIsOpen)
	assert.Equal(t, 4, report.Torrents)

	var out bytes.Buffer
	printReport(&out, "http://plutonium:9091/transmission/rpc", report)
	assert.Contains(t, out.String(), "Torrents:    4")
	assert.Contains(t, out.String(), "Warning:     daemon is older than 2.40.0")
}

func TestRunChecksFailure(t *testing.T) {
	daemon := &fakeDaemon{portErr: &transmission.FetchError{
		Kind:   transmission.KindProtocol,
		Method: transmission.MethodPortTest,
		Err:    assert.AnError,
	}}

	report, err := runChecks(context.Background(), daemon)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, transmission.ErrProtocol)
}
