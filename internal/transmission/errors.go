// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transmission

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies why a daemon call failed.
type ErrorKind string

const (
	// KindTransport covers connection failures, timeouts and cancellation.
	KindTransport ErrorKind = "transport"
	// KindProtocol covers well-formed responses that report a failure.
	KindProtocol ErrorKind = "protocol"
	// KindDecode covers responses that do not have the expected shape.
	KindDecode ErrorKind = "decode"
)

// Sentinels for errors.Is checks against a FetchError's kind.
var (
	ErrTransport = errors.New("transmission transport error")
	ErrProtocol  = errors.New("transmission protocol error")
	ErrDecode    = errors.New("transmission decode error")

	ErrInvalidEndpoint = errors.New("invalid transmission rpc endpoint")

	errSessionConflict = errors.New("session id rejected")
)

// FetchError is returned by every Client method on failure.
type FetchError struct {
	Kind   ErrorKind
	Method string
	Err    error
}

func newFetchError(kind ErrorKind, method string, err error) *FetchError {
	return &FetchError{Kind: kind, Method: method, Err: err}
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("transmission %s: %s error: %v", e.Method, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrProtocol:
		return e.Kind == KindProtocol
	case ErrDecode:
		return e.Kind == KindDecode
	}
	return false
}

// AsFetchError extracts a FetchError from err. Errors that did not originate
// from the daemon exchange are reported as transport failures.
func AsFetchError(method string, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr
	}
	return newFetchError(KindTransport, method, err)
}

// KindOf returns the failure kind of err, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return AsFetchError("", err).Kind
}
