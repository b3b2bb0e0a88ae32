// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/avast/retry-go"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionIDHeader carries Transmission's CSRF token.
const SessionIDHeader = "X-Transmission-Session-Id"

const (
	MethodTorrentGet = "torrent-get"
	MethodPortTest   = "port-test"
	MethodSessionGet = "session-get"

	resultSuccess = "success"

	maxResponseSize = 64 << 20
)

// MinSupportedVersion is the oldest daemon release trview is tested against.
var MinSupportedVersion = semver.MustParse("2.40.0")

// Observer receives one notification per daemon call. outcome is "success" or
// the ErrorKind of the failure.
type Observer interface {
	ObserveRPC(method, outcome string, elapsed time.Duration)
}

type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithCredentials enables HTTP basic auth against the daemon.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithTimeout sets the transport timeout; zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// Client talks to a single Transmission daemon. It is safe for concurrent use.
type Client struct {
	endpoint   string
	username   string
	password   string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	observer   Observer
	logger     zerolog.Logger

	sessionMu sync.RWMutex
	sessionID string

	tag atomic.Int64
}

func NewClient(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidEndpoint, "parse %q: %v", endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Wrapf(ErrInvalidEndpoint, "got %q", endpoint)
	}

	c := &Client{
		endpoint:  u.String(),
		userAgent: "trview",
		timeout:   60 * time.Second,
		logger:    log.Logger.With().Str("module", "transmission").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = cleanhttp.DefaultPooledClient()
		c.httpClient.Timeout = c.timeout
	}

	return c, nil
}

// Endpoint returns the daemon RPC URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type torrentGetArguments struct {
	Fields []string `json:"fields"`
}

type torrentGetResult struct {
	Torrents *[]RemoteTorrent `json:"torrents"`
}

func (r *torrentGetResult) validate() error {
	if r.Torrents == nil {
		return errors.New("response has no torrents list")
	}
	return nil
}

// FetchTorrents lists every torrent on the daemon, asking for id and name only.
func (c *Client) FetchTorrents(ctx context.Context) ([]RemoteTorrent, error) {
	var out torrentGetResult
	args := torrentGetArguments{Fields: []string{FieldID, FieldName}}

	if err := c.call(ctx, MethodTorrentGet, args, &out); err != nil {
		return nil, err
	}

	return *out.Torrents, nil
}

type portTestResult struct {
	PortIsOpen *bool `json:"port-is-open"`
}

func (r *portTestResult) validate() error {
	if r.PortIsOpen == nil {
		return errors.New("response has no port-is-open flag")
	}
	return nil
}

// PortTest asks the daemon whether its peer port is reachable from outside.
func (c *Client) PortTest(ctx context.Context) (bool, error) {
	var out portTestResult
	if err := c.call(ctx, MethodPortTest, nil, &out); err != nil {
		return false, err
	}
	return *out.PortIsOpen, nil
}

// SessionInfo describes the daemon build.
type SessionInfo struct {
	Version           string `json:"version"`
	RPCVersion        int    `json:"rpc-version"`
	RPCVersionMinimum int    `json:"rpc-version-minimum"`
}

// SemVer parses the release part of Version, e.g. "4.0.5 (a6fe2a64aa)".
func (s *SessionInfo) SemVer() (*semver.Version, error) {
	fields := strings.Fields(s.Version)
	if len(fields) == 0 {
		return nil, errors.New("daemon did not report a version")
	}
	v, err := semver.NewVersion(trimLeadingZeros(fields[0]))
	if err != nil {
		return nil, errors.Wrapf(err, "parse daemon version %q", s.Version)
	}
	return v, nil
}

// trimLeadingZeros rewrites numeric segments so "3.00" parses as 3.0.
func trimLeadingZeros(version string) string {
	parts := strings.Split(version, ".")
	for i, part := range parts {
		if n, err := strconv.ParseUint(part, 10, 64); err == nil {
			parts[i] = strconv.FormatUint(n, 10)
		}
	}
	return strings.Join(parts, ".")
}

// Supported reports whether the daemon is at least MinSupportedVersion.
func (s *SessionInfo) Supported() bool {
	v, err := s.SemVer()
	if err != nil {
		return false
	}
	return !v.LessThan(MinSupportedVersion)
}

type sessionGetArguments struct {
	Fields []string `json:"fields"`
}

// SessionInfo fetches the daemon version.
func (c *Client) SessionInfo(ctx context.Context) (*SessionInfo, error) {
	var out SessionInfo
	args := sessionGetArguments{Fields: []string{"version", "rpc-version", "rpc-version-minimum"}}
	if err := c.call(ctx, MethodSessionGet, args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// validator is implemented by result types with required fields.
type validator interface {
	validate() error
}

type rpcRequest struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
	Tag       int64  `json:"tag"`
}

type rpcResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
	Tag       *int64          `json:"tag"`
}

func (c *Client) call(ctx context.Context, method string, args any, out any) error {
	start := time.Now()
	err := c.do(ctx, method, args, out)
	elapsed := time.Since(start)

	if err != nil {
		fetchErr := AsFetchError(method, err)
		c.observe(method, string(fetchErr.Kind), elapsed)
		c.logger.Debug().
			Err(fetchErr).
			Str("method", method).
			Str("kind", string(fetchErr.Kind)).
			Dur("elapsed", elapsed).
			Msg("Transmission RPC call failed")
		return fetchErr
	}

	c.observe(method, resultSuccess, elapsed)
	c.logger.Trace().Str("method", method).Dur("elapsed", elapsed).Msg("Transmission RPC call completed")
	return nil
}

func (c *Client) observe(method, outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRPC(method, outcome, elapsed)
	}
}

func (c *Client) do(ctx context.Context, method string, args any, out any) error {
	body, err := json.Marshal(rpcRequest{
		Method:    method,
		Arguments: args,
		Tag:       c.tag.Add(1),
	})
	if err != nil {
		return newFetchError(KindProtocol, method, errors.Wrap(err, "encode request"))
	}

	var resp rpcResponse

	// The first request of a connection is answered with 409 and a fresh
	// session id; the request is sent again exactly once with that id.
	err = retry.Do(
		func() error {
			return c.roundTrip(ctx, method, body, &resp)
		},
		retry.Attempts(2),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errSessionConflict)
		}),
	)
	if err != nil {
		return AsFetchError(method, err)
	}

	switch {
	case resp.Result == "":
		return newFetchError(KindDecode, method, errors.New("response has no result field"))
	case resp.Result != resultSuccess:
		return newFetchError(KindProtocol, method, errors.Errorf("daemon returned %q", resp.Result))
	}

	if out == nil {
		return nil
	}
	if len(resp.Arguments) == 0 || isNull(resp.Arguments) {
		return newFetchError(KindDecode, method, errors.New("response has no arguments"))
	}
	if err := json.Unmarshal(resp.Arguments, out); err != nil {
		return newFetchError(KindDecode, method, errors.Wrap(err, "decode arguments"))
	}
	if v, ok := out.(validator); ok {
		if err := v.validate(); err != nil {
			return newFetchError(KindDecode, method, err)
		}
	}

	return nil
}

func (c *Client) roundTrip(ctx context.Context, method string, body []byte, out *rpcResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return newFetchError(KindTransport, method, errors.Wrap(err, "build request"))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if sessionID := c.getSessionID(); sessionID != "" {
		req.Header.Set(SessionIDHeader, sessionID)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newFetchError(KindTransport, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		sessionID := resp.Header.Get(SessionIDHeader)
		if sessionID == "" {
			return newFetchError(KindProtocol, method, errors.New("409 response without session id"))
		}
		c.setSessionID(sessionID)
		c.logger.Trace().Str("method", method).Msg("Refreshed Transmission session id")
		return newFetchError(KindProtocol, method, errSessionConflict)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return newFetchError(KindProtocol, method, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return newFetchError(KindTransport, method, errors.Wrap(err, "read response"))
	}

	*out = rpcResponse{}
	if err := json.Unmarshal(data, out); err != nil {
		return newFetchError(KindDecode, method, errors.Wrap(err, "decode response"))
	}

	return nil
}

func (c *Client) getSessionID() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.sessionID
}

func (c *Client) setSessionID(id string) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.sessionID = id
}
