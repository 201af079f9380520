// Package collector is the HTTP client for the tracking collector. It
// implements session.Syncer, events.Sender and content.ProgressClient.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/session"
)

// Collector endpoints.
const (
	PathSession        = "/api/tracking/session"
	PathInteractions   = "/api/tracking/interactions"
	PathStream         = "/api/tracking/stream"
	PathProgress       = "/api/user/progress"
	PathProgressUpdate = "/api/user/progress/update"
	PathHealth         = "/healthz"
)

// HeaderUserID carries the user id for progress endpoints.
const HeaderUserID = "X-User-Id"

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 1024
)

// ErrDisabled is returned by every call when no base URL is configured.
var ErrDisabled = errors.New("collector: no url configured")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

// Is matches events.ErrRejected for 4xx responses other than 408 and 429.
func (e *StatusError) Is(target error) bool {
	if target != events.ErrRejected {
		return false
	}
	if e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests {
		return false
	}
	return e.Code >= 400 && e.Code < 500
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("collector: status %d", e.Code)
	}
	return fmt.Sprintf("collector: status %d: %s", e.Code, e.Body)
}

// InteractionsRequest is the body of PathInteractions.
type InteractionsRequest struct {
	Events []events.Event `json:"events"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	Headers    map[string]string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to a collector over HTTP. A Client with an empty BaseURL
// returns ErrDisabled from every call, so tracking can run offline.
type Client struct {
	base      string
	http      *http.Client
	timeout   time.Duration
	userAgent string
	headers   map[string]string
	log       zerolog.Logger

	beacons sync.WaitGroup

	mu     sync.RWMutex
	userID string
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		base:      strings.TrimRight(opts.BaseURL, "/"),
		http:      hc,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		headers:   opts.Headers,
		log:       opts.Logger.With().Str("component", "collector").Logger(),
	}
}

// Enabled reports whether a collector URL is configured.
func (c *Client) Enabled() bool { return c.base != "" }

// BaseURL returns the configured collector URL.
func (c *Client) BaseURL() string { return c.base }

// SetUserID sets the user id sent with progress requests.
func (c *Client) SetUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

// SyncSession posts the session snapshot.
func (c *Client) SyncSession(ctx context.Context, d session.Data) error {
	return c.post(ctx, PathSession, d)
}

// BeaconSession posts the snapshot in the background without reporting the
// outcome. Use Wait to drain pending beacons before exit.
func (c *Client) BeaconSession(d session.Data) {
	c.beacon(PathSession, d)
}

// SendEvents posts a batch of events.
func (c *Client) SendEvents(ctx context.Context, batch []events.Event) error {
	return c.post(ctx, PathInteractions, InteractionsRequest{Events: batch})
}

// BeaconEvents posts a batch in the background without reporting the outcome.
func (c *Client) BeaconEvents(batch []events.Event) {
	c.beacon(PathInteractions, InteractionsRequest{Events: batch})
}

// GetProgress fetches the user's progress on one content item.
func (c *Client) GetProgress(ctx context.Context, contentID string, ct engagement.ContentType) (content.Progress, error) {
	q := url.Values{}
	q.Set("contentId", contentID)
	q.Set("contentType", string(ct))

	var out content.Progress
	if err := c.do(ctx, http.MethodGet, PathProgress+"?"+q.Encode(), nil, &out); err != nil {
		return content.Progress{}, err
	}
	return out, nil
}

// UpdateProgress posts a progress update.
func (c *Client) UpdateProgress(ctx context.Context, u content.ProgressUpdate) error {
	return c.post(ctx, PathProgressUpdate, u)
}

// Health checks the collector's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, PathHealth, nil, nil)
}

// Wait blocks until pending beacons finish or ctx is done.
func (c *Client) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.beacons.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) beacon(path string, body any) {
	if !c.Enabled() {
		return
	}

	c.beacons.Add(1)
	go func() {
		defer c.beacons.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if err := c.post(ctx, path, body); err != nil {
			c.log.Debug().Err(err).Str("path", path).Msg("beacon failed")
		}
	}()
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.mu.RLock()
	if c.userID != "" {
		req.Header.Set(HeaderUserID, c.userID)
	}
	c.mu.RUnlock()

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("collector request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

var (
	_ session.Syncer         = (*Client)(nil)
	_ events.Sender          = (*Client)(nil)
	_ content.ProgressClient = (*Client)(nil)
)
