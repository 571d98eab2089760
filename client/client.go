// Package client calls a replica's public HTTP API. Requests are retried on
// network errors and 5xx responses; a view POST that times out may therefore
// be counted twice, which the counter tolerates.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/Pappt04/Lilyoutube-server/query"
)

var ErrNotFound = errors.New("video not found")

// Config configures retries.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Timeout:    5 * time.Second,
	}
}

// Video mirrors GET /api/videos/:id.
type Video struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ViewsCount uint64 `json:"viewsCount"`
}

type Client struct {
	baseURL  string
	http     *http.Client
	executor failsafe.Executor[*http.Response]
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return resp == nil || resp.StatusCode >= http.StatusInternalServerError
}

// New creates a client for the replica at baseURL (host:port or a full URL).
//
//nolint:bodyclose // the type parameter is not a live response
func New(baseURL string, cfg Config) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(shouldRetry).
		Build()

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		executor: failsafe.With(retry),
	}
}

// do runs one request through the retry policy and returns the status and
// fully read body.
func (c *Client) do(ctx context.Context, method, path string) (int, []byte, error) {
	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		// Buffer the body so responses of discarded attempts are closed.
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, nil
	})
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

func checkStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("unexpected status %d: %s", status, strings.TrimSpace(string(body)))
	}
}

// RecordView posts one view.
func (c *Client) RecordView(ctx context.Context, videoID int64) error {
	status, body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/videos/%d/view", videoID))
	if err != nil {
		return err
	}
	return checkStatus(status, body)
}

// GetVideo returns a video with its current total.
func (c *Client) GetVideo(ctx context.Context, videoID int64) (Video, error) {
	var v Video
	status, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/videos/%d", videoID))
	if err != nil {
		return v, err
	}
	if err := checkStatus(status, body); err != nil {
		return v, err
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("decode video: %w", err)
	}
	return v, nil
}

// ReplicaTable returns every (video, replica) row the node knows of.
func (c *Client) ReplicaTable(ctx context.Context) ([]query.TableRow, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/videos/views/replica-table")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(status, body); err != nil {
		return nil, err
	}
	var rows []query.TableRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode replica table: %w", err)
	}
	return rows, nil
}
