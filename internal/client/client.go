// Package client talks to the applytrack HTTP API and keeps an optimistic
// board of the caller's applications.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/applytrack/internal/db"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidStatus = errors.New("invalid status")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrConflict      = errors.New("request already in progress")
)

// APIError is a decoded problem+json response.
type APIError struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

// Unwrap maps the status code to a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusUnprocessableEntity:
		return ErrInvalidStatus
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

type Config struct {
	BaseURL string
	UserID  int64
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	userID     int64
	httpClient *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userID:     cfg.UserID,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Transition moves an application to status. idempotencyKey may be empty.
func (c *Client) Transition(ctx context.Context, id int64, status db.Status, idempotencyKey string) (*db.Application, error) {
	var app db.Application
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	err := c.do(ctx, http.MethodPut, "/applications/"+strconv.FormatInt(id, 10), map[string]db.Status{"status": status}, headers, &app)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// ListApplications returns the caller's applications, oldest first.
func (c *Client) ListApplications(ctx context.Context) ([]db.Application, error) {
	var resp struct {
		Data []db.Application `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/applications", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListNotifications returns one page of the caller's notifications,
// newest first.
func (c *Client) ListNotifications(ctx context.Context, unreadOnly bool, limit, offset int) ([]db.Notification, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Data []db.Notification `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications/unread-count", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) MarkRead(ctx context.Context, id uuid.UUID) (*db.Notification, error) {
	var notif db.Notification
	if err := c.do(ctx, http.MethodPut, "/notifications/"+id.String()+"/read", nil, nil, &notif); err != nil {
		return nil, err
	}
	return &notif, nil
}

func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (c *Client) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/notifications/"+id.String(), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-User-ID", strconv.FormatInt(c.userID, 10))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/problem+json") {
			_ = json.NewDecoder(resp.Body).Decode(apiErr)
			apiErr.Status = resp.StatusCode
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
