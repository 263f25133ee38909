// Package backend is the JSON HTTP client used for every outbound call: the
// api process calling the external lead backend, and the dashboard calling
// the api process.
package backend

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

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout  = 8 * time.Second
	RequestIDHeader = "X-Request-ID"
	maxBodyBytes    = 16 << 20
)

var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx response. Message is the body's message or error
// field when it has one.
type StatusError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Err returns a *StatusError for non-2xx responses and nil otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{Status: r.Status, Message: Message(r.Body), Body: r.Body}
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  logrus.FieldLogger
}

func New(baseURL string, timeout time.Duration, logger logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Do sends a JSON request to path and reads the whole response. Only
// transport and encoding failures are returned as errors; callers decide what
// a non-2xx status means.
func (c *Client) Do(ctx context.Context, method, path string, payload any, bearer string) (*Response, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set(RequestIDHeader, requestID(ctx))
	if bearer = strings.TrimSpace(bearer); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method": method,
			"path":   path,
		}).Warn("backend request failed")
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.logger.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"duration":   time.Since(start).String(),
		"request_id": req.Header.Get(RequestIDHeader),
	}).Debug("backend request")
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// Fetch is Do followed by Err: the body is returned only for 2xx responses.
func (c *Client) Fetch(ctx context.Context, method, path string, payload any, bearer string) ([]byte, error) {
	resp, err := c.Do(ctx, method, path, payload, bearer)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// URL joins path onto the base URL. Absolute http(s) URLs pass through.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// requestID reuses the inbound chi request id so a dashboard render and the
// api calls it causes share one id.
func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// Message extracts the message (or error) field of a JSON body.
func Message(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	if msg, ok := payload.Error.(string); ok {
		return strings.TrimSpace(msg)
	}
	return ""
}
