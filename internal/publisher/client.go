package publisher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/lingocast/internal/protocol"
	"github.com/ent0n29/lingocast/internal/reliability"
	"github.com/ent0n29/lingocast/internal/store"
)

const (
	defaultAttempts    = 4
	defaultBackoffBase = 200 * time.Millisecond
	defaultBackoffCap  = 3 * time.Second
)

// APIError is a non-2xx reply from the broadcast server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server status %d: %s", e.Status, e.Message)
}

// Client talks to a lingocast server on behalf of an operator or a listener.
type Client struct {
	baseURL     string
	http        *http.Client
	stream      *http.Client
	logger      *log.Logger
	attempts    int
	backoffBase time.Duration
	backoffCap  time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetry sets the attempt budget and backoff bounds for idempotent-safe
// failures (transport errors and retryable statuses).
func WithRetry(attempts int, base, cap time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.backoffBase = base
		c.backoffCap = cap
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:        &http.Client{Timeout: 15 * time.Second},
		stream:      &http.Client{},
		attempts:    defaultAttempts,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	c.logger = c.logger.WithPrefix("publisher")
	if c.attempts < 1 {
		c.attempts = 1
	}
	return c
}

func (c *Client) CreateSession(ctx context.Context, req protocol.CreateSessionRequest) (protocol.SessionResponse, error) {
	var out protocol.SessionResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", req, &out)
	return out, err
}

func (c *Client) EndSession(ctx context.Context, code string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(code), nil, nil)
}

func (c *Client) SetLanguage(ctx context.Context, code, lang string) error {
	return c.doJSON(ctx, http.MethodPut, "/v1/sessions/"+url.PathEscape(code)+"/lang", protocol.LanguageRequest{InputLang: lang}, nil)
}

func (c *Client) IngestText(ctx context.Context, code, text string) (protocol.IngestResponse, error) {
	var out protocol.IngestResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/ingest", protocol.IngestRequest{Code: code, Text: text}, &out)
	return out, err
}

// IngestAudio uploads one finished audio segment as a raw body.
func (c *Client) IngestAudio(ctx context.Context, code string, data []byte, contentType string) (protocol.IngestResponse, error) {
	var out protocol.IngestResponse
	path := "/v1/ingest/audio?code=" + url.QueryEscape(code)
	err := c.do(ctx, http.MethodPost, path, contentType, data, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	return c.do(ctx, method, path, "application/json", body, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, c.backoffBase, c.backoffCap)
			c.logger.Warn("retrying request", "method", method, "path", path, "attempt", attempt+1, "wait", wait, "err", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		retry, err := c.once(ctx, method, path, contentType, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path, contentType string, body []byte, out any) (bool, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return reliability.IsRetryableTransportError(err), fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return reliability.IsRetryableTransportError(err), fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return reliability.IsRetryableHTTPStatus(res.StatusCode), decodeAPIError(res.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}

func decodeAPIError(status int, raw []byte) error {
	var body struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return apiErr
	}
	// Ingest failures carry the code in error and the text in message.
	if body.Code == "" && body.Message != "" {
		apiErr.Code, apiErr.Message = body.Error, body.Message
		return apiErr
	}
	apiErr.Code, apiErr.Message = body.Code, body.Error
	return apiErr
}

// ErrStreamClosed is returned by Listen when the server closes the stream
// without sending an end event.
var ErrStreamClosed = errors.New("stream closed before end")

// Listen follows a session's SSE stream and hands each event to onEvent. It
// returns nil once the end event arrives.
func (c *Client) Listen(ctx context.Context, code string, kind store.Kind, onEvent func(protocol.Event) error) error {
	q := url.Values{"code": {code}}
	if kind != "" {
		q.Set("kind", string(kind))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/stream?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	res, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return decodeAPIError(res.StatusCode, raw)
	}
	return consumeEvents(res.Body, onEvent)
}

func consumeEvents(body io.Reader, onEvent func(protocol.Event) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		ev, err := protocol.ParseEvent([]byte(payload))
		if err != nil {
			continue
		}
		if onEvent != nil {
			if err := onEvent(ev); err != nil {
				return err
			}
		}
		if ev.Type == protocol.TypeEnd {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return ErrStreamClosed
}
