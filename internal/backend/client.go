// Package backend инкапсулирует HTTP-взаимодействие с бэкендом рационной программы.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

const maxResponseSize = 8 << 20

var (
	// ErrUnavailable возвращается при сетевой ошибке или некорректном ответе бэкенда.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrUnauthorized соответствует ответу 401: токен отсутствует, истёк или отозван.
	ErrUnauthorized = errors.New("backend: unauthorized")
)

// APIError описывает ответ бэкенда с кодом 4xx или 5xx.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string][]string

	raw json.RawMessage
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend: status %d: %s", e.StatusCode, e.Message)
}

// Is позволяет сопоставлять ответ 401 с ErrUnauthorized через errors.Is.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Validation сообщает, содержит ли ошибка сообщения по полям формы.
func (e *APIError) Validation() bool {
	return len(e.Fields) > 0
}

// Summary объединяет сообщение и все сообщения по полям в одну строку.
func (e *APIError) Summary() string {
	if len(e.Fields) == 0 {
		return e.Message
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msgs []string
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k]...)
	}
	return strings.Join(msgs, ", ")
}

// Client выполняет запросы к REST API бэкенда.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient создаёт клиент бэкенда с пулом соединений и таймаутом на запрос.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = timeout

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		logger:     logger,
	}
}

type envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Errors     json.RawMessage `json:"errors"`
}

type request struct {
	method      string
	path        string
	token       string
	body        io.Reader
	contentType string
	headers     map[string]string
}

// do выполняет запрос и возвращает разобранный конверт ответа.
// Возвращает *APIError или ошибку, обёрнутую над ErrUnavailable.
func (c *Client) do(ctx context.Context, r request) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: do request: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}

	c.logger.Debug("backend request",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode >= http.StatusBadRequest {
				return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			}
			return nil, fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
		}
	}

	status := resp.StatusCode
	if status < http.StatusBadRequest && !env.Success && env.StatusCode >= http.StatusBadRequest {
		status = env.StatusCode
	}

	if status >= http.StatusBadRequest {
		return nil, newAPIError(status, &env)
	}

	return &env, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, payload any, headers map[string]string) (*envelope, error) {
	r := request{
		method:  method,
		path:    path,
		token:   token,
		headers: headers,
	}

	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r.body = bytes.NewReader(body)
		r.contentType = "application/json"
	}

	return c.do(ctx, r)
}

func newAPIError(status int, env *envelope) *APIError {
	e := &APIError{
		StatusCode: status,
		Message:    env.Message,
		raw:        env.Errors,
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	if len(env.Errors) == 0 {
		return e
	}

	var fields map[string][]string
	if err := json.Unmarshal(env.Errors, &fields); err == nil {
		e.Fields = fields
		return e
	}

	var single map[string]string
	if err := json.Unmarshal(env.Errors, &single); err == nil {
		e.Fields = make(map[string][]string, len(single))
		for k, v := range single {
			e.Fields[k] = []string{v}
		}
	}

	return e
}

func decodeData(env *envelope, v any) error {
	if env == nil || isNull(env.Data) {
		return fmt.Errorf("%w: empty data", ErrUnavailable)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: decode data: %w", ErrUnavailable, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
