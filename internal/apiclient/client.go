// Пакет apiclient — HTTP-клиент к backend API сервиса 원바원.
// Один вызов Do — одна попытка с собственным таймаутом;
// DoWithRetry добавляет экспоненциальные повторы (retry.go).
// Ответ декодируется как JSON только при Content-Type application/json,
// пустой или не-JSON успешный ответ превращается в пустой объект.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultTimeout — таймаут одной попытки, если не задан ни в запросе, ни в Options.
const DefaultTimeout = 10 * time.Second

// DefaultMaxRetries — количество повторов после первой попытки.
const DefaultMaxRetries = 3

// TokenSource выдаёт access token текущей сессии.
// Пустая строка — токена нет, заголовок Authorization не ставится.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// TokenSourceFunc — адаптер функции к TokenSource.
type TokenSourceFunc func(ctx context.Context) string

// AccessToken реализует TokenSource.
func (f TokenSourceFunc) AccessToken(ctx context.Context) string {
	return f(ctx)
}

// Request — описание одного запроса к backend.
type Request struct {
	Method string
	// Path — путь относительно базового URL, начинается с "/".
	Path  string
	Query url.Values
	// Body сериализуется в JSON; nil — запрос без тела.
	Body any
	// RequiresAuth — добавить Authorization: Bearer <token>.
	RequiresAuth bool
	// WithCredentials — отправлять и принимать cookies (cookie jar клиента).
	WithCredentials bool
	// Timeout — таймаут попытки; 0 — таймаут клиента.
	Timeout time.Duration
}

// Options — параметры клиента.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	// RetryUnsafe разрешает повторы POST и PATCH.
	RetryUnsafe bool
	// HTTPClient — транспорт; nil — http.Client без собственного таймаута
	// (таймаут задаётся контекстом каждой попытки).
	HTTPClient *http.Client
	Tokens     TokenSource
	// NewTimer — фабрика таймеров ожидания между повторами (для тестов).
	NewTimer func() backoff.Timer
}

// Client — HTTP-клиент к backend API.
type Client struct {
	baseURL     string
	timeout     time.Duration
	maxRetries  int
	retryUnsafe bool

	httpClient *http.Client
	// credClient — тот же транспорт, но с cookie jar (credentials: include).
	credClient *http.Client
	tokens     TokenSource
	newTimer   func() backoff.Timer

	logger *slog.Logger
}

// New создаёт клиент к backend API.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("apiclient: базовый URL не задан")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("apiclient: некорректный базовый URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("apiclient: создание cookie jar: %w", err)
	}
	credClient := *httpClient
	credClient.Jar = jar

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		timeout:     opts.Timeout,
		maxRetries:  opts.MaxRetries,
		retryUnsafe: opts.RetryUnsafe,
		httpClient:  httpClient,
		credClient:  &credClient,
		tokens:      opts.Tokens,
		newTimer:    opts.NewTimer,
		logger:      logger.With(slog.String("component", "api_client")),
	}, nil
}

// BaseURL возвращает базовый URL backend.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do выполняет одну попытку запроса.
//
// Возвращает декодированное JSON-тело (числа как json.Number) или пустой объект
// для 204, пустого тела и не-JSON ответа. Ошибки:
//   - *APIError — статус вне 2xx
//   - ErrTimeout — попытка не уложилась в таймаут
//   - ErrNetwork — транспортная ошибка
//   - ошибка родительского контекста — вызов отменён снаружи
func (c *Client) Do(ctx context.Context, req Request) (any, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		reqURL += "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.RequiresAuth && c.tokens != nil {
		if token := c.tokens.AccessToken(ctx); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	client := c.httpClient
	if req.WithCredentials {
		client = c.credClient
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, req, timeout, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	backendRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, req, timeout, err)
	}
	backendRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
		}
		if isJSON(resp) && len(data) > 0 {
			if body, decErr := decodeJSON(data); decErr == nil {
				apiErr.Body = body
			}
		}
		c.logger.Debug("Backend вернул ошибку",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("status", resp.StatusCode),
		)
		return nil, apiErr
	}

	if resp.StatusCode == http.StatusNoContent || resp.ContentLength == 0 || len(data) == 0 {
		return map[string]any{}, nil
	}
	if !isJSON(resp) {
		return map[string]any{}, nil
	}

	body, err := decodeJSON(data)
	if err != nil {
		c.logger.Warn("Некорректный JSON в ответе backend",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)
		return map[string]any{}, nil
	}
	return body, nil
}

// transportError классифицирует ошибку транспорта.
// Отмена родительского контекста возвращается как есть.
func (c *Client) transportError(ctx, attemptCtx context.Context, req Request, timeout time.Duration, err error) error {
	if ctx.Err() != nil {
		backendRequestsTotal.WithLabelValues(req.Method, "canceled").Inc()
		return ctx.Err()
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		backendRequestsTotal.WithLabelValues(req.Method, "timeout").Inc()
		return fmt.Errorf("%w: %s %s (%s)", ErrTimeout, req.Method, req.Path, timeout)
	}
	backendRequestsTotal.WithLabelValues(req.Method, "network").Inc()
	return fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.Method, req.Path, err)
}

// decodeJSON декодирует тело, сохраняя числа как json.Number
// (идентификаторы backend — 64-битные целые).
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// isJSON проверяет Content-Type ответа.
func isJSON(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "application/json")
}

// statusText возвращает текст статуса без числового кода ("Not Found").
func statusText(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	text = strings.TrimSpace(text)
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
