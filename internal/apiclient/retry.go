// retry.go — повторы запросов с экспоненциальной задержкой.
//
// Задержка перед повтором i (с нуля) равна 2^i секунд, без jitter.
// Не повторяются:
//   - ответы 4xx (ошибка запроса, повтор бесполезен)
//   - POST и PATCH, если не включён RetryUnsafe (неидемпотентные операции)
//   - отмена родительского контекста
//
// После исчерпания попыток возвращается последняя ошибка без изменений.
package apiclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DoWithRetry выполняет запрос, повторяя его не более MaxRetries раз.
func (c *Client) DoWithRetry(ctx context.Context, req Request) (any, error) {
	var result any
	attempt := 0

	operation := func() error {
		attempt++
		v, err := c.Do(ctx, req)
		if err == nil {
			result = v
			return nil
		}
		if !c.shouldRetry(ctx, req, err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		backendRetriesTotal.WithLabelValues(req.Method).Inc()
		c.logger.Warn("Повтор запроса к backend",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponentialBackOff(c.maxRetries), uint64(c.maxRetries)),
		ctx,
	)
	if err := backoff.RetryNotifyWithTimer(operation, policy, notify, timer); err != nil {
		return nil, err
	}
	return result, nil
}

// shouldRetry решает, имеет ли смысл повторять попытку.
func (c *Client) shouldRetry(ctx context.Context, req Request, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsClientError() {
		return false
	}
	return c.retryable(req.Method)
}

// retryable — метод можно безопасно повторить.
func (c *Client) retryable(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	case http.MethodPost, http.MethodPatch:
		return c.retryUnsafe
	default:
		return false
	}
}

// newExponentialBackOff — 1s, 2s, 4s, ... без случайного разброса
// и без ограничения общего времени (число попыток ограничивает WithMaxRetries).
// MaxInterval не меньше последней задержки 2^(maxRetries-1) s; сдвиг
// ограничен 32, чтобы time.Duration не переполнился.
func newExponentialBackOff(maxRetries int) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = max(time.Minute, time.Second<<min(max(maxRetries, 0), 32))
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
