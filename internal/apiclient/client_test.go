package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger создаёт логгер для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTimer — таймер без реального ожидания, запоминает запрошенные задержки.
type fakeTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 16)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Delays() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.delays...)
}

// newTestClient создаёт клиент к mock-серверу с фиктивным таймером.
func newTestClient(t *testing.T, baseURL string, timer *fakeTimer, tokens TokenSource) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:    baseURL,
		MaxRetries: 3,
		Tokens:     tokens,
		NewTimer:   func() backoff.Timer { return timer },
	}, testLogger())
	require.NoError(t, err)
	return c
}

func TestDo_DecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/users", r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("page"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"userId":9007199254740993}],"totalElements":1}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", newFakeTimer(), nil)
	got, err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/admin/users",
		Query:  map[string][]string{"page": {"0"}},
	})
	require.NoError(t, err)

	body := got.(map[string]any)
	items := body["content"].([]any)
	id := items[0].(map[string]any)["userId"]
	assert.Equal(t, json.Number("9007199254740993"), id, "64-битный id не должен терять точность")
}

func TestDo_BearerToken(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tokens := TokenSourceFunc(func(context.Context) string { return "tok-123" })
	c := newTestClient(t, srv.URL, newFakeTimer(), tokens)

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users", RequiresAuth: true})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth.Load())

	_, err = c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/users/sign-in"})
	require.NoError(t, err)
	assert.Equal(t, "", gotAuth.Load(), "без RequiresAuth заголовок не ставится")
}

func TestDo_EmptyAndNonJSONBodies(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "204 No Content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			},
		},
		{
			name: "пустое тело 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Content-Length", "0")
				w.WriteHeader(http.StatusOK)
			},
		},
		{
			name: "текстовый ответ",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				_, _ = w.Write([]byte("deleted"))
			},
		},
		{
			name: "битый JSON",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte("{broken"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := newTestClient(t, srv.URL, newFakeTimer(), nil)
			got, err := c.Do(context.Background(), Request{Method: http.MethodDelete, Path: "/x"})
			require.NoError(t, err)
			assert.Equal(t, map[string]any{}, got)
		})
	}
}

func TestDo_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NOT_FOUND","message":"유치원을 찾을 수 없습니다"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, newFakeTimer(), nil)
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/kindergarten/1"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "Not Found", apiErr.StatusText)
	assert.Equal(t, "유치원을 찾을 수 없습니다", apiErr.Message())
	assert.Equal(t, "API Error: 404 Not Found", apiErr.Error())
	assert.Equal(t, 404, StatusOf(err))
}

func TestDo_APIErrorNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, newFakeTimer(), nil)
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 502, apiErr.Status)
	assert.Nil(t, apiErr.Body, "не-JSON тело ошибки не декодируется")
}

func TestDo_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, newFakeTimer(), nil)
	_, err := c.Do(context.Background(), Request{
		Method:  http.MethodGet,
		Path:    "/slow",
		Timeout: 50 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDo_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, newFakeTimer(), nil)
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestDo_ParentContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, srv.URL, newFakeTimer(), nil)
	_, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_WithCredentialsKeepsCookies(t *testing.T) {
	var sawCookie atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/sign-in":
			http.SetCookie(w, &http.Cookie{Name: "refresh", Value: "r1", Path: "/"})
			w.WriteHeader(http.StatusNoContent)
		case "/users/reissue":
			if c, err := r.Cookie("refresh"); err == nil && c.Value == "r1" {
				sawCookie.Store(true)
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, newFakeTimer(), nil)
	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/users/sign-in", WithCredentials: true})
	require.NoError(t, err)
	_, err = c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/users/reissue", WithCredentials: true})
	require.NoError(t, err)

	assert.True(t, sawCookie.Load(), "cookie из ответа должен уйти в следующий запрос")
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{}, testLogger())
	assert.Error(t, err)
}

func TestStatusOf_NoAPIError(t *testing.T) {
	assert.Equal(t, 0, StatusOf(errors.New("x")))
	assert.Equal(t, 0, StatusOf(nil))
}
