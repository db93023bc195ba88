package authprovider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/wonbawon-admin/internal/apiclient"
	"github.com/bigkaa/wonbawon-admin/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []apiclient.Request
	routes   map[string]func(req apiclient.Request) (any, error)
}

func (f *fakeBackend) DoWithRetry(_ context.Context, req apiclient.Request) (any, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handler := f.routes[req.Method+" "+req.Path]
	f.mu.Unlock()
	if handler == nil {
		return nil, &apiclient.APIError{Status: http.StatusNotFound, StatusText: "Not Found"}
	}
	return handler(req)
}

func (f *fakeBackend) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func jsonBody(s string) func(apiclient.Request) (any, error) {
	return func(apiclient.Request) (any, error) {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func newTestProvider(routes map[string]func(apiclient.Request) (any, error)) (*Provider, *session.MapStorage, *fakeBackend) {
	st := session.NewMapStorage(nil)
	backend := &fakeBackend{routes: routes}
	return New(backend, session.NewStore(st, testLogger()), testLogger()), st, backend
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

// loggedIn заполняет хранилище сессией администратора.
func loggedIn(t *testing.T, p *Provider, access, refresh string) {
	t.Helper()
	ctx := context.Background()
	p.store.SetTokens(ctx, access, refresh)
	require.NoError(t, p.store.Save(ctx, &session.Session{UserID: 7, Nickname: "X", Role: session.RoleAdmin}))
}

var adminCreds = Credentials{Username: "a@b.com", Password: "pw"}

// --- Login ---

func TestLogin_Admin(t *testing.T) {
	p, _, backend := newTestProvider(map[string]func(apiclient.Request) (any, error){
		"POST /users/sign-in": jsonBody(`{"accessToken":"t1","refreshToken":"r1"}`),
		"GET /users":          jsonBody(`{"user":{"role":"ADMIN","nickname":"X","userId":7}}`),
	})
	ctx := context.Background()

	sess, err := p.Login(ctx, adminCreds)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sess.UserID)
	assert.Equal(t, "X", sess.Nickname)
	assert.Equal(t, "a@b.com", sess.Email, "email из формы, если backend его не вернул")

	assert.Equal(t, "t1", p.store.AccessToken(ctx))
	assert.Equal(t, "r1", p.store.RefreshToken(ctx))
	assert.NoError(t, p.CheckAuth(ctx))
	assert.Equal(t, StateLoggedIn, p.State(ctx))

	backend.mu.Lock()
	signIn := backend.requests[0]
	whoAmI := backend.requests[1]
	backend.mu.Unlock()
	assert.False(t, signIn.RequiresAuth, "sign-in без токена")
	assert.Equal(t, map[string]any{"email": "a@b.com", "password": "pw", "fcmToken": "admin-dashboard"}, signIn.Body)
	assert.True(t, whoAmI.RequiresAuth)
}

func TestLogin_NonAdminRejected(t *testing.T) {
	p, st, _ := newTestProvider(map[string]func(apiclient.Request) (any, error){
		"POST /users/sign-in": jsonBody(`{"accessToken":"t1"}`),
		"GET /users":          jsonBody(`{"user":{"role":"GENERAL","nickname":"Y","userId":8}}`),
	})
	ctx := context.Background()

	_, err := p.Login(ctx, adminCreds)
	require.Error(t, err)
	assert.Equal(t, ErrNotAdmin.Error(), err.Error())
	assert.ErrorIs(t, err, ErrNotAdmin)

	assert.Equal(t, 0, st.Len(), "токен попытки входа удалён")
	assert.ErrorIs(t, p.CheckAuth(ctx), ErrNotAuthenticated)
}

func TestLogin_UserEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		wantID int64
	}{
		{"data.user", `{"success":true,"data":{"user":{"role":"ADMIN","userId":"11"}}}`, 11},
		{"data", `{"data":{"role":"ADMIN","id":12,"nickname":"n"}}`, 12},
		{"корень", `{"role":"ADMIN","userId":13}`, 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, _ := newTestProvider(map[string]func(apiclient.Request) (any, error){
				"POST /users/sign-in": jsonBody(`{"data":{"accessToken":"t1"}}`),
				"GET /users":          jsonBody(tt.body),
			})
			sess, err := p.Login(context.Background(), adminCreds)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, sess.UserID)
		})
	}
}

func TestLogin_BackendMessageSurfaced(t *testing.T) {
	p, st, _ := newTestProvider(map[string]func(apiclient.Request) (any, error){
		"POST /users/sign-in": func(apiclient.Request) (any, error) {
			return nil, &apiclient.APIError{
				Status: http.StatusBadRequest,
				Body:   map[string]any{"message": "존재하지 않는 회원입니다."},
			}
		},
	})

	_, err := p.Login(context.Background(), adminCreds)
	require.Error(t, err)
	assert.Equal(t, "존재하지 않는 회원입니다.", err.Error())
	assert.Equal(t, 0, st.Len())
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		signIn  func(apiclient.Request) (any, error)
		wantMsg string
	}{
		{
			name:    "некорректный email",
			creds:   Credentials{Username: "not-an-email", Password: "pw"},
			wantMsg: "이메일과 비밀번호를 확인해주세요.",
		},
		{
			name:    "пустой пароль",
			creds:   Credentials{Username: "a@b.com"},
			wantMsg: "이메일과 비밀번호를 확인해주세요.",
		},
		{
			name:  "неверные данные",
			creds: adminCreds,
			signIn: func(apiclient.Request) (any, error) {
				return nil, &apiclient.APIError{Status: http.StatusUnauthorized}
			},
			wantMsg: "이메일 또는 비밀번호가 올바르지 않습니다.",
		},
		{
			name:  "backend недоступен",
			creds: adminCreds,
			signIn: func(apiclient.Request) (any, error) {
				return nil, apiclient.ErrNetwork
			},
			wantMsg: "서버에 연결할 수 없습니다.",
		},
		{
			name:    "нет токена в ответе",
			creds:   adminCreds,
			signIn:  jsonBody(`{}`),
			wantMsg: ErrLoginFailed.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, st, backend := newTestProvider(map[string]func(apiclient.Request) (any, error){
				"POST /users/sign-in": tt.signIn,
			})
			if tt.signIn == nil {
				delete(backend.routes, "POST /users/sign-in")
			}
			_, err := p.Login(context.Background(), tt.creds)
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, 0, st.Len())
		})
	}
}

func TestLogin_WhoAmIFailureClearsToken(t *testing.T) {
	p, st, _ := newTestProvider(map[string]func(apiclient.Request) (any, error){
		"POST /users/sign-in": jsonBody(`{"accessToken":"t1"}`),
		"GET /users": func(apiclient.Request) (any, error) {
			return nil, &apiclient.APIError{Status: http.StatusInternalServerError}
		},
	})

	_, err := p.Login(context.Background(), adminCreds)
	require.Error(t, err)
	assert.Equal(t, 0, st.Len())
}

// --- CheckAuth ---

func TestCheckAuth_RequiresAllParts(t *testing.T) {
	adminUser := `{"id":7,"role":"ADMIN"}`
	tests := []struct {
		name    string
		values  map[string]string
		wantErr bool
	}{
		{"всё на месте", map[string]string{session.KeyLoggedIn: "true", session.KeyToken: "t", session.KeyUser: adminUser}, false},
		{"нет флага", map[string]string{session.KeyToken: "t", session.KeyUser: adminUser}, true},
		{"нет токена", map[string]string{session.KeyLoggedIn: "true", session.KeyUser: adminUser}, true},
		{"нет сессии", map[string]string{session.KeyLoggedIn: "true", session.KeyToken: "t"}, true},
		{"роль не ADMIN", map[string]string{session.KeyLoggedIn: "true", session.KeyToken: "t", session.KeyUser: `{"id":7,"role":"GENERAL"}`}, true},
		{"флаг не true", map[string]string{session.KeyLoggedIn: "false", session.KeyToken: "t", session.KeyUser: adminUser}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := session.NewMapStorage(tt.values)
			p := New(&fakeBackend{}, session.NewStore(st, testLogger()), testLogger())
			err := p.CheckAuth(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotAuthenticated)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckAuth_ExpiredTokenRefreshed(t *testing.T) {
	fresh := "fresh-token"
	p, _, backend := newTestProvider(map[string]func(apiclient.Request) (any, error){
		"POST /users/reissue": jsonBody(`{"accessToken":"` + fresh + `","refreshToken":"r2"}`),
	})
	ctx := context.Background()
	loggedIn(t, p, signedToken(t, time.Now().Add(-time.Minute)), "r1")

	assert.Equal(t, StateTokenExpired, p.State(ctx))
	require.NoError(t, p.CheckAuth(ctx))
	assert.Equal(t, fresh, p.store.AccessToken(ctx))
	assert.Equal(t, "r2", p.store.RefreshToken(ctx))
	assert.Equal(t, 1, backend.count(http.MethodPost, ReissuePath))
}

func TestCheckAuth_ValidJWT(t *testing.T) {
	p, _, backend := newTestProvider(nil)
	loggedIn(t, p, signedToken(t, time.Now().Add(time.Hour)), "r1")

	require.NoError(t, p.CheckAuth(context.Background()))
	assert.Zero(t, backend.count(http.MethodPost, ReissuePath))
}

func TestCheckAuth_ExpiredTokenRefreshFails(t *testing.T) {
	p, st, _ := newTestProvider(map[string]func(apiclient.Request) (any, error){
		"POST /users/reissue": func(apiclient.Request) (any, error) {
			return nil, &apiclient.APIError{Status: http.StatusUnauthorized}
		},
	})
	loggedIn(t, p, signedToken(t, time.Now().Add(-time.Minute)), "r1")

	assert.ErrorIs(t, p.CheckAuth(context.Background()), ErrNotAuthenticated)
	assert.Equal(t, 0, st.Len())
}

// --- CheckError ---

func TestCheckError_UnauthorizedRefreshSucceeds(t *testing.T) {
	p, _, backend := newTestProvider(map[string]func(apiclient.Request) (any, error){
		"POST /users/reissue": jsonBody(`{"accessToken":"t2"}`),
	})
	ctx := context.Background()
	loggedIn(t, p, "t1", "r1")

	err := p.CheckError(ctx, &apiclient.APIError{Status: http.StatusUnauthorized})
	assert.NoError(t, err)
	assert.Equal(t, "t2", p.store.AccessToken(ctx))
	assert.Equal(t, "r1", p.store.RefreshToken(ctx))

	backend.mu.Lock()
	reissue := backend.requests[0]
	backend.mu.Unlock()
	assert.True(t, reissue.WithCredentials)
	assert.Equal(t, map[string]any{"refreshToken": "r1"}, reissue.Body)
}

func TestCheckError_UnauthorizedRefreshFails(t *testing.T) {
	p, st, _ := newTestProvider(map[string]func(apiclient.Request) (any, error){
		"POST /users/reissue": func(apiclient.Request) (any, error) {
			return nil, &apiclient.APIError{Status: http.StatusUnauthorized}
		},
	})
	loggedIn(t, p, "t1", "r1")

	err := p.CheckError(context.Background(), &apiclient.APIError{Status: http.StatusUnauthorized})
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, http.StatusUnauthorized, redirect.Status)
	assert.Equal(t, LoginPage, redirect.RedirectTo)
	assert.True(t, redirect.LoggedOut)
	assert.Equal(t, 0, st.Len())
	assert.Equal(t, StateLoggedOut, p.State(context.Background()))
}

func TestCheckError_UnauthorizedWithoutRefreshToken(t *testing.T) {
	p, st, backend := newTestProvider(nil)
	loggedIn(t, p, "t1", "")

	err := p.CheckError(context.Background(), &apiclient.APIError{Status: http.StatusUnauthorized})
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.True(t, redirect.LoggedOut)
	assert.Equal(t, 0, st.Len())
	assert.Zero(t, backend.count(http.MethodPost, ReissuePath))
}

func TestCheckError_Forbidden(t *testing.T) {
	p, st, _ := newTestProvider(nil)
	loggedIn(t, p, "t1", "r1")
	before := st.Len()

	err := p.CheckError(context.Background(), &apiclient.APIError{Status: http.StatusForbidden})
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, http.StatusForbidden, redirect.Status)
	assert.False(t, redirect.LoggedOut)
	assert.Empty(t, redirect.RedirectTo)
	assert.Equal(t, before, st.Len(), "сессия сохраняется")
}

func TestCheckError_TransientErrors(t *testing.T) {
	p, _, _ := newTestProvider(nil)
	loggedIn(t, p, "t1", "r1")
	ctx := context.Background()

	assert.NoError(t, p.CheckError(ctx, &apiclient.APIError{Status: http.StatusBadGateway}))
	assert.NoError(t, p.CheckError(ctx, apiclient.ErrTimeout))
	assert.NoError(t, p.CheckAuth(ctx))
}

// --- Logout / Identity ---

func TestLogout_Idempotent(t *testing.T) {
	p, st, _ := newTestProvider(nil)
	loggedIn(t, p, "t1", "r1")
	ctx := context.Background()

	require.NoError(t, p.Logout(ctx))
	require.NoError(t, p.Logout(ctx))
	assert.Equal(t, 0, st.Len())
	assert.ErrorIs(t, p.CheckAuth(ctx), ErrNotAuthenticated)
}

func TestGetIdentityAndPermissions(t *testing.T) {
	p, _, _ := newTestProvider(nil)
	ctx := context.Background()

	_, err := p.GetIdentity(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated, "без сессии идентичность не выдумывается")
	_, err = p.GetPermissions(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	loggedIn(t, p, "t1", "r1")
	id, err := p.GetIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Identity{ID: 7, FullName: "X"}, id)

	role, err := p.GetPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.RoleAdmin, role)
}
