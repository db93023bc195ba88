// Пакет authprovider — вход, выход и проверка сессии администратора.
//
// Состояние хранится в session.Store запроса; каждая операция выводит
// из него начальное состояние автомата (state.go) и проводит его через
// допустимые переходы. Сессия действительна, только если одновременно
// есть флаг входа, access token и сохранённый пользователь с ролью ADMIN.
package authprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/wonbawon-admin/internal/apiclient"
	"github.com/bigkaa/wonbawon-admin/internal/record"
	"github.com/bigkaa/wonbawon-admin/internal/session"
)

// Endpoints backend.
const (
	SignInPath  = "/users/sign-in"
	WhoAmIPath  = "/users"
	ReissuePath = "/users/reissue"

	// LoginPage — страница входа admin UI.
	LoginPage = "/login"

	// fcmToken — постоянное значение для входа из admin-панели (push не нужен).
	fcmToken = "admin-dashboard"
)

// Backend — выполнение запроса к backend API.
type Backend interface {
	DoWithRetry(ctx context.Context, req apiclient.Request) (any, error)
}

// Credentials — данные формы входа.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate проверяет формат данных входа.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.Required, is.EmailFormat),
		validation.Field(&c.Password, validation.Required),
	)
}

// Identity — отображаемые данные администратора.
type Identity struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
}

// whoAmI — профиль из ответа GET /users.
type whoAmI struct {
	UserID   int64  `mapstructure:"userId"`
	ID       int64  `mapstructure:"id"`
	Email    string `mapstructure:"email"`
	Nickname string `mapstructure:"nickname"`
	Role     string `mapstructure:"role"`
}

type tokenPair struct {
	access  string
	refresh string
}

// Provider — auth provider admin UI.
type Provider struct {
	api    Backend
	store  *session.Store
	logger *slog.Logger
	now    func() time.Time

	// refreshes объединяет одновременные обновления одного refresh token.
	refreshes singleflight.Group
}

// New создаёт auth provider.
func New(api Backend, store *session.Store, logger *slog.Logger) *Provider {
	return &Provider{
		api:    api,
		store:  store,
		logger: logger.With(slog.String("component", "auth_provider")),
		now:    time.Now,
	}
}

// State выводит состояние аутентификации из хранилища сессии.
// Неполное состояние (нет флага, токена или сессии ADMIN) — LoggedOut.
func (p *Provider) State(ctx context.Context) State {
	token := p.store.AccessToken(ctx)
	if !p.store.LoggedIn(ctx) || token == "" {
		return StateLoggedOut
	}
	if _, err := p.store.Get(ctx); err != nil {
		return StateLoggedOut
	}
	if p.tokenExpired(token) {
		return StateTokenExpired
	}
	return StateLoggedIn
}

// Login выполняет вход: sign-in, сохранение токенов, проверка роли
// через "who am I" и сохранение сессии. При любой ошибке состояние,
// записанное во время попытки, удаляется.
func (p *Provider) Login(ctx context.Context, creds Credentials) (*session.Session, error) {
	sm := p.machine(ctx)
	if sm.Current() != StateLoggedOut && sm.Current() != StateLoggedIn {
		p.store.Clear(ctx)
		_ = sm.TransitionTo(StateLoggedOut)
	}
	if err := sm.TransitionTo(StateLoggingIn); err != nil {
		return nil, err
	}
	p.store.Clear(ctx)

	sess, err := p.login(ctx, creds)
	if err != nil {
		p.store.Clear(ctx)
		_ = sm.TransitionTo(StateLoggedOut)
		p.logger.Warn("Вход не выполнен",
			slog.String("username", creds.Username),
			slog.String("error", errorDetail(err)),
		)
		return nil, err
	}

	_ = sm.TransitionTo(StateLoggedIn)
	p.logger.Info("Администратор вошёл",
		slog.Int64("user_id", sess.UserID),
		slog.String("email", sess.Email),
	)
	return sess, nil
}

func (p *Provider) login(ctx context.Context, creds Credentials) (*session.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, &LoginError{Message: "이메일과 비밀번호를 확인해주세요.", Err: err}
	}

	body, err := p.api.DoWithRetry(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   SignInPath,
		Body: map[string]any{
			"email":    creds.Username,
			"password": creds.Password,
			"fcmToken": fcmToken,
		},
	})
	if err != nil {
		return nil, loginError(err)
	}

	tokens := extractTokens(body)
	if tokens.access == "" {
		return nil, &LoginError{Message: ErrLoginFailed.Error(), Err: errors.New("в ответе sign-in нет accessToken")}
	}
	p.store.SetTokens(ctx, tokens.access, tokens.refresh)

	body, err = p.api.DoWithRetry(ctx, apiclient.Request{
		Method:       http.MethodGet,
		Path:         WhoAmIPath,
		RequiresAuth: true,
	})
	if err != nil {
		return nil, loginError(err)
	}

	user, err := decodeUser(body)
	if err != nil {
		return nil, &LoginError{Message: ErrLoginFailed.Error(), Err: err}
	}
	if user.Role != session.RoleAdmin {
		return nil, &LoginError{
			Message: ErrNotAdmin.Error(),
			Err:     fmt.Errorf("%w: роль %q", ErrNotAdmin, user.Role),
		}
	}

	id := user.UserID
	if id == 0 {
		id = user.ID
	}
	sess := &session.Session{
		UserID:   id,
		Email:    user.Email,
		Nickname: user.Nickname,
		Role:     user.Role,
	}
	if sess.Email == "" {
		sess.Email = creds.Username
	}
	if err := p.store.Save(ctx, sess); err != nil {
		return nil, &LoginError{Message: ErrLoginFailed.Error(), Err: err}
	}
	return sess, nil
}

// Logout удаляет всё состояние аутентификации. Повторный вызов безопасен.
func (p *Provider) Logout(ctx context.Context) error {
	sm := p.machine(ctx)
	if sm.Current() != StateLoggedOut {
		_ = sm.TransitionTo(StateLoggedOut)
		p.logger.Info("Администратор вышел")
	}
	p.store.Clear(ctx)
	return nil
}

// CheckAuth разрешает доступ к защищённым страницам.
// Просроченный access token обновляется один раз.
func (p *Provider) CheckAuth(ctx context.Context) error {
	switch p.State(ctx) {
	case StateLoggedIn:
		return nil
	case StateTokenExpired:
		sm, _ := NewMachine(StateTokenExpired)
		if err := p.refresh(ctx, sm); err != nil {
			return ErrNotAuthenticated
		}
		return nil
	default:
		return ErrNotAuthenticated
	}
}

// CheckError решает, что делать с ошибкой операции:
//   - 401 — одна попытка обновить токен; при неудаче сессия удаляется
//     и возвращается *RedirectError на страницу входа
//   - 403 — *RedirectError без выхода
//   - остальные ошибки не влияют на сессию (nil)
func (p *Provider) CheckError(ctx context.Context, err error) error {
	switch apiclient.StatusOf(err) {
	case http.StatusUnauthorized:
		sm := p.machine(ctx)
		if sm.Current() == StateLoggedIn {
			_ = sm.TransitionTo(StateTokenExpired)
		}
		if sm.Current() == StateTokenExpired {
			if refreshErr := p.refresh(ctx, sm); refreshErr == nil {
				return nil
			}
		} else {
			p.store.Clear(ctx)
		}
		return &RedirectError{Status: http.StatusUnauthorized, RedirectTo: LoginPage, LoggedOut: true}
	case http.StatusForbidden:
		return &RedirectError{Status: http.StatusForbidden}
	default:
		return nil
	}
}

// GetIdentity возвращает данные вошедшего администратора.
func (p *Provider) GetIdentity(ctx context.Context) (*Identity, error) {
	sess, err := p.store.Get(ctx)
	if err != nil {
		return nil, ErrNotAuthenticated
	}
	return &Identity{ID: sess.UserID, FullName: sess.Nickname, Email: sess.Email}, nil
}

// GetPermissions возвращает роль вошедшего администратора.
func (p *Provider) GetPermissions(ctx context.Context) (string, error) {
	sess, err := p.store.Get(ctx)
	if err != nil {
		return "", ErrNotAuthenticated
	}
	return sess.Role, nil
}

// refresh обменивает refresh token на новую пару токенов.
// Автомат должен быть в состоянии TokenExpired.
func (p *Provider) refresh(ctx context.Context, sm *Machine) error {
	if err := sm.TransitionTo(StateRefreshing); err != nil {
		return err
	}

	refreshToken := p.store.RefreshToken(ctx)
	if refreshToken == "" {
		p.store.Clear(ctx)
		_ = sm.TransitionTo(StateLoggedOut)
		p.logger.Warn("Refresh token отсутствует, сессия удалена")
		return ErrRefreshFailed
	}

	v, err, shared := p.refreshes.Do(refreshToken, func() (any, error) {
		body, err := p.api.DoWithRetry(ctx, apiclient.Request{
			Method:          http.MethodPost,
			Path:            ReissuePath,
			Body:            map[string]any{"refreshToken": refreshToken},
			WithCredentials: true,
		})
		if err != nil {
			return nil, err
		}
		tokens := extractTokens(body)
		if tokens.access == "" {
			return nil, errors.New("в ответе reissue нет accessToken")
		}
		return tokens, nil
	})
	if err != nil {
		p.store.Clear(ctx)
		_ = sm.TransitionTo(StateLoggedOut)
		p.logger.Warn("Не удалось обновить токен, сессия удалена",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	tokens := v.(tokenPair)
	p.store.SetTokens(ctx, tokens.access, tokens.refresh)
	_ = sm.TransitionTo(StateLoggedIn)
	p.logger.Info("Токен обновлён", slog.Bool("shared", shared))
	return nil
}

// machine создаёт автомат с состоянием, выведенным из хранилища.
func (p *Provider) machine(ctx context.Context) *Machine {
	sm, _ := NewMachine(p.State(ctx))
	return sm
}

// tokenExpired — access token является JWT с истёкшим exp.
// Подпись не проверяется: проверка токена — задача backend.
// Токен без exp или не-JWT считается действующим.
func (p *Provider) tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !p.now().Before(exp.Time)
}

// extractTokens ищет токены в корне ответа или в data.
func extractTokens(body any) tokenPair {
	obj, _ := body.(map[string]any)
	pair := tokenPair{
		access:  stringField(obj, "accessToken"),
		refresh: stringField(obj, "refreshToken"),
	}
	if data, ok := obj["data"].(map[string]any); ok {
		if pair.access == "" {
			pair.access = stringField(data, "accessToken")
		}
		if pair.refresh == "" {
			pair.refresh = stringField(data, "refreshToken")
		}
	}
	return pair
}

// decodeUser извлекает профиль из user, data.user, data или корня ответа.
func decodeUser(body any) (*whoAmI, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, errors.New("ответ who-am-I не является объектом")
	}

	raw := obj
	if user, ok := obj["user"].(map[string]any); ok {
		raw = user
	} else if data, ok := obj["data"].(map[string]any); ok {
		if user, ok := data["user"].(map[string]any); ok {
			raw = user
		} else {
			raw = data
		}
	}

	var user whoAmI
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &user,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("разбор профиля: %w", err)
	}
	return &user, nil
}

// loginError превращает ошибку backend в сообщение для формы входа.
// Сообщение backend показывается как есть.
func loginError(err error) error {
	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Message() != "":
		return &LoginError{Message: apiErr.Message(), Err: err}
	case errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest):
		return &LoginError{Message: "이메일 또는 비밀번호가 올바르지 않습니다.", Err: err}
	case errors.Is(err, apiclient.ErrTimeout), errors.Is(err, apiclient.ErrNetwork):
		return &LoginError{Message: "서버에 연결할 수 없습니다.", Err: err}
	default:
		return &LoginError{Message: ErrLoginFailed.Error(), Err: err}
	}
}

// errorDetail — текст исходной ошибки для лога.
func errorDetail(err error) string {
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}
	return err.Error()
}

func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	return record.IDString(obj[key])
}
