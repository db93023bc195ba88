package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RoleAdmin — единственная роль, которой разрешён вход в admin-панель.
const RoleAdmin = "ADMIN"

var (
	// ErrNoSession — сохранённой сессии нет или она недействительна.
	ErrNoSession = errors.New("сессия отсутствует")
	// ErrNotAdmin — попытка сохранить сессию пользователя без роли ADMIN.
	ErrNotAdmin = errors.New("роль пользователя не ADMIN")
)

// Session — данные вошедшего администратора.
type Session struct {
	UserID    int64     `json:"id"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsAdmin — сессия принадлежит администратору.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}

type storageKey struct{}

// WithStorage привязывает хранилище к контексту запроса.
func WithStorage(ctx context.Context, st Storage) context.Context {
	return context.WithValue(ctx, storageKey{}, st)
}

// StorageFromContext возвращает хранилище запроса или nil.
func StorageFromContext(ctx context.Context) Storage {
	st, _ := ctx.Value(storageKey{}).(Storage)
	return st
}

// Store — типизированный доступ к состоянию аутентификации.
type Store struct {
	fallback Storage
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore создаёт Store. fallback используется, когда в контексте нет
// хранилища запроса (CLI, фоновые вызовы); nil — пустое хранилище в памяти.
func NewStore(fallback Storage, logger *slog.Logger) *Store {
	if fallback == nil {
		fallback = NewMapStorage(nil)
	}
	return &Store{
		fallback: fallback,
		logger:   logger.With(slog.String("component", "session_store")),
		now:      time.Now,
	}
}

func (s *Store) storage(ctx context.Context) Storage {
	if st := StorageFromContext(ctx); st != nil {
		return st
	}
	return s.fallback
}

// AccessToken возвращает access token или "".
func (s *Store) AccessToken(ctx context.Context) string {
	v, _ := s.storage(ctx).Get(KeyToken)
	return v
}

// RefreshToken возвращает refresh token или "".
func (s *Store) RefreshToken(ctx context.Context) string {
	v, _ := s.storage(ctx).Get(KeyRefreshToken)
	return v
}

// SetTokens сохраняет токены; пустой refresh token не перезаписывает существующий.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) {
	st := s.storage(ctx)
	if access != "" {
		st.Set(KeyToken, access)
	}
	if refresh != "" {
		st.Set(KeyRefreshToken, refresh)
	}
}

// LoggedIn — установлен флаг входа.
func (s *Store) LoggedIn(ctx context.Context) bool {
	v, _ := s.storage(ctx).Get(KeyLoggedIn)
	return v == "true"
}

// Save сохраняет сессию администратора и флаг входа.
// Сессия с ролью, отличной от ADMIN, не сохраняется.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if !sess.IsAdmin() {
		return ErrNotAdmin
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now().UTC()
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("сериализация сессии: %w", err)
	}
	st := s.storage(ctx)
	st.Set(KeyUser, string(data))
	st.Set(KeyLoggedIn, "true")
	return nil
}

// Get возвращает сохранённую сессию.
// Повреждённая сессия или сессия без роли ADMIN удаляется целиком.
func (s *Store) Get(ctx context.Context) (*Session, error) {
	raw, ok := s.storage(ctx).Get(KeyUser)
	if !ok || raw == "" {
		return nil, ErrNoSession
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		s.logger.Warn("Повреждённая сессия удалена", slog.String("error", err.Error()))
		s.Clear(ctx)
		return nil, ErrNoSession
	}
	if !sess.IsAdmin() {
		s.logger.Warn("Сессия без роли ADMIN удалена",
			slog.Int64("user_id", sess.UserID),
			slog.String("role", sess.Role),
		)
		s.Clear(ctx)
		return nil, ErrNoSession
	}
	return &sess, nil
}

// Clear удаляет все ключи аутентификации.
func (s *Store) Clear(ctx context.Context) {
	st := s.storage(ctx)
	st.Remove(KeyToken)
	st.Remove(KeyRefreshToken)
	st.Remove(KeyUser)
	st.Remove(KeyLoggedIn)
}
