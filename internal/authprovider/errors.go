package authprovider

import (
	"errors"
	"fmt"
)

// Сообщения для пользователя.
var (
	// ErrNotAuthenticated — нет действительной сессии администратора.
	ErrNotAuthenticated = errors.New("로그인이 필요합니다.")
	// ErrNotAdmin — вход выполнен пользователем без роли ADMIN.
	ErrNotAdmin = errors.New("관리자 권한이 필요합니다.")
	// ErrLoginFailed — общий отказ входа, если backend не прислал сообщение.
	ErrLoginFailed = errors.New("로그인에 실패했습니다.")
	// ErrRefreshFailed — не удалось обновить access token.
	ErrRefreshFailed = errors.New("토큰 갱신에 실패했습니다.")
)

// LoginError — отказ входа. Message показывается пользователю как есть.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string {
	return e.Message
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// RedirectError — результат CheckError: UI должен отказать в доступе
// и, если RedirectTo не пуст, перейти на страницу входа.
type RedirectError struct {
	Status     int
	RedirectTo string
	// LoggedOut — сессия очищена.
	LoggedOut bool
}

func (e *RedirectError) Error() string {
	if e.RedirectTo != "" {
		return fmt.Sprintf("auth: статус %d, переход на %s", e.Status, e.RedirectTo)
	}
	return fmt.Sprintf("auth: статус %d, доступ запрещён", e.Status)
}
