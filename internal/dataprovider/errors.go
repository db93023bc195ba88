package dataprovider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/bigkaa/wonbawon-admin/internal/apiclient"
)

// Сообщения для пользователя. Детали исходной ошибки пишутся в лог.
var (
	// ErrSessionExpired — backend ответил 401.
	ErrSessionExpired = errors.New("세션이 만료되었습니다. 다시 로그인해주세요.")
	// ErrNotSupported — у ресурса нет такой операции.
	ErrNotSupported = errors.New("지원하지 않는 작업입니다.")
	// ErrInvalidPayload — в данных обновления нет обязательного поля.
	ErrInvalidPayload = errors.New("요청 데이터가 올바르지 않습니다.")
)

// OperationError — ошибка операции над ресурсом.
// Error() возвращает сообщение для пользователя; исходная ошибка доступна через Unwrap.
type OperationError struct {
	Resource  string
	Operation string
	// Status — HTTP-статус backend или 0.
	Status  int
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	return e.Message
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is сопоставляет 401 с ErrSessionExpired.
func (e *OperationError) Is(target error) bool {
	return target == ErrSessionExpired && e.Status == 401
}

// BatchError — часть запросов пакетной операции завершилась ошибкой.
// Пакет считается неуспешным целиком.
type BatchError struct {
	FailedIDs []string
	Err       *multierror.Error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("пакетная операция: ошибки для id [%s]: %v",
		strings.Join(e.FailedIDs, ", "), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err.ErrorOrNil()
}

// userMessage выбирает сообщение для пользователя по исходной ошибке.
func userMessage(resourceName string, err error) string {
	switch {
	case apiclient.StatusOf(err) == 401:
		return ErrSessionExpired.Error()
	case errors.Is(err, ErrNotSupported):
		return fmt.Sprintf("%s: %s", resourceName, ErrNotSupported.Error())
	case errors.Is(err, ErrInvalidPayload):
		return fmt.Sprintf("%s: %s", resourceName, ErrInvalidPayload.Error())
	default:
		return fmt.Sprintf("%s 작업에 실패했습니다.", resourceName)
	}
}
