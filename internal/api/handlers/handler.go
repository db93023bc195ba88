// handler.go — общие типы и вспомогательные функции обработчиков gateway.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bigkaa/wonbawon-admin/internal/authprovider"
	"github.com/bigkaa/wonbawon-admin/internal/dataprovider"
	"github.com/bigkaa/wonbawon-admin/internal/record"
	"github.com/bigkaa/wonbawon-admin/internal/resource"
	"github.com/bigkaa/wonbawon-admin/internal/session"
)

// maxBodyBytes — максимальный размер тела запроса.
const maxBodyBytes = 1 << 20

// Auth — операции провайдера аутентификации (authprovider.Provider).
type Auth interface {
	Login(ctx context.Context, creds authprovider.Credentials) (*session.Session, error)
	Logout(ctx context.Context) error
	CheckAuth(ctx context.Context) error
	CheckError(ctx context.Context, err error) error
	GetIdentity(ctx context.Context) (*authprovider.Identity, error)
	GetPermissions(ctx context.Context) (string, error)
}

// Resources — операции data provider (dataprovider.Provider).
type Resources interface {
	GetList(ctx context.Context, resourceName string, params resource.ListParams) (*dataprovider.ListResult, error)
	GetOne(ctx context.Context, resourceName, id string) (record.Record, error)
	GetMany(ctx context.Context, resourceName string, ids []string) ([]record.Record, error)
	GetManyReference(ctx context.Context, resourceName string, params dataprovider.ReferenceParams) (*dataprovider.ListResult, error)
	Create(ctx context.Context, resourceName string, data map[string]any) (record.Record, error)
	Update(ctx context.Context, resourceName string, params dataprovider.UpdateParams) (record.Record, error)
	UpdateMany(ctx context.Context, resourceName string, ids []string, data map[string]any) ([]string, error)
	Delete(ctx context.Context, resourceName, id string, previousData map[string]any) (record.Record, error)
	DeleteMany(ctx context.Context, resourceName string, ids []string) ([]string, error)
}

// dataResponse — ответ с данными в формате admin UI.
type dataResponse struct {
	Data any `json:"data"`
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeBody декодирует JSON-тело запроса, сохраняя числа как json.Number.
// Пустое тело — не ошибка, dst остаётся нулевым.
func decodeBody(r *http.Request, dst any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("чтение тела запроса: %w", err)
	}
	if len(data) > maxBodyBytes {
		return fmt.Errorf("тело запроса больше %d байт", maxBodyBytes)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("некорректный JSON: %w", err)
	}
	return nil
}

// decodeJSONString декодирует JSON из строки (параметр query).
func decodeJSONString(s string, dst any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	return dec.Decode(dst)
}
