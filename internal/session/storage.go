// Пакет session — хранилище состояния аутентификации admin-панели.
//
// Состояние хранится как набор строковых ключей (семантика localStorage):
// access token, refresh token, JSON сессии пользователя и флаг входа.
// Имена ключей известны только этому пакету. Store создаётся один раз
// и используется и data provider, и auth provider; конкретное хранилище
// берётся из контекста запроса (WithStorage) или из хранилища по умолчанию.
package session

import (
	"sync"
)

// Ключи хранилища.
const (
	KeyToken        = "admin_token"
	KeyRefreshToken = "admin_refresh_token"
	KeyUser         = "admin_user"
	KeyLoggedIn     = "admin_logged_in"
)

// Storage — хранилище строковых ключей.
// Отдельные операции атомарны; последовательности Get→Set не защищены.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
	Clear()
}

// MapStorage — хранилище в памяти с отметкой об изменениях.
// Используется как состояние одного HTTP-запроса и как хранилище по умолчанию.
type MapStorage struct {
	mu     sync.RWMutex
	values map[string]string
	dirty  bool
}

// NewMapStorage создаёт хранилище с начальными значениями (копируются).
func NewMapStorage(initial map[string]string) *MapStorage {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &MapStorage{values: values}
}

// Get возвращает значение ключа.
func (m *MapStorage) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Set записывает значение ключа.
func (m *MapStorage) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.values[key]; ok && old == value {
		return
	}
	m.values[key] = value
	m.dirty = true
}

// Remove удаляет ключ.
func (m *MapStorage) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		delete(m.values, key)
		m.dirty = true
	}
}

// Clear удаляет все ключи.
func (m *MapStorage) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.values) > 0 {
		m.values = map[string]string{}
		m.dirty = true
	}
}

// Snapshot возвращает копию всех значений.
func (m *MapStorage) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Len — количество ключей.
func (m *MapStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Dirty — были ли изменения с момента создания.
func (m *MapStorage) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}
