// cookie.go — хранение состояния сессии в зашифрованном cookie.
// Всё содержимое хранилища шифруется AES-256-GCM и кладётся в один cookie.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// CookieName — имя cookie с зашифрованным состоянием.
const CookieName = "wa_session"

// Backend загружает состояние сессии запроса и сохраняет изменения в ответ.
type Backend interface {
	Load(r *http.Request) *MapStorage
	Commit(w http.ResponseWriter, r *http.Request, st *MapStorage) error
}

// CookieBackend — состояние целиком в зашифрованном cookie.
type CookieBackend struct {
	gcm    cipher.AEAD
	secure bool
	maxAge time.Duration
	logger *slog.Logger
}

// NewCookieBackend создаёт backend с ключом шифрования.
// key — base64 32 байта или произвольная строка (хешируется SHA-256).
// Пустой key — случайный ключ, сессии не переживают рестарт.
func NewCookieBackend(key string, secure bool, maxAge time.Duration, logger *slog.Logger) (*CookieBackend, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			h := sha256.Sum256([]byte(key))
			keyBytes = h[:]
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &CookieBackend{
		gcm:    gcm,
		secure: secure,
		maxAge: maxAge,
		logger: logger.With(slog.String("component", "session_cookie")),
	}, nil
}

// Encrypt шифрует значения хранилища в base64-строку.
func (b *CookieBackend) Encrypt(values map[string]string) (string, error) {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	// nonce prepended к ciphertext
	ciphertext := b.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt дешифрует base64-строку обратно в значения хранилища.
func (b *CookieBackend) Decrypt(encrypted string) (map[string]string, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := b.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := b.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка дешифрования сессии: %w", err)
	}

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("ошибка десериализации сессии: %w", err)
	}
	return values, nil
}

// Load читает состояние из cookie запроса.
// Отсутствующий или повреждённый cookie даёт пустое хранилище.
func (b *CookieBackend) Load(r *http.Request) *MapStorage {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return NewMapStorage(nil)
	}
	values, err := b.Decrypt(cookie.Value)
	if err != nil {
		b.logger.Debug("Cookie сессии не расшифрован", slog.String("error", err.Error()))
		return NewMapStorage(nil)
	}
	return NewMapStorage(values)
}

// Commit записывает изменённое состояние в cookie ответа.
// Пустое состояние удаляет cookie.
func (b *CookieBackend) Commit(w http.ResponseWriter, _ *http.Request, st *MapStorage) error {
	if !st.Dirty() {
		return nil
	}
	if st.Len() == 0 {
		b.clear(w)
		return nil
	}

	encrypted, err := b.Encrypt(st.Snapshot())
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encrypted,
		Path:     "/",
		MaxAge:   int(b.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (b *CookieBackend) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
