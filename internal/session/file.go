// file.go — хранилище в JSON-файле для CLI (аналог localStorage между запусками).
package session

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// FileStorage — Storage поверх JSON-файла. Каждое изменение перезаписывает файл.
type FileStorage struct {
	mu     sync.Mutex
	fs     afero.Fs
	path   string
	logger *slog.Logger
}

// NewFileStorage создаёт хранилище в файле path файловой системы fs.
func NewFileStorage(fs afero.Fs, path string, logger *slog.Logger) *FileStorage {
	return &FileStorage{
		fs:     fs,
		path:   path,
		logger: logger.With(slog.String("component", "session_file")),
	}
}

// Get возвращает значение ключа.
func (f *FileStorage) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.load()[key]
	return v, ok
}

// Set записывает значение ключа.
func (f *FileStorage) Set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values := f.load()
	values[key] = value
	f.save(values)
}

// Remove удаляет ключ.
func (f *FileStorage) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values := f.load()
	if _, ok := values[key]; !ok {
		return
	}
	delete(values, key)
	f.save(values)
}

// Clear удаляет файл.
func (f *FileStorage) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fs.Remove(f.path); err != nil && !os.IsNotExist(err) {
		f.logger.Warn("Не удалось удалить файл сессии",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)
	}
}

func (f *FileStorage) load() map[string]string {
	values := map[string]string{}
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		return values
	}
	if err := json.Unmarshal(data, &values); err != nil {
		f.logger.Warn("Файл сессии повреждён, игнорируется",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)
		return map[string]string{}
	}
	return values
}

// save перезаписывает файл. Пустое состояние удаляет файл.
func (f *FileStorage) save(values map[string]string) {
	if len(values) == 0 {
		if err := f.fs.Remove(f.path); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("Не удалось удалить файл сессии",
				slog.String("path", f.path),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return
	}
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		f.logger.Warn("Не удалось создать каталог сессии", slog.String("error", err.Error()))
		return
	}
	if err := afero.WriteFile(f.fs, f.path, data, 0o600); err != nil {
		f.logger.Warn("Не удалось записать файл сессии",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)
	}
}
