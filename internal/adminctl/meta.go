// Пакет adminctl — консольный клиент admin API 원바원 (wa-adminctl).
//
// Использует те же провайдеры данных и аутентификации, что и gateway.
// Состояние входа хранится в JSON-файле (по умолчанию
// ~/.config/wa-adminctl/session.json) и переживает запуски.
package adminctl

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mitchellh/cli"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/bigkaa/wonbawon-admin/internal/apiclient"
	"github.com/bigkaa/wonbawon-admin/internal/authprovider"
	"github.com/bigkaa/wonbawon-admin/internal/dataprovider"
	"github.com/bigkaa/wonbawon-admin/internal/record"
	"github.com/bigkaa/wonbawon-admin/internal/resource"
	"github.com/bigkaa/wonbawon-admin/internal/session"
)

// Форматы вывода.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Meta — общие зависимости и флаги команд.
type Meta struct {
	UI     cli.Ui
	FS     afero.Fs
	Logger *slog.Logger
	// Getenv — источник переменных окружения; nil — os.Getenv.
	Getenv func(string) string

	flagAPI     string
	flagSession string
	flagFormat  string
	flagTimeout time.Duration
}

// providers — провайдеры, работающие через файл сессии.
type providers struct {
	data *dataprovider.Provider
	auth *authprovider.Provider
}

func (m *Meta) getenv(key string) string {
	if m.Getenv != nil {
		return m.Getenv(key)
	}
	return os.Getenv(key)
}

// FlagSet создаёт набор флагов команды с общими флагами -api, -session,
// -format и -timeout.
func (m *Meta) FlagSet(name string) *flag.FlagSet {
	f := flag.NewFlagSet(name, flag.ContinueOnError)
	f.SetOutput(io.Discard)

	f.StringVar(&m.flagAPI, "api", m.getenv("WA_API_BASE_URL"),
		"Базовый URL backend API (WA_API_BASE_URL).")
	f.StringVar(&m.flagSession, "session", m.defaultSessionPath(),
		"Путь к файлу сессии.")
	f.StringVar(&m.flagFormat, "format", FormatJSON,
		"Формат вывода: json или yaml.")
	f.DurationVar(&m.flagTimeout, "timeout", apiclient.DefaultTimeout,
		"Таймаут одного запроса к backend.")
	return f
}

// generalHelp — описание общих флагов для Help() команд.
const generalHelp = `

General Options:

  -api=<url>          Базовый URL backend API. По умолчанию WA_API_BASE_URL.
  -session=<path>     Файл сессии. По умолчанию ~/.config/wa-adminctl/session.json.
  -format=json|yaml   Формат вывода.
  -timeout=10s        Таймаут одного запроса к backend.`

func (m *Meta) defaultSessionPath() string {
	if p := m.getenv("WA_ADMINCTL_SESSION"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "wa-adminctl", "session.json")
}

// providers создаёт клиент backend и провайдеры после разбора флагов.
func (m *Meta) providers() (*providers, error) {
	if m.flagAPI == "" {
		return nil, errors.New("не задан URL backend API: флаг -api или WA_API_BASE_URL")
	}
	if m.flagFormat != FormatJSON && m.flagFormat != FormatYAML {
		return nil, fmt.Errorf("недопустимый формат %q, допустимые: json, yaml", m.flagFormat)
	}

	store := session.NewStore(session.NewFileStorage(m.FS, m.flagSession, m.Logger), m.Logger)
	client, err := apiclient.New(apiclient.Options{
		BaseURL:    m.flagAPI,
		Timeout:    m.flagTimeout,
		MaxRetries: apiclient.DefaultMaxRetries,
		Tokens:     store,
	}, m.Logger)
	if err != nil {
		return nil, err
	}

	return &providers{
		data: dataprovider.New(client, resource.Default(), record.NewNormalizer(m.Logger), m.Logger),
		auth: authprovider.New(client, store, m.Logger),
	}, nil
}

// output печатает значение в выбранном формате.
func (m *Meta) output(v any) error {
	var (
		data []byte
		err  error
	)
	switch m.flagFormat {
	case FormatYAML:
		data, err = yaml.Marshal(plain(v))
	default:
		data, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("ошибка сериализации вывода: %w", err)
	}
	m.UI.Output(string(data))
	return nil
}

// plain приводит значение к типам, которые yaml печатает без кавычек:
// json.Number → int64 или float64, record.Record → map[string]any.
func plain(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(string(val), 64); err == nil {
			return f
		}
		return string(val)
	case record.Record:
		return plain(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = plain(item)
		}
		return out
	case []record.Record:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	default:
		// Структуры печатаются через JSON-представление.
		data, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var generic any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&generic); err != nil {
			return val
		}
		if _, isStruct := generic.(map[string]any); isStruct {
			return plain(generic)
		}
		return val
	}
}

// fail печатает ошибку и возвращает код выхода 1.
func (m *Meta) fail(err error) int {
	m.UI.Error(err.Error())
	return 1
}
