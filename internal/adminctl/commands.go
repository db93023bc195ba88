package adminctl

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/bigkaa/wonbawon-admin/internal/apiclient"
	"github.com/bigkaa/wonbawon-admin/internal/config"
)

// Commands возвращает фабрики команд wa-adminctl.
func Commands(meta *Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"login": func() (cli.Command, error) {
			return &LoginCommand{Meta: meta}, nil
		},
		"logout": func() (cli.Command, error) {
			return &LogoutCommand{Meta: meta}, nil
		},
		"whoami": func() (cli.Command, error) {
			return &WhoAmICommand{Meta: meta}, nil
		},
		"resources": func() (cli.Command, error) {
			return &ResourcesCommand{Meta: meta}, nil
		},
		"list": func() (cli.Command, error) {
			return &ListCommand{Meta: meta}, nil
		},
		"get": func() (cli.Command, error) {
			return &GetCommand{Meta: meta}, nil
		},
		"delete": func() (cli.Command, error) {
			return &DeleteCommand{Meta: meta}, nil
		},
	}
}

// Main запускает CLI с аргументами args и возвращает код выхода.
func Main(args []string) int {
	cliName := args[0]

	level := slog.LevelWarn
	if os.Getenv("WA_ADMINCTL_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if len(args) == 2 && (args[1] == "-version" || args[1] == "-v") {
		args = []string{cliName, "--version"}
	}

	meta := &Meta{
		UI: &cli.BasicUi{
			Reader:      bufio.NewReader(os.Stdin),
			Writer:      os.Stdout,
			ErrorWriter: os.Stderr,
		},
		FS:     afero.NewOsFs(),
		Logger: logger,
	}

	c := &cli.CLI{
		Name:     cliName,
		Args:     args[1:],
		Version:  config.Version,
		Commands: Commands(meta),
	}

	exitCode, err := c.Run()
	if err != nil {
		meta.UI.Error(err.Error())
		return 1
	}
	return exitCode
}

// withAuth выполняет операцию от имени сохранённой сессии.
// Просроченный access token обновляется до запроса; при 401 от backend
// токен обновляется и операция повторяется один раз.
func withAuth[T any](ctx context.Context, p *providers, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.auth.CheckAuth(ctx); err != nil {
		return zero, err
	}

	result, err := op(ctx)
	if err == nil {
		return result, nil
	}
	// Отказ CheckError означает, что сессия удалена; пользователь
	// видит исходное сообщение операции.
	if checkErr := p.auth.CheckError(ctx, err); checkErr != nil {
		return zero, err
	}
	if apiclient.StatusOf(err) != http.StatusUnauthorized {
		return zero, err
	}
	return op(ctx)
}
