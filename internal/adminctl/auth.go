package adminctl

import (
	"context"
	"strings"

	"github.com/bigkaa/wonbawon-admin/internal/authprovider"
)

// LoginCommand — вход администратора и сохранение токенов в файл сессии.
type LoginCommand struct {
	*Meta

	flagUsername string
	flagPassword string
}

func (c *LoginCommand) Synopsis() string {
	return "Вход администратора"
}

func (c *LoginCommand) Help() string {
	return strings.TrimSpace(`
Usage: wa-adminctl login -username=<email> [-password=<password>]

  Выполняет вход в admin API и сохраняет токены в файл сессии.
  Если пароль не задан флагом или WA_ADMIN_PASSWORD, он запрашивается
  с терминала.`) + generalHelp
}

func (c *LoginCommand) Run(args []string) int {
	f := c.FlagSet("login")
	f.StringVar(&c.flagUsername, "username", c.getenv("WA_ADMIN_USERNAME"), "Email администратора.")
	f.StringVar(&c.flagPassword, "password", c.getenv("WA_ADMIN_PASSWORD"), "Пароль.")
	if err := f.Parse(args); err != nil {
		return c.fail(err)
	}

	if c.flagPassword == "" {
		password, err := c.UI.AskSecret("비밀번호:")
		if err != nil {
			return c.fail(err)
		}
		c.flagPassword = password
	}

	p, err := c.providers()
	if err != nil {
		return c.fail(err)
	}

	ctx := context.Background()
	if _, err := p.auth.Login(ctx, authprovider.Credentials{
		Username: c.flagUsername,
		Password: c.flagPassword,
	}); err != nil {
		return c.fail(err)
	}

	identity, err := p.auth.GetIdentity(ctx)
	if err != nil {
		return c.fail(err)
	}
	c.UI.Info(identity.FullName + "님, 환영합니다.")
	return 0
}

// LogoutCommand — удаление файла сессии.
type LogoutCommand struct {
	*Meta
}

func (c *LogoutCommand) Synopsis() string {
	return "Выход и удаление сохранённой сессии"
}

func (c *LogoutCommand) Help() string {
	return strings.TrimSpace(`
Usage: wa-adminctl logout

  Удаляет сохранённые токены. Повторный вызов безопасен.`) + generalHelp
}

func (c *LogoutCommand) Run(args []string) int {
	if err := c.FlagSet("logout").Parse(args); err != nil {
		return c.fail(err)
	}
	p, err := c.providers()
	if err != nil {
		return c.fail(err)
	}
	_ = p.auth.Logout(context.Background())
	c.UI.Info("로그아웃되었습니다.")
	return 0
}

// WhoAmICommand — данные вошедшего администратора.
type WhoAmICommand struct {
	*Meta
}

func (c *WhoAmICommand) Synopsis() string {
	return "Показать вошедшего администратора"
}

func (c *WhoAmICommand) Help() string {
	return strings.TrimSpace(`
Usage: wa-adminctl whoami

  Проверяет сессию (при необходимости обновляет токен) и печатает
  данные администратора.`) + generalHelp
}

func (c *WhoAmICommand) Run(args []string) int {
	if err := c.FlagSet("whoami").Parse(args); err != nil {
		return c.fail(err)
	}
	p, err := c.providers()
	if err != nil {
		return c.fail(err)
	}

	ctx := context.Background()
	if err := p.auth.CheckAuth(ctx); err != nil {
		return c.fail(err)
	}
	identity, err := p.auth.GetIdentity(ctx)
	if err != nil {
		return c.fail(err)
	}
	if err := c.output(identity); err != nil {
		return c.fail(err)
	}
	return 0
}
