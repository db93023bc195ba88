package adminctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bigkaa/wonbawon-admin/internal/dataprovider"
	"github.com/bigkaa/wonbawon-admin/internal/record"
	"github.com/bigkaa/wonbawon-admin/internal/resource"
)

// ResourcesCommand — список известных ресурсов.
type ResourcesCommand struct {
	*Meta
}

func (c *ResourcesCommand) Synopsis() string {
	return "Показать ресурсы admin API"
}

func (c *ResourcesCommand) Help() string {
	return strings.TrimSpace(`
Usage: wa-adminctl resources

  Печатает имена ресурсов, доступных командам list, get и delete.
  Для ресурсов, список которых строится от родителя, указан параметр
  фильтра, например: comments (필터 postId 필요).`)
}

func (c *ResourcesCommand) Run(_ []string) int {
	registry := resource.Default()
	for _, name := range registry.Names() {
		d := registry.Lookup(name)
		if d.RequiresParent() {
			c.UI.Output(fmt.Sprintf("%s (필터 %s 필요)", name, d.Parent.Param))
			continue
		}
		c.UI.Output(name)
	}
	return 0
}

// ListCommand — страница списка ресурса.
type ListCommand struct {
	*Meta

	flagPage    int
	flagPerPage int
	flagSort    string
	flagOrder   string
	flagFilter  string
	flagTarget  string
	flagID      string
}

func (c *ListCommand) Synopsis() string {
	return "Показать страницу списка ресурса"
}

func (c *ListCommand) Help() string {
	return strings.TrimSpace(`
Usage: wa-adminctl list [options] <resource>

  Печатает страницу записей ресурса.

Options:

  -page=1             Номер страницы, с 1.
  -per-page=10        Размер страницы.
  -sort=<field>       Поле сортировки.
  -order=ASC|DESC     Направление сортировки.
  -filter=<json>      Фильтр, JSON-объект, например {"kindergartenId":5}.
  -target=<field>     Поле ссылки для списка по родителю (с -id).
  -id=<id>            Идентификатор родителя для -target.`) + generalHelp
}

func (c *ListCommand) Run(args []string) int {
	f := c.FlagSet("list")
	f.IntVar(&c.flagPage, "page", 1, "")
	f.IntVar(&c.flagPerPage, "per-page", 10, "")
	f.StringVar(&c.flagSort, "sort", "", "")
	f.StringVar(&c.flagOrder, "order", "", "")
	f.StringVar(&c.flagFilter, "filter", "", "")
	f.StringVar(&c.flagTarget, "target", "", "")
	f.StringVar(&c.flagID, "id", "", "")
	if err := f.Parse(args); err != nil {
		return c.fail(err)
	}
	if f.NArg() != 1 {
		return c.fail(errors.New("укажите один ресурс, например: wa-adminctl list users"))
	}
	if c.flagPage < 1 || c.flagPerPage < 1 {
		return c.fail(errors.New("-page и -per-page должны быть >= 1"))
	}
	if (c.flagTarget == "") != (c.flagID == "") {
		return c.fail(errors.New("-target и -id задаются вместе"))
	}
	name := f.Arg(0)

	params := resource.ListParams{
		Page:    c.flagPage,
		PerPage: c.flagPerPage,
		Sort:    resource.Sort{Field: c.flagSort, Order: strings.ToUpper(c.flagOrder)},
	}
	if c.flagFilter != "" {
		filter, err := parseFilter(c.flagFilter)
		if err != nil {
			return c.fail(err)
		}
		params.Filter = filter
	}

	p, err := c.providers()
	if err != nil {
		return c.fail(err)
	}

	res, err := withAuth(context.Background(), p, func(ctx context.Context) (*dataprovider.ListResult, error) {
		if c.flagTarget != "" {
			return p.data.GetManyReference(ctx, name, dataprovider.ReferenceParams{
				ListParams: params,
				Target:     c.flagTarget,
				ID:         c.flagID,
			})
		}
		return p.data.GetList(ctx, name, params)
	})
	if err != nil {
		return c.fail(err)
	}
	if err := c.output(res); err != nil {
		return c.fail(err)
	}
	return 0
}

// GetCommand — одна или несколько записей по id.
type GetCommand struct {
	*Meta
}

func (c *GetCommand) Synopsis() string {
	return "Показать записи ресурса по id"
}

func (c *GetCommand) Help() string {
	return strings.TrimSpace(`
Usage: wa-adminctl get [options] <resource> <id> [<id>...]

  Печатает запись по id. Несколько id печатаются списком в порядке
  аргументов.`) + generalHelp
}

func (c *GetCommand) Run(args []string) int {
	f := c.FlagSet("get")
	if err := f.Parse(args); err != nil {
		return c.fail(err)
	}
	if f.NArg() < 2 {
		return c.fail(errors.New("укажите ресурс и хотя бы один id"))
	}
	name, ids := f.Arg(0), f.Args()[1:]

	p, err := c.providers()
	if err != nil {
		return c.fail(err)
	}

	var out any
	if len(ids) == 1 {
		out, err = withAuth(context.Background(), p, func(ctx context.Context) (record.Record, error) {
			return p.data.GetOne(ctx, name, ids[0])
		})
	} else {
		out, err = withAuth(context.Background(), p, func(ctx context.Context) ([]record.Record, error) {
			return p.data.GetMany(ctx, name, ids)
		})
	}
	if err != nil {
		return c.fail(err)
	}
	if err := c.output(out); err != nil {
		return c.fail(err)
	}
	return 0
}

// DeleteCommand — удаление записей по id.
type DeleteCommand struct {
	*Meta

	flagYes bool
}

func (c *DeleteCommand) Synopsis() string {
	return "Удалить записи ресурса"
}

func (c *DeleteCommand) Help() string {
	return strings.TrimSpace(`
Usage: wa-adminctl delete [options] <resource> <id> [<id>...]

  Удаляет записи. Несколько id удаляются параллельно; если хотя бы одно
  удаление не удалось, печатаются id с ошибкой и код выхода 1.

Options:

  -yes                Не спрашивать подтверждение.`) + generalHelp
}

func (c *DeleteCommand) Run(args []string) int {
	f := c.FlagSet("delete")
	f.BoolVar(&c.flagYes, "yes", false, "")
	if err := f.Parse(args); err != nil {
		return c.fail(err)
	}
	if f.NArg() < 2 {
		return c.fail(errors.New("укажите ресурс и хотя бы один id"))
	}
	name, ids := f.Arg(0), f.Args()[1:]

	if !c.flagYes {
		answer, err := c.UI.Ask(fmt.Sprintf("%s %s 삭제하시겠습니까? (y/N)", name, strings.Join(ids, ", ")))
		if err != nil {
			return c.fail(err)
		}
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			c.UI.Info("취소되었습니다.")
			return 0
		}
	}

	p, err := c.providers()
	if err != nil {
		return c.fail(err)
	}

	var out any
	if len(ids) == 1 {
		out, err = withAuth(context.Background(), p, func(ctx context.Context) (record.Record, error) {
			return p.data.Delete(ctx, name, ids[0], nil)
		})
	} else {
		out, err = withAuth(context.Background(), p, func(ctx context.Context) ([]string, error) {
			return p.data.DeleteMany(ctx, name, ids)
		})
	}
	if err != nil {
		var batchErr *dataprovider.BatchError
		if errors.As(err, &batchErr) {
			c.UI.Error("실패한 id: " + strings.Join(batchErr.FailedIDs, ", "))
		}
		return c.fail(err)
	}
	if err := c.output(out); err != nil {
		return c.fail(err)
	}
	return 0
}

// parseFilter разбирает JSON-объект фильтра, сохраняя числа как json.Number.
func parseFilter(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	filter := map[string]any{}
	if err := dec.Decode(&filter); err != nil {
		return nil, fmt.Errorf("-filter должен быть JSON-объектом: %w", err)
	}
	return filter, nil
}
