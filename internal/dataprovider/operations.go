package dataprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/wonbawon-admin/internal/apiclient"
	"github.com/bigkaa/wonbawon-admin/internal/record"
	"github.com/bigkaa/wonbawon-admin/internal/resource"
)

// Имена операций для логов и метрик.
const (
	OpGetList          = "getList"
	OpGetOne           = "getOne"
	OpGetMany          = "getMany"
	OpGetManyReference = "getManyReference"
	OpCreate           = "create"
	OpUpdate           = "update"
	OpUpdateMany       = "updateMany"
	OpDelete           = "delete"
	OpDeleteMany       = "deleteMany"
)

// PlaceholderID — id записи-заглушки для списка без родительского фильтра.
const PlaceholderID = "placeholder"

// placeholderResult — список «ожидает обязательный фильтр»: одна запись-заглушка.
func placeholderResult() *ListResult {
	return &ListResult{
		Data:  []record.Record{{"id": PlaceholderID, "_isPlaceholder": true}},
		Total: 1,
	}
}

// GetList возвращает страницу списка ресурса.
// Для ресурсов с обязательным родителем без валидного id родителя
// возвращается запись-заглушка без запроса к backend.
func (p *Provider) GetList(ctx context.Context, resourceName string, params resource.ListParams) (*ListResult, error) {
	d := p.registry.Lookup(resourceName)
	res, err := p.list(ctx, d, params)
	if err != nil {
		return nil, p.fail(d, OpGetList, err)
	}
	p.ok(d, OpGetList)
	return res, nil
}

// GetManyReference — список с обязательным фильтром target = id.
func (p *Provider) GetManyReference(ctx context.Context, resourceName string, params ReferenceParams) (*ListResult, error) {
	d := p.registry.Lookup(resourceName)

	filter := make(map[string]any, len(params.Filter)+1)
	for k, v := range params.Filter {
		filter[k] = v
	}
	if params.Target != "" {
		filter[params.Target] = params.ID
	}
	listParams := params.ListParams
	listParams.Filter = filter

	res, err := p.list(ctx, d, listParams)
	if err != nil {
		return nil, p.fail(d, OpGetManyReference, err)
	}
	p.ok(d, OpGetManyReference)
	return res, nil
}

func (p *Provider) list(ctx context.Context, d *resource.Descriptor, params resource.ListParams) (*ListResult, error) {
	path := d.ListPathFor(params.Filter)
	if path == resource.PlaceholderPath {
		p.logger.Debug("Список без родительского фильтра, запрос не отправляется",
			"resource", d.Name,
		)
		return placeholderResult(), nil
	}

	body, err := p.api.DoWithRetry(ctx, apiclient.Request{
		Method:       http.MethodGet,
		Path:         path,
		Query:        resource.BuildListQuery(d, params),
		RequiresAuth: true,
	})
	if err != nil {
		return nil, err
	}

	items, total := record.UnwrapList(body)
	normalized, err := p.normalizer.NormalizeAll(items, d.Name, d.IDField)
	if err != nil {
		return nil, err
	}
	return &ListResult{Data: normalized, Total: total}, nil
}

// GetOne возвращает запись по id.
func (p *Provider) GetOne(ctx context.Context, resourceName, id string) (record.Record, error) {
	d := p.registry.Lookup(resourceName)
	rec, err := p.one(ctx, d, id)
	if err != nil {
		return nil, p.fail(d, OpGetOne, err)
	}
	p.ok(d, OpGetOne)
	return rec, nil
}

func (p *Provider) one(ctx context.Context, d *resource.Descriptor, id string) (record.Record, error) {
	if d.NoDetail {
		return nil, fmt.Errorf("%w: %s не имеет endpoint записи", ErrNotSupported, d.Name)
	}
	body, err := p.api.DoWithRetry(ctx, apiclient.Request{
		Method:       http.MethodGet,
		Path:         d.RecordPath(id),
		RequiresAuth: true,
	})
	if err != nil {
		return nil, err
	}
	return p.normalizer.Normalize(record.UnwrapOne(body), d.Name, d.IDField, id)
}

// GetMany загружает записи по списку id параллельно; порядок результата
// совпадает с порядком ids. Ошибка любого запроса — ошибка всей операции.
func (p *Provider) GetMany(ctx context.Context, resourceName string, ids []string) ([]record.Record, error) {
	d := p.registry.Lookup(resourceName)
	if d.Virtual || len(ids) == 0 {
		p.ok(d, OpGetMany)
		return []record.Record{}, nil
	}

	results := make([]record.Record, len(ids))
	var g errgroup.Group
	g.SetLimit(maxFanOut)
	for i, id := range ids {
		g.Go(func() error {
			rec, err := p.one(ctx, d, id)
			if err != nil {
				return err
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, p.fail(d, OpGetMany, err)
	}
	p.ok(d, OpGetMany)
	return results, nil
}

// Create создаёт запись. Ответ backend накладывается поверх отправленных данных.
func (p *Provider) Create(ctx context.Context, resourceName string, data map[string]any) (record.Record, error) {
	d := p.registry.Lookup(resourceName)

	body, err := p.api.DoWithRetry(ctx, apiclient.Request{
		Method:       http.MethodPost,
		Path:         d.BasePath,
		Body:         data,
		RequiresAuth: true,
	})
	if err != nil {
		return nil, p.fail(d, OpCreate, err)
	}

	// Ошибку в теле 2xx ищем только в ответе backend: code и message
	// отправленной формы принадлежат записи.
	reply := record.UnwrapOne(body)
	if err := record.DomainErrorOf(reply); err != nil {
		return nil, p.fail(d, OpCreate, err)
	}
	rec := p.normalizer.Canonical(record.Merge(data, reply), d.Name, d.IDField, "")
	p.ok(d, OpCreate)
	return rec, nil
}

// Update обновляет запись по стратегии ресурса.
func (p *Provider) Update(ctx context.Context, resourceName string, params UpdateParams) (record.Record, error) {
	d := p.registry.Lookup(resourceName)
	rec, err := p.update(ctx, d, params.ID, params.Data)
	if err != nil {
		return nil, p.fail(d, OpUpdate, err)
	}
	p.ok(d, OpUpdate)
	return rec, nil
}

func (p *Provider) update(ctx context.Context, d *resource.Descriptor, id string, data map[string]any) (record.Record, error) {
	req, err := updateRequest(d, id, data)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Обновление записи",
		"resource", d.Name,
		"id", id,
		"strategy", d.Update.String(),
		"method", req.Method,
		"path", req.Path,
	)

	body, err := p.api.DoWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	reply := record.UnwrapOne(body)
	if err := record.DomainErrorOf(reply); err != nil {
		return nil, err
	}
	rec := p.normalizer.Canonical(record.Merge(data, reply), d.Name, d.IDField, id)
	if d.PreserveID {
		rec["id"] = record.IDValue(id)
	}
	return rec, nil
}

// updateRequest строит запрос обновления по стратегии ресурса.
func updateRequest(d *resource.Descriptor, id string, data map[string]any) (apiclient.Request, error) {
	path := d.RecordPath(id)
	put := apiclient.Request{Method: http.MethodPut, Path: path, Body: data, RequiresAuth: true}

	switch d.Update {
	case resource.UpdateReportStatus:
		status := record.IDString(data["status"])
		if status == "" {
			return apiclient.Request{}, fmt.Errorf("%w: нет поля status", ErrInvalidPayload)
		}
		return apiclient.Request{
			Method:       http.MethodPatch,
			Path:         path + "/status",
			Query:        url.Values{"status": {status}},
			RequiresAuth: true,
		}, nil

	case resource.UpdateNoticeVisibility:
		raw, ok := data["isPublic"]
		if !ok {
			raw, ok = data["public"]
		}
		if !ok {
			return put, nil
		}
		isPublic, valid := toBool(raw)
		if !valid {
			return apiclient.Request{}, fmt.Errorf("%w: isPublic=%v", ErrInvalidPayload, raw)
		}
		return apiclient.Request{
			Method:       http.MethodPatch,
			Path:         path + "/public-status",
			Body:         map[string]any{"isPublic": isPublic},
			RequiresAuth: true,
		}, nil

	case resource.UpdateInquiryAction:
		switch strings.ToLower(record.IDString(data["action"])) {
		case "close":
			return apiclient.Request{Method: http.MethodPatch, Path: path + "/close", RequiresAuth: true}, nil
		case "answer":
			answer := record.IDString(data["answer"])
			if strings.TrimSpace(answer) == "" {
				return apiclient.Request{}, fmt.Errorf("%w: пустой ответ", ErrInvalidPayload)
			}
			return apiclient.Request{
				Method:       http.MethodPost,
				Path:         path + "/answer",
				Body:         map[string]any{"answer": answer},
				RequiresAuth: true,
			}, nil
		}
		return put, nil
	}
	return put, nil
}

// UpdateMany применяет одно обновление к нескольким записям параллельно.
// Возвращает ids только если обновлены все записи.
func (p *Provider) UpdateMany(ctx context.Context, resourceName string, ids []string, data map[string]any) ([]string, error) {
	d := p.registry.Lookup(resourceName)
	err := p.fanOut(ids, func(id string) error {
		_, err := p.update(ctx, d, id, data)
		return err
	})
	if err != nil {
		return nil, p.fail(d, OpUpdateMany, err)
	}
	p.ok(d, OpUpdateMany)
	return ids, nil
}

// Delete удаляет запись. Пустой ответ backend не мешает вернуть запись
// с исходным id.
func (p *Provider) Delete(ctx context.Context, resourceName, id string, previousData map[string]any) (record.Record, error) {
	d := p.registry.Lookup(resourceName)
	rec, err := p.delete(ctx, d, id, previousData)
	if err != nil {
		return nil, p.fail(d, OpDelete, err)
	}
	p.ok(d, OpDelete)
	return rec, nil
}

func (p *Provider) delete(ctx context.Context, d *resource.Descriptor, id string, previousData map[string]any) (record.Record, error) {
	body, err := p.api.DoWithRetry(ctx, apiclient.Request{
		Method:       http.MethodDelete,
		Path:         d.DeletePathFor(id),
		RequiresAuth: true,
	})
	if err != nil {
		return nil, err
	}
	reply := record.UnwrapOne(body)
	if err := record.DomainErrorOf(reply); err != nil {
		return nil, err
	}
	return p.normalizer.Canonical(record.Merge(previousData, reply), d.Name, d.IDField, id), nil
}

// DeleteMany удаляет записи параллельно; ошибка любого удаления — ошибка пакета.
func (p *Provider) DeleteMany(ctx context.Context, resourceName string, ids []string) ([]string, error) {
	d := p.registry.Lookup(resourceName)
	err := p.fanOut(ids, func(id string) error {
		_, err := p.delete(ctx, d, id, nil)
		return err
	})
	if err != nil {
		return nil, p.fail(d, OpDeleteMany, err)
	}
	p.ok(d, OpDeleteMany)
	return ids, nil
}

// fanOut выполняет fn для каждого id с ограничением параллелизма и
// собирает все ошибки в BatchError.
func (p *Provider) fanOut(ids []string, fn func(id string) error) error {
	var (
		mu     sync.Mutex
		errs   *multierror.Error
		failed []string
		g      errgroup.Group
	)
	g.SetLimit(maxFanOut)
	for _, id := range ids {
		g.Go(func() error {
			if err := fn(id); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("id %s: %w", id, err))
				failed = append(failed, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if errs.ErrorOrNil() == nil {
		return nil
	}
	return &BatchError{FailedIDs: failed, Err: errs}
}

// toBool приводит значение флага к bool.
func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(val)
		return b, err == nil
	default:
		return false, false
	}
}
