// resources.go — обработчики /api/v1/resources/{resource} endpoints.
// Каждый endpoint — одна операция data provider. Ответ 401 от backend
// передаётся провайдеру аутентификации: после успешного обновления токена
// операция повторяется один раз.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/wonbawon-admin/internal/api/errors"
	"github.com/bigkaa/wonbawon-admin/internal/apiclient"
	"github.com/bigkaa/wonbawon-admin/internal/authprovider"
	"github.com/bigkaa/wonbawon-admin/internal/dataprovider"
	"github.com/bigkaa/wonbawon-admin/internal/resource"
)

const (
	defaultPerPage = 10
	maxPerPage     = 1000
)

// ResourceHandler — обработчик CRUD endpoints ресурсов.
type ResourceHandler struct {
	data   Resources
	auth   Auth
	logger *slog.Logger
}

// NewResourceHandler создаёт обработчик ресурсов.
func NewResourceHandler(data Resources, auth Auth, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{
		data:   data,
		auth:   auth,
		logger: logger.With(slog.String("component", "resource_handler")),
	}
}

// listResponse — ответ списка.
type listResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// writeBody — тело create/update/update-many.
type writeBody struct {
	Data         map[string]any `json:"data"`
	PreviousData map[string]any `json:"previousData,omitempty"`
}

// deleteBody — необязательное тело delete.
type deleteBody struct {
	PreviousData map[string]any `json:"previousData,omitempty"`
}

// List — GET /api/v1/resources/{resource}?page=&perPage=&sort=&order=&filter=.
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	name := chi.URLParam(r, "resource")

	h.run(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		res, err := h.data.GetList(ctx, name, params)
		if err != nil {
			return nil, err
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(res.Total))
		return listResponse{Data: res.Data, Total: res.Total}, nil
	})
}

// Many — GET /api/v1/resources/{resource}/many?ids=1,2,3.
func (h *ResourceHandler) Many(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")
	ids := parseIDs(r)

	h.run(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		recs, err := h.data.GetMany(ctx, name, ids)
		if err != nil {
			return nil, err
		}
		return dataResponse{Data: recs}, nil
	})
}

// Reference — GET /api/v1/resources/{resource}/reference?target=&id=&page=...
func (h *ResourceHandler) Reference(w http.ResponseWriter, r *http.Request) {
	listParams, err := parseListParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	q := r.URL.Query()
	params := dataprovider.ReferenceParams{
		ListParams: listParams,
		Target:     q.Get("target"),
		ID:         q.Get("id"),
	}
	if params.Target == "" || params.ID == "" {
		apierrors.ValidationError(w, "параметры target и id обязательны")
		return
	}
	name := chi.URLParam(r, "resource")

	h.run(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		res, err := h.data.GetManyReference(ctx, name, params)
		if err != nil {
			return nil, err
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(res.Total))
		return listResponse{Data: res.Data, Total: res.Total}, nil
	})
}

// Get — GET /api/v1/resources/{resource}/{id}.
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	name, id := chi.URLParam(r, "resource"), chi.URLParam(r, "id")

	h.run(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		rec, err := h.data.GetOne(ctx, name, id)
		if err != nil {
			return nil, err
		}
		return dataResponse{Data: rec}, nil
	})
}

// Create — POST /api/v1/resources/{resource} {data}.
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body writeBody
	if err := decodeBody(r, &body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if body.Data == nil {
		apierrors.ValidationError(w, "поле data обязательно")
		return
	}
	name := chi.URLParam(r, "resource")

	h.run(w, r, http.StatusCreated, func(ctx context.Context) (any, error) {
		rec, err := h.data.Create(ctx, name, body.Data)
		if err != nil {
			return nil, err
		}
		return dataResponse{Data: rec}, nil
	})
}

// Update — PUT /api/v1/resources/{resource}/{id} {data, previousData}.
func (h *ResourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body writeBody
	if err := decodeBody(r, &body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if body.Data == nil {
		apierrors.ValidationError(w, "поле data обязательно")
		return
	}
	name := chi.URLParam(r, "resource")
	params := dataprovider.UpdateParams{
		ID:           chi.URLParam(r, "id"),
		Data:         body.Data,
		PreviousData: body.PreviousData,
	}

	h.run(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		rec, err := h.data.Update(ctx, name, params)
		if err != nil {
			return nil, err
		}
		return dataResponse{Data: rec}, nil
	})
}

// UpdateMany — PUT /api/v1/resources/{resource}?ids=1,2 {data}.
func (h *ResourceHandler) UpdateMany(w http.ResponseWriter, r *http.Request) {
	var body writeBody
	if err := decodeBody(r, &body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	ids := parseIDs(r)
	if len(ids) == 0 || body.Data == nil {
		apierrors.ValidationError(w, "параметр ids и поле data обязательны")
		return
	}
	name := chi.URLParam(r, "resource")

	h.run(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		done, err := h.data.UpdateMany(ctx, name, ids, body.Data)
		if err != nil {
			return nil, err
		}
		return dataResponse{Data: done}, nil
	})
}

// Delete — DELETE /api/v1/resources/{resource}/{id} [{previousData}].
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var body deleteBody
	if err := decodeBody(r, &body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	name, id := chi.URLParam(r, "resource"), chi.URLParam(r, "id")

	h.run(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		rec, err := h.data.Delete(ctx, name, id, body.PreviousData)
		if err != nil {
			return nil, err
		}
		return dataResponse{Data: rec}, nil
	})
}

// DeleteMany — DELETE /api/v1/resources/{resource}?ids=1,2.
func (h *ResourceHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	ids := parseIDs(r)
	if len(ids) == 0 {
		apierrors.ValidationError(w, "параметр ids обязателен")
		return
	}
	name := chi.URLParam(r, "resource")

	h.run(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		done, err := h.data.DeleteMany(ctx, name, ids)
		if err != nil {
			return nil, err
		}
		return dataResponse{Data: done}, nil
	})
}

// run выполняет операцию и пишет ответ. При 401 от backend операция
// повторяется один раз, если провайдер аутентификации обновил токен.
func (h *ResourceHandler) run(w http.ResponseWriter, r *http.Request, status int, op func(ctx context.Context) (any, error)) {
	ctx := r.Context()

	result, err := op(ctx)
	if err != nil {
		checkErr := h.auth.CheckError(ctx, err)
		if checkErr == nil && apiclient.StatusOf(err) == http.StatusUnauthorized {
			h.logger.Info("Токен обновлён, операция повторяется", slog.String("path", r.URL.Path))
			result, err = op(ctx)
			if err != nil && apiclient.StatusOf(err) == http.StatusUnauthorized {
				_ = h.auth.Logout(ctx)
			}
		}
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, status, result)
}

// writeError переводит ошибку data provider в HTTP-ответ.
func (h *ResourceHandler) writeError(w http.ResponseWriter, err error) {
	var (
		batchErr *dataprovider.BatchError
		redirect *authprovider.RedirectError
	)
	status := apiclient.StatusOf(err)

	switch {
	case status == http.StatusUnauthorized:
		apierrors.Unauthorized(w, dataprovider.ErrSessionExpired.Error())
	case status == http.StatusForbidden, errors.As(err, &redirect) && redirect.Status == http.StatusForbidden:
		apierrors.Forbidden(w, "권한이 없습니다.")
	case errors.Is(err, dataprovider.ErrNotSupported):
		apierrors.NotSupported(w, err.Error())
	case errors.Is(err, dataprovider.ErrInvalidPayload):
		apierrors.ValidationError(w, err.Error())
	case status == http.StatusNotFound:
		apierrors.NotFound(w, err.Error())
	case errors.As(err, &batchErr):
		apierrors.WriteDetail(w, http.StatusBadGateway, apierrors.Detail{
			Code:      apierrors.CodeBackendError,
			Message:   err.Error(),
			FailedIDs: batchErr.FailedIDs,
		})
	default:
		apierrors.BackendError(w, err.Error())
	}
}

// parseListParams читает page, perPage, sort, order и filter (JSON) из query.
func parseListParams(r *http.Request) (resource.ListParams, error) {
	q := r.URL.Query()
	params := resource.ListParams{Page: 1, PerPage: defaultPerPage}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, errors.New("page должен быть целым числом >= 1")
		}
		params.Page = page
	}
	if v := q.Get("perPage"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil || perPage < 1 {
			return params, errors.New("perPage должен быть целым числом >= 1")
		}
		params.PerPage = min(perPage, maxPerPage)
	}

	params.Sort = resource.Sort{Field: q.Get("sort"), Order: strings.ToUpper(q.Get("order"))}

	if v := q.Get("filter"); v != "" {
		filter := map[string]any{}
		if err := decodeJSONString(v, &filter); err != nil {
			return params, errors.New("filter должен быть JSON-объектом")
		}
		params.Filter = filter
	}
	return params, nil
}

// parseIDs читает ids как список через запятую или повторяющийся параметр.
func parseIDs(r *http.Request) []string {
	var ids []string
	for _, v := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
