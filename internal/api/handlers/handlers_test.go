package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/wonbawon-admin/internal/apiclient"
	"github.com/bigkaa/wonbawon-admin/internal/dataprovider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type errorBody struct {
	Error struct {
		Code      string   `json:"code"`
		Message   string   `json:"message"`
		FailedIDs []string `json:"failedIds"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// --- parseListParams ---

func TestParseListParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		`/api/v1/resources/users?page=3&perPage=25&sort=createdAt&order=desc&filter={"role":"ADMIN","kindergartenId":5}`, nil)

	params, err := parseListParams(req)
	require.NoError(t, err)
	assert.Equal(t, 3, params.Page)
	assert.Equal(t, 25, params.PerPage)
	assert.Equal(t, "createdAt", params.Sort.Field)
	assert.Equal(t, "DESC", params.Sort.Order)
	assert.Equal(t, "ADMIN", params.Filter["role"])
	assert.Equal(t, json.Number("5"), params.Filter["kindergartenId"])
}

func TestParseListParams_Defaults(t *testing.T) {
	params, err := parseListParams(httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, params.Page)
	assert.Equal(t, defaultPerPage, params.PerPage)
	assert.Nil(t, params.Filter)
}

func TestParseListParams_Invalid(t *testing.T) {
	for _, query := range []string{"page=0", "page=abc", "perPage=-1", "filter=[1,2]", "filter={oops"} {
		t.Run(query, func(t *testing.T) {
			_, err := parseListParams(httptest.NewRequest(http.MethodGet, "/x?"+query, nil))
			assert.Error(t, err)
		})
	}
}

func TestParseListParams_PerPageCapped(t *testing.T) {
	params, err := parseListParams(httptest.NewRequest(http.MethodGet, "/x?perPage=100000", nil))
	require.NoError(t, err)
	assert.Equal(t, maxPerPage, params.PerPage)
}

func TestParseIDs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?ids=1,2,%203&ids=4&ids=", nil)
	assert.Equal(t, []string{"1", "2", "3", "4"}, parseIDs(req))
}

// --- writeError ---

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "401",
			err:        &dataprovider.OperationError{Status: 401, Message: "x", Err: &apiclient.APIError{Status: 401}},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "403",
			err:        &dataprovider.OperationError{Status: 403, Message: "x", Err: &apiclient.APIError{Status: 403}},
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name:       "не поддерживается",
			err:        &dataprovider.OperationError{Message: "x", Err: dataprovider.ErrNotSupported},
			wantStatus: http.StatusNotImplemented,
			wantCode:   "NOT_SUPPORTED",
		},
		{
			name:       "некорректные данные",
			err:        &dataprovider.OperationError{Message: "x", Err: dataprovider.ErrInvalidPayload},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "404",
			err:        &dataprovider.OperationError{Status: 404, Message: "x", Err: &apiclient.APIError{Status: 404}},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "5xx",
			err:        &dataprovider.OperationError{Status: 500, Message: "x", Err: &apiclient.APIError{Status: 500}},
			wantStatus: http.StatusBadGateway,
			wantCode:   "BACKEND_ERROR",
		},
		{
			name:       "сеть",
			err:        errors.Join(apiclient.ErrNetwork),
			wantStatus: http.StatusBadGateway,
			wantCode:   "BACKEND_ERROR",
		},
	}

	h := NewResourceHandler(nil, nil, testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeError(rec, tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error.Code)
		})
	}
}

func TestWriteError_BatchFailedIDs(t *testing.T) {
	batch := &dataprovider.BatchError{
		FailedIDs: []string{"2"},
		Err:       multierror.Append(nil, &apiclient.APIError{Status: 500}),
	}
	err := &dataprovider.OperationError{Message: "community 작업에 실패했습니다.", Err: batch}

	rec := httptest.NewRecorder()
	NewResourceHandler(nil, nil, testLogger()).writeError(rec, err)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, []string{"2"}, body.Error.FailedIDs)
	assert.Equal(t, "community 작업에 실패했습니다.", body.Error.Message)
}

// --- Health ---

type stubChecker struct{ status, msg string }

func (s stubChecker) CheckReady() (string, string) { return s.status, s.msg }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		checker    ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{"ok", stubChecker{status: "ok"}, http.StatusOK, "ok"},
		{"degraded", stubChecker{status: "degraded"}, http.StatusOK, "degraded"},
		{"fail", stubChecker{status: "fail", msg: "backend API недоступен"}, http.StatusServiceUnavailable, "fail"},
		{"без проверки", nil, http.StatusServiceUnavailable, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checker)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp healthReadyResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantBody, resp.Status)
			assert.Equal(t, serviceName, resp.Service)
		})
	}
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOverallStatus(t *testing.T) {
	assert.Equal(t, "ok", overallStatus("ok", "ok"))
	assert.Equal(t, "degraded", overallStatus("ok", "degraded"))
	assert.Equal(t, "fail", overallStatus("degraded", "fail"))
}
