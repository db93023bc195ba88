// dephealth_test.go — тесты мониторинга backend API.
package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFindHealthByPrefix(t *testing.T) {
	tests := []struct {
		name        string
		health      map[string]bool
		wantHealthy bool
		wantFound   bool
	}{
		{"нет записей", map[string]bool{}, false, false},
		{"здоров", map[string]bool{"wonbawon-api:api.example.com:443": true}, true, true},
		{"недоступен", map[string]bool{"wonbawon-api:api.example.com:443": false}, false, true},
		{"одна из двух записей упала", map[string]bool{
			"wonbawon-api:a:443": true,
			"wonbawon-api:b:443": false,
		}, false, true},
		{"чужая зависимость", map[string]bool{"wonbawon-api-v2:a:443": true}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			healthy, found := findHealthByPrefix(tt.health, BackendDependency)
			assert.Equal(t, tt.wantHealthy, healthy)
			assert.Equal(t, tt.wantFound, found)
		})
	}
}

func startService(t *testing.T, status int) *DephealthService {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/actuator/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(backend.Close)

	ds, err := NewDephealthServiceWithRegisterer(
		"test-gateway", "wonbawon", backend.URL, "/actuator/health",
		time.Second, testLogger(), prometheus.NewRegistry(),
	)
	require.NoError(t, err, "Ошибка создания DephealthService")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, ds.Start(ctx))
	t.Cleanup(ds.Stop)
	return ds
}

func TestDephealthService_HealthyBackend(t *testing.T) {
	ds := startService(t, http.StatusOK)

	assert.Eventually(t, func() bool {
		status, _ := ds.CheckReady()
		return status == "ok"
	}, 5*time.Second, 100*time.Millisecond)
}

func TestDephealthService_UnhealthyBackend(t *testing.T) {
	ds := startService(t, http.StatusInternalServerError)

	assert.Eventually(t, func() bool {
		status, _ := ds.CheckReady()
		return status == "fail"
	}, 5*time.Second, 100*time.Millisecond)
}
