package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/recovery-center-auth/authn"
	"github.com/upb/recovery-center-auth/repositories/postgres"
	"go.uber.org/zap"
)

type fakeProvider authn.ProviderState

func (p fakeProvider) ProviderState() authn.ProviderState { return authn.ProviderState(p) }

type fakeDatabase struct{ err error }

func (d fakeDatabase) HealthCheck(context.Context) error { return d.err }

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response["data"].(map[string]interface{})
}

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler(nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "healthy", data["status"])
	assert.NotEmpty(t, data["timestamp"])
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		db         DatabaseChecker
		provider   ProviderStatus
		wantStatus int
		wantChecks map[string]interface{}
	}{
		{
			name:       "ready provider without database",
			provider:   fakeProvider(authn.ProviderReady),
			wantStatus: http.StatusOK,
			wantChecks: map[string]interface{}{"identity_provider": "healthy"},
		},
		{
			name:       "pending lazy provider is ready",
			provider:   fakeProvider(authn.ProviderPending),
			wantStatus: http.StatusOK,
			wantChecks: map[string]interface{}{"identity_provider": "pending"},
		},
		{
			name:       "failed provider",
			provider:   fakeProvider(authn.ProviderFailed),
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]interface{}{"identity_provider": "unhealthy"},
		},
		{
			name:       "database down",
			db:         fakeDatabase{err: errors.New("connection refused")},
			provider:   fakeProvider(authn.ProviderReady),
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]interface{}{"database": "unhealthy", "identity_provider": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.db, tt.provider, logger)

			w := httptest.NewRecorder()
			handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			data := decodeData(t, w)
			assert.Equal(t, tt.wantChecks, data["checks"])
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "healthy", data["status"])
			} else {
				assert.Equal(t, "unhealthy", data["status"])
			}
		})
	}

	t.Run("healthy postgres", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer sqlDB.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		handler := NewHealthHandler(postgres.Wrap(sqlDB, logger), fakeProvider(authn.ProviderReady), logger)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		checks := decodeData(t, w)["checks"].(map[string]interface{})
		assert.Equal(t, "healthy", checks["database"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
