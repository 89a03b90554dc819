package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LavaJover/shvark-recovery-service/internal/delivery/http/handlers"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestServerHealthAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics.NewRecoveryMetrics(registry).RecordCreated()
	e := NewServer(handlers.NewRecoveryHandler(nil, nil), registry, nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "recovery_requests_created_total 1")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recovery-requests", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
