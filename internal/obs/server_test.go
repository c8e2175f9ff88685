package obs

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_HealthEndpoint_AlwaysReportsOk(t *testing.T) {
	s := NewServer("127.0.0.1", 0, New(), nil, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.http.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestServer_ReadyEndpoint_ReportsOkWithNoDependencies(t *testing.T) {
	s := NewServer("127.0.0.1", 0, New(), nil, false)
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()

	s.http.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ReadyEndpoint_ReportsServiceUnavailableWhenDependencyFails(t *testing.T) {
	deps := map[string]Pinger{"postgres": fakePinger{err: errors.New("down")}}
	s := NewServer("127.0.0.1", 0, New(), deps, false)
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()

	s.http.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "down")
}

func TestServer_MetricsEndpoint_ExposesPrometheusFormat(t *testing.T) {
	m := New()
	m.RequestsTotal.WithLabelValues("blog", "success").Inc()

	s := NewServer("127.0.0.1", 0, m, nil, false)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	s.http.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sentinel_requests_total")
}
