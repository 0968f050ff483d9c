package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/service"
)

func testCollector() *Collector {
	return NewCollector(config.MetricsConfig{Namespace: "test"}, prometheus.NewRegistry())
}

func TestCollector_Observe(t *testing.T) {
	c := testCollector()

	c.Observe(context.Background(), service.Event{
		Operation:    service.OperationPseudonymize,
		Scope:        domain.ScopeText,
		EntityCounts: domain.Stats{"PERSON": 2, "LOCATION": 1},
		Duration:     20 * time.Millisecond,
	})
	c.Observe(context.Background(), service.Event{
		Operation:    service.OperationPseudonymize,
		Scope:        domain.ScopeText,
		EntityCounts: domain.Stats{"PERSON": 1},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("pseudonymize", "text")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.entities.WithLabelValues("pseudonymize", "text", "PERSON")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.entities.WithLabelValues("pseudonymize", "text", "LOCATION")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.operationDuration))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := testCollector()

	c.RecordHTTPRequest(http.MethodPost, "/anonymize/text", http.StatusOK, time.Millisecond)
	c.RecordHTTPRequest(http.MethodPost, "/anonymize/text", http.StatusBadRequest, time.Millisecond)
	c.RecordHTTPRequest(http.MethodPost, "/anonymize/text", http.StatusOK, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/anonymize/text", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/anonymize/text", "400")))
}

func TestCollector_Handler(t *testing.T) {
	c := testCollector()
	c.RecordHTTPRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "test_http_requests_total"))
}

func TestNewCollector_DefaultNamespace(t *testing.T) {
	c := NewCollector(config.MetricsConfig{}, nil)
	c.RecordHTTPRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)

	count, err := testutil.GatherAndCount(c.Registry(), "deidentifier_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
