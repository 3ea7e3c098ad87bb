package observability

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

func TestSetupMetricsServesCounters(t *testing.T) {
	mp, handler, err := SetupMetrics("test-service")
	require.NoError(t, err)
	defer func() { _ = mp.Shutdown(context.Background()) }()

	counter, err := mp.Meter("test").Int64Counter("facilitator_evaluations")
	require.NoError(t, err)
	counter.Add(context.Background(), 2, otelmetric.WithAttributes(attribute.String("outcome", "resolved")))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), "facilitator_evaluations_total")
	assert.Contains(t, string(body), `outcome="resolved"`)
}

func TestSetupTracingWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing("test-service", &buf, true)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "facilitator.invoke")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "facilitator.invoke")
}

func TestSetupTracingDisabled(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing("test-service", &buf, false)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.Zero(t, buf.Len())
}
