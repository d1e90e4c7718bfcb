package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewPromRecorder(reg)
	require.NoError(t, err)

	r.JoinDecision("accepted")
	r.JoinDecision("accepted")
	r.JoinDecision("duration_exceeded")
	r.RouteClosed(true)
	r.TrackingOutcome("arrived")
	r.ProviderCall("eta", 120*time.Millisecond, nil)
	r.ProviderCall("eta", time.Second, errors.New("timeout"))
	r.OpenRoutes(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.joins.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.joins.WithLabelValues("duration_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.closes.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tracking.WithLabelValues("arrived")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.openRoutes))
	assert.Equal(t, 2, testutil.CollectAndCount(r.provider))
}

func TestPromRecorderReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromRecorder(reg)
	require.NoError(t, err)
	b, err := NewPromRecorder(reg)
	require.NoError(t, err)

	a.JoinDecision("accepted")
	b.JoinDecision("accepted")
	assert.Equal(t, 2.0, testutil.ToFloat64(b.joins.WithLabelValues("accepted")))
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := NewRegistry()
	rec, err := NewPromRecorder(reg)
	require.NoError(t, err)
	rec.JoinDecision("accepted")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `carpool_join_decisions_total{outcome="accepted"} 1`)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
