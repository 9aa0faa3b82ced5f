package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ItemProcessed(OutcomeSuccess)
	m.ItemProcessed(OutcomeSuccess)
	m.ItemProcessed(OutcomeFailed)
	m.Request("summary", 200)
	m.Request("contributors", 0)
	m.Checkpoint(42)
	m.Remaining(3)
	m.PacingWait(250 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.items.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.items.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("summary", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("contributors", "none")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.checkpoint))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.remaining))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ItemProcessed(OutcomeSkipped)
	m.Request("summary", 500)
	m.PacingWait(time.Second)
	m.Checkpoint(1)
	m.Remaining(1)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ItemProcessed(OutcomeSkipped)

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `openrank_items_total{outcome="skipped"} 1`)
}
