package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSessionOp(t *testing.T) {
	m := getMetrics()
	before := testutil.ToFloat64(m.sessionOpsTotal.WithLabelValues("refresh", "success"))

	RecordSessionOp("refresh", 5*time.Millisecond, true)

	after := testutil.ToFloat64(m.sessionOpsTotal.WithLabelValues("refresh", "success"))
	assert.Equal(t, before+1, after)
}

func TestRecordAggregationSkipped(t *testing.T) {
	m := getMetrics()
	before := testutil.ToFloat64(m.aggregationRuns.WithLabelValues("skipped"))

	RecordAggregationSkipped()

	assert.Equal(t, before+1, testutil.ToFloat64(m.aggregationRuns.WithLabelValues("skipped")))
}

func TestSetPublishedMetrics(t *testing.T) {
	m := getMetrics()
	SetPublishedMetrics(map[string]int64{"uniqueUsers": 5, "uniqueUsersWithObjectInView": 2}, time.Unix(1700000000, 0))

	assert.Equal(t, 5.0, testutil.ToFloat64(m.metricValue.WithLabelValues("uniqueUsers")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.metricValue.WithLabelValues("uniqueUsersWithObjectInView")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastPublished))
}

func TestMetricsHandler(t *testing.T) {
	RecordStaleAppend()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trackd_stale_appends_total")
}
