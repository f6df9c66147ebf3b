package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	m := New()
	m.ObserveRun("resync", time.Now(), nil)
	m.ObserveRun("resync", time.Now(), errors.New("boom"))
	m.ObserveRun("backfill", time.Now(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("resync", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("resync", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("backfill", "success")))
}

func TestInstancesDoNotShareRegistry(t *testing.T) {
	a, b := New(), New()
	a.Deleted.Add(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.Deleted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Deleted))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.TasksPosted.WithLabelValues("ROB", "OVERDUE").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `urgentsync_tasks_posted_total{bucket="ROB",urgency="OVERDUE"} 1`)
}
