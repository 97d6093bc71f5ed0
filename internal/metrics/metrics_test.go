package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle(time.Millisecond, true)
		m.SetRunning(true)
		m.EmergencyStop()
		m.PluginFailure("input", "G1Voice", "get_data")
		m.ActionResult("G1Speech", false)
		m.Generation("mock", time.Millisecond, true)
		m.Response("happy")
	})
}

func TestRecording(t *testing.T) {
	r := NewRegistry()
	m := r.Metrics

	m.ObserveCycle(10*time.Millisecond, false)
	m.ObserveCycle(10*time.Millisecond, true)
	m.PluginFailure("input", "G1Vision", "get_data")
	m.ActionResult("G1Speech", true)
	m.SetRunning(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CyclesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CycleErrorsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PluginFailures.WithLabelValues("input", "G1Vision", "get_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("G1Speech", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Running))
}

func TestHandlerServesExposition(t *testing.T) {
	r := NewRegistry()
	r.Metrics.ObserveCycle(time.Millisecond, false)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "t031a5_runtime_cycles_total 1")
}
