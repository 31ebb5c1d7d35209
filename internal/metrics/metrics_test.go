package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissionCounts(t *testing.T) {
	m := New()

	m.Admission("ok")
	m.Admission("DATE_CONFLICT")
	m.Admission("DATE_CONFLICT")
	m.Cancellation("ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Admissions.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Admissions.WithLabelValues("DATE_CONFLICT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cancellations.WithLabelValues("ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Admission("ok")
		m.Cancellation("ok")
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Admission("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `venuebook_admissions_total{result="ok"} 1`)
}
