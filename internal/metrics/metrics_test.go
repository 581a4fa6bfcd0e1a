package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.EventProcessed(time.Second)
	m.ActivityCreated("call")
	m.PatternSkipped(SkipDuplicate)
	m.PatternFailed()
	m.ActivityEvent("activity.created")
	m.SweepAction("escalated")
	assert.NotNil(t, m.Handler())
}

func TestCounters(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.EventProcessed(10 * time.Millisecond)
	m.EventProcessed(20 * time.Millisecond)
	m.ActivityCreated("call")
	m.PatternSkipped(SkipDuplicate)
	m.PatternSkipped(SkipDuplicate)
	m.PatternSkipped(SkipUnassigned)
	m.PatternFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activitiesCreated.WithLabelValues("call")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.patternSkips.WithLabelValues(SkipDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.patternSkips.WithLabelValues(SkipUnassigned)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.patternFailures))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	m, err := New(reg)
	require.NoError(t, err)
	m.ActivityCreated("email")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `activityline_activities_created_total{activity_type="email"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	_, err = New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
