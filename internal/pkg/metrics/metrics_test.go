package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/valve"
)

func TestReportValve(t *testing.T) {
	m := New()
	m.ReportValve(valve.State{IsOn: true, Flow: 4.5, ZeroSamples: 2})

	assert.Equal(t, 4.5, testutil.ToFloat64(m.flowRate))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.valveOn))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.zeroSamples))

	m.ReportValve(valve.State{})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.valveOn))
}

func TestCounters(t *testing.T) {
	m := New()
	m.Reconnected()
	m.Reconnected()
	m.Notification("schedule")
	m.Notification("dummy")
	m.Notification("dummy")
	m.ScheduleDirty(true)
	m.WatchdogSuspended()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconnectsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notificationsTotal.WithLabelValues("dummy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scheduleDirty))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suspendsTotal))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Notification("log")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rasp_water_event_notifications_total{topic="log"} 1`)
	assert.Contains(t, string(body), "rasp_water_schedule_dirty 0")
}
