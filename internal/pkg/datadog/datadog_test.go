package datadog

import (
	"context"
	"errors"
	"testing"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/valve"
)

func values(p datadogV2.MetricPayload) map[string]float64 {
	out := map[string]float64{}
	for _, s := range p.Series {
		out[s.Metric] = *s.Points[0].Value
	}
	return out
}

func TestFlushNothingReported(t *testing.T) {
	sub := &FakeSubmitter{}
	r := NewReporter(sub, "panel", nil)

	require.NoError(t, r.Flush(context.Background()))
	assert.Empty(t, sub.Sent())
}

func TestFlushKeepsLastValveState(t *testing.T) {
	sub := &FakeSubmitter{}
	r := NewReporter(sub, "panel", nil)

	r.ReportValve(valve.State{IsOn: true, Flow: 2})
	r.ReportValve(valve.State{IsOn: true, Flow: 4.5})
	require.NoError(t, r.Flush(context.Background()))

	sent := sub.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, map[string]float64{flowRateMetric: 4.5, valveOnMetric: 1}, values(sent[0]))
	assert.Equal(t, "panel", *sent[0].Series[0].Resources[0].Name)
}

func TestFlushCountsReconnectsOnce(t *testing.T) {
	sub := &FakeSubmitter{}
	r := NewReporter(sub, "panel", nil)

	r.Reconnected()
	r.Reconnected()
	require.NoError(t, r.Flush(context.Background()))
	require.NoError(t, r.Flush(context.Background()))

	sent := sub.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, map[string]float64{reconnectsMetric: 2}, values(sent[0]))
	assert.Equal(t, datadogV2.METRICINTAKETYPE_COUNT, *sent[0].Series[0].Type)
}

func TestFlushFailureKeepsReconnects(t *testing.T) {
	sub := &FakeSubmitter{Err: errors.New("403 forbidden")}
	r := NewReporter(sub, "panel", nil)

	r.Reconnected()
	assert.Error(t, r.Flush(context.Background()))

	sub.Err = nil
	require.NoError(t, r.Flush(context.Background()))
	require.Len(t, sub.Sent(), 1)
	assert.Equal(t, 1.0, values(sub.Sent()[0])[reconnectsMetric])
}
