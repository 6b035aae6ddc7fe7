package datadog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"go.uber.org/zap"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/valve"
)

const (
	flowRateMetric   = "rasp_water.flow_rate"
	valveOnMetric    = "rasp_water.valve_on"
	reconnectsMetric = "rasp_water.event_reconnects"
)

// Submitter sends one metric payload.
type Submitter interface {
	Submit(ctx context.Context, body datadogV2.MetricPayload) error
}

type Client struct {
	api    *datadogV2.MetricsApi
	apiKey string
	appKey string
}

func NewDatadogClient(apiKey, appKey string) Client {
	configuration := datadog.NewConfiguration()
	apiClient := datadog.NewAPIClient(configuration)
	api := datadogV2.NewMetricsApi(apiClient)

	return Client{
		api:    api,
		apiKey: apiKey,
		appKey: appKey,
	}
}

func (c Client) Submit(ctx context.Context, body datadogV2.MetricPayload) error {
	valueCtx := context.WithValue(
		ctx,
		datadog.ContextAPIKeys,
		map[string]datadog.APIKey{
			"apiKeyAuth": {
				Key: c.apiKey,
			},
			"appKeyAuth": {
				Key: c.appKey,
			},
		},
	)

	_, _, err := c.api.SubmitMetrics(valueCtx, body, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("submitting metrics: %s", err)
	}
	return nil
}

// Reporter keeps the last valve state and the reconnects seen since the
// previous flush, and submits them as one payload per Flush. Only the
// latest valve report is sent.
type Reporter struct {
	sub     Submitter
	appName string
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	last       *valve.State
	reconnects int
}

func NewReporter(sub Submitter, appName string, logger *zap.SugaredLogger) *Reporter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reporter{sub: sub, appName: appName, logger: logger}
}

func (r *Reporter) ReportValve(s valve.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &s
}

func (r *Reporter) Reconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects++
}

// Flush submits what was gathered since the last successful flush. It is a
// no-op while nothing has been reported.
func (r *Reporter) Flush(ctx context.Context) error {
	r.mu.Lock()
	last := r.last
	reconnects := r.reconnects
	r.mu.Unlock()

	now := time.Now().Unix()
	var series []datadogV2.MetricSeries
	if last != nil {
		valveOn := 0.0
		if last.IsOn {
			valveOn = 1
		}
		series = append(series,
			r.series(flowRateMetric, datadogV2.METRICINTAKETYPE_GAUGE, now, last.Flow),
			r.series(valveOnMetric, datadogV2.METRICINTAKETYPE_GAUGE, now, valveOn),
		)
	}
	if reconnects > 0 {
		series = append(series, r.series(reconnectsMetric, datadogV2.METRICINTAKETYPE_COUNT, now, float64(reconnects)))
	}
	if len(series) == 0 {
		return nil
	}

	if err := r.sub.Submit(ctx, datadogV2.MetricPayload{Series: series}); err != nil {
		return err
	}

	r.mu.Lock()
	r.reconnects -= reconnects
	r.mu.Unlock()
	return nil
}

func (r *Reporter) series(metric string, kind datadogV2.MetricIntakeType, ts int64, value float64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   kind.Ptr(),
		Points: []datadogV2.MetricPoint{
			{
				Timestamp: datadog.PtrInt64(ts),
				Value:     datadog.PtrFloat64(value),
			},
		},
		Resources: []datadogV2.MetricResource{
			{
				Type: datadog.PtrString("host"),
				Name: datadog.PtrString(r.appName),
			},
		},
	}
}
