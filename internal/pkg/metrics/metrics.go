package metrics

import (
	"net/http"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/valve"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rasp_water"

type Metrics struct {
	reg *prometheus.Registry

	flowRate         prometheus.Gauge
	valveOn          prometheus.Gauge
	zeroSamples      prometheus.Gauge
	scheduleDirty    prometheus.Gauge
	reconnectsTotal  prometheus.Counter
	notificationsTotal *prometheus.CounterVec
	suspendsTotal    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		flowRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_rate",
			Help:      "Last sampled flow rate, clamped to the sensor range",
		}),
		valveOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "valve_on",
			Help:      "Registers when the appliance reports the valve open",
		}),
		zeroSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_zero_samples",
			Help:      "Consecutive flow samples that rounded to zero",
		}),
		scheduleDirty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schedule_dirty",
			Help:      "Registers when the edited schedule differs from the saved one",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_reconnects_total",
			Help:      "Increase when the event stream is reopened after closing",
		}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_notifications_total",
			Help:      "Topics received over the event stream",
		}, []string{"topic"}),
		suspendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_watchdog_suspends_total",
			Help:      "Increase when the flow watchdog stops polling on its own",
		}),
	}
	m.reg.MustRegister(
		m.flowRate,
		m.valveOn,
		m.zeroSamples,
		m.scheduleDirty,
		m.reconnectsTotal,
		m.notificationsTotal,
		m.suspendsTotal,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ReportValve(s valve.State) {
	m.flowRate.Set(s.Flow)
	m.zeroSamples.Set(float64(s.ZeroSamples))
	m.valveOn.Set(boolGauge(s.IsOn))
}

func (m *Metrics) ScheduleDirty(dirty bool) {
	m.scheduleDirty.Set(boolGauge(dirty))
}

func (m *Metrics) Reconnected() {
	m.reconnectsTotal.Inc()
}

func (m *Metrics) Notification(topic string) {
	m.notificationsTotal.WithLabelValues(topic).Inc()
}

func (m *Metrics) WatchdogSuspended() {
	m.suspendsTotal.Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
