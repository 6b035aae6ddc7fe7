package cmd

import (
	"context"
	"encoding/json"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/applog"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/clock"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/datadog"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/event"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/metrics"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/mqtt"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/notice"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/schedule"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/sysinfo"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/valve"
	"go.uber.org/zap"
)

const (
	eventChannel  = "event"
	noticeChannel = "notice"
	stateChannel  = "state"
)

type applianceAPI interface {
	schedule.API
	valve.API
	applog.API
	sysinfo.API
}

type panelDeps struct {
	api      applianceAPI
	eventURL string
	open     event.Opener
	sched    clock.Scheduler
	console  notice.Notifier
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger

	mirror    schedule.Mirror
	reporters []valve.Reporter
	archive   applog.Archive
	bridge    *mqtt.Bridge
	datadog   *datadog.Reporter
}

// panel is the running sync core plus the relay that pushes its topics and
// notices to websocket clients.
type panel struct {
	events   *event.Client
	schedule *schedule.Synchronizer
	valve    *valve.Controller
	log      *applog.View
	sysinfo  *sysinfo.Poller
	hub      *hub
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger

	sched     clock.Scheduler
	datadog   *datadog.Reporter
	flushTask clock.Task
}

func newPanel(d panelDeps) *panel {
	if d.logger == nil {
		d.logger = zap.NewNop().Sugar()
	}
	if d.metrics == nil {
		d.metrics = metrics.New()
	}
	p := &panel{
		hub:     newHub(d.logger.Named("web")),
		metrics: d.metrics,
		logger:  d.logger,
		sched:   d.sched,
		datadog: d.datadog,
	}

	notifiers := notice.Multi{notice.Func(p.broadcastNotice)}
	if d.console != nil {
		notifiers = append(notifiers, d.console)
	}

	scheduleOpts := []schedule.Option{schedule.WithDirtyHook(d.metrics.ScheduleDirty)}
	if d.mirror != nil {
		scheduleOpts = append(scheduleOpts, schedule.WithMirror(d.mirror))
	}
	p.schedule = schedule.NewSynchronizer(d.api, notifiers, d.logger.Named("schedule"), scheduleOpts...)

	valveOpts := []valve.Option{
		valve.WithReporter(d.metrics),
		valve.WithSuspendHook(d.metrics.WatchdogSuspended),
	}
	for _, r := range d.reporters {
		valveOpts = append(valveOpts, valve.WithReporter(r))
	}
	if d.datadog != nil {
		valveOpts = append(valveOpts, valve.WithReporter(d.datadog))
	}
	p.valve = valve.NewController(d.api, d.sched, d.logger.Named("valve"), valveOpts...)

	p.log = applog.NewView(d.api, notifiers, d.archive, d.logger.Named("log"))
	p.sysinfo = sysinfo.NewPoller(d.api, d.logger.Named("sysinfo"))

	p.events = event.NewClient(d.eventURL, d.open, d.sched, d.logger.Named("event"),
		event.WithReconnectHook(func() {
			d.metrics.Reconnected()
			if d.datadog != nil {
				d.datadog.Reconnected()
			}
		}))
	p.events.Subscribe(d.metrics.Notification)
	p.events.Subscribe(p.broadcastTopic)
	if d.bridge != nil {
		p.events.Subscribe(event.Async(d.bridge.PublishNotification))
	}
	p.events.Subscribe(event.Async(p.schedule.HandleNotification))
	p.events.Subscribe(event.Async(p.valve.HandleNotification))
	p.events.Subscribe(event.Async(p.log.HandleNotification))

	return p
}

// start opens the event stream, loads every view once, arms the flow watch
// and starts the sysinfo poll. The flow watch suspends itself once the
// sensor has read zero long enough with the valve off.
func (p *panel) start(ctx context.Context) error {
	p.events.Start()
	p.valve.Watch()
	if p.datadog != nil && p.flushTask == nil {
		p.flushTask = p.sched.Every(config.DatadogFlushInterval, func() {
			if err := p.datadog.Flush(ctx); err != nil {
				p.logger.Errorf("flushing datadog metrics: %s", err)
			}
		})
	}
	go func() {
		if err := p.schedule.Refresh(ctx); err != nil {
			p.logger.Debugf("initial schedule refresh: %s", err)
		}
	}()
	go func() {
		if err := p.valve.Refresh(ctx); err != nil {
			p.logger.Debugf("initial valve refresh: %s", err)
		}
	}()
	go func() {
		if err := p.log.Refresh(ctx); err != nil {
			p.logger.Debugf("initial log refresh: %s", err)
		}
	}()
	return p.sysinfo.Start()
}

func (p *panel) close() {
	if p.flushTask != nil {
		p.flushTask.Stop()
		p.flushTask = nil
	}
	p.events.Close()
	p.valve.Close()
	p.sysinfo.Stop()
	p.hub.closeAll()
}

func (p *panel) broadcastTopic(topic string) {
	p.hub.broadcast(config.WebsocketMessage{Channel: eventChannel, Message: topic})
}

func (p *panel) broadcastNotice(n notice.Notice) {
	j, err := json.Marshal(n)
	if err != nil {
		p.logger.Errorf("marshalling notice: %s", err)
		return
	}
	p.hub.broadcast(config.WebsocketMessage{Channel: noticeChannel, Message: string(j)})
}
