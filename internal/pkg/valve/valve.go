// Package valve mirrors the appliance valve and watches its flow sensor.
package valve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/clock"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
)

// State is the last valve state reported by the appliance.
type State struct {
	IsOn        bool    `json:"is_on"`
	Period      int     `json:"period"`
	Flow        float64 `json:"flow"`
	ZeroSamples int     `json:"zero_samples"`
}

// Ctrl is the valve_ctrl response.
type Ctrl struct {
	IsOn   bool
	Period int
}

// Command switches the valve. Period is the run time in minutes.
type Command struct {
	On     bool
	Period int
}

type API interface {
	// ValveCtrl reads the valve state, or applies cmd when it is not nil.
	ValveCtrl(ctx context.Context, cmd *Command) (Ctrl, error)
	ValveFlow(ctx context.Context) (float64, error)
}

// Reporter observes every valve state change.
type Reporter interface {
	ReportValve(s State)
}

type Controller struct {
	mu        sync.Mutex
	api       API
	sched     clock.Scheduler
	logger    *zap.SugaredLogger
	reporters []Reporter
	onSuspend func()

	state    State
	loading  bool
	ctrlErr  bool
	flowErr  bool
	flowTask clock.Task
	interval time.Duration
}

type Option func(*Controller)

func WithReporter(r Reporter) Option {
	return func(c *Controller) { c.reporters = append(c.reporters, r) }
}

// WithSuspendHook registers fn to run whenever the watchdog suspends itself.
func WithSuspendHook(fn func()) Option {
	return func(c *Controller) { c.onSuspend = fn }
}

func NewController(api API, sched clock.Scheduler, logger *zap.SugaredLogger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Controller{
		api:      api,
		sched:    sched,
		logger:   logger,
		loading:  true,
		interval: config.FlowPollInterval,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Refresh reads the valve state.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.ctrl(ctx, nil)
}

// Set switches the valve on or off for period minutes.
func (c *Controller) Set(ctx context.Context, on bool, period int) error {
	return c.ctrl(ctx, &Command{On: on, Period: period})
}

func (c *Controller) ctrl(ctx context.Context, cmd *Command) error {
	res, err := c.api.ValveCtrl(ctx, cmd)

	c.mu.Lock()
	c.loading = false
	if err != nil {
		if !c.ctrlErr {
			c.logger.Warnf("fetching valve state: %s", err)
		}
		c.ctrlErr = true
		c.mu.Unlock()
		return fmt.Errorf("fetching valve state: %w", err)
	}
	if res.IsOn {
		c.watchLocked()
	}
	c.state.IsOn = res.IsOn
	c.state.Period = res.Period
	c.ctrlErr = false
	snapshot := c.state
	c.mu.Unlock()

	if cmd != nil {
		c.logger.Infof("valve set on=%t period=%d", res.IsOn, res.Period)
	}
	c.report(snapshot)
	return nil
}

// HandleNotification refreshes on every topic other than schedule.
func (c *Controller) HandleNotification(topic string) {
	if topic == config.TopicSchedule {
		return
	}
	if err := c.Refresh(context.Background()); err != nil {
		c.logger.Debugf("refresh on notification: %s", err)
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Controller) CtrlError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrlErr
}

func (c *Controller) FlowError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flowErr
}

// Close stops flow polling.
func (c *Controller) Close() {
	c.Unwatch()
}

func (c *Controller) report(s State) {
	for _, r := range c.reporters {
		r.ReportValve(s)
	}
}
