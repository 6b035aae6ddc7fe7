package valve

import (
	"context"
	"fmt"
	"math"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
)

// Watch starts polling the flow sensor unless a poll loop is already running.
// The zero-sample count carries over from any earlier loop.
func (c *Controller) Watch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchLocked()
}

func (c *Controller) watchLocked() {
	if c.flowTask != nil {
		return
	}
	c.flowTask = c.sched.Every(c.interval, func() {
		if err := c.Sample(context.Background()); err != nil {
			c.logger.Debugf("sampling flow: %s", err)
		}
	})
}

// Unwatch stops the poll loop.
func (c *Controller) Unwatch() {
	c.mu.Lock()
	stopped := c.unwatchLocked()
	c.mu.Unlock()

	if stopped {
		c.logger.Debug("flow watch stopped")
	}
}

func (c *Controller) unwatchLocked() bool {
	if c.flowTask == nil {
		return false
	}
	c.flowTask.Stop()
	c.flowTask = nil
	return true
}

// Watching reports whether the poll loop is running.
func (c *Controller) Watching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flowTask != nil
}

// Sample reads the flow sensor once. The loop suspends itself after
// config.FlowZeroThreshold consecutive zero readings while the valve is off.
// Zero flow with the valve on keeps the loop running.
func (c *Controller) Sample(ctx context.Context) error {
	flow, err := c.api.ValveFlow(ctx)

	c.mu.Lock()
	if err != nil {
		if !c.flowErr {
			c.logger.Warnf("fetching flow: %s", err)
		}
		c.flowErr = true
		c.mu.Unlock()
		return fmt.Errorf("fetching flow: %w", err)
	}

	flow = math.Max(0, math.Min(flow, config.FlowMax))
	c.state.Flow = flow
	c.flowErr = false
	if math.Round(flow) == 0 {
		c.state.ZeroSamples++
	} else {
		c.state.ZeroSamples = 0
	}

	suspended := false
	if c.state.ZeroSamples == config.FlowZeroThreshold && !c.state.IsOn {
		suspended = c.unwatchLocked()
	}
	snapshot := c.state
	hook := c.onSuspend
	c.mu.Unlock()

	if suspended {
		c.logger.Infof("flow stayed at zero for %d samples, suspending watch", config.FlowZeroThreshold)
		if hook != nil {
			hook()
		}
	}
	c.report(snapshot)
	return nil
}
