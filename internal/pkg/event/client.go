// Package event keeps one server-push subscription to the appliance open and
// fans its topics out to in-process listeners.
package event

import (
	"sync"

	"go.uber.org/zap"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/clock"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
)

// Client owns the single event stream. When the stream is closed for good it
// is reopened after config.ReconnectBackoff, forever. Subscribers never see
// connection failures.
type Client struct {
	mu       sync.Mutex
	url      string
	open     Opener
	sched    clock.Scheduler
	registry *Registry
	logger   *zap.SugaredLogger

	source      Source
	gen         uint64
	retry       clock.Task
	closed      bool
	reconnects  int
	onReconnect func()
}

type Option func(*Client)

// WithReconnectHook registers fn to run each time the stream is reopened.
func WithReconnectHook(fn func()) Option {
	return func(c *Client) { c.onReconnect = fn }
}

func NewClient(url string, open Opener, sched clock.Scheduler, logger *zap.SugaredLogger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Client{
		url:      url,
		open:     open,
		sched:    sched,
		registry: NewRegistry(),
		logger:   logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Subscribe(fn Listener) Token {
	return c.registry.Subscribe(fn)
}

func (c *Client) Unsubscribe(t Token) {
	c.registry.Unsubscribe(t)
}

// Start opens the stream. It is a no-op once the stream exists.
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.source != nil {
		return
	}
	c.connectLocked()
}

func (c *Client) connectLocked() {
	c.gen++
	gen := c.gen
	c.logger.Infof("connecting to event stream %s", c.url)
	c.source = c.open(c.url, Handlers{
		OnOpen:    func() { c.logger.Info("event stream open") },
		OnMessage: c.registry.Publish,
		OnError:   func(st ReadyState) { c.handleError(gen, st) },
	})
}

func (c *Client) handleError(gen uint64, st ReadyState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		return
	}
	if st != Closed {
		return
	}
	c.source.Close()
	if c.retry != nil {
		return
	}
	c.logger.Warnf("event stream closed, reconnecting in %s", config.ReconnectBackoff)
	c.retry = c.sched.After(config.ReconnectBackoff, c.reconnect)
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.retry = nil
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.reconnects++
	c.connectLocked()
	hook := c.onReconnect
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// State reports the ready state of the current stream.
func (c *Client) State() ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return Closed
	}
	return c.source.ReadyState()
}

func (c *Client) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// Close stops the stream and any pending reconnect.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.source != nil {
		c.source.Close()
	}
}
