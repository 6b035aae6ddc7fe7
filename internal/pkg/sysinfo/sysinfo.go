// Package sysinfo polls the appliance's host status for the footer.
package sysinfo

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
)

type Info struct {
	Date           string `json:"date"`
	Uptime         string `json:"uptime"`
	LoadAverage    string `json:"load_average"`
	Timezone       string `json:"timezone"`
	ImageBuildDate string `json:"image_build_date"`
}

type API interface {
	Sysinfo(ctx context.Context) (Info, error)
}

type Poller struct {
	mu     sync.Mutex
	api    API
	logger *zap.SugaredLogger
	cron   *cron.Cron
	spec   string

	info    Info
	fetched bool
	err     bool
}

func NewPoller(api API, logger *zap.SugaredLogger) *Poller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Poller{
		api:    api,
		logger: logger,
		spec:   config.SysinfoPollSpec,
	}
}

func (p *Poller) Refresh(ctx context.Context) error {
	info, err := p.api.Sysinfo(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.err = true
		return fmt.Errorf("fetching sysinfo: %w", err)
	}
	p.info = info
	p.fetched = true
	p.err = false
	return nil
}

// Start fetches once and then on every tick of the poll schedule. Calling
// Start on a running poller does nothing.
func (p *Poller) Start() error {
	p.mu.Lock()
	if p.cron != nil {
		p.mu.Unlock()
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(p.spec, func() {
		if err := p.Refresh(context.Background()); err != nil {
			p.logger.Debugf("sysinfo poll: %s", err)
		}
	})
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("scheduling sysinfo poll: %w", err)
	}
	p.cron = c
	p.mu.Unlock()

	if err := p.Refresh(context.Background()); err != nil {
		p.logger.Debugf("initial sysinfo: %s", err)
	}
	c.Start()
	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Info returns the last fetched status. ok is false before the first success.
func (p *Poller) Info() (Info, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info, p.fetched
}

func (p *Poller) Error() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
