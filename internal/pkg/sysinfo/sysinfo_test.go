package sysinfo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu    sync.Mutex
	info  Info
	err   error
	calls int
}

func (f *fakeAPI) Sysinfo(context.Context) (Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.info, f.err
}

func TestRefresh(t *testing.T) {
	api := &fakeAPI{info: Info{Date: "2024-05-01T06:00:00+09:00", LoadAverage: "0.10, 0.20, 0.30"}}
	p := NewPoller(api, nil)

	_, ok := p.Info()
	assert.False(t, ok)

	require.NoError(t, p.Refresh(context.Background()))
	info, ok := p.Info()
	assert.True(t, ok)
	assert.Equal(t, "0.10, 0.20, 0.30", info.LoadAverage)

	api.err = errors.New("down")
	assert.Error(t, p.Refresh(context.Background()))
	assert.True(t, p.Error())
	info, ok = p.Info()
	assert.True(t, ok, "last known value survives a failure")
	assert.Equal(t, "0.10, 0.20, 0.30", info.LoadAverage)
}

func TestStartStop(t *testing.T) {
	api := &fakeAPI{}
	p := NewPoller(api, nil)

	require.NoError(t, p.Start())
	require.NoError(t, p.Start())
	p.Stop()
	p.Stop()

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, 1, api.calls, "start fetches once immediately")
}

func TestStartRejectsBadSpec(t *testing.T) {
	p := NewPoller(&fakeAPI{}, nil)
	p.spec = "every now and then"
	assert.Error(t, p.Start())
}
