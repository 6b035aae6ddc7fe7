package datadog

import (
	"context"
	"sync"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// FakeSubmitter records payloads instead of sending them.
type FakeSubmitter struct {
	mu       sync.Mutex
	Payloads []datadogV2.MetricPayload
	Err      error
}

func (f *FakeSubmitter) Submit(_ context.Context, body datadogV2.MetricPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Payloads = append(f.Payloads, body)
	return nil
}

func (f *FakeSubmitter) Sent() []datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]datadogV2.MetricPayload(nil), f.Payloads...)
}
