package event

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/clock"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
)

func TestRegistryOrderAndUnsubscribe(t *testing.T) {
	r := NewRegistry()
	var got []string
	a := r.Subscribe(func(topic string) { got = append(got, "a:"+topic) })
	r.Subscribe(func(topic string) { got = append(got, "b:"+topic) })

	r.Publish("schedule")
	r.Unsubscribe(a)
	r.Unsubscribe(a)
	r.Publish("log")

	assert.Equal(t, []string{"a:schedule", "b:schedule", "b:log"}, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDoesNotBuffer(t *testing.T) {
	r := NewRegistry()
	r.Publish("schedule")

	var got []string
	r.Subscribe(func(topic string) { got = append(got, topic) })
	assert.Empty(t, got)

	r.Publish("control")
	assert.Equal(t, []string{"control"}, got)
}

func TestRegistryListenerSubscribingDuringPublish(t *testing.T) {
	r := NewRegistry()
	late := 0
	r.Subscribe(func(string) {
		r.Subscribe(func(string) { late++ })
	})

	r.Publish("schedule")
	assert.Equal(t, 0, late)
}

func TestAsyncKeepsOrderWithoutBlocking(t *testing.T) {
	release := make(chan struct{})
	got := make(chan string, 8)
	listener := Async(func(topic string) {
		if topic == "schedule" {
			<-release
		}
		got <- topic
	})

	r := NewRegistry()
	r.Subscribe(listener)

	done := make(chan struct{})
	go func() {
		for _, topic := range []string{"schedule", "control", "log", "dummy"} {
			r.Publish(topic)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow listener")
	}

	close(release)
	for _, want := range []string{"schedule", "control", "log", "dummy"} {
		assert.Equal(t, want, receive(t, got))
	}
}

func TestAsyncRestartsAfterDrain(t *testing.T) {
	got := make(chan string, 2)
	listener := Async(func(topic string) { got <- topic })

	listener("schedule")
	assert.Equal(t, "schedule", receive(t, got))
	listener("log")
	assert.Equal(t, "log", receive(t, got))
}

func newTestClient() (*Client, *FakeOpener, *clock.Fake) {
	opener := NewFakeOpener()
	sched := clock.NewFake(time.Unix(0, 0))
	c := NewClient("http://appliance/api/event", opener.Open, sched, nil)
	return c, opener, sched
}

func TestClientDeliversInOrder(t *testing.T) {
	c, opener, _ := newTestClient()
	var got []string
	c.Subscribe(func(topic string) { got = append(got, topic) })

	c.Start()
	c.Start()
	require.Equal(t, 1, opener.Opened())
	assert.Equal(t, "http://appliance/api/event", opener.Last().URL)

	opener.Last().Emit("schedule")
	opener.Last().Emit("control")
	opener.Last().Emit("log")
	assert.Equal(t, []string{"schedule", "control", "log"}, got)
}

func TestClientReconnectsAfterBackoff(t *testing.T) {
	reconnects := 0
	opener := NewFakeOpener()
	sched := clock.NewFake(time.Unix(0, 0))
	c := NewClient("http://appliance/api/event", opener.Open, sched, nil, WithReconnectHook(func() { reconnects++ }))
	c.Start()
	first := opener.Last()

	first.Fail(Closed)
	first.Fail(Closed)
	assert.Equal(t, 1, sched.Pending(), "exactly one reconnect is scheduled")
	assert.GreaterOrEqual(t, first.Closes, 1)

	sched.Advance(config.ReconnectBackoff - time.Millisecond)
	assert.Equal(t, 1, opener.Opened())

	sched.Advance(time.Millisecond)
	assert.Equal(t, 2, opener.Opened())
	assert.Equal(t, 1, c.Reconnects())
	assert.Equal(t, 1, reconnects)
	assert.Equal(t, 0, sched.Pending())
}

func TestClientIgnoresTransientErrors(t *testing.T) {
	c, opener, sched := newTestClient()
	c.Start()

	opener.Last().Fail(Connecting)
	assert.Equal(t, 0, sched.Pending())
	assert.Equal(t, 0, opener.Last().Closes)
	assert.Equal(t, Connecting, c.State())
}

func TestClientIgnoresStaleSource(t *testing.T) {
	c, opener, sched := newTestClient()
	c.Start()
	first := opener.Last()
	first.Fail(Closed)
	sched.Advance(config.ReconnectBackoff)
	require.Equal(t, 2, opener.Opened())

	first.Fail(Closed)
	assert.Equal(t, 0, sched.Pending())
}

func TestClientFailuresInvisibleToSubscribers(t *testing.T) {
	c, opener, sched := newTestClient()
	var got []string
	c.Subscribe(func(topic string) { got = append(got, topic) })
	c.Start()

	opener.Last().Fail(Connecting)
	opener.Last().Fail(Closed)
	sched.Advance(config.ReconnectBackoff)
	opener.Last().Emit("schedule")

	assert.Equal(t, []string{"schedule"}, got)
}

func TestClientCloseCancelsReconnect(t *testing.T) {
	c, opener, sched := newTestClient()
	c.Start()
	opener.Last().Fail(Closed)

	c.Close()
	sched.Advance(time.Minute)
	assert.Equal(t, 1, opener.Opened())

	c.Start()
	assert.Equal(t, 1, opener.Opened())
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
}

func TestHTTPSourceDeliversMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		sseHeaders(w)
		fmt.Fprint(w, ": comment\n\ndata: schedule\n\nevent: other\ndata: skipped\n\ndata:control\r\n\r\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	msgs := make(chan string, 4)
	src := NewHTTPOpener(srv.Client(), nil)(srv.URL, Handlers{
		OnMessage: func(d string) { msgs <- d },
		OnError:   func(ReadyState) {},
	})
	defer src.Close()

	assert.Equal(t, "schedule", receive(t, msgs))
	assert.Equal(t, "control", receive(t, msgs))
	assert.Equal(t, Open, src.ReadyState())
}

func TestHTTPSourceRetriesAfterDrop(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		sseHeaders(w)
		if n == 1 {
			fmt.Fprint(w, "retry: 10\n\ndata: control\n\n")
			return
		}
		fmt.Fprint(w, "data: log\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	msgs := make(chan string, 4)
	states := make(chan ReadyState, 4)
	src := NewHTTPOpener(srv.Client(), nil)(srv.URL, Handlers{
		OnMessage: func(d string) { msgs <- d },
		OnError:   func(st ReadyState) { states <- st },
	})
	defer src.Close()

	assert.Equal(t, "control", receive(t, msgs))
	select {
	case st := <-states:
		assert.Equal(t, Connecting, st)
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
	assert.Equal(t, "log", receive(t, msgs))
}

func TestHTTPSourceClosesOnBadResponse(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
		{"wrong content type", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "data: schedule\n\n")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			states := make(chan ReadyState, 1)
			src := NewHTTPOpener(srv.Client(), nil)(srv.URL, Handlers{
				OnMessage: func(string) { t.Error("unexpected message") },
				OnError:   func(st ReadyState) { states <- st },
			})
			defer src.Close()

			select {
			case st := <-states:
				assert.Equal(t, Closed, st)
			case <-time.After(2 * time.Second):
				t.Fatal("no error reported")
			}
			assert.Equal(t, Closed, src.ReadyState())
		})
	}
}

func TestClientWithHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		fmt.Fprint(w, "data: schedule\n\ndata: dummy\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, NewHTTPOpener(srv.Client(), nil), clock.NewReal(), nil)
	msgs := make(chan string, 4)
	c.Subscribe(func(topic string) { msgs <- topic })
	c.Start()
	defer c.Close()

	assert.Equal(t, "schedule", receive(t, msgs))
	assert.Equal(t, "dummy", receive(t, msgs))
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return ""
}
