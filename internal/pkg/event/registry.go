package event

import "sync"

// Listener receives a topic. Topics carry no payload: receivers re-fetch
// whatever the topic names.
type Listener func(topic string)

// Token identifies a subscription.
type Token uint64

// Registry delivers each published topic to every listener, synchronously
// and in registration order. Nothing is buffered.
type Registry struct {
	mu        sync.Mutex
	next      Token
	listeners []subscription
}

type subscription struct {
	token Token
	fn    Listener
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Subscribe(fn Listener) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.listeners = append(r.listeners, subscription{token: r.next, fn: fn})
	return r.next
}

// Unsubscribe removes the listener registered under t. Unknown tokens are
// ignored.
func (r *Registry) Unsubscribe(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.listeners {
		if s.token == t {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return
		}
	}
}

func (r *Registry) Publish(topic string) {
	r.mu.Lock()
	subs := make([]subscription, len(r.listeners))
	copy(subs, r.listeners)
	r.mu.Unlock()

	for _, s := range subs {
		s.fn(topic)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Async wraps fn so deliveries run on a worker goroutine instead of the
// publisher's. Topics queue up and reach fn one at a time in arrival order.
// The worker exits once the queue drains. Use it for listeners that go to
// the network.
func Async(fn Listener) Listener {
	var (
		mu      sync.Mutex
		queue   []string
		running bool
	)
	drain := func() {
		for {
			mu.Lock()
			if len(queue) == 0 {
				running = false
				mu.Unlock()
				return
			}
			topic := queue[0]
			queue = queue[1:]
			mu.Unlock()
			fn(topic)
		}
	}
	return func(topic string) {
		mu.Lock()
		defer mu.Unlock()
		queue = append(queue, topic)
		if !running {
			running = true
			go drain()
		}
	}
}
