package event

import "sync"

// FakeOpener records every source it opens. Tests drive the sources through
// their Handlers.
type FakeOpener struct {
	mu      sync.Mutex
	Sources []*FakeSource
}

func NewFakeOpener() *FakeOpener {
	return &FakeOpener{}
}

func (f *FakeOpener) Open(url string, h Handlers) Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &FakeSource{URL: url, Handlers: h, state: Connecting}
	f.Sources = append(f.Sources, s)
	return s
}

// Opened returns how many sources were opened.
func (f *FakeOpener) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sources)
}

func (f *FakeOpener) Last() *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sources) == 0 {
		return nil
	}
	return f.Sources[len(f.Sources)-1]
}

type FakeSource struct {
	mu       sync.Mutex
	URL      string
	Handlers Handlers
	state    ReadyState
	Closes   int
}

func (s *FakeSource) ReadyState() ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *FakeSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Closed
	s.Closes++
}

func (s *FakeSource) Emit(data string) {
	s.Handlers.OnMessage(data)
}

// Fail puts the source in st and reports it, as the transport would.
func (s *FakeSource) Fail(st ReadyState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.Handlers.OnError(st)
}
