package event

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

const defaultRetry = 3 * time.Second

// Handlers are called from the source's own goroutine, one at a time.
type Handlers struct {
	OnOpen    func()
	OnMessage func(data string)
	OnError   func(state ReadyState)
}

// Source is one server-sent event stream.
type Source interface {
	ReadyState() ReadyState
	// Close stops the stream without waiting for it to wind down.
	Close()
}

// Opener starts a Source for url.
type Opener func(url string, h Handlers) Source

var errFatal = errors.New("event stream failed")

// NewHTTPOpener opens text/event-stream connections with client. A
// transport error leaves the source Connecting and it retries on its own;
// a bad status or content type closes it for good.
func NewHTTPOpener(client *http.Client, logger *zap.SugaredLogger) Opener {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return func(url string, h Handlers) Source {
		ctx, cancel := context.WithCancel(context.Background())
		s := &httpSource{
			url:    url,
			client: client,
			h:      h,
			cancel: cancel,
			retry:  defaultRetry,
			logger: logger,
		}
		go s.run(ctx)
		return s
	}
}

type httpSource struct {
	url    string
	client *http.Client
	h      Handlers
	cancel context.CancelFunc
	logger *zap.SugaredLogger

	state       int32
	retry       time.Duration
	lastEventID string
	closeOnce   sync.Once
}

func (s *httpSource) ReadyState() ReadyState {
	return ReadyState(atomic.LoadInt32(&s.state))
}

func (s *httpSource) setState(st ReadyState) {
	atomic.StoreInt32(&s.state, int32(st))
}

func (s *httpSource) Close() {
	s.closeOnce.Do(func() {
		s.setState(Closed)
		s.cancel()
	})
}

func (s *httpSource) run(ctx context.Context) {
	for {
		err := s.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errFatal) {
			s.logger.Warnf("event stream closed: %s", err)
			s.setState(Closed)
			s.emitError(Closed)
			return
		}
		s.logger.Debugf("event stream interrupted, retrying in %s: %v", s.retry, err)
		s.setState(Connecting)
		s.emitError(Connecting)

		t := time.NewTimer(s.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *httpSource) emitError(st ReadyState) {
	if s.h.OnError != nil {
		s.h.OnError(st)
	}
}

func (s *httpSource) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %s", errFatal, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.lastEventID != "" {
		req.Header.Set("Last-Event-ID", s.lastEventID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", errFatal, resp.StatusCode)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		return fmt.Errorf("%w: unexpected content type %q", errFatal, mediaType)
	}

	s.setState(Open)
	if s.h.OnOpen != nil {
		s.h.OnOpen()
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var data strings.Builder
	eventType := ""
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			s.dispatch(data.String(), eventType)
			data.Reset()
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
		case "event":
			eventType = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				s.lastEventID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				s.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return errors.New("stream ended")
}

// dispatch delivers default and "message" events only.
func (s *httpSource) dispatch(data, eventType string) {
	if data == "" {
		return
	}
	if eventType != "" && eventType != "message" {
		return
	}
	if s.h.OnMessage != nil {
		s.h.OnMessage(strings.TrimSuffix(data, "\n"))
	}
}
