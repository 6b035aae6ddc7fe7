package mqtt

import "sync"

type Message struct {
	Topic   string
	Payload string
}

// FakePublisher records published messages.
type FakePublisher struct {
	mu       sync.Mutex
	Messages []Message
	Err      error
}

func (f *FakePublisher) Publish(topic, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Messages = append(f.Messages, Message{Topic: topic, Payload: message})
	return nil
}

func (f *FakePublisher) Sent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.Messages...)
}
