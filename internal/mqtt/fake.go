package mqtt

import "sync"

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu       sync.Mutex
	Events   []PresenceEvent
	Payloads [][]byte
	// PublishError, if set, will be returned by Publish.
	PublishError error
	Closed       bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) Publish(event PresenceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Published returns a copy of the recorded events.
func (f *FakePublisher) Published() []PresenceEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PresenceEvent(nil), f.Events...)
}
