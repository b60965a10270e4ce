package notification

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[*memorySubscription]struct{}
}

// NewMemoryBroker builds an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{})}
}

// Publish wakes every subscriber of topic without blocking.
func (b *MemoryBroker) Publish(_ context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[topic] {
		sub.wake()
	}
	return nil
}

// Subscribe registers a subscription on topic.
func (b *MemoryBroker) Subscribe(_ context.Context, topic string) (Subscription, error) {
	sub := &memorySubscription{broker: b, topic: topic, ch: make(chan struct{}, 1)}
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memorySubscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

func (b *MemoryBroker) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sub.topic]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.topic)
	}
}

type memorySubscription struct {
	broker *MemoryBroker
	topic  string
	ch     chan struct{}
	once   sync.Once
}

// wake coalesces: a pending wake-up already covers this one.
func (s *memorySubscription) wake() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) C() <-chan struct{} { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() { s.broker.remove(s) })
	return nil
}
