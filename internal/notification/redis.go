package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const defaultChannelPrefix = "picoauth:notify:"

// RedisBroker delivers wake-ups across processes over Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

// NewRedisBroker builds a pub/sub broker. An empty prefix uses the default.
func NewRedisBroker(client *redis.Client, prefix string) *RedisBroker {
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	return &RedisBroker{client: client, prefix: prefix}
}

func (b *RedisBroker) channel(topic string) string {
	return b.prefix + topic
}

// Publish sends a wake-up on the topic channel.
func (b *RedisBroker) Publish(ctx context.Context, topic string) error {
	if err := b.client.Publish(ctx, b.channel(topic), "1").Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns once the server has confirmed the subscription, so no
// publication issued after Subscribe returns can be missed.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &redisSubscription{ps: ps, ch: make(chan struct{}, 1), done: make(chan struct{})}
	go sub.forward()
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan struct{}
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) forward() {
	msgs := s.ps.Channel()
	for {
		select {
		case _, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case s.ch <- struct{}{}:
			default:
			}
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) C() <-chan struct{} { return s.ch }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
