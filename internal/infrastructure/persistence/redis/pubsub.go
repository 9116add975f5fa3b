package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/sharpmind/trainer-hub/internal/infrastructure/messaging"
)

// PubSubClient adapts go-redis Pub/Sub to messaging.RedisClient.
// Close releases subscriptions only; the connection belongs to Cache.
type PubSubClient struct {
	client redis.UniversalClient

	mu     sync.Mutex
	subs   []*redis.PubSub
	closed bool
}

// NewPubSubClient creates the adapter on top of the cache connection.
func NewPubSubClient(cache *Cache) *PubSubClient {
	return &PubSubClient{client: cache.Client()}
}

// Publish sends a message to a channel.
func (p *PubSubClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return p.client.Publish(ctx, channel, message).Err()
}

// Subscribe confirms the subscription and streams its messages until ctx
// is cancelled or the client is closed.
func (p *PubSubClient) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, messaging.ErrEventBusClosed
	}
	p.mu.Unlock()

	ps := p.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	p.mu.Lock()
	p.subs = append(p.subs, ps)
	p.mu.Unlock()

	out := make(chan messaging.RedisMessage, 64)
	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes every subscription opened through this client.
func (p *PubSubClient) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	for _, ps := range p.subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.subs = nil
	return firstErr
}
