package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lang_gateway/internal/utils"
)

// DefaultKeyInvalidationChannel carries the API keys whose registry row changed
const DefaultKeyInvalidationChannel = "usage:apikey-invalidations"

// KeyInvalidationBus fans registry writes out to every process holding a key cache.
// keyadmin publishes; the gateway listens and evicts. Messages sent while a listener is
// disconnected are lost, so the cache TTL still bounds staleness.
type KeyInvalidationBus struct {
	client  *redis.Client
	channel string
	logger  *utils.Logger
}

// NewKeyInvalidationBus creates a bus on channel, or DefaultKeyInvalidationChannel
func NewKeyInvalidationBus(client *redis.Client, channel string) *KeyInvalidationBus {
	if channel == "" {
		channel = DefaultKeyInvalidationChannel
	}
	return &KeyInvalidationBus{
		client:  client,
		channel: channel,
		logger:  utils.NewLogger("key-invalidation"),
	}
}

// Publish announces that key changed
func (b *KeyInvalidationBus) Publish(ctx context.Context, key string) error {
	if err := b.client.Publish(ctx, b.channel, key).Err(); err != nil {
		return fmt.Errorf("%w: publish invalidation: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Listen subscribes to the channel and calls evict for every published key until ctx is
// done. It returns once the subscription is confirmed.
func (b *KeyInvalidationBus) Listen(ctx context.Context, evict func(key string)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("%w: subscribe %s: %w", ErrStoreUnavailable, b.channel, err)
	}

	messages := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				evict(msg.Payload)
			}
		}
	}()

	b.logger.Info("Listening for key invalidations", "channel", b.channel)
	return nil
}
