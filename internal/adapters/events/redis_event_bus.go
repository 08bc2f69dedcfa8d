package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/propertysearch/backend/pkg/retry"
)

// RedisEventBus fans property events out across instances using Redis Pub/Sub.
// Each instance holds one Redis subscription per channel and fans it out to
// its local subscribers.
type RedisEventBus struct {
	client *redisclient.Client
	subs   *fanout

	mu      sync.Mutex
	pubsubs map[string]*redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:  client,
		subs:    newFanout(),
		pubsubs: make(map[string]*redis.PubSub),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Publish publishes an event to every instance subscribed to channel. Short
// Redis hiccups are retried before the error reaches the caller.
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.PropertyEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := retry.DoValue(ctx, publishRetry, "property event publish", func() (int64, error) {
		return b.client.Client().Publish(ctx, channel, data).Result()
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().
		Str("channel", channel).
		Str("event_id", event.ID).
		Str("property_id", event.PropertyID).
		Int64("receivers", receivers).
		Msg("published property event")
	return nil
}

var publishRetry = retry.Config{
	MaxAttempts:     3,
	InitialDelay:    50 * time.Millisecond,
	MaxDelay:        200 * time.Millisecond,
	BackoffFactor:   2,
	MaxTotalTimeout: time.Second,
}

// Subscribe returns a channel of events that stays open until ctx is done
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.PropertyEvent, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, fmt.Errorf("event bus closed: %w", err)
	}

	b.mu.Lock()
	if _, ok := b.pubsubs[channel]; !ok {
		pubsub := b.client.Client().Subscribe(b.ctx, channel)
		b.pubsubs[channel] = pubsub
		go b.receive(channel, pubsub)
	}
	b.mu.Unlock()

	ch, count := b.subs.add(channel)
	log.Info().Str("channel", channel).Int("subscribers", count).Msg("subscribed to channel")

	go func() {
		<-ctx.Done()
		if b.subs.remove(channel, ch) == 0 {
			b.closePubSub(channel)
		}
	}()
	return ch, nil
}

func (b *RedisEventBus) receive(channel string, pubsub *redis.PubSub) {
	// a subscription that ends on its own takes its subscribers with it;
	// one replaced after an unsubscribe leaves the new subscribers alone
	defer func() {
		b.mu.Lock()
		current := b.pubsubs[channel] == pubsub
		if current {
			delete(b.pubsubs, channel)
		}
		b.mu.Unlock()
		if current {
			_ = pubsub.Close()
			b.subs.closeChannel(channel)
		}
	}()

	messages := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event entities.PropertyEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("discarding malformed property event")
				continue
			}
			b.subs.deliver(channel, &event)
		}
	}
}

func (b *RedisEventBus) closePubSub(channel string) error {
	b.mu.Lock()
	pubsub, ok := b.pubsubs[channel]
	delete(b.pubsubs, channel)
	b.mu.Unlock()

	if !ok {
		return nil
	}
	if err := pubsub.Close(); err != nil {
		return fmt.Errorf("failed to close subscription %s: %w", channel, err)
	}
	log.Info().Str("channel", channel).Msg("closed subscription")
	return nil
}

// Unsubscribe closes every local subscriber of channel
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.subs.closeChannel(channel)
	return b.closePubSub(channel)
}

// Close closes the event bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.subs.closeAll()

	b.mu.Lock()
	channels := make([]string, 0, len(b.pubsubs))
	for channel := range b.pubsubs {
		channels = append(channels, channel)
	}
	b.mu.Unlock()

	var errs []error
	for _, channel := range channels {
		if err := b.closePubSub(channel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
