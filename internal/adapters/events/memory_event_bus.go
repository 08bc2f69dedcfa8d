package events

import (
	"context"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
)

// MemoryEventBus delivers events within a single process
type MemoryEventBus struct {
	subs *fanout
}

// NewMemoryEventBus creates an in-process event bus
func NewMemoryEventBus() providers.EventBus {
	return &MemoryEventBus{subs: newFanout()}
}

// Publish delivers the event to current subscribers without blocking
func (b *MemoryEventBus) Publish(ctx context.Context, channel string, event *entities.PropertyEvent) error {
	b.subs.deliver(channel, event)
	return nil
}

// Subscribe returns a channel of events that stays open until ctx is done
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.PropertyEvent, error) {
	ch, _ := b.subs.add(channel)
	go func() {
		<-ctx.Done()
		b.subs.remove(channel, ch)
	}()
	return ch, nil
}

// Unsubscribe closes every subscriber of channel
func (b *MemoryEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.subs.closeChannel(channel)
	return nil
}

// Close closes all subscriptions
func (b *MemoryEventBus) Close() error {
	b.subs.closeAll()
	return nil
}
