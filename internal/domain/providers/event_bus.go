package providers

import (
	"context"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// EventChannelPropertyUpdates carries property changed and deleted events
const EventChannelPropertyUpdates = "property:updates"

// EventBus moves property change notifications from the property management
// side to every search instance. Delivery is at most once: a subscriber that
// falls behind loses events and relies on the periodic rebuild to converge.
type EventBus interface {
	Publish(ctx context.Context, channel string, event *entities.PropertyEvent) error

	// Subscribe returns a channel that is closed when ctx is done, on
	// Unsubscribe, or when the bus closes
	Subscribe(ctx context.Context, channel string) (<-chan *entities.PropertyEvent, error)

	// Unsubscribe closes every local subscriber of channel
	Unsubscribe(ctx context.Context, channel string) error

	Close() error
}
