package events

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// subscriberBuffer is the per-subscriber queue length; events beyond it are dropped
const subscriberBuffer = 100

// fanout tracks local subscribers per channel. Delivery never blocks the
// publisher: a subscriber whose queue is full misses the event and the
// periodic rebuild repairs whatever it missed.
type fanout struct {
	mu       sync.RWMutex
	channels map[string]map[chan *entities.PropertyEvent]struct{}
	closed   bool
}

func newFanout() *fanout {
	return &fanout{channels: make(map[string]map[chan *entities.PropertyEvent]struct{})}
}

// add registers a subscriber and reports how many the channel now has.
// A closed fanout hands back an already closed channel.
func (f *fanout) add(channel string) (chan *entities.PropertyEvent, int) {
	ch := make(chan *entities.PropertyEvent, subscriberBuffer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch, 0
	}
	if f.channels[channel] == nil {
		f.channels[channel] = make(map[chan *entities.PropertyEvent]struct{})
	}
	f.channels[channel][ch] = struct{}{}
	return ch, len(f.channels[channel])
}

// remove closes one subscriber and reports how many remain
func (f *fanout) remove(channel string, ch chan *entities.PropertyEvent) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs := f.channels[channel]
	if _, ok := subs[ch]; !ok {
		return len(subs)
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(f.channels, channel)
	}
	return len(subs)
}

// deliver returns the number of subscribers that missed the event
func (f *fanout) deliver(channel string, event *entities.PropertyEvent) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	dropped := 0
	for sub := range f.channels[channel] {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		log.Warn().
			Str("channel", channel).
			Str("event_id", event.ID).
			Int("dropped", dropped).
			Msg("subscriber queue full, dropping event")
	}
	return dropped
}

func (f *fanout) closeChannel(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.channels[channel] {
		close(sub)
	}
	delete(f.channels, channel)
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for channel, subs := range f.channels {
		for sub := range subs {
			close(sub)
		}
		delete(f.channels, channel)
	}
	f.closed = true
}
