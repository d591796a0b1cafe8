package memory

import (
	"context"
	"sync"

	"lesson-progress-service/internal/domain"
)

// EventBus fans progress-changed signals out to in-process subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[chan domain.ProgressChanged]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[chan domain.ProgressChanged]struct{})}
}

func (b *EventBus) Publish(_ context.Context, ev domain.ProgressChanged) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// drop the oldest signal rather than block the publisher
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
	return nil
}

// Subscribe returns a buffered channel of signals. The caller must invoke cancel.
func (b *EventBus) Subscribe(buffer int) (<-chan domain.ProgressChanged, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan domain.ProgressChanged, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}
