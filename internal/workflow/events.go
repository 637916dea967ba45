package workflow

import (
	"sync"

	"github.com/tears-mysthrala/agents-orchestration-system/internal/protocol"
)

// DefaultEventBuffer is the per-subscriber channel depth.
const DefaultEventBuffer = 64

// Bus fans step events out to subscribers. Publishing never blocks the
// coordinator: a subscriber that falls behind loses its oldest buffered
// events, which the at-least-once contract allows.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan protocol.StepEvent
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan protocol.StepEvent)}
}

// Subscribe registers a new observer. The returned cancel func must be called
// to release the subscription; the channel is closed afterwards.
func (b *Bus) Subscribe(buffer int) (<-chan protocol.StepEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	ch := make(chan protocol.StepEvent, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber, evicting the oldest buffered event
// of any subscriber whose channel is full.
func (b *Bus) Publish(ev protocol.StepEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
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
}
