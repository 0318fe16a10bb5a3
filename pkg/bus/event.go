package bus

import (
	"context"
	"sync"

	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
)

type Kind string

const (
	// KindEntry carries a bulletin board entry that arrived from gossip.
	KindEntry Kind = "entry"
	// KindDelivered is published when a packet reaches its final hop.
	KindDelivered Kind = "delivered"
)

type Event struct {
	Kind    Kind
	Hop     uint64
	Body    any
	TraceID string
}

type Subscriber <-chan Event

// Bus fans each event out to every subscriber.
type Bus struct {
	mu   sync.RWMutex
	size int
	subs []chan Event
}

func New(size int) *Bus {
	if size <= 0 {
		size = 128
	}
	return &Bus{size: size}
}

// Publish never blocks; a subscriber whose buffer is full misses the event.
func (b *Bus) Publish(_ context.Context, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			metrics.Inc("bus_dropped_total", map[string]string{"kind": string(ev.Kind)})
		}
	}
}

// Subscribe returns a channel that receives events published from now on.
func (b *Bus) Subscribe() Subscriber {
	ch := make(chan Event, b.size)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}
