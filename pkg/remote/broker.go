package remote

import (
	"context"
	"log/slog"
	"sync"
)

// subscriberBuffer is the per-subscriber queue depth. Changes published to a
// full queue are dropped and logged.
const subscriberBuffer = 256

// Broker fans out change events to subscribers. Publish never blocks; each
// subscriber receives its events in publish order on its own goroutine.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	logger *slog.Logger
}

type subscription struct {
	collection string
	filter     Filter
	ch         chan Change
	done       chan struct{}
	once       sync.Once
}

// NewBroker creates a Broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[uint64]*subscription),
		logger: logger.With("component", "broker"),
	}
}

// Subscribe registers onChange for changes to collection whose row matches
// f. The subscription ends when the returned Unsubscribe is called or ctx is
// done.
func (b *Broker) Subscribe(ctx context.Context, collection string, f Filter, onChange func(Change)) Unsubscribe {
	sub := &subscription{
		collection: collection,
		filter:     f,
		ch:         make(chan Change, subscriberBuffer),
		done:       make(chan struct{}),
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		sub.once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.done)
		})
	}

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case <-ctx.Done():
				unsubscribe()
				return
			case c := <-sub.ch:
				onChange(c)
			}
		}
	}()

	return unsubscribe
}

// Publish delivers c to every matching subscriber.
func (b *Broker) Publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.collection != c.Collection {
			continue
		}
		if c.Row != nil && !sub.filter.Match(c.Row) {
			continue
		}
		select {
		case sub.ch <- cloneChange(c):
		default:
			b.logger.Warn("subscriber queue full, dropping change",
				"collection", c.Collection, "key", c.Key, "kind", c.Kind)
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func cloneChange(c Change) Change {
	c.Row = c.Row.Clone()
	return c
}
