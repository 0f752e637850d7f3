package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-plugr/plugr/log"
)

const (
	// DefaultQueueSize is the bound on undelivered events.
	DefaultQueueSize = 256

	// DefaultHistorySize is the bound on retained event history.
	DefaultHistorySize = 512
)

type subscription struct {
	listener Listener
	filter   *Filter
}

// Bus is an asynchronous event bus with a bounded queue, a single dispatch
// goroutine, and an in-memory history ring. Listener panics are recovered
// and logged at the dispatch point; they never propagate to publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscription
	history []Event
	histMax int

	queue  chan Event
	wg     sync.WaitGroup
	closed bool
}

// NewBus creates a bus and starts its dispatch goroutine. Non-positive
// sizes fall back to the package defaults.
func NewBus(queueSize, historySize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	b := &Bus{
		queue:   make(chan Event, queueSize),
		histMax: historySize,
	}
	b.wg.Add(1)
	go b.dispatch()
	return b
}

// Subscribe registers a listener, optionally restricted by a filter.
func (b *Bus) Subscribe(l Listener, filter *Filter) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{listener: l, filter: filter})
}

// Publish enqueues an event for asynchronous delivery; publishers are
// never blocked. When the queue is full a below-high-priority event is
// dropped from delivery (it is still recorded in history); a high or
// critical event instead evicts the oldest queued event so failure
// notifications survive overflow.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.appendHistoryLocked(e)
	b.mu.Unlock()

	select {
	case b.queue <- e:
		return
	default:
	}

	if e.Priority < PriorityHigh {
		log.Warnf("event queue full, dropping event %s for plugin %s", e.Type, e.PluginID)
		return
	}
	select {
	case evicted := <-b.queue:
		log.Warnf("event queue full, evicting %s for plugin %s in favor of %s",
			evicted.Type, evicted.PluginID, e.Type)
	default:
	}
	select {
	case b.queue <- e:
	default:
		log.Warnf("event queue full, dropping event %s for plugin %s", e.Type, e.PluginID)
	}
}

// History returns the retained events matching the filter, oldest first.
func (b *Bus) History(filter Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, e := range b.history {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Close stops accepting events and waits for queued events to be delivered.
// Safe to call once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.queue)
	b.wg.Wait()
}

func (b *Bus) appendHistoryLocked(e Event) {
	b.history = append(b.history, e)
	if len(b.history) > b.histMax {
		b.history = b.history[len(b.history)-b.histMax:]
	}
}

func (b *Bus) dispatch() {
	defer b.wg.Done()
	for e := range b.queue {
		b.mu.RLock()
		subs := make([]subscription, len(b.subs))
		copy(subs, b.subs)
		b.mu.RUnlock()

		for _, sub := range subs {
			if sub.filter != nil && !sub.filter.Match(e) {
				continue
			}
			b.deliver(sub.listener, e)
		}
	}
}

func (b *Bus) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("event listener panicked on %s for plugin %s: %v", e.Type, e.PluginID, r)
		}
	}()
	l.HandleEvent(e)
}
