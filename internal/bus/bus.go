package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultHistorySize is the number of recent events retained for replay.
	DefaultHistorySize = 256

	// DefaultChannelBuffer is the buffer size for subscriber channels.
	DefaultChannelBuffer = 100
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus is closed")

// SubscriptionID is a unique identifier for event subscriptions.
type SubscriptionID string

// Subscription is a single registered handler. Each subscription has its own
// goroutine and buffered channel so a slow handler never blocks publishers.
type Subscription struct {
	ID        SubscriptionID
	EventType EventType
	Handler   func(Event)
	Channel   chan Event
	done      chan struct{}
}

// Bus is a thread-safe pub/sub bus with wildcard subscriptions and a bounded
// event history.
type Bus struct {
	mu         sync.RWMutex
	subCounter uint64
	typedSubs  map[EventType]map[SubscriptionID]*Subscription
	wildcard   map[SubscriptionID]*Subscription
	byID       map[SubscriptionID]*Subscription

	historyMu   sync.RWMutex
	history     []Event
	historySize int

	dropped atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a bus with the default history size.
func New() *Bus {
	return NewWithHistory(DefaultHistorySize)
}

// NewWithHistory creates a bus retaining up to historySize events.
func NewWithHistory(historySize int) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		typedSubs:   make(map[EventType]map[SubscriptionID]*Subscription),
		wildcard:    make(map[SubscriptionID]*Subscription),
		byID:        make(map[SubscriptionID]*Subscription),
		history:     make([]Event, 0, historySize),
		historySize: historySize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe registers a handler for one event type. EventType("") subscribes
// to every event. An empty ID is returned if the bus is closed.
func (b *Bus) Subscribe(eventType EventType, handler func(Event)) SubscriptionID {
	if b.closed.Load() {
		return ""
	}

	b.mu.Lock()
	b.subCounter++
	id := SubscriptionID(fmt.Sprintf("sub_%d", b.subCounter))
	sub := &Subscription{
		ID:        id,
		EventType: eventType,
		Handler:   handler,
		Channel:   make(chan Event, DefaultChannelBuffer),
		done:      make(chan struct{}),
	}
	b.byID[id] = sub
	if eventType == "" {
		b.wildcard[id] = sub
	} else {
		if b.typedSubs[eventType] == nil {
			b.typedSubs[eventType] = make(map[SubscriptionID]*Subscription)
		}
		b.typedSubs[eventType][id] = sub
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go b.handleSubscription(sub)
	return id
}

func (b *Bus) handleSubscription(sub *Subscription) {
	defer b.wg.Done()
	for {
		select {
		case event := <-sub.Channel:
			sub.Handler(event)
		case <-sub.done:
			return
		case <-b.ctx.Done():
			return
		}
	}
}

// Unsubscribe removes a subscription and stops its goroutine.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	sub, ok := b.byID[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(b.byID, id)
	if sub.EventType == "" {
		delete(b.wildcard, id)
	} else if subs, ok := b.typedSubs[sub.EventType]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.typedSubs, sub.EventType)
		}
	}
	b.mu.Unlock()

	close(sub.done)
	return nil
}

// Publish records the event in history and delivers it to matching
// subscribers. Subscribers with a full buffer miss the event.
func (b *Bus) Publish(event Event) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.addToHistory(event)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.wildcard {
		b.deliver(sub, event)
	}
	for _, sub := range b.typedSubs[event.Type] {
		b.deliver(sub, event)
	}
	return nil
}

func (b *Bus) deliver(sub *Subscription, event Event) {
	select {
	case sub.Channel <- event:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bus) addToHistory(event Event) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history = append(b.history, event)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
}

// History returns a copy of the retained events, oldest first.
func (b *Bus) History() []Event {
	return b.Recent(b.historySize)
}

// Recent returns up to the last n events, oldest first.
func (b *Bus) Recent(n int) []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	if n > len(b.history) {
		n = len(b.history)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// SubscriptionsCount returns the number of active subscriptions.
func (b *Bus) SubscriptionsCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// Dropped returns the number of deliveries skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops all subscription goroutines and waits for them to exit.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	b.byID = make(map[SubscriptionID]*Subscription)
	b.typedSubs = make(map[EventType]map[SubscriptionID]*Subscription)
	b.wildcard = make(map[SubscriptionID]*Subscription)
	b.mu.Unlock()
	return nil
}
