// Package events delivers committed inventory changes to their subscribers,
// in process or through RabbitMQ.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// Handler reacts to one committed movement. Handlers must be idempotent.
type Handler func(ctx context.Context, evt messaging.MovementCommittedEvent) error

// Dispatcher delivers committed movements. Dispatch is only called after the
// unit of work that produced the events has committed; it never fails the
// caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, evts ...messaging.MovementCommittedEvent)
}

type subscriber struct {
	name    string
	handler Handler
}

// parkedDelivery is an event a subscriber kept failing on.
type parkedDelivery struct {
	sub subscriber
	evt messaging.MovementCommittedEvent
}

// BusOption configures a LocalBus.
type BusOption func(*LocalBus)

// WithRetry sets how often a failing subscriber is called per dispatch and
// the pause before each retry, which grows linearly with the attempt.
func WithRetry(attempts int, backoff time.Duration) BusOption {
	return func(b *LocalBus) {
		if attempts > 0 {
			b.attempts = attempts
		}
		if backoff >= 0 {
			b.backoff = backoff
		}
	}
}

// WithParkLimit caps the deliveries kept for Redeliver. The oldest is
// dropped when the cap is reached.
func WithParkLimit(n int) BusOption {
	return func(b *LocalBus) {
		if n > 0 {
			b.parkLimit = n
		}
	}
}

// LocalBus calls named subscribers synchronously, in subscription order.
// A failing subscriber is retried; when it still fails the delivery is
// parked for Redeliver and the other subscribers are unaffected.
type LocalBus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	attempts    int
	backoff     time.Duration
	parkLimit   int
	parkedMu    sync.Mutex
	parked      []parkedDelivery
	logger      *logger.Logger
}

// NewLocalBus creates an empty bus. By default each delivery is tried three
// times and up to 1000 failed deliveries are kept.
func NewLocalBus(log *logger.Logger, opts ...BusOption) *LocalBus {
	b := &LocalBus{
		attempts:  3,
		backoff:   50 * time.Millisecond,
		parkLimit: 1000,
		logger:    log.WithComponent("event_bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h under name.
func (b *LocalBus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, subscriber{name: name, handler: h})
}

// Subscribers returns the registered subscriber names.
func (b *LocalBus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.subscribers))
	for i, s := range b.subscribers {
		names[i] = s.name
	}
	return names
}

// Dispatch delivers each event to every subscriber.
func (b *LocalBus) Dispatch(ctx context.Context, evts ...messaging.MovementCommittedEvent) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, evt := range evts {
		for _, s := range subs {
			if err := b.deliverWithRetry(ctx, s, evt); err != nil {
				b.logger.Error().
					Err(err).
					Str("subscriber", s.name).
					Str("movement_id", evt.MovementID).
					Str("product_id", evt.ProductID).
					Int("attempts", b.attempts).
					Msg("event subscriber failed, delivery parked")
				b.park(parkedDelivery{sub: s, evt: evt})
			}
		}
	}
}

// Parked returns the number of deliveries waiting for Redeliver.
func (b *LocalBus) Parked() int {
	b.parkedMu.Lock()
	defer b.parkedMu.Unlock()
	return len(b.parked)
}

// Redeliver retries every parked delivery once. Deliveries that fail again
// stay parked.
func (b *LocalBus) Redeliver(ctx context.Context) (delivered, failed int) {
	b.parkedMu.Lock()
	pending := b.parked
	b.parked = nil
	b.parkedMu.Unlock()

	for i, p := range pending {
		if ctx.Err() != nil {
			for _, rest := range pending[i:] {
				b.park(rest)
			}
			return delivered, failed + len(pending) - i
		}
		if err := b.deliver(ctx, p.sub, p.evt); err != nil {
			b.logger.Warn().
				Err(err).
				Str("subscriber", p.sub.name).
				Str("movement_id", p.evt.MovementID).
				Msg("redelivery failed")
			b.park(p)
			failed++
			continue
		}
		delivered++
	}
	return delivered, failed
}

func (b *LocalBus) park(p parkedDelivery) {
	b.parkedMu.Lock()
	defer b.parkedMu.Unlock()
	if len(b.parked) >= b.parkLimit {
		dropped := b.parked[0]
		b.parked = b.parked[1:]
		b.logger.Error().
			Str("subscriber", dropped.sub.name).
			Str("movement_id", dropped.evt.MovementID).
			Msg("parked deliveries full, dropping oldest")
	}
	b.parked = append(b.parked, p)
}

func (b *LocalBus) deliverWithRetry(ctx context.Context, s subscriber, evt messaging.MovementCommittedEvent) error {
	var err error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		if err = b.deliver(ctx, s, evt); err == nil {
			return nil
		}
		if attempt == b.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * b.backoff):
		}
	}
	return err
}

func (b *LocalBus) deliver(ctx context.Context, s subscriber, evt messaging.MovementCommittedEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return s.handler(ctx, evt)
}

// NopDispatcher drops every event.
type NopDispatcher struct{}

// Dispatch implements Dispatcher.
func (NopDispatcher) Dispatch(context.Context, ...messaging.MovementCommittedEvent) {}
