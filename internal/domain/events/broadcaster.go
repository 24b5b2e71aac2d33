package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MixOS/backend/internal/shared/id"
)

// DefaultBuffer is the per-subscriber queue length used when none is given.
const DefaultBuffer = 256

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(Event)
}

// Broadcaster fans events out to every attached observer.
//
// Publishes are serialized so all observers see the same order. An
// observer that cannot accept an event within the send timeout is removed
// through the same path as an explicit Close.
type Broadcaster struct {
	pubMu sync.Mutex // serializes Publish and channel close

	mu   sync.RWMutex // guards subs
	subs map[string]*Subscription

	sendTimeout time.Duration
	logger      *zap.Logger
	metrics     *monitoring.Metrics
}

// Subscription is one observer's handle.
type Subscription struct {
	id     string
	ch     chan Event
	done   chan struct{}
	once   sync.Once
	filter Filter
	b      *Broadcaster
}

// NewBroadcaster creates a broadcaster. logger and metrics may be nil.
func NewBroadcaster(sendTimeout time.Duration, logger *zap.Logger, metrics *monitoring.Metrics) *Broadcaster {
	if sendTimeout <= 0 {
		sendTimeout = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:        make(map[string]*Subscription),
		sendTimeout: sendTimeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// Subscribe attaches an observer with a queue of the given length.
func (b *Broadcaster) Subscribe(buffer int, filter Filter) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription{
		id:     id.NewSubscriptionID().String(),
		ch:     make(chan Event, buffer),
		done:   make(chan struct{}),
		filter: filter,
		b:      b,
	}

	b.mu.Lock()
	b.subs[s.id] = s
	n := len(b.subs)
	b.mu.Unlock()

	b.metrics.SetSubscribers(n)
	b.logger.Debug("observer attached", zap.String("subscription", s.id), zap.Int("observers", n))
	return s
}

// Publish delivers e to every current observer.
func (b *Broadcaster) Publish(e Event) {
	e = stamp(e)

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.RLock()
	snapshot := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	b.metrics.RecordPublish(string(e.Type))

	for _, s := range snapshot {
		if s.filter != nil && !s.filter(e) {
			continue
		}
		b.deliver(s, e)
	}
}

// deliver sends e to s, evicting s when it is closed or stalled. Caller
// holds pubMu.
func (b *Broadcaster) deliver(s *Subscription, e Event) {
	select {
	case <-s.done:
		b.detach(s)
		return
	default:
	}

	select {
	case s.ch <- e:
		return
	default:
	}

	timer := time.NewTimer(b.sendTimeout)
	defer timer.Stop()

	select {
	case s.ch <- e:
	case <-s.done:
		b.detach(s)
	case <-timer.C:
		b.logger.Warn("evicting stalled observer",
			zap.String("subscription", s.id),
			zap.Duration("timeout", b.sendTimeout),
		)
		b.metrics.RecordEviction()
		b.detach(s)
	}
}

// detach removes s and closes its queue. Caller holds pubMu, so no send to
// s.ch can be in flight.
func (b *Broadcaster) detach(s *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[s.id]
	delete(b.subs, s.id)
	n := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return
	}
	s.markDone()
	close(s.ch)

	b.metrics.SetSubscribers(n)
	b.logger.Debug("observer detached", zap.String("subscription", s.id), zap.Int("observers", n))
}

// Count reports the number of attached observers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches every observer.
func (b *Broadcaster) Close() {
	b.mu.RLock()
	all := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		all = append(all, s)
	}
	b.mu.RUnlock()

	for _, s := range all {
		s.Close()
	}
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the observer's queue. It is closed once the subscription
// ends, whether by Close or eviction.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Done is closed as soon as the subscription starts shutting down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close detaches the observer. Safe to call more than once.
func (s *Subscription) Close() {
	// Release a publisher blocked on this observer before waiting for it.
	s.markDone()

	s.b.pubMu.Lock()
	defer s.b.pubMu.Unlock()
	s.b.detach(s)
}

func (s *Subscription) markDone() {
	s.once.Do(func() { close(s.done) })
}
