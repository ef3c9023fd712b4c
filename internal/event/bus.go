// Package event provides the input and output buses that connect channel
// adapters, session actors, and elicitation waiters, built on watermill.
package event

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"

	"github.com/agentd-ai/agentd/pkg/types"
)

// maxClaims bounds the claim set. Claims older than the window cannot be
// contested anyway, so eviction is safe.
const maxClaims = 8192

// defaultSubscriberBuffer is the per-subscriber channel buffer.
const defaultSubscriberBuffer = 256

// NewEventID returns a ULID string. IDs are monotonic within the process,
// which makes them usable as a stable consumption identity.
func NewEventID() string {
	return ulid.Make().String()
}

// inputSub is one ordered delivery lane. Each subscriber drains its own
// channel in a dedicated goroutine, so publish order is preserved per
// subscriber without blocking the publisher on slow consumers.
type inputSub struct {
	id uint64
	ch chan types.InputEvent
	// done tears the lane down. The channel itself is never closed, so a
	// publish racing an unsubscribe can not hit a closed channel.
	done chan struct{}
}

// waiter receives matching events until cancelled.
type waiter struct {
	id   uint64
	pred Predicate
	ch   chan types.InputEvent
}

// InputBus carries input events. It keeps publish order per subscriber and
// tracks per-event claims so that concurrent consumers (a session actor and
// an elicitation waiter racing for the same reply) resolve to exactly one
// processor.
type InputBus struct {
	mu sync.Mutex

	// Watermill pub/sub mirror for serialized consumers.
	pubsub *gochannel.GoChannel

	subscribers []*inputSub
	waiters     map[uint64]*waiter

	// claimed is the consumption ledger; claimOrder drives eviction.
	claimed    map[string]struct{}
	claimOrder []string

	nextID uint64
	closed bool
}

// NewInputBus creates an input bus.
func NewInputBus() *InputBus {
	return &InputBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		waiters: make(map[uint64]*waiter),
		claimed: make(map[string]struct{}),
	}
}

func (b *InputBus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Publish stamps the event with an ID and timestamp if it has none,
// delivers it to all subscribers and matching waiters, and mirrors the
// serialized form to the watermill input topic. The stamped event is
// returned.
func (b *InputBus) Publish(ev types.InputEvent) types.InputEvent {
	if ev.ID == "" {
		ev.ID = NewEventID()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ev
	}
	subs := make([]*inputSub, len(b.subscribers))
	copy(subs, b.subscribers)
	var matched []*waiter
	for _, w := range b.waiters {
		if w.pred(ev) {
			matched = append(matched, w)
		}
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		}
	}
	for _, w := range matched {
		select {
		case w.ch <- ev:
		default:
			// Waiter is not draining; it will miss this event rather
			// than stall the bus.
		}
	}

	if data, err := json.Marshal(ev); err == nil {
		msg := message.NewMessage(ev.ID, data)
		_ = b.pubsub.Publish(TopicInput, msg)
	}

	return ev
}

// Subscribe registers an ordered subscriber. Events are delivered in publish
// order on a dedicated goroutine. Returns an unsubscribe function.
func (b *InputBus) Subscribe(fn InputSubscriber) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	sub := &inputSub{
		id:   b.newID(),
		ch:   make(chan types.InputEvent, defaultSubscriberBuffer),
		done: make(chan struct{}),
	}
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case ev := <-sub.ch:
				fn(ev)
			case <-sub.done:
				return
			}
		}
	}()

	return func() {
		b.mu.Lock()
		for i, s := range b.subscribers {
			if s.id == sub.id {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				close(s.done)
				break
			}
		}
		b.mu.Unlock()
	}
}

// Waiter streams matching events until closed. Used by elicitation handlers
// that need to inspect several candidate replies before claiming one.
type Waiter struct {
	C      <-chan types.InputEvent
	cancel func()
}

// Close deregisters the waiter.
func (w *Waiter) Close() {
	w.cancel()
}

// NewWaiter registers a waiter for events matching pred. The waiter's
// channel is buffered; a waiter that stops draining misses events instead
// of blocking publishers.
func (b *InputBus) NewWaiter(pred Predicate) *Waiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := &waiter{
		id:   b.newID(),
		pred: pred,
		ch:   make(chan types.InputEvent, 16),
	}
	if !b.closed {
		b.waiters[w.id] = w
	}

	return &Waiter{
		C: w.ch,
		cancel: func() {
			b.mu.Lock()
			delete(b.waiters, w.id)
			b.mu.Unlock()
		},
	}
}

// Claim marks the event as consumed. Returns true exactly once per event ID;
// the winning caller owns processing, every other caller must skip it.
func (b *InputBus) Claim(eventID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, taken := b.claimed[eventID]; taken {
		return false
	}
	b.claimed[eventID] = struct{}{}
	b.claimOrder = append(b.claimOrder, eventID)
	if len(b.claimOrder) > maxClaims {
		evict := b.claimOrder[0]
		b.claimOrder = b.claimOrder[1:]
		delete(b.claimed, evict)
	}
	return true
}

// Claimed reports whether the event has already been consumed.
func (b *InputBus) Claimed(eventID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, taken := b.claimed[eventID]
	return taken
}

// PubSub returns the underlying watermill GoChannel for serialized
// subscribers.
func (b *InputBus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// Close shuts the bus down. Pending subscriber lanes are closed.
func (b *InputBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, s := range b.subscribers {
		close(s.done)
	}
	b.subscribers = nil
	b.waiters = make(map[uint64]*waiter)
	b.mu.Unlock()

	return b.pubsub.Close()
}

// outputSub mirrors inputSub for the output side.
type outputSub struct {
	id   uint64
	ch   chan types.OutputEvent
	done chan struct{}
}

// OutputBus broadcasts output events to channel adapters. Delivery order is
// preserved per subscriber.
type OutputBus struct {
	mu sync.Mutex

	pubsub *gochannel.GoChannel

	subscribers []*outputSub
	nextID      uint64
	closed      bool
}

// NewOutputBus creates an output bus.
func NewOutputBus() *OutputBus {
	return &OutputBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
	}
}

// Publish delivers the event to all subscribers and mirrors it to the
// watermill output topic.
func (b *OutputBus) Publish(ev types.OutputEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*outputSub, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		}
	}

	if data, err := json.Marshal(ev); err == nil {
		msg := message.NewMessage(NewEventID(), data)
		_ = b.pubsub.Publish(TopicOutput, msg)
	}
}

// Subscribe registers an ordered subscriber. Returns an unsubscribe function.
func (b *OutputBus) Subscribe(fn OutputSubscriber) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	sub := &outputSub{
		id:   atomic.AddUint64(&b.nextID, 1),
		ch:   make(chan types.OutputEvent, defaultSubscriberBuffer),
		done: make(chan struct{}),
	}
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case ev := <-sub.ch:
				fn(ev)
			case <-sub.done:
				return
			}
		}
	}()

	return func() {
		b.mu.Lock()
		for i, s := range b.subscribers {
			if s.id == sub.id {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				close(s.done)
				break
			}
		}
		b.mu.Unlock()
	}
}

// SubscribeSource registers a subscriber that only sees events destined for
// one source channel.
func (b *OutputBus) SubscribeSource(source string, fn OutputSubscriber) func() {
	return b.Subscribe(func(ev types.OutputEvent) {
		if ev.Source == source {
			fn(ev)
		}
	})
}

// PubSub returns the underlying watermill GoChannel for serialized
// subscribers (the web event stream uses this).
func (b *OutputBus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// Close shuts the bus down.
func (b *OutputBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, s := range b.subscribers {
		close(s.done)
	}
	b.subscribers = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
