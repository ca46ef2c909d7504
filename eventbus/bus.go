// Copyright 2025 R5 Labs
// This file is part of the R5 Core library.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

// Package eventbus implements the Event Bus: an in-process,
// multi-producer multi-consumer broadcast of lifecycle events. It is the
// seam the out-of-scope persistence adapter and WebSocket fan-out
// subscribe through. Core components publish AuctionStarted, QuerySent,
// QueryResponse, BidPlaced, BidAccepted, BidRejected, AuctionCompleted
// and EnergyDepleted; EnergyRecharged, BESSNodeStatus, AggregatorStatus
// and SystemMetrics are defined here but no core component publishes
// them.
package eventbus

import (
	"sync"
	"time"

	"github.com/voltmesh/etp-core/log"
)

// Bus broadcasts Envelopes to any number of dynamically-joining
// subscribers. Publish never blocks: a subscriber whose bounded channel
// is full has its oldest buffered event dropped to make room, so a slow
// subscriber observes gaps rather than stalling every publisher.
type Bus struct {
	log        log.Logger
	queueDepth int

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscriber
}

type subscriber struct {
	ch     chan Envelope
	mu     sync.Mutex // guards closed and serializes the drop-oldest-then-push sequence
	closed bool
}

// New creates a Bus whose per-subscriber channel holds up to queueDepth
// buffered events.
func New(queueDepth int, logger log.Logger) *Bus {
	if logger == nil {
		logger = log.Root()
	}
	if queueDepth <= 0 {
		queueDepth = 1
	}
	return &Bus{
		log:        logger.New("component", "eventbus"),
		queueDepth: queueDepth,
		subs:       make(map[uint64]*subscriber),
	}
}

// Subscribe joins the bus and returns an id (for Unsubscribe) and a
// receive-only channel of future events. Past events are never
// replayed.
func (b *Bus) Subscribe() (uint64, <-chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Envelope, b.queueDepth)}
	b.subs[id] = sub
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once or with an unknown id.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
}

// Publish broadcasts e to every current subscriber. Events from a single
// Publish caller reach any given subscriber in the order Publish was
// called; events from different goroutines calling Publish
// concurrently may interleave arbitrarily at the subscriber.
func (b *Bus) Publish(e Event) {
	env := Envelope{Kind: e.Kind(), At: time.Now(), Payload: e}

	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.send(env, b.log)
	}
}

func (s *subscriber) send(env Envelope, logger log.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- env:
		return
	default:
	}
	// Channel full: drop the oldest buffered event to make room, then
	// push. If another receive drained a slot between the default case
	// above and here, the second send below still succeeds immediately.
	select {
	case <-s.ch:
		logger.Warn("event bus subscriber lagging, dropped oldest event")
	default:
	}
	select {
	case s.ch <- env:
	default:
		// Senders are serialized by s.mu, so a slot is free here; this
		// branch only guarantees the send can never block.
		logger.Warn("event bus subscriber still full after eviction, dropped event", "kind", env.Kind)
	}
}
