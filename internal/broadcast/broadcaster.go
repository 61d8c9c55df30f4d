// Package broadcast fans sequenced auction events out to live subscribers.
//
// Each auction has a topic holding a bounded ring of recent events and the set
// of attached subscriptions. Publishing and subscribing take the same topic
// lock, so a subscriber sees every event with a sequence greater than its
// starting point exactly once: either from the replay or from the live feed.
package broadcast

import (
	"context"
	"fmt"
	"sync"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/models"
	"bidding-engine/utils"
)

const (
	DefaultReplaySize = 256
	DefaultQueueSize  = 64
)

type Broadcaster struct {
	mu         sync.Mutex
	topics     map[string]*topic
	replaySize int
	queueSize  int
}

type topic struct {
	mu       sync.Mutex
	id       string
	ring     []models.BidEvent
	latest   uint64
	subs     map[string]*Subscription
	inactive bool
	removed  bool
}

// New creates a broadcaster keeping replaySize events per auction and
// allowing queueSize undelivered events per subscriber
func New(replaySize, queueSize int) *Broadcaster {
	if replaySize <= 0 {
		replaySize = DefaultReplaySize
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		topics:     make(map[string]*topic),
		replaySize: replaySize,
		queueSize:  queueSize,
	}
}

// lockTopic returns the locked topic for an auction, creating it if needed
func (b *Broadcaster) lockTopic(auctionID string) *topic {
	for {
		b.mu.Lock()
		t, ok := b.topics[auctionID]
		if !ok {
			t = &topic{id: auctionID, subs: make(map[string]*Subscription)}
			b.topics[auctionID] = t
		}
		b.mu.Unlock()

		t.mu.Lock()
		if !t.removed {
			return t
		}
		t.mu.Unlock()
	}
}

// lookupTopic returns the locked topic for an auction or nil if there is none
func (b *Broadcaster) lookupTopic(auctionID string) *topic {
	b.mu.Lock()
	t, ok := b.topics[auctionID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	t.mu.Lock()
	if t.removed {
		t.mu.Unlock()
		return nil
	}
	return t
}

// dropIfIdle removes an inactive topic nobody listens to. Caller holds t.mu.
func (b *Broadcaster) dropIfIdle(t *topic) {
	if !t.inactive || len(t.subs) > 0 {
		return
	}
	t.removed = true
	b.mu.Lock()
	if b.topics[t.id] == t {
		delete(b.topics, t.id)
	}
	b.mu.Unlock()
}

// Consume makes the broadcaster usable as an actor event sink
func (b *Broadcaster) Consume(_ context.Context, event models.BidEvent) error {
	b.Publish(event)
	return nil
}

// Publish appends the event to the auction's ring and enqueues it to every
// subscriber. It never blocks on a subscriber.
func (b *Broadcaster) Publish(event models.BidEvent) {
	t := b.lockTopic(event.AuctionID)
	defer t.mu.Unlock()

	if event.Sequence <= t.latest {
		return
	}
	t.ring = append(t.ring, event)
	if len(t.ring) > b.replaySize {
		t.ring = append(t.ring[:0:0], t.ring[len(t.ring)-b.replaySize:]...)
	}
	t.latest = event.Sequence

	for id, sub := range t.subs {
		if sub.enqueue(event) {
			continue
		}
		delete(t.subs, id)
		utils.Warn("subscriber fell behind, resync required", map[string]any{
			"auction_id":    t.id,
			"subscriber_id": id,
			"sequence":      event.Sequence,
		})
	}
}

// Subscribe attaches a subscriber that receives every event with a sequence
// greater than fromSequence. Events still in the ring are replayed first.
func (b *Broadcaster) Subscribe(auctionID string, fromSequence uint64) (*Subscription, error) {
	t := b.lockTopic(auctionID)
	defer t.mu.Unlock()

	var replay []models.BidEvent
	if fromSequence < t.latest {
		if len(t.ring) == 0 || t.ring[0].Sequence > fromSequence+1 {
			b.dropIfIdle(t)
			return nil, fmt.Errorf("subscribe %s from %d: %w", auctionID, fromSequence, biddingerrors.ErrReplayTruncated)
		}
		for _, event := range t.ring {
			if event.Sequence > fromSequence {
				replay = append(replay, event)
			}
		}
	}

	sub := newSubscription(auctionID, fromSequence, b.queueSize+len(replay))
	sub.events = append(sub.events, replay...)
	if len(replay) > 0 {
		sub.notify()
	}
	t.subs[sub.ID] = sub
	return sub, nil
}

// Unsubscribe detaches a subscriber. It is safe to call more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	if t := b.lookupTopic(sub.AuctionID); t != nil {
		delete(t.subs, sub.ID)
		b.dropIfIdle(t)
		t.mu.Unlock()
	}

	sub.close(biddingerrors.ErrSubscriptionClosed)
}

// Release marks an auction's topic as no longer fed by an actor. The topic
// is dropped as soon as its last subscriber leaves.
func (b *Broadcaster) Release(auctionID string) {
	t := b.lookupTopic(auctionID)
	if t == nil {
		return
	}
	defer t.mu.Unlock()
	t.inactive = true
	b.dropIfIdle(t)
}

// Seed records the last sequence an auction had already issued before this
// process started, so subscribers asking for older events are told the
// replay is incomplete
func (b *Broadcaster) Seed(auctionID string, lastSequence uint64) {
	t := b.lockTopic(auctionID)
	defer t.mu.Unlock()
	t.inactive = false
	if lastSequence > t.latest {
		t.latest = lastSequence
	}
}

// LatestSequence returns the highest sequence seen for an auction
func (b *Broadcaster) LatestSequence(auctionID string) uint64 {
	t := b.lookupTopic(auctionID)
	if t == nil {
		return 0
	}
	defer t.mu.Unlock()
	return t.latest
}

// Subscribers returns the number of attached subscribers for an auction
func (b *Broadcaster) Subscribers(auctionID string) int {
	t := b.lookupTopic(auctionID)
	if t == nil {
		return 0
	}
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close detaches every subscriber of every auction
func (b *Broadcaster) Close() {
	b.mu.Lock()
	topics := make([]*topic, 0, len(b.topics))
	for _, t := range b.topics {
		topics = append(topics, t)
	}
	b.topics = make(map[string]*topic)
	b.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		t.removed = true
		subs := t.subs
		t.subs = make(map[string]*Subscription)
		t.mu.Unlock()
		for _, sub := range subs {
			sub.close(biddingerrors.ErrSubscriptionClosed)
		}
	}
}
