package broadcast

import (
	"context"
	"sync"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/models"
	"bidding-engine/utils"
)

// Subscription is one subscriber's bounded, in-order view of an auction.
//
// The queue is a slice guarded by mu plus a one-slot signal channel, so a
// publisher only ever takes a short lock and never waits on the reader.
type Subscription struct {
	ID        string
	AuctionID string

	mu     sync.Mutex
	events []models.BidEvent
	limit  int
	last   uint64
	resync bool
	err    error
	signal chan struct{}
}

func newSubscription(auctionID string, from uint64, limit int) *Subscription {
	return &Subscription{
		ID:        utils.GenerateID(),
		AuctionID: auctionID,
		events:    make([]models.BidEvent, 0, limit),
		limit:     limit,
		last:      from,
		signal:    make(chan struct{}, 1),
	}
}

// notify wakes a waiting reader. Caller holds mu or owns the subscription.
func (s *Subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// enqueue adds a live event. It returns false once the subscription has to
// be detached: either it was already closed or this event overflowed it.
func (s *Subscription) enqueue(event models.BidEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil || s.resync {
		return false
	}
	if event.Sequence <= s.tail() {
		// already covered by the starting cursor
		return true
	}
	if len(s.events) >= s.limit {
		// drop the oldest non-terminal event to make room
		for i, queued := range s.events {
			if !queued.Terminal() {
				s.events = append(s.events[:i], s.events[i+1:]...)
				break
			}
		}
		s.events = append(s.events, event)
		s.resync = true
		s.notify()
		return false
	}
	s.events = append(s.events, event)
	s.notify()
	return true
}

// tail is the highest sequence queued or delivered. Caller holds mu.
func (s *Subscription) tail() uint64 {
	if n := len(s.events); n > 0 {
		return s.events[n-1].Sequence
	}
	return s.last
}

// close ends the subscription with err unless it already ended
func (s *Subscription) close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
	s.notify()
}

// Next blocks until the next event is available.
//
// Events are handed out strictly in sequence. After an overflow the
// contiguous prefix of the queue is still delivered, then Next returns
// ErrResyncRequired and the caller must subscribe again from the last
// sequence it saw.
func (s *Subscription) Next(ctx context.Context) (models.BidEvent, error) {
	for {
		s.mu.Lock()
		if len(s.events) > 0 {
			event := s.events[0]
			if s.resync && event.Sequence != s.last+1 {
				s.events = nil
				s.mu.Unlock()
				return models.BidEvent{}, biddingerrors.ErrResyncRequired
			}
			s.events = s.events[1:]
			s.last = event.Sequence
			s.mu.Unlock()
			return event, nil
		}
		if s.resync {
			s.mu.Unlock()
			return models.BidEvent{}, biddingerrors.ErrResyncRequired
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return models.BidEvent{}, err
		}
		s.mu.Unlock()

		select {
		case <-s.signal:
		case <-ctx.Done():
			return models.BidEvent{}, ctx.Err()
		}
	}
}

// LastDelivered returns the sequence of the last event returned by Next
func (s *Subscription) LastDelivered() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
