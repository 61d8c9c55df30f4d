package sequencer

import (
	"time"

	"bidding-engine/internal/models"
)

// Sequencer stamps events for a single auction. It is owned by that auction's
// actor and is only called from inside the actor's serialized step, so a plain
// counter is enough.
type Sequencer struct {
	auctionID string
	last      uint64
}

// New creates a sequencer that resumes after the given sequence number
func New(auctionID string, last uint64) *Sequencer {
	return &Sequencer{auctionID: auctionID, last: last}
}

// Next returns an event of the given kind carrying the next sequence number
func (s *Sequencer) Next(kind models.EventKind, at time.Time) models.BidEvent {
	s.last++
	return models.BidEvent{
		AuctionID:  s.auctionID,
		Sequence:   s.last,
		Kind:       kind,
		OccurredAt: at,
	}
}

// Last returns the most recently issued sequence number
func (s *Sequencer) Last() uint64 {
	return s.last
}

// Reset moves the counter back, used when a transition could not be persisted
func (s *Sequencer) Reset(last uint64) {
	s.last = last
}
