package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an auction
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
)

// Outcome tells whether a bid was recorded
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// RejectReason is the code returned to callers when a bid or cancellation is refused
type RejectReason string

const (
	ReasonNone           RejectReason = ""
	ReasonInvalidBid     RejectReason = "InvalidBid"
	ReasonAuctionNotOpen RejectReason = "AuctionNotOpen"
	ReasonBidTooLow      RejectReason = "BidTooLow"
	ReasonSelfOutbid     RejectReason = "SelfOutbid"
	ReasonTooLate        RejectReason = "TooLate"
	ReasonNotBidOwner    RejectReason = "NotBidOwner"
	ReasonBidNotFound    RejectReason = "BidNotFound"
)

// Close reasons carried by auction-closed events
const (
	CloseReasonEnded     = "ended"
	CloseReasonCancelled = "cancelled"
)

// Auction is the durable snapshot of one auction. It is only mutated by its actor.
type Auction struct {
	ID             string          `json:"auction_id"`
	Title          string          `json:"title"`
	Status         Status          `json:"status"`
	ReservePrice   decimal.Decimal `json:"reserve_price"`
	MinIncrement   decimal.Decimal `json:"min_increment"`
	HighBid        decimal.Decimal `json:"high_bid_amount"`
	HighBidder     string          `json:"high_bidder_id,omitempty"`
	StartsAt       time.Time       `json:"starts_at"`
	EndsAt         time.Time       `json:"ends_at"`
	BidCount       int             `json:"bid_count"`
	ExtensionCount int             `json:"extension_count"`
	ClosedReason   string          `json:"closed_reason,omitempty"`
	ClosedAt       time.Time       `json:"closed_at,omitempty"`
	LastSequence   uint64          `json:"last_sequence"`
	NextBidID      uint64          `json:"next_bid_id"`
	Version        uint64          `json:"version"`
	// Standing holds accepted bids that were not cancelled, lowest first
	Standing       []Bid           `json:"standing,omitempty"`
}

// HasBid reports whether someone currently holds the high bid
func (a Auction) HasBid() bool {
	return a.HighBidder != ""
}

// Clone returns a copy that does not share the standing bid slice
func (a Auction) Clone() Auction {
	c := a
	if a.Standing != nil {
		c.Standing = append([]Bid(nil), a.Standing...)
	}
	return c
}

// Bid is a single bid attempt. Accepted bids are kept on the auction's standing ladder.
type Bid struct {
	ID         uint64          `json:"bid_id"`
	AuctionID  string          `json:"auction_id"`
	BidderID   string          `json:"bidder_id"`
	Amount     decimal.Decimal `json:"amount"`
	AcceptedAt time.Time       `json:"accepted_at"`
	Outcome    Outcome         `json:"outcome"`
	Reason     RejectReason    `json:"reason,omitempty"`
}

// BidOutcome is returned for every bid submission or cancellation
type BidOutcome struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
	Bid      Bid          `json:"bid"`
	State    Auction      `json:"state"`
}

// EventKind identifies the transition carried by a BidEvent
type EventKind string

const (
	EventAuctionOpened   EventKind = "auction-opened"
	EventBidAccepted     EventKind = "bid-accepted"
	EventAuctionExtended EventKind = "auction-extended"
	EventAuctionClosed   EventKind = "auction-closed"
)

// BidEvent is the unit pushed to subscribers
type BidEvent struct {
	AuctionID      string           `json:"auction_id"`
	Sequence       uint64           `json:"sequence"`
	Kind           EventKind        `json:"kind"`
	OccurredAt     time.Time        `json:"occurred_at"`
	HighBid        *decimal.Decimal `json:"high_bid_amount,omitempty"`
	HighBidder     string           `json:"high_bidder_id,omitempty"`
	BidID          uint64           `json:"bid_id,omitempty"`
	CancelledBidID uint64           `json:"cancelled_bid_id,omitempty"`
	BidCount       int              `json:"bid_count"`
	NewEndTime     *time.Time       `json:"new_end_time,omitempty"`
	ClosedReason   string           `json:"closed_reason,omitempty"`
}

// Terminal reports whether no event can follow this one
func (e BidEvent) Terminal() bool {
	return e.Kind == EventAuctionClosed
}

// Frame types exchanged on the stream transport
const (
	FrameEvent  = "event"
	FrameResync = "resync"
	FrameError  = "error"
)

// StreamFrame wraps events and control messages written to a live subscriber
type StreamFrame struct {
	Type  string    `json:"type"`
	Event *BidEvent `json:"event,omitempty"`
	Error string    `json:"error,omitempty"`
}
