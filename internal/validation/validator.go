// Package validation holds the pure bid acceptance rules. Nothing here
// performs I/O or reads the clock; callers pass the time they observed.
package validation

import (
	"strings"
	"time"

	"bidding-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Policy carries the configurable parts of the rules
type Policy struct {
	AllowSelfOutbid bool
}

// Candidate is a bid that has not been recorded yet
type Candidate struct {
	BidderID string
	Amount   decimal.Decimal
}

// Decision is the validator's verdict
type Decision struct {
	Accepted bool
	Reason   models.RejectReason
	// Minimum is the lowest amount that would have been accepted
	Minimum decimal.Decimal
}

func reject(reason models.RejectReason, minimum decimal.Decimal) Decision {
	return Decision{Reason: reason, Minimum: minimum}
}

// Validate checks a candidate against the auction snapshot as seen at now.
// Rules apply in order: InvalidBid, AuctionNotOpen, BidTooLow, SelfOutbid.
func Validate(auction models.Auction, bid Candidate, now time.Time, policy Policy) Decision {
	minimum := MinimumNextBid(auction)

	if strings.TrimSpace(bid.BidderID) == "" || !bid.Amount.IsPositive() || !IsWholeCents(bid.Amount) {
		return reject(models.ReasonInvalidBid, minimum)
	}
	if !IsOpenAt(auction, now) {
		return reject(models.ReasonAuctionNotOpen, minimum)
	}
	if bid.Amount.LessThan(minimum) {
		return reject(models.ReasonBidTooLow, minimum)
	}
	if !policy.AllowSelfOutbid && auction.HasBid() && auction.HighBidder == bid.BidderID {
		return reject(models.ReasonSelfOutbid, minimum)
	}
	return Decision{Accepted: true, Minimum: minimum}
}

// IsWholeCents reports whether amount has at most two decimal places
func IsWholeCents(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(2))
}

// IsOpenAt reports whether bids may be taken at the given instant
func IsOpenAt(auction models.Auction, now time.Time) bool {
	if auction.Status != models.StatusOpen {
		return false
	}
	if !auction.StartsAt.IsZero() && now.Before(auction.StartsAt) {
		return false
	}
	return now.Before(auction.EndsAt)
}

// MinimumNextBid is max(high bid + increment, reserve). With no standing bid
// the reserve alone applies.
func MinimumNextBid(auction models.Auction) decimal.Decimal {
	if !auction.HasBid() {
		return auction.ReservePrice
	}
	next := auction.HighBid.Add(Increment(auction))
	return decimal.Max(next, auction.ReservePrice)
}

// Increment returns the auction's fixed increment, or the tiered default when
// none was configured.
func Increment(auction models.Auction) decimal.Decimal {
	if auction.MinIncrement.IsPositive() {
		return auction.MinIncrement
	}
	return TieredIncrement(auction.HighBid)
}

var (
	tier50  = decimal.NewFromInt(50)
	tier200 = decimal.NewFromInt(200)
	tier500 = decimal.NewFromInt(500)
)

// TieredIncrement keeps small auctions moving in small steps and large ones in larger steps
func TieredIncrement(current decimal.Decimal) decimal.Decimal {
	switch {
	case current.LessThan(tier50):
		return decimal.NewFromInt(1)
	case current.LessThan(tier200):
		return decimal.NewFromInt(5)
	case current.LessThan(tier500):
		return decimal.NewFromInt(10)
	default:
		return decimal.NewFromInt(25)
	}
}
