package helpers

import (
	"time"

	"bidding-engine/internal/models"
	"bidding-engine/internal/validation"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type CreateAuctionRequest struct {
	AuctionID    string          `json:"auction_id"`
	Title        string          `json:"title" binding:"required"`
	ReservePrice decimal.Decimal `json:"reserve_price"`
	MinIncrement decimal.Decimal `json:"min_increment"`
	StartsAt     *time.Time      `json:"starts_at"`
	EndsAt       time.Time       `json:"ends_at" binding:"required"`
}

type PlaceBidRequest struct {
	BidderID string          `json:"bidder_id" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

type CloseAuctionRequest struct {
	Reason string `json:"reason"`
}

type AuctionResponse struct {
	AuctionID      string `json:"auction_id"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	ReservePrice   string `json:"reserve_price"`
	MinIncrement   string `json:"min_increment"`
	HighBid        string `json:"high_bid_amount,omitempty"`
	HighBidderID   string `json:"high_bidder_id,omitempty"`
	MinimumNextBid string `json:"minimum_next_bid"`
	BidCount       int    `json:"bid_count"`
	ExtensionCount int    `json:"extension_count"`
	StartsAt       string `json:"starts_at"`
	EndsAt         string `json:"ends_at"`
	ClosedReason   string `json:"closed_reason,omitempty"`
	LastSequence   uint64 `json:"last_sequence"`
}

type BidResponse struct {
	BidID      uint64 `json:"bid_id,omitempty"`
	AuctionID  string `json:"auction_id"`
	BidderID   string `json:"bidder_id"`
	Amount     string `json:"amount"`
	AcceptedAt string `json:"accepted_at,omitempty"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
}

type BidOutcomeResponse struct {
	Accepted bool            `json:"accepted"`
	Reason   string          `json:"reason,omitempty"`
	Bid      BidResponse     `json:"bid"`
	Auction  AuctionResponse `json:"auction"`
}

// money renders whole-cent amounts with two decimals. Anything finer only
// reaches here on a rejected bid and is echoed exactly.
func money(d decimal.Decimal) string {
	if !validation.IsWholeCents(d) {
		return d.String()
	}
	return d.StringFixed(2)
}

func ToAuctionResponse(a models.Auction) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:      a.ID,
		Title:          a.Title,
		Status:         string(a.Status),
		ReservePrice:   money(a.ReservePrice),
		MinIncrement:   money(a.MinIncrement),
		MinimumNextBid: money(validation.MinimumNextBid(a)),
		BidCount:       a.BidCount,
		ExtensionCount: a.ExtensionCount,
		StartsAt:       a.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:         a.EndsAt.UTC().Format(time.RFC3339),
		ClosedReason:   a.ClosedReason,
		LastSequence:   a.LastSequence,
	}
	if a.HasBid() {
		resp.HighBid = money(a.HighBid)
		resp.HighBidderID = a.HighBidder
	}
	return resp
}

func ToAuctionResponses(auctions []models.Auction) []AuctionResponse {
	return lo.Map(auctions, func(a models.Auction, _ int) AuctionResponse {
		return ToAuctionResponse(a)
	})
}

func ToBidResponse(b models.Bid) BidResponse {
	resp := BidResponse{
		BidID:     b.ID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    money(b.Amount),
		Outcome:   string(b.Outcome),
		Reason:    string(b.Reason),
	}
	if !b.AcceptedAt.IsZero() {
		resp.AcceptedAt = b.AcceptedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func ToBidResponses(bids []models.Bid) []BidResponse {
	return lo.Map(bids, func(b models.Bid, _ int) BidResponse {
		return ToBidResponse(b)
	})
}

func ToBidOutcomeResponse(o models.BidOutcome) BidOutcomeResponse {
	return BidOutcomeResponse{
		Accepted: o.Accepted,
		Reason:   string(o.Reason),
		Bid:      ToBidResponse(o.Bid),
		Auction:  ToAuctionResponse(o.State),
	}
}
