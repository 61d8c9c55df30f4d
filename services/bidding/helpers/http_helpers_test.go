package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToHTTP(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "auction_not_found", err: biddingerrors.ErrAuctionNotFound, wantStatus: http.StatusNotFound},
		{name: "wrapped_not_found", err: fmt.Errorf("service: %w", biddingerrors.ErrAuctionNotFound), wantStatus: http.StatusNotFound},
		{name: "bid_not_found", err: biddingerrors.ErrBidNotFound, wantStatus: http.StatusNotFound},
		{name: "invalid_bid", err: biddingerrors.ErrInvalidBid, wantStatus: http.StatusBadRequest},
		{name: "invalid_auction", err: biddingerrors.ErrInvalidAuction, wantStatus: http.StatusBadRequest},
		{name: "bid_too_low", err: biddingerrors.ErrBidTooLow, wantStatus: http.StatusConflict},
		{name: "self_outbid", err: biddingerrors.ErrSelfOutbid, wantStatus: http.StatusConflict},
		{name: "auction_exists", err: biddingerrors.ErrAuctionExists, wantStatus: http.StatusConflict},
		{name: "not_owner", err: biddingerrors.ErrNotBidOwner, wantStatus: http.StatusForbidden},
		{name: "registry_full", err: biddingerrors.ErrRegistryFull, wantStatus: http.StatusServiceUnavailable},
		{name: "replay_truncated", err: biddingerrors.ErrReplayTruncated, wantStatus: http.StatusGone},
		{name: "integrity", err: biddingerrors.ErrIntegrity, wantStatus: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			status, message := MapErrorToHTTP(tc.err)
			require.Equal(t, tc.wantStatus, status)
			require.NotEmpty(t, message)
		})
	}
}

func TestToAuctionResponse(t *testing.T) {
	ends := time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	a := models.Auction{
		ID:           "a1",
		Title:        "Clock",
		Status:       models.StatusOpen,
		ReservePrice: decimal.NewFromInt(40),
		EndsAt:       ends,
	}

	resp := ToAuctionResponse(a)
	require.Equal(t, "40.00", resp.MinimumNextBid)
	require.Empty(t, resp.HighBid)
	require.Equal(t, "2026-05-01T09:00:00Z", resp.EndsAt)

	a.HighBid = decimal.RequireFromString("45.5")
	a.HighBidder = "alice"
	resp = ToAuctionResponse(a)
	require.Equal(t, "45.50", resp.HighBid)
	require.Equal(t, "alice", resp.HighBidderID)
	// tiered increment below 50 is 1
	require.Equal(t, "46.50", resp.MinimumNextBid)
}

func TestToBidResponses(t *testing.T) {
	require.Empty(t, ToBidResponses(nil))

	bids := []models.Bid{
		{ID: 1, AuctionID: "a1", BidderID: "alice", Amount: decimal.NewFromInt(10), Outcome: models.OutcomeAccepted},
		{ID: 2, AuctionID: "a1", BidderID: "bob", Amount: decimal.NewFromInt(12), Outcome: models.OutcomeAccepted, AcceptedAt: time.Unix(0, 0)},
	}
	resp := ToBidResponses(bids)
	require.Len(t, resp, 2)
	require.Empty(t, resp[0].AcceptedAt)
	require.Equal(t, "1970-01-01T00:00:00Z", resp[1].AcceptedAt)
	require.Equal(t, "12.00", resp[1].Amount)
}

func TestToBidResponseKeepsSubCentAmount(t *testing.T) {
	rejected := models.Bid{
		AuctionID: "a1",
		BidderID:  "alice",
		Amount:    decimal.RequireFromString("150.005"),
		Outcome:   models.OutcomeRejected,
		Reason:    models.ReasonInvalidBid,
	}
	require.Equal(t, "150.005", ToBidResponse(rejected).Amount)

	rejected.Amount = decimal.RequireFromString("150.1")
	require.Equal(t, "150.10", ToBidResponse(rejected).Amount)
}
