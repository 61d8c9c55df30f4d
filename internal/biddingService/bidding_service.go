package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/broadcast"
	"bidding-engine/internal/clock"
	"bidding-engine/internal/models"
	"bidding-engine/internal/registry"
	"bidding-engine/internal/repository"
	"bidding-engine/internal/validation"
	"bidding-engine/utils"

	"github.com/shopspring/decimal"
)

// AuctionInput describes an auction to create
type AuctionInput struct {
	// ID is generated when empty
	ID           string
	Title        string
	ReservePrice decimal.Decimal
	// MinIncrement of zero selects the tiered increment
	MinIncrement decimal.Decimal
	// StartsAt defaults to now; a future start creates a scheduled auction
	StartsAt time.Time
	EndsAt   time.Time
}

// BiddingService is the entry point used by transports. Writes go through
// the auction's actor, history queries go to the store.
type BiddingService struct {
	registry    *registry.Registry
	store       repository.AuctionStore
	broadcaster *broadcast.Broadcaster
	clock       clock.Clock
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(reg *registry.Registry, store repository.AuctionStore, b *broadcast.Broadcaster, clk clock.Clock) *BiddingService {
	return &BiddingService{
		registry:    reg,
		store:       store,
		broadcaster: b,
		clock:       clk,
	}
}

// CreateAuction validates and stores a new auction and starts its actor
func (s *BiddingService) CreateAuction(ctx context.Context, in AuctionInput) (models.Auction, error) {
	now := s.clock.Now()
	auction, err := s.buildAuction(in, now)
	if err != nil {
		return models.Auction{}, err
	}

	a, err := s.registry.Create(ctx, auction)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to create auction %s: %w", auction.ID, err)
	}
	created, err := a.Snapshot(ctx)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to read auction %s: %w", auction.ID, err)
	}

	utils.Info("auction created", map[string]any{
		"auction_id": created.ID,
		"status":     created.Status,
		"starts_at":  created.StartsAt,
		"ends_at":    created.EndsAt,
	})
	return created, nil
}

func (s *BiddingService) buildAuction(in AuctionInput, now time.Time) (models.Auction, error) {
	if strings.TrimSpace(in.Title) == "" {
		return models.Auction{}, fmt.Errorf("service: %w - missing title", biddingerrors.ErrInvalidAuction)
	}
	if in.ReservePrice.IsNegative() || in.MinIncrement.IsNegative() {
		return models.Auction{}, fmt.Errorf("service: %w - negative reserve or increment", biddingerrors.ErrInvalidAuction)
	}
	if !validation.IsWholeCents(in.ReservePrice) || !validation.IsWholeCents(in.MinIncrement) {
		return models.Auction{}, fmt.Errorf("service: %w - reserve and increment must be whole cents", biddingerrors.ErrInvalidAuction)
	}
	startsAt := in.StartsAt
	if startsAt.IsZero() || startsAt.Before(now) {
		startsAt = now
	}
	if !in.EndsAt.After(startsAt) {
		return models.Auction{}, fmt.Errorf("service: %w - end time must be after start time", biddingerrors.ErrInvalidAuction)
	}

	status := models.StatusOpen
	if startsAt.After(now) {
		status = models.StatusScheduled
	}
	id := in.ID
	if id == "" {
		id = utils.GenerateID()
	}
	return models.Auction{
		ID:           id,
		Title:        strings.TrimSpace(in.Title),
		Status:       status,
		ReservePrice: in.ReservePrice,
		MinIncrement: in.MinIncrement,
		StartsAt:     startsAt.UTC(),
		EndsAt:       in.EndsAt.UTC(),
		NextBidID:    1,
	}, nil
}

// GetAuction returns the current state of an auction
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	auction, err := s.registry.Snapshot(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// PlaceBid submits a bid to the auction's actor. A rejected bid is not an
// error: the outcome carries the reason.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (models.BidOutcome, error) {
	if auctionID == "" {
		return models.BidOutcome{}, fmt.Errorf("service: %w - missing auction ID", biddingerrors.ErrInvalidBid)
	}
	a, err := s.registry.GetOrCreate(ctx, auctionID)
	if err != nil {
		return models.BidOutcome{}, fmt.Errorf("service: failed to place bid on auction %s: %w", auctionID, err)
	}
	outcome, err := a.SubmitBid(ctx, bidderID, amount)
	if err != nil {
		return models.BidOutcome{}, fmt.Errorf("service: failed to place bid on auction %s by bidder %s: %w", auctionID, bidderID, err)
	}
	return outcome, nil
}

// CancelBid retracts a bid on behalf of requesterID
func (s *BiddingService) CancelBid(ctx context.Context, auctionID string, bidID uint64, requesterID string) (models.BidOutcome, error) {
	if auctionID == "" || requesterID == "" {
		return models.BidOutcome{}, fmt.Errorf("service: %w - missing auction ID or requester", biddingerrors.ErrInvalidBid)
	}
	a, err := s.registry.GetOrCreate(ctx, auctionID)
	if err != nil {
		return models.BidOutcome{}, fmt.Errorf("service: failed to cancel bid %d on auction %s: %w", bidID, auctionID, err)
	}
	outcome, err := a.CancelBid(ctx, bidID, requesterID)
	if err != nil {
		return models.BidOutcome{}, fmt.Errorf("service: failed to cancel bid %d on auction %s: %w", bidID, auctionID, err)
	}
	return outcome, nil
}

// CloseAuction ends an auction immediately
func (s *BiddingService) CloseAuction(ctx context.Context, auctionID, reason string) (models.Auction, error) {
	a, err := s.registry.GetOrCreate(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to close auction %s: %w", auctionID, err)
	}
	auction, err := a.CloseImmediately(ctx, reason)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to close auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// OpenAuction opens a scheduled auction before its start time
func (s *BiddingService) OpenAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	a, err := s.registry.GetOrCreate(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to open auction %s: %w", auctionID, err)
	}
	auction, err := a.Open(ctx)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to open auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// GetBidsForAuction returns the standing bids of an auction, lowest first
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}
	bids, err := s.store.BidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetAuctionsByUser returns all auctions a user has had a bid accepted on.
// A later cancellation does not remove the auction from the list.
func (s *BiddingService) GetAuctionsByUser(ctx context.Context, userID string) ([]models.Auction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}
	auctions, err := s.store.AuctionsByBidder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", userID, err)
	}
	return auctions, nil
}

// Subscribe attaches a live subscriber to an auction. A nil fromSequence
// starts at the current sequence, so only new events are delivered.
func (s *BiddingService) Subscribe(ctx context.Context, auctionID string, fromSequence *uint64) (*broadcast.Subscription, error) {
	// a live actor seeds the topic with the auction's last sequence
	if _, err := s.registry.GetOrCreate(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("service: failed to subscribe to auction %s: %w", auctionID, err)
	}
	from := s.broadcaster.LatestSequence(auctionID)
	if fromSequence != nil {
		from = *fromSequence
	}
	sub, err := s.broadcaster.Subscribe(auctionID, from)
	if err != nil {
		return nil, fmt.Errorf("service: failed to subscribe to auction %s: %w", auctionID, err)
	}
	return sub, nil
}

// Unsubscribe detaches a subscriber
func (s *BiddingService) Unsubscribe(sub *broadcast.Subscription) {
	s.broadcaster.Unsubscribe(sub)
}

// RejectionError converts a rejected outcome into the matching sentinel
// error, or nil for an accepted one
func RejectionError(outcome models.BidOutcome) error {
	if outcome.Accepted {
		return nil
	}
	err, ok := reasonErrors[outcome.Reason]
	if !ok {
		return errors.New(string(outcome.Reason))
	}
	return err
}

var reasonErrors = map[models.RejectReason]error{
	models.ReasonInvalidBid:     biddingerrors.ErrInvalidBid,
	models.ReasonAuctionNotOpen: biddingerrors.ErrAuctionNotOpen,
	models.ReasonBidTooLow:      biddingerrors.ErrBidTooLow,
	models.ReasonSelfOutbid:     biddingerrors.ErrSelfOutbid,
	models.ReasonTooLate:        biddingerrors.ErrTooLate,
	models.ReasonNotBidOwner:    biddingerrors.ErrNotBidOwner,
	models.ReasonBidNotFound:    biddingerrors.ErrBidNotFound,
}
