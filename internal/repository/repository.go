//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/models"

	"github.com/samber/lo"
)

// AuctionStore is the durable record of auctions. The owning actor is the only
// writer of a given auction, so CompareAndStore conflicts mean that invariant broke.
type AuctionStore interface {
	Create(ctx context.Context, auction models.Auction) error
	Load(ctx context.Context, auctionID string) (models.Auction, error)
	CompareAndStore(ctx context.Context, auctionID string, expectedVersion uint64, next models.Auction) error
	BidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
	AuctionsByBidder(ctx context.Context, bidderID string) ([]models.Auction, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionStore
type MemoryRepo struct {
	mu            sync.RWMutex
	auctions      map[string]models.Auction // key: auctionID -> value: latest snapshot
	bidderAuction map[string][]string       // key: bidderID -> value: auctionIDs the bidder has bid on
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:      make(map[string]models.Auction),
		bidderAuction: make(map[string][]string),
	}
}

// Create inserts a new auction
func (r *MemoryRepo) Create(_ context.Context, auction models.Auction) error {
	if auction.ID == "" {
		return fmt.Errorf("create auction: %w", biddingerrors.ErrInvalidAuction)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.ID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.ID, biddingerrors.ErrAuctionExists)
	}
	r.auctions[auction.ID] = auction.Clone()
	return nil
}

// Load returns the latest stored snapshot of an auction
func (r *MemoryRepo) Load(_ context.Context, auctionID string) (models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("load auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return auction.Clone(), nil
}

// CompareAndStore replaces the snapshot if the stored version still matches
func (r *MemoryRepo) CompareAndStore(_ context.Context, auctionID string, expectedVersion uint64, next models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("store auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("store auction %s: expected version %d, found %d: %w",
			auctionID, expectedVersion, current.Version, biddingerrors.ErrVersionConflict)
	}
	r.auctions[auctionID] = next.Clone()
	for _, bid := range next.Standing {
		r.indexBidder(bid.BidderID, auctionID)
	}
	return nil
}

// indexBidder records that bidderID has bid on auctionID. Caller must hold r.mu.
func (r *MemoryRepo) indexBidder(bidderID, auctionID string) {
	if lo.Contains(r.bidderAuction[bidderID], auctionID) {
		return
	}
	r.bidderAuction[bidderID] = append(r.bidderAuction[bidderID], auctionID)
}

// BidsByAuction returns the standing bids of an auction, lowest first
func (r *MemoryRepo) BidsByAuction(_ context.Context, auctionID string) ([]models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if len(auction.Standing) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return append([]models.Bid(nil), auction.Standing...), nil
}

// AuctionsByBidder returns every auction a bidder has placed an accepted bid on
func (r *MemoryRepo) AuctionsByBidder(_ context.Context, bidderID string) ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctionIDs, ok := r.bidderAuction[bidderID]
	if !ok || len(auctionIDs) == 0 {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, biddingerrors.ErrUserNoBids)
	}
	auctions := lo.FilterMap(auctionIDs, func(id string, _ int) (models.Auction, bool) {
		auction, exists := r.auctions[id]
		return auction.Clone(), exists
	})
	sort.Slice(auctions, func(i, j int) bool { return auctions[i].ID < auctions[j].ID })
	return auctions, nil
}
