package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/models"

	"github.com/dgraph-io/badger/v4"
)

const (
	auctionKeyPrefix = "auction:"
	bidderKeyPrefix  = "bidder:"
)

// BadgerRepo persists auction snapshots in BadgerDB.
//
// Keys:
//   - "auction:{auction_id}" -> JSON snapshot
//   - "bidder:{bidder_id}:{auction_id}" -> empty, an index for AuctionsByBidder
//
// CompareAndStore runs the version check and the write in one read-write
// transaction, so a concurrent writer surfaces either as a version mismatch
// or as badger.ErrConflict at commit. Both map to ErrVersionConflict.
type BadgerRepo struct {
	db *badger.DB
}

func NewBadgerRepo(db *badger.DB) *BadgerRepo {
	return &BadgerRepo{db: db}
}

func auctionKey(auctionID string) []byte {
	return []byte(auctionKeyPrefix + auctionID)
}

func bidderKey(bidderID, auctionID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", bidderKeyPrefix, bidderID, auctionID))
}

func (r *BadgerRepo) Create(_ context.Context, auction models.Auction) error {
	if auction.ID == "" {
		return fmt.Errorf("create auction: %w", biddingerrors.ErrInvalidAuction)
	}
	bytes, err := json.Marshal(auction)
	if err != nil {
		return fmt.Errorf("create auction %s: %w", auction.ID, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(auctionKey(auction.ID))
		switch {
		case err == nil:
			return biddingerrors.ErrAuctionExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(auctionKey(auction.ID), bytes)
	})
	if err != nil {
		return fmt.Errorf("create auction %s: %w", auction.ID, err)
	}
	return nil
}

func (r *BadgerRepo) Load(_ context.Context, auctionID string) (models.Auction, error) {
	var auction models.Auction
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		auction, err = readAuction(txn, auctionID)
		return err
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("load auction %s: %w", auctionID, err)
	}
	return auction, nil
}

func (r *BadgerRepo) CompareAndStore(_ context.Context, auctionID string, expectedVersion uint64, next models.Auction) error {
	bytes, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("store auction %s: %w", auctionID, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		current, err := readAuction(txn, auctionID)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("expected version %d, found %d: %w",
				expectedVersion, current.Version, biddingerrors.ErrVersionConflict)
		}
		if err := txn.Set(auctionKey(auctionID), bytes); err != nil {
			return err
		}
		for _, bid := range next.Standing {
			if err := txn.Set(bidderKey(bid.BidderID, auctionID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("store auction %s: %w", auctionID, biddingerrors.ErrVersionConflict)
	}
	if err != nil {
		return fmt.Errorf("store auction %s: %w", auctionID, err)
	}
	return nil
}

func (r *BadgerRepo) BidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	auction, err := r.Load(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	if len(auction.Standing) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return auction.Standing, nil
}

// AuctionsByBidder scans the bidder index with a key-only prefix iteration
func (r *BadgerRepo) AuctionsByBidder(_ context.Context, bidderID string) ([]models.Auction, error) {
	var auctions []models.Auction
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(bidderKeyPrefix + bidderID + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var auctionIDs []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			auctionIDs = append(auctionIDs, strings.TrimPrefix(key, string(prefix)))
		}
		for _, id := range auctionIDs {
			auction, err := readAuction(txn, id)
			if err != nil {
				return err
			}
			auctions = append(auctions, auction)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, err)
	}
	if len(auctions) == 0 {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, biddingerrors.ErrUserNoBids)
	}
	sort.Slice(auctions, func(i, j int) bool { return auctions[i].ID < auctions[j].ID })
	return auctions, nil
}

func readAuction(txn *badger.Txn, auctionID string) (models.Auction, error) {
	item, err := txn.Get(auctionKey(auctionID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Auction{}, biddingerrors.ErrAuctionNotFound
	}
	if err != nil {
		return models.Auction{}, err
	}
	var auction models.Auction
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &auction)
	})
	return auction, err
}
