// Package registry keeps at most one live actor per auction.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bidding-engine/internal/actor"
	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/clock"
	"bidding-engine/internal/models"
	"bidding-engine/internal/repository"
	"bidding-engine/utils"

	"golang.org/x/sync/singleflight"
)

// Topics is the part of the broadcaster the registry drives
type Topics interface {
	Seed(auctionID string, lastSequence uint64)
	Release(auctionID string)
}

type Config struct {
	MaxActive       int
	RetireAfter     time.Duration
	JanitorInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxActive:       10000,
		RetireAfter:     5 * time.Minute,
		JanitorInterval: 30 * time.Second,
	}
}

type Registry struct {
	store  repository.AuctionStore
	clock  clock.Clock
	rules  actor.Rules
	topics Topics
	sinks  []actor.EventSink
	cfg    Config

	mu     sync.Mutex
	actors map[string]*actor.Actor
	// retiring holds auctions whose actor is still shutting down; the
	// channel is closed once it has exited and its topic is released
	retiring map[string]chan struct{}
	stopped  bool
	group    singleflight.Group
}

func New(store repository.AuctionStore, clk clock.Clock, rules actor.Rules, cfg Config, topics Topics, sinks ...actor.EventSink) *Registry {
	defaults := DefaultConfig()
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = defaults.MaxActive
	}
	if cfg.RetireAfter <= 0 {
		cfg.RetireAfter = defaults.RetireAfter
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = defaults.JanitorInterval
	}
	return &Registry{
		store:    store,
		clock:    clk,
		rules:    rules,
		topics:   topics,
		sinks:    sinks,
		cfg:      cfg,
		actors:   make(map[string]*actor.Actor),
		retiring: make(map[string]chan struct{}),
	}
}

// live returns the running actor for id. Caller holds r.mu.
func (r *Registry) live(auctionID string) (*actor.Actor, bool) {
	a, ok := r.actors[auctionID]
	if !ok {
		return nil, false
	}
	if a.Err() != nil {
		// halted actors are replaced by a fresh load on next use
		delete(r.actors, auctionID)
		return nil, false
	}
	return a, true
}

// GetOrCreate returns the live actor for an auction, loading it from the
// store if needed. Concurrent callers for the same id share one load.
func (r *Registry) GetOrCreate(ctx context.Context, auctionID string) (*actor.Actor, error) {
	r.mu.Lock()
	if a, ok := r.live(auctionID); ok {
		r.mu.Unlock()
		return a, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(auctionID, func() (any, error) {
		for {
			r.mu.Lock()
			if a, ok := r.live(auctionID); ok {
				r.mu.Unlock()
				return a, nil
			}
			gone, retiring := r.retiring[auctionID]
			if !retiring {
				break
			}
			r.mu.Unlock()

			// the old actor may still be committing; loading now would race it
			select {
			case <-gone:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := r.admit(); err != nil {
			r.mu.Unlock()
			return nil, err
		}
		r.mu.Unlock()

		auction, err := r.store.Load(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		if r.topics != nil {
			r.topics.Seed(auctionID, auction.LastSequence)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.admit(); err != nil {
			return nil, err
		}
		a := actor.New(auction, r.store, r.clock, r.rules, r.sinks...)
		r.actors[auctionID] = a
		utils.Debug("auction actor started", map[string]any{"auction_id": auctionID, "version": auction.Version})
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: get auction %s: %w", auctionID, err)
	}
	return v.(*actor.Actor), nil
}

// admit checks that one more actor may be started. Caller holds r.mu.
func (r *Registry) admit() error {
	if r.stopped {
		return biddingerrors.ErrActorStopped
	}
	if len(r.actors) >= r.cfg.MaxActive {
		return biddingerrors.ErrRegistryFull
	}
	return nil
}

// Create stores a new auction and starts its actor
func (r *Registry) Create(ctx context.Context, auction models.Auction) (*actor.Actor, error) {
	r.mu.Lock()
	err := r.admit()
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("registry: create auction %s: %w", auction.ID, err)
	}
	if err := r.store.Create(ctx, auction); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return r.GetOrCreate(ctx, auction.ID)
}

// Snapshot reads an auction through its actor when one is live. Closed
// auctions without an actor are served from the store.
func (r *Registry) Snapshot(ctx context.Context, auctionID string) (models.Auction, error) {
	r.mu.Lock()
	a, ok := r.live(auctionID)
	r.mu.Unlock()

	if !ok {
		stored, err := r.store.Load(ctx, auctionID)
		if err != nil {
			return models.Auction{}, fmt.Errorf("registry: %w", err)
		}
		if stored.Status == models.StatusClosed {
			return stored, nil
		}
		if a, err = r.GetOrCreate(ctx, auctionID); err != nil {
			return models.Auction{}, err
		}
	}

	auction, err := a.Snapshot(ctx)
	if errors.Is(err, biddingerrors.ErrActorStopped) {
		// retired between lookup and read
		if auction, err = r.store.Load(ctx, auctionID); err != nil {
			return models.Auction{}, fmt.Errorf("registry: %w", err)
		}
		return auction, nil
	}
	if err != nil {
		return models.Auction{}, fmt.Errorf("registry: snapshot auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// Retire stops the actor of an auction and releases its broadcast topic.
// A GetOrCreate for the same auction waits until the old actor has exited.
func (r *Registry) Retire(auctionID string) {
	r.mu.Lock()
	a, ok := r.actors[auctionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.actors, auctionID)
	gone := make(chan struct{})
	r.retiring[auctionID] = gone
	r.mu.Unlock()

	a.Stop()
	if r.topics != nil {
		r.topics.Release(auctionID)
	}

	r.mu.Lock()
	delete(r.retiring, auctionID)
	r.mu.Unlock()
	close(gone)
	utils.Debug("auction actor retired", map[string]any{"auction_id": auctionID})
}

// Sweep retires actors whose auction closed more than RetireAfter ago and
// forgets halted ones. It returns how many actors were removed.
func (r *Registry) Sweep() int {
	now := r.clock.Now()
	var retire, halted []string

	r.mu.Lock()
	for id, a := range r.actors {
		if a.Halted() {
			halted = append(halted, id)
			continue
		}
		if closedAt, closed := a.ClosedSince(); closed && now.Sub(closedAt) >= r.cfg.RetireAfter {
			retire = append(retire, id)
		}
	}
	for _, id := range halted {
		delete(r.actors, id)
	}
	r.mu.Unlock()

	for _, id := range halted {
		utils.Warn("dropping halted auction actor", map[string]any{"auction_id": id})
	}
	for _, id := range retire {
		r.Retire(id)
	}
	return len(retire) + len(halted)
}

// Run sweeps periodically until ctx is cancelled
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				utils.Info("registry sweep", map[string]any{"removed": n, "active": r.Len()})
			}
		}
	}
}

// Len returns the number of live actors
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// Stop stops every actor. Later lookups fail with ErrActorStopped.
func (r *Registry) Stop() {
	r.mu.Lock()
	r.stopped = true
	actors := r.actors
	r.actors = make(map[string]*actor.Actor)
	r.mu.Unlock()

	for _, a := range actors {
		a.Stop()
	}
}
