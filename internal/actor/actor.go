//go:generate mockgen -source=actor.go -destination=mock_actor.go -package=actor
package actor

import (
	"context"
	"errors"
	"sync"
	"time"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/clock"
	"bidding-engine/internal/models"
	"bidding-engine/internal/repository"
	"bidding-engine/internal/sequencer"

	"github.com/shopspring/decimal"
)

// EventSink receives every committed event of an auction, in sequence order.
// Consume is called from the actor goroutine and must not block.
type EventSink interface {
	Consume(ctx context.Context, event models.BidEvent) error
}

// Rules are the tunable parts of auction behaviour
type Rules struct {
	// SnipeWindow is how close to the end a bid must land to extend the auction
	SnipeWindow time.Duration
	// Extension is the minimum time left after a late bid
	Extension time.Duration
	// MaxExtensions caps extensions per auction, 0 means unlimited
	MaxExtensions int
	// CancelWindow is how long after acceptance a bid may be cancelled
	CancelWindow    time.Duration
	AllowSelfOutbid bool
	MailboxSize     int
	// RetryDelay spaces retries of a timed open or close that failed to persist
	RetryDelay time.Duration
}

func DefaultRules() Rules {
	return Rules{
		SnipeWindow:  time.Minute,
		Extension:    time.Minute,
		CancelWindow: 10 * time.Minute,
		MailboxSize:  64,
		RetryDelay:   time.Second,
	}
}

// Actor owns one auction. Every read-modify-write of the auction happens on
// the actor goroutine, one message at a time, in arrival order.
type Actor struct {
	id    string
	rules Rules
	store repository.AuctionStore
	clock clock.Clock
	sinks []EventSink
	seq   *sequencer.Sequencer

	// owned by the actor goroutine
	state models.Auction
	timer clock.Timer

	ctx      context.Context
	cancel   context.CancelFunc
	mailbox  chan message
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// mirror of the lifecycle for lock-free readers such as the registry janitor
	mu       sync.Mutex
	status   models.Status
	closedAt time.Time
	err      error
}

// New starts an actor for the given snapshot, which must be the latest
// stored version of the auction
func New(auction models.Auction, store repository.AuctionStore, clk clock.Clock, rules Rules, sinks ...EventSink) *Actor {
	if rules.MailboxSize <= 0 {
		rules.MailboxSize = DefaultRules().MailboxSize
	}
	if rules.RetryDelay <= 0 {
		rules.RetryDelay = DefaultRules().RetryDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		id:       auction.ID,
		rules:    rules,
		store:    store,
		clock:    clk,
		sinks:    sinks,
		seq:      sequencer.New(auction.ID, auction.LastSequence),
		state:    auction.Clone(),
		ctx:      ctx,
		cancel:   cancel,
		mailbox:  make(chan message, rules.MailboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		status:   auction.Status,
		closedAt: auction.ClosedAt,
	}
	a.arm()
	go a.run()
	return a
}

func (a *Actor) ID() string { return a.id }

// Done is closed once the actor goroutine has exited
func (a *Actor) Done() <-chan struct{} { return a.done }

// Err returns why the actor stopped, or nil while it is running
func (a *Actor) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Halted reports whether the actor stopped on an integrity failure
func (a *Actor) Halted() bool {
	return errors.Is(a.Err(), biddingerrors.ErrIntegrity)
}

// ClosedSince reports whether the auction is closed and since when
func (a *Actor) ClosedSince() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closedAt, a.status == models.StatusClosed
}

// Stop terminates the actor and waits for it to exit. Pending requests fail
// with ErrActorStopped.
func (a *Actor) Stop() {
	a.stopOnce.Do(func() {
		a.setErr(biddingerrors.ErrActorStopped)
		close(a.quit)
	})
	<-a.done
}

// SubmitBid validates and, if accepted, records a bid
func (a *Actor) SubmitBid(ctx context.Context, bidderID string, amount decimal.Decimal) (models.BidOutcome, error) {
	reply := make(chan outcomeReply, 1)
	r, err := request(ctx, a, bidRequest{bidderID: bidderID, amount: amount, reply: reply}, reply)
	if err != nil {
		return models.BidOutcome{}, err
	}
	return r.outcome, r.err
}

// CancelBid retracts the current high bid on behalf of its owner
func (a *Actor) CancelBid(ctx context.Context, bidID uint64, requesterID string) (models.BidOutcome, error) {
	reply := make(chan outcomeReply, 1)
	r, err := request(ctx, a, cancelRequest{bidID: bidID, requesterID: requesterID, reply: reply}, reply)
	if err != nil {
		return models.BidOutcome{}, err
	}
	return r.outcome, r.err
}

// CloseImmediately ends the auction now with the given reason. Closing a
// closed auction returns its snapshot unchanged.
func (a *Actor) CloseImmediately(ctx context.Context, reason string) (models.Auction, error) {
	reply := make(chan snapshotReply, 1)
	r, err := request(ctx, a, closeRequest{reason: reason, reply: reply}, reply)
	if err != nil {
		return models.Auction{}, err
	}
	return r.auction, r.err
}

// Open starts a scheduled auction ahead of its start time
func (a *Actor) Open(ctx context.Context) (models.Auction, error) {
	reply := make(chan snapshotReply, 1)
	r, err := request(ctx, a, openRequest{reply: reply}, reply)
	if err != nil {
		return models.Auction{}, err
	}
	return r.auction, r.err
}

// Snapshot returns the auction state after every earlier message was handled
func (a *Actor) Snapshot(ctx context.Context) (models.Auction, error) {
	reply := make(chan snapshotReply, 1)
	r, err := request(ctx, a, snapshotRequest{reply: reply}, reply)
	if err != nil {
		return models.Auction{}, err
	}
	return r.auction, r.err
}

// request hands msg to the actor and waits for its reply
func request[T any](ctx context.Context, a *Actor, msg message, reply <-chan T) (T, error) {
	var zero T
	select {
	case a.mailbox <- msg:
	case <-a.done:
		return zero, a.Err()
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-reply:
		return r, nil
	case <-a.done:
		// the actor may have answered right before exiting
		select {
		case r := <-reply:
			return r, nil
		default:
			return zero, a.Err()
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (a *Actor) setErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
}
