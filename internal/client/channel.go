// Package client consumes an auction's event stream and hides reconnects
// from the caller: events come out once each, in sequence order, even when
// the underlying connection drops and is re-established.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/models"
	"bidding-engine/utils"
)

var errSequenceGap = errors.New("sequence gap")

type Options struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	// Buffer is the capacity of the Events channel
	Buffer int
}

func DefaultOptions() Options {
	return Options{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
		Buffer:      64,
	}
}

// Channel is a reconnecting subscription to one auction
type Channel struct {
	dialer    Dialer
	auctionID string
	opts      Options

	events    chan models.BidEvent
	last      atomic.Uint64
	closed    chan struct{}
	closeOnce sync.Once
}

func NewChannel(dialer Dialer, auctionID string, fromSequence uint64, opts Options) *Channel {
	defaults := DefaultOptions()
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaults.BaseDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = max(defaults.MaxDelay, opts.BaseDelay)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaults.Buffer
	}
	c := &Channel{
		dialer:    dialer,
		auctionID: auctionID,
		opts:      opts,
		events:    make(chan models.BidEvent, opts.Buffer),
		closed:    make(chan struct{}),
	}
	c.last.Store(fromSequence)
	return c
}

// Events delivers the stream. It is closed when Run returns.
func (c *Channel) Events() <-chan models.BidEvent { return c.events }

// LastSeen returns the sequence of the last delivered event
func (c *Channel) LastSeen() uint64 { return c.last.Load() }

// Close stops the channel, including any reconnect wait in progress.
// It may be called any number of times.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Run keeps the subscription alive until the auction closes, the channel is
// closed or ctx is cancelled. It returns nil in the first two cases.
//
// Reconnects resume after LastSeen. After MaxAttempts consecutive failed
// attempts Run gives up with ErrSubscriptionBroken. ErrReplayTruncated means
// the server no longer holds the missed events; the caller has to reload the
// auction and start a new channel from its current sequence.
func (c *Channel) Run(ctx context.Context) error {
	defer close(c.events)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	failures := 0
	for {
		if err := c.stopped(ctx); err != nil {
			return c.exitErr(err)
		}

		delivered, done, err := c.attempt(ctx)
		if done {
			return nil
		}
		if err := c.stopped(ctx); err != nil {
			return c.exitErr(err)
		}
		if errors.Is(err, biddingerrors.ErrReplayTruncated) || errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			return fmt.Errorf("client: auction %s: %w", c.auctionID, err)
		}

		if delivered > 0 {
			failures = 0
			if errors.Is(err, errSequenceGap) || errors.Is(err, biddingerrors.ErrResyncRequired) {
				// the stream was healthy, resume straight away
				continue
			}
		}
		failures++
		if failures >= c.opts.MaxAttempts {
			return fmt.Errorf("client: auction %s after %d attempts: %w: %v",
				c.auctionID, failures, biddingerrors.ErrSubscriptionBroken, err)
		}

		delay := c.backoff(failures)
		utils.Warn("stream interrupted, reconnecting", map[string]any{
			"auction_id": c.auctionID,
			"last_seen":  c.LastSeen(),
			"attempt":    failures,
			"delay":      delay.String(),
			"error":      fmt.Sprint(err),
		})
		if err := c.sleep(ctx, delay); err != nil {
			return c.exitErr(err)
		}
	}
}

// attempt runs one connection until it fails. done is true once the
// terminal event has been delivered.
func (c *Channel) attempt(ctx context.Context) (delivered int, done bool, err error) {
	conn, err := c.dialer.Dial(ctx, c.auctionID, c.LastSeen())
	if err != nil {
		return 0, false, err
	}
	defer conn.Close()

	for {
		frame, err := conn.Next(ctx)
		if err != nil {
			return delivered, false, err
		}

		switch frame.Type {
		case models.FrameResync:
			return delivered, false, biddingerrors.ErrResyncRequired
		case models.FrameError:
			return delivered, false, fmt.Errorf("stream error: %s", frame.Error)
		case models.FrameEvent:
		default:
			continue
		}
		if frame.Event == nil {
			continue
		}

		event := *frame.Event
		last := c.LastSeen()
		if event.Sequence <= last {
			continue
		}
		if event.Sequence > last+1 {
			return delivered, false, fmt.Errorf("%w: expected %d, got %d", errSequenceGap, last+1, event.Sequence)
		}

		select {
		case c.events <- event:
		case <-ctx.Done():
			return delivered, false, ctx.Err()
		}
		c.last.Store(event.Sequence)
		delivered++
		if event.Terminal() {
			return delivered, true, nil
		}
	}
}

// backoff returns a full-jitter exponential delay for the nth failure
func (c *Channel) backoff(failures int) time.Duration {
	ceiling := c.opts.BaseDelay
	for i := 1; i < failures && ceiling < c.opts.MaxDelay; i++ {
		ceiling *= 2
	}
	ceiling = min(ceiling, c.opts.MaxDelay)
	return rand.N(ceiling) + 1
}

func (c *Channel) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) stopped(ctx context.Context) error {
	select {
	case <-c.closed:
		return biddingerrors.ErrChannelClosed
	default:
	}
	return ctx.Err()
}

// exitErr hides the cancellation caused by Close
func (c *Channel) exitErr(err error) error {
	select {
	case <-c.closed:
		return nil
	default:
		return err
	}
}
