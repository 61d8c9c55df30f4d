package actor

import (
	"errors"
	"fmt"
	"time"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/models"
	"bidding-engine/internal/validation"
	"bidding-engine/utils"

	"github.com/shopspring/decimal"
)

type message interface{}

type outcomeReply struct {
	outcome models.BidOutcome
	err     error
}

type snapshotReply struct {
	auction models.Auction
	err     error
}

type bidRequest struct {
	bidderID string
	amount   decimal.Decimal
	reply    chan<- outcomeReply
}

type cancelRequest struct {
	bidID       uint64
	requesterID string
	reply       chan<- outcomeReply
}

type closeRequest struct {
	reason string
	reply  chan<- snapshotReply
}

type openRequest struct {
	reply chan<- snapshotReply
}

type snapshotRequest struct {
	reply chan<- snapshotReply
}

// deadlineDue is posted by the end timer. armedFor is the end time the timer
// was set for; a later extension makes it stale.
type deadlineDue struct {
	armedFor time.Time
}

// startDue is posted by the start timer of a scheduled auction
type startDue struct {
	armedFor time.Time
}

func (a *Actor) run() {
	defer close(a.done)
	defer a.cancel()

	for {
		select {
		case <-a.quit:
			a.disarm()
			return
		case msg := <-a.mailbox:
			a.handle(msg)
			if a.Halted() {
				a.disarm()
				return
			}
		}
	}
}

func (a *Actor) handle(msg message) {
	switch m := msg.(type) {
	case bidRequest:
		outcome, err := a.placeBid(m.bidderID, m.amount)
		m.reply <- outcomeReply{outcome: outcome, err: err}
	case cancelRequest:
		outcome, err := a.cancelBid(m.bidID, m.requesterID)
		m.reply <- outcomeReply{outcome: outcome, err: err}
	case closeRequest:
		err := a.closeNow(m.reason)
		m.reply <- snapshotReply{auction: a.state.Clone(), err: err}
	case openRequest:
		err := a.openNow()
		m.reply <- snapshotReply{auction: a.state.Clone(), err: err}
	case snapshotRequest:
		err := a.settle(a.clock.Now())
		if err != nil && !a.Halted() {
			// a failed lazy transition is retried on the next message
			err = nil
		}
		m.reply <- snapshotReply{auction: a.state.Clone(), err: err}
	case deadlineDue:
		if a.state.Status == models.StatusOpen && a.state.EndsAt.Equal(m.armedFor) {
			if err := a.close(a.clock.Now(), models.CloseReasonEnded); err != nil {
				a.logFailure("close at deadline", err)
				a.retry(m)
			}
		}
	case startDue:
		if a.state.Status == models.StatusScheduled && a.state.StartsAt.Equal(m.armedFor) {
			if err := a.open(a.clock.Now()); err != nil {
				a.logFailure("open at start time", err)
				a.retry(m)
			}
		}
	default:
		utils.Warn("actor: unknown message", map[string]any{"auction_id": a.id, "type": fmt.Sprintf("%T", msg)})
	}
}

// settle applies the transitions whose time has already passed, so that a
// message never observes an auction that should have opened or closed
func (a *Actor) settle(now time.Time) error {
	if a.state.Status == models.StatusScheduled && !now.Before(a.state.StartsAt) {
		if err := a.open(now); err != nil {
			return err
		}
	}
	if a.state.Status == models.StatusOpen && !now.Before(a.state.EndsAt) {
		return a.close(now, models.CloseReasonEnded)
	}
	return nil
}

func (a *Actor) placeBid(bidderID string, amount decimal.Decimal) (models.BidOutcome, error) {
	now := a.clock.Now()
	if err := a.settle(now); err != nil {
		return models.BidOutcome{}, err
	}

	decision := validation.Validate(a.state, validation.Candidate{BidderID: bidderID, Amount: amount}, now,
		validation.Policy{AllowSelfOutbid: a.rules.AllowSelfOutbid})
	if !decision.Accepted {
		return models.BidOutcome{
			Reason: decision.Reason,
			Bid: models.Bid{
				AuctionID: a.id,
				BidderID:  bidderID,
				Amount:    amount,
				Outcome:   models.OutcomeRejected,
				Reason:    decision.Reason,
			},
			State: a.state.Clone(),
		}, nil
	}

	next := a.state.Clone()
	bid := models.Bid{
		ID:         next.NextBidID,
		AuctionID:  a.id,
		BidderID:   bidderID,
		Amount:     amount,
		AcceptedAt: now,
		Outcome:    models.OutcomeAccepted,
	}
	next.NextBidID++
	next.Standing = append(next.Standing, bid)
	next.HighBid = amount
	next.HighBidder = bidderID
	next.BidCount++

	accepted := a.seq.Next(models.EventBidAccepted, now)
	fillHighBid(&accepted, next)
	accepted.BidID = bid.ID
	events := []models.BidEvent{accepted}

	extended := a.extend(&next, now)
	if extended {
		ev := a.seq.Next(models.EventAuctionExtended, now)
		fillHighBid(&ev, next)
		end := next.EndsAt
		ev.NewEndTime = &end
		events = append(events, ev)
	}

	if err := a.commit(next, events); err != nil {
		return models.BidOutcome{}, err
	}
	if extended {
		a.arm()
		utils.Info("auction extended", map[string]any{
			"auction_id": a.id,
			"ends_at":    next.EndsAt,
			"extensions": next.ExtensionCount,
		})
	}
	utils.Debug("bid accepted", map[string]any{"auction_id": a.id, "bid_id": bid.ID, "amount": amount.String()})

	return models.BidOutcome{Accepted: true, Bid: bid, State: a.state.Clone()}, nil
}

// extend applies the anti-sniping rule to next and reports whether the end
// time moved
func (a *Actor) extend(next *models.Auction, now time.Time) bool {
	if next.EndsAt.Sub(now) > a.rules.SnipeWindow {
		return false
	}
	if a.rules.MaxExtensions > 0 && next.ExtensionCount >= a.rules.MaxExtensions {
		return false
	}
	candidate := now.Add(a.rules.Extension)
	if !candidate.After(next.EndsAt) {
		return false
	}
	next.EndsAt = candidate
	next.ExtensionCount++
	return true
}

func (a *Actor) cancelBid(bidID uint64, requesterID string) (models.BidOutcome, error) {
	now := a.clock.Now()
	if err := a.settle(now); err != nil {
		return models.BidOutcome{}, err
	}

	rejected := func(reason models.RejectReason) (models.BidOutcome, error) {
		return models.BidOutcome{
			Reason: reason,
			Bid:    models.Bid{ID: bidID, AuctionID: a.id, Outcome: models.OutcomeRejected, Reason: reason},
			State:  a.state.Clone(),
		}, nil
	}

	if bidID == 0 || bidID >= a.state.NextBidID {
		return rejected(models.ReasonBidNotFound)
	}
	idx := -1
	for i, standing := range a.state.Standing {
		if standing.ID == bidID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// issued but no longer standing: it was already cancelled
		return rejected(models.ReasonTooLate)
	}
	bid := a.state.Standing[idx]
	if bid.BidderID != requesterID {
		return rejected(models.ReasonNotBidOwner)
	}
	if a.state.Status != models.StatusOpen ||
		idx != len(a.state.Standing)-1 ||
		now.Sub(bid.AcceptedAt) > a.rules.CancelWindow {
		return rejected(models.ReasonTooLate)
	}

	next := a.state.Clone()
	next.Standing = next.Standing[:idx]
	next.BidCount--
	next.HighBid = decimal.Zero
	next.HighBidder = ""
	var previousID uint64
	if len(next.Standing) > 0 {
		previous := next.Standing[len(next.Standing)-1]
		next.HighBid = previous.Amount
		next.HighBidder = previous.BidderID
		previousID = previous.ID
	}

	correction := a.seq.Next(models.EventBidAccepted, now)
	amount := next.HighBid
	correction.HighBid = &amount
	correction.HighBidder = next.HighBidder
	correction.BidCount = next.BidCount
	correction.BidID = previousID
	correction.CancelledBidID = bidID

	if err := a.commit(next, []models.BidEvent{correction}); err != nil {
		return models.BidOutcome{}, err
	}
	utils.Info("bid cancelled", map[string]any{"auction_id": a.id, "bid_id": bidID, "bidder_id": requesterID})

	return models.BidOutcome{Accepted: true, Bid: bid, State: a.state.Clone()}, nil
}

func (a *Actor) closeNow(reason string) error {
	now := a.clock.Now()
	if err := a.settle(now); err != nil {
		return err
	}
	if a.state.Status == models.StatusClosed {
		return nil
	}
	if reason == "" {
		reason = models.CloseReasonCancelled
	}
	return a.close(now, reason)
}

func (a *Actor) openNow() error {
	now := a.clock.Now()
	if err := a.settle(now); err != nil {
		return err
	}
	switch a.state.Status {
	case models.StatusOpen:
		return nil
	case models.StatusClosed:
		return fmt.Errorf("actor: open auction %s: %w", a.id, biddingerrors.ErrAuctionNotOpen)
	}
	return a.open(now)
}

func (a *Actor) open(now time.Time) error {
	next := a.state.Clone()
	next.Status = models.StatusOpen
	if next.StartsAt.After(now) {
		next.StartsAt = now
	}
	ev := a.seq.Next(models.EventAuctionOpened, now)
	fillHighBid(&ev, next)
	end := next.EndsAt
	ev.NewEndTime = &end

	if err := a.commit(next, []models.BidEvent{ev}); err != nil {
		return err
	}
	a.arm()
	utils.Info("auction opened", map[string]any{"auction_id": a.id, "ends_at": next.EndsAt})
	return nil
}

func (a *Actor) close(now time.Time, reason string) error {
	next := a.state.Clone()
	next.Status = models.StatusClosed
	next.ClosedReason = reason
	next.ClosedAt = now

	ev := a.seq.Next(models.EventAuctionClosed, now)
	fillHighBid(&ev, next)
	ev.ClosedReason = reason

	if err := a.commit(next, []models.BidEvent{ev}); err != nil {
		return err
	}
	a.disarm()
	utils.Info("auction closed", map[string]any{
		"auction_id":  a.id,
		"reason":      reason,
		"high_bidder": next.HighBidder,
		"high_bid":    next.HighBid.String(),
		"bid_count":   next.BidCount,
	})
	return nil
}

// commit persists next together with the events already drawn from the
// sequencer, then makes it the current state and publishes the events.
// On failure the in-memory state and the sequencer are left as they were.
func (a *Actor) commit(next models.Auction, events []models.BidEvent) error {
	expected := a.state.Version
	next.Version = expected + 1
	next.LastSequence = a.seq.Last()

	if err := a.store.CompareAndStore(a.ctx, a.id, expected, next); err != nil {
		a.seq.Reset(a.state.LastSequence)
		if errors.Is(err, biddingerrors.ErrVersionConflict) {
			halt := fmt.Errorf("actor: auction %s: %w: %v", a.id, biddingerrors.ErrIntegrity, err)
			a.setErr(halt)
			utils.Error("auction actor halted", map[string]any{"auction_id": a.id, "error": err.Error()})
			return halt
		}
		return fmt.Errorf("actor: persist auction %s: %w", a.id, err)
	}

	a.state = next
	a.mu.Lock()
	a.status = next.Status
	a.closedAt = next.ClosedAt
	a.mu.Unlock()

	for _, ev := range events {
		for _, sink := range a.sinks {
			if err := sink.Consume(a.ctx, ev); err != nil {
				utils.Warn("event sink failed", map[string]any{
					"auction_id": a.id,
					"sequence":   ev.Sequence,
					"error":      err.Error(),
				})
			}
		}
	}
	return nil
}

// arm sets the single pending timer for the next scheduled transition,
// replacing any earlier one
func (a *Actor) arm() {
	a.disarm()

	var (
		at  time.Time
		msg message
	)
	switch a.state.Status {
	case models.StatusScheduled:
		at = a.state.StartsAt
		msg = startDue{armedFor: at}
	case models.StatusOpen:
		at = a.state.EndsAt
		msg = deadlineDue{armedFor: at}
	default:
		return
	}

	delay := at.Sub(a.clock.Now())
	if delay < 0 {
		delay = 0
	}
	a.timer = a.clock.AfterFunc(delay, func() { a.post(msg) })
}

// retry posts a timer message again after RetryDelay, so a transition that
// failed to persist still happens without waiting for a request
func (a *Actor) retry(msg message) {
	if a.Halted() {
		return
	}
	a.disarm()
	a.timer = a.clock.AfterFunc(a.rules.RetryDelay, func() { a.post(msg) })
}

func (a *Actor) disarm() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// post delivers a timer message unless the actor is gone
func (a *Actor) post(msg message) {
	select {
	case a.mailbox <- msg:
	case <-a.done:
	}
}

func (a *Actor) logFailure(action string, err error) {
	if err == nil {
		return
	}
	utils.Error("actor: "+action+" failed", map[string]any{"auction_id": a.id, "error": err.Error()})
}

func fillHighBid(ev *models.BidEvent, auction models.Auction) {
	ev.BidCount = auction.BidCount
	if !auction.HasBid() {
		return
	}
	amount := auction.HighBid
	ev.HighBid = &amount
	ev.HighBidder = auction.HighBidder
}
