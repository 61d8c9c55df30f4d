package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/clock"
	"bidding-engine/internal/models"
	"bidding-engine/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// recorder is an EventSink that keeps everything it is given
type recorder struct {
	mu     sync.Mutex
	events []models.BidEvent
}

func (r *recorder) Consume(_ context.Context, event models.BidEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) all() []models.BidEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.BidEvent(nil), r.events...)
}

func (r *recorder) kinds() []models.EventKind {
	kinds := []models.EventKind{}
	for _, ev := range r.all() {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// lazyClock never fires timers, so only lazy expiry can move the auction
type lazyClock struct {
	*clock.Manual
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return true }

func (lazyClock) AfterFunc(time.Duration, func()) clock.Timer { return noopTimer{} }

func usd(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func openAuction(id string, runFor time.Duration) models.Auction {
	return models.Auction{
		ID:           id,
		Title:        "Vintage camera",
		Status:       models.StatusOpen,
		ReservePrice: usd(100),
		MinIncrement: usd(5),
		StartsAt:     start,
		EndsAt:       start.Add(runFor),
		NextBidID:    1,
	}
}

type fixture struct {
	actor *Actor
	clock *clock.Manual
	store *repository.MemoryRepo
	sink  *recorder
}

func newFixture(t *testing.T, auction models.Auction, rules Rules) fixture {
	t.Helper()
	store := repository.NewMemoryRepo()
	require.NoError(t, store.Create(context.Background(), auction))
	clk := clock.NewManual(start)
	sink := &recorder{}
	a := New(auction, store, clk, rules, sink)
	t.Cleanup(a.Stop)
	return fixture{actor: a, clock: clk, store: store, sink: sink}
}

func (f fixture) bid(t *testing.T, bidderID string, amount int64) models.BidOutcome {
	t.Helper()
	outcome, err := f.actor.SubmitBid(context.Background(), bidderID, usd(amount))
	require.NoError(t, err)
	return outcome
}

func TestActor_SubmitBid_Sequential(t *testing.T) {
	t.Parallel()

	type step struct {
		bidder string
		amount int64
		reason models.RejectReason
	}
	tests := []struct {
		name       string
		rules      Rules
		steps      []step
		wantHigh   int64
		wantBidder string
		wantCount  int
	}{
		{
			name: "accept_then_outbid_then_too_low",
			steps: []step{
				{bidder: "alice", amount: 100},
				{bidder: "bob", amount: 120},
				{bidder: "carol", amount: 115, reason: models.ReasonBidTooLow},
			},
			wantHigh: 120, wantBidder: "bob", wantCount: 2,
		},
		{
			name: "below_reserve",
			steps: []step{
				{bidder: "alice", amount: 99, reason: models.ReasonBidTooLow},
			},
			wantHigh: 0, wantBidder: "", wantCount: 0,
		},
		{
			name: "increment_enforced",
			steps: []step{
				{bidder: "alice", amount: 100},
				{bidder: "bob", amount: 104, reason: models.ReasonBidTooLow},
				{bidder: "bob", amount: 105},
			},
			wantHigh: 105, wantBidder: "bob", wantCount: 2,
		},
		{
			name: "self_outbid_rejected_by_default",
			steps: []step{
				{bidder: "alice", amount: 100},
				{bidder: "alice", amount: 200, reason: models.ReasonSelfOutbid},
			},
			wantHigh: 100, wantBidder: "alice", wantCount: 1,
		},
		{
			name:  "self_outbid_allowed_by_policy",
			rules: Rules{SnipeWindow: time.Minute, Extension: time.Minute, AllowSelfOutbid: true},
			steps: []step{
				{bidder: "alice", amount: 100},
				{bidder: "alice", amount: 200},
			},
			wantHigh: 200, wantBidder: "alice", wantCount: 2,
		},
		{
			name: "invalid_bids",
			steps: []step{
				{bidder: "", amount: 100, reason: models.ReasonInvalidBid},
				{bidder: "alice", amount: 0, reason: models.ReasonInvalidBid},
				{bidder: "alice", amount: -5, reason: models.ReasonInvalidBid},
			},
			wantHigh: 0, wantBidder: "", wantCount: 0,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rules := tc.rules
			if rules == (Rules{}) {
				rules = DefaultRules()
			}
			f := newFixture(t, openAuction("a1", time.Hour), rules)

			accepted := 0
			for _, s := range tc.steps {
				outcome := f.bid(t, s.bidder, s.amount)
				require.Equal(t, s.reason == models.ReasonNone, outcome.Accepted, "bid %s %d", s.bidder, s.amount)
				require.Equal(t, s.reason, outcome.Reason)
				if outcome.Accepted {
					accepted++
					require.Equal(t, uint64(accepted), outcome.Bid.ID)
					require.Equal(t, models.OutcomeAccepted, outcome.Bid.Outcome)
				} else {
					require.Equal(t, models.OutcomeRejected, outcome.Bid.Outcome)
				}
			}

			state, err := f.actor.Snapshot(context.Background())
			require.NoError(t, err)
			require.True(t, state.HighBid.Equal(usd(tc.wantHigh)), "high bid %s", state.HighBid)
			require.Equal(t, tc.wantBidder, state.HighBidder)
			require.Equal(t, tc.wantCount, state.BidCount)
			require.Len(t, f.sink.all(), tc.wantCount)

			stored, err := f.store.Load(context.Background(), "a1")
			require.NoError(t, err)
			require.Equal(t, state.Version, stored.Version)
			require.True(t, stored.HighBid.Equal(state.HighBid))
		})
	}
}

// Bids racing on one auction: every accepted bid is counted, the price never
// goes down and sequence numbers have no gaps
func TestActor_SubmitBid_Concurrent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, openAuction("a1", time.Hour), DefaultRules())

	const bidders = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := f.actor.SubmitBid(context.Background(), fmt.Sprintf("user%d", i), usd(100+int64(i)*5))
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if outcome.Accepted {
				accepted++
				return
			}
			if outcome.Reason != models.ReasonBidTooLow {
				t.Errorf("unexpected reason %s", outcome.Reason)
			}
		}(i)
	}
	wg.Wait()

	state, err := f.actor.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, accepted, state.BidCount)
	require.True(t, state.HighBid.Equal(usd(100+(bidders-1)*5)))

	events := f.sink.all()
	require.Len(t, events, accepted)
	for i, ev := range events {
		require.Equal(t, uint64(i+1), ev.Sequence)
		if i > 0 {
			require.True(t, ev.HighBid.GreaterThan(*events[i-1].HighBid))
		}
	}
}

// The same three bids arriving in any order always settle on 120
func TestActor_SubmitBid_ConcurrentScenario(t *testing.T) {
	t.Parallel()

	for round := 0; round < 20; round++ {
		f := newFixture(t, openAuction("a1", time.Hour), DefaultRules())

		var wg sync.WaitGroup
		outcomes := make([]models.BidOutcome, 3)
		bids := []struct {
			bidder string
			amount int64
		}{{"alice", 100}, {"bob", 120}, {"carol", 115}}
		for i, b := range bids {
			wg.Add(1)
			go func(i int, bidder string, amount int64) {
				defer wg.Done()
				outcome, err := f.actor.SubmitBid(context.Background(), bidder, usd(amount))
				if err != nil {
					t.Errorf("submit: %v", err)
				}
				outcomes[i] = outcome
			}(i, b.bidder, b.amount)
		}
		wg.Wait()

		state, err := f.actor.Snapshot(context.Background())
		require.NoError(t, err)
		require.True(t, state.HighBid.Equal(usd(120)))
		require.Equal(t, "bob", state.HighBidder)
		require.True(t, outcomes[1].Accepted)

		accepted := 0
		for _, o := range outcomes {
			if o.Accepted {
				accepted++
				continue
			}
			require.Equal(t, models.ReasonBidTooLow, o.Reason)
		}
		require.Equal(t, accepted, state.BidCount)
	}
}

func TestActor_AntiSnipe(t *testing.T) {
	t.Parallel()

	end := start.Add(time.Hour)
	tests := []struct {
		name          string
		remaining     time.Duration
		maxExtensions int
		priorExtended int
		wantEnd       time.Time
		wantExtended  bool
	}{
		{name: "ten_seconds_left", remaining: 10 * time.Second, wantEnd: end.Add(50 * time.Second), wantExtended: true},
		{name: "two_minutes_left", remaining: 2 * time.Minute, wantEnd: end},
		{name: "exactly_window_left", remaining: time.Minute, wantEnd: end},
		{name: "one_second_left", remaining: time.Second, wantEnd: end.Add(59 * time.Second), wantExtended: true},
		{name: "cap_reached", remaining: 10 * time.Second, maxExtensions: 2, priorExtended: 2, wantEnd: end},
		{name: "below_cap", remaining: 10 * time.Second, maxExtensions: 2, priorExtended: 1, wantEnd: end.Add(50 * time.Second), wantExtended: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rules := DefaultRules()
			rules.MaxExtensions = tc.maxExtensions
			auction := openAuction("a1", time.Hour)
			auction.ExtensionCount = tc.priorExtended
			f := newFixture(t, auction, rules)

			f.clock.Advance(time.Hour - tc.remaining)
			outcome := f.bid(t, "alice", 100)
			require.True(t, outcome.Accepted)
			require.True(t, tc.wantEnd.Equal(outcome.State.EndsAt), "ends at %s", outcome.State.EndsAt)

			if tc.wantExtended {
				require.Equal(t, []models.EventKind{models.EventBidAccepted, models.EventAuctionExtended}, f.sink.kinds())
				require.Equal(t, tc.priorExtended+1, outcome.State.ExtensionCount)
				return
			}
			require.Equal(t, []models.EventKind{models.EventBidAccepted}, f.sink.kinds())
			require.Equal(t, tc.priorExtended, outcome.State.ExtensionCount)
		})
	}
}

// An auction ending in 30s takes a bid: the extension event directly follows
// the acceptance and the auction ends 60s after the bid
func TestActor_ExtensionEventOrdering(t *testing.T) {
	t.Parallel()

	f := newFixture(t, openAuction("a1", 30*time.Second), DefaultRules())

	outcome := f.bid(t, "alice", 150)
	require.True(t, outcome.Accepted)

	events := f.sink.all()
	require.Len(t, events, 2)
	require.Equal(t, models.EventBidAccepted, events[0].Kind)
	require.Equal(t, uint64(1), events[0].Sequence)
	require.Equal(t, models.EventAuctionExtended, events[1].Kind)
	require.Equal(t, uint64(2), events[1].Sequence)
	require.True(t, events[1].NewEndTime.Equal(start.Add(time.Minute)))
	require.Equal(t, uint64(2), outcome.State.LastSequence)
}

func TestActor_DeadlineCloses(t *testing.T) {
	t.Parallel()

	f := newFixture(t, openAuction("a1", time.Hour), DefaultRules())
	f.bid(t, "alice", 100)

	f.clock.Advance(time.Hour)
	state, err := f.actor.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.StatusClosed, state.Status)
	require.Equal(t, models.CloseReasonEnded, state.ClosedReason)
	require.Equal(t, 0, f.clock.Pending())

	closedAt, closed := f.actor.ClosedSince()
	require.True(t, closed)
	require.True(t, closedAt.Equal(start.Add(time.Hour)))

	events := f.sink.all()
	require.Len(t, events, 2)
	last := events[1]
	require.Equal(t, models.EventAuctionClosed, last.Kind)
	require.True(t, last.Terminal())
	require.Equal(t, "alice", last.HighBidder)
	require.True(t, last.HighBid.Equal(usd(100)))
}

// An extension replaces the pending deadline: the old end time passes
// without closing the auction
func TestActor_ExtensionSupersedesDeadline(t *testing.T) {
	t.Parallel()

	f := newFixture(t, openAuction("a1", time.Hour), DefaultRules())

	f.clock.Advance(time.Hour - 10*time.Second)
	f.bid(t, "alice", 100)
	require.Equal(t, 1, f.clock.Pending())

	f.clock.Advance(10 * time.Second)
	state, err := f.actor.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.StatusOpen, state.Status)

	f.clock.Advance(50 * time.Second)
	state, err = f.actor.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.StatusClosed, state.Status)
	require.Equal(t, []models.EventKind{
		models.EventBidAccepted,
		models.EventAuctionExtended,
		models.EventAuctionClosed,
	}, f.sink.kinds())
}

func TestActor_LazyExpiry(t *testing.T) {
	t.Parallel()

	auction := openAuction("a1", time.Hour)
	store := repository.NewMemoryRepo()
	require.NoError(t, store.Create(context.Background(), auction))
	clk := lazyClock{clock.NewManual(start)}
	sink := &recorder{}
	a := New(auction, store, clk, DefaultRules(), sink)
	t.Cleanup(a.Stop)

	clk.Advance(2 * time.Hour)
	outcome, err := a.SubmitBid(context.Background(), "alice", usd(500))
	require.NoError(t, err)
	require.False(t, outcome.Accepted)
	require.Equal(t, models.ReasonAuctionNotOpen, outcome.Reason)
	require.Equal(t, models.StatusClosed, outcome.State.Status)
	require.Equal(t, []models.EventKind{models.EventAuctionClosed}, sink.kinds())
}

func TestActor_ClosedIsTerminal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, openAuction("a1", time.Hour), DefaultRules())
	f.bid(t, "alice", 100)

	state, err := f.actor.CloseImmediately(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, models.StatusClosed, state.Status)
	require.Equal(t, models.CloseReasonCancelled, state.ClosedReason)

	again, err := f.actor.CloseImmediately(context.Background(), "seller request")
	require.NoError(t, err)
	require.Equal(t, state.Version, again.Version)
	require.Equal(t, models.CloseReasonCancelled, again.ClosedReason)

	outcome := f.bid(t, "bob", 1000)
	require.False(t, outcome.Accepted)
	require.Equal(t, models.ReasonAuctionNotOpen, outcome.Reason)

	_, err = f.actor.Open(context.Background())
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotOpen)

	f.clock.Advance(2 * time.Hour)
	require.Equal(t, []models.EventKind{models.EventBidAccepted, models.EventAuctionClosed}, f.sink.kinds())
}

func TestActor_CancelBid(t *testing.T) {
	t.Parallel()

	f := newFixture(t, openAuction("a1", time.Hour), DefaultRules())
	ctx := context.Background()

	first := f.bid(t, "alice", 100)
	second := f.bid(t, "bob", 120)

	tests := []struct {
		name      string
		bidID     uint64
		requester string
		accepted  bool
		reason    models.RejectReason
	}{
		{name: "superseded", bidID: first.Bid.ID, requester: "alice", reason: models.ReasonTooLate},
		{name: "not_owner", bidID: second.Bid.ID, requester: "carol", reason: models.ReasonNotBidOwner},
		{name: "unknown_bid", bidID: 99, requester: "bob", reason: models.ReasonBidNotFound},
		{name: "owner_cancels", bidID: second.Bid.ID, requester: "bob", accepted: true},
		{name: "cancel_twice", bidID: second.Bid.ID, requester: "bob", reason: models.ReasonTooLate},
	}

	// steps depend on each other, so they run in order
	for _, tc := range tests {
		outcome, err := f.actor.CancelBid(ctx, tc.bidID, tc.requester)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.accepted, outcome.Accepted, tc.name)
		require.Equal(t, tc.reason, outcome.Reason, tc.name)
	}

	state, err := f.actor.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, state.HighBid.Equal(usd(100)))
	require.Equal(t, "alice", state.HighBidder)
	require.Equal(t, 1, state.BidCount)

	events := f.sink.all()
	require.Len(t, events, 3)
	correction := events[2]
	require.Equal(t, models.EventBidAccepted, correction.Kind)
	require.Equal(t, uint64(3), correction.Sequence)
	require.Equal(t, second.Bid.ID, correction.CancelledBidID)
	require.Equal(t, first.Bid.ID, correction.BidID)
	require.True(t, correction.HighBid.Equal(usd(100)))

	// the reverted price is the new floor
	outcome := f.bid(t, "carol", 104)
	require.Equal(t, models.ReasonBidTooLow, outcome.Reason)
	outcome = f.bid(t, "carol", 105)
	require.True(t, outcome.Accepted)
	require.Equal(t, uint64(3), outcome.Bid.ID)
}

func TestActor_CancelOnlyBidRevertsToNoBid(t *testing.T) {
	t.Parallel()

	f := newFixture(t, openAuction("a1", time.Hour), DefaultRules())
	placed := f.bid(t, "alice", 150)

	outcome, err := f.actor.CancelBid(context.Background(), placed.Bid.ID, "alice")
	require.NoError(t, err)
	require.True(t, outcome.Accepted)
	require.False(t, outcome.State.HasBid())
	require.True(t, outcome.State.HighBid.IsZero())
	require.Equal(t, 0, outcome.State.BidCount)

	// with no bid standing the reserve applies again
	require.True(t, f.bid(t, "bob", 100).Accepted)
}

func TestActor_CancelWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, openAuction("a1", time.Hour), DefaultRules())
	placed := f.bid(t, "alice", 100)

	f.clock.Advance(10*time.Minute + time.Second)
	outcome, err := f.actor.CancelBid(context.Background(), placed.Bid.ID, "alice")
	require.NoError(t, err)
	require.False(t, outcome.Accepted)
	require.Equal(t, models.ReasonTooLate, outcome.Reason)
}

func TestActor_ScheduledOpensAtStart(t *testing.T) {
	t.Parallel()

	auction := openAuction("a1", time.Hour)
	auction.Status = models.StatusScheduled
	auction.StartsAt = start.Add(time.Minute)
	f := newFixture(t, auction, DefaultRules())

	early := f.bid(t, "alice", 100)
	require.Equal(t, models.ReasonAuctionNotOpen, early.Reason)

	f.clock.Advance(time.Minute)
	outcome := f.bid(t, "alice", 100)
	require.True(t, outcome.Accepted)
	require.Equal(t, []models.EventKind{models.EventAuctionOpened, models.EventBidAccepted}, f.sink.kinds())
}

func TestActor_OpenEarly(t *testing.T) {
	t.Parallel()

	auction := openAuction("a1", time.Hour)
	auction.Status = models.StatusScheduled
	auction.StartsAt = start.Add(10 * time.Minute)
	f := newFixture(t, auction, DefaultRules())

	state, err := f.actor.Open(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.StatusOpen, state.Status)
	require.True(t, state.StartsAt.Equal(start))

	// opening twice is a no-op
	again, err := f.actor.Open(context.Background())
	require.NoError(t, err)
	require.Equal(t, state.Version, again.Version)
	require.True(t, f.bid(t, "alice", 100).Accepted)
}

// Someone else wrote the auction behind the actor's back: the actor must stop
func TestActor_VersionConflictHalts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, openAuction("a1", time.Hour), DefaultRules())
	ctx := context.Background()

	rogue := openAuction("a1", time.Hour)
	rogue.Version = 1
	require.NoError(t, f.store.CompareAndStore(ctx, "a1", 0, rogue))

	_, err := f.actor.SubmitBid(ctx, "alice", usd(100))
	require.ErrorIs(t, err, biddingerrors.ErrIntegrity)

	<-f.actor.Done()
	require.True(t, f.actor.Halted())

	_, err = f.actor.SubmitBid(ctx, "bob", usd(200))
	require.ErrorIs(t, err, biddingerrors.ErrIntegrity)
	_, err = f.actor.Snapshot(ctx)
	require.ErrorIs(t, err, biddingerrors.ErrIntegrity)
	require.Empty(t, f.sink.all())
}

// A store failure other than a conflict fails the request only
func TestActor_StoreFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := repository.NewMockAuctionStore(ctrl)
	sink := NewMockEventSink(ctrl)
	auction := openAuction("a1", time.Hour)

	gomock.InOrder(
		store.EXPECT().CompareAndStore(gomock.Any(), "a1", uint64(0), gomock.Any()).Return(errors.New("disk full")),
		store.EXPECT().CompareAndStore(gomock.Any(), "a1", uint64(0), gomock.Any()).Return(nil),
	)
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev models.BidEvent) error {
		require.Equal(t, uint64(1), ev.Sequence)
		return errors.New("sink down")
	})

	a := New(auction, store, clock.NewManual(start), DefaultRules(), sink)
	defer a.Stop()

	_, err := a.SubmitBid(context.Background(), "alice", usd(100))
	require.Error(t, err)
	require.NotErrorIs(t, err, biddingerrors.ErrIntegrity)

	state, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	require.False(t, state.HasBid())
	require.Equal(t, uint64(0), state.Version)

	// a failing sink does not undo a committed bid
	outcome, err := a.SubmitBid(context.Background(), "alice", usd(100))
	require.NoError(t, err)
	require.True(t, outcome.Accepted)
	require.Equal(t, uint64(1), outcome.State.LastSequence)
	require.Equal(t, uint64(1), outcome.State.Version)
}

// A timed transition that fails to persist is retried without any request
// arriving to trigger lazy expiry
func TestActor_TimedTransitionRetriesAfterStoreFailure(t *testing.T) {
	t.Parallel()

	scheduled := openAuction("a1", 2*time.Hour)
	scheduled.Status = models.StatusScheduled
	scheduled.StartsAt = start.Add(time.Hour)

	tests := []struct {
		name       string
		auction    models.Auction
		advance    time.Duration
		wantStatus models.Status
		wantKind   models.EventKind
	}{
		{
			name:       "close_at_deadline",
			auction:    openAuction("a1", time.Hour),
			advance:    time.Hour,
			wantStatus: models.StatusClosed,
			wantKind:   models.EventAuctionClosed,
		},
		{
			name:       "open_at_start",
			auction:    scheduled,
			advance:    time.Hour,
			wantStatus: models.StatusOpen,
			wantKind:   models.EventAuctionOpened,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			store := repository.NewMockAuctionStore(ctrl)
			sink := &recorder{}
			clk := clock.NewManual(start)
			rules := DefaultRules()
			rules.RetryDelay = 5 * time.Second

			gomock.InOrder(
				store.EXPECT().CompareAndStore(gomock.Any(), "a1", uint64(0), gomock.Any()).Return(errors.New("disk full")),
				store.EXPECT().CompareAndStore(gomock.Any(), "a1", uint64(0), gomock.Any()).Return(nil),
			)

			a := New(tc.auction, store, clk, rules, sink)
			defer a.Stop()

			clk.Advance(tc.advance)
			// the failed attempt leaves a retry armed and nothing published
			require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)
			require.Empty(t, sink.all())

			clk.Advance(rules.RetryDelay)
			require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, time.Millisecond)
			require.Equal(t, []models.EventKind{tc.wantKind}, sink.kinds())

			state, err := a.Snapshot(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, state.Status)
			require.Equal(t, uint64(1), state.Version)
		})
	}
}

func TestActor_Stop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, openAuction("a1", time.Hour), DefaultRules())
	f.actor.Stop()
	f.actor.Stop()

	_, err := f.actor.SubmitBid(context.Background(), "alice", usd(100))
	require.ErrorIs(t, err, biddingerrors.ErrActorStopped)
	require.False(t, f.actor.Halted())
}

func TestActor_RequestHonoursContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t, openAuction("a1", time.Hour), DefaultRules())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.actor.SubmitBid(ctx, "alice", usd(100))
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
}
