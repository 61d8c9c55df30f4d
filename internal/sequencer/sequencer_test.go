package sequencer

import (
	"testing"
	"time"

	"bidding-engine/internal/models"

	"github.com/stretchr/testify/require"
)

func TestSequencer_Next(t *testing.T) {
	now := time.Now().UTC()
	seq := New("auction1", 0)

	first := seq.Next(models.EventBidAccepted, now)
	second := seq.Next(models.EventAuctionExtended, now)

	require.Equal(t, uint64(1), first.Sequence)
	require.Equal(t, uint64(2), second.Sequence)
	require.Equal(t, "auction1", second.AuctionID)
	require.Equal(t, models.EventAuctionExtended, second.Kind)
	require.Equal(t, uint64(2), seq.Last())
}

func TestSequencer_ResumesFromSnapshot(t *testing.T) {
	seq := New("auction1", 41)
	require.Equal(t, uint64(42), seq.Next(models.EventBidAccepted, time.Now()).Sequence)

	seq.Reset(41)
	require.Equal(t, uint64(42), seq.Next(models.EventBidAccepted, time.Now()).Sequence)
}
