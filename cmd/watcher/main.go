// Command watcher follows one auction's live event stream and logs each
// event, reconnecting and resuming from the last sequence it saw.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bidding-engine/internal/client"
	"bidding-engine/internal/config"
	"bidding-engine/internal/models"
	"bidding-engine/utils"
)

func main() {
	cfg, err := config.LoadWatcher()
	if err != nil {
		utils.Fatal("invalid watcher configuration", map[string]any{"error": err.Error()})
	}
	utils.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := client.NewChannel(client.WSDialer{BaseURL: cfg.StreamURL}, cfg.AuctionID, uint64(cfg.FromSequence), client.Options{
		BaseDelay:   cfg.ReconnectBaseDelay,
		MaxDelay:    cfg.ReconnectMaxDelay,
		MaxAttempts: cfg.ReconnectMaxAttempts,
	})

	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	for event := range ch.Events() {
		logEvent(event)
	}

	if err := <-done; err != nil {
		utils.Error("stream ended", map[string]any{
			"auction_id": cfg.AuctionID,
			"last_seen":  ch.LastSeen(),
			"error":      err.Error(),
		})
		os.Exit(1)
	}
	utils.Info("stream finished", map[string]any{"auction_id": cfg.AuctionID, "last_seen": ch.LastSeen()})
}

func logEvent(event models.BidEvent) {
	fields := map[string]any{
		"auction_id": event.AuctionID,
		"sequence":   event.Sequence,
		"bid_count":  event.BidCount,
	}
	if event.HighBid != nil {
		fields["high_bid"] = event.HighBid.String()
		fields["high_bidder"] = event.HighBidder
	}
	switch event.Kind {
	case models.EventBidAccepted:
		if event.CancelledBidID != 0 {
			fields["cancelled_bid_id"] = event.CancelledBidID
		}
		fields["bid_id"] = event.BidID
	case models.EventAuctionExtended:
		fields["new_end_time"] = event.NewEndTime
	case models.EventAuctionClosed:
		fields["reason"] = event.ClosedReason
	}
	utils.Info(string(event.Kind), fields)
}
