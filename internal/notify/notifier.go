//go:generate mockgen -source=notifier.go -destination=mock_notifier.go -package=notify
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"bidding-engine/internal/models"
	"bidding-engine/utils"

	"github.com/redis/go-redis/v9"
)

var ErrBacklogFull = errors.New("notification backlog full")

const publishTimeout = 2 * time.Second

// Publisher sends a payload to a named channel
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher publishes over Redis Pub/Sub
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(ctx context.Context, addr string) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return &RedisPublisher{rdb: rdb}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// RedisNotifier forwards committed auction events to other processes, one
// channel per auction. Consume only queues; Run does the network I/O so a
// slow Redis never stalls an auction actor.
type RedisNotifier struct {
	pub     Publisher
	prefix  string
	queue   chan models.BidEvent
	dropped atomic.Int64
}

func NewRedisNotifier(pub Publisher, prefix string, backlog int) *RedisNotifier {
	if backlog <= 0 {
		backlog = 1024
	}
	return &RedisNotifier{
		pub:    pub,
		prefix: prefix,
		queue:  make(chan models.BidEvent, backlog),
	}
}

// Channel returns the Pub/Sub channel used for an auction
func (n *RedisNotifier) Channel(auctionID string) string {
	return n.prefix + auctionID
}

func (n *RedisNotifier) Consume(_ context.Context, event models.BidEvent) error {
	select {
	case n.queue <- event:
		return nil
	default:
		n.dropped.Add(1)
		return ErrBacklogFull
	}
}

// Dropped returns how many events were refused because the backlog was full
func (n *RedisNotifier) Dropped() int64 {
	return n.dropped.Load()
}

// Run publishes queued events until ctx is cancelled
func (n *RedisNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-n.queue:
			n.publish(ctx, event)
		}
	}
}

func (n *RedisNotifier) publish(ctx context.Context, event models.BidEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		utils.Error("encode event", map[string]any{"auction_id": event.AuctionID, "error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := n.pub.Publish(ctx, n.Channel(event.AuctionID), payload); err != nil {
		utils.Warn("event notification failed", map[string]any{
			"auction_id": event.AuctionID,
			"sequence":   event.Sequence,
			"error":      err.Error(),
		})
	}
}
