package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/broadcast"
	"bidding-engine/internal/models"
	"bidding-engine/services/bidding/helpers"
	"bidding-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StreamHandler handles GET /v1/auctions/:auction_id/stream?from=N.
// Without from the stream starts at the current sequence.
func (h *BiddingHandler) StreamHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var from *uint64
	if raw := c.Query("from"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			helpers.HandleBindError(c, "StreamHandler", err)
			return
		}
		from = &v
	}

	// subscribe before upgrading so failures are plain HTTP statuses
	sub, err := h.service.Subscribe(c.Request.Context(), auctionID, from)
	if err != nil {
		failRequest(c, "StreamHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	defer h.service.Unsubscribe(sub)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Warn("StreamHandler: upgrade failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go readPump(conn, cancel)

	utils.Info("StreamHandler: subscriber attached", map[string]any{
		"auction_id":      auctionID,
		"subscription_id": sub.ID,
	})
	delivered := writePump(ctx, conn, sub)
	utils.Info("StreamHandler: subscriber detached", map[string]any{
		"auction_id":      auctionID,
		"subscription_id": sub.ID,
		"delivered":       delivered,
		"last_sequence":   sub.LastDelivered(),
	})
}

// readPump discards client messages and cancels the stream once the peer is gone
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscription) int {
	delivered := 0
	for {
		nextCtx, cancelNext := context.WithTimeout(ctx, pingPeriod)
		event, err := sub.Next(nextCtx)
		cancelNext()

		switch {
		case err == nil:
			if writeFrame(conn, models.StreamFrame{Type: models.FrameEvent, Event: &event}) != nil {
				return delivered
			}
			delivered++
			if event.Terminal() {
				writeClose(conn, websocket.CloseNormalClosure, "auction closed")
				return delivered
			}
		case ctx.Err() != nil:
			return delivered
		case errors.Is(err, context.DeadlineExceeded):
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if conn.WriteMessage(websocket.PingMessage, nil) != nil {
				return delivered
			}
		case errors.Is(err, biddingerrors.ErrResyncRequired):
			_ = writeFrame(conn, models.StreamFrame{Type: models.FrameResync, Error: err.Error()})
			writeClose(conn, websocket.CloseNormalClosure, "resync required")
			return delivered
		default:
			_ = writeFrame(conn, models.StreamFrame{Type: models.FrameError, Error: err.Error()})
			writeClose(conn, websocket.CloseGoingAway, "stream closed")
			return delivered
		}
	}
}

func writeFrame(conn *websocket.Conn, frame models.StreamFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
