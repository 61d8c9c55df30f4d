package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/internal/broadcast"
	"bidding-engine/internal/models"

	"github.com/gorilla/websocket"
)

// Conn is one live subscription to an auction's event stream
type Conn interface {
	// Next blocks until the next frame arrives or the connection fails
	Next(ctx context.Context) (models.StreamFrame, error)
	Close() error
}

// Dialer opens a subscription that delivers events after fromSequence
type Dialer interface {
	Dial(ctx context.Context, auctionID string, fromSequence uint64) (Conn, error)
}

const pongWait = 60 * time.Second

// WSDialer connects to the HTTP server's websocket stream endpoint
type WSDialer struct {
	// BaseURL is the server root, e.g. ws://localhost:8080
	BaseURL string
	Dialer  *websocket.Dialer
	Header  http.Header
}

func (d WSDialer) streamURL(auctionID string, fromSequence uint64) (string, error) {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return "", err
	}
	u.Path = path.Join(u.Path, "/v1/auctions", url.PathEscape(auctionID), "stream")
	q := u.Query()
	q.Set("from", strconv.FormatUint(fromSequence, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d WSDialer) Dial(ctx context.Context, auctionID string, fromSequence uint64) (Conn, error) {
	target, err := d.streamURL(auctionID, fromSequence)
	if err != nil {
		return nil, fmt.Errorf("client: stream url: %w", err)
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, target, d.Header)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusGone:
				return nil, fmt.Errorf("client: dial %s: %w", target, biddingerrors.ErrReplayTruncated)
			case http.StatusNotFound:
				return nil, fmt.Errorf("client: dial %s: %w", target, biddingerrors.ErrAuctionNotFound)
			}
		}
		return nil, fmt.Errorf("client: dial %s: %w", target, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	// the server pings periodically; each ping proves the stream is alive
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Next(ctx context.Context) (models.StreamFrame, error) {
	// unblock the read if the caller gives up
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	var frame models.StreamFrame
	if err := c.conn.ReadJSON(&frame); err != nil {
		if ctx.Err() != nil {
			return models.StreamFrame{}, ctx.Err()
		}
		return models.StreamFrame{}, err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	return frame, nil
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

// LocalDialer subscribes directly to an in-process broadcaster
type LocalDialer struct {
	Broadcaster *broadcast.Broadcaster
}

func (d LocalDialer) Dial(_ context.Context, auctionID string, fromSequence uint64) (Conn, error) {
	sub, err := d.Broadcaster.Subscribe(auctionID, fromSequence)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return &localConn{broadcaster: d.Broadcaster, sub: sub}, nil
}

type localConn struct {
	broadcaster *broadcast.Broadcaster
	sub         *broadcast.Subscription
}

func (c *localConn) Next(ctx context.Context) (models.StreamFrame, error) {
	event, err := c.sub.Next(ctx)
	if errors.Is(err, biddingerrors.ErrResyncRequired) {
		return models.StreamFrame{Type: models.FrameResync}, nil
	}
	if err != nil {
		return models.StreamFrame{}, err
	}
	return models.StreamFrame{Type: models.FrameEvent, Event: &event}, nil
}

func (c *localConn) Close() error {
	c.broadcaster.Unsubscribe(c.sub)
	return nil
}
