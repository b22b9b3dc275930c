package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/weatherboard/internal/onboarding"
	"github.com/DoyleJ11/weatherboard/pkg/types"
)

const writeTimeout = 3 * time.Second

// EventSink receives events from the room. *onboarding.Machine satisfies it.
type EventSink interface {
	Send(ev onboarding.Event) bool
}

// Conn is one client's connection to a room.
type Conn struct {
	ws  *websocket.Conn
	log *zap.Logger
}

// RoomURL builds the session URL for room on server, e.g.
// ws://localhost:8080/rooms/thunderdome/ws?id=abc.
func RoomURL(server, room, id string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u = u.JoinPath("rooms", room, "ws")
	if id != "" {
		q := u.Query()
		q.Set("id", id)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func Dial(ctx context.Context, server, room, id string, logger *zap.Logger) (*Conn, error) {
	target, err := RoomURL(server, room, id)
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Conn{ws: ws, log: logger.Named("conn").With(zap.String("room", room))}, nil
}

// Send writes one command frame.
func (c *Conn) Send(ctx context.Context, msg types.ClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, payload)
}

// Listen reports the connection as open, then feeds every room frame to sink
// until the connection or ctx ends. Frames it can't make sense of are skipped.
func (c *Conn) Listen(ctx context.Context, sink EventSink) error {
	if !sink.Send(onboarding.Opened{}) {
		return nil
	}

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}
		ev, ok := onboarding.FromServer(msg)
		if !ok {
			c.log.Debug("ignoring frame", zap.String("type", msg.Type))
			continue
		}
		if !sink.Send(ev) {
			return nil
		}
	}
}

func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}
