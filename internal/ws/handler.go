package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/weatherboard/internal/hub"
	"github.com/DoyleJ11/weatherboard/internal/room"
	"github.com/DoyleJ11/weatherboard/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 8
)

func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	logger = logger.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room")
		if roomID == "" {
			http.Error(w, "missing room", http.StatusBadRequest)
			return
		}

		// Clients that remember their id keep their leaderboard entry across reconnects.
		clientID := r.URL.Query().Get("id")
		if clientID == "" {
			clientID = uuid.NewString()
		}

		rm := h.Ensure(r.Context(), roomID)
		if rm == nil {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			logger.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := logger.With(zap.String("room", roomID), zap.String("client", clientID))
		out := make(chan types.ServerMessage, outboxSize)

		if !rm.Send(room.Join{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "room closed")
			return
		}
		defer rm.Send(room.Leave{ClientID: clientID, Outbox: out})
		log.Debug("connected")

		// Writer goroutine. The room closes out when it drops us or shuts down.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				var msg types.ServerMessage
				var ok bool
				select {
				case <-writeCtx.Done():
					return
				case msg, ok = <-out:
				}
				if !ok {
					// Dropped as a slow client, or the room shut down.
					conn.Close(websocket.StatusGoingAway, "outbox closed")
					return
				}

				payload, err := json.Marshal(msg)
				if err != nil {
					log.Error("marshal frame", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					log.Debug("write failed", zap.Error(err))
					conn.CloseNow()
					return
				}
			}
		}()

		// Reader loop
		for {
			// Clients mostly listen, so reads are bounded by the request only.
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("disconnected")
				default:
					log.Debug("read failed", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				// Malformed frames get no reply.
				log.Debug("ignoring malformed frame", zap.Error(err))
				continue
			}

			if !rm.Send(room.FromClient{ClientID: clientID, Msg: cm}) {
				conn.Close(websocket.StatusGoingAway, "room closed")
				return
			}
		}
	}
}
