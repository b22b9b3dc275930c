package hub

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/weatherboard/internal/room"
)

type HubMsg interface{ isHubMsg() }

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

// EnsureRoom returns the room for ID, creating it on first use.
type EnsureRoom struct {
	ID    string
	Reply chan *room.Room
}

type ListRooms struct {
	Reply chan []string
}

// TickRooms makes sure every listed room exists, then ticks every resident room.
type TickRooms struct {
	IDs []string
}

type ShutdownHub struct{}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	base   room.Config
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (TickRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

// NewHub starts the registry. base is copied into every room it creates, with
// ID filled in per room.
func NewHub(parent context.Context, base room.Config) *Hub {
	if base.Logger == nil {
		base.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		base:   base,
		logger: base.Logger.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Ensure is the blocking form of EnsureRoom. It returns nil once the hub has
// shut down.
func (h *Hub) Ensure(ctx context.Context, id string) *room.Room {
	rm, _ := ask(ctx, h, func(reply chan *room.Room) HubMsg { return EnsureRoom{ID: id, Reply: reply} })
	return rm
}

// Room is the blocking form of GetRoom. It never creates a room.
func (h *Hub) Room(ctx context.Context, id string) *room.Room {
	rm, _ := ask(ctx, h, func(reply chan *room.Room) HubMsg { return GetRoom{ID: id, Reply: reply} })
	return rm
}

// Rooms lists resident room ids, sorted. ok is false if the hub did not answer.
func (h *Hub) Rooms(ctx context.Context) (ids []string, ok bool) {
	return ask(ctx, h, func(reply chan []string) HubMsg { return ListRooms{Reply: reply} })
}

func ask[T any](ctx context.Context, h *Hub, build func(chan T) HubMsg) (T, bool) {
	var zero T
	reply := make(chan T, 1)
	select {
	case h.inbox <- build(reply):
	case <-ctx.Done():
		return zero, false
	case <-h.ctx.Done():
		return zero, false
	}

	select {
	case v := <-reply:
		return v, true
	case <-ctx.Done():
		return zero, false
	case <-h.ctx.Done():
		return zero, false
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // May be nil

			case EnsureRoom:
				msg.Reply <- h.ensure(msg.ID)

			case ListRooms:
				ids := make([]string, 0, len(h.rooms))
				for id := range h.rooms {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				msg.Reply <- ids

			case TickRooms:
				for _, id := range msg.IDs {
					h.ensure(id)
				}
				for _, rm := range h.rooms {
					if !rm.Send(room.Tick{}) {
						h.logger.Warn("tick dropped; room stopped", zap.String("room", rm.ID()))
					}
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) ensure(id string) *room.Room {
	if rm := h.rooms[id]; rm != nil {
		return rm
	}

	cfg := h.base
	cfg.ID = id
	rm := room.NewRoom(h.ctx, cfg)
	h.rooms[id] = rm
	h.logger.Info("room created", zap.String("room", id))
	return rm
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Send(room.Shutdown{})
	}
	clear(h.rooms)
	h.cancel()
}
