package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/weatherboard/internal/engine"
	"github.com/DoyleJ11/weatherboard/internal/store"
	"github.com/DoyleJ11/weatherboard/internal/weather"
	"github.com/DoyleJ11/weatherboard/pkg/types"
)

type Msg interface{ isRoomMsg() }

type FromClient struct {
	ClientID string
	Msg      types.ClientMessage
}

func (FromClient) isRoomMsg() {}

type Join struct {
	ClientID string
	Outbox   chan types.ServerMessage // where this client wants to receive frames
}

func (Join) isRoomMsg() {}

// Leave detaches a client. When Outbox is set, it only detaches if that outbox
// is still the current one, so a stale connection can't evict its replacement.
type Leave struct {
	ClientID string
	Outbox   chan types.ServerMessage
}

func (Leave) isRoomMsg() {}

// Tick asks the room to refresh every entry's weather.
type Tick struct{}

func (Tick) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

// Results of work started by the loop. They come back through the inbox so
// every mutation happens on the loop goroutine.
type lookupDone struct {
	clientID string
	name     string
	report   types.Report
	err      error
}

func (lookupDone) isRoomMsg() {}

type refreshDone struct {
	readings map[string]engine.Reading
	err      error
}

func (refreshDone) isRoomMsg() {}

type View struct {
	ID          string            `json:"id"`
	Version     int               `json:"version"`
	NumClients  int               `json:"num_clients"`
	Loaded      bool              `json:"loaded"`
	Refreshing  bool              `json:"refreshing"`
	Leaderboard types.Leaderboard `json:"leaderboard"`
}

type Config struct {
	ID     string
	Store  store.Store
	Lookup weather.Lookup
	Logger *zap.Logger

	// LookupTimeout bounds a single weather lookup. Zero means 10s.
	LookupTimeout time.Duration
	// StoreTimeout bounds a single store call. Zero means 5s.
	StoreTimeout time.Duration
	// PartialRefresh merges whatever lookups succeeded on a tick instead of
	// abandoning the whole tick on the first failure.
	PartialRefresh bool
}

var validate = validator.New()

type Room struct {
	id      string
	inbox   chan Msg
	board   types.Leaderboard
	loaded  bool
	version int
	clients map[string]chan types.ServerMessage

	refreshing bool

	cfg    Config
	key    string
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRoom(parent context.Context, cfg Config) *Room {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 10 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		id:      cfg.ID,
		inbox:   make(chan Msg, 64),
		board:   engine.NewEmptyLeaderboard(),
		clients: make(map[string]chan types.ServerMessage),
		cfg:     cfg,
		key:     store.LeaderboardKey(cfg.ID),
		logger:  cfg.Logger.With(zap.String("room", cfg.ID)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) loop() {
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.ensureLoaded()
				if old, ok := r.clients[msg.ClientID]; ok && old != msg.Outbox {
					close(old) // Same id reconnected; the old connection goes away.
				}
				r.clients[msg.ClientID] = msg.Outbox
				r.sendTo(msg.ClientID, types.Updated(r.board))
				r.logger.Debug("client joined", zap.String("client", msg.ClientID), zap.Int("clients", len(r.clients)))

			case Leave:
				// The entry stays on the board; only the outbox goes.
				if cur, ok := r.clients[msg.ClientID]; ok && (msg.Outbox == nil || cur == msg.Outbox) {
					delete(r.clients, msg.ClientID)
				}

			case FromClient:
				r.handleClient(msg)

			case lookupDone:
				r.applyLookup(msg)

			case Tick:
				r.startRefresh()

			case refreshDone:
				r.applyRefresh(msg)

			case GetState:
				msg.Reply <- View{
					ID:          r.id,
					Version:     r.version,
					NumClients:  len(r.clients),
					Loaded:      r.loaded,
					Refreshing:  r.refreshing,
					Leaderboard: r.board.Clone(),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleClient(msg FromClient) {
	switch msg.Msg.Type {
	case types.TypeRegister:
		req := types.RegisterRequest{
			Name:     strings.TrimSpace(msg.Msg.Name),
			Location: strings.TrimSpace(msg.Msg.Location),
		}
		if err := validate.Struct(req); err != nil {
			r.logger.Debug("ignoring invalid register", zap.String("client", msg.ClientID), zap.Error(err))
			return
		}

		// Everyone hears about the registration before the lookup finishes.
		r.broadcast(types.RegisteredNotice(req.Name, msg.ClientID))
		r.startLookup(msg.ClientID, req)

	case types.TypeSup:
		r.sendTo(msg.ClientID, types.Updated(r.board))

	default:
		r.logger.Debug("ignoring message", zap.String("client", msg.ClientID), zap.String("type", msg.Msg.Type))
	}
}

func (r *Room) startLookup(clientID string, req types.RegisterRequest) {
	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.LookupTimeout)
		defer cancel()

		report, err := r.cfg.Lookup.Current(ctx, req.Location)
		r.deliver(lookupDone{clientID: clientID, name: req.Name, report: report, err: err})
	}()
}

func (r *Room) applyLookup(msg lookupDone) {
	if msg.err != nil {
		r.logger.Warn("lookup failed; registration dropped",
			zap.String("client", msg.clientID), zap.Error(msg.err))
		return
	}

	r.ensureLoaded()
	events, next, err := engine.Apply(r.board, engine.Command{
		Type: engine.CmdUpsert,
		ID:   msg.clientID,
		Entry: types.Entry{
			Name:     msg.name,
			Location: msg.report.Location,
			Current:  msg.report.Current,
		},
	})
	if err != nil {
		r.logger.Warn("registration rejected", zap.String("client", msg.clientID), zap.Error(err))
		return
	}

	r.commit(next)
	r.logger.Info("entry registered",
		zap.String("client", msg.clientID),
		zap.String("location", msg.report.Location.Name),
		zap.Bool("replaced", engine.ContainsEvent(events, engine.EvtEntryReplaced)),
	)
}

func (r *Room) startRefresh() {
	r.ensureLoaded()
	if len(r.board) == 0 {
		return
	}
	if r.refreshing {
		r.logger.Debug("refresh already running; tick skipped")
		return
	}
	r.refreshing = true

	targets := r.board.Clone()
	go func() {
		readings, err := r.refresh(targets)
		r.deliver(refreshDone{readings: readings, err: err})
	}()
}

// refresh looks every target up in parallel. Unless PartialRefresh is set the
// first failure cancels the rest and no readings are returned.
func (r *Room) refresh(targets types.Leaderboard) (map[string]engine.Reading, error) {
	var (
		mu       sync.Mutex
		readings = make(map[string]engine.Reading, len(targets))
	)

	g, ctx := errgroup.WithContext(r.ctx)
	for _, id := range engine.SortedIDs(targets) {
		id := id // per-iteration copy (go directive < 1.22)
		base := targets[id]
		location := base.Location.Name
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
			defer cancel()

			report, err := r.cfg.Lookup.Current(lctx, location)
			if err != nil {
				if r.cfg.PartialRefresh {
					r.logger.Warn("refresh lookup failed", zap.String("client", id), zap.Error(err))
					return nil
				}
				return fmt.Errorf("refresh %s (%s): %w", id, location, err)
			}

			mu.Lock()
			readings[id] = engine.Reading{Base: base, Current: report.Current}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *Room) applyRefresh(msg refreshDone) {
	r.refreshing = false

	if msg.err != nil {
		r.logger.Warn("refresh abandoned; leaderboard unchanged", zap.Error(msg.err))
		return
	}
	if len(msg.readings) == 0 {
		return
	}

	events, next, err := engine.Apply(r.board, engine.Command{Type: engine.CmdRefresh, Readings: msg.readings})
	if err != nil {
		r.logger.Warn("refresh rejected", zap.Error(err))
		return
	}

	refreshed := engine.CountEvents(events, engine.EvtEntryRefreshed)
	if refreshed == 0 {
		return
	}

	r.commit(next)
	r.logger.Info("leaderboard refreshed",
		zap.Int("refreshed", refreshed),
		zap.Int("skipped", engine.CountEvents(events, engine.EvtEntrySkipped)),
	)
}

// commit swaps in the new board, persists it and tells everyone.
func (r *Room) commit(next types.Leaderboard) {
	r.board = next
	r.version++
	r.persist()
	r.broadcast(types.Updated(r.board))
}

// ensureLoaded pulls the stored board into memory the first time it's needed.
// If the store can't be read the room keeps serving from memory and tries
// again on the next join or tick; anything registered meanwhile wins over the
// stored copy.
func (r *Room) ensureLoaded() {
	if r.loaded {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.StoreTimeout)
	defer cancel()

	stored, err := r.cfg.Store.Get(ctx, r.key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		stored = engine.NewEmptyLeaderboard()
	case err != nil:
		r.logger.Error("load leaderboard", zap.String("key", r.key), zap.Error(err))
		return
	}

	for id, e := range r.board {
		stored[id] = e
	}
	r.board = stored
	r.loaded = true
	r.persist()
}

func (r *Room) persist() {
	if !r.loaded {
		r.logger.Warn("store unavailable; leaderboard kept in memory only", zap.String("key", r.key))
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.StoreTimeout)
	defer cancel()

	if err := r.cfg.Store.Put(ctx, r.key, r.board); err != nil {
		r.logger.Error("persist leaderboard", zap.String("key", r.key), zap.Error(err))
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch) // Tell client no more frames
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) broadcast(msg types.ServerMessage) {
	for id := range r.clients {
		r.sendTo(id, msg)
	}
}

func (r *Room) sendTo(clientID string, msg types.ServerMessage) {
	ch, ok := r.clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
		//ok
	default:
		// Client is slow/full - drop them.
		r.logger.Warn("dropping slow client", zap.String("client", clientID))
		close(ch)
		delete(r.clients, clientID)
	}
}

func (r *Room) deliver(m Msg) {
	select {
	case r.inbox <- m:
	case <-r.ctx.Done():
	}
}

// Send queues m unless the room has shut down. It reports whether m was queued.
func (r *Room) Send(m Msg) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.inbox <- m:
		return true
	case <-r.done:
		return false
	}
}

// Expose the inbox so tests or the WS layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) ID() string { return r.id }

// Done is closed once the loop has exited.
func (r *Room) Done() <-chan struct{} { return r.done }
