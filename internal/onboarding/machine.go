package onboarding

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/weatherboard/pkg/types"
)

// Sender delivers commands to the room.
type Sender interface {
	Send(ctx context.Context, msg types.ClientMessage) error
}

// Locator acquires "lat,lon" coordinates. It may block on the user for as long
// as ctx allows.
type Locator interface {
	Locate(ctx context.Context) (string, error)
}

// FlagStore remembers that this client already registered.
type FlagStore interface {
	Registered() bool
	SetRegistered() error
}

var ErrNoLocator = errors.New("no way to find a location")

type Config struct {
	ClientID string
	Sender   Sender
	Locator  Locator
	Flags    FlagStore
	Logger   *zap.Logger
}

// Machine runs Transition one event at a time and carries out its effects.
type Machine struct {
	inbox chan Event
	cfg   Config
	log   *zap.Logger

	mu       sync.Mutex
	snap     Snapshot
	watchers []chan Snapshot

	done chan struct{}
}

func NewMachine(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Machine{
		inbox: make(chan Event, 32),
		cfg:   cfg,
		log:   cfg.Logger.Named("onboarding").With(zap.String("client", cfg.ClientID)),
		snap: Snapshot{
			State: Connecting,
			Context: Context{
				ClientID:    cfg.ClientID,
				Leaderboard: types.Leaderboard{},
				Registered:  cfg.Flags != nil && cfg.Flags.Registered(),
			},
		},
		done: make(chan struct{}),
	}
}

// Send queues ev. It reports false once the machine has stopped.
func (m *Machine) Send(ev Event) bool {
	select {
	case <-m.done:
		return false
	default:
	}

	select {
	case m.inbox <- ev:
		return true
	case <-m.done:
		return false
	}
}

// Subscribe returns a channel of snapshots, starting with the current one.
// Snapshots are skipped for a subscriber whose buffer is full. The channel is
// closed when Run returns.
func (m *Machine) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 32)

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		close(ch)
		return ch
	default:
	}
	ch <- m.snap
	m.watchers = append(m.watchers, ch)
	return ch
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Done is closed once Run has returned.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Run processes events until ctx is cancelled. A pending location request is
// abandoned on the way out.
func (m *Machine) Run(ctx context.Context) error {
	var (
		taskCancel context.CancelFunc = func() {}
		tasks      sync.WaitGroup
	)
	defer func() {
		taskCancel()
		tasks.Wait()

		m.mu.Lock()
		close(m.done)
		for _, ch := range m.watchers {
			close(ch)
		}
		m.watchers = nil
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-m.inbox:
			prev := m.Snapshot()
			state, next, effects := Transition(prev.State, prev.Context, ev)
			if state != prev.State {
				m.log.Debug("transition", zap.String("from", string(prev.State)), zap.String("to", string(state)))
			}
			for _, eff := range effects {
				switch e := eff.(type) {
				case SendCommand:
					if m.cfg.Sender == nil {
						continue
					}
					if err := m.cfg.Sender.Send(ctx, e.Msg); err != nil {
						// Not retried; our entry just never appears.
						m.log.Warn("send failed", zap.String("type", e.Msg.Type), zap.Error(err))
					}

				case RequestLocation:
					taskCancel()
					var taskCtx context.Context
					taskCtx, taskCancel = context.WithCancel(ctx)
					tasks.Add(1)
					go func() {
						defer tasks.Done()
						m.locate(taskCtx)
					}()

				case PersistRegistered:
					if m.cfg.Flags == nil {
						continue
					}
					if err := m.cfg.Flags.SetRegistered(); err != nil {
						m.log.Warn("persist registered flag", zap.Error(err))
					}
				}
			}

			// Observers see a state only after its effects have run.
			m.publish(Snapshot{State: state, Context: next})
		}
	}
}

func (m *Machine) locate(ctx context.Context) {
	var ev Event
	if m.cfg.Locator == nil {
		ev = LocationFailed{Err: ErrNoLocator}
	} else if coords, err := m.cfg.Locator.Locate(ctx); err != nil {
		ev = LocationFailed{Err: err}
	} else {
		ev = LocationResolved{Coordinates: coords}
	}

	if ctx.Err() != nil {
		return // session over
	}
	select {
	case m.inbox <- ev:
	case <-ctx.Done():
	}
}

func (m *Machine) publish(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap = s
	for _, ch := range m.watchers {
		select {
		case ch <- s:
		default:
			m.log.Debug("subscriber behind; snapshot skipped")
		}
	}
}
