package onboarding

import (
	"strings"

	"github.com/DoyleJ11/weatherboard/pkg/types"
)

type State string

const (
	Connecting           State = "connecting"
	CheckingRegistration State = "connected.checkingRegistration"
	GetName              State = "connected.getName"
	GetLocation          State = "connected.getLocation"
	NoPermission         State = "connected.noPermission"
	Leaderboard          State = "connected.leaderboard"
)

const (
	TagGetName      = "getName"
	TagNoPermission = "noPermission"
)

func (s State) Connected() bool { return strings.HasPrefix(string(s), "connected.") }

func (s State) HasTag(tag string) bool {
	switch s {
	case GetName:
		return tag == TagGetName
	case NoPermission:
		return tag == TagNoPermission
	}
	return false
}

// Context is what the client knows about itself and the room.
type Context struct {
	ClientID    string
	Name        string
	Location    string
	Leaderboard types.Leaderboard
	Registered  bool

	// LastJoined is the name from the most recent registration notice.
	LastJoined string
}

// ---- Events ----

type Event interface{ isEvent() }

// Opened means the transport is connected.
type Opened struct{}

type NameGiven struct{ Name string }

type LocationResolved struct{ Coordinates string }

type LocationFailed struct{ Err error }

type LeaderboardUpdated struct{ Leaderboard types.Leaderboard }

type Registered struct {
	Name     string
	SenderID string
}

func (Opened) isEvent()             {}
func (NameGiven) isEvent()          {}
func (LocationResolved) isEvent()   {}
func (LocationFailed) isEvent()     {}
func (LeaderboardUpdated) isEvent() {}
func (Registered) isEvent()         {}

// ---- Effects ----

type Effect interface{ isEffect() }

// SendCommand asks the transport to deliver Msg to the room.
type SendCommand struct{ Msg types.ClientMessage }

// RequestLocation starts location acquisition. Its outcome comes back as
// LocationResolved or LocationFailed.
type RequestLocation struct{}

// PersistRegistered saves the registered flag for future sessions.
type PersistRegistered struct{}

func (SendCommand) isEffect()       {}
func (RequestLocation) isEffect()   {}
func (PersistRegistered) isEffect() {}

// FromServer turns a room frame into an event. Unknown frames report false.
func FromServer(msg types.ServerMessage) (Event, bool) {
	switch msg.Type {
	case types.TypeLeaderboardUpdated:
		return LeaderboardUpdated{Leaderboard: msg.Board()}, true
	case types.TypeLeaderboardRegistered:
		return Registered{Name: msg.Name, SenderID: msg.SenderID}, true
	default:
		return nil, false
	}
}

// Transition is the whole onboarding flow. It never mutates its inputs.
// Events that don't apply to state leave everything unchanged.
func Transition(state State, ctx Context, ev Event) (State, Context, []Effect) {
	ctx.Leaderboard = ctx.Leaderboard.Clone()

	// Room pushes are accepted in every connected state.
	if state.Connected() {
		switch e := ev.(type) {
		case LeaderboardUpdated:
			ctx.Leaderboard = e.Leaderboard.Clone()
			return state, ctx, nil
		case Registered:
			ctx.LastJoined = e.Name
			return state, ctx, nil
		}
	}

	switch state {
	case Connecting:
		if _, ok := ev.(Opened); ok {
			return enter(CheckingRegistration, ctx)
		}

	case GetName:
		if e, ok := ev.(NameGiven); ok {
			name := strings.TrimSpace(e.Name)
			if name == "" {
				return state, ctx, nil
			}
			ctx.Name = name
			return enter(GetLocation, ctx)
		}

	case GetLocation:
		switch e := ev.(type) {
		case LocationResolved:
			coords := strings.TrimSpace(e.Coordinates)
			if coords == "" {
				return enter(NoPermission, ctx)
			}
			ctx.Location = coords
			next, ctx, effects := enter(Leaderboard, ctx)
			register := SendCommand{Msg: types.ClientMessage{Type: types.TypeRegister, Name: ctx.Name, Location: ctx.Location}}
			return next, ctx, append([]Effect{register}, effects...)

		case LocationFailed:
			return enter(NoPermission, ctx)
		}
	}

	return state, ctx, nil
}

// enter runs a state's entry actions and resolves transient states.
func enter(state State, ctx Context) (State, Context, []Effect) {
	switch state {
	case CheckingRegistration:
		if ctx.Registered {
			return enter(Leaderboard, ctx)
		}
		return enter(GetName, ctx)

	case GetLocation:
		return state, ctx, []Effect{RequestLocation{}}

	case Leaderboard:
		ctx.Registered = true
		return state, ctx, []Effect{PersistRegistered{}}
	}
	return state, ctx, nil
}

// Snapshot is an observer's view of the machine at one instant.
type Snapshot struct {
	State   State
	Context Context
}

func (s Snapshot) HasTag(tag string) bool { return s.State.HasTag(tag) }

// Pending reports whether our own entry should show as loading: we have a
// name but the room hasn't published an entry for us yet.
func (s Snapshot) Pending() bool {
	if s.Context.Name == "" {
		return false
	}
	_, ok := s.Context.Leaderboard[s.Context.ClientID]
	return !ok
}
