package types

// Client -> Server
// register:
//   name: string
//   location: string  // "lat,lon" or a place name
//
// sup: {}  // asks for the current snapshot

// Server -> Client
// leaderboard.updated:
//   leaderboard: { [connectionId]: { name, location, current } }
//
// leaderboard.registered:
//   name: string
//   senderId: string

const (
	TypeRegister = "register"
	TypeSup      = "sup"

	TypeLeaderboardUpdated    = "leaderboard.updated"
	TypeLeaderboardRegistered = "leaderboard.registered"
)

type ClientMessage struct {
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
}

// RegisterRequest is the validated form of a register frame. Any non-blank
// name and location are accepted; the client enforces nothing stricter.
type RegisterRequest struct {
	Name     string `validate:"required"`
	Location string `validate:"required"`
}

type ServerMessage struct {
	Type        string       `json:"type"` // "leaderboard.updated" | "leaderboard.registered"
	Leaderboard *Leaderboard `json:"leaderboard,omitempty"`
	Name        string       `json:"name,omitempty"`
	SenderID    string       `json:"senderId,omitempty"`
}

// Updated wraps a copy of lb so later mutations never reach a queued frame.
func Updated(lb Leaderboard) ServerMessage {
	snap := lb.Clone()
	return ServerMessage{Type: TypeLeaderboardUpdated, Leaderboard: &snap}
}

// Board returns the carried leaderboard, or an empty one.
func (m ServerMessage) Board() Leaderboard {
	if m.Leaderboard == nil {
		return Leaderboard{}
	}
	return *m.Leaderboard
}

func RegisteredNotice(name, senderID string) ServerMessage {
	return ServerMessage{Type: TypeLeaderboardRegistered, Name: name, SenderID: senderID}
}
