package store

import (
	"context"
	"errors"
	"strings"

	"github.com/DoyleJ11/weatherboard/pkg/types"
)

// KeyPrefix namespaces leaderboard records in the store.
const KeyPrefix = "leaderboard:"

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = errors.New("no leaderboard for key")
)

// Store is the persistence contract rooms depend on. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (types.Leaderboard, error)
	Put(ctx context.Context, key string, lb types.Leaderboard) error
	List(ctx context.Context, prefix string) (map[string]types.Leaderboard, error)
}

func LeaderboardKey(roomID string) string {
	return KeyPrefix + roomID
}

// RoomID reverses LeaderboardKey.
func RoomID(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
