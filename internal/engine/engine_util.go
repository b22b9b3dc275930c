package engine

import (
	"slices"

	"github.com/DoyleJ11/weatherboard/pkg/types"
)

func NewEmptyLeaderboard() types.Leaderboard {
	return types.Leaderboard{}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func CountEvents(events []Event, eventType EventType) int {
	n := 0
	for _, event := range events {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

func SortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
