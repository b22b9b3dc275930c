package engine

import (
	"errors"
	"strings"

	"github.com/DoyleJ11/weatherboard/pkg/types"
)

var ErrInvalidEntry = errors.New("invalid entry")
var ErrEmptyRefresh = errors.New("empty refresh")
var ErrUnsupportedCommand = errors.New("unsupported command")

type CommandType string

const (
	CmdUpsert  CommandType = "Upsert"
	CmdRefresh CommandType = "Refresh"
)

/*
	CmdUpsert  -> EvtEntryAdded | EvtEntryReplaced
	CmdRefresh -> EvtEntryRefreshed per merged id, EvtEntrySkipped per stale id
*/

// Reading is one refreshed lookup. Base is the entry as it stood when the
// lookup was made; any re-registration since, even at the same place, makes
// the reading stale.
type Reading struct {
	Base    types.Entry
	Current types.Current
}

type Command struct {
	Type CommandType

	// Upsert
	ID    string
	Entry types.Entry

	// Refresh
	Readings map[string]Reading
}

type EventType string

const (
	EvtEntryAdded     EventType = "EntryAdded"
	EvtEntryReplaced  EventType = "EntryReplaced"
	EvtEntryRefreshed EventType = "EntryRefreshed"
	EvtEntrySkipped   EventType = "EntrySkipped"
)

type Event struct {
	Type EventType
	ID   string
}

// Apply never mutates board; the returned leaderboard is a fresh copy whenever
// the command succeeds.
func Apply(board types.Leaderboard, cmd Command) ([]Event, types.Leaderboard, error) {
	switch cmd.Type {
	case CmdUpsert:
		if cmd.ID == "" || strings.TrimSpace(cmd.Entry.Name) == "" || cmd.Entry.Location.Name == "" {
			return nil, board, ErrInvalidEntry
		}

		next := board.Clone()
		evt := EvtEntryAdded
		if _, ok := board[cmd.ID]; ok {
			evt = EvtEntryReplaced
		}
		next[cmd.ID] = cmd.Entry
		return []Event{{Type: evt, ID: cmd.ID}}, next, nil

	case CmdRefresh:
		if len(cmd.Readings) == 0 {
			return nil, board, ErrEmptyRefresh
		}

		next := board.Clone()
		events := make([]Event, 0, len(cmd.Readings))
		for _, id := range SortedIDs(cmd.Readings) {
			r := cmd.Readings[id]
			entry, ok := next[id]
			// Entry left or was re-registered while the lookup ran.
			if !ok || entry != r.Base {
				events = append(events, Event{Type: EvtEntrySkipped, ID: id})
				continue
			}
			entry.Current = r.Current
			next[id] = entry
			events = append(events, Event{Type: EvtEntryRefreshed, ID: id})
		}
		return events, next, nil

	default:
		return nil, board, ErrUnsupportedCommand
	}
}
