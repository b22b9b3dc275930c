package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/weatherboard/pkg/types"
)

func entry(name, place string, tempC float64) types.Entry {
	return types.Entry{
		Name:     name,
		Location: types.Location{Name: place},
		Current:  types.Current{TempC: tempC},
	}
}

func TestUpsertValidation(t *testing.T) {
	cases := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{
			name: "valid entry",
			cmd:  Command{Type: CmdUpsert, ID: "c1", Entry: entry("Bob", "Townsville", 21)},
		},
		{
			name:    "missing id",
			cmd:     Command{Type: CmdUpsert, Entry: entry("Bob", "Townsville", 21)},
			wantErr: true,
		},
		{
			name:    "blank name",
			cmd:     Command{Type: CmdUpsert, ID: "c1", Entry: entry("  ", "Townsville", 21)},
			wantErr: true,
		},
		{
			name:    "no location name",
			cmd:     Command{Type: CmdUpsert, ID: "c1", Entry: entry("Bob", "", 21)},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Apply(NewEmptyLeaderboard(), tc.cmd)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidEntry)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestUpsert_AddsThenReplaces(t *testing.T) {
	board := NewEmptyLeaderboard()

	events, board, err := Apply(board, Command{Type: CmdUpsert, ID: "c1", Entry: entry("Bob", "Townsville", 21)})
	require.NoError(t, err)
	assert.True(t, ContainsEvent(events, EvtEntryAdded))

	events, board, err = Apply(board, Command{Type: CmdUpsert, ID: "c1", Entry: entry("Bobby", "Springfield", 30)})
	require.NoError(t, err)
	assert.True(t, ContainsEvent(events, EvtEntryReplaced))

	require.Len(t, board, 1)
	assert.Equal(t, "Bobby", board["c1"].Name)
	assert.Equal(t, 30.0, board["c1"].Current.TempC)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	board := types.Leaderboard{"c1": entry("Bob", "Townsville", 21)}

	_, next, err := Apply(board, Command{Type: CmdUpsert, ID: "c2", Entry: entry("Alice", "Shelbyville", 18)})
	require.NoError(t, err)

	assert.Len(t, board, 1)
	assert.Len(t, next, 2)
}

func TestRefresh_ReplacesOnlyCurrent(t *testing.T) {
	board := types.Leaderboard{
		"c1": entry("Bob", "Townsville", 21),
		"c2": entry("Alice", "Shelbyville", 18),
	}

	cmd := Command{Type: CmdRefresh, Readings: map[string]Reading{
		"c1": {Base: board["c1"], Current: types.Current{TempC: 25}},
		"c2": {Base: board["c2"], Current: types.Current{TempC: 12}},
	}}

	events, next, err := Apply(board, cmd)
	require.NoError(t, err)
	assert.Equal(t, 2, CountEvents(events, EvtEntryRefreshed))

	assert.Equal(t, "Bob", next["c1"].Name)
	assert.Equal(t, "Townsville", next["c1"].Location.Name)
	assert.Equal(t, 25.0, next["c1"].Current.TempC)
	assert.Equal(t, 12.0, next["c2"].Current.TempC)
}

func TestRefresh_SkipsStaleReadings(t *testing.T) {
	board := types.Leaderboard{
		"c1": entry("Bob", "Springfield", 30), // re-registered after the refresh started
	}

	cmd := Command{Type: CmdRefresh, Readings: map[string]Reading{
		"c1":   {Base: entry("Bob", "Townsville", 21), Current: types.Current{TempC: 5}},
		"gone": {Base: entry("Ghost", "Nowhere", 1), Current: types.Current{TempC: 5}},
	}}

	events, next, err := Apply(board, cmd)
	require.NoError(t, err)
	assert.Equal(t, 2, CountEvents(events, EvtEntrySkipped))
	assert.Equal(t, board, next)
}

func TestRefresh_SkipsReadingAfterSamePlaceReRegister(t *testing.T) {
	before := entry("Bob", "Townsville", 21)
	// Same place, new name and a fresher lookup landed mid-tick.
	board := types.Leaderboard{"c1": entry("Robert", "Townsville", 23)}

	cmd := Command{Type: CmdRefresh, Readings: map[string]Reading{
		"c1": {Base: before, Current: types.Current{TempC: 5}},
	}}

	events, next, err := Apply(board, cmd)
	require.NoError(t, err)
	assert.Equal(t, []Event{{Type: EvtEntrySkipped, ID: "c1"}}, events)
	assert.Equal(t, "Robert", next["c1"].Name)
	assert.Equal(t, 23.0, next["c1"].Current.TempC)
}

func TestApply_RejectsUnknownCommands(t *testing.T) {
	_, _, err := Apply(NewEmptyLeaderboard(), Command{Type: "Nope"})
	if err == nil || !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("want ErrUnsupportedCommand, got %v", err)
	}

	_, _, err = Apply(NewEmptyLeaderboard(), Command{Type: CmdRefresh})
	require.ErrorIs(t, err, ErrEmptyRefresh)
}

func TestSortedIDs(t *testing.T) {
	board := types.Leaderboard{
		"c2": entry("Alice", "Shelbyville", 18),
		"c1": entry("Bob", "Townsville", 21),
	}
	assert.Equal(t, []string{"c1", "c2"}, SortedIDs(board))
}
