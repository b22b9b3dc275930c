package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/weatherboard/internal/hub"
	"github.com/DoyleJ11/weatherboard/internal/room"
	"github.com/DoyleJ11/weatherboard/internal/store"
	"github.com/DoyleJ11/weatherboard/internal/weather"
	"github.com/DoyleJ11/weatherboard/pkg/types"
)

var townsville = weather.LookupFunc(func(ctx context.Context, location string) (types.Report, error) {
	if location != "10,20" {
		return types.Report{}, errors.New("unknown location")
	}
	return types.Report{
		Location: types.Location{Name: "Townsville", Country: "Nowhere", Lat: 10, Lon: 20},
		Current:  types.Current{TempC: 21, TempF: 69.8},
	}, nil
})

func newServer(t *testing.T, st store.Store) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(ctx, room.Config{Store: st, Lookup: townsville, Logger: zap.NewNop()})
	srv := httptest.NewServer(SetupRoutes(h, st, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	return data
}

func readMsg(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &msg))
	return msg
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	writeRaw(t, conn, data)
}

func writeRaw(t *testing.T, conn *websocket.Conn, data []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestEndToEnd_RegisterOverWebSocket(t *testing.T) {
	st := store.NewMemoryStore()
	srv := newServer(t, st)
	conn := dial(t, srv, "/rooms/r1/ws")

	assert.JSONEq(t, `{"type":"leaderboard.updated","leaderboard":{}}`, string(readFrame(t, conn)))

	writeJSON(t, conn, types.ClientMessage{Type: types.TypeRegister, Name: "Bob", Location: "10,20"})

	notice := readMsg(t, conn)
	assert.Equal(t, types.TypeLeaderboardRegistered, notice.Type)
	assert.Equal(t, "Bob", notice.Name)
	assert.NotEmpty(t, notice.SenderID)

	updated := readMsg(t, conn)
	require.Equal(t, types.TypeLeaderboardUpdated, updated.Type)
	board := updated.Board()
	require.Len(t, board, 1)

	entry, ok := board[notice.SenderID]
	require.True(t, ok)
	assert.Equal(t, "Bob", entry.Name)
	assert.Equal(t, "Townsville", entry.Location.Name)
	assert.Equal(t, 21.0, entry.Current.TempC)
}

func TestEndToEnd_BroadcastReachesOtherConnections(t *testing.T) {
	srv := newServer(t, store.NewMemoryStore())
	alice := dial(t, srv, "/rooms/r1/ws?id=alice")
	bob := dial(t, srv, "/rooms/r1/ws?id=bob")
	other := dial(t, srv, "/rooms/r2/ws")
	_ = readMsg(t, alice)
	_ = readMsg(t, bob)
	_ = readMsg(t, other)

	writeJSON(t, bob, types.ClientMessage{Type: types.TypeRegister, Name: "Bob", Location: "10,20"})

	notice := readMsg(t, alice)
	assert.Equal(t, types.TypeLeaderboardRegistered, notice.Type)
	assert.Equal(t, "bob", notice.SenderID)

	updated := readMsg(t, alice)
	assert.Contains(t, updated.Board(), "bob")

	// r2 is a different room and hears nothing; its snapshot stays empty.
	writeJSON(t, other, types.ClientMessage{Type: types.TypeSup})
	assert.Empty(t, readMsg(t, other).Board())
}

func TestEndToEnd_MalformedFramesIgnored(t *testing.T) {
	srv := newServer(t, store.NewMemoryStore())
	conn := dial(t, srv, "/rooms/r1/ws")
	_ = readMsg(t, conn)

	writeRaw(t, conn, []byte("not json"))
	writeJSON(t, conn, map[string]string{"type": "dance"})
	writeJSON(t, conn, types.ClientMessage{Type: types.TypeSup})

	// The first thing back is the sup reply.
	msg := readMsg(t, conn)
	assert.Equal(t, types.TypeLeaderboardUpdated, msg.Type)
}

func TestEndToEnd_StableIDKeepsEntry(t *testing.T) {
	srv := newServer(t, store.NewMemoryStore())
	first := dial(t, srv, "/rooms/r1/ws?id=stable")
	_ = readMsg(t, first)
	writeJSON(t, first, types.ClientMessage{Type: types.TypeRegister, Name: "Bob", Location: "10,20"})
	_ = readMsg(t, first)
	_ = readMsg(t, first)
	first.Close(websocket.StatusNormalClosure, "")

	second := dial(t, srv, "/rooms/r1/ws?id=stable")
	board := readMsg(t, second).Board()
	require.Contains(t, board, "stable")
	assert.Equal(t, "Bob", board["stable"].Name)
}

func TestLeaderboards_AdminListing(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Put(context.Background(), store.LeaderboardKey("r1"), types.Leaderboard{
		"c1": {Name: "Bob", Location: types.Location{Name: "Townsville"}, Current: types.Current{TempC: 21}},
	}))
	require.NoError(t, st.Put(context.Background(), store.LeaderboardKey("r2"), types.Leaderboard{}))
	srv := newServer(t, st)

	resp, err := http.Get(srv.URL + "/rooms/r1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]types.Leaderboard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, 21.0, got["leaderboard:r1"]["c1"].Current.TempC)
	assert.Empty(t, got["leaderboard:r2"])
}

func TestLeaderboards_OtherMethods(t *testing.T) {
	srv := newServer(t, store.NewMemoryStore())

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		req, err := http.NewRequest(method, srv.URL+"/rooms/r1", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
	}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestRoomState_ResidentRoomsOnly(t *testing.T) {
	srv := newServer(t, store.NewMemoryStore())

	var listed struct{ Rooms []string }
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/rooms", &listed))
	assert.Empty(t, listed.Rooms)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/rooms/r1/state", nil))

	conn := dial(t, srv, "/rooms/r1/ws?id=bob")
	_ = readMsg(t, conn)
	writeJSON(t, conn, types.ClientMessage{Type: types.TypeRegister, Name: "Bob", Location: "10,20"})
	_ = readMsg(t, conn)
	_ = readMsg(t, conn)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/rooms", &listed))
	assert.Equal(t, []string{"r1"}, listed.Rooms)

	var view room.View
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/rooms/r1/state", &view))
	assert.Equal(t, "r1", view.ID)
	assert.Equal(t, 1, view.NumClients)
	assert.True(t, view.Loaded)
	assert.Equal(t, "Bob", view.Leaderboard["bob"].Name)

	// Asking about a room does not create it.
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/rooms/r9/state", nil))
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/rooms", &listed))
	assert.Equal(t, []string{"r1"}, listed.Rooms)
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, store.NewMemoryStore())
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
