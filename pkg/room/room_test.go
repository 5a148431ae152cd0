package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lukemadsen/sketchwire/pkg/conn"
	"github.com/lukemadsen/sketchwire/pkg/protocol"
)

// fakeConn is the server double at the connection boundary: scripted
// request results, recorded sends, and test-driven broadcasts and status
// transitions.
type fakeConn struct {
	mu           sync.Mutex
	createResult protocol.CreateRoomResult
	joinResult   protocol.JoinRoomResult
	joinCalls    int
	sent         []string
	handlers     map[string][]func(json.RawMessage)
	statusSubs   []func(conn.Status)
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string][]func(json.RawMessage))}
}

func (f *fakeConn) Request(_ context.Context, msgType string, _ any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch msgType {
	case protocol.TypeRoomCreate:
		return json.Marshal(f.createResult)
	case protocol.TypeRoomJoin:
		f.joinCalls++
		return json.Marshal(f.joinResult)
	default:
		return nil, conn.ErrNotConnected
	}
}

func (f *fakeConn) Send(msgType string, _ any) error {
	f.mu.Lock()
	f.sent = append(f.sent, msgType)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) On(event string, fn func(json.RawMessage)) func() {
	f.mu.Lock()
	f.handlers[event] = append(f.handlers[event], fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeConn) OnStatus(fn func(conn.Status)) func() {
	f.mu.Lock()
	f.statusSubs = append(f.statusSubs, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeConn) emit(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.mu.Lock()
	handlers := append(([]func(json.RawMessage))(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(raw)
	}
}

func (f *fakeConn) setStatus(s conn.Status) {
	f.mu.Lock()
	subs := append(([]func(conn.Status))(nil), f.statusSubs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (f *fakeConn) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joinCalls
}

func (f *fakeConn) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func roomInfo(code, hostID string, players ...protocol.Player) *protocol.RoomInfo {
	return &protocol.RoomInfo{
		RoomCode: code,
		GameID:   "draw-guess",
		HostID:   hostID,
		Status:   protocol.RoomLobby,
		Players:  players,
		Settings: map[string]any{"minPlayers": float64(2), "maxPlayers": float64(8)},
	}
}

func player(id string, ready bool) protocol.Player {
	return protocol.Player{ID: id, Name: "player-" + id, IsReady: ready, IsConnected: true}
}

func TestCreateRoom_SeedsStateAndHost(t *testing.T) {
	fc := newFakeConn()
	fc.createResult = protocol.CreateRoomResult{
		Success:  true,
		RoomCode: "ABC123",
		Room:     roomInfo("ABC123", "me", player("me", false)),
	}
	c := NewCoordinator(fc, Identity{ID: "me", Name: "mel"}, nil)
	defer c.Close()

	code, ok := c.CreateRoom(context.Background(), "draw-guess", nil)
	require.True(t, ok)
	require.Equal(t, "ABC123", code)

	snap, inRoom := c.Snapshot()
	require.True(t, inRoom)
	require.True(t, snap.IsHost)
	require.Equal(t, protocol.RoomLobby, snap.Status)
}

func TestJoinRoom_FailureDoesNotMutateState(t *testing.T) {
	fc := newFakeConn()
	fc.joinResult = protocol.JoinRoomResult{Success: true, Room: roomInfo("ABC123", "h1", player("h1", false), player("me", false))}
	c := NewCoordinator(fc, Identity{ID: "me", Name: "mel"}, nil)
	defer c.Close()

	require.True(t, c.JoinRoom(context.Background(), "ABC123"))
	snap, _ := c.Snapshot()
	require.False(t, snap.IsHost)

	fc.mu.Lock()
	fc.joinResult = protocol.JoinRoomResult{Success: false, Error: protocol.ErrCodeRoomFull}
	fc.mu.Unlock()

	require.False(t, c.JoinRoom(context.Background(), "ZZZZZZ"))
	after, inRoom := c.Snapshot()
	require.True(t, inRoom, "failed join must not tear down the existing room")
	require.Equal(t, snap.Code, after.Code)
}

func TestPlayerList_NeverContainsDuplicateIDs(t *testing.T) {
	fc := newFakeConn()
	fc.joinResult = protocol.JoinRoomResult{Success: true, Room: roomInfo("ABC123", "h1", player("h1", false))}
	c := NewCoordinator(fc, Identity{ID: "me", Name: "mel"}, nil)
	defer c.Close()
	require.True(t, c.JoinRoom(context.Background(), "ABC123"))

	joined := protocol.PlayerJoinedEvent{Player: player("p2", false), PlayerCount: 2}
	fc.emit(t, protocol.EventPlayerJoined, joined)
	fc.emit(t, protocol.EventPlayerJoined, joined) // duplicate broadcast
	fc.emit(t, protocol.EventPlayerJoined, joined)

	snap, _ := c.Snapshot()
	seen := map[string]int{}
	for _, p := range snap.Players {
		seen[p.ID]++
	}
	for id, n := range seen {
		require.Equal(t, 1, n, "player %s duplicated", id)
	}
}

func TestReconnect_ReissuesJoinExactlyOnce(t *testing.T) {
	fc := newFakeConn()
	fc.joinResult = protocol.JoinRoomResult{Success: true, Room: roomInfo("ABC123", "h1", player("h1", false), player("me", false))}
	c := NewCoordinator(fc, Identity{ID: "me", Name: "mel"}, nil)
	defer c.Close()

	require.True(t, c.JoinRoom(context.Background(), "ABC123"))
	require.Equal(t, 1, fc.joinCount())

	fc.setStatus(conn.StatusDisconnected)
	fc.setStatus(conn.StatusConnected)

	require.Eventually(t, func() bool { return fc.joinCount() == 2 },
		time.Second, 10*time.Millisecond, "one re-join per reconnection")

	// No further joins without another transition.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 2, fc.joinCount())
}

func TestReconnect_NoRejoinAfterRoomClosed(t *testing.T) {
	fc := newFakeConn()
	fc.joinResult = protocol.JoinRoomResult{Success: true, Room: roomInfo("ABC123", "h1", player("me", false))}
	c := NewCoordinator(fc, Identity{ID: "me", Name: "mel"}, nil)
	defer c.Close()
	require.True(t, c.JoinRoom(context.Background(), "ABC123"))

	fc.emit(t, protocol.EventRoomClosed, protocol.RoomClosedEvent{Reason: "host left"})
	_, inRoom := c.Snapshot()
	require.False(t, inRoom)

	fc.setStatus(conn.StatusConnected)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, fc.joinCount())
}

func TestCanStart_ReadyCountWindow(t *testing.T) {
	fc := newFakeConn()
	fc.joinResult = protocol.JoinRoomResult{Success: true, Room: roomInfo("ABC123", "h1", player("h1", false), player("me", false))}
	c := NewCoordinator(fc, Identity{ID: "me", Name: "mel"}, nil)
	defer c.Close()
	require.True(t, c.JoinRoom(context.Background(), "ABC123"))
	require.False(t, c.CanStart(), "nobody ready yet")

	fc.emit(t, protocol.EventPlayerReady, protocol.PlayerReadyEvent{PlayerID: "h1", IsReady: true})
	require.False(t, c.CanStart(), "one ready is below minPlayers")

	fc.emit(t, protocol.EventPlayerReady, protocol.PlayerReadyEvent{PlayerID: "me", IsReady: true})
	require.True(t, c.CanStart())

	fc.emit(t, protocol.EventPlayerReady, protocol.PlayerReadyEvent{PlayerID: "h1", IsReady: false})
	require.False(t, c.CanStart())
}

func TestHostReassignment(t *testing.T) {
	fc := newFakeConn()
	fc.joinResult = protocol.JoinRoomResult{Success: true, Room: roomInfo("ABC123", "h1", player("h1", false), player("me", false))}
	c := NewCoordinator(fc, Identity{ID: "me", Name: "mel"}, nil)
	defer c.Close()
	require.True(t, c.JoinRoom(context.Background(), "ABC123"))

	require.ErrorIs(t, c.StartGame(), ErrNotHost)

	fc.emit(t, protocol.EventPlayerLeft, protocol.PlayerLeftEvent{PlayerID: "h1", PlayerCount: 1})
	fc.emit(t, protocol.EventHostChanged, protocol.HostChangedEvent{HostID: "me"})

	snap, _ := c.Snapshot()
	require.True(t, snap.IsHost)
	require.Len(t, snap.Players, 1)
	require.NoError(t, c.StartGame())
}

func TestLeaveRoom_Idempotent(t *testing.T) {
	fc := newFakeConn()
	fc.joinResult = protocol.JoinRoomResult{Success: true, Room: roomInfo("ABC123", "h1", player("me", false))}
	c := NewCoordinator(fc, Identity{ID: "me", Name: "mel"}, nil)
	defer c.Close()
	require.True(t, c.JoinRoom(context.Background(), "ABC123"))

	c.LeaveRoom()
	c.LeaveRoom()

	leaves := 0
	for _, msgType := range fc.sentTypes() {
		if msgType == protocol.TypeRoomLeave {
			leaves++
		}
	}
	require.Equal(t, 1, leaves)
	_, inRoom := c.Snapshot()
	require.False(t, inRoom)
}

func TestGameLifecycleStatusTransitions(t *testing.T) {
	fc := newFakeConn()
	fc.joinResult = protocol.JoinRoomResult{Success: true, Room: roomInfo("ABC123", "me", player("me", true), player("p2", true))}
	c := NewCoordinator(fc, Identity{ID: "me", Name: "mel"}, nil)
	defer c.Close()
	require.True(t, c.JoinRoom(context.Background(), "ABC123"))

	fc.emit(t, protocol.EventGameStarting, protocol.GameStartingEvent{Countdown: 3})
	snap, _ := c.Snapshot()
	require.Equal(t, protocol.RoomStarting, snap.Status)
	require.Equal(t, 3, snap.Countdown)

	fc.emit(t, protocol.EventGameStarted, protocol.GameStartedEvent{})
	snap, _ = c.Snapshot()
	require.Equal(t, protocol.RoomActive, snap.Status)

	fc.emit(t, protocol.EventGameEnded, protocol.GameEndedEvent{
		WinnerID:    "p2",
		FinalScores: map[string]int{"me": 100, "p2": 400},
	})
	snap, _ = c.Snapshot()
	require.Equal(t, protocol.RoomFinished, snap.Status)
	for _, p := range snap.Players {
		if p.ID == "p2" {
			require.Equal(t, 400, p.Score)
		}
	}
}
