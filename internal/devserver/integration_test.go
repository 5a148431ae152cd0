package devserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lukemadsen/sketchwire/pkg/conn"
	"github.com/lukemadsen/sketchwire/pkg/game"
	"github.com/lukemadsen/sketchwire/pkg/protocol"
	"github.com/lukemadsen/sketchwire/pkg/room"
	"github.com/lukemadsen/sketchwire/pkg/skribbl"
)

type e2eClient struct {
	mgr  *conn.Manager
	coor *room.Coordinator
	mach *skribbl.Machine
}

func dialClient(t *testing.T, wsURL, session, name string) *e2eClient {
	t.Helper()
	mgr := conn.NewManager(conn.Config{URL: wsURL, SessionID: session, Name: name}, nil)
	require.NoError(t, mgr.Connect(context.Background()))
	t.Cleanup(mgr.Disconnect)

	coor := room.NewCoordinator(mgr, room.Identity{ID: session, Name: name}, nil)
	t.Cleanup(coor.Close)
	mach := skribbl.NewMachine(game.NewChannel(mgr), session, nil)
	t.Cleanup(mach.Close)
	return &e2eClient{mgr: mgr, coor: coor, mach: mach}
}

// TestEndToEnd_LobbyAndTurnSmoke runs the full client stack against the dev
// server over a real websocket: create, join, ready up, start, pick a word,
// draw, and guess it. Long phase timers are bypassed with injected ticks.
func TestEndToEnd_LobbyAndTurnSmoke(t *testing.T) {
	hub := NewHub(context.Background(), zap.NewNop())
	t.Cleanup(hub.Shutdown)
	srv := httptest.NewServer(SetupRoutes(hub, zap.NewNop()))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	drawer := dialClient(t, wsURL, "p1", "pat")
	guesser := dialClient(t, wsURL, "p2", "quinn")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, ok := drawer.coor.CreateRoom(ctx, skribbl.GameID, map[string]any{
		"rounds":   1,
		"drawTime": 60,
		"pickTime": 30,
	})
	require.True(t, ok)
	require.True(t, guesser.coor.JoinRoom(ctx, code))

	// The creator hears about the second player through the broadcast.
	require.Eventually(t, func() bool {
		snap, inRoom := drawer.coor.Snapshot()
		return inRoom && len(snap.Players) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, drawer.coor.SetReady(true))
	require.NoError(t, guesser.coor.SetReady(true))
	require.Eventually(t, func() bool { return drawer.coor.CanStart() && guesser.coor.CanStart() },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, drawer.coor.StartGame())

	actor := hub.GetRoom(code)
	require.NotNil(t, actor)
	require.Eventually(t, func() bool { return view(t, actor).Status == protocol.RoomStarting },
		2*time.Second, 10*time.Millisecond)

	tick(actor, startCountdownSec)
	require.Eventually(t, func() bool {
		snap, _ := drawer.coor.Snapshot()
		return snap.Status == protocol.RoomActive
	}, 2*time.Second, 10*time.Millisecond)

	tick(actor, roundStartSec)
	require.Eventually(t, func() bool {
		s := drawer.mach.State()
		return s.Phase == skribbl.PhasePickingWord && len(s.WordChoices) > 0
	}, 2*time.Second, 10*time.Millisecond)

	word := drawer.mach.State().WordChoices[0]
	require.NoError(t, drawer.mach.PickWord(word))

	require.Eventually(t, func() bool {
		return drawer.mach.State().Phase == skribbl.PhaseDrawing && drawer.mach.State().Turn.Word == word
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		s := guesser.mach.State()
		return s.Phase == skribbl.PhaseDrawing && s.Turn.Word == "" && s.Turn.Hint.TotalLength > 0
	}, 2*time.Second, 10*time.Millisecond, "guesser sees only the hint")

	require.NoError(t, drawer.mach.DrawStroke(skribbl.Stroke{
		Points: []skribbl.Point{{X: 10, Y: 20}, {X: 11, Y: 21}},
		Color:  "black",
		Size:   4,
		Tool:   skribbl.ToolBrush,
	}))
	require.Eventually(t, func() bool { return len(guesser.mach.State().Strokes) == 1 },
		2*time.Second, 10*time.Millisecond)

	_, err := guesser.mach.SubmitGuess(word)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s := guesser.mach.State()
		return s.HasGuessed("p2") && s.Scores["p2"] > 0 && len(guesser.mach.Pending()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The only guesser got it, so the turn ends for everyone.
	require.Eventually(t, func() bool {
		return drawer.mach.State().Phase == skribbl.PhaseTurnResults &&
			guesser.mach.State().Phase == skribbl.PhaseTurnResults
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, drawer.mach.State().Turn.PlayersGuessed["p2"])
}
