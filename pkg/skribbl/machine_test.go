package skribbl

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukemadsen/sketchwire/pkg/game"
	"github.com/lukemadsen/sketchwire/pkg/protocol"
)

// fakeTransport records outgoing actions and lets tests emit broadcasts, the
// way the server double drives a real connection.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []protocol.GameAction
	handlers map[string][]func(json.RawMessage)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]func(json.RawMessage))}
}

func (f *fakeTransport) Send(msgType string, payload any) error {
	if msgType != protocol.TypeGameAction {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var act protocol.GameAction
	if err := json.Unmarshal(raw, &act); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, act)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) On(event string, fn func(json.RawMessage)) func() {
	f.mu.Lock()
	f.handlers[event] = append(f.handlers[event], fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeTransport) emit(t *testing.T, event string, payload any) {
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

func (f *fakeTransport) emitSnapshot(t *testing.T, snap Snapshot) {
	t.Helper()
	state, err := json.Marshal(snap)
	require.NoError(t, err)
	f.emit(t, protocol.EventGameStateUpdate, protocol.GameStateUpdateEvent{State: state})
}

func (f *fakeTransport) sentActions() []protocol.GameAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.GameAction(nil), f.sent...)
}

func newTestMachine(t *testing.T, selfID string) (*Machine, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	m := NewMachine(game.NewChannel(ft), selfID, nil)
	t.Cleanup(m.Close)
	return m, ft
}

func drawingSnapshot(drawerID string) Snapshot {
	return Snapshot{
		Phase: PhaseDrawing,
		Round: RoundState{RoundNumber: 1, TotalRounds: 3, CurrentTurn: 1, TotalTurns: 2},
		Turn: TurnSnapshot{
			DrawerID:      drawerID,
			DrawerName:    "dana",
			Hint:          Hint{Pattern: "_____", TotalLength: 5},
			TimeRemaining: 60,
		},
	}
}

func TestMachine_DrawStrokeAppliesLocallyAndSends(t *testing.T) {
	m, ft := newTestMachine(t, "d1")
	ft.emitSnapshot(t, drawingSnapshot("d1"))

	require.NoError(t, m.DrawStroke(stroke("red")))

	// Applied optimistically: the server never echoes our own strokes back.
	require.Len(t, m.State().Strokes, 1)
	actions := ft.sentActions()
	require.Len(t, actions, 1)
	require.Equal(t, ActionDrawStroke, actions[0].Type)
}

func TestMachine_NonDrawerCannotDraw(t *testing.T) {
	m, ft := newTestMachine(t, "p1")
	ft.emitSnapshot(t, drawingSnapshot("d1"))

	require.ErrorIs(t, m.DrawStroke(stroke("red")), ErrNotDrawer)
	require.Empty(t, ft.sentActions())
}

func TestMachine_RemoteStrokesAppendOnReceipt(t *testing.T) {
	m, ft := newTestMachine(t, "p1")
	ft.emitSnapshot(t, drawingSnapshot("d1"))

	ft.emit(t, EventStroke, StrokeEventPayload{Stroke: stroke("red")})
	ft.emit(t, EventStroke, StrokeEventPayload{Stroke: stroke("blue")})

	s := m.State()
	require.Len(t, s.Strokes, 2)
	require.Equal(t, "blue", s.Strokes[1].Color)
}

func TestMachine_UndoLocalThenEchoLandsOnSameBuffer(t *testing.T) {
	m, ft := newTestMachine(t, "d1")
	ft.emitSnapshot(t, drawingSnapshot("d1"))

	require.NoError(t, m.DrawStroke(stroke("red")))
	require.NoError(t, m.DrawStroke(stroke("blue")))
	require.NoError(t, m.UndoStroke())
	require.Len(t, m.State().Strokes, 1)

	// Even if the broadcast comes back to us, truncation is idempotent.
	ft.emit(t, EventUndo, UndoEventPayload{Strokes: 1})
	require.Len(t, m.State().Strokes, 1)

	ft.emit(t, EventClear, struct{}{})
	require.Empty(t, m.State().Strokes)
	ft.emit(t, EventClear, struct{}{})
	require.Empty(t, m.State().Strokes)
}

func TestMachine_SnapshotResyncDiscardsClientOnlyStrokes(t *testing.T) {
	m, ft := newTestMachine(t, "d1")
	ft.emitSnapshot(t, drawingSnapshot("d1"))

	// Drawn during an outage: the server never received these.
	require.NoError(t, m.DrawStroke(stroke("lost-1")))
	require.NoError(t, m.DrawStroke(stroke("lost-2")))

	authoritative := drawingSnapshot("d1")
	authoritative.Strokes = []Stroke{stroke("red")}
	ft.emitSnapshot(t, authoritative)

	s := m.State()
	require.Len(t, s.Strokes, 1)
	require.Equal(t, "red", s.Strokes[0].Color)
}

func TestMachine_PickWordGating(t *testing.T) {
	m, ft := newTestMachine(t, "d1")

	snap := drawingSnapshot("d1")
	snap.Phase = PhasePickingWord
	snap.WordChoices = []string{"tiger", "apple", "cloud"}
	ft.emitSnapshot(t, snap)

	require.NoError(t, m.PickWord("tiger"))
	actions := ft.sentActions()
	require.Len(t, actions, 1)
	require.Equal(t, ActionPickWord, actions[0].Type)

	// Only the drawer picks.
	other, otherFT := newTestMachine(t, "p1")
	otherFT.emitSnapshot(t, snap)
	require.ErrorIs(t, other.PickWord("tiger"), ErrNotDrawer)
}

func TestMachine_GuessPendingUntilEcho(t *testing.T) {
	m, ft := newTestMachine(t, "p1")
	ft.emitSnapshot(t, drawingSnapshot("d1"))

	localID, err := m.SubmitGuess("lion")
	require.NoError(t, err)
	require.Len(t, m.Pending(), 1)

	// Not rendered as sent until the server classifies it.
	require.Empty(t, m.State().Messages)

	ft.emit(t, EventGuess, GuessEventPayload{
		Message: ChatMessage{ID: "m1", PlayerID: "p1", PlayerName: "pat", Content: "lion", Type: MessageGuess},
		LocalID: localID,
	})

	require.Empty(t, m.Pending())
	msgs := m.State().Messages
	require.Len(t, msgs, 1)
	require.Equal(t, MessageGuess, msgs[0].Type)
}

func TestMachine_CorrectGuessExcludesFurtherSubmissions(t *testing.T) {
	m, ft := newTestMachine(t, "p1")
	ft.emitSnapshot(t, drawingSnapshot("d1"))

	localID, err := m.SubmitGuess("tiger")
	require.NoError(t, err)

	ft.emit(t, EventCorrectGuess, CorrectGuessEventPayload{
		PlayerID: "p1", PlayerName: "pat", Points: 320, TotalScore: 320, LocalID: localID,
	})

	s := m.State()
	require.True(t, s.Turn.PlayersGuessed["p1"])
	require.Equal(t, 320, s.Scores["p1"])
	require.Empty(t, m.Pending())

	_, err = m.SubmitGuess("tiger")
	require.ErrorIs(t, err, ErrAlreadyGuessed)
}

func TestMachine_DrawerCannotGuess(t *testing.T) {
	m, ft := newTestMachine(t, "d1")
	ft.emitSnapshot(t, drawingSnapshot("d1"))

	_, err := m.SubmitGuess("tiger")
	require.ErrorIs(t, err, ErrDrawerGuess)
}

func TestMachine_PendingClearsOnNextTurn(t *testing.T) {
	m, ft := newTestMachine(t, "p1")
	ft.emitSnapshot(t, drawingSnapshot("d1"))

	_, err := m.SubmitGuess("lion")
	require.NoError(t, err)
	require.Len(t, m.Pending(), 1)

	next := drawingSnapshot("p1")
	next.Phase = PhaseRoundStart
	next.Round.CurrentTurn = 2
	ft.emitSnapshot(t, next)

	require.Empty(t, m.Pending())
}

func TestMachine_GameOverAcceptsNoActions(t *testing.T) {
	m, ft := newTestMachine(t, "p1")
	ft.emitSnapshot(t, drawingSnapshot("d1"))
	ft.emit(t, protocol.EventGameEnded, protocol.GameEndedEvent{
		WinnerID:    "p1",
		FinalScores: map[string]int{"p1": 500},
	})

	require.Equal(t, PhaseGameOver, m.State().Phase)
	_, err := m.SubmitGuess("tiger")
	require.ErrorIs(t, err, ErrGameOver)
}

func TestMachine_MalformedBroadcastIsSkipped(t *testing.T) {
	m, ft := newTestMachine(t, "p1")
	ft.emitSnapshot(t, drawingSnapshot("d1"))

	for _, fn := range ft.handlers[EventStroke] {
		fn(json.RawMessage(`{"stroke": "not-a-stroke"`))
	}
	require.Empty(t, m.State().Strokes)
	require.Equal(t, PhaseDrawing, m.State().Phase)
}
