package skribbl

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lukemadsen/sketchwire/pkg/game"
	"github.com/lukemadsen/sketchwire/pkg/protocol"
)

// PendingGuess is a locally originated guess awaiting the server's echo. The
// UI must not render it as sent: the server decides its classification.
type PendingGuess struct {
	LocalID string
	Content string
	SentAt  time.Time
}

// Machine wires the reducer to a game channel. Broadcasts arrive in order on
// the connection's dispatch goroutine and are applied synchronously; local
// drawer input takes the optimistic path because the server never echoes a
// client's own strokes back to it.
type Machine struct {
	ch     *game.Channel
	log    *zap.Logger
	selfID string

	mu      sync.Mutex
	state   State
	pending []PendingGuess

	unsubs []func()
}

func NewMachine(ch *game.Channel, selfID string, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Machine{ch: ch, log: log, selfID: selfID, state: NewState()}
	m.subscribe()
	return m
}

// Definition registers this game with the generic registry.
func Definition() game.Definition {
	return game.Definition{
		GameID: GameID,
		Validate: func(raw json.RawMessage) error {
			var snap Snapshot
			return json.Unmarshal(raw, &snap)
		},
		New: func(ch *game.Channel, selfID string, log *zap.Logger) game.Instance {
			return NewMachine(ch, selfID, log)
		},
	}
}

func (m *Machine) GameID() string { return GameID }

func (m *Machine) Close() {
	for _, u := range m.unsubs {
		u()
	}
	m.unsubs = nil
}

func (m *Machine) subscribe() {
	m.unsubs = append(m.unsubs, m.ch.OnState(func(raw json.RawMessage) {
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			m.log.Warn("bad state snapshot, skipping", zap.Error(err))
			return
		}
		m.mu.Lock()
		turnChanged := snap.Round != m.state.Round
		m.mu.Unlock()
		m.apply(SnapshotEvent{Snap: snap})
		if turnChanged {
			m.clearPending()
		}
	}))

	on := func(event string, fn func(json.RawMessage)) {
		m.unsubs = append(m.unsubs, m.ch.OnGameEvent(event, fn))
	}

	on(EventStroke, decode(m, func(p StrokeEventPayload) Event { return StrokeEvent{Stroke: p.Stroke} }))
	on(EventClear, func(json.RawMessage) { m.apply(ClearEvent{}) })
	on(EventUndo, decode(m, func(p UndoEventPayload) Event { return UndoEvent{Strokes: p.Strokes} }))
	on(EventTick, decode(m, func(p TickEventPayload) Event {
		return TickEvent{Round: p.Round, Turn: p.Turn, TimeRemaining: p.TimeRemaining}
	}))
	on(EventHint, decode(m, func(p HintEventPayload) Event {
		return HintEvent{Round: p.Round, Turn: p.Turn, Hint: p.Hint}
	}))
	on(EventWordChoices, decode(m, func(p WordChoicesEventPayload) Event {
		return WordChoicesEvent{Choices: p.Choices, TimeLimit: p.TimeLimit}
	}))
	on(EventGuess, func(raw json.RawMessage) {
		var p GuessEventPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			m.log.Warn("bad guess payload, skipping", zap.Error(err))
			return
		}
		m.resolvePending(p.LocalID)
		m.apply(GuessEvent{Message: p.Message, LocalID: p.LocalID})
	})
	on(EventCorrectGuess, func(raw json.RawMessage) {
		var p CorrectGuessEventPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			m.log.Warn("bad correct_guess payload, skipping", zap.Error(err))
			return
		}
		m.resolvePending(p.LocalID)
		m.apply(CorrectGuessEvent{
			PlayerID:   p.PlayerID,
			PlayerName: p.PlayerName,
			Points:     p.Points,
			TotalScore: p.TotalScore,
			LocalID:    p.LocalID,
			Timestamp:  p.Timestamp,
		})
	})
	on(EventSystem, decode(m, func(p SystemEventPayload) Event {
		return SystemEvent{Content: p.Content, Timestamp: p.Timestamp}
	}))

	m.unsubs = append(m.unsubs, m.ch.OnGameEvent(protocol.EventGameEnded, func(raw json.RawMessage) {
		var ev protocol.GameEndedEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			m.log.Warn("bad game_ended payload, skipping", zap.Error(err))
			return
		}
		m.apply(EndedEvent{WinnerID: ev.WinnerID, FinalScores: ev.FinalScores, Stats: ev.Stats})
	}))
}

func decode[T any](m *Machine, build func(T) Event) func(json.RawMessage) {
	return func(raw json.RawMessage) {
		var p T
		if err := json.Unmarshal(raw, &p); err != nil {
			m.log.Warn("bad game event payload, skipping", zap.Error(err))
			return
		}
		m.apply(build(p))
	}
}

// apply runs the reducer under the lock. Reducer rejections are expected for
// out-of-order or ineligible events; they are logged and skipped, never
// propagated out of the handler.
func (m *Machine) apply(ev Event) {
	m.mu.Lock()
	next, err := Apply(m.state, ev)
	if err == nil {
		m.state = next
	}
	m.mu.Unlock()
	if err != nil {
		m.log.Debug("event skipped", zap.Error(err))
	}
}

// State returns a copy safe for the UI to read.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.Strokes = append([]Stroke(nil), m.state.Strokes...)
	s.Messages = append([]ChatMessage(nil), m.state.Messages...)
	guessed := make(map[string]bool, len(m.state.Turn.PlayersGuessed))
	for id := range m.state.Turn.PlayersGuessed {
		guessed[id] = true
	}
	s.Turn.PlayersGuessed = guessed
	scores := make(map[string]int, len(m.state.Scores))
	for id, v := range m.state.Scores {
		scores[id] = v
	}
	s.Scores = scores
	return s
}

func (m *Machine) IsDrawer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsDrawer(m.selfID)
}

// PickWord selects one of the offered words during picking_word. The word
// itself becomes visible through the next authoritative snapshot.
func (m *Machine) PickWord(word string) error {
	m.mu.Lock()
	phase, drawer := m.state.Phase, m.state.IsDrawer(m.selfID)
	m.mu.Unlock()
	if phase != PhasePickingWord {
		return ErrWrongPhase
	}
	if !drawer {
		return ErrNotDrawer
	}
	return m.ch.SendAction(ActionPickWord, PickWordAction{Word: word})
}

// DrawStroke applies the stroke locally first — the server does not echo the
// originating client's strokes — and then ships it.
func (m *Machine) DrawStroke(stroke Stroke) error {
	if err := m.gateDrawer(); err != nil {
		return err
	}
	m.apply(StrokeEvent{Stroke: stroke})
	return m.ch.SendAction(ActionDrawStroke, DrawStrokeAction{Stroke: stroke})
}

// ClearCanvas clears locally and notifies. The broadcast will be applied too;
// clearing twice is a no-op.
func (m *Machine) ClearCanvas() error {
	if err := m.gateDrawer(); err != nil {
		return err
	}
	m.apply(ClearEvent{})
	return m.ch.SendAction(ActionClearCanvas, struct{}{})
}

// UndoStroke truncates the local buffer by one and notifies. The broadcast
// carries the resulting count, so applying it after the local truncation
// lands on the same buffer.
func (m *Machine) UndoStroke() error {
	if err := m.gateDrawer(); err != nil {
		return err
	}
	m.mu.Lock()
	n := len(m.state.Strokes)
	m.mu.Unlock()
	if n > 0 {
		m.apply(UndoEvent{Strokes: n - 1})
	}
	return m.ch.SendAction(ActionUndoStroke, struct{}{})
}

func (m *Machine) gateDrawer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase != PhaseDrawing {
		return ErrWrongPhase
	}
	if !m.state.IsDrawer(m.selfID) {
		return ErrNotDrawer
	}
	return nil
}

// SubmitGuess sends a guess and tracks it as pending until the server's echo
// resolves it. Returns the local id the echo will carry.
func (m *Machine) SubmitGuess(text string) (string, error) {
	if text == "" {
		return "", ErrEmptyGuess
	}
	m.mu.Lock()
	switch {
	case m.state.Phase == PhaseGameOver:
		m.mu.Unlock()
		return "", ErrGameOver
	case m.state.Phase != PhaseDrawing:
		m.mu.Unlock()
		return "", ErrWrongPhase
	case m.state.IsDrawer(m.selfID):
		m.mu.Unlock()
		return "", ErrDrawerGuess
	case m.state.HasGuessed(m.selfID):
		m.mu.Unlock()
		return "", ErrAlreadyGuessed
	}
	localID := uuid.NewString()
	m.pending = append(m.pending, PendingGuess{LocalID: localID, Content: text, SentAt: time.Now()})
	m.mu.Unlock()

	if err := m.ch.SendAction(ActionSubmitGuess, SubmitGuessAction{Text: text, LocalID: localID}); err != nil {
		m.dropPendingGuess(localID)
		return "", err
	}
	return localID, nil
}

// Pending lists guesses not yet confirmed by a broadcast.
func (m *Machine) Pending() []PendingGuess {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PendingGuess(nil), m.pending...)
}

func (m *Machine) resolvePending(localID string) {
	if localID == "" {
		return
	}
	m.dropPendingGuess(localID)
}

func (m *Machine) dropPendingGuess(localID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.pending[:0]
	for _, p := range m.pending {
		if p.LocalID != localID {
			pending = append(pending, p)
		}
	}
	m.pending = pending
}

func (m *Machine) clearPending() {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
}
