package skribbl

import "github.com/lukemadsen/sketchwire/pkg/protocol"

// Event is the tagged union the reducer consumes. Every variant corresponds
// to one server broadcast; locally originated strokes reuse StrokeEvent via
// the machine's optimistic path.
type Event interface{ isEvent() }

// SnapshotEvent replaces the derived state wholesale; it is the "rebase on
// snapshot" half of the reconciliation contract.
type SnapshotEvent struct{ Snap Snapshot }

type StrokeEvent struct{ Stroke Stroke }

type ClearEvent struct{}

// UndoEvent truncates the stroke buffer to Strokes entries.
type UndoEvent struct{ Strokes int }

type TickEvent struct {
	Round, Turn   int
	TimeRemaining int
}

type HintEvent struct {
	Round, Turn int
	Hint        Hint
}

type WordChoicesEvent struct {
	Choices   []string
	TimeLimit int
}

type GuessEvent struct {
	Message ChatMessage
	LocalID string
}

type CorrectGuessEvent struct {
	PlayerID   string
	PlayerName string
	Points     int
	TotalScore int
	LocalID    string
	Timestamp  int64
}

type SystemEvent struct {
	Content   string
	Timestamp int64
}

type EndedEvent struct {
	WinnerID    string
	FinalScores map[string]int
	Stats       []protocol.PlayerStats
}

func (SnapshotEvent) isEvent()     {}
func (StrokeEvent) isEvent()       {}
func (ClearEvent) isEvent()        {}
func (UndoEvent) isEvent()         {}
func (TickEvent) isEvent()         {}
func (HintEvent) isEvent()         {}
func (WordChoicesEvent) isEvent()  {}
func (GuessEvent) isEvent()        {}
func (CorrectGuessEvent) isEvent() {}
func (SystemEvent) isEvent()       {}
func (EndedEvent) isEvent()        {}
