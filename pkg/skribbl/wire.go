// Package skribbl is the drawing-and-guessing reference game: its wire
// vocabulary, the client-side turn state machine that tracks the server's
// authoritative phases, and the optimistic stroke/guess reconciliation.
package skribbl

// GameID is the registry key for this game type.
const GameID = "draw-guess"

// Actions the client emits through the generic game:action envelope.
const (
	ActionPickWord    = "PICK_WORD"
	ActionDrawStroke  = "DRAW_STROKE"
	ActionClearCanvas = "CLEAR_CANVAS"
	ActionUndoStroke  = "UNDO_STROKE"
	ActionSubmitGuess = "SUBMIT_GUESS"
)

// Broadcast events specific to this game. Phase transitions travel in the
// authoritative snapshot (game:started / game:state_update), not here.
const (
	EventStroke       = "skribbl:stroke"
	EventClear        = "skribbl:clear"
	EventUndo         = "skribbl:undo"
	EventTick         = "skribbl:tick"
	EventHint         = "skribbl:hint"
	EventWordChoices  = "skribbl:word_choices"
	EventGuess        = "skribbl:guess"
	EventCorrectGuess = "skribbl:correct_guess"
	EventSystem       = "skribbl:system"
)

type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is append-only within a turn: cleared by CLEAR_CANVAS, truncated by
// UNDO_STROKE, replaced wholesale on every authoritative snapshot.
type Stroke struct {
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Size   int     `json:"size"`
	Tool   Tool    `json:"tool"`
}

type Hint struct {
	Pattern       string `json:"pattern"`
	RevealedCount int    `json:"revealedCount"`
	TotalLength   int    `json:"totalLength"`
}

type MessageType string

const (
	MessageGuess   MessageType = "guess"
	MessageCorrect MessageType = "correct"
	MessageClose   MessageType = "close"
	MessageSystem  MessageType = "system"
)

type ChatMessage struct {
	ID         string      `json:"id"`
	PlayerID   string      `json:"playerId"`
	PlayerName string      `json:"playerName"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	Timestamp  int64       `json:"timestamp"`
}

// Action payloads.

type PickWordAction struct {
	Word string `json:"word"`
}

type DrawStrokeAction struct {
	Stroke Stroke `json:"stroke"`
}

// SubmitGuessAction carries the client-generated local id so the server's
// echo can resolve the pending entry.
type SubmitGuessAction struct {
	Text    string `json:"text"`
	LocalID string `json:"localId"`
}

// Event payloads.

type StrokeEventPayload struct {
	Stroke Stroke `json:"stroke"`
}

// UndoEventPayload carries the resulting stroke count so applying it twice
// truncates to the same place.
type UndoEventPayload struct {
	Strokes int `json:"strokes"`
}

type TickEventPayload struct {
	Round         int `json:"round"`
	Turn          int `json:"turn"`
	TimeRemaining int `json:"timeRemaining"`
}

type HintEventPayload struct {
	Round int  `json:"round"`
	Turn  int  `json:"turn"`
	Hint  Hint `json:"hint"`
}

type WordChoicesEventPayload struct {
	Choices   []string `json:"choices"`
	TimeLimit int      `json:"timeLimit"`
}

type GuessEventPayload struct {
	Message ChatMessage `json:"message"`
	LocalID string      `json:"localId,omitempty"`
}

type CorrectGuessEventPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Points     int    `json:"points"`
	TotalScore int    `json:"totalScore"`
	LocalID    string `json:"localId,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

type SystemEventPayload struct {
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// RoundState counts are 1-based; CurrentTurn is non-decreasing within a
// round.
type RoundState struct {
	RoundNumber int `json:"roundNumber"`
	TotalRounds int `json:"totalRounds"`
	CurrentTurn int `json:"currentTurn"`
	TotalTurns  int `json:"totalTurns"`
}

type TurnSnapshot struct {
	DrawerID       string   `json:"drawerId"`
	DrawerName     string   `json:"drawerName"`
	Hint           Hint     `json:"hint"`
	TimeRemaining  int      `json:"timeRemaining"`
	PlayersGuessed []string `json:"playersGuessed"`
}

type TurnResult struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Guessed    bool   `json:"guessed"`
	Points     int    `json:"points"`
	GuessMS    int    `json:"guessMs,omitempty"`
}

type FinalResults struct {
	WinnerID    string         `json:"winnerId"`
	Ranking     []TurnResult   `json:"ranking"`
	FinalScores map[string]int `json:"finalScores"`
}

// Snapshot is the authoritative per-game state blob. The server personalizes
// it per recipient: Word and WordChoices are only ever present for the
// drawer.
type Snapshot struct {
	Phase       Phase          `json:"phase"`
	Round       RoundState     `json:"round"`
	Turn        TurnSnapshot   `json:"turn"`
	Strokes     []Stroke       `json:"strokes"`
	Scores      map[string]int `json:"scores"`
	Word        string         `json:"word,omitempty"`
	WordChoices []string       `json:"wordChoices,omitempty"`
	Results     []TurnResult   `json:"results,omitempty"`
	Final       *FinalResults  `json:"final,omitempty"`
	Countdown   int            `json:"countdown,omitempty"`
}
