package skribbl

type Phase string

const (
	PhaseLobby       Phase = "lobby"
	PhaseStarting    Phase = "starting"
	PhaseRoundStart  Phase = "round_start"
	PhasePickingWord Phase = "picking_word"
	PhaseDrawing     Phase = "drawing"
	PhaseTurnResults Phase = "turn_results"
	PhaseGameOver    Phase = "game_over"
)

// TurnState is the client view of the active turn. Word is only populated
// when this client is the drawer. PlayersGuessed grows monotonically within
// a turn and resets at turn start.
type TurnState struct {
	DrawerID       string
	DrawerName     string
	Word           string
	Hint           Hint
	TimeRemaining  int
	PlayersGuessed map[string]bool
}

// State is the full client-side game state. It is a value: Apply returns a
// new State and never mutates slices or maps shared with the previous one
// along the paths it changes.
type State struct {
	Phase       Phase
	Round       RoundState
	Turn        TurnState
	Strokes     []Stroke
	Messages    []ChatMessage
	Scores      map[string]int
	WordChoices []string
	Results     []TurnResult
	Final       *FinalResults
	Countdown   int
}

func NewState() State {
	return State{
		Phase:  PhaseLobby,
		Turn:   TurnState{PlayersGuessed: map[string]bool{}},
		Scores: map[string]int{},
	}
}

func (s State) IsDrawer(playerID string) bool {
	return s.Turn.DrawerID != "" && s.Turn.DrawerID == playerID
}

// HasGuessed reports whether the player already guessed correctly this turn,
// which excludes them from further submissions.
func (s State) HasGuessed(playerID string) bool {
	return s.Turn.PlayersGuessed[playerID]
}
