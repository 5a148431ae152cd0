package skribbl

import "errors"

var (
	ErrWrongPhase     = errors.New("event not valid in this phase")
	ErrNotDrawer      = errors.New("only the drawer may do that")
	ErrDrawerGuess    = errors.New("drawer cannot guess")
	ErrAlreadyGuessed = errors.New("already guessed this turn")
	ErrEmptyGuess     = errors.New("empty guess")
	ErrGameOver       = errors.New("game is over")
)

// Apply consumes one broadcast (or one optimistic local echo) and returns the
// next state. It never recomputes scores or classifications; those are
// server-authoritative and only displayed.
func Apply(s State, ev Event) (State, error) {
	switch ev := ev.(type) {
	case SnapshotEvent:
		return applySnapshot(s, ev.Snap), nil

	case StrokeEvent:
		if s.Phase != PhaseDrawing {
			return s, ErrWrongPhase
		}
		s.Strokes = append(s.Strokes[:len(s.Strokes):len(s.Strokes)], ev.Stroke)
		return s, nil

	case ClearEvent:
		// Clearing an already-empty buffer is a no-op, not an error.
		s.Strokes = nil
		return s, nil

	case UndoEvent:
		if ev.Strokes < 0 || ev.Strokes >= len(s.Strokes) {
			return s, nil
		}
		s.Strokes = s.Strokes[:ev.Strokes:ev.Strokes]
		return s, nil

	case TickEvent:
		// A tick for an earlier turn must not overwrite a later phase's
		// derived values; drop it.
		if ev.Round != s.Round.RoundNumber || ev.Turn != s.Round.CurrentTurn {
			return s, nil
		}
		s.Turn.TimeRemaining = ev.TimeRemaining
		return s, nil

	case HintEvent:
		if ev.Round != s.Round.RoundNumber || ev.Turn != s.Round.CurrentTurn {
			return s, nil
		}
		// Revealed count only ever grows within a turn.
		if ev.Hint.RevealedCount < s.Turn.Hint.RevealedCount {
			return s, nil
		}
		s.Turn.Hint = ev.Hint
		return s, nil

	case WordChoicesEvent:
		if s.Phase != PhasePickingWord {
			return s, ErrWrongPhase
		}
		s.WordChoices = ev.Choices
		return s, nil

	case GuessEvent:
		s.Messages = appendMessage(s.Messages, ev.Message)
		return s, nil

	case CorrectGuessEvent:
		duplicate := s.Turn.PlayersGuessed[ev.PlayerID]
		guessed := make(map[string]bool, len(s.Turn.PlayersGuessed)+1)
		for id := range s.Turn.PlayersGuessed {
			guessed[id] = true
		}
		guessed[ev.PlayerID] = true
		s.Turn.PlayersGuessed = guessed

		scores := make(map[string]int, len(s.Scores)+1)
		for id, v := range s.Scores {
			scores[id] = v
		}
		scores[ev.PlayerID] = ev.TotalScore
		s.Scores = scores

		// Delivery is not exactly-once; a re-broadcast must not repeat the
		// announcement.
		if !duplicate {
			s.Messages = appendMessage(s.Messages, ChatMessage{
				PlayerID:   ev.PlayerID,
				PlayerName: ev.PlayerName,
				Content:    ev.PlayerName + " guessed the word!",
				Type:       MessageCorrect,
				Timestamp:  ev.Timestamp,
			})
		}
		return s, nil

	case SystemEvent:
		s.Messages = appendMessage(s.Messages, ChatMessage{
			Content:   ev.Content,
			Type:      MessageSystem,
			Timestamp: ev.Timestamp,
		})
		return s, nil

	case EndedEvent:
		s.Phase = PhaseGameOver
		s.Final = &FinalResults{WinnerID: ev.WinnerID, FinalScores: ev.FinalScores}
		for _, st := range ev.Stats {
			s.Final.Ranking = append(s.Final.Ranking, TurnResult{
				PlayerID:   st.PlayerID,
				PlayerName: st.Name,
				Guessed:    st.CorrectGuesses > 0,
				Points:     st.Score,
			})
		}
		return s, nil

	default:
		return s, nil
	}
}

// applySnapshot is the rebase-on-snapshot operation: everything the server
// owns is replaced wholesale, bounding drift from any missed events. Only the
// chat buffer is client-owned, and it clears at round_start.
func applySnapshot(s State, snap Snapshot) State {
	next := State{
		Phase:       snap.Phase,
		Round:       snap.Round,
		Strokes:     append([]Stroke(nil), snap.Strokes...),
		Messages:    s.Messages,
		WordChoices: append([]string(nil), snap.WordChoices...),
		Results:     append([]TurnResult(nil), snap.Results...),
		Final:       snap.Final,
		Countdown:   snap.Countdown,
	}

	next.Turn = TurnState{
		DrawerID:       snap.Turn.DrawerID,
		DrawerName:     snap.Turn.DrawerName,
		Word:           snap.Word,
		Hint:           snap.Turn.Hint,
		TimeRemaining:  snap.Turn.TimeRemaining,
		PlayersGuessed: make(map[string]bool, len(snap.Turn.PlayersGuessed)),
	}
	for _, id := range snap.Turn.PlayersGuessed {
		next.Turn.PlayersGuessed[id] = true
	}

	next.Scores = make(map[string]int, len(snap.Scores))
	for id, v := range snap.Scores {
		next.Scores[id] = v
	}

	if snap.Phase == PhaseRoundStart {
		next.Messages = nil
	}
	return next
}

func appendMessage(msgs []ChatMessage, m ChatMessage) []ChatMessage {
	return append(msgs[:len(msgs):len(msgs)], m)
}
