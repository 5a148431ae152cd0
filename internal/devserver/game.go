package devserver

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lukemadsen/sketchwire/pkg/protocol"
	"github.com/lukemadsen/sketchwire/pkg/skribbl"
)

const (
	startCountdownSec = 3
	roundStartSec     = 2
	turnResultsSec    = 5
	drawerPointsPer   = 25
	guessBasePoints   = 50
	guessBonusPoints  = 450
)

// gameState is the authoritative turn machine for one room. It only ever
// runs on the room actor goroutine.
type gameState struct {
	phase skribbl.Phase
	round skribbl.RoundState

	rotation  []string
	drawerIdx int

	word        string
	choices     []string
	revealOrder []int
	revealed    int

	timeRemaining int
	drawTime      int
	drawStart     time.Time

	strokes []skribbl.Stroke

	guessed      map[string]bool
	guessMS      map[string]int
	turnPoints   map[string]int
	scores       map[string]int
	correctCount map[string]int
	bestGuessMS  map[string]int

	results []skribbl.TurnResult
	final   *skribbl.FinalResults
}

func (g *gameState) drawerID() string {
	if g.drawerIdx < len(g.rotation) {
		return g.rotation[g.drawerIdx]
	}
	return ""
}

func (r *Room) startGame() {
	rotation := append([]string(nil), r.order...)
	g := &gameState{
		rotation: rotation,
		round: skribbl.RoundState{
			RoundNumber: 1,
			TotalRounds: r.settingInt("rounds"),
			CurrentTurn: 1,
			TotalTurns:  len(rotation),
		},
		drawTime:     max(r.settingInt("drawTime"), 1),
		scores:       make(map[string]int, len(rotation)),
		correctCount: make(map[string]int, len(rotation)),
		bestGuessMS:  make(map[string]int, len(rotation)),
	}
	for _, s := range rotation {
		g.scores[s] = 0
	}
	r.game = g
	r.status = protocol.RoomActive
	r.beginTurn()

	for session := range r.players {
		state, err := json.Marshal(r.snapshotFor(session))
		if err != nil {
			continue
		}
		r.sendTo(session, protocol.EventGameStarted, protocol.GameStartedEvent{GameState: state})
	}
}

// beginTurn enters round_start for the current drawer slot, skipping
// disconnected players.
func (r *Room) beginTurn() {
	g := r.game
	for g.drawerIdx < len(g.rotation) {
		if p, ok := r.players[g.rotation[g.drawerIdx]]; ok && p.info.IsConnected {
			break
		}
		g.drawerIdx++
		g.round.CurrentTurn++
	}
	if g.drawerIdx >= len(g.rotation) {
		r.advanceRound()
		return
	}

	g.phase = skribbl.PhaseRoundStart
	g.timeRemaining = roundStartSec
	g.word = ""
	g.choices = nil
	g.revealOrder = nil
	g.revealed = 0
	g.strokes = nil
	g.guessed = make(map[string]bool)
	g.guessMS = make(map[string]int)
	g.turnPoints = make(map[string]int)
	g.results = nil

	r.broadcastSnapshot()
}

func (r *Room) gameTick() {
	g := r.game
	if g == nil || g.phase == skribbl.PhaseGameOver {
		return
	}
	g.timeRemaining--

	switch g.phase {
	case skribbl.PhaseRoundStart:
		if g.timeRemaining <= 0 {
			r.enterPickingWord()
		}

	case skribbl.PhasePickingWord:
		if g.timeRemaining <= 0 {
			// Server-enforced fallback: the drawer deferred too long.
			word := pickWordChoices(1)[0]
			if len(g.choices) > 0 {
				word = g.choices[0]
			}
			r.enterDrawing(word)
		}

	case skribbl.PhaseDrawing:
		r.broadcast(skribbl.EventTick, skribbl.TickEventPayload{
			Round:         g.round.RoundNumber,
			Turn:          g.round.CurrentTurn,
			TimeRemaining: g.timeRemaining,
		})
		r.maybeRevealHint()
		if g.timeRemaining <= 0 {
			r.endTurn("time is up")
		}

	case skribbl.PhaseTurnResults:
		if g.timeRemaining <= 0 {
			g.drawerIdx++
			g.round.CurrentTurn++
			if g.round.CurrentTurn > g.round.TotalTurns {
				r.advanceRound()
			} else {
				r.beginTurn()
			}
		}
	}
}

func (r *Room) advanceRound() {
	g := r.game
	g.round.RoundNumber++
	if g.round.RoundNumber > g.round.TotalRounds {
		r.endGame()
		return
	}
	g.round.CurrentTurn = 1
	g.drawerIdx = 0
	r.beginTurn()
}

func (r *Room) enterPickingWord() {
	g := r.game
	g.phase = skribbl.PhasePickingWord
	g.timeRemaining = r.settingInt("pickTime")
	g.choices = pickWordChoices(r.settingInt("wordChoices"))

	r.broadcastSnapshot()
	r.sendTo(g.drawerID(), skribbl.EventWordChoices, skribbl.WordChoicesEventPayload{
		Choices:   g.choices,
		TimeLimit: g.timeRemaining,
	})
}

func (r *Room) enterDrawing(word string) {
	g := r.game
	g.phase = skribbl.PhaseDrawing
	g.word = word
	g.choices = nil
	g.timeRemaining = g.drawTime
	g.drawStart = time.Now()
	g.revealOrder = rand.Perm(len([]rune(word)))
	g.revealed = 0

	r.broadcastSnapshot()
}

func (g *gameState) hint() skribbl.Hint {
	runes := []rune(g.word)
	shown := make(map[int]bool, g.revealed)
	for _, idx := range g.revealOrder[:g.revealed] {
		shown[idx] = true
	}
	pattern := make([]rune, len(runes))
	for i, c := range runes {
		if shown[i] || c == ' ' {
			pattern[i] = c
		} else {
			pattern[i] = '_'
		}
	}
	return skribbl.Hint{
		Pattern:       string(pattern),
		RevealedCount: g.revealed,
		TotalLength:   len(runes),
	}
}

// maybeRevealHint reveals letters at fixed fractions of the turn so the
// revealed count only ever grows.
func (r *Room) maybeRevealHint() {
	g := r.game
	maxReveals := (len([]rune(g.word)) - 1) / 2
	if maxReveals <= 0 {
		return
	}
	elapsed := g.drawTime - g.timeRemaining
	want := maxReveals * elapsed / g.drawTime
	if want > maxReveals {
		want = maxReveals
	}
	if want <= g.revealed {
		return
	}
	g.revealed = want
	r.broadcast(skribbl.EventHint, skribbl.HintEventPayload{
		Round: g.round.RoundNumber,
		Turn:  g.round.CurrentTurn,
		Hint:  g.hint(),
	})
}

func (r *Room) handleAction(session string, act protocol.GameAction) {
	g := r.game
	if g == nil {
		r.sendError(session, protocol.ErrCodeBadRequest, "no game in progress")
		return
	}

	switch act.Type {
	case skribbl.ActionPickWord:
		if session != g.drawerID() || g.phase != skribbl.PhasePickingWord {
			return // phase/role gating slipped through client-side; ignore
		}
		var pick skribbl.PickWordAction
		if err := json.Unmarshal(act.Payload, &pick); err != nil {
			return
		}
		for _, w := range g.choices {
			if w == pick.Word {
				r.enterDrawing(w)
				return
			}
		}

	case skribbl.ActionDrawStroke:
		if session != g.drawerID() || g.phase != skribbl.PhaseDrawing {
			return
		}
		var draw skribbl.DrawStrokeAction
		if err := json.Unmarshal(act.Payload, &draw); err != nil {
			return
		}
		g.strokes = append(g.strokes, draw.Stroke)
		// The originating client already applied its own stroke.
		r.broadcastExcept(session, skribbl.EventStroke, skribbl.StrokeEventPayload{Stroke: draw.Stroke})

	case skribbl.ActionClearCanvas:
		if session != g.drawerID() || g.phase != skribbl.PhaseDrawing {
			return
		}
		g.strokes = nil
		r.broadcastExcept(session, skribbl.EventClear, struct{}{})

	case skribbl.ActionUndoStroke:
		if session != g.drawerID() || g.phase != skribbl.PhaseDrawing {
			return
		}
		if len(g.strokes) > 0 {
			g.strokes = g.strokes[:len(g.strokes)-1]
		}
		r.broadcastExcept(session, skribbl.EventUndo, skribbl.UndoEventPayload{Strokes: len(g.strokes)})

	case skribbl.ActionSubmitGuess:
		r.handleGuess(session, act.Payload)
	}
}

func (r *Room) handleGuess(session string, payload json.RawMessage) {
	g := r.game
	if g.phase != skribbl.PhaseDrawing || session == g.drawerID() || g.guessed[session] {
		return
	}
	p, ok := r.players[session]
	if !ok {
		return
	}
	var guess skribbl.SubmitGuessAction
	if err := json.Unmarshal(payload, &guess); err != nil {
		return
	}

	now := time.Now()
	switch r.classifier.Classify(guess.Text, g.word) {
	case GuessCorrect:
		points := guessBasePoints + guessBonusPoints*g.timeRemaining/g.drawTime
		g.guessed[session] = true
		g.guessMS[session] = int(now.Sub(g.drawStart).Milliseconds())
		g.turnPoints[session] = points
		g.scores[session] += points
		g.correctCount[session]++
		if best, ok := g.bestGuessMS[session]; !ok || g.guessMS[session] < best {
			g.bestGuessMS[session] = g.guessMS[session]
		}
		r.broadcast(skribbl.EventCorrectGuess, skribbl.CorrectGuessEventPayload{
			PlayerID:   session,
			PlayerName: p.info.Name,
			Points:     points,
			TotalScore: g.scores[session],
			LocalID:    guess.LocalID,
			Timestamp:  now.UnixMilli(),
		})
		if r.allGuessed() {
			r.endTurn("everyone guessed the word")
		}

	case GuessClose:
		r.broadcast(skribbl.EventGuess, skribbl.GuessEventPayload{
			Message: skribbl.ChatMessage{
				ID:         uuid.NewString(),
				PlayerID:   session,
				PlayerName: p.info.Name,
				Content:    guess.Text,
				Type:       skribbl.MessageClose,
				Timestamp:  now.UnixMilli(),
			},
			LocalID: guess.LocalID,
		})

	default:
		r.broadcast(skribbl.EventGuess, skribbl.GuessEventPayload{
			Message: skribbl.ChatMessage{
				ID:         uuid.NewString(),
				PlayerID:   session,
				PlayerName: p.info.Name,
				Content:    guess.Text,
				Type:       skribbl.MessageGuess,
				Timestamp:  now.UnixMilli(),
			},
			LocalID: guess.LocalID,
		})
	}
}

// allGuessed reports whether every connected non-drawer has guessed.
func (r *Room) allGuessed() bool {
	g := r.game
	for session, p := range r.players {
		if session == g.drawerID() || !p.info.IsConnected {
			continue
		}
		if !g.guessed[session] {
			return false
		}
	}
	return true
}

func (r *Room) endTurn(reason string) {
	g := r.game
	if g == nil || g.phase == skribbl.PhaseTurnResults || g.phase == skribbl.PhaseGameOver {
		return
	}

	drawer := g.drawerID()
	if _, ok := r.players[drawer]; ok && len(g.guessed) > 0 {
		drawerPoints := drawerPointsPer * len(g.guessed)
		g.scores[drawer] += drawerPoints
		g.turnPoints[drawer] = drawerPoints
	}

	g.results = nil
	for _, session := range r.order {
		p, ok := r.players[session]
		if !ok {
			continue
		}
		g.results = append(g.results, skribbl.TurnResult{
			PlayerID:   session,
			PlayerName: p.info.Name,
			Guessed:    g.guessed[session],
			Points:     g.turnPoints[session],
			GuessMS:    g.guessMS[session],
		})
	}

	g.phase = skribbl.PhaseTurnResults
	g.timeRemaining = turnResultsSec

	if g.word != "" {
		r.broadcast(skribbl.EventSystem, skribbl.SystemEventPayload{
			Content:   fmt.Sprintf("The word was %q — %s", g.word, reason),
			Timestamp: time.Now().UnixMilli(),
		})
	}
	r.broadcastSnapshot()
}

func (r *Room) endGame() {
	g := r.game
	g.phase = skribbl.PhaseGameOver
	r.status = protocol.RoomFinished

	type ranked struct {
		session string
		score   int
	}
	ranking := make([]ranked, 0, len(g.scores))
	for _, session := range g.rotation {
		ranking = append(ranking, ranked{session, g.scores[session]})
	}
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].score > ranking[j].score })

	winner := ""
	if len(ranking) > 0 {
		winner = ranking[0].session
	}

	stats := make([]protocol.PlayerStats, 0, len(ranking))
	finalRanking := make([]skribbl.TurnResult, 0, len(ranking))
	for _, rk := range ranking {
		name := rk.session
		if p, ok := r.players[rk.session]; ok {
			name = p.info.Name
		}
		stats = append(stats, protocol.PlayerStats{
			PlayerID:       rk.session,
			Name:           name,
			Score:          rk.score,
			CorrectGuesses: g.correctCount[rk.session],
			BestGuessMS:    g.bestGuessMS[rk.session],
		})
		finalRanking = append(finalRanking, skribbl.TurnResult{
			PlayerID:   rk.session,
			PlayerName: name,
			Guessed:    g.correctCount[rk.session] > 0,
			Points:     rk.score,
		})
	}

	scores := make(map[string]int, len(g.scores))
	for id, s := range g.scores {
		scores[id] = s
	}
	g.final = &skribbl.FinalResults{WinnerID: winner, Ranking: finalRanking, FinalScores: scores}

	r.broadcastSnapshot()
	r.broadcast(protocol.EventGameEnded, protocol.GameEndedEvent{
		WinnerID:    winner,
		FinalScores: scores,
		Stats:       stats,
	})
}

// snapshotFor personalizes the authoritative state: the secret word and the
// word choices only ever reach the drawer.
func (r *Room) snapshotFor(session string) skribbl.Snapshot {
	g := r.game
	guessed := make([]string, 0, len(g.guessed))
	for s := range g.guessed {
		guessed = append(guessed, s)
	}
	sort.Strings(guessed)

	drawerName := ""
	if p, ok := r.players[g.drawerID()]; ok {
		drawerName = p.info.Name
	}

	scores := make(map[string]int, len(g.scores))
	for id, s := range g.scores {
		scores[id] = s
	}

	snap := skribbl.Snapshot{
		Phase: g.phase,
		Round: g.round,
		Turn: skribbl.TurnSnapshot{
			DrawerID:       g.drawerID(),
			DrawerName:     drawerName,
			Hint:           g.hint(),
			TimeRemaining:  g.timeRemaining,
			PlayersGuessed: guessed,
		},
		Strokes: append([]skribbl.Stroke(nil), g.strokes...),
		Scores:  scores,
		Results: append([]skribbl.TurnResult(nil), g.results...),
		Final:   g.final,
	}
	if session == g.drawerID() {
		snap.Word = g.word
		snap.WordChoices = append([]string(nil), g.choices...)
	}
	return snap
}

func (r *Room) sendSnapshot(session string) {
	state, err := json.Marshal(r.snapshotFor(session))
	if err != nil {
		return
	}
	r.sendTo(session, protocol.EventGameStateUpdate, protocol.GameStateUpdateEvent{State: state})
}

func (r *Room) broadcastSnapshot() {
	for session := range r.players {
		r.sendSnapshot(session)
	}
}
