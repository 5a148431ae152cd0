package devserver

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/lukemadsen/sketchwire/pkg/protocol"
	"github.com/lukemadsen/sketchwire/pkg/skribbl"
)

// client is one websocket connection's mailbox. A session that reconnects
// gets a fresh client but keeps its player entry.
type client struct {
	session string
	name    string
	outbox  chan protocol.ServerMessage
}

type roomMsg interface{ isRoomMsg() }

type joinReply struct {
	OK      bool
	ErrCode string
	Info    protocol.RoomInfo
}

type joinRoom struct {
	Client *client
	Reply  chan joinReply
}

type leaveRoom struct{ Session string }

// clientGone is a transport drop without an explicit leave: the player entry
// survives for reconnection.
type clientGone struct{ Session string }

type clientCmd struct {
	Session string
	Type    string
	Data    json.RawMessage
}

// tickMsg forces one timer tick so tests can drive phases without the wall
// clock.
type tickMsg struct{}

// getView reflects internal state without data races; test-only.
type getView struct{ Reply chan RoomView }

type shutdownRoom struct{}

func (joinRoom) isRoomMsg()     {}
func (tickMsg) isRoomMsg()      {}
func (leaveRoom) isRoomMsg()    {}
func (clientGone) isRoomMsg()   {}
func (clientCmd) isRoomMsg()    {}
func (getView) isRoomMsg()      {}
func (shutdownRoom) isRoomMsg() {}

type RoomView struct {
	Status     protocol.RoomStatus
	HostID     string
	Players    []protocol.Player
	NumClients int
	Phase      skribbl.Phase
	Scores     map[string]int
	Word       string
}

type playerState struct {
	info   protocol.Player
	outbox chan protocol.ServerMessage
}

// Room is a single-goroutine actor: every mutation happens in loop(), so
// join sequences, guesses, and timer fires are serialized by construction.
type Room struct {
	code       string
	gameID     string
	hub        *Hub
	log        *zap.Logger
	classifier Classifier

	inbox    chan roomMsg
	status   protocol.RoomStatus
	hostID   string
	players  map[string]*playerState
	order    []string
	settings map[string]any

	countdown int
	game      *gameState

	ctx    context.Context
	cancel context.CancelFunc
}

func defaultSettings() map[string]any {
	return map[string]any{
		"minPlayers":  2,
		"maxPlayers":  8,
		"rounds":      3,
		"drawTime":    60,
		"pickTime":    10,
		"wordChoices": 3,
	}
}

func newRoom(parent context.Context, hub *Hub, code, gameID string, settings map[string]any, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	merged := defaultSettings()
	for k, v := range settings {
		merged[k] = v
	}
	r := &Room{
		code:       code,
		gameID:     gameID,
		hub:        hub,
		log:        log.With(zap.String("room", code)),
		classifier: LevenshteinClassifier{},
		inbox:      make(chan roomMsg, 64),
		status:     protocol.RoomLobby,
		players:    make(map[string]*playerState),
		settings:   merged,
		ctx:        ctx,
		cancel:     cancel,
	}
	r.clampSettings()
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- roomMsg { return r.inbox }

func (r *Room) loop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			r.onTick()

		case m := <-r.inbox:
			switch msg := m.(type) {
			case joinRoom:
				msg.Reply <- r.handleJoin(msg.Client)
			case leaveRoom:
				r.handleLeave(msg.Session)
			case clientGone:
				r.handleGone(msg.Session)
			case clientCmd:
				r.handleCmd(msg)
			case tickMsg:
				r.onTick()
			case getView:
				msg.Reply <- r.view()
			case shutdownRoom:
				r.cancel()
				return
			}
		}
	}
}

// handleJoin is idempotent per session: a second join from a known session
// replaces its mailbox and never duplicates the player entry.
func (r *Room) handleJoin(c *client) joinReply {
	if p, ok := r.players[c.session]; ok {
		wasConnected := p.info.IsConnected
		p.outbox = c.outbox
		p.info.IsConnected = true
		if !wasConnected {
			r.broadcastExcept(c.session, protocol.EventPlayerReconnected, protocol.PlayerConnectionEvent{PlayerID: c.session})
		}
		if r.game != nil {
			// Resync the rejoiner against the authoritative state.
			r.sendSnapshot(c.session)
		}
		return joinReply{OK: true, Info: r.roomInfo()}
	}

	if r.status != protocol.RoomLobby {
		return joinReply{OK: false, ErrCode: protocol.ErrCodeAlreadyStarted}
	}
	if len(r.players) >= r.settingInt("maxPlayers") {
		return joinReply{OK: false, ErrCode: protocol.ErrCodeRoomFull}
	}

	p := &playerState{
		info:   protocol.Player{ID: c.session, Name: c.name, IsConnected: true},
		outbox: c.outbox,
	}
	r.players[c.session] = p
	r.order = append(r.order, c.session)
	if r.hostID == "" {
		r.hostID = c.session
	}
	r.broadcastExcept(c.session, protocol.EventPlayerJoined, protocol.PlayerJoinedEvent{
		Player:      p.info,
		PlayerCount: len(r.players),
		CanStart:    r.canStart(),
	})
	return joinReply{OK: true, Info: r.roomInfo()}
}

func (r *Room) handleLeave(session string) {
	if _, ok := r.players[session]; !ok {
		return
	}
	delete(r.players, session)
	order := r.order[:0]
	for _, s := range r.order {
		if s != session {
			order = append(order, s)
		}
	}
	r.order = order

	r.broadcast(protocol.EventPlayerLeft, protocol.PlayerLeftEvent{
		PlayerID:    session,
		PlayerCount: len(r.players),
		CanStart:    r.canStart(),
	})

	if len(r.players) == 0 {
		r.status = protocol.RoomAbandoned
		r.hub.Inbox() <- removeRoom{Code: r.code}
		r.cancel()
		return
	}
	r.reassignHost(session)

	if r.game != nil && r.game.drawerID() == session {
		r.endTurn("the drawer left")
	}
}

func (r *Room) handleGone(session string) {
	p, ok := r.players[session]
	if !ok {
		return
	}
	p.info.IsConnected = false
	r.broadcastExcept(session, protocol.EventPlayerDisconnected, protocol.PlayerConnectionEvent{PlayerID: session})
	r.reassignHost(session)
}

// reassignHost elects the earliest-joined connected player when the host is
// gone.
func (r *Room) reassignHost(departed string) {
	if r.hostID != departed {
		return
	}
	if p, ok := r.players[r.hostID]; ok && p.info.IsConnected {
		return
	}
	for _, s := range r.order {
		if p, ok := r.players[s]; ok && p.info.IsConnected {
			r.hostID = s
			r.broadcast(protocol.EventHostChanged, protocol.HostChangedEvent{HostID: s})
			return
		}
	}
}

func (r *Room) handleCmd(msg clientCmd) {
	switch msg.Type {
	case protocol.TypeRoomReady:
		var req protocol.ReadyRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			r.sendError(msg.Session, protocol.ErrCodeBadRequest, "bad ready payload")
			return
		}
		p, ok := r.players[msg.Session]
		if !ok {
			return
		}
		p.info.IsReady = req.IsReady
		r.broadcast(protocol.EventPlayerReady, protocol.PlayerReadyEvent{
			PlayerID: msg.Session,
			IsReady:  req.IsReady,
			CanStart: r.canStart(),
		})

	case protocol.TypeRoomSettings:
		if msg.Session != r.hostID {
			r.sendError(msg.Session, protocol.ErrCodeNotHost, "only the host may change settings")
			return
		}
		var req protocol.UpdateSettingsRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			r.sendError(msg.Session, protocol.ErrCodeBadRequest, "bad settings payload")
			return
		}
		for k, v := range req.Settings {
			r.settings[k] = v
		}
		r.clampSettings()
		r.broadcast(protocol.EventSettingsUpdated, protocol.SettingsUpdatedEvent{Settings: r.settings})

	case protocol.TypeGameStart:
		if msg.Session != r.hostID {
			r.sendError(msg.Session, protocol.ErrCodeNotHost, "only the host may start")
			return
		}
		if r.status != protocol.RoomLobby || !r.canStart() {
			r.sendError(msg.Session, protocol.ErrCodeBadRequest, "room is not ready to start")
			return
		}
		r.status = protocol.RoomStarting
		r.countdown = startCountdownSec
		r.broadcast(protocol.EventGameStarting, protocol.GameStartingEvent{Countdown: r.countdown})

	case protocol.TypeGameAction:
		var act protocol.GameAction
		if err := json.Unmarshal(msg.Data, &act); err != nil {
			r.sendError(msg.Session, protocol.ErrCodeBadRequest, "bad action payload")
			return
		}
		r.handleAction(msg.Session, act)

	default:
		r.sendError(msg.Session, protocol.ErrCodeBadRequest, "unknown message type")
	}
}

func (r *Room) onTick() {
	switch r.status {
	case protocol.RoomStarting:
		r.countdown--
		if r.countdown > 0 {
			r.broadcast(protocol.EventGameStarting, protocol.GameStartingEvent{Countdown: r.countdown})
			return
		}
		r.startGame()
	case protocol.RoomActive:
		r.gameTick()
	}
}

// canStart mirrors the contract the client derives locally: the ready count
// must sit within [minPlayers, maxPlayers].
func (r *Room) canStart() bool {
	ready := 0
	for _, p := range r.players {
		if p.info.IsReady {
			ready++
		}
	}
	return ready >= r.settingInt("minPlayers") && ready <= r.settingInt("maxPlayers")
}

func (r *Room) roomInfo() protocol.RoomInfo {
	players := make([]protocol.Player, 0, len(r.order))
	for _, s := range r.order {
		if p, ok := r.players[s]; ok {
			players = append(players, p.info)
		}
	}
	settings := make(map[string]any, len(r.settings))
	for k, v := range r.settings {
		settings[k] = v
	}
	return protocol.RoomInfo{
		RoomCode: r.code,
		GameID:   r.gameID,
		HostID:   r.hostID,
		Status:   r.status,
		Players:  players,
		Settings: settings,
	}
}

func (r *Room) view() RoomView {
	v := RoomView{
		Status:  r.status,
		HostID:  r.hostID,
		Players: r.roomInfo().Players,
	}
	for _, p := range r.players {
		if p.info.IsConnected {
			v.NumClients++
		}
	}
	if r.game != nil {
		v.Phase = r.game.phase
		v.Word = r.game.word
		v.Scores = make(map[string]int, len(r.game.scores))
		for id, s := range r.game.scores {
			v.Scores[id] = s
		}
	}
	return v
}

// clampSettings keeps the game-relevant values in playable ranges. The wire
// accepts an arbitrary settings map, so every merge path runs through here.
func (r *Room) clampSettings() {
	for key, floor := range map[string]int{
		"minPlayers":  1,
		"maxPlayers":  1,
		"rounds":      1,
		"drawTime":    1,
		"pickTime":    1,
		"wordChoices": 1,
	} {
		if r.settingInt(key) < floor {
			r.settings[key] = floor
		}
	}
}

func (r *Room) settingInt(key string) int {
	switch v := r.settings[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Delivery helpers. A full mailbox means a stalled connection; the message
// is dropped and the write path's disconnect handling catches up.

func (r *Room) sendTo(session string, msgType string, payload any) {
	p, ok := r.players[session]
	if !ok || !p.info.IsConnected {
		return
	}
	msg, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		r.log.Error("marshal broadcast", zap.Error(err))
		return
	}
	select {
	case p.outbox <- msg:
	default:
		r.log.Warn("dropping message for slow client", zap.String("session", session), zap.String("type", msgType))
	}
}

func (r *Room) broadcast(msgType string, payload any) {
	for session := range r.players {
		r.sendTo(session, msgType, payload)
	}
}

func (r *Room) broadcastExcept(except string, msgType string, payload any) {
	for session := range r.players {
		if session != except {
			r.sendTo(session, msgType, payload)
		}
	}
}

func (r *Room) sendError(session, code, message string) {
	r.sendTo(session, protocol.EventError, protocol.ErrorEvent{Code: code, Message: message})
}
