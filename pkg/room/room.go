// Package room tracks the client's view of one room: membership, readiness,
// host election, settings, and the lobby->active->finished lifecycle. All
// mutation happens in broadcast handlers dispatched in arrival order by the
// connection manager, so there is exactly one writer.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lukemadsen/sketchwire/pkg/conn"
	"github.com/lukemadsen/sketchwire/pkg/protocol"
)

var ErrNotHost = errors.New("only the host may do that")

const (
	defaultMinPlayers = 2
	defaultMaxPlayers = 8
	rejoinTimeout     = 5 * time.Second
)

// Identity is the local player, supplied by the session provider.
type Identity struct {
	ID   string
	Name string
}

// Connection is the slice of the connection manager the coordinator needs;
// *conn.Manager satisfies it.
type Connection interface {
	Request(ctx context.Context, msgType string, payload any) (json.RawMessage, error)
	Send(msgType string, payload any) error
	On(event string, fn func(json.RawMessage)) func()
	OnStatus(fn func(conn.Status)) func()
}

// Room is the coordinator's snapshot type. IsHost is derived from HostID vs
// the local identity and re-derived on every host_changed.
type Room struct {
	Code      string
	GameID    string
	HostID    string
	Status    protocol.RoomStatus
	Players   []protocol.Player
	Settings  map[string]any
	IsHost    bool
	Countdown int
}

type Coordinator struct {
	mgr Connection
	log *zap.Logger

	mu         sync.Mutex
	self       Identity
	room       *Room
	remembered string // room code to re-join after a reconnect

	unsubs []func()
}

func NewCoordinator(mgr Connection, self Identity, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{mgr: mgr, self: self, log: log}
	c.subscribe()
	return c
}

func (c *Coordinator) subscribe() {
	on := func(event string, fn func(json.RawMessage)) {
		c.unsubs = append(c.unsubs, c.mgr.On(event, fn))
	}
	on(protocol.EventPlayerJoined, c.onPlayerJoined)
	on(protocol.EventPlayerLeft, c.onPlayerLeft)
	on(protocol.EventPlayerReady, c.onPlayerReady)
	on(protocol.EventPlayerDisconnected, c.onConnection(false))
	on(protocol.EventPlayerReconnected, c.onConnection(true))
	on(protocol.EventHostChanged, c.onHostChanged)
	on(protocol.EventSettingsUpdated, c.onSettingsUpdated)
	on(protocol.EventRoomClosed, c.onRoomClosed)
	on(protocol.EventGameStarting, c.onGameStarting)
	on(protocol.EventGameStarted, c.onGameStarted)
	on(protocol.EventGameEnded, c.onGameEnded)

	// A fresh channel is not re-subscribed to the room, so whenever the
	// connection comes back while a code is remembered we re-issue join.
	// The server keys players by session id, which makes this idempotent.
	c.unsubs = append(c.unsubs, c.mgr.OnStatus(func(s conn.Status) {
		if s != conn.StatusConnected {
			return
		}
		c.mu.Lock()
		code := c.remembered
		c.mu.Unlock()
		if code == "" {
			return
		}
		go c.rejoin(code)
	}))
}

func (c *Coordinator) rejoin(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), rejoinTimeout)
	defer cancel()
	if !c.JoinRoom(ctx, code) {
		c.log.Warn("re-join after reconnect failed", zap.String("roomCode", code))
	}
}

// Close unsubscribes every room-scoped listener. The connection itself stays
// up; that belongs to whoever acquired it.
func (c *Coordinator) Close() {
	for _, u := range c.unsubs {
		u()
	}
	c.unsubs = nil
}

// CreateRoom asks the server for a new room. On failure it returns ("", false)
// rather than an error: rejection is an expected outcome, not an exception.
func (c *Coordinator) CreateRoom(ctx context.Context, gameID string, settings map[string]any) (string, bool) {
	data, err := c.mgr.Request(ctx, protocol.TypeRoomCreate, protocol.CreateRoomRequest{GameID: gameID, Settings: settings})
	if err != nil {
		c.log.Warn("create room failed", zap.Error(err))
		return "", false
	}
	var res protocol.CreateRoomResult
	if err := json.Unmarshal(data, &res); err != nil || !res.Success || res.Room == nil {
		return "", false
	}
	c.seedRoom(res.Room)
	return res.RoomCode, true
}

// JoinRoom joins by code. On failure nothing about the current room state
// changes.
func (c *Coordinator) JoinRoom(ctx context.Context, code string) bool {
	data, err := c.mgr.Request(ctx, protocol.TypeRoomJoin, protocol.JoinRoomRequest{RoomCode: code})
	if err != nil {
		c.log.Warn("join room failed", zap.String("roomCode", code), zap.Error(err))
		return false
	}
	var res protocol.JoinRoomResult
	if err := json.Unmarshal(data, &res); err != nil || !res.Success || res.Room == nil {
		return false
	}
	c.seedRoom(res.Room)
	return true
}

func (c *Coordinator) seedRoom(info *protocol.RoomInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = &Room{
		Code:     info.RoomCode,
		GameID:   info.GameID,
		HostID:   info.HostID,
		Status:   info.Status,
		Players:  append([]protocol.Player(nil), info.Players...),
		Settings: cloneSettings(info.Settings),
		IsHost:   info.HostID == c.self.ID,
	}
	c.remembered = info.RoomCode
}

// LeaveRoom notifies the server and tears down local room state. Idempotent.
func (c *Coordinator) LeaveRoom() {
	c.mu.Lock()
	inRoom := c.room != nil
	c.room = nil
	c.remembered = ""
	c.mu.Unlock()
	if inRoom {
		if err := c.mgr.Send(protocol.TypeRoomLeave, struct{}{}); err != nil {
			c.log.Debug("leave notification not delivered", zap.Error(err))
		}
	}
}

func (c *Coordinator) SetReady(ready bool) error {
	return c.mgr.Send(protocol.TypeRoomReady, protocol.ReadyRequest{IsReady: ready})
}

// UpdateSettings is host-only by convention; the server is the enforcement
// authority, we only advise.
func (c *Coordinator) UpdateSettings(partial map[string]any) error {
	if !c.isHost() {
		return ErrNotHost
	}
	return c.mgr.Send(protocol.TypeRoomSettings, protocol.UpdateSettingsRequest{Settings: partial})
}

func (c *Coordinator) StartGame() error {
	if !c.isHost() {
		return ErrNotHost
	}
	return c.mgr.Send(protocol.TypeGameStart, struct{}{})
}

func (c *Coordinator) isHost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room != nil && c.room.IsHost
}

// Snapshot returns a copy of the current room, or false when not in one.
func (c *Coordinator) Snapshot() (Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return Room{}, false
	}
	out := *c.room
	out.Players = append([]protocol.Player(nil), c.room.Players...)
	out.Settings = cloneSettings(c.room.Settings)
	return out, true
}

// CanStart reports whether the ready count sits within the configured
// [minPlayers, maxPlayers] window.
func (c *Coordinator) CanStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil || c.room.Status != protocol.RoomLobby {
		return false
	}
	ready := 0
	for _, p := range c.room.Players {
		if p.IsReady {
			ready++
		}
	}
	min := settingsInt(c.room.Settings, "minPlayers", defaultMinPlayers)
	max := settingsInt(c.room.Settings, "maxPlayers", defaultMaxPlayers)
	return ready >= min && ready <= max
}

// Broadcast handlers. Each is fail-soft: a malformed payload is logged and
// skipped, never propagated.

func (c *Coordinator) onPlayerJoined(data json.RawMessage) {
	var ev protocol.PlayerJoinedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warn("bad player_joined payload", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return
	}
	for _, p := range c.room.Players {
		if p.ID == ev.Player.ID {
			return // identity is stable by id; never duplicate
		}
	}
	c.room.Players = append(c.room.Players, ev.Player)
}

func (c *Coordinator) onPlayerLeft(data json.RawMessage) {
	var ev protocol.PlayerLeftEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warn("bad player_left payload", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return
	}
	players := c.room.Players[:0]
	for _, p := range c.room.Players {
		if p.ID != ev.PlayerID {
			players = append(players, p)
		}
	}
	c.room.Players = players
}

func (c *Coordinator) onPlayerReady(data json.RawMessage) {
	var ev protocol.PlayerReadyEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warn("bad player_ready payload", zap.Error(err))
		return
	}
	c.mutatePlayer(ev.PlayerID, func(p *protocol.Player) { p.IsReady = ev.IsReady })
}

func (c *Coordinator) onConnection(connected bool) func(json.RawMessage) {
	return func(data json.RawMessage) {
		var ev protocol.PlayerConnectionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Warn("bad connection payload", zap.Error(err))
			return
		}
		c.mutatePlayer(ev.PlayerID, func(p *protocol.Player) { p.IsConnected = connected })
	}
}

func (c *Coordinator) mutatePlayer(id string, fn func(*protocol.Player)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return
	}
	for i := range c.room.Players {
		if c.room.Players[i].ID == id {
			fn(&c.room.Players[i])
			return
		}
	}
}

func (c *Coordinator) onHostChanged(data json.RawMessage) {
	var ev protocol.HostChangedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warn("bad host_changed payload", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return
	}
	c.room.HostID = ev.HostID
	c.room.IsHost = ev.HostID == c.self.ID
}

func (c *Coordinator) onSettingsUpdated(data json.RawMessage) {
	var ev protocol.SettingsUpdatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warn("bad settings_updated payload", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return
	}
	c.room.Settings = cloneSettings(ev.Settings)
}

func (c *Coordinator) onRoomClosed(data json.RawMessage) {
	var ev protocol.RoomClosedEvent
	_ = json.Unmarshal(data, &ev)
	c.mu.Lock()
	c.room = nil
	c.remembered = ""
	c.mu.Unlock()
	c.log.Info("room closed", zap.String("reason", ev.Reason))
}

func (c *Coordinator) onGameStarting(data json.RawMessage) {
	var ev protocol.GameStartingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warn("bad game_starting payload", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return
	}
	c.room.Status = protocol.RoomStarting
	c.room.Countdown = ev.Countdown
}

func (c *Coordinator) onGameStarted(json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return
	}
	c.room.Status = protocol.RoomActive
	c.room.Countdown = 0
}

func (c *Coordinator) onGameEnded(data json.RawMessage) {
	var ev protocol.GameEndedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warn("bad game_ended payload", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return
	}
	c.room.Status = protocol.RoomFinished
	for i := range c.room.Players {
		if score, ok := ev.FinalScores[c.room.Players[i].ID]; ok {
			c.room.Players[i].Score = score
		}
	}
}

func cloneSettings(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// settingsInt reads a numeric setting; JSON numbers decode as float64.
func settingsInt(settings map[string]any, key string, def int) int {
	switch v := settings[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
