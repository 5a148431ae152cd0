package protocol

import "encoding/json"

type RoomStatus string

const (
	RoomLobby     RoomStatus = "lobby"
	RoomStarting  RoomStatus = "starting"
	RoomActive    RoomStatus = "active"
	RoomFinished  RoomStatus = "finished"
	RoomAbandoned RoomStatus = "abandoned"
)

type Player struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	IsReady     bool   `json:"isReady"`
	IsConnected bool   `json:"isConnected"`
	Score       int    `json:"score"`
}

// RoomInfo is the server's full view of a room, returned on create/join and
// carried by broadcasts that need a resync.
type RoomInfo struct {
	RoomCode string         `json:"roomCode"`
	GameID   string         `json:"gameId"`
	HostID   string         `json:"hostId"`
	Status   RoomStatus     `json:"status"`
	Players  []Player       `json:"players"`
	Settings map[string]any `json:"settings"`
}

// Requests.

type CreateRoomRequest struct {
	GameID   string         `json:"gameId"`
	Settings map[string]any `json:"settings,omitempty"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
}

type ReadyRequest struct {
	IsReady bool `json:"isReady"`
}

type UpdateSettingsRequest struct {
	Settings map[string]any `json:"settings"`
}

// GameAction is the generic action envelope: the transport carries it without
// interpreting Type or Payload.
type GameAction struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Acks.

type CreateRoomResult struct {
	Success  bool      `json:"success"`
	RoomCode string    `json:"roomCode,omitempty"`
	Room     *RoomInfo `json:"room,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type JoinRoomResult struct {
	Success bool      `json:"success"`
	Room    *RoomInfo `json:"room,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Broadcasts.

type PlayerJoinedEvent struct {
	Player      Player `json:"player"`
	PlayerCount int    `json:"playerCount"`
	CanStart    bool   `json:"canStart"`
}

type PlayerLeftEvent struct {
	PlayerID    string `json:"playerId"`
	PlayerCount int    `json:"playerCount"`
	CanStart    bool   `json:"canStart"`
}

type PlayerReadyEvent struct {
	PlayerID string `json:"playerId"`
	IsReady  bool   `json:"isReady"`
	CanStart bool   `json:"canStart"`
}

// PlayerConnectionEvent backs both player_disconnected and player_reconnected.
type PlayerConnectionEvent struct {
	PlayerID string `json:"playerId"`
}

type HostChangedEvent struct {
	HostID string `json:"hostId"`
}

type SettingsUpdatedEvent struct {
	Settings map[string]any `json:"settings"`
}

type RoomClosedEvent struct {
	Reason string `json:"reason,omitempty"`
}

type GameStartingEvent struct {
	Countdown int `json:"countdown"`
}

// GameStartedEvent and GameStateUpdateEvent carry the opaque per-game state
// blob; the game registry resolves who decodes it.
type GameStartedEvent struct {
	GameState json.RawMessage `json:"gameState"`
}

type GameStateUpdateEvent struct {
	State json.RawMessage `json:"state"`
}

type PlayerStats struct {
	PlayerID       string `json:"playerId"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	CorrectGuesses int    `json:"correctGuesses"`
	BestGuessMS    int    `json:"bestGuessMs,omitempty"`
}

type GameEndedEvent struct {
	WinnerID    string         `json:"winnerId"`
	FinalScores map[string]int `json:"finalScores"`
	Stats       []PlayerStats  `json:"stats"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes a client can act on.
const (
	ErrCodeRoomNotFound   = "room_not_found"
	ErrCodeRoomFull       = "room_full"
	ErrCodeAlreadyStarted = "already_started"
	ErrCodeNotHost        = "not_host"
	ErrCodeBadRequest     = "bad_request"
)
