package protocol

// Client -> server message types.
const (
	TypeRoomCreate   = "room:create"
	TypeRoomJoin     = "room:join"
	TypeRoomLeave    = "room:leave"
	TypeRoomReady    = "room:ready"
	TypeRoomSettings = "room:update_settings"
	TypeGameStart    = "game:start"
	TypeGameAction   = "game:action"
)

// Server -> client message types. TypeAck answers a seq-carrying request;
// everything else is a broadcast.
const (
	TypeAck = "ack"

	EventPlayerJoined       = "room:player_joined"
	EventPlayerLeft         = "room:player_left"
	EventPlayerReady        = "room:player_ready"
	EventPlayerDisconnected = "room:player_disconnected"
	EventPlayerReconnected  = "room:player_reconnected"
	EventHostChanged        = "room:host_changed"
	EventSettingsUpdated    = "room:settings_updated"
	EventRoomClosed         = "room:closed"

	EventGameStarting    = "game:starting"
	EventGameStarted     = "game:started"
	EventGameStateUpdate = "game:state_update"
	EventGameEnded       = "game:ended"

	EventError = "error"
)
