package devserver

import (
	"context"
	"crypto/rand"
	"math/big"

	"go.uber.org/zap"
)

type hubMsg interface{ isHubMsg() }

type createRoom struct {
	GameID   string
	Settings map[string]any
	Reply    chan *Room
}

type getRoom struct {
	Code  string
	Reply chan *Room
}

type removeRoom struct{ Code string }

type shutdownHub struct{}

func (createRoom) isHubMsg()  {}
func (getRoom) isHubMsg()     {}
func (removeRoom) isHubMsg()  {}
func (shutdownHub) isHubMsg() {}

// Hub is the actor that owns the room registry. Code generation lives here
// so collision checks and registration are one serialized step.
type Hub struct {
	inbox  chan hubMsg
	rooms  map[string]*Room
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan hubMsg, 64),
		rooms:  make(map[string]*Room),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- hubMsg { return h.inbox }

// CreateRoom and GetRoom are the request/reply conveniences the ws handler
// uses.

func (h *Hub) CreateRoom(gameID string, settings map[string]any) *Room {
	reply := make(chan *Room, 1)
	h.inbox <- createRoom{GameID: gameID, Settings: settings, Reply: reply}
	return <-reply
}

func (h *Hub) GetRoom(code string) *Room {
	reply := make(chan *Room, 1)
	h.inbox <- getRoom{Code: code, Reply: reply}
	return <-reply
}

func (h *Hub) Shutdown() {
	h.inbox <- shutdownHub{}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case createRoom:
				code := h.freshCode()
				if code == "" {
					msg.Reply <- nil
					break
				}
				room := newRoom(h.ctx, h, code, msg.GameID, msg.Settings, h.log)
				h.rooms[code] = room
				h.log.Info("room created", zap.String("room", code), zap.String("gameId", msg.GameID))
				msg.Reply <- room

			case getRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case removeRoom:
				delete(h.rooms, msg.Code)
				h.log.Info("room removed", zap.String("room", msg.Code))

			case shutdownHub:
				for _, room := range h.rooms {
					room.Inbox() <- shutdownRoom{}
				}
				clear(h.rooms)
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) freshCode() string {
	for i := 0; i < 16; i++ {
		code, err := generateCode()
		if err != nil {
			return ""
		}
		if _, taken := h.rooms[code]; !taken {
			return code
		}
	}
	return ""
}

func generateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
