package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/lukemadsen/sketchwire/pkg/protocol"
)

const writeTimeout = 3 * time.Second

// Handler upgrades the connection and runs the per-client protocol loop:
// create/join go through the hub, everything else is forwarded to the
// client's current room actor.
func Handler(h *Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := r.URL.Query().Get("session")
		if session == "" {
			http.Error(w, "missing session", http.StatusBadRequest)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "anonymous"
		}

		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // dev server; not exposed publicly
		})
		if err != nil {
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "bye")

		log.Debug("client connected", zap.String("session", session), zap.String("name", name))
		c := &client{session: session, name: name, outbox: make(chan protocol.ServerMessage, 32)}

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case msg := <-c.outbox:
					payload, err := json.Marshal(msg)
					if err != nil {
						continue
					}
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					_ = ws.Write(ctx, websocket.MessageText, payload)
					cancel()
				}
			}
		}()

		var cur *Room
		defer func() {
			if cur != nil {
				cur.Inbox() <- clientGone{Session: session}
			}
		}()

		for {
			_, data, err := ws.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm protocol.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				enqueue(c, errorMessage(protocol.ErrCodeBadRequest, "bad json"))
				continue
			}

			switch cm.Type {
			case protocol.TypeRoomCreate:
				var req protocol.CreateRoomRequest
				if err := json.Unmarshal(cm.Data, &req); err != nil || req.GameID == "" {
					ack(c, cm.Seq, protocol.CreateRoomResult{Success: false, Error: "bad create payload"})
					continue
				}
				room := h.CreateRoom(req.GameID, req.Settings)
				if room == nil {
					ack(c, cm.Seq, protocol.CreateRoomResult{Success: false, Error: "could not allocate room"})
					continue
				}
				res := joinViaActor(room, c)
				if !res.OK {
					ack(c, cm.Seq, protocol.CreateRoomResult{Success: false, Error: res.ErrCode})
					continue
				}
				cur = room
				ack(c, cm.Seq, protocol.CreateRoomResult{Success: true, RoomCode: res.Info.RoomCode, Room: &res.Info})

			case protocol.TypeRoomJoin:
				var req protocol.JoinRoomRequest
				if err := json.Unmarshal(cm.Data, &req); err != nil {
					ack(c, cm.Seq, protocol.JoinRoomResult{Success: false, Error: "bad join payload"})
					continue
				}
				room := h.GetRoom(req.RoomCode)
				if room == nil {
					ack(c, cm.Seq, protocol.JoinRoomResult{Success: false, Error: protocol.ErrCodeRoomNotFound})
					continue
				}
				res := joinViaActor(room, c)
				if !res.OK {
					ack(c, cm.Seq, protocol.JoinRoomResult{Success: false, Error: res.ErrCode})
					continue
				}
				cur = room
				ack(c, cm.Seq, protocol.JoinRoomResult{Success: true, Room: &res.Info})

			case protocol.TypeRoomLeave:
				if cur != nil {
					cur.Inbox() <- leaveRoom{Session: session}
					cur = nil
				}

			default:
				if cur == nil {
					enqueue(c, errorMessage(protocol.ErrCodeBadRequest, "not in a room"))
					continue
				}
				cur.Inbox() <- clientCmd{Session: session, Type: cm.Type, Data: cm.Data}
			}
		}
	}
}

func joinViaActor(room *Room, c *client) joinReply {
	reply := make(chan joinReply, 1)
	room.Inbox() <- joinRoom{Client: c, Reply: reply}
	return <-reply
}

// ack and broadcasts share the outbox so frames never interleave.
func ack(c *client, seq int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	enqueue(c, protocol.ServerMessage{Type: protocol.TypeAck, Seq: seq, Data: data})
}

func errorMessage(code, message string) protocol.ServerMessage {
	msg, _ := protocol.NewServerMessage(protocol.EventError, protocol.ErrorEvent{Code: code, Message: message})
	return msg
}

func enqueue(c *client, msg protocol.ServerMessage) {
	select {
	case c.outbox <- msg:
	default:
	}
}
