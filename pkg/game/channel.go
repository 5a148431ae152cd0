// Package game is the thin generic layer between the connection and a
// concrete game implementation: an action envelope going up, opaque
// authoritative state coming down, and a registry that maps gameId to the
// code that understands the blob.
package game

import (
	"encoding/json"

	"github.com/lukemadsen/sketchwire/pkg/protocol"
)

// Transport is the slice of the connection manager this layer needs;
// *conn.Manager satisfies it.
type Transport interface {
	Send(msgType string, payload any) error
	On(event string, fn func(json.RawMessage)) func()
}

// Channel wraps fire-and-forget game actions and named broadcast
// subscriptions. It knows nothing about action semantics; interpretation
// belongs to the registered game.
type Channel struct {
	mgr Transport
}

func NewChannel(mgr Transport) *Channel {
	return &Channel{mgr: mgr}
}

// SendAction wraps the payload in the generic game:action envelope.
// Delivery is in order per room but not exactly-once to the UI; duplicate
// suppression is the state machine's job.
func (c *Channel) SendAction(actionType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.mgr.Send(protocol.TypeGameAction, protocol.GameAction{Type: actionType, Payload: raw})
}

// OnGameEvent subscribes to a named broadcast and returns an unsubscribe
// func. Multiple independent subscribers may coexist.
func (c *Channel) OnGameEvent(event string, fn func(json.RawMessage)) func() {
	return c.mgr.On(event, fn)
}

// OnState subscribes to the authoritative state blob, both the initial
// game:started payload and every later game:state_update.
func (c *Channel) OnState(fn func(json.RawMessage)) func() {
	u1 := c.mgr.On(protocol.EventGameStarted, func(data json.RawMessage) {
		var ev protocol.GameStartedEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev.GameState)
		}
	})
	u2 := c.mgr.On(protocol.EventGameStateUpdate, func(data json.RawMessage) {
		var ev protocol.GameStateUpdateEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev.State)
		}
	})
	return func() {
		u1()
		u2()
	}
}
