package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrDuplicateGame = errors.New("game id already registered")
	ErrUnknownGame   = errors.New("unknown game id")
)

// Instance is a running game-specific state machine bound to a channel.
type Instance interface {
	GameID() string
	Close()
}

// Definition describes one game type: how to sanity-check its state blob and
// how to build a live instance. Resolved once per room, keyed by gameId.
type Definition struct {
	GameID   string
	Validate func(json.RawMessage) error
	New      func(ch *Channel, selfID string, log *zap.Logger) Instance
}

type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(d Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[d.GameID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateGame, d.GameID)
	}
	r.defs[d.GameID] = d
	return nil
}

func (r *Registry) Resolve(gameID string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[gameID]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownGame, gameID)
	}
	return d, nil
}
