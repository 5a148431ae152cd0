// Package conn owns the single persistent websocket channel a client process
// keeps to the game server. Higher layers (room coordinator, game channels)
// share one Manager; none of them dial their own connection, because a second
// channel would double-join rooms.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/lukemadsen/sketchwire/pkg/protocol"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

var (
	ErrNotConnected      = errors.New("not connected")
	ErrRequestTimeout    = errors.New("request timed out")
	ErrConnectExhausted  = errors.New("reconnect attempts exhausted")
	ErrAlreadyConnecting = errors.New("connect already in progress")
)

const (
	defaultMaxRetries  = 5
	defaultBaseBackoff = 250 * time.Millisecond
	defaultMaxBackoff  = 4 * time.Second
	writeTimeout       = 3 * time.Second
)

type Config struct {
	// URL of the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL string
	// SessionID is the stable identity for this client process. The server
	// keys players by it, which is what makes re-join idempotent.
	SessionID string
	Name      string

	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxRetries == 0 {
		out.MaxRetries = defaultMaxRetries
	}
	if out.BaseBackoff == 0 {
		out.BaseBackoff = defaultBaseBackoff
	}
	if out.MaxBackoff == 0 {
		out.MaxBackoff = defaultMaxBackoff
	}
	return out
}

// Manager is the process-wide connection owner. Consumers call Acquire when a
// view enters the game area and Release when it leaves; the channel is torn
// down only when the last consumer releases it, so per-room navigation never
// drops the socket.
type Manager struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	ws         *websocket.Conn
	status     Status
	refs       int
	gen        int // connection generation; stale read loops bail out
	userClosed bool

	seq     int
	pending map[int]chan protocol.ServerMessage

	nextSub    int
	handlers   map[string]map[int]func(json.RawMessage)
	statusSubs map[int]func(Status)

	writeMu sync.Mutex
}

func NewManager(cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cfg:        cfg.withDefaults(),
		log:        log,
		status:     StatusDisconnected,
		pending:    make(map[int]chan protocol.ServerMessage),
		handlers:   make(map[string]map[int]func(json.RawMessage)),
		statusSubs: make(map[int]func(Status)),
	}
}

func (m *Manager) SessionID() string { return m.cfg.SessionID }

// Acquire registers a consumer. The first consumer does not implicitly dial;
// call Connect for that.
func (m *Manager) Acquire() {
	m.mu.Lock()
	m.refs++
	m.mu.Unlock()
}

// Release drops a consumer reference; the last release disconnects.
func (m *Manager) Release() {
	m.mu.Lock()
	if m.refs > 0 {
		m.refs--
	}
	last := m.refs == 0
	m.mu.Unlock()
	if last {
		m.Disconnect()
	}
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect idempotently ensures one live channel exists. Calling it while
// connected is a no-op; reconnecting reuses the same session identity, so the
// server treats it as the same logical client.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.status {
	case StatusConnected:
		m.mu.Unlock()
		return nil
	case StatusConnecting:
		m.mu.Unlock()
		return ErrAlreadyConnecting
	}
	m.userClosed = false
	m.mu.Unlock()

	return m.dialLoop(ctx)
}

// dialLoop attempts to establish the channel with capped exponential backoff.
// Exhaustion is terminal: status becomes StatusError and room actions will
// fail until Connect is called again.
func (m *Manager) dialLoop(ctx context.Context) error {
	if m.closedByUser() {
		return ErrNotConnected
	}
	m.setStatus(StatusConnecting)

	backoff := m.cfg.BaseBackoff
	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				m.setStatus(StatusError)
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > m.cfg.MaxBackoff {
				backoff = m.cfg.MaxBackoff
			}
		}

		// An explicit Disconnect during the loop is final: a redial that
		// lost the race must not resurrect the channel.
		if m.closedByUser() {
			m.setStatus(StatusDisconnected)
			return ErrNotConnected
		}

		ws, err := m.dial(ctx)
		if err != nil {
			lastErr = err
			m.log.Warn("dial failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		m.mu.Lock()
		if m.userClosed {
			m.mu.Unlock()
			_ = ws.Close(websocket.StatusNormalClosure, "bye")
			m.setStatus(StatusDisconnected)
			return ErrNotConnected
		}
		m.ws = ws
		m.gen++
		gen := m.gen
		m.mu.Unlock()

		m.setStatus(StatusConnected)
		go m.readLoop(ws, gen)
		return nil
	}

	m.setStatus(StatusError)
	if lastErr == nil {
		lastErr = ErrConnectExhausted
	}
	return lastErr
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("session", m.cfg.SessionID)
	q.Set("name", m.cfg.Name)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(1 << 20)
	return ws, nil
}

// Disconnect tears the channel down for good. Called only when leaving the
// entire game area; navigation between views must use Release instead.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.userClosed = true
	ws := m.ws
	m.ws = nil
	for seq, ch := range m.pending {
		close(ch)
		delete(m.pending, seq)
	}
	m.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "bye")
	}
	m.setStatus(StatusDisconnected)
}

// readLoop is the single dispatch point: broadcasts for a room are handled
// synchronously in arrival order, so reducer handlers never race.
func (m *Manager) readLoop(ws *websocket.Conn, gen int) {
	for {
		_, data, err := ws.Read(context.Background())
		if err != nil {
			m.mu.Lock()
			stale := gen != m.gen || m.userClosed
			if !stale {
				// Requests in flight can never be acked now; fail them
				// instead of letting callers block to their deadline.
				for seq, ch := range m.pending {
					close(ch)
					delete(m.pending, seq)
				}
			}
			m.mu.Unlock()
			if stale {
				return
			}
			m.log.Warn("connection dropped", zap.Error(err))
			go m.redial()
			return
		}

		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.log.Warn("malformed server message, skipping", zap.Error(err))
			continue
		}
		m.dispatch(msg)
	}
}

func (m *Manager) redial() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := m.dialLoop(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
		m.log.Error("reconnect exhausted", zap.Error(err))
	}
}

func (m *Manager) dispatch(msg protocol.ServerMessage) {
	if msg.Type == protocol.TypeAck {
		m.mu.Lock()
		ch, ok := m.pending[msg.Seq]
		if ok {
			delete(m.pending, msg.Seq)
		}
		m.mu.Unlock()
		if ok {
			ch <- msg
		}
		return
	}

	if msg.Type == protocol.EventError {
		var e protocol.ErrorEvent
		if err := json.Unmarshal(msg.Data, &e); err == nil {
			m.log.Warn("server error event", zap.String("code", e.Code), zap.String("message", e.Message))
		}
	}

	m.mu.Lock()
	subs := make([]func(json.RawMessage), 0, len(m.handlers[msg.Type]))
	for _, fn := range m.handlers[msg.Type] {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(msg.Data)
	}
}

// Send is the fire-and-forget path used for notifications and game actions.
func (m *Manager) Send(msgType string, payload any) error {
	msg, err := protocol.NewClientMessage(msgType, 0, payload)
	if err != nil {
		return err
	}
	return m.write(msg)
}

// Request sends a seq-tagged message and blocks for the matching ack.
func (m *Manager) Request(ctx context.Context, msgType string, payload any) (json.RawMessage, error) {
	m.mu.Lock()
	if m.status != StatusConnected {
		m.mu.Unlock()
		return nil, ErrNotConnected
	}
	m.seq++
	seq := m.seq
	ch := make(chan protocol.ServerMessage, 1)
	m.pending[seq] = ch
	m.mu.Unlock()

	msg, err := protocol.NewClientMessage(msgType, seq, payload)
	if err != nil {
		m.dropPending(seq)
		return nil, err
	}
	if err := m.write(msg); err != nil {
		m.dropPending(seq)
		return nil, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return reply.Data, nil
	case <-ctx.Done():
		m.dropPending(seq)
		return nil, ctx.Err()
	}
}

func (m *Manager) closedByUser() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userClosed
}

func (m *Manager) dropPending(seq int) {
	m.mu.Lock()
	delete(m.pending, seq)
	m.mu.Unlock()
}

func (m *Manager) write(msg protocol.ClientMessage) error {
	m.mu.Lock()
	ws := m.ws
	m.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

// On subscribes to a named broadcast event and returns an unsubscribe func.
// Multiple independent subscribers may coexist.
func (m *Manager) On(event string, fn func(json.RawMessage)) func() {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	if m.handlers[event] == nil {
		m.handlers[event] = make(map[int]func(json.RawMessage))
	}
	m.handlers[event][id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.handlers[event], id)
		m.mu.Unlock()
	}
}

// OnStatus subscribes to connection status transitions.
func (m *Manager) OnStatus(fn func(Status)) func() {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.statusSubs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.statusSubs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	subs := make([]func(Status), 0, len(m.statusSubs))
	for _, fn := range m.statusSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
