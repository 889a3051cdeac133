package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State is the connection state of a Watcher.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WatcherHandlers are the callbacks of a Watcher. All are optional.
type WatcherHandlers struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnEvent      func(Event)
	OnError      func(err error)
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// URL of the hub, e.g. ws://localhost:8080/ws.
	URL string
	// Events narrows the subscription; empty keeps the hub's defaults.
	Events []string

	ReconnectEnabled     bool
	ReconnectMinDelay    time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int // 0 = unlimited

	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultWatcherConfig returns a config with reconnects enabled.
func DefaultWatcherConfig(url string) WatcherConfig {
	return WatcherConfig{
		URL:               url,
		ReconnectEnabled:  true,
		ReconnectMinDelay: 1 * time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Watcher follows a hub over WebSocket, restoring its subscription after
// every reconnect.
type Watcher struct {
	config   WatcherConfig
	handlers WatcherHandlers

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex
	state   int32 // atomic State

	closeCh   chan struct{}
	closeOnce sync.Once

	attempts int
	received int64 // atomic
}

// NewWatcher creates a watcher. Call Connect to start it.
func NewWatcher(config WatcherConfig, handlers WatcherHandlers) *Watcher {
	return &Watcher{
		config:   config,
		handlers: handlers,
		closeCh:  make(chan struct{}),
	}
}

// Connect dials the hub and starts reading.
func (w *Watcher) Connect(ctx context.Context) error {
	if w.State() == StateClosed {
		return errors.New("watcher is closed")
	}
	w.setState(StateConnecting)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.config.URL, nil)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("dial %s: %w", w.config.URL, err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()

	if len(w.config.Events) > 0 {
		if err := w.writeJSON(map[string]interface{}{"type": "set", "events": w.config.Events}); err != nil {
			conn.Close()
			w.setState(StateDisconnected)
			return fmt.Errorf("send subscription: %w", err)
		}
	}

	w.setState(StateConnected)
	w.attempts = 0
	if w.handlers.OnConnect != nil {
		w.handlers.OnConnect()
	}

	go w.readLoop(conn)
	if w.config.PingInterval > 0 {
		go w.pingLoop(conn)
	}
	return nil
}

// Close stops the watcher for good.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.setState(StateClosed)
		close(w.closeCh)

		w.connMu.Lock()
		if w.conn != nil {
			w.conn.Close()
		}
		w.connMu.Unlock()
	})
	return nil
}

// State returns the current connection state.
func (w *Watcher) State() State {
	return State(atomic.LoadInt32(&w.state))
}

// Received returns the number of events delivered so far.
func (w *Watcher) Received() int64 {
	return atomic.LoadInt64(&w.received)
}

func (w *Watcher) setState(s State) {
	for {
		old := atomic.LoadInt32(&w.state)
		if State(old) == StateClosed {
			return
		}
		if atomic.CompareAndSwapInt32(&w.state, old, int32(s)) {
			return
		}
	}
}

func (w *Watcher) writeJSON(v interface{}) error {
	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()
	if conn == nil {
		return errors.New("not connected")
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if w.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	}
	return conn.WriteJSON(v)
}

func (w *Watcher) readLoop(conn *websocket.Conn) {
	var readErr error
	defer func() {
		if w.State() != StateClosed {
			w.handleDisconnect(readErr)
		}
	}()

	if w.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
			return nil
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				readErr = err
			}
			return
		}
		if w.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			w.reportError(fmt.Errorf("decode event: %w", err))
			continue
		}
		atomic.AddInt64(&w.received, 1)
		if w.handlers.OnEvent != nil {
			w.handlers.OnEvent(event)
		}
	}
}

func (w *Watcher) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.closeCh:
			return
		case <-ticker.C:
			w.connMu.RLock()
			current := w.conn
			w.connMu.RUnlock()
			if current != conn {
				return
			}
			deadline := time.Now().Add(w.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				w.reportError(fmt.Errorf("ping failed: %w", err))
				return
			}
		}
	}
}

func (w *Watcher) handleDisconnect(err error) {
	w.setState(StateDisconnected)
	if w.handlers.OnDisconnect != nil {
		w.handlers.OnDisconnect(err)
	}
	if w.config.ReconnectEnabled {
		go w.reconnect()
	}
}

func (w *Watcher) reconnect() {
	w.setState(StateReconnecting)

	for {
		if w.State() == StateClosed {
			return
		}
		w.attempts++
		if w.config.ReconnectMaxAttempts > 0 && w.attempts > w.config.ReconnectMaxAttempts {
			w.setState(StateDisconnected)
			w.reportError(fmt.Errorf("max reconnect attempts (%d) exceeded", w.config.ReconnectMaxAttempts))
			return
		}

		delay := w.config.ReconnectMinDelay * time.Duration(1<<uint(w.attempts-1))
		if delay > w.config.ReconnectMaxDelay || delay <= 0 {
			delay = w.config.ReconnectMaxDelay
		}

		select {
		case <-w.closeCh:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		w.reportError(fmt.Errorf("reconnect attempt %d failed: %w", w.attempts, err))
	}
}

func (w *Watcher) reportError(err error) {
	if w.handlers.OnError != nil {
		w.handlers.OnError(err)
	}
}
