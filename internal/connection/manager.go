// ABOUTME: WebSocket connection manager with reconnect and serialized sends
// ABOUTME: Owns the single socket a session drives for its whole lifetime
// Package connection owns the WebSocket transport lifecycle: dialing
// with a connect timeout, serialized sends, and an exponential-backoff
// reconnect loop that can rediscover the server address on each
// attempt.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sendspin/sendspin-go/internal/wire"
)

// ErrConnectTimeout is returned when the WebSocket handshake does not
// complete within the connect timeout.
var ErrConnectTimeout = errors.New("connection: connect timeout")

// ErrNotConnected is returned by Send when there is no open socket.
var ErrNotConnected = errors.New("connection: not connected")

const (
	connectTimeout = 10 * time.Second
	goodbyeDrain   = 100 * time.Millisecond

	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// Handler receives frames dispatched off the read loop. Implementations
// run on the reader goroutine and must not block.
type Handler interface {
	HandleText(msgType string, payload []byte)
	HandleBinary(data []byte)
}

// AddressResolver produces the "host:port" to dial. Implementations
// decide whether to rerun discovery (when the address was originally
// discovered) or reuse a sticky configured address.
type AddressResolver func(ctx context.Context) (string, error)

// Manager owns the single WebSocket connection used by a session. All
// outbound sends funnel through Send, which is internally serialized,
// so no two JSON objects are ever interleaved on the wire.
type Manager struct {
	handler Handler

	mu   sync.Mutex
	conn *websocket.Conn

	shouldReconnect bool
	attempt         int
	reconnectTimer  *time.Timer

	onOpen           func()
	onCloseListeners []func(err error)
}

// New creates a Manager that dispatches inbound frames to handler.
func New(handler Handler) *Manager {
	return &Manager{handler: handler}
}

// OnOpen registers a callback invoked after a successful connect (and
// every successful reconnect).
func (m *Manager) OnOpen(fn func()) { m.onOpen = fn }

// OnClose registers a callback invoked whenever the socket closes, with
// the read error that ended the read loop (never nil; a user-initiated
// Stop surfaces as the error from reading the closed socket). Multiple
// callbacks may be registered; all of them fire, in registration order.
func (m *Manager) OnClose(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCloseListeners = append(m.onCloseListeners, fn)
}

// dial opens the WebSocket to ws://{addr}/sendspin, bounded by
// connectTimeout. On timeout or dial failure, any partially-open socket
// is released rather than closed, since its state may be indeterminate
// while the dialer still owns it.
func (m *Manager) dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: addr, Path: "/sendspin"}
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrConnectTimeout
		}
		return nil, fmt.Errorf("connection: dial failed: %w", err)
	}
	return conn, nil
}

// Connect performs a single connect attempt (no retry). Used for the
// initial connection when the caller wants ErrConnectTimeout to
// propagate directly.
func (m *Manager) Connect(ctx context.Context, addr string) error {
	conn, err := m.dial(ctx, addr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.shouldReconnect = true
	m.mu.Unlock()

	go m.readLoop(conn)

	if m.onOpen != nil {
		m.onOpen()
	}
	return nil
}

// Run drives the reconnect loop: on unexpected close, it schedules a
// reconnect with exponential backoff (capped at 30s, unbounded
// attempts), rerunning resolve() each time so a discovered address can
// be rediscovered while a configured one stays sticky. Run blocks until
// ctx is cancelled or Stop is called.
func (m *Manager) Run(ctx context.Context, resolve AddressResolver) {
	closed := make(chan struct{}, 1)
	m.OnClose(func(err error) {
		select {
		case closed <- struct{}{}:
		default:
		}
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
		}

		m.mu.Lock()
		shouldReconnect := m.shouldReconnect
		m.mu.Unlock()
		if !shouldReconnect {
			return
		}

		delay := m.nextBackoff()
		timer := time.NewTimer(delay)
		m.mu.Lock()
		m.reconnectTimer = timer
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		addr, err := resolve(ctx)
		if err != nil {
			// No address yet (discovery failed); try again on the same
			// backoff schedule.
			select {
			case closed <- struct{}{}:
			default:
			}
			continue
		}

		if err := m.Connect(ctx, addr); err != nil {
			select {
			case closed <- struct{}{}:
			default:
			}
			continue
		}

		m.mu.Lock()
		m.attempt = 0
		m.mu.Unlock()
	}
}

// nextBackoff computes and advances the reconnect delay:
// min(1000*2^(attempt-1), 30000) ms, starting at attempt=1.
func (m *Manager) nextBackoff() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt++
	delay := initialBackoff << (m.attempt - 1)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

// Send serializes msgType/payload to JSON and writes it as a single
// text frame. Sends are mutex-serialized so two JSON objects never
// interleave on the wire; it returns ErrNotConnected if there is no
// open socket.
func (m *Manager) Send(msgType string, payload any) error {
	data, err := wire.EncodeMessage(msgType, payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNotConnected
	}
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

// Goodbye sends client/goodbye and gives it up to 100ms to flush before
// the caller closes the socket.
func (m *Manager) Goodbye(reason string) {
	_ = m.Send(wire.TypeClientGoodbye, wire.ClientGoodbye{Reason: reason})
	time.Sleep(goodbyeDrain)
}

// Stop disables reconnection, cancels any pending reconnect timer, and
// closes the socket.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.shouldReconnect = false
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// IsConnected reports whether a socket is currently open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	var closeErr error
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			closeErr = err
			break
		}

		switch msgType {
		case websocket.TextMessage:
			mt, payload, err := wire.DecodeEnvelope(data)
			if err != nil {
				continue
			}
			m.handler.HandleText(mt, payload)
		case websocket.BinaryMessage:
			m.handler.HandleBinary(data)
		}
	}

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()

	conn.Close()

	m.mu.Lock()
	listeners := append([]func(error){}, m.onCloseListeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(closeErr)
	}
}
