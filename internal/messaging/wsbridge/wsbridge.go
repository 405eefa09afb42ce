// Package wsbridge carries messaging envelopes over a WebSocket, for
// deployments where the interception layer runs out of process from the
// tracker.
package wsbridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/tilelabel/overlay/internal/messaging"
)

const (
	sendChSize   = 1024
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Config holds the bridge connection settings.
type Config struct {
	URL    string
	Secret string
}

// Bridge is a WebSocket transport for messaging envelopes. A single write
// goroutine drains the send queue; the read loop hands inbound envelopes to
// the receive callback, which runs on the read goroutine and is expected to
// hop onto the host scheduler before touching engine state.
type Bridge struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	closed bool

	cfg Config

	// Cached surface announcement, replayed after reconnect so the peer
	// regains the context it lost with the connection.
	cachedAnnounce []byte

	onEnvelope func(messaging.Envelope)
	logger     *slog.Logger
}

// New creates a bridge; Dial must be called before Send.
func New(cfg Config, onEnvelope func(messaging.Envelope), logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		sendCh:     make(chan []byte, sendChSize),
		done:       make(chan struct{}),
		cfg:        cfg,
		onEnvelope: onEnvelope,
		logger:     logger,
	}
}

// Dial connects and starts the read and write loops.
func (b *Bridge) Dial() error {
	conn, err := b.dialOnce()
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	go b.writeLoop()
	go b.readLoop()
	return nil
}

func (b *Bridge) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(b.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge URL: %w", err)
	}
	if b.cfg.Secret != "" {
		q := u.Query()
		q.Set("secret", b.cfg.Secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("bridge dial failed: %w", err)
	}
	return conn, nil
}

// Send queues an envelope for the write loop. Non-blocking; drops when the
// queue is full, since movement vectors are superseded by the next one
// anyway. Implements messaging.Transport.
func (b *Bridge) Send(env messaging.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Kind, err)
	}

	if env.Kind == messaging.KindCanvasDetected {
		b.mu.Lock()
		b.cachedAnnounce = data
		b.mu.Unlock()
	}

	select {
	case b.sendCh <- data:
	default:
		b.logger.Warn("bridge send queue full, dropping message", "kind", string(env.Kind))
	}
	return nil
}

func (b *Bridge) writeLoop() {
	for {
		select {
		case <-b.done:
			return
		case data := <-b.sendCh:
			b.mu.Lock()
			conn := b.conn
			b.mu.Unlock()

			if conn == nil {
				continue
			}

			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				b.logger.Warn("bridge SetWriteDeadline error", "error", err)
				go b.reconnect()
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				b.logger.Warn("bridge write error", "error", err)
				go b.reconnect()
				return
			}
		}
	}
}

func (b *Bridge) readLoop() {
	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			b.logger.Warn("bridge read error", "error", err)
			go b.reconnect()
			return
		}

		var env messaging.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			b.logger.Debug("non-envelope message received", "raw", string(message))
			continue
		}
		if b.onEnvelope != nil {
			b.onEnvelope(env)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff. On
// success it replays the cached surface announcement and restarts the
// loops.
func (b *Bridge) reconnect() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	b.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-b.done:
			return
		default:
		}

		b.logger.Info("reconnecting bridge", "attempt", attempt, "backoff", backoff)
		time.Sleep(backoff)

		conn, err := b.dialOnce()
		if err != nil {
			b.logger.Warn("bridge reconnect failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		b.mu.Lock()
		b.conn = conn
		cached := b.cachedAnnounce
		b.mu.Unlock()

		if cached != nil {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
				if err := conn.WriteMessage(ws.TextMessage, cached); err != nil {
					b.logger.Warn("announce replay failed", "error", err)
					_ = conn.Close()
					continue
				}
			}
		}

		b.logger.Info("bridge reconnected", "attempt", attempt)
		go b.writeLoop()
		go b.readLoop()
		return
	}

	b.logger.Error("bridge reconnect gave up", "maxAttempts", maxReconnect)
}

// Close sends a close frame and shuts the loops down.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		)
		return conn.Close()
	}
	return nil
}
