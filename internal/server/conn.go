package server

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/mist-signaling/internal/config"
)

// peerConn is one accepted WebSocket connection. It implements router.Peer.
type peerConn struct {
	id     string
	conn   *websocket.Conn
	remote string
	logger *slog.Logger

	writeTimeout time.Duration
	pingInterval time.Duration
	pongTimeout  time.Duration

	// Serializes data frames; control frames may be written concurrently.
	writeMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newPeerConn(conn *websocket.Conn, cfg config.ServerConfig, logger *slog.Logger) *peerConn {
	id := uuid.NewString()
	p := &peerConn{
		id:           id,
		conn:         conn,
		remote:       conn.RemoteAddr().String(),
		logger:       logger.With("conn", id),
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		done:         make(chan struct{}),
	}

	conn.SetReadLimit(cfg.ReadLimit)
	p.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		p.extendReadDeadline()
		return nil
	})
	return p
}

// ConnID implements router.Peer.
func (p *peerConn) ConnID() string { return p.id }

// Send writes one text frame, bounded by the write timeout.
func (p *peerConn) Send(data []byte) error {
	if p.closed.Load() {
		return ErrPeerClosed
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.closed.Load() {
		return ErrPeerClosed
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close implements router.Peer.
func (p *peerConn) Close() error {
	return p.closeWith(websocket.CloseNormalClosure, "")
}

// closeWith sends a close frame with code and tears down the connection.
// Only the first call has any effect.
func (p *peerConn) closeWith(code int, reason string) error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)

		deadline := time.Now().Add(time.Second)
		_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		err = p.conn.Close()
	})
	return err
}

// read returns the next frame and extends the read deadline.
func (p *peerConn) read() ([]byte, error) {
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	p.extendReadDeadline()
	return data, nil
}

func (p *peerConn) extendReadDeadline() {
	_ = p.conn.SetReadDeadline(time.Now().Add(p.pongTimeout))
}

// heartbeat pings until the connection closes.
func (p *peerConn) heartbeat() {
	ticker := time.NewTicker(p.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(p.writeTimeout)
			if err := p.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				p.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}
