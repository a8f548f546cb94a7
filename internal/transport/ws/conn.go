package ws

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/pkg/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	errConnClosed = fmt.Errorf("%w: connection closed", domain.ErrTransport)
	errQueueFull  = fmt.Errorf("%w: send queue full", domain.ErrTransport)
)

// wsConn is a broker.Conn backed by one websocket. All frames are written by
// writeLoop; Deliver only enqueues.
type wsConn struct {
	id     string
	userID string
	conn   *websocket.Conn

	send      chan protocol.Event
	closed    chan struct{}
	closeOnce sync.Once

	pingEvery    time.Duration
	writeTimeout time.Duration
}

func newWsConn(c *websocket.Conn, userID string, cfg Config) *wsConn {
	return &wsConn{
		id:           uuid.NewString(),
		userID:       userID,
		conn:         c,
		send:         make(chan protocol.Event, cfg.SendQueueSize),
		closed:       make(chan struct{}),
		pingEvery:    cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) UserID() string { return c.userID }

func (c *wsConn) Deliver(ev protocol.Event) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		return errQueueFull
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(c.pingEvery)
	defer ticker.Stop()
	defer func() { _ = c.Close() }()

	for {
		select {
		case ev := <-c.send:
			if err := c.write(ev); err != nil {
				slog.Debug("ws write failed", "conn", c.id, "user", c.userID, "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				slog.Debug("ws ping failed", "conn", c.id, "user", c.userID, "err", err)
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *wsConn) write(ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
