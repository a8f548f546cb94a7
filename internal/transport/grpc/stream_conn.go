package grpcx

import (
	"fmt"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/pkg/protocol"

	"github.com/google/uuid"
)

var (
	errStreamClosed = fmt.Errorf("%w: stream closed", domain.ErrTransport)
	errStreamFull   = fmt.Errorf("%w: stream queue full", domain.ErrTransport)
)

// streamConn is a broker.Conn backed by one Subscribe stream.
type streamConn struct {
	id     string
	userID string

	queue     chan protocol.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newStreamConn(userID string, size int) *streamConn {
	return &streamConn{
		id:     uuid.NewString(),
		userID: userID,
		queue:  make(chan protocol.Event, size),
		closed: make(chan struct{}),
	}
}

func (c *streamConn) ID() string     { return c.id }
func (c *streamConn) UserID() string { return c.userID }

func (c *streamConn) Deliver(ev protocol.Event) error {
	select {
	case <-c.closed:
		return errStreamClosed
	default:
	}

	select {
	case c.queue <- ev:
		return nil
	case <-c.closed:
		return errStreamClosed
	default:
		return errStreamFull
	}
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
