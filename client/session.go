package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwrk-planet/chat-service/pkg/protocol"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// subscription callbacks run under mu so unsubscribe can wait them out.
type subscription struct {
	mu     sync.Mutex
	cb     func(protocol.Message)
	active atomic.Bool
}

// Session is one realtime connection subscribed to a single channel. It
// reconnects on its own after a dropped connection and rejoins the channel
// before delivering again.
type Session struct {
	client    *Client
	channelID string

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[uint64]*subscription
	nextSub uint64
	// running is the subscription whose callback is executing, if any.
	running atomic.Pointer[subscription]
	pending map[string]chan protocol.SendResult
	err     error

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(c *Client, channelID string, conn *websocket.Conn) *Session {
	s := &Session{
		client:    c,
		channelID: channelID,
		conn:      conn,
		subs:      make(map[uint64]*subscription),
		pending:   make(map[string]chan protocol.SendResult),
		closed:    make(chan struct{}),
	}
	go s.run(conn)
	return s
}

func (s *Session) ChannelID() string { return s.channelID }

// Err returns why the session stopped, or nil while it is usable.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SendMessage submits content and waits for the persisted message.
// Blank content fails locally with ErrValidation.
func (s *Session) SendMessage(ctx context.Context, content string) (protocol.Message, error) {
	if strings.TrimSpace(content) == "" {
		return protocol.Message{}, fmt.Errorf("%w: message content is required", ErrValidation)
	}

	reqID := uuid.NewString()
	result := make(chan protocol.SendResult, 1)

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return protocol.Message{}, err
	}
	s.pending[reqID] = result
	conn := s.conn
	s.mu.Unlock()
	defer s.dropPending(reqID)

	if err := s.write(conn, protocol.Send{RequestID: reqID, ChannelID: s.channelID, Content: content}); err != nil {
		return protocol.Message{}, fmt.Errorf("%w: send: %v", ErrTransport, err)
	}

	timer := time.NewTimer(s.client.opts.SendTimeout)
	defer timer.Stop()

	select {
	case res, ok := <-result:
		if !ok {
			return protocol.Message{}, fmt.Errorf("%w: connection lost before ack", ErrTransport)
		}
		if !res.OK {
			if res.Error != nil {
				return protocol.Message{}, res.Error
			}
			return protocol.Message{}, fmt.Errorf("%w: send rejected", ErrTransport)
		}
		return *res.Message, nil
	case <-timer.C:
		return protocol.Message{}, fmt.Errorf("%w: no ack within %s", ErrTransport, s.client.opts.SendTimeout)
	case <-ctx.Done():
		return protocol.Message{}, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
	case <-s.closed:
		return protocol.Message{}, ErrClosed
	}
}

// SubscribeToMessages registers cb for every message broadcast on the channel.
// The returned func unsubscribes; it is idempotent, and no invocation starts
// after it returns. Called from another goroutine it waits for a callback in
// progress; called from inside cb it returns at once.
func (s *Session) SubscribeToMessages(cb func(protocol.Message)) (unsubscribe func()) {
	sub := &subscription{cb: cb}
	sub.active.Store(true)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()

			if s.running.Load() != sub {
				sub.mu.Lock()
				sub.mu.Unlock() // wait out a callback in flight
			}
		})
	}
}

// Close leaves the channel and closes the connection.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		conn := s.conn
		if s.err == nil {
			s.err = ErrClosed
		}
		s.mu.Unlock()

		_ = s.write(conn, protocol.Leave{ChannelID: s.channelID})
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = conn.Close()
	})
	return err
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) write(conn *websocket.Conn, ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.client.opts.SendTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) dropPending(reqID string) {
	s.mu.Lock()
	delete(s.pending, reqID)
	s.mu.Unlock()
}

// failPending releases every SendMessage waiting on the lost connection.
func (s *Session) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

func (s *Session) run(conn *websocket.Conn) {
	for {
		s.readLoop(conn)
		_ = conn.Close()
		s.failPending()
		if s.isClosed() {
			return
		}

		next, err := s.reconnect()
		if err != nil {
			slog.Warn("chat session reconnect failed", "channel", s.channelID, "err", err)
			s.mu.Lock()
			if s.err == nil {
				s.err = fmt.Errorf("%w: reconnect: %v", ErrTransport, err)
			}
			s.mu.Unlock()
			s.closeOnce.Do(func() { close(s.closed) })
			return
		}
		if s.isClosed() {
			_ = next.Close()
			return
		}
		conn = next
	}
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			continue
		}

		switch e := ev.(type) {
		case protocol.Message:
			if e.ChannelID == s.channelID {
				s.dispatch(e)
			}
		case protocol.SendResult:
			s.mu.Lock()
			ch, ok := s.pending[e.RequestID]
			delete(s.pending, e.RequestID)
			s.mu.Unlock()
			if ok {
				ch <- e
			}
		case protocol.Error:
			slog.Debug("chat session error event", "channel", s.channelID, "code", e.Code, "msg", e.Message)
		}
	}
}

func (s *Session) dispatch(m protocol.Message) {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		s.deliver(sub, m)
	}
}

func (s *Session) deliver(sub *subscription, m protocol.Message) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.active.Load() {
		return
	}
	s.running.Store(sub)
	defer s.running.Store(nil)
	sub.cb(m)
}

// reconnect dials again with a fixed delay between a bounded number of
// attempts. The returned connection has rejoined the channel.
func (s *Session) reconnect() (*websocket.Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	opts := s.client.opts
	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		conn, err := s.client.dial(ctx, s.channelID)
		if err != nil && isPermanent(err) {
			return nil, backoff.Permanent(err)
		}
		return conn, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(opts.ReconnectDelay)),
		backoff.WithMaxTries(uint(opts.ReconnectAttempts)),
	)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	slog.Info("chat session reconnected", "channel", s.channelID)
	return conn, nil
}
