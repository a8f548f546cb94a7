// Package broker fans persisted messages out to the connections subscribed to
// a channel.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/metrics"
	"github.com/cwrk-planet/chat-service/pkg/protocol"
)

// Conn is one live realtime connection. Deliver must not block: it either
// enqueues the event for the connection's writer or fails.
type Conn interface {
	ID() string
	UserID() string
	Deliver(ev protocol.Event) error
	Close() error
}

type Authorizer interface {
	CanRead(ctx context.Context, userID, channelID string) (*domain.Channel, error)
	CanWrite(ctx context.Context, userID, channelID string) (*domain.Channel, error)
}

type MessageSaver interface {
	Validate(content string) (string, error)
	Save(ctx context.Context, channelID, userID, content string) (*domain.Message, error)
}

type Broker struct {
	registry *Registry
	access   Authorizer
	chat     MessageSaver

	locksMu sync.Mutex
	locks   map[string]*channelLock
}

// channelLock serialises persist+broadcast for one channel. refs counts the
// holders and waiters; the entry is dropped when it reaches zero.
type channelLock struct {
	sync.Mutex
	refs int
}

func New(registry *Registry, access Authorizer, chat MessageSaver) *Broker {
	return &Broker{
		registry: registry,
		access:   access,
		chat:     chat,
		locks:    make(map[string]*channelLock),
	}
}

// Join subscribes c to channelID after checking that its user may read the
// channel. A Joined event is delivered to c before any broadcast of the
// channel. Joining twice acknowledges again but subscribes once.
func (b *Broker) Join(ctx context.Context, c Conn, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("%w: channel id is required", domain.ErrValidation)
	}
	if _, err := b.access.CanRead(ctx, c.UserID(), channelID); err != nil {
		return err
	}

	// broadcasts hold the same lock, so nothing can overtake the ack
	unlock := b.lockChannel(channelID)
	defer unlock()

	if err := c.Deliver(protocol.Joined{ChannelID: channelID}); err != nil {
		return err
	}
	if b.registry.Add(channelID, c) {
		metrics.ActiveSubscriptions.Inc()
		slog.Debug("broker join", "channel", channelID, "user", c.UserID(), "conn", c.ID())
	}
	return nil
}

// Leave unsubscribes c from channelID. Leaving a channel that was never joined is a no-op.
func (b *Broker) Leave(c Conn, channelID string) {
	if b.registry.Remove(channelID, c) {
		metrics.ActiveSubscriptions.Dec()
		slog.Debug("broker leave", "channel", channelID, "user", c.UserID(), "conn", c.ID())
	}
}

// Disconnect removes c from every channel it joined.
func (b *Broker) Disconnect(c Conn) {
	left := b.registry.RemoveConn(c)
	if len(left) > 0 {
		metrics.ActiveSubscriptions.Sub(float64(len(left)))
	}
	slog.Debug("broker disconnect", "user", c.UserID(), "conn", c.ID(), "channels", len(left))
}

// Submit validates, authorizes and persists a message, then enqueues it to every
// current subscriber of the channel, the sender included. Nothing is
// broadcast when persistence fails. Broadcast order per channel equals
// persisted order.
func (b *Broker) Submit(ctx context.Context, userID, channelID, content string) (*domain.Message, error) {
	msg, err := b.submit(ctx, userID, channelID, content)
	metrics.MessagesSubmitted.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			slog.Error("broker submit failed", "channel", channelID, "user", userID, "err", err)
		}
		return nil, err
	}
	return msg, nil
}

func (b *Broker) submit(ctx context.Context, userID, channelID, content string) (*domain.Message, error) {
	text, err := b.chat.Validate(content)
	if err != nil {
		return nil, err
	}
	if _, err := b.access.CanWrite(ctx, userID, channelID); err != nil {
		return nil, err
	}

	unlock := b.lockChannel(channelID)
	msg, err := b.chat.Save(ctx, channelID, userID, text)
	if err != nil {
		unlock()
		return nil, err
	}
	evicted := b.broadcast(channelID, protocol.FromDomain(msg))
	unlock()

	for _, c := range evicted {
		b.evict(c)
	}
	return msg, nil
}

// broadcast enqueues ev to a snapshot of the channel's subscribers and returns
// the connections that could not take it.
func (b *Broker) broadcast(channelID string, ev protocol.Event) []Conn {
	var failed []Conn
	for _, c := range b.registry.Subscribers(channelID) {
		if err := c.Deliver(ev); err != nil {
			metrics.DeliveriesDropped.Inc()
			slog.Warn("broker deliver failed", "channel", channelID, "conn", c.ID(), "err", err)
			failed = append(failed, c)
			continue
		}
		metrics.BroadcastsDelivered.Inc()
	}
	return failed
}

func (b *Broker) evict(c Conn) {
	b.Disconnect(c)
	if err := c.Close(); err != nil {
		slog.Debug("broker close evicted conn", "conn", c.ID(), "err", err)
	}
}

// Subscribers returns a snapshot of the connections joined to channelID.
func (b *Broker) Subscribers(channelID string) []Conn {
	return b.registry.Subscribers(channelID)
}

// lockChannel takes the channel's submit lock and returns its release.
func (b *Broker) lockChannel(channelID string) (unlock func()) {
	b.locksMu.Lock()
	l, ok := b.locks[channelID]
	if !ok {
		l = &channelLock{}
		b.locks[channelID] = l
	}
	l.refs++
	b.locksMu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		b.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(b.locks, channelID)
		}
		b.locksMu.Unlock()
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrAccessDenied):
		return "denied"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "persistence"
	}
}
