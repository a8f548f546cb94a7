// Package protocol defines the realtime wire format shared by the server and
// the client. Every frame is a JSON envelope {"type": ..., "payload": ...}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type Type string

const (
	// client -> server
	TypeJoin  Type = "join"
	TypeLeave Type = "leave"
	TypeSend  Type = "send"

	// server -> client
	TypeMessage    Type = "message"
	TypeSendResult Type = "send_result"
	TypeJoined     Type = "joined"
	TypeLeft       Type = "left"
	TypeError      Type = "error"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown event type")
)

type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is implemented only by the payload types of this package.
type Event interface {
	Type() Type
}

type Join struct {
	ChannelID string `json:"channelId"`
}

type Leave struct {
	ChannelID string `json:"channelId"`
}

type Send struct {
	RequestID string `json:"requestId"`
	ChannelID string `json:"channelId"`
	Content   string `json:"content"`
}

type Author struct {
	ID    string  `json:"id"`
	Name  *string `json:"name"`
	Email string  `json:"email"`
	Image *string `json:"image"`
}

// Message is the broadcast event carrying one persisted message.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Author    `json:"author"`
}

type SendResult struct {
	RequestID string   `json:"requestId"`
	OK        bool     `json:"ok"`
	Message   *Message `json:"message,omitempty"`
	Error     *Error   `json:"error,omitempty"`
}

type Joined struct {
	ChannelID string `json:"channelId"`
}

type Left struct {
	ChannelID string `json:"channelId"`
}

type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	ChannelID string `json:"channelId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func (Join) Type() Type       { return TypeJoin }
func (Leave) Type() Type      { return TypeLeave }
func (Send) Type() Type       { return TypeSend }
func (Message) Type() Type    { return TypeMessage }
func (SendResult) Type() Type { return TypeSendResult }
func (Joined) Type() Type     { return TypeJoined }
func (Left) Type() Type       { return TypeLeft }
func (Error) Type() Type      { return TypeError }

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Encode wraps ev into an envelope.
func Encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.Type(), Payload: payload})
}

// Decode parses one frame into its concrete event value (Join, Send, Message, ...).
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var ev Event
	switch env.Type {
	case TypeJoin:
		ev = &Join{}
	case TypeLeave:
		ev = &Leave{}
	case TypeSend:
		ev = &Send{}
	case TypeMessage:
		ev = &Message{}
	case TypeSendResult:
		ev = &SendResult{}
	case TypeJoined:
		ev = &Joined{}
	case TypeLeft:
		ev = &Left{}
	case TypeError:
		ev = &Error{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := json.Unmarshal(env.Payload, ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return deref(ev), nil
}

func deref(ev Event) Event {
	switch v := ev.(type) {
	case *Join:
		return *v
	case *Leave:
		return *v
	case *Send:
		return *v
	case *Message:
		return *v
	case *SendResult:
		return *v
	case *Joined:
		return *v
	case *Left:
		return *v
	case *Error:
		return *v
	}
	return ev
}

func FromDomain(m *domain.Message) Message {
	return Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		UserID:    m.UserID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Author: Author{
			ID:    m.Author.ID,
			Name:  m.Author.Name,
			Email: m.Author.Email,
			Image: m.Author.Image,
		},
	}
}

func (m Message) ToDomain() domain.Message {
	return domain.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		UserID:    m.UserID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Author: domain.User{
			ID:    m.Author.ID,
			Name:  m.Author.Name,
			Email: m.Author.Email,
			Image: m.Author.Image,
		},
	}
}
