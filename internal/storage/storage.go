// Package storage declares the persistence boundary shared by the postgres
// and sqlite backends.
package storage

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

//go:generate mockgen -destination=../mocks/storage_mock.go -package=mocks . Channels,Memberships,Messages,Users

type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

type Channels interface {
	// CreateChannel fills ID and timestamps and adds the owner as ADMIN.
	CreateChannel(ctx context.Context, ch *domain.Channel) error
	GetChannel(ctx context.Context, id string) (*domain.Channel, error)
	FindChannelByName(ctx context.Context, ownerID, name string) (*domain.Channel, error)
	ListVisibleChannels(ctx context.Context, userID string) ([]domain.Channel, error)
}

type Memberships interface {
	IsMember(ctx context.Context, userID, channelID string) (bool, error)
	GetMembership(ctx context.Context, userID, channelID string) (*domain.Membership, error)
	AddMember(ctx context.Context, m *domain.Membership) error
	ListMembers(ctx context.Context, channelID string) ([]domain.Membership, error)
}

type Messages interface {
	CreateMessage(ctx context.Context, channelID, userID, content string) (*domain.Message, error)
	ListMessages(ctx context.Context, channelID string, offset, limit int, order Order) ([]domain.Message, int, error)
}

type Users interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UpsertUser(ctx context.Context, u *domain.User) error
}

type Store interface {
	Channels
	Memberships
	Messages
	Users

	Ping(ctx context.Context) error
	Close() error
}
