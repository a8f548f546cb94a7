package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/storage"
)

// AccessService answers whether a user may read or write a channel.
type AccessService struct {
	channels storage.Channels
	members  storage.Memberships
}

func NewAccessService(channels storage.Channels, members storage.Memberships) *AccessService {
	return &AccessService{channels: channels, members: members}
}

// CanRead returns the channel when userID may read it: public channels are open
// to everyone, private ones to the owner and members.
func (s *AccessService) CanRead(ctx context.Context, userID, channelID string) (*domain.Channel, error) {
	ch, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, fmt.Errorf("%w: get channel: %v", domain.ErrPersistence, err)
	}
	if !ch.IsPrivate || ch.OwnerID == userID {
		return ch, nil
	}

	ok, err := s.members.IsMember(ctx, userID, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: membership lookup: %v", domain.ErrPersistence, err)
	}
	if !ch.Readable(userID, ok) {
		return nil, domain.ErrAccessDenied
	}
	return ch, nil
}

// CanWrite uses the read rule: anyone who can read a channel may post to it.
func (s *AccessService) CanWrite(ctx context.Context, userID, channelID string) (*domain.Channel, error) {
	return s.CanRead(ctx, userID, channelID)
}

func (s *AccessService) IsMember(ctx context.Context, userID, channelID string) (bool, error) {
	return s.members.IsMember(ctx, userID, channelID)
}

// RequireAdmin fails with ErrAccessDenied unless userID administers the channel.
func (s *AccessService) RequireAdmin(ctx context.Context, userID string, ch *domain.Channel) error {
	if ch.OwnerID == userID {
		return nil
	}
	m, err := s.members.GetMembership(ctx, userID, ch.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrAccessDenied
		}
		return fmt.Errorf("%w: membership lookup: %v", domain.ErrPersistence, err)
	}
	if m.Role != domain.RoleAdmin {
		return domain.ErrAccessDenied
	}
	return nil
}
