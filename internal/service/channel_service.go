package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/storage"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const (
	GeneralChannelName = "general"
	welcomeMessage     = "Welcome to the general channel! 👋"
)

type CreateChannelInput struct {
	Name        string  `validate:"required,min=2,max=80"`
	Description *string `validate:"omitempty,max=500"`
	IsPrivate   bool
}

type AddMemberInput struct {
	UserID string      `validate:"required,max=128"`
	Role   domain.Role `validate:"omitempty,oneof=ADMIN MEMBER"`
}

type ChannelService struct {
	channels storage.Channels
	members  storage.Memberships
	access   *AccessService
	chat     *ChatService
}

func NewChannelService(channels storage.Channels, members storage.Memberships, access *AccessService, chat *ChatService) *ChannelService {
	return &ChannelService{
		channels: channels,
		members:  members,
		access:   access,
		chat:     chat,
	}
}

// Create makes ownerID the owner and first ADMIN of a new channel.
func (s *ChannelService) Create(ctx context.Context, ownerID string, in CreateChannelInput) (*domain.Channel, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		in.Description = &d
		if d == "" {
			in.Description = nil
		}
	}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	ch := &domain.Channel{
		Name:        in.Name,
		Description: in.Description,
		IsPrivate:   in.IsPrivate,
		OwnerID:     ownerID,
	}
	if err := s.channels.CreateChannel(ctx, ch); err != nil {
		return nil, fmt.Errorf("%w: create channel: %v", domain.ErrPersistence, err)
	}
	return ch, nil
}

func (s *ChannelService) Get(ctx context.Context, userID, id string) (*domain.Channel, error) {
	return s.access.CanRead(ctx, userID, id)
}

func (s *ChannelService) ListVisible(ctx context.Context, userID string) ([]domain.Channel, error) {
	list, err := s.channels.ListVisibleChannels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list channels: %v", domain.ErrPersistence, err)
	}
	return list, nil
}

func (s *ChannelService) Members(ctx context.Context, userID, channelID string) ([]domain.Membership, error) {
	if _, err := s.access.CanRead(ctx, userID, channelID); err != nil {
		return nil, err
	}
	list, err := s.members.ListMembers(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: list members: %v", domain.ErrPersistence, err)
	}
	return list, nil
}

// AddMember grants in.UserID access to the channel. Only channel admins may do this.
func (s *ChannelService) AddMember(ctx context.Context, actorID, channelID string, in AddMemberInput) (*domain.Membership, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if in.Role == "" {
		in.Role = domain.RoleMember
	}

	ch, err := s.access.CanRead(ctx, actorID, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAdmin(ctx, actorID, ch); err != nil {
		return nil, err
	}

	m := &domain.Membership{UserID: in.UserID, ChannelID: ch.ID, Role: in.Role}
	if err := s.members.AddMember(ctx, m); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, fmt.Errorf("%w: add member: %v", domain.ErrPersistence, err)
	}
	return m, nil
}

type SeedResult struct {
	Channel *domain.Channel
	Message *domain.Message
	Created bool
}

// SeedGeneral makes sure ownerID has a public "general" channel with a welcome message.
func (s *ChannelService) SeedGeneral(ctx context.Context, ownerID string) (*SeedResult, error) {
	existing, err := s.channels.FindChannelByName(ctx, ownerID, GeneralChannelName)
	switch {
	case err == nil:
		return &SeedResult{Channel: existing}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("%w: find channel: %v", domain.ErrPersistence, err)
	}

	desc := "General discussion channel"
	ch, err := s.Create(ctx, ownerID, CreateChannelInput{Name: GeneralChannelName, Description: &desc})
	if err != nil {
		return nil, err
	}
	msg, err := s.chat.Save(ctx, ch.ID, ownerID, welcomeMessage)
	if err != nil {
		return nil, err
	}
	return &SeedResult{Channel: ch, Message: msg, Created: true}, nil
}
