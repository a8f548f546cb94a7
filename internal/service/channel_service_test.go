package service

import (
	"context"
	"testing"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type channelFixture struct {
	channels *mocks.MockChannels
	members  *mocks.MockMemberships
	messages *mocks.MockMessages
	svc      *ChannelService
}

func newChannelFixture(t *testing.T) channelFixture {
	ctrl := gomock.NewController(t)
	f := channelFixture{
		channels: mocks.NewMockChannels(ctrl),
		members:  mocks.NewMockMemberships(ctrl),
		messages: mocks.NewMockMessages(ctrl),
	}
	access := NewAccessService(f.channels, f.members)
	chat := NewChatService(f.messages, access, ChatConfig{})
	f.svc = NewChannelService(f.channels, f.members, access, chat)
	return f
}

func TestChannelService_Create_Validation(t *testing.T) {
	f := newChannelFixture(t)

	_, err := f.svc.Create(context.Background(), "u1", CreateChannelInput{Name: " a "})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestChannelService_Create(t *testing.T) {
	req := require.New(t)
	f := newChannelFixture(t)
	blank := "   "

	f.channels.EXPECT().CreateChannel(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ch *domain.Channel) error {
			ch.ID = "c1"
			return nil
		})

	ch, err := f.svc.Create(context.Background(), "u1", CreateChannelInput{Name: " random ", Description: &blank, IsPrivate: true})
	req.NoError(err)
	req.Equal("c1", ch.ID)
	req.Equal("random", ch.Name)
	req.Nil(ch.Description)
	req.True(ch.IsPrivate)
	req.Equal("u1", ch.OwnerID)
}

func TestChannelService_AddMember_RequiresAdmin(t *testing.T) {
	f := newChannelFixture(t)
	ch := &domain.Channel{ID: "c1", OwnerID: "owner", IsPrivate: true}

	// Given the actor is a plain member
	f.channels.EXPECT().GetChannel(gomock.Any(), "c1").Return(ch, nil)
	f.members.EXPECT().IsMember(gomock.Any(), "u2", "c1").Return(true, nil)
	f.members.EXPECT().GetMembership(gomock.Any(), "u2", "c1").
		Return(&domain.Membership{UserID: "u2", ChannelID: "c1", Role: domain.RoleMember}, nil)

	// When they try to add someone
	_, err := f.svc.AddMember(context.Background(), "u2", "c1", AddMemberInput{UserID: "u3"})

	// Then access is denied
	require.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestChannelService_AddMember_ByOwner(t *testing.T) {
	req := require.New(t)
	f := newChannelFixture(t)
	ch := &domain.Channel{ID: "c1", OwnerID: "owner", IsPrivate: true}

	f.channels.EXPECT().GetChannel(gomock.Any(), "c1").Return(ch, nil)
	f.members.EXPECT().AddMember(gomock.Any(), &domain.Membership{UserID: "u3", ChannelID: "c1", Role: domain.RoleMember}).Return(nil)

	m, err := f.svc.AddMember(context.Background(), "owner", "c1", AddMemberInput{UserID: "u3"})
	req.NoError(err)
	req.Equal(domain.RoleMember, m.Role)
}

func TestChannelService_AddMember_BadRole(t *testing.T) {
	f := newChannelFixture(t)

	_, err := f.svc.AddMember(context.Background(), "owner", "c1", AddMemberInput{UserID: "u3", Role: "OWNER"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestChannelService_SeedGeneral_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newChannelFixture(t)
	existing := &domain.Channel{ID: "c1", Name: GeneralChannelName, OwnerID: "u1"}

	f.channels.EXPECT().FindChannelByName(gomock.Any(), "u1", GeneralChannelName).Return(existing, nil)

	res, err := f.svc.SeedGeneral(context.Background(), "u1")
	req.NoError(err)
	req.False(res.Created)
	req.Equal(existing, res.Channel)
	req.Nil(res.Message)
}

func TestChannelService_SeedGeneral_CreatesWithWelcome(t *testing.T) {
	req := require.New(t)
	f := newChannelFixture(t)

	gomock.InOrder(
		f.channels.EXPECT().FindChannelByName(gomock.Any(), "u1", GeneralChannelName).Return(nil, domain.ErrChannelNotFound),
		f.channels.EXPECT().CreateChannel(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, ch *domain.Channel) error {
				ch.ID = "c1"
				return nil
			}),
		f.messages.EXPECT().CreateMessage(gomock.Any(), "c1", "u1", welcomeMessage).
			Return(&domain.Message{ID: "m1", ChannelID: "c1", Content: welcomeMessage}, nil),
	)

	res, err := f.svc.SeedGeneral(context.Background(), "u1")
	req.NoError(err)
	req.True(res.Created)
	req.False(res.Channel.IsPrivate)
	req.Equal("m1", res.Message.ID)
}
