package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/mocks"
	"github.com/cwrk-planet/chat-service/internal/pagination"
	"github.com/cwrk-planet/chat-service/internal/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type chatFixture struct {
	channels *mocks.MockChannels
	members  *mocks.MockMemberships
	messages *mocks.MockMessages
	svc      *ChatService
}

func newChatFixture(t *testing.T) chatFixture {
	ctrl := gomock.NewController(t)
	f := chatFixture{
		channels: mocks.NewMockChannels(ctrl),
		members:  mocks.NewMockMemberships(ctrl),
		messages: mocks.NewMockMessages(ctrl),
	}
	access := NewAccessService(f.channels, f.members)
	f.svc = NewChatService(f.messages, access, ChatConfig{MaxMessageLength: 10})
	return f
}

// fakeLog returns the window [offset, offset+limit) of a newest-first log of n messages.
func fakeLog(n, offset, limit int) []domain.Message {
	out := []domain.Message{}
	for i := offset; i < offset+limit && i < n; i++ {
		id := n - i
		out = append(out, domain.Message{
			ID:        fmt.Sprintf("m%02d", id),
			Content:   fmt.Sprintf("message %d", id),
			CreatedAt: time.Unix(int64(id), 0),
		})
	}
	return out
}

func TestChatService_Save_RejectsBlankContent(t *testing.T) {
	f := newChatFixture(t)

	for _, content := range []string{"", "   ", "\n\t"} {
		// no CreateMessage expectation: the store must not be touched
		_, err := f.svc.Save(context.Background(), "general", "u1", content)
		require.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestChatService_Save_RejectsTooLong(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.svc.Save(context.Background(), "general", "u1", strings.Repeat("x", 11))
	require.ErrorIs(t, err, domain.ErrContentTooLong)
}

func TestChatService_Save_TrimsAndPersists(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	stored := &domain.Message{ID: "m1", ChannelID: "general", UserID: "u1", Content: "hello"}

	f.messages.EXPECT().CreateMessage(gomock.Any(), "general", "u1", "hello").Return(stored, nil)

	msg, err := f.svc.Save(context.Background(), "general", "u1", "  hello  ")
	req.NoError(err)
	req.Equal(stored, msg)
}

func TestChatService_Save_WrapsStoreFailure(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	f.messages.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection refused"))

	_, err := f.svc.Save(context.Background(), "general", "u1", "hello")
	req.ErrorIs(err, domain.ErrPersistence)
}

func TestChatService_FetchPage_45Messages(t *testing.T) {
	tests := []struct {
		page       int
		wantLen    int
		wantMore   bool
		wantFirst  string
		wantOffset int
	}{
		{page: 1, wantLen: 20, wantMore: true, wantFirst: "m26", wantOffset: 0},
		{page: 2, wantLen: 20, wantMore: true, wantFirst: "m06", wantOffset: 20},
		{page: 3, wantLen: 5, wantMore: false, wantFirst: "m01", wantOffset: 40},
		{page: 4, wantLen: 0, wantMore: false, wantOffset: 60},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			req := require.New(t)
			f := newChatFixture(t)

			f.channels.EXPECT().GetChannel(gomock.Any(), "general").
				Return(&domain.Channel{ID: "general", OwnerID: "owner"}, nil)
			f.messages.EXPECT().ListMessages(gomock.Any(), "general", tt.wantOffset, 20, storage.NewestFirst).
				Return(fakeLog(45, tt.wantOffset, 20), 45, nil)

			page, err := f.svc.FetchPage(context.Background(), "u1", "general", pagination.Page{Number: tt.page, Size: 20})
			req.NoError(err)
			req.Len(page.Messages, tt.wantLen)
			req.Equal(tt.wantMore, page.HasMore)
			req.Equal(45, page.TotalCount)
			if tt.wantLen > 0 {
				// oldest first inside the page
				req.Equal(tt.wantFirst, page.Messages[0].ID)
				req.True(page.Messages[0].CreatedAt.Before(page.Messages[len(page.Messages)-1].CreatedAt))
			}
		})
	}
}

func TestChatService_FetchPage_FewerThanPageSize(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	f.channels.EXPECT().GetChannel(gomock.Any(), "general").Return(&domain.Channel{ID: "general"}, nil)
	f.messages.EXPECT().ListMessages(gomock.Any(), "general", 0, 20, storage.NewestFirst).
		Return(fakeLog(3, 0, 20), 3, nil)

	page, err := f.svc.FetchPage(context.Background(), "u1", "general", pagination.Page{})
	req.NoError(err)
	req.Len(page.Messages, 3)
	req.False(page.HasMore)
}

func TestChatService_FetchPage_PrivateChannelDenied(t *testing.T) {
	f := newChatFixture(t)

	// Given a private channel the user is not a member of
	f.channels.EXPECT().GetChannel(gomock.Any(), "secret").
		Return(&domain.Channel{ID: "secret", OwnerID: "owner", IsPrivate: true}, nil)
	f.members.EXPECT().IsMember(gomock.Any(), "u1", "secret").Return(false, nil)

	// Then the history is not served
	_, err := f.svc.FetchPage(context.Background(), "u1", "secret", pagination.Page{Number: 1, Size: 20})
	require.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestChatService_FetchPage_UnknownChannel(t *testing.T) {
	f := newChatFixture(t)

	f.channels.EXPECT().GetChannel(gomock.Any(), "nope").Return(nil, domain.ErrChannelNotFound)

	_, err := f.svc.FetchPage(context.Background(), "u1", "nope", pagination.Page{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
