package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestUserService_SyncUpsertsOnlyOnChange(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUsers(ctrl)
	svc := NewUserService(users)
	name, renamed := "Ann", "Annie"

	users.EXPECT().UpsertUser(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	u := domain.User{ID: "u1", Name: &name, Email: "ann@example.com"}
	req.NoError(svc.Sync(context.Background(), u))
	req.NoError(svc.Sync(context.Background(), u))

	u.Name = &renamed
	req.NoError(svc.Sync(context.Background(), u))

	// no email, nothing to project
	req.NoError(svc.Sync(context.Background(), domain.User{ID: "u2"}))
}

func TestUserService_SyncFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUsers(ctrl)
	svc := NewUserService(users)

	users.EXPECT().UpsertUser(gomock.Any(), gomock.Any()).Return(errors.New("boom"))

	err := svc.Sync(context.Background(), domain.User{ID: "u1", Email: "a@b.c"})
	require.ErrorIs(t, err, domain.ErrPersistence)
}
