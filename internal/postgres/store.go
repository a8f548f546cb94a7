package postgres

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/storage"
)

// Store bundles the repositories behind storage.Store.
type Store struct {
	*ChannelRepository
	*MembershipRepository
	*MessageRepository
	*UserRepository

	db *DB
}

var _ storage.Store = (*Store)(nil)

func NewStore(db *DB) *Store {
	return &Store{
		ChannelRepository:    NewChannelRepository(db.Pool),
		MembershipRepository: NewMembershipRepository(db.Pool),
		MessageRepository:    NewMessageRepository(db.Pool),
		UserRepository:       NewUserRepository(db.Pool),
		db:                   db,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}
