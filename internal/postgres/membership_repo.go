package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MembershipRepository struct {
	db *pgxpool.Pool
}

func NewMembershipRepository(db *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) IsMember(ctx context.Context, userID, channelID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, qIsMember, userID, channelID).Scan(&exists)
	return exists, err
}

func (r *MembershipRepository) GetMembership(ctx context.Context, userID, channelID string) (*domain.Membership, error) {
	var m domain.Membership
	err := r.db.QueryRow(ctx, qGetMember, userID, channelID).Scan(&m.UserID, &m.ChannelID, &m.Role, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotMember
		}
		return nil, err
	}
	return &m, nil
}

// AddMember is idempotent: an existing (user, channel) pair keeps its role.
func (r *MembershipRepository) AddMember(ctx context.Context, m *domain.Membership) error {
	if _, err := r.db.Exec(ctx, qInsertMember, m.UserID, m.ChannelID, m.Role); err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return domain.ErrChannelNotFound
		}
		return err
	}
	return nil
}

func (r *MembershipRepository) ListMembers(ctx context.Context, channelID string) ([]domain.Membership, error) {
	rows, err := r.db.Query(ctx, qListMembers, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.UserID, &m.ChannelID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
