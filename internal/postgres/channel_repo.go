package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChannelRepository struct {
	db *pgxpool.Pool
}

func NewChannelRepository(db *pgxpool.Pool) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// CreateChannel inserts the channel and the owner's ADMIN membership in one transaction.
func (r *ChannelRepository) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, qInsertChannel, ch.Name, ch.Description, ch.IsPrivate, ch.OwnerID).
		Scan(&ch.ID, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}

	if _, err := tx.Exec(ctx, qInsertMember, ch.OwnerID, ch.ID, domain.RoleAdmin); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *ChannelRepository) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	ch, err := scanChannel(r.db.QueryRow(ctx, qGetChannel, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return ch, nil
}

func (r *ChannelRepository) FindChannelByName(ctx context.Context, ownerID, name string) (*domain.Channel, error) {
	ch, err := scanChannel(r.db.QueryRow(ctx, qFindChannelByName, ownerID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return ch, nil
}

func (r *ChannelRepository) ListVisibleChannels(ctx context.Context, userID string) ([]domain.Channel, error) {
	rows, err := r.db.Query(ctx, qListVisibleChannels, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

func scanChannel(row pgx.Row) (*domain.Channel, error) {
	var ch domain.Channel
	if err := row.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.IsPrivate, &ch.OwnerID, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
		return nil, err
	}
	return &ch, nil
}
