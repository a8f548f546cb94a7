package postgres

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) CreateMessage(ctx context.Context, channelID, userID, content string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, qInsertMessage, ulid.Make().String(), channelID, userID, content))
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return m, nil
}

// ListMessages returns one window of the channel log together with the total count.
func (r *MessageRepository) ListMessages(ctx context.Context, channelID string, offset, limit int, order storage.Order) ([]domain.Message, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, qCountMessages, channelID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	if limit <= 0 || offset >= total {
		return []domain.Message{}, total, nil
	}

	q := qListMessagesNewest
	if order == storage.OldestFirst {
		q = qListMessagesOldest
	}
	rows, err := r.db.Query(ctx, q, channelID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *m)
	}
	return out, total, rows.Err()
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	if err := row.Scan(
		&m.ID, &m.ChannelID, &m.UserID, &m.Content, &m.CreatedAt,
		&m.Author.Name, &m.Author.Email, &m.Author.Image,
	); err != nil {
		return nil, err
	}
	m.Author.ID = m.UserID
	return &m, nil
}
