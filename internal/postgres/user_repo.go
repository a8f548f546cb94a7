package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := r.db.QueryRow(ctx, qGetUser, id).Scan(&u.ID, &u.Name, &u.Email, &u.Image); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) UpsertUser(ctx context.Context, u *domain.User) error {
	if _, err := r.db.Exec(ctx, qUpsertUser, u.ID, u.Name, u.Email, u.Image); err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}
