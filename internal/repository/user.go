package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/strom/internal/domain"
)

type UserRepository struct {
	db dbtx
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: pool}
}

func (r *UserRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx,
		`SELECT user_id, email, name, free, paid, created_at FROM users WHERE user_id = $1`,
		userID,
	).Scan(&u.UserID, &u.Email, &u.Name, &u.Free, &u.Paid, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, u *domain.User) error {
	if err := domain.ValidateUser(u); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid user", err)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (user_id, email, name, free, paid, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.UserID, u.Email, u.Name, u.Free, u.Paid, u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrUserAlreadyExists
	}
	return err
}

// SetPaid flips a user between the free and paid tiers.
func (r *UserRepository) SetPaid(ctx context.Context, userID string, paid bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET paid = $1, free = NOT $1 WHERE user_id = $2`,
		paid, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
