package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"stormwatch/internal/types"
)

// UserRepository provides the minimal user projection the delivery path
// needs: contact details and their verification state.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a single user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, ''),
		        email_verified, phone_verified
		 FROM users
		 WHERE id = $1`,
		id,
	)

	var u types.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.EmailVerified, &u.PhoneVerified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}
	return &u, nil
}
