package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"golang.org/x/crypto/bcrypt"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/db"
)

type UserRepo struct {
	db db.DB
}

func NewUserRepo(db db.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) CreateUser(ctx context.Context, username, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return r.upsert(ctx, username, string(hashedPassword))
}

// SetPasswordHash stores an already bcrypt-hashed password as is.
func (r *UserRepo) SetPasswordHash(ctx context.Context, username, hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("password hash for %s: %w", username, err)
	}
	return r.upsert(ctx, username, hash)
}

// EnsureOperator creates or updates the operator account. A plain password
// wins over a precomputed hash when both are given.
func (r *UserRepo) EnsureOperator(ctx context.Context, username, password, hash string) error {
	if username == "" {
		return errors.New("operator username is required")
	}
	switch {
	case password != "":
		return r.CreateUser(ctx, username, password)
	case hash != "":
		return r.SetPasswordHash(ctx, username, hash)
	default:
		return fmt.Errorf("no password given for operator %s", username)
	}
}

func (r *UserRepo) upsert(ctx context.Context, username, hash string) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO users (username, password) VALUES ($1, $2)
        ON CONFLICT (username) DO UPDATE SET password = EXCLUDED.password
    `, username, hash)
	if err != nil {
		return fmt.Errorf("saving user %s: %w", username, err)
	}
	return nil
}

// ValidateUser reports whether the password matches the stored bcrypt hash.
// An unknown user is (false, nil).
func (r *UserRepo) ValidateUser(ctx context.Context, username, password string) (bool, error) {
	var hashedPassword string
	err := r.db.ExecQueryRow(ctx,
		"SELECT password FROM users WHERE username = $1", username).Scan(&hashedPassword)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("loading user %s: %w", username, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}
