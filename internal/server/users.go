package server

import (
	"context"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// StaticUserRepo authenticates a single operator configured with a bcrypt
// hash, for deployments without a database.
type StaticUserRepo struct {
	username string
	hash     []byte
}

func NewStaticUserRepo(username, passwordHash string) *StaticUserRepo {
	return &StaticUserRepo{username: username, hash: []byte(passwordHash)}
}

func (r *StaticUserRepo) ValidateUser(_ context.Context, username, password string) (bool, error) {
	if subtle.ConstantTimeCompare([]byte(username), []byte(r.username)) != 1 {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword(r.hash, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
