// Package authpw provides username/password sign-up and sign-in for
// harmonizers.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"supernova/api/internal/routes"
	"supernova/api/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already registered")
)

const minPasswordLength = 8

// UserStore is the slice of the harmonizer store this package needs.
type UserStore interface {
	WithConn(ctx context.Context, fn func(store.Querier) error) error
	GetByUsername(ctx context.Context, q store.Querier, username string) (store.Harmonizer, error)
	Create(ctx context.Context, q store.Querier, h store.Harmonizer) error
}

type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

type SignUpRequest struct {
	Username string
	Email    string
	Password string
	Bio      string
}

// SignUp creates an active, non-admin harmonizer.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.Harmonizer, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	switch {
	case username == "":
		return store.Harmonizer{}, routes.Invalid("username", "username is required")
	case email == "":
		return store.Harmonizer{}, routes.Invalid("email", "email is required")
	case len(req.Password) < minPasswordLength:
		return store.Harmonizer{}, routes.Invalid("password", "password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.Harmonizer{}, fmt.Errorf("hash password: %w", err)
	}
	created := store.Harmonizer{
		Username:       username,
		Email:          email,
		HashedPassword: string(hash),
		Bio:            strings.TrimSpace(req.Bio),
		IsActive:       true,
	}

	err = s.store.WithConn(ctx, func(q store.Querier) error {
		_, err := s.store.GetByUsername(ctx, q, username)
		if err == nil {
			return ErrUsernameTaken
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup harmonizer: %w", err)
		}
		return s.store.Create(ctx, q, created)
	})
	if err != nil {
		return store.Harmonizer{}, err
	}
	return created, nil
}

type SignInRequest struct {
	Username string
	Password string
}

// SignIn verifies the password of an active harmonizer. Unknown users,
// inactive users and wrong passwords are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.Harmonizer, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return store.Harmonizer{}, ErrInvalidCredentials
	}

	var found store.Harmonizer
	err := s.store.WithConn(ctx, func(q store.Querier) error {
		h, err := s.store.GetByUsername(ctx, q, username)
		if err != nil {
			return err
		}
		found = h
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return store.Harmonizer{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.Harmonizer{}, fmt.Errorf("lookup harmonizer: %w", err)
	}
	if !found.IsActive {
		return store.Harmonizer{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(found.HashedPassword), []byte(req.Password)); err != nil {
		return store.Harmonizer{}, ErrInvalidCredentials
	}
	return found, nil
}
