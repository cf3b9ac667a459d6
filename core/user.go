package core

import (
	"context"
	"time"
)

type (
	User struct {
		ID           string    `json:"id"`
		Subject      string    `json:"-"` // stable identity key: the user ID, or "github:<id>" for OAuth users
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	// RefreshToken is a persisted long-lived credential that can be revoked.
	RefreshToken struct {
		Token     string
		Subject   string
		ExpiresAt time.Time
		CreatedAt time.Time
		Revoked   bool
	}

	UserStore interface {
		// CreateUser stores a new user and returns its generated ID. When the
		// user carries no Subject, the ID becomes the subject.
		CreateUser(ctx context.Context, user *User) (string, error)
		// FindUserByEmail returns ErrNotFound when no user has that email.
		FindUserByEmail(ctx context.Context, email string) (*User, error)
		// FindUserBySubject returns ErrNotFound when no user has that subject.
		FindUserBySubject(ctx context.Context, subject string) (*User, error)
	}

	TokenStore interface {
		SaveRefreshToken(ctx context.Context, token *RefreshToken) error
		// FindRefreshToken returns ErrNotFound for unknown or revoked tokens.
		FindRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
		RevokeRefreshToken(ctx context.Context, token string) error
	}
)
