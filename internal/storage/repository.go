package storage

import (
	"context"
	"errors"

	"slidecast/internal/models"
)

var (
	// ErrInvalidCredentials is returned when a password does not match the
	// stored credential.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when no account exists for the identity.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken and ErrUsernameTaken signal signup conflicts.
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already registered")

	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionAlreadyStarted = errors.New("session already started")
	ErrSessionNotStarted     = errors.New("session not started")
)

// CreateUserParams captures the attributes that can be set when creating a user.
type CreateUserParams struct {
	Username string
	Email    string
	Password string
}

// Repository exposes the datastore operations required by API handlers.
// Implementations own their consistency; callers hold no locks.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
	GetUser(id string) (models.User, bool)

	CreateSession(ownerID, title string) (models.Session, error)
	GetSession(id string) (models.Session, bool)
	ListSessions(ownerID string) []models.Session
	StartSession(id string) (models.Session, error)
	EndSession(id string) (models.Session, error)

	AppendSlides(sessionID string, imageURLs []string) ([]models.Slide, error)
	ListSlides(sessionID string) ([]models.Slide, error)
}

var (
	_ Repository = (*Storage)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
