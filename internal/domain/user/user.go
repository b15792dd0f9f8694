// Package user manages dashboard accounts.
package user

import (
	"context"
	"net/mail"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/orders-dashboard/internal/domain/validation"
)

var (
	// ErrNotFound is returned when a user id or email does not resolve.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering or switching to an email in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned when an email/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWrongPassword is returned when a profile update carries a wrong
	// current password.
	ErrWrongPassword = errors.New("old password does not match")
)

// User is a dashboard operator.
type User struct {
	ID           int64
	Email        string
	FirstName    string
	LastName     string
	PasswordHash []byte
}

// Repository defines persistence for users. Create and Update return
// ErrEmailTaken on a duplicate email.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
}

// TokenIssuer signs a credential for the given subject.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return validation.Errorf("email", "must not be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return validation.Errorf("email", "is not a valid address")
	}
	return nil
}

func validatePassword(field, password string) error {
	if len(password) < minPasswordLen {
		return validation.Errorf(field, "must be at least %d characters", minPasswordLen)
	}
	// bcrypt rejects longer inputs.
	if len(password) > 72 {
		return validation.Errorf(field, "must be at most 72 bytes")
	}
	return nil
}
