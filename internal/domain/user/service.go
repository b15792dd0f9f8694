package user

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/orders-dashboard/internal/domain/validation"
)

const minPasswordLen = 6

// RegisterRequest holds the fields of a new account.
type RegisterRequest struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// UpdateRequest replaces a user's profile. OldPassword must match the
// stored one; an empty NewPassword keeps it.
type UpdateRequest struct {
	Email       string
	FirstName   string
	LastName    string
	OldPassword string
	NewPassword string
}

// Session is an authenticated user with a freshly issued token.
type Session struct {
	Token string
	User  *User
}

// Service implements account registration, login and profile updates.
type Service struct {
	users  Repository
	tokens TokenIssuer
	cost   int
}

// NewService creates a user Service.
func NewService(users Repository, tokens TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens, cost: bcrypt.DefaultCost}
}

// Register creates an account and signs the user in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	u, err := s.CreateAccount(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.session(u)
}

// CreateAccount validates req, hashes the password and stores the user
// without issuing a token.
func (s *Service) CreateAccount(ctx context.Context, req RegisterRequest) (*User, error) {
	email := normalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FirstName) == "" {
		return nil, validation.Errorf("firstName", "must not be empty")
	}
	if err := validatePassword("password", req.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	u := &User{
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}

	zctx.From(ctx).Info("User registered", zap.Int64("user_id", u.ID))
	return u, nil
}

// Login verifies the credentials and issues a token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

// UpdateProfile changes the profile of user id after checking the old
// password. A new token is issued since the email may have changed.
func (s *Service) UpdateProfile(ctx context.Context, id int64, req UpdateRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FirstName) == "" {
		return nil, validation.Errorf("firstName", "must not be empty")
	}
	if req.NewPassword != "" {
		if err := validatePassword("newPassword", req.NewPassword); err != nil {
			return nil, err
		}
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get user %d", id)
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.OldPassword)); err != nil {
		return nil, ErrWrongPassword
	}

	u.Email = email
	u.FirstName = strings.TrimSpace(req.FirstName)
	u.LastName = strings.TrimSpace(req.LastName)
	if req.NewPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cost)
		if err != nil {
			return nil, errors.Wrap(err, "hash password")
		}
		u.PasswordHash = hash
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, errors.Wrap(err, "update user")
	}
	return s.session(u)
}

func (s *Service) session(u *User) (*Session, error) {
	token, err := s.tokens.Issue(u.Email)
	if err != nil {
		return nil, errors.Wrap(err, "issue token")
	}
	return &Session{Token: token, User: u}, nil
}
