package user

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/orders-dashboard/internal/domain/validation"
)

// --- Mock repository ---

type mockRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*User
}

func newMockRepo() *mockRepo {
	return &mockRepo{byID: make(map[int64]*User)}
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *mockRepo) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[u.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range m.byID {
		if id != u.ID && existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

type stubIssuer struct {
	err error
}

func (s stubIssuer) Issue(subject string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "token-for-" + subject, nil
}

func newTestService(repo Repository, issuer TokenIssuer) *Service {
	s := NewService(repo, issuer)
	s.cost = bcrypt.MinCost
	return s
}

func register(t *testing.T, svc *Service) *Session {
	t.Helper()
	sess, err := svc.Register(context.Background(), RegisterRequest{
		Email:     "Admin@Example.com ",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Password:  "secret-pass",
	})
	require.NoError(t, err)
	return sess
}

// --- Tests ---

func TestService_Register(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, stubIssuer{})

	sess := register(t, svc)
	assert.Equal(t, "token-for-admin@example.com", sess.Token)
	assert.Equal(t, int64(1), sess.User.ID)
	assert.Equal(t, "admin@example.com", sess.User.Email)
	assert.NotEqual(t, []byte("secret-pass"), sess.User.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword(sess.User.PasswordHash, []byte("secret-pass")))

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:     "admin@example.com",
		FirstName: "Other",
		Password:  "another-pass",
	})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_CreateAccount_NoIssuer(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, nil)

	u, err := svc.CreateAccount(context.Background(), RegisterRequest{
		Email:     "seed@example.com",
		FirstName: "Seed",
		Password:  "seed-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)

	stored, err := repo.GetByEmail(context.Background(), "seed@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.PasswordHash, stored.PasswordHash)
}

func TestService_Register_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{"empty email", RegisterRequest{FirstName: "A", Password: "secret-pass"}, "email"},
		{"bad email", RegisterRequest{Email: "nope", FirstName: "A", Password: "secret-pass"}, "email"},
		{"empty first name", RegisterRequest{Email: "a@b.c", Password: "secret-pass"}, "firstName"},
		{"short password", RegisterRequest{Email: "a@b.c", FirstName: "A", Password: "123"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMockRepo(), stubIssuer{})
			_, err := svc.Register(context.Background(), tt.req)
			require.ErrorIs(t, err, validation.ErrInvalid)

			var verr *validation.Error
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestService_Login(t *testing.T) {
	svc := newTestService(newMockRepo(), stubIssuer{})
	register(t, svc)

	sess, err := svc.Login(context.Background(), "ADMIN@example.com", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, "token-for-admin@example.com", sess.Token)

	_, err = svc.Login(context.Background(), "admin@example.com", "wrong-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "ghost@example.com", "secret-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Login_IssuerFailure(t *testing.T) {
	repo := newMockRepo()
	register(t, newTestService(repo, stubIssuer{}))

	svc := newTestService(repo, stubIssuer{err: errors.New("no key")})
	_, err := svc.Login(context.Background(), "admin@example.com", "secret-pass")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_UpdateProfile(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, stubIssuer{})
	id := register(t, svc).User.ID

	t.Run("wrong old password", func(t *testing.T) {
		_, err := svc.UpdateProfile(context.Background(), id, UpdateRequest{
			Email:       "admin@example.com",
			FirstName:   "Ada",
			OldPassword: "nope",
		})
		require.ErrorIs(t, err, ErrWrongPassword)
	})

	t.Run("keeps password when new one is empty", func(t *testing.T) {
		sess, err := svc.UpdateProfile(context.Background(), id, UpdateRequest{
			Email:       "ada@example.com",
			FirstName:   "Ada",
			LastName:    "King",
			OldPassword: "secret-pass",
		})
		require.NoError(t, err)
		assert.Equal(t, "token-for-ada@example.com", sess.Token)
		assert.Equal(t, "King", sess.User.LastName)

		_, err = svc.Login(context.Background(), "ada@example.com", "secret-pass")
		require.NoError(t, err)
	})

	t.Run("changes password", func(t *testing.T) {
		_, err := svc.UpdateProfile(context.Background(), id, UpdateRequest{
			Email:       "ada@example.com",
			FirstName:   "Ada",
			OldPassword: "secret-pass",
			NewPassword: "brand-new-pass",
		})
		require.NoError(t, err)

		_, err = svc.Login(context.Background(), "ada@example.com", "secret-pass")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = svc.Login(context.Background(), "ada@example.com", "brand-new-pass")
		require.NoError(t, err)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.UpdateProfile(context.Background(), 99, UpdateRequest{
			Email:       "x@example.com",
			FirstName:   "X",
			OldPassword: "whatever",
		})
		require.ErrorIs(t, err, ErrNotFound)
	})
}
