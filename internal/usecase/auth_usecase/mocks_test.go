package auth

import (
	"context"
	"time"

	"github.com/KCSSB/DontAsk/internal/domain/model"

	"github.com/stretchr/testify/mock"
)

// =====================
// Mock: UserRepository
// =====================

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *MockUserRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

// =====================
// Mock: PasswordHasher / PasswordVerifier
// =====================

type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) Hash(plain string) (string, error) {
	args := m.Called(plain)
	return args.String(0), args.Error(1)
}

type MockPasswordVerifier struct {
	mock.Mock
}

func (m *MockPasswordVerifier) Verify(plain string, hashed string) bool {
	args := m.Called(plain, hashed)
	return args.Bool(0)
}

// =====================
// Mock: RefreshTokenIssuer / AccessTokenIssuer
// =====================

type MockRefreshTokenIssuer struct {
	mock.Mock
}

func (m *MockRefreshTokenIssuer) IssueForLogin(ctx context.Context, user *model.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

type MockAccessTokenIssuer struct {
	mock.Mock
}

func (m *MockAccessTokenIssuer) Issue(user *model.User) (string, time.Time, error) {
	args := m.Called(user)
	exp, _ := args.Get(1).(time.Time)
	return args.String(0), exp, args.Error(2)
}

// 固定ID
type fixedIDGenerator struct{ id string }

func (g fixedIDGenerator) NewID() string { return g.id }
