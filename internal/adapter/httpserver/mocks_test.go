package httpserver_test

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/sharow/sharow/internal/domain"
	"github.com/sharow/sharow/internal/usecase"
)

type mockAuth struct{ mock.Mock }

func (m *mockAuth) Signup(ctx context.Context, in usecase.SignupInput) (uuid.UUID, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockAuth) VerifyOTP(ctx context.Context, sessionID, otp string) (usecase.AuthResult, error) {
	args := m.Called(ctx, sessionID, otp)
	return args.Get(0).(usecase.AuthResult), args.Error(1)
}

func (m *mockAuth) ResendOTP(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *mockAuth) Login(ctx context.Context, email, password string) (usecase.AuthResult, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(usecase.AuthResult), args.Error(1)
}

func (m *mockAuth) Refresh(ctx context.Context, refreshToken string) (usecase.AuthResult, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(usecase.AuthResult), args.Error(1)
}

func (m *mockAuth) Authenticate(ctx context.Context, accessToken string) (domain.AuthUser, error) {
	args := m.Called(ctx, accessToken)
	return args.Get(0).(domain.AuthUser), args.Error(1)
}

type mockOAuth struct{ mock.Mock }

func (m *mockOAuth) Begin(provider string) (usecase.OAuthStart, error) {
	args := m.Called(provider)
	return args.Get(0).(usecase.OAuthStart), args.Error(1)
}

func (m *mockOAuth) Callback(ctx context.Context, in usecase.OAuthCallback) (usecase.AuthResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(usecase.AuthResult), args.Error(1)
}

type mockUploads struct{ mock.Mock }

func (m *mockUploads) Upload(ctx context.Context, filename string, data []byte, mime string) (domain.StoredObject, error) {
	args := m.Called(ctx, filename, data, mime)
	return args.Get(0).(domain.StoredObject), args.Error(1)
}

type mockBills struct{ mock.Mock }

func (m *mockBills) Analyze(ctx context.Context, in usecase.AnalyzeBillInput) (usecase.AnalyzeBillResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(usecase.AnalyzeBillResult), args.Error(1)
}

func (m *mockBills) Chat(ctx context.Context, userID, conversationID uuid.UUID, message string) (usecase.ChatReply, error) {
	args := m.Called(ctx, userID, conversationID, message)
	return args.Get(0).(usecase.ChatReply), args.Error(1)
}

func (m *mockBills) List(ctx context.Context, userID uuid.UUID) ([]domain.Bill, error) {
	args := m.Called(ctx, userID)
	bills, _ := args.Get(0).([]domain.Bill)
	return bills, args.Error(1)
}

func (m *mockBills) Get(ctx context.Context, userID uuid.UUID, billID string) (usecase.BillDetail, error) {
	args := m.Called(ctx, userID, billID)
	return args.Get(0).(usecase.BillDetail), args.Error(1)
}
