package payment

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/wendani/giving/internal/coopbank"
	"github.com/wendani/giving/internal/domain"
)

type RepositoryMock struct {
	mock.Mock
}

func (m *RepositoryMock) Create(ctx context.Context, t *domain.Transaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *RepositoryMock) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *RepositoryMock) UpdateReference(ctx context.Context, oldRef, newRef string) error {
	args := m.Called(ctx, oldRef, newRef)
	return args.Error(0)
}

func (m *RepositoryMock) Finalize(ctx context.Context, reference string, status domain.Status, receipt string, date *time.Time) (bool, *domain.Transaction, error) {
	args := m.Called(ctx, reference, status, receipt, date)
	return args.Bool(0), args.Get(1).(*domain.Transaction), args.Error(2)
}

type GatewayMock struct {
	mock.Mock
}

func (m *GatewayMock) Push(ctx context.Context, pr coopbank.PushRequest) (*coopbank.PushResponse, error) {
	args := m.Called(ctx, pr)
	return args.Get(0).(*coopbank.PushResponse), args.Error(1)
}

func (m *GatewayMock) QueryStatus(ctx context.Context, reference string) (*coopbank.StatusResponse, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).(*coopbank.StatusResponse), args.Error(1)
}
