package payment

import (
	"context"
	"time"

	"github.com/wendani/giving/internal/coopbank"
	"github.com/wendani/giving/internal/domain"
)

// Repository defines the persistence the transaction manager needs.
type Repository interface {
	Create(ctx context.Context, t *domain.Transaction) error
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	UpdateReference(ctx context.Context, oldRef, newRef string) error
	Finalize(ctx context.Context, reference string, status domain.Status, receipt string, date *time.Time) (bool, *domain.Transaction, error)
}

// Gateway defines the outbound provider calls.
type Gateway interface {
	Push(ctx context.Context, pr coopbank.PushRequest) (*coopbank.PushResponse, error)
	QueryStatus(ctx context.Context, reference string) (*coopbank.StatusResponse, error)
}
