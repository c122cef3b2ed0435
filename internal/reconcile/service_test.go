package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wendani/giving/internal/domain"
	"github.com/wendani/giving/internal/payment"
)

type listerStub struct {
	txns []domain.Transaction
	err  error
}

func (s *listerStub) ListPendingBefore(_ context.Context, _ time.Time) ([]domain.Transaction, error) {
	return s.txns, s.err
}

type checkerStub struct {
	results map[string]domain.Status
	errs    map[string]error
}

func (s *checkerStub) CheckStatus(_ context.Context, reference string) (*payment.StatusSnapshot, error) {
	if err, ok := s.errs[reference]; ok {
		return nil, err
	}
	return &payment.StatusSnapshot{Reference: reference, Status: s.results[reference]}, nil
}

func TestSweep(t *testing.T) {
	lister := &listerStub{txns: []domain.Transaction{
		{Reference: "ws_CO_1"},
		{Reference: "ws_CO_2"},
		{Reference: "ws_CO_3"},
		{Reference: "ws_CO_4"},
	}}
	checker := &checkerStub{
		results: map[string]domain.Status{
			"ws_CO_1": domain.StatusSuccess,
			"ws_CO_2": domain.StatusFailed,
			"ws_CO_3": domain.StatusProcessing,
		},
		errs: map[string]error{
			"ws_CO_4": errors.New("provider timeout"),
		},
	}

	svc := NewService(lister, checker)
	result, err := svc.Sweep(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 3, result.Checked)
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.StillPending)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "ws_CO_4")
}

func TestSweep_ListError(t *testing.T) {
	lister := &listerStub{err: errors.New("db closed")}
	svc := NewService(lister, &checkerStub{})

	_, err := svc.Sweep(context.Background(), time.Minute)
	require.Error(t, err)
}

func TestSweep_NothingPending(t *testing.T) {
	svc := NewService(&listerStub{}, &checkerStub{})

	result, err := svc.Sweep(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Zero(t, result.Checked)
	require.Empty(t, result.Errors)
}
