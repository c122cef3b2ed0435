// Package reconcile sweeps PENDING transactions whose provider callback never
// arrived and resolves them through the status-check path. The sweep is
// request-driven (a treasurer endpoint), not a background scheduler.
package reconcile

import (
	"context"
	"log"
	"time"

	"github.com/wendani/giving/internal/domain"
	"github.com/wendani/giving/internal/payment"
)

// Result summarises a reconciliation sweep.
type Result struct {
	Checked      int      `json:"checked"`
	Succeeded    int      `json:"succeeded"`
	Failed       int      `json:"failed"`
	StillPending int      `json:"still_pending"`
	Errors       []string `json:"errors,omitempty"`
}

// PendingLister is the slice of the repository the sweep needs.
type PendingLister interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Transaction, error)
}

// StatusChecker resolves one transaction's status against the provider.
type StatusChecker interface {
	CheckStatus(ctx context.Context, reference string) (*payment.StatusSnapshot, error)
}

type Service struct {
	repo    PendingLister
	checker StatusChecker
}

func NewService(repo PendingLister, checker StatusChecker) *Service {
	return &Service{repo: repo, checker: checker}
}

// Sweep checks every PENDING transaction older than the cutoff against the
// provider. A failure on one record does not abort the run; it is collected
// and the sweep continues.
func (s *Service) Sweep(ctx context.Context, olderThan time.Duration) (*Result, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	pending, err := s.repo.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, t := range pending {
		snap, err := s.checker.CheckStatus(ctx, t.Reference)
		if err != nil {
			result.Errors = append(result.Errors, t.Reference+": "+err.Error())
			continue
		}
		result.Checked++
		switch snap.Status {
		case domain.StatusSuccess:
			result.Succeeded++
		case domain.StatusFailed:
			result.Failed++
		default:
			result.StillPending++
		}
	}

	log.Printf("[reconcile] sweep done: checked=%d succeeded=%d failed=%d still_pending=%d errors=%d",
		result.Checked, result.Succeeded, result.Failed, result.StillPending, len(result.Errors))
	return result, nil
}
