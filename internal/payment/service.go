// Package payment orchestrates the giving transaction lifecycle: initiation,
// provider callbacks and out-of-band status reconciliation.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wendani/giving/internal/coopbank"
	"github.com/wendani/giving/internal/domain"
)

// ErrMalformedCallback marks a webhook payload missing its correlation
// identifier. Unlike a replayed callback this is a genuine error the
// provider should retry.
var ErrMalformedCallback = errors.New("malformed callback payload")

// settlementDateLayout is the numeric YYYYMMDDHHMMSS format the gateway
// puts in callback metadata.
const settlementDateLayout = "20060102150405"

type Service struct {
	repo    Repository
	gateway Gateway
	codes   coopbank.CodeTable
}

func NewService(repo Repository, gateway Gateway, codes coopbank.CodeTable) *Service {
	return &Service{repo: repo, gateway: gateway, codes: codes}
}

// CallbackResult is the normalized shape the webhook handler feeds in.
type CallbackResult struct {
	CheckoutRequestID string
	ResultCode        string
	Receipt           string
	DateRaw           string
	Description       string
}

// StatusSnapshot is what a status check returns to the caller. Status may be
// transient (PROCESSING, NOT_FOUND, UNKNOWN) without the stored record
// changing.
type StatusSnapshot struct {
	Reference       string                   `json:"reference"`
	Status          domain.Status            `json:"status"`
	ReceiptNumber   string                   `json:"receipt_number,omitempty"`
	TransactionDate *time.Time               `json:"transaction_date,omitempty"`
	TotalAmount     decimal.Decimal          `json:"total_amount"`
	Purposes        []domain.PurposeLineItem `json:"purposes"`
	Description     string                   `json:"description,omitempty"`
}

// Initiate validates the request, persists a PENDING record and dispatches
// the STK push. The record is written before the provider is contacted so a
// gateway timeout cannot lose it. A dispatch failure finalizes the record as
// FAILED and returns it together with the error; callers suspecting an
// out-of-band success can still reconcile via CheckStatus.
func (s *Service) Initiate(ctx context.Context, name, phone, email string, purposes []domain.PurposeLineItem) (*domain.Transaction, *coopbank.PushResponse, error) {
	t, err := domain.NewTransaction(name, phone, email, purposes)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, nil, fmt.Errorf("persist transaction: %w", err)
	}

	details := make([]coopbank.Detail, 0, len(t.Purposes))
	for _, p := range t.Purposes {
		label := string(p.Purpose)
		if p.Purpose == domain.PurposeOther {
			label = p.Details
		}
		details = append(details, coopbank.Detail{Name: label, Value: p.Amount.String()})
	}

	resp, err := s.gateway.Push(ctx, coopbank.PushRequest{
		Phone:     t.PhoneNumber,
		Amount:    t.TotalAmount.IntPart(),
		Reference: t.Reference,
		Narration: "Contribution for " + t.DisplayTag(),
		Details:   details,
	})
	if err != nil {
		log.Printf("component=payment method=Initiate reference=%s dispatch failed: %v", t.Reference, err)
		if _, failed, ferr := s.repo.Finalize(ctx, t.Reference, domain.StatusFailed, "", nil); ferr == nil {
			t = failed
		}
		return t, nil, err
	}

	// The gateway may issue its own correlation identifier; adopt it so the
	// asynchronous callback matches.
	if resp.CheckoutRequestID != "" && resp.CheckoutRequestID != t.Reference {
		if err := s.repo.UpdateReference(ctx, t.Reference, resp.CheckoutRequestID); err != nil {
			return nil, nil, fmt.Errorf("store correlation id: %w", err)
		}
		t.Reference = resp.CheckoutRequestID
	}

	log.Printf("component=payment method=Initiate reference=%s amount=%s dispatched", t.Reference, t.TotalAmount)
	return t, resp, nil
}

// ApplyCallback applies an asynchronous provider result. Replays against an
// already-finalized transaction return the stored state unchanged; providers
// redeliver callbacks and a duplicate must not look like an error.
func (s *Service) ApplyCallback(ctx context.Context, cb CallbackResult) (*domain.Transaction, error) {
	if cb.CheckoutRequestID == "" {
		return nil, ErrMalformedCallback
	}

	t, err := s.repo.GetByReference(ctx, cb.CheckoutRequestID)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		log.Printf("component=payment method=ApplyCallback reference=%s already %s, ignoring replay", t.Reference, t.Status)
		return t, nil
	}

	status := domain.StatusFailed
	receipt := ""
	var date *time.Time
	if cb.ResultCode == "0" {
		status = domain.StatusSuccess
		receipt = cb.Receipt
		d := parseSettlementDate(cb.DateRaw)
		date = &d
	}

	_, current, err := s.repo.Finalize(ctx, t.Reference, status, receipt, date)
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	log.Printf("component=payment method=ApplyCallback reference=%s code=%s status=%s", current.Reference, cb.ResultCode, current.Status)
	return current, nil
}

// CheckStatus is the synchronous polling path for when no callback arrived.
// Terminal provider results are persisted under the same idempotency rule as
// callbacks; transient results are reported without touching the record.
func (s *Service) CheckStatus(ctx context.Context, reference string) (*StatusSnapshot, error) {
	t, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return snapshot(t, t.Status, ""), nil
	}

	resp, err := s.gateway.QueryStatus(ctx, t.Reference)
	if err != nil {
		return nil, err
	}

	mapped := s.codes.Map(resp.Code)
	if !mapped.Terminal() {
		return snapshot(t, mapped, resp.Description), nil
	}

	receipt := ""
	var date *time.Time
	if mapped == domain.StatusSuccess {
		receipt = resp.Receipt
		d := parseSettlementDate(resp.Date)
		date = &d
	}
	_, current, err := s.repo.Finalize(ctx, t.Reference, mapped, receipt, date)
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	return snapshot(current, current.Status, resp.Description), nil
}

func snapshot(t *domain.Transaction, status domain.Status, desc string) *StatusSnapshot {
	return &StatusSnapshot{
		Reference:       t.Reference,
		Status:          status,
		ReceiptNumber:   t.ReceiptNumber,
		TransactionDate: t.TransactionDate,
		TotalAmount:     t.TotalAmount,
		Purposes:        t.Purposes,
		Description:     desc,
	}
}

// parseSettlementDate parses the gateway's numeric timestamp. Observed
// provider data is sometimes malformed; a bad date falls back to the
// processing time instead of rejecting the whole callback.
func parseSettlementDate(raw string) time.Time {
	if d, err := time.Parse(settlementDateLayout, raw); err == nil {
		return d.UTC()
	}
	return time.Now().UTC()
}
