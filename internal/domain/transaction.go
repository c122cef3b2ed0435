package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	// Persisted statuses. PENDING is the initial state; SUCCESS and FAILED
	// are terminal.
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"

	// Transient statuses reported by out-of-band status checks only. They
	// are never written to the store as a transaction's final status.
	StatusProcessing Status = "PROCESSING"
	StatusNotFound   Status = "NOT_FOUND"
	StatusUnknown    Status = "UNKNOWN"
)

// Terminal reports whether the status is one no callback or status check may
// change again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type Purpose string

const (
	PurposeTithe        Purpose = "Tithe"
	PurposeOffering     Purpose = "Offering"
	PurposeLocalBudget  Purpose = "Local Church Budget (LCB)"
	PurposeCampOffering Purpose = "Camp Offering"
	PurposeCampExpenses Purpose = "Camp Expenses"
	PurposeEvangelism   Purpose = "Evangelism"
	PurposeStationDev   Purpose = "Station Dev"
	PurposeOther        Purpose = "Other"
)

var validPurposes = map[Purpose]bool{
	PurposeTithe:        true,
	PurposeOffering:     true,
	PurposeLocalBudget:  true,
	PurposeCampOffering: true,
	PurposeCampExpenses: true,
	PurposeEvangelism:   true,
	PurposeStationDev:   true,
	PurposeOther:        true,
}

// ValidPurpose reports whether p is one of the known giving categories.
func ValidPurpose(p Purpose) bool {
	return validPurposes[p]
}

// MultiPurposeTag marks transactions carrying more than one line item.
const MultiPurposeTag = "Multi-Purpose"

// PurposeLineItem is one categorized portion of a transaction's total.
// Line items are created together with their transaction and are immutable
// afterwards.
type PurposeLineItem struct {
	Purpose Purpose         `json:"purpose"`
	Amount  decimal.Decimal `json:"amount"`
	Details string          `json:"details,omitempty"`
}

type Transaction struct {
	ID              int64             `json:"id"`
	Reference       string            `json:"reference"`
	Name            string            `json:"name"`
	PhoneNumber     string            `json:"phone_number"`
	Email           string            `json:"email,omitempty"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	Status          Status            `json:"status"`
	ReceiptNumber   string            `json:"receipt_number,omitempty"`
	TransactionDate *time.Time        `json:"transaction_date,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Purposes        []PurposeLineItem `json:"purposes"`
}

// NormalizePhone converts a subscriber number to international form: a
// leading 0 is replaced with the Kenyan country code and a leading + is
// stripped. Already-normalized numbers pass through unchanged.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("%w: phone number is required", ErrValidation)
	}
	switch {
	case strings.HasPrefix(phone, "0"):
		phone = "254" + phone[1:]
	case strings.HasPrefix(phone, "+"):
		phone = phone[1:]
	}
	return phone, nil
}

// NewTransaction validates payer details and line items and builds a PENDING
// transaction with a unique checkout reference. The total is the exact
// decimal sum of the line items.
func NewTransaction(name, phone, email string, purposes []PurposeLineItem) (*Transaction, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if len(purposes) == 0 {
		return nil, fmt.Errorf("%w: at least one purpose is required", ErrValidation)
	}

	total := decimal.Zero
	items := make([]PurposeLineItem, 0, len(purposes))
	for i, p := range purposes {
		if !validPurposes[p.Purpose] {
			return nil, fmt.Errorf("%w: unknown purpose %q", ErrValidation, p.Purpose)
		}
		if p.Amount.Cmp(decimal.Zero) <= 0 {
			return nil, fmt.Errorf("%w: purpose %d amount must be positive", ErrValidation, i+1)
		}
		p.Details = strings.TrimSpace(p.Details)
		if p.Purpose == PurposeOther && p.Details == "" {
			return nil, fmt.Errorf("%w: details are required when purpose is Other", ErrValidation)
		}
		if p.Purpose != PurposeOther {
			p.Details = ""
		}
		total = total.Add(p.Amount)
		items = append(items, p)
	}

	now := time.Now().UTC()
	return &Transaction{
		Reference:   newReference(items),
		Name:        name,
		PhoneNumber: normalized,
		Email:       strings.TrimSpace(email),
		TotalAmount: total,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Purposes:    items,
	}, nil
}

// newReference builds the provider account reference. The purpose tag alone
// would collide across simultaneous payers, so a random token is appended.
func newReference(items []PurposeLineItem) string {
	tag := "MULTI"
	if len(items) == 1 {
		tag = strings.ToUpper(strings.ReplaceAll(string(items[0].Purpose), " ", ""))
		if idx := strings.Index(tag, "("); idx > 0 {
			tag = tag[:idx]
		}
	}
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	return fmt.Sprintf("CHURCH-%s-%s", tag, token)
}

// DisplayTag returns the label shown to staff: the single purpose name (or
// its free-text details for Other), or the multi-purpose marker.
func (t *Transaction) DisplayTag() string {
	if len(t.Purposes) != 1 {
		return MultiPurposeTag
	}
	p := t.Purposes[0]
	if p.Purpose == PurposeOther && p.Details != "" {
		return p.Details
	}
	return string(p.Purpose)
}
