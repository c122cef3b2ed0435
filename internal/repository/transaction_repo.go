package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wendani/giving/internal/domain"
)

type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// Create inserts the transaction and its line items in one SQL transaction
// and assigns the generated ID. Amounts are stored as decimal strings so
// totals stay exact.
func (r *TransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx,
		`INSERT INTO transactions
		(reference, name, phone_number, email, total_amount, status,
		 receipt_number, transaction_date, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.Reference, t.Name, t.PhoneNumber, nullString(t.Email),
		t.TotalAmount.String(), string(t.Status), nullString(t.ReceiptNumber),
		formatNullableTime(t.TransactionDate),
		t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	stmt, err := sqlTx.PrepareContext(ctx,
		`INSERT INTO transaction_purposes (transaction_id, purpose, amount, details)
		VALUES (?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, p := range t.Purposes {
		if _, err := stmt.ExecContext(ctx, id, string(p.Purpose), p.Amount.String(), nullString(p.Details)); err != nil {
			return fmt.Errorf("insert purpose %d: %w", i, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.ID = id
	return nil
}

func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT * FROM transactions WHERE reference = ?", reference)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadPurposes(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT * FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadPurposes(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateReference swaps the self-issued reference for the provider-assigned
// correlation identifier so later callbacks match.
func (r *TransactionRepo) UpdateReference(ctx context.Context, oldRef, newRef string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE transactions SET reference = ?, updated_at = ? WHERE reference = ?",
		newRef, time.Now().UTC().Format(time.RFC3339), oldRef,
	)
	if err != nil {
		return fmt.Errorf("update reference: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Finalize transitions the referenced transaction to the given terminal
// status with a single conditional update: the write only lands while the
// record is still PENDING. When the record was already finalized the update
// is a no-op and the caller gets updated=false plus the current state, which
// is how a webhook replay or a lost status-check race resolves.
func (r *TransactionRepo) Finalize(ctx context.Context, reference string, status domain.Status, receipt string, date *time.Time) (bool, *domain.Transaction, error) {
	if !status.Terminal() {
		return false, nil, fmt.Errorf("finalize to non-terminal status %q", status)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET status = ?, receipt_number = ?, transaction_date = ?, updated_at = ?
		 WHERE reference = ? AND status = ?`,
		string(status), nullString(receipt), formatNullableTime(date),
		time.Now().UTC().Format(time.RFC3339),
		reference, string(domain.StatusPending),
	)
	if err != nil {
		return false, nil, fmt.Errorf("finalize: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("rows affected: %w", err)
	}

	t, err := r.GetByReference(ctx, reference)
	if err != nil {
		return false, nil, err
	}
	return affected > 0, t, nil
}

// Filter narrows a transaction listing. Purpose matches when any line item
// carries that category; Search matches name, phone, email or receipt;
// From/To bound the settlement timestamp inclusively.
type Filter struct {
	Status  string
	Purpose string
	Search  string
	From    *time.Time
	To      *time.Time
	Page    int
	Limit   int
}

func (r *TransactionRepo) List(ctx context.Context, f Filter) ([]domain.Transaction, int, error) {
	where, args := buildTransactionWhere(f)

	var total int
	countSQL := "SELECT COUNT(*) FROM transactions" + where
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	querySQL := "SELECT * FROM transactions" + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransactionRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range txns {
		if err := r.loadPurposes(ctx, &txns[i]); err != nil {
			return nil, 0, err
		}
	}
	return txns, total, nil
}

// ListPendingBefore returns PENDING transactions created before the cutoff,
// oldest first. Used by the reconciliation sweep to find records whose
// callback never arrived.
func (r *TransactionRepo) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT * FROM transactions
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at`,
		string(domain.StatusPending), cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransactionRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// Stats holds aggregate giving statistics for the treasurer dashboard.
type Stats struct {
	Total        int                        `json:"total"`
	Pending      int                        `json:"pending"`
	Succeeded    int                        `json:"succeeded"`
	Failed       int                        `json:"failed"`
	SucceededKES decimal.Decimal            `json:"succeeded_kes"`
	ByPurpose    map[string]decimal.Decimal `json:"by_purpose"`
}

func (r *TransactionRepo) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{ByPurpose: map[string]decimal.Decimal{}, SucceededKES: decimal.Zero}

	rows, err := r.db.QueryContext(ctx, "SELECT status, total_amount FROM transactions")
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, amount string
		if err := rows.Scan(&status, &amount); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		s.Total++
		switch domain.Status(status) {
		case domain.StatusPending:
			s.Pending++
		case domain.StatusSuccess:
			s.Succeeded++
			d, err := decimal.NewFromString(amount)
			if err != nil {
				return nil, fmt.Errorf("parse amount %q: %w", amount, err)
			}
			s.SucceededKES = s.SucceededKES.Add(d)
		case domain.StatusFailed:
			s.Failed++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Per-purpose sums over settled givings only.
	prows, err := r.db.QueryContext(ctx,
		`SELECT p.purpose, p.amount
		 FROM transaction_purposes p
		 JOIN transactions t ON t.id = p.transaction_id
		 WHERE t.status = ?`,
		string(domain.StatusSuccess),
	)
	if err != nil {
		return nil, fmt.Errorf("query purposes: %w", err)
	}
	defer prows.Close()

	for prows.Next() {
		var purpose, amount string
		if err := prows.Scan(&purpose, &amount); err != nil {
			return nil, fmt.Errorf("scan purpose: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		cur, ok := s.ByPurpose[purpose]
		if !ok {
			cur = decimal.Zero
		}
		s.ByPurpose[purpose] = cur.Add(d)
	}
	return s, prows.Err()
}

// --- helpers ---

func buildTransactionWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any

	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Purpose != "" {
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM transaction_purposes p WHERE p.transaction_id = transactions.id AND p.purpose = ?)")
		args = append(args, f.Purpose)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		clauses = append(clauses,
			"(name LIKE ? OR phone_number LIKE ? OR email LIKE ? OR receipt_number LIKE ?)")
		args = append(args, like, like, like, like)
	}
	if f.From != nil {
		clauses = append(clauses, "transaction_date >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "transaction_date <= ?")
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *TransactionRepo) loadPurposes(ctx context.Context, t *domain.Transaction) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT purpose, amount, details FROM transaction_purposes WHERE transaction_id = ? ORDER BY id",
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("query purposes: %w", err)
	}
	defer rows.Close()

	var items []domain.PurposeLineItem
	for rows.Next() {
		var purpose, amount string
		var details sql.NullString
		if err := rows.Scan(&purpose, &amount, &details); err != nil {
			return fmt.Errorf("scan purpose: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("parse amount %q: %w", amount, err)
		}
		items = append(items, domain.PurposeLineItem{
			Purpose: domain.Purpose(purpose),
			Amount:  d,
			Details: details.String,
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}
	t.Purposes = items
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var status, totalAmount, createdAt, updatedAt string
	var email, receipt, txnDate sql.NullString

	err := s.Scan(
		&t.ID, &t.Reference, &t.Name, &t.PhoneNumber, &email,
		&totalAmount, &status, &receipt, &txnDate, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	total, err := decimal.NewFromString(totalAmount)
	if err != nil {
		return nil, fmt.Errorf("parse total %q: %w", totalAmount, err)
	}
	t.TotalAmount = total
	t.Status = domain.Status(status)
	t.Email = email.String
	t.ReceiptNumber = receipt.String
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if txnDate.Valid {
		d, err := time.Parse(time.RFC3339, txnDate.String)
		if err == nil {
			t.TransactionDate = &d
		}
	}
	return &t, nil
}

func scanTransaction(row *sql.Row) (*domain.Transaction, error) {
	return scanRow(row)
}

func scanTransactionRows(rows *sql.Rows) (*domain.Transaction, error) {
	return scanRow(rows)
}
