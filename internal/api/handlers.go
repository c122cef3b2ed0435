package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/wendani/giving/internal/coopbank"
	"github.com/wendani/giving/internal/domain"
	"github.com/wendani/giving/internal/payment"
	"github.com/wendani/giving/internal/reconcile"
	"github.com/wendani/giving/internal/repository"
)

// RoleHeader carries the caller's role, set by the upstream auth layer.
const RoleHeader = "X-User-Role"

const roleTreasurer = "treasurer"

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	svc          *payment.Service
	txnRepo      *repository.TransactionRepo
	reconcileSvc *reconcile.Service
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError translates the service error taxonomy to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, payment.ErrMalformedCallback):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coopbank.ErrUnavailable), errors.Is(err, coopbank.ErrRejected):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// requireRole is the explicit authorization check invoked at the start of
// each gated handler. The upstream auth layer (out of scope here) verifies
// the caller and forwards the role header.
func requireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	if r.Header.Get(RoleHeader) != role {
		writeError(w, http.StatusForbidden, "requires role "+role)
		return false
	}
	return true
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

// parseEndTime extends a date-only upper bound to the end of that day so the
// range stays inclusive.
func parseEndTime(s string) *time.Time {
	t := parseTime(s)
	if t == nil {
		return nil
	}
	if len(s) == len("2006-01-02") {
		end := t.Add(24*time.Hour - time.Nanosecond)
		return &end
	}
	return t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- InitiatePayment ---

type initiateRequest struct {
	Name     string            `json:"name"`
	Phone    string            `json:"phone_number"`
	Email    string            `json:"email"`
	Purposes []purposeLineItem `json:"purposes"`
}

type purposeLineItem struct {
	Purpose string          `json:"purpose"`
	Amount  decimal.Decimal `json:"amount"`
	Details string          `json:"details"`
}

func (h *Handlers) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	purposes := make([]domain.PurposeLineItem, 0, len(req.Purposes))
	for _, p := range req.Purposes {
		purposes = append(purposes, domain.PurposeLineItem{
			Purpose: domain.Purpose(p.Purpose),
			Amount:  p.Amount,
			Details: p.Details,
		})
	}

	txn, dispatch, err := h.svc.Initiate(r.Context(), req.Name, req.Phone, req.Email, purposes)
	if err != nil {
		// A dispatch failure has already marked the record FAILED; the
		// caller still learns the reference for later reconciliation.
		if txn != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":     err.Error(),
				"reference": txn.Reference,
				"status":    txn.Status,
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      "STK push initiated successfully. Please enter your PIN.",
		"reference":    txn.Reference,
		"total_amount": txn.TotalAmount,
		"status":       txn.Status,
		"dispatch":     dispatch,
	})
}

// --- ProviderCallback ---

type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ProviderCallback receives the asynchronous gateway result. The endpoint is
// unauthenticated by necessity; the provider is the caller. It acknowledges
// with 200 on every syntactically valid payload, including idempotent
// replays, so provider retries are not mistaken for business errors.
func (h *Handlers) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	var env callbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid callback body: "+err.Error())
		return
	}

	cb := env.Body.StkCallback
	result := payment.CallbackResult{
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode.String(),
		Description:       cb.ResultDesc,
	}
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber", "ReceiptNumber":
			result.Receipt = metadataString(item.Value)
		case "TransactionDate":
			result.DateRaw = metadataString(item.Value)
		}
	}

	txn, err := h.svc.ApplyCallback(r.Context(), result)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The provider may retry before our record is visible.
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		log.Printf("[api] callback for %s failed: %v", result.CheckoutRequestID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "Callback processed successfully",
		"reference": txn.Reference,
	})
}

// metadataString renders a callback metadata value, which the gateway sends
// as either a string or a bare number.
func metadataString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// --- CheckStatus ---

func (h *Handlers) CheckStatus(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		writeError(w, http.StatusBadRequest, "reference is required")
		return
	}

	snap, err := h.svc.CheckStatus(r.Context(), reference)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// --- ListTransactions ---

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, roleTreasurer) {
		return
	}

	q := r.URL.Query()
	filter := repository.Filter{
		Status:  q.Get("status"),
		Purpose: q.Get("purpose"),
		Search:  q.Get("search"),
		From:    parseTime(q.Get("start_date")),
		To:      parseEndTime(q.Get("end_date")),
		Page:    parseIntDefault(q.Get("page"), 1),
		Limit:   parseIntDefault(q.Get("limit"), 50),
	}

	txns, total, err := h.txnRepo.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        total,
		"page":         filter.Page,
		"limit":        filter.Limit,
	})
}

// --- GetTransaction ---

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, roleTreasurer) {
		return
	}

	reference := chi.URLParam(r, "reference")
	txn, err := h.txnRepo.GetByReference(r.Context(), reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transaction": txn,
		"display_tag": txn.DisplayTag(),
	})
}

// --- ReconcilePending ---

func (h *Handlers) ReconcilePending(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, roleTreasurer) {
		return
	}

	olderThan := 5 * time.Minute
	if v := r.URL.Query().Get("older_than_minutes"); v != "" {
		olderThan = time.Duration(parseIntDefault(v, 5)) * time.Minute
	}

	result, err := h.reconcileSvc.Sweep(r.Context(), olderThan)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, roleTreasurer) {
		return
	}

	stats, err := h.txnRepo.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
