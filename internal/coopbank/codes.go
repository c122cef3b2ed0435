package coopbank

import "github.com/wendani/giving/internal/domain"

// CodeTable maps gateway result codes to transaction statuses. The exact
// code sets vary by provider and environment, so they are configuration
// rather than business logic; unknown codes map to UNKNOWN.
type CodeTable struct {
	Success    map[string]bool
	Failed     map[string]bool
	Processing map[string]bool
	NotFound   map[string]bool
}

// DefaultCodeTable covers the codes observed on the Co-op Bank / Daraja
// status endpoints.
func DefaultCodeTable() CodeTable {
	return CodeTable{
		Success: map[string]bool{"0": true},
		Failed: map[string]bool{
			"1":    true, // insufficient funds
			"1032": true, // cancelled by user
			"1037": true, // prompt timed out
			"2001": true, // wrong PIN
		},
		Processing: map[string]bool{
			"1001":         true, // subscriber busy
			"500.001.1001": true, // still being processed
		},
		NotFound: map[string]bool{
			"404.001.03": true, // invalid or expired reference
		},
	}
}

// Map resolves a gateway result code to a status.
func (t CodeTable) Map(code string) domain.Status {
	switch {
	case t.Success[code]:
		return domain.StatusSuccess
	case t.Failed[code]:
		return domain.StatusFailed
	case t.Processing[code]:
		return domain.StatusProcessing
	case t.NotFound[code]:
		return domain.StatusNotFound
	default:
		return domain.StatusUnknown
	}
}
