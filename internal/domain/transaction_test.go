package domain

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	var tests = []struct {
		name     string
		in       string
		expected string
		wantErr  bool
	}{
		{name: "leading zero", in: "0712345678", expected: "254712345678"},
		{name: "leading plus", in: "+254712345678", expected: "254712345678"},
		{name: "already normalized", in: "254712345678", expected: "254712345678"},
		{name: "surrounding whitespace", in: " 0712345678 ", expected: "254712345678"},
		{name: "empty", in: "", wantErr: true},
		{name: "whitespace only", in: "   ", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				require.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestNewTransaction_Validation(t *testing.T) {
	amount := decimal.NewFromInt(500)

	var tests = []struct {
		name     string
		payer    string
		phone    string
		purposes []PurposeLineItem
	}{
		{name: "missing name", payer: "", phone: "0712345678",
			purposes: []PurposeLineItem{{Purpose: PurposeTithe, Amount: amount}}},
		{name: "missing phone", payer: "Jane", phone: "",
			purposes: []PurposeLineItem{{Purpose: PurposeTithe, Amount: amount}}},
		{name: "no purposes", payer: "Jane", phone: "0712345678", purposes: nil},
		{name: "zero amount", payer: "Jane", phone: "0712345678",
			purposes: []PurposeLineItem{{Purpose: PurposeTithe, Amount: decimal.Zero}}},
		{name: "negative amount", payer: "Jane", phone: "0712345678",
			purposes: []PurposeLineItem{{Purpose: PurposeTithe, Amount: decimal.NewFromInt(-5)}}},
		{name: "unknown purpose", payer: "Jane", phone: "0712345678",
			purposes: []PurposeLineItem{{Purpose: "Lunch", Amount: amount}}},
		{name: "other without details", payer: "Jane", phone: "0712345678",
			purposes: []PurposeLineItem{{Purpose: PurposeOther, Amount: amount}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransaction(tt.payer, tt.phone, "", tt.purposes)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNewTransaction_TotalIsExactSum(t *testing.T) {
	a, _ := decimal.NewFromString("0.10")
	b, _ := decimal.NewFromString("0.20")
	c, _ := decimal.NewFromString("0.30")

	txn, err := NewTransaction("Jane Wanjiru", "0712345678", "jane@example.com", []PurposeLineItem{
		{Purpose: PurposeTithe, Amount: a},
		{Purpose: PurposeOffering, Amount: b},
		{Purpose: PurposeEvangelism, Amount: c},
	})
	require.NoError(t, err)
	require.True(t, txn.TotalAmount.Equal(decimal.RequireFromString("0.60")),
		"total %s should equal 0.60", txn.TotalAmount)
	require.Equal(t, StatusPending, txn.Status)
	require.Equal(t, "254712345678", txn.PhoneNumber)
	require.Len(t, txn.Purposes, 3)
}

func TestNewTransaction_SinglePurpose(t *testing.T) {
	txn, err := NewTransaction("Jane", "0712345678", "", []PurposeLineItem{
		{Purpose: PurposeTithe, Amount: decimal.NewFromInt(500)},
	})
	require.NoError(t, err)
	require.True(t, txn.TotalAmount.Equal(decimal.NewFromInt(500)))
	require.True(t, strings.HasPrefix(txn.Reference, "CHURCH-TITHE-"))
	require.Equal(t, "Tithe", txn.DisplayTag())
}

func TestNewTransaction_ClearsDetailsForKnownPurposes(t *testing.T) {
	txn, err := NewTransaction("Jane", "0712345678", "", []PurposeLineItem{
		{Purpose: PurposeOffering, Amount: decimal.NewFromInt(100), Details: "should be dropped"},
	})
	require.NoError(t, err)
	require.Empty(t, txn.Purposes[0].Details)
}

func TestNewTransaction_UniqueReferences(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		txn, err := NewTransaction("Jane", "0712345678", "", []PurposeLineItem{
			{Purpose: PurposeTithe, Amount: decimal.NewFromInt(500)},
		})
		require.NoError(t, err)
		require.False(t, seen[txn.Reference], "duplicate reference %s", txn.Reference)
		seen[txn.Reference] = true
	}
}

func TestDisplayTag(t *testing.T) {
	amount := decimal.NewFromInt(100)

	var tests = []struct {
		name     string
		purposes []PurposeLineItem
		expected string
	}{
		{
			name:     "single purpose",
			purposes: []PurposeLineItem{{Purpose: PurposeCampOffering, Amount: amount}},
			expected: "Camp Offering",
		},
		{
			name:     "other uses details",
			purposes: []PurposeLineItem{{Purpose: PurposeOther, Amount: amount, Details: "Roof fund"}},
			expected: "Roof fund",
		},
		{
			name: "multiple purposes",
			purposes: []PurposeLineItem{
				{Purpose: PurposeTithe, Amount: amount},
				{Purpose: PurposeOffering, Amount: amount},
			},
			expected: MultiPurposeTag,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			txn, err := NewTransaction("Jane", "0712345678", "", tt.purposes)
			require.NoError(t, err)
			require.Equal(t, tt.expected, txn.DisplayTag())
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, StatusSuccess.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusProcessing.Terminal())
	require.False(t, StatusNotFound.Terminal())
	require.False(t, StatusUnknown.Terminal())
}
