package service

import (
	"encoding/json"
	"strings"
	"testing"

	"zentrust-donations/internal/config"
	"zentrust-donations/internal/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(config.Donation{MinAmount: 5, MaxAmount: 1000})
	require.NoError(t, err)
	return v
}

func requireFieldError(t *testing.T, err error, field string) {
	t.Helper()

	se, ok := AsError(err)
	require.True(t, ok, "expected service error, got %v", err)
	assert.Equal(t, KindValidation, se.Kind)
	assert.Contains(t, se.Fields, field)
}

// TestValidate_Valid verifies a well-formed request is normalized.
func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	req, err := v.Validate(&dto.CreateIntentRequest{
		Amount:     json.RawMessage(`50`),
		Frequency:  "monthly",
		Email:      " a@b.com ",
		Name:       " Ada ",
		ImpactPath: "soil",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5000), req.Amount.Minor())
	assert.Equal(t, FrequencyMonthly, req.Frequency)
	assert.Equal(t, "a@b.com", req.Email)
	assert.Equal(t, "Ada", req.Name)
	assert.Equal(t, "soil", req.ImpactPath)
}

// TestValidate_Amount verifies amount parsing and the closed [min, max] interval.
func TestValidate_Amount(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)

	tests := []struct {
		name  string
		raw   string
		valid bool
	}{
		{name: "lower bound", raw: `5`, valid: true},
		{name: "upper bound", raw: `1000`, valid: true},
		{name: "cents", raw: `12.34`, valid: true},
		{name: "below min", raw: `4.99`},
		{name: "above max", raw: `1000.01`},
		{name: "zero", raw: `0`},
		{name: "negative", raw: `-10`},
		{name: "sub-cent", raw: `10.001`},
		{name: "tiny exponent", raw: `1e-99999999`},
		{name: "huge exponent", raw: `1e99999999`},
		{name: "string", raw: `"50"`},
		{name: "null", raw: `null`},
		{name: "bool", raw: `true`},
		{name: "missing", raw: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(&dto.CreateIntentRequest{
				Amount:    json.RawMessage(tt.raw),
				Frequency: "once",
			})
			if tt.valid {
				require.NoError(t, err)
				return
			}
			requireFieldError(t, err, "amount")
		})
	}
}

// TestValidate_Frequency verifies only the two exact values are accepted.
func TestValidate_Frequency(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)

	for _, f := range []string{"", "weekly", "Once", "MONTHLY", "yearly"} {
		_, err := v.Validate(&dto.CreateIntentRequest{
			Amount:    json.RawMessage(`10`),
			Frequency: f,
		})
		requireFieldError(t, err, "frequency")
	}
}

// TestValidate_Email verifies email is checked for shape only when present.
func TestValidate_Email(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)

	for _, email := range []string{"not-an-email", "Bob <bob@example.com>", "bob@localhost", "@example.com"} {
		_, err := v.Validate(&dto.CreateIntentRequest{
			Amount:    json.RawMessage(`10`),
			Frequency: "once",
			Email:     email,
		})
		requireFieldError(t, err, "email")
	}

	req, err := v.Validate(&dto.CreateIntentRequest{Amount: json.RawMessage(`10`), Frequency: "once"})
	require.NoError(t, err)
	assert.Empty(t, req.Email)
}

// TestValidate_ReportsAllFields verifies every failing field is reported together.
func TestValidate_ReportsAllFields(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	_, err := v.Validate(&dto.CreateIntentRequest{
		Amount:     json.RawMessage(`"lots"`),
		Frequency:  "daily",
		Email:      "nope",
		ImpactPath: strings.Repeat("x", maxImpactPathLength+1),
	})

	se, ok := AsError(err)
	require.True(t, ok)
	assert.Len(t, se.Fields, 4)
}

// TestNewValidator_RejectsBadBounds verifies misconfigured bounds fail fast.
func TestNewValidator_RejectsBadBounds(t *testing.T) {
	t.Parallel()

	_, err := NewValidator(config.Donation{MinAmount: 0, MaxAmount: 10})
	assert.Error(t, err)

	_, err = NewValidator(config.Donation{MinAmount: 10, MaxAmount: 5})
	assert.Error(t, err)
}
