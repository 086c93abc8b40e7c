package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"zentrust-donations/internal/config"
	"zentrust-donations/internal/dto"
	"zentrust-donations/internal/money"
)

type Frequency string

const (
	FrequencyOnce    Frequency = "once"
	FrequencyMonthly Frequency = "monthly"
)

const (
	maxNameLength           = 200
	maxImpactPathLength     = 128
	maxIdempotencyKeyLength = 255
)

// DonationRequest is a create-intent request that passed validation.
type DonationRequest struct {
	Amount         money.Amount
	Frequency      Frequency
	ImpactPath     string
	Name           string
	Email          string
	IdempotencyKey string
}

type Validator struct {
	min money.Amount
	max money.Amount
}

func NewValidator(cfg config.Donation) (*Validator, error) {
	lo, err := money.FromMajor(cfg.MinAmount)
	if err != nil {
		return nil, fmt.Errorf("min amount: %w", err)
	}
	hi, err := money.FromMajor(cfg.MaxAmount)
	if err != nil {
		return nil, fmt.Errorf("max amount: %w", err)
	}
	if hi.Minor() < lo.Minor() {
		return nil, fmt.Errorf("max amount %s below min amount %s", hi, lo)
	}

	return &Validator{min: lo, max: hi}, nil
}

// Validate checks every field and reports all failures at once.
func (v *Validator) Validate(req *dto.CreateIntentRequest) (*DonationRequest, error) {
	fields := make(map[string]string)
	out := &DonationRequest{}

	amount, err := parseAmount(req.Amount)
	switch {
	case err != nil:
		fields["amount"] = err.Error()
	case !amount.Within(v.min, v.max):
		fields["amount"] = fmt.Sprintf("must be between %s and %s", v.min, v.max)
	default:
		out.Amount = amount
	}

	switch Frequency(req.Frequency) {
	case FrequencyOnce, FrequencyMonthly:
		out.Frequency = Frequency(req.Frequency)
	default:
		fields["frequency"] = fmt.Sprintf("must be %q or %q", FrequencyOnce, FrequencyMonthly)
	}

	if email := strings.TrimSpace(req.Email); email != "" {
		if !validEmail(email) {
			fields["email"] = "must be a valid email address"
		} else {
			out.Email = email
		}
	}

	out.Name = strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(out.Name) > maxNameLength {
		fields["name"] = fmt.Sprintf("must be at most %d characters", maxNameLength)
	}

	out.ImpactPath = strings.TrimSpace(req.ImpactPath)
	if utf8.RuneCountInString(out.ImpactPath) > maxImpactPathLength {
		fields["impactPath"] = fmt.Sprintf("must be at most %d characters", maxImpactPathLength)
	}

	out.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if len(out.IdempotencyKey) > maxIdempotencyKeyLength {
		fields["idempotencyKey"] = fmt.Sprintf("must be at most %d bytes", maxIdempotencyKeyLength)
	}

	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	return out, nil
}

// parseAmount accepts only a JSON number, in major units.
func parseAmount(raw json.RawMessage) (money.Amount, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return money.Amount{}, errors.New("is required")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return money.Amount{}, errors.New("must be a number")
	}
	n, ok := v.(json.Number)
	if !ok {
		return money.Amount{}, errors.New("must be a number")
	}

	amount, err := money.ParseMajor(n.String())
	switch {
	case errors.Is(err, money.ErrTooManyDecimals):
		return money.Amount{}, errors.New("must have at most two decimal places")
	case errors.Is(err, money.ErrNotPositive):
		return money.Amount{}, errors.New("must be positive")
	case errors.Is(err, money.ErrUnsupportedScale):
		return money.Amount{}, errors.New("is out of range")
	case err != nil:
		return money.Amount{}, errors.New("must be a number")
	}

	return amount, nil
}

// validEmail accepts a bare address, no display name.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}
