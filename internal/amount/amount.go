// Package amount validates pledge amounts against campaign-independent rules.
package amount

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	dErrors "fundly/pkg/domain-errors"
)

// DefaultMinimum is the smallest pledge, in whole currency units.
const DefaultMinimum int64 = 10

// FieldAmount is the field key used in validation errors.
const FieldAmount = "amount"

// Validator checks that a pledge is a positive whole number of currency
// units at or above a configured minimum. No upper bound is enforced.
type Validator struct {
	minimum int64
}

// NewValidator builds a Validator. A non-positive minimum falls back to
// DefaultMinimum.
func NewValidator(minimum int64) *Validator {
	if minimum <= 0 {
		minimum = DefaultMinimum
	}
	return &Validator{minimum: minimum}
}

func (v *Validator) Minimum() int64 {
	return v.minimum
}

// Parse validates free-text input such as "200" or "200.00" and returns the
// amount in whole units.
func (v *Validator) Parse(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid("amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, invalid("amount must be a number")
	}
	if !d.IsInteger() {
		return 0, invalid("amount must be a whole number")
	}
	if !d.IsPositive() {
		return 0, invalid("amount must be greater than zero")
	}
	if !d.BigInt().IsInt64() {
		return 0, invalid("amount is too large")
	}
	return v.Validate(d.IntPart())
}

// Validate checks an already-numeric amount, e.g. a preset button.
func (v *Validator) Validate(units int64) (int64, error) {
	if units <= 0 {
		return 0, invalid("amount must be greater than zero")
	}
	if units < v.minimum {
		return 0, invalid(fmt.Sprintf("amount must be at least %d", v.minimum))
	}
	return units, nil
}

func invalid(msg string) error {
	return dErrors.NewValidation("invalid amount", map[string]string{FieldAmount: msg})
}
