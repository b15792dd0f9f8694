// Package validation defines the error kind returned for malformed input.
package validation

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits stored for amounts.
const MoneyPlaces = 2

// ErrInvalid matches every *Error via errors.Is.
var ErrInvalid = errors.New("invalid input")

// Error describes a single rejected field.
type Error struct {
	Field  string
	Reason string
}

// Errorf builds an *Error for field with a formatted reason.
func Errorf(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrInvalid.
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

// Places rejects v when it carries more than places fractional digits.
func Places(field string, v decimal.Decimal, places int32) error {
	if v.Equal(v.Truncate(places)) {
		return nil
	}
	return Errorf(field, "must have at most %d decimal places", places)
}
