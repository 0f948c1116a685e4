package core

import "errors"

var (
	// ErrInvalidInput is wrapped by every validation failure.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a record id does not exist in its table.
	ErrNotFound = errors.New("record not found")
)

// ValidationError carries a user-facing message for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

var (
	ErrMalformedAmount   = invalid("amount", "invalid amount format")
	ErrNonPositiveAmount = invalid("amount", "amount must be greater than 0")
	ErrAmountTooLarge    = invalid("amount", "amount is too large")
	ErrInvalidDate       = invalid("date", "date must be in YYYY-MM-DD format")
	ErrInvalidKind       = invalid("type", "type must be income or expense")
	ErrInvalidPeriod     = invalid("month", "invalid year or month")
	ErrDetailsOnIncome   = invalid("type", "income records cannot carry expense details")
)
