package domain

import (
	"errors"
	"fmt"
)

// Errors returned by the stores, the lifecycle manager and the handlers.
var (
	ErrInvalidData      = errors.New("invalid data")
	ErrInvalidAddress   = errors.New("invalid wallet address")
	ErrMalformedRequest = errors.New("malformed request")
	ErrOrderNotFound    = errors.New("order not found")
	ErrAlreadyExists    = errors.New("order already exists")
	ErrAlreadyAttested  = errors.New("order already attested")
	ErrAddressNotFound  = errors.New("address not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidFormat    = errors.New("invalid signed message format")
	ErrValidationFailed = errors.New("signed message validation failed")
	ErrMismatchAddress  = errors.New("signed address mismatch")
	ErrMismatchData     = errors.New("signed data mismatch")
)

// ErrCannotFindOrder is what verification reports when no pending order
// matches the claim.
var ErrCannotFindOrder = ErrOrderNotFound

// OrderError carries the state of the order that caused a failure.
type OrderError struct {
	Err     error
	OrderID int64
	Status  Status
	Unit    string
	Fields  Fields
}

func (e *OrderError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("%v (order %d, status %s, unit %s)", e.Err, e.OrderID, e.Status, e.Unit)
	}
	return fmt.Sprintf("%v (order %d, status %s)", e.Err, e.OrderID, e.Status)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}
