package attestation

import (
	"errors"
	"fmt"

	"github.com/byteball/attestation-kit/internal/domain"
)

var (
	errMissingClaimAddress = fmt.Errorf("%w: signed message names no address", domain.ErrMismatchAddress)
	errPublish             = errors.New("publish attestation")
	errHandlerPanic        = errors.New("handler panic")
)

// failure attaches the conversation context a failed decision is logged with.
type failure struct {
	err     error
	address string
	fields  domain.Fields
}

func (f *failure) Error() string { return f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

func fail(err error, address string, fields domain.Fields) error {
	return &failure{err: err, address: address, fields: fields}
}

// userText picks the message a user sees for err.
func userText(err error) string {
	switch {
	case errors.Is(err, errMissingClaimAddress):
		return TextMissingAddress
	case errors.Is(err, domain.ErrMalformedRequest),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrInvalidData):
		return TextCannotFindOrder
	case errors.Is(err, domain.ErrAlreadyAttested):
		return TextOrderAlreadyAttested
	case errors.Is(err, domain.ErrMismatchAddress):
		return TextMismatchAddress
	case errors.Is(err, domain.ErrMismatchData):
		return TextMismatchData
	case errors.Is(err, domain.ErrValidationFailed):
		return TextValidationFailed
	case errors.Is(err, domain.ErrInvalidFormat):
		return TextInvalidFormat
	case errors.Is(err, domain.ErrInvalidAddress):
		return TextInvalidAddress
	default:
		return TextTransientFailure
	}
}
