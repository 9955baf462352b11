// Package lifecycle implements the order state machine on top of the order
// store: request parsing, order resolution and pairing links.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/byteball/attestation-kit/internal/domain"
)

// RequestSeparator splits an address from the encoded fields in a request
// payload.
const RequestSeparator = "-"

// Request is a parsed entry payload.
//
//	request = [address] "-" fields
//
// The address carries no separator, so the payload splits at the first one.
// Fields are form encoded. A payload without a separator asks for an
// attestation without pre-filled data.
type Request struct {
	Address string
	Fields  domain.Fields
}

// HasData reports whether the request carries order fields.
func (r Request) HasData() bool {
	return len(r.Fields) > 0
}

// ParseRequest parses an entry payload. Errors wrap domain.ErrMalformedRequest.
func ParseRequest(payload string) (Request, error) {
	payload = strings.TrimSpace(payload)

	address, encoded, found := strings.Cut(payload, RequestSeparator)
	if !found {
		return Request{}, nil
	}
	if encoded == "" {
		return Request{}, fmt.Errorf("%w: empty fields", domain.ErrMalformedRequest)
	}

	fields, err := domain.ParseFields(encoded)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %w", domain.ErrMalformedRequest, err)
	}
	return Request{Address: address, Fields: fields}, nil
}

// Encode renders r in the form ParseRequest accepts.
func (r Request) Encode() string {
	return r.Address + RequestSeparator + r.Fields.Encode()
}
