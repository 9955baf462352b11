package attestation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/byteball/attestation-kit/internal/domain"
)

var ownershipPrefixes = []string{"I own the address:", "I own address:"}

// Claim is what a signed message asserts: the address being proven and,
// unless this is an address-only proof, the order fields.
type Claim struct {
	Address string
	Fields  domain.Fields
}

// AddressOnly reports whether the claim proves ownership without data.
func (c Claim) AddressOnly() bool {
	return len(c.Fields) == 0
}

type signedBody struct {
	Address string         `json:"address"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// ParseClaim reads the body of a signed message. It accepts the JSON
// challenge {"address": X, "data": {...}}, optionally with an ownership
// statement in "message", or a bare "I own the address: X". Errors wrap
// domain.ErrInvalidFormat.
func ParseClaim(message string) (Claim, error) {
	message = strings.TrimSpace(message)

	if !strings.HasPrefix(message, "{") {
		address, ok := ownedAddress(message)
		if !ok {
			return Claim{}, fmt.Errorf("%w: unrecognised signed text", domain.ErrInvalidFormat)
		}
		return Claim{Address: address}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(message)))
	dec.UseNumber()
	var body signedBody
	if err := dec.Decode(&body); err != nil {
		return Claim{}, fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err)
	}

	claim := Claim{Address: strings.TrimSpace(body.Address)}
	if address, ok := ownedAddress(body.Message); ok {
		claim.Address = address
	}
	if len(body.Data) > 0 {
		fields, err := domain.NewFields(body.Data)
		if err != nil {
			return Claim{}, fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err)
		}
		claim.Fields = fields
	}
	return claim, nil
}

// ownedAddress extracts X from an ownership statement.
func ownedAddress(text string) (string, bool) {
	for _, prefix := range ownershipPrefixes {
		rest, found := strings.CutPrefix(strings.TrimSpace(text), prefix)
		if !found {
			continue
		}
		address, _, _ := strings.Cut(strings.TrimSpace(rest), " ")
		address = strings.TrimRight(address, ".,;")
		return address, address != ""
	}
	return "", false
}
