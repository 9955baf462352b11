package lifecycle

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/byteball/attestation-kit/internal/domain"
)

// Pairing codes with a fixed meaning.
const (
	PairingCodeNoData = "0000"
	PairingCodeBack   = "back"
)

// Pairing builds the links a wallet opens to start a chat with the service.
type Pairing struct {
	PubKey  string
	Hub     string
	Testnet bool
}

// AddressValidator checks a ledger address.
type AddressValidator func(address string) bool

func (p Pairing) link(code string) string {
	scheme := "obyte"
	if p.Testnet {
		scheme += "-tn"
	}
	return fmt.Sprintf("%s:%s@%s#%s", scheme, p.PubKey, p.Hub, code)
}

// WithoutData returns a link that starts an attestation without data.
func (p Pairing) WithoutData() string {
	return p.link(PairingCodeNoData)
}

// Back returns a link that reopens the chat without starting anything.
func (p Pairing) Back() string {
	return p.link(PairingCodeBack)
}

// WithData returns a link carrying address and fields for verification.
func (p Pairing) WithData(address string, fields domain.Fields, valid AddressValidator) (string, error) {
	if valid != nil && !valid(address) {
		return "", domain.ErrInvalidAddress
	}
	if err := fields.Validate(); err != nil {
		return "", err
	}
	if address == "" {
		return "", errors.New("pairing link requires an address")
	}
	return p.link(url.PathEscape(address) + RequestSeparator + fields.Encode()), nil
}
