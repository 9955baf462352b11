// Package ledger publishes attestation profiles onto the ledger.
package ledger

import (
	"context"
	"errors"

	"github.com/byteball/attestation-kit/internal/domain"
)

// Publish failures. Each is wrapped with the cause.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCompose           = errors.New("compose attestation failed")
	ErrBroadcast         = errors.New("broadcast attestation failed")
)

// Client publishes attestations and returns the unit that carries them.
type Client interface {
	PublishAttestation(ctx context.Context, address string, profile domain.Fields) (string, error)
}

// Message is the attestation message posted for a profile.
type Message struct {
	App             string  `json:"app"`
	PayloadLocation string  `json:"payload_location"`
	Payload         Payload `json:"payload"`
}

// Payload binds an address to the attested profile.
type Payload struct {
	Address string        `json:"address"`
	Profile domain.Fields `json:"profile"`
}

// NewMessage builds the inline attestation message for address and profile.
func NewMessage(address string, profile domain.Fields) Message {
	return Message{
		App:             "attestation",
		PayloadLocation: "inline",
		Payload:         Payload{Address: address, Profile: profile},
	}
}
