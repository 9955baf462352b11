// Package domain contains core domain types for the attestation service.
package domain

import (
	"time"
)

// Status is the lifecycle state of an attestation order.
type Status string

const (
	// StatusPending means no address is bound yet.
	StatusPending Status = "pending"
	// StatusAddressed means an address is bound but not yet verified.
	StatusAddressed Status = "addressed"
	// StatusAttested is terminal: the attestation unit has been published.
	StatusAttested Status = "attested"
)

// Order is a request to attest a specific data profile.
type Order struct {
	ID        int64     `json:"id"`
	Fields    Fields    `json:"data"`
	Address   string    `json:"address,omitempty"`
	Status    Status    `json:"status"`
	Unit      string    `json:"unit,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAttested returns true once the order reached its terminal state.
func (o *Order) IsAttested() bool {
	return o.Status == StatusAttested
}

// AttestationRecord is an attestation published by the local ledger.
type AttestationRecord struct {
	Unit      string    `json:"unit"`
	Address   string    `json:"address"`
	Profile   Fields    `json:"profile"`
	Attestor  string    `json:"attestor"`
	Signature string    `json:"signature"`
	CreatedAt time.Time `json:"created_at"`
}
