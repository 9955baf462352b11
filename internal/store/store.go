// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/byteball/attestation-kit/internal/domain"
)

// OrderFilter selects orders by exact field set and, optionally, address.
// A nil Fields matches any field set and then requires an Address.
type OrderFilter struct {
	Fields          domain.Fields
	Address         string
	ExcludeAttested bool
}

// OrderStore persists attestation orders. Orders are never deleted.
type OrderStore interface {
	// CreateOrder returns the id of a new pending order, or of the existing
	// match when duplicates are allowed.
	CreateOrder(ctx context.Context, fields domain.Fields, allowDuplicates bool) (int64, error)

	// FindOrder returns the first matching order, or nil if none matches.
	FindOrder(ctx context.Context, filter OrderFilter) (*domain.Order, error)

	// FindOrders returns every matching order in creation order.
	FindOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)

	// GetOrder retrieves an order by id, or nil if it does not exist.
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)

	// BindAddress moves a pending or addressed order to addressed.
	BindAddress(ctx context.Context, fields domain.Fields, address string) error

	// UnbindAddress moves an addressed order back to pending.
	UnbindAddress(ctx context.Context, fields domain.Fields, address string) error

	// Finalize marks the order bound to address as attested with unit.
	Finalize(ctx context.Context, fields domain.Fields, address, unit string) error
}

// SessionStore persists chat sessions keyed by client id. Writes to a
// missing session are logged and ignored.
type SessionStore interface {
	// CreateSession returns the existing session unless replace is set.
	CreateSession(ctx context.Context, clientID string, replace bool) (*domain.ClientSession, error)

	// GetSession returns the session, or nil if it does not exist.
	GetSession(ctx context.Context, clientID string) (*domain.ClientSession, error)

	SetSessionAddress(ctx context.Context, clientID, address string) error
	ClearSessionAddress(ctx context.Context, clientID string) error
	SetSessionAttribute(ctx context.Context, clientID, key, value string) error
	DeleteSession(ctx context.Context, clientID string) error

	// IdleSessions lists sessions not written for longer than ttl.
	IdleSessions(ctx context.Context, ttl time.Duration) ([]string, error)

	// DeleteIdleSession deletes the session if it is still idle, reporting
	// whether it did.
	DeleteIdleSession(ctx context.Context, clientID string, ttl time.Duration) (bool, error)
}

// AttestationLog records attestations published by the local ledger.
type AttestationLog interface {
	RecordAttestation(ctx context.Context, record *domain.AttestationRecord) error

	// GetAttestation returns the record for unit, or nil if unknown.
	GetAttestation(ctx context.Context, unit string) (*domain.AttestationRecord, error)
}

// Repository is the full set of persistence operations.
type Repository interface {
	OrderStore
	SessionStore
	AttestationLog

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
