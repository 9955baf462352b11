package lifecycle

import (
	"context"
	"fmt"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/store"
)

// Manager applies lifecycle transitions to orders. It never creates an order
// while resolving one; creation only happens through RequestOrder.
type Manager struct {
	orders          store.OrderStore
	allowDuplicates bool
}

// NewManager creates a lifecycle manager over orders. allowDuplicates is the
// policy RequestOrder applies to a request matching an existing order.
func NewManager(orders store.OrderStore, allowDuplicates bool) *Manager {
	return &Manager{orders: orders, allowDuplicates: allowDuplicates}
}

// AllowDuplicates reports the configured duplicate policy.
func (m *Manager) AllowDuplicates() bool {
	return m.allowDuplicates
}

// RequestOrder creates a pending order for fields using the configured
// duplicate policy.
func (m *Manager) RequestOrder(ctx context.Context, fields domain.Fields) (int64, error) {
	return m.orders.CreateOrder(ctx, fields, m.allowDuplicates)
}

// RequestOrderWithPolicy is RequestOrder with an explicit duplicate policy.
func (m *Manager) RequestOrderWithPolicy(ctx context.Context, fields domain.Fields, allowDuplicates bool) (int64, error) {
	return m.orders.CreateOrder(ctx, fields, allowDuplicates)
}

// Resolve returns the order matching fields and, when given, bound to
// address. Attested orders are included so callers can report them.
func (m *Manager) Resolve(ctx context.Context, fields domain.Fields, address string) (*domain.Order, error) {
	return m.resolve(ctx, store.OrderFilter{Fields: fields, Address: address})
}

// ResolvePending is Resolve restricted to orders that are not attested.
func (m *Manager) ResolvePending(ctx context.Context, fields domain.Fields, address string) (*domain.Order, error) {
	return m.resolve(ctx, store.OrderFilter{Fields: fields, Address: address, ExcludeAttested: true})
}

func (m *Manager) resolve(ctx context.Context, filter store.OrderFilter) (*domain.Order, error) {
	if err := filter.Fields.Validate(); err != nil {
		return nil, err
	}

	order, err := m.orders.FindOrder(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("resolve order: %w", err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// HasPendingForAddress reports whether a non-attested order is bound to
// address, whatever its fields.
func (m *Manager) HasPendingForAddress(ctx context.Context, address string) (bool, error) {
	if address == "" {
		return false, nil
	}
	order, err := m.orders.FindOrder(ctx, store.OrderFilter{Address: address, ExcludeAttested: true})
	if err != nil {
		return false, fmt.Errorf("find orders for address: %w", err)
	}
	return order != nil, nil
}

// BindAddress moves the order for fields to addressed.
func (m *Manager) BindAddress(ctx context.Context, fields domain.Fields, address string) error {
	return m.orders.BindAddress(ctx, fields, address)
}

// ReleaseAddress moves the order for fields back to pending.
func (m *Manager) ReleaseAddress(ctx context.Context, fields domain.Fields, address string) error {
	return m.orders.UnbindAddress(ctx, fields, address)
}

// Finalize marks the order attested with unit. The transition is permanent.
func (m *Manager) Finalize(ctx context.Context, fields domain.Fields, address, unit string) error {
	return m.orders.Finalize(ctx, fields, address, unit)
}
