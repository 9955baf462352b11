package attestation

import (
	"context"
	"fmt"
	"strings"

	"github.com/byteball/attestation-kit/internal/domain"
)

func (d *Dispatcher) handleAddress(ctx context.Context, clientID, text string) error {
	address := strings.TrimSpace(text)
	if !d.addresses.IsValidAddress(address) {
		return fail(domain.ErrInvalidAddress, address, nil)
	}

	session, err := d.sessions.GetSession(ctx, clientID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return fail(fmt.Errorf("address handler: %w", domain.ErrSessionNotFound), address, nil)
	}

	if err := d.sessions.SetSessionAddress(ctx, clientID, address); err != nil {
		return fail(fmt.Errorf("store session address: %w", err), address, nil)
	}

	fields, _ := session.PendingFields()
	d.emit(ctx, Event{Kind: KindAddressAdded, ClientID: clientID, Address: address, Fields: fields})
	return nil
}
