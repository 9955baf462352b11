package attestation

import (
	"context"
	"fmt"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/lifecycle"
)

func (d *Dispatcher) handleEntry(ctx context.Context, clientID, payload string) error {
	if _, err := d.sessions.CreateSession(ctx, clientID, false); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	d.emit(ctx, Event{Kind: KindProcessStarted, ClientID: clientID})

	req, err := lifecycle.ParseRequest(payload)
	if err != nil {
		return fail(err, "", nil)
	}

	if !req.HasData() {
		if err := d.sessions.SetSessionAttribute(ctx, clientID, domain.AttrFields, ""); err != nil {
			return fmt.Errorf("clear pending fields: %w", err)
		}
		d.emit(ctx, Event{Kind: KindProcessStartedWithoutData, ClientID: clientID})
		d.reply(ctx, clientID, TextAskAddress)
		return nil
	}

	order, err := d.resolveOpen(ctx, req.Fields, req.Address)
	if err != nil {
		return fail(err, req.Address, req.Fields)
	}

	if req.Address == "" {
		// The order still needs an address; remember which one.
		if err := d.sessions.SetSessionAttribute(ctx, clientID, domain.AttrFields, order.Fields.Encode()); err != nil {
			return fmt.Errorf("store pending fields: %w", err)
		}
		d.reply(ctx, clientID, TextAskAddress)
	} else {
		d.reply(ctx, clientID, TextAskVerify(req.Address, order.Fields))
	}

	d.emit(ctx, Event{
		Kind:     KindProcessStartedWithData,
		ClientID: clientID,
		Address:  req.Address,
		Fields:   order.Fields,
	})
	return nil
}
