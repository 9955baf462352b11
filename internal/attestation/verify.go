package attestation

import (
	"context"
	"errors"
	"fmt"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/wallet"
)

func (d *Dispatcher) handleSignedMessage(ctx context.Context, clientID, text string) error {
	env, err := wallet.ExtractEnvelope(text)
	if err != nil {
		return fail(err, "", nil)
	}

	if err := d.verifier.Verify(env); err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrValidationFailed, err), env.Address(), nil)
	}
	signer := env.Address()
	if signer == "" {
		return fail(fmt.Errorf("%w: no authorizing address", domain.ErrValidationFailed), "", nil)
	}

	claim, err := ParseClaim(env.SignedMessage)
	if err != nil {
		return fail(err, signer, nil)
	}
	if claim.Address == "" {
		return fail(errMissingClaimAddress, signer, claim.Fields)
	}
	if claim.Address != signer {
		return fail(domain.ErrMismatchAddress, claim.Address, claim.Fields)
	}

	if claim.AddressOnly() {
		d.emit(ctx, Event{Kind: KindAddressVerified, ClientID: clientID, Address: signer})
		d.reply(ctx, clientID, TextAddressVerified)
		return nil
	}

	order, err := d.resolveOpen(ctx, claim.Fields, claim.Address)
	if errors.Is(err, domain.ErrOrderNotFound) {
		// An open order for this address with other data means the claim drifted.
		if bound, herr := d.orders.HasPendingForAddress(ctx, claim.Address); herr == nil && bound {
			err = domain.ErrMismatchData
		} else {
			err = domain.ErrCannotFindOrder
		}
	}
	if err != nil {
		return fail(err, claim.Address, claim.Fields)
	}
	if !order.Fields.Equal(claim.Fields) {
		return fail(domain.ErrMismatchData, claim.Address, claim.Fields)
	}

	d.reply(ctx, clientID, TextVerified)

	unit, err := d.ledger.PublishAttestation(ctx, claim.Address, order.Fields)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", errPublish, err), claim.Address, order.Fields)
	}

	if err := d.orders.Finalize(ctx, order.Fields, claim.Address, unit); err != nil {
		// The attestation is on the ledger; a retry would publish another unit.
		d.logger.Error("Attestation published but order not finalized",
			"order_id", order.ID,
			"unit", unit,
			"address", claim.Address,
			"fields", order.Fields.String(),
			"error", err)
		return fail(fmt.Errorf("finalize order %d with unit %s: %v", order.ID, unit, err), claim.Address, order.Fields)
	}

	d.emit(ctx, Event{
		Kind:     KindAttested,
		ClientID: clientID,
		Address:  claim.Address,
		Fields:   order.Fields,
		Unit:     unit,
	})
	d.reply(ctx, clientID, TextAttested(unit))
	return nil
}
