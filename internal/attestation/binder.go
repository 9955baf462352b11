package attestation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/lifecycle"
)

// OrderBinder reacts to an address added to a session. When the session
// is collecting an address for an order it binds the address to that order
// and asks for the signed challenge; otherwise it asks for an address-only
// proof.
type OrderBinder struct {
	orders    *lifecycle.Manager
	messenger Messenger
	logger    *slog.Logger
}

// NewOrderBinder creates the listener. Register it for KindAddressAdded.
func NewOrderBinder(orders *lifecycle.Manager, messenger Messenger, logger *slog.Logger) *OrderBinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderBinder{orders: orders, messenger: messenger, logger: logger}
}

// HandleEvent implements Listener.
func (b *OrderBinder) HandleEvent(ctx context.Context, ev Event) error {
	if ev.Kind != KindAddressAdded {
		return nil
	}

	b.messenger.SendMessage(ctx, ev.ClientID, TextAddressReceived)

	if len(ev.Fields) == 0 {
		b.messenger.SendMessage(ctx, ev.ClientID, TextAskVerify(ev.Address, nil))
		return nil
	}

	err := b.orders.BindAddress(ctx, ev.Fields, ev.Address)
	switch {
	case err == nil:
		b.logger.Info("Address bound to order", "client_id", ev.ClientID, "address", ev.Address, "fields", ev.Fields.String())
		b.messenger.SendMessage(ctx, ev.ClientID, TextAskVerify(ev.Address, ev.Fields))
		return nil
	case errors.Is(err, domain.ErrAlreadyAttested), errors.Is(err, domain.ErrOrderNotFound):
		b.logger.Info("Address not bound", "client_id", ev.ClientID, "address", ev.Address,
			"fields", ev.Fields.String(), "error", err)
		b.messenger.SendMessage(ctx, ev.ClientID, userText(err))
		return nil
	default:
		b.messenger.SendMessage(ctx, ev.ClientID, TextTransientFailure)
		return err
	}
}
