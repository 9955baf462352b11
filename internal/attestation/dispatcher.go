// Package attestation drives chat conversations through the attestation
// flow: entry, address collection, signed-message verification and
// publication.
package attestation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/gate"
	"github.com/byteball/attestation-kit/internal/ledger"
	"github.com/byteball/attestation-kit/internal/lifecycle"
	"github.com/byteball/attestation-kit/internal/store"
	"github.com/byteball/attestation-kit/internal/wallet"
)

// DefaultKeyword starts an attestation from a text message.
const DefaultKeyword = "/attest"

// Messenger delivers text to a chat client. Delivery is fire-and-forget.
type Messenger interface {
	SendMessage(ctx context.Context, clientID, text string)
}

// Verifier validates a signed-message envelope.
type Verifier interface {
	Verify(env *wallet.Envelope) error
}

// AddressValidator checks address format and checksum.
type AddressValidator interface {
	IsValidAddress(address string) bool
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Gate      *gate.Gate
	Sessions  store.SessionStore
	Orders    *lifecycle.Manager
	Verifier  Verifier
	Addresses AddressValidator
	Ledger    ledger.Client
	Messenger Messenger
	Events    *Registry
	Logger    *slog.Logger
	Keyword   string
}

// Dispatcher routes inbound chat events to exactly one handler, holding the
// client's gate for the whole handler.
type Dispatcher struct {
	gate      *gate.Gate
	sessions  store.SessionStore
	orders    *lifecycle.Manager
	verifier  Verifier
	addresses AddressValidator
	ledger    ledger.Client
	messenger Messenger
	events    *Registry
	logger    *slog.Logger
	keyword   string
}

// NewDispatcher creates a dispatcher. A nil Gate, Events or Logger gets a
// fresh default.
func NewDispatcher(deps Deps) *Dispatcher {
	d := &Dispatcher{
		gate:      deps.Gate,
		sessions:  deps.Sessions,
		orders:    deps.Orders,
		verifier:  deps.Verifier,
		addresses: deps.Addresses,
		ledger:    deps.Ledger,
		messenger: deps.Messenger,
		events:    deps.Events,
		logger:    deps.Logger,
		keyword:   deps.Keyword,
	}
	if d.gate == nil {
		d.gate = gate.New()
	}
	if d.events == nil {
		d.events = NewRegistry()
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.keyword == "" {
		d.keyword = DefaultKeyword
	}
	return d
}

// Events returns the registry handlers emit to.
func (d *Dispatcher) Events() *Registry {
	return d.events
}

// HandlePairing handles a wallet pairing with the given payload.
func (d *Dispatcher) HandlePairing(ctx context.Context, clientID, payload string) {
	if strings.TrimSpace(payload) == lifecycle.PairingCodeBack {
		return
	}
	d.run(ctx, clientID, "pairing", func(ctx context.Context) error {
		return d.handleEntry(ctx, clientID, payload)
	})
}

// HandleText handles a chat message.
func (d *Dispatcher) HandleText(ctx context.Context, clientID, text string) {
	text = strings.TrimSpace(text)
	d.run(ctx, clientID, "text", func(ctx context.Context) error {
		switch {
		case strings.HasPrefix(text, wallet.SignedMessagePrefix):
			return d.handleSignedMessage(ctx, clientID, text)
		case text == d.keyword || strings.HasPrefix(text, d.keyword+" "):
			return d.handleEntry(ctx, clientID, strings.TrimSpace(strings.TrimPrefix(text, d.keyword)))
		}

		session, err := d.sessions.GetSession(ctx, clientID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if session == nil {
			d.reply(ctx, clientID, TextUnknownCommand)
			return nil
		}
		return d.handleAddress(ctx, clientID, text)
	})
}

// run executes h under the client's gate. Every failure, including a
// panic, becomes a user message sent before the gate is released.
func (d *Dispatcher) run(ctx context.Context, clientID, event string, h func(ctx context.Context) error) {
	err := d.gate.Do(ctx, clientID, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", errHandlerPanic, r)
			}
			if err != nil {
				d.report(ctx, clientID, event, err)
			}
			err = nil
		}()
		return h(ctx)
	})
	if err != nil {
		d.logger.Warn("Dropped event while waiting for client gate", "client_id", clientID, "event", event, "error", err)
	}
}

func (d *Dispatcher) report(ctx context.Context, clientID, event string, err error) {
	attrs := []any{"client_id", clientID, "event", event, "error", err}
	var f *failure
	if errors.As(err, &f) {
		if f.address != "" {
			attrs = append(attrs, "address", f.address)
		}
		if len(f.fields) > 0 {
			attrs = append(attrs, "fields", f.fields.String())
		}
	}

	text := userText(err)
	if text == TextTransientFailure {
		d.logger.Error("Attestation handler failed", attrs...)
	} else {
		d.logger.Info("Attestation request rejected", attrs...)
	}
	d.reply(ctx, clientID, text)
}

func (d *Dispatcher) reply(ctx context.Context, clientID, text string) {
	d.messenger.SendMessage(ctx, clientID, text)
}

func (d *Dispatcher) emit(ctx context.Context, ev Event) {
	_ = d.events.Emit(ctx, ev)
}

// resolveOpen finds the non-attested order for fields and address, and
// reports an attested one as ErrAlreadyAttested.
func (d *Dispatcher) resolveOpen(ctx context.Context, fields domain.Fields, address string) (*domain.Order, error) {
	order, err := d.orders.ResolvePending(ctx, fields, address)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return order, err
	}
	if attested, rerr := d.orders.Resolve(ctx, fields, address); rerr == nil && attested.IsAttested() {
		return nil, &domain.OrderError{
			Err:     domain.ErrAlreadyAttested,
			OrderID: attested.ID,
			Status:  attested.Status,
			Unit:    attested.Unit,
			Fields:  attested.Fields,
		}
	}
	return nil, err
}
