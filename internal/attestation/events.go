package attestation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/byteball/attestation-kit/internal/domain"
)

// Kind names an event emitted by the handlers.
type Kind string

const (
	KindProcessStarted            Kind = "process_started"
	KindProcessStartedWithData    Kind = "process_started_with_data"
	KindProcessStartedWithoutData Kind = "process_started_without_data"
	KindAddressAdded              Kind = "address_added"
	KindAddressVerified           Kind = "address_verified"
	KindAttested                  Kind = "attested"
)

// Event is a notification about a conversation's progress. Fields that do
// not apply to the kind are zero.
type Event struct {
	Kind     Kind
	ClientID string
	Address  string
	Fields   domain.Fields
	Unit     string
}

// Listener reacts to events. Listeners run synchronously while the
// originating client's gate is held.
type Listener interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event) error

// HandleEvent calls f.
func (f ListenerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Registry maps event kinds to their listeners. Emitting a kind without
// listeners does nothing.
type Registry struct {
	mu        sync.RWMutex
	listeners map[Kind][]Listener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[Kind][]Listener)}
}

// On registers l for kind. Listeners run in registration order.
func (r *Registry) On(kind Kind, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[kind] = append(r.listeners[kind], l)
}

// Emit delivers ev to every listener of its kind. A failing listener does
// not stop the others; all failures are returned joined.
func (r *Registry) Emit(ctx context.Context, ev Event) error {
	r.mu.RLock()
	listeners := append([]Listener(nil), r.listeners[ev.Kind]...)
	r.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := l.HandleEvent(ctx, ev); err != nil {
			slog.Error("Event listener failed", "kind", ev.Kind, "client_id", ev.ClientID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogEvents records every event at info level.
func LogEvents(r *Registry, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	l := ListenerFunc(func(_ context.Context, ev Event) error {
		attrs := []any{"kind", ev.Kind, "client_id", ev.ClientID}
		if ev.Address != "" {
			attrs = append(attrs, "address", ev.Address)
		}
		if len(ev.Fields) > 0 {
			attrs = append(attrs, "fields", ev.Fields.String())
		}
		if ev.Unit != "" {
			attrs = append(attrs, "unit", ev.Unit)
		}
		logger.Info("Attestation event", attrs...)
		return nil
	})
	for _, kind := range []Kind{
		KindProcessStarted, KindProcessStartedWithData, KindProcessStartedWithoutData,
		KindAddressAdded, KindAddressVerified, KindAttested,
	} {
		r.On(kind, l)
	}
}
