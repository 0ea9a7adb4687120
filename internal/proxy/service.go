// Package proxy is the call surface of the registry. Each Service method is
// one call: it runs exactly one store transaction, then reports the change
// to the event sink, the metrics and the trace.
package proxy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/authority"
	"github.com/mbd888/riskproxy/internal/events"
	"github.com/mbd888/riskproxy/internal/logging"
	"github.com/mbd888/riskproxy/internal/metrics"
	"github.com/mbd888/riskproxy/internal/registry"
	"github.com/mbd888/riskproxy/internal/state"
	"github.com/mbd888/riskproxy/internal/traces"
)

// Outcome labels used for metrics and span attributes.
const (
	OutcomeOK              = "ok"
	OutcomeUnauthorized    = "unauthorized"
	OutcomeInvalidRole     = "invalid_role"
	OutcomeInvalidRisk     = "invalid_risk"
	OutcomeInvalidCategory = "invalid_category"
	OutcomeAlreadyExists   = "already_exists"
	OutcomeNotFound        = "not_found"
	OutcomeNotInitialized  = "not_initialized"
	OutcomeInvalidArgument = "invalid_argument"
	OutcomeError           = "error"
)

// Outcome classifies a call result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, authority.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, authority.ErrInvalidRole):
		return OutcomeInvalidRole
	case errors.Is(err, registry.ErrInvalidRisk):
		return OutcomeInvalidRisk
	case errors.Is(err, registry.ErrInvalidCategory):
		return OutcomeInvalidCategory
	case errors.Is(err, authority.ErrReporterExists),
		errors.Is(err, registry.ErrAddressExists),
		errors.Is(err, authority.ErrAlreadyInitialized):
		return OutcomeAlreadyExists
	case errors.Is(err, authority.ErrReporterNotFound),
		errors.Is(err, registry.ErrAddressNotFound):
		return OutcomeNotFound
	case errors.Is(err, authority.ErrNotInitialized):
		return OutcomeNotInitialized
	case errors.Is(err, authority.ErrInvalidOwner),
		errors.Is(err, account.ErrInvalidID):
		return OutcomeInvalidArgument
	default:
		return OutcomeError
	}
}

const publishTimeout = 5 * time.Second

// Service runs registry operations against a store.
type Service struct {
	store  state.Store
	sink   events.Sink
	logger *slog.Logger
}

// NewService creates a Service. A nil sink discards events; a nil logger
// uses slog.Default.
func NewService(store state.Store, sink events.Sink, logger *slog.Logger) *Service {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, sink: sink, logger: logger}
}

// Initialize sets the owner of an empty registry.
func (s *Service) Initialize(ctx context.Context, owner account.ID) error {
	return s.call(ctx, "initialize", "", owner, nil, func(ctx context.Context) (*events.Event, error) {
		err := s.store.Update(ctx, func(tx state.Tx) error {
			return authority.Initialize(tx, owner)
		})
		if err != nil {
			return nil, err
		}
		ev := events.New(events.OwnerInitialized, "", owner, nil)
		return &ev, nil
	})
}

// ChangeOwner transfers ownership from caller to newOwner.
func (s *Service) ChangeOwner(ctx context.Context, caller, newOwner account.ID) error {
	return s.call(ctx, "change_owner", caller, newOwner, nil, func(ctx context.Context) (*events.Event, error) {
		var previous account.ID
		err := s.store.Update(ctx, func(tx state.Tx) error {
			previous, _, _ = tx.Owner()
			return authority.ChangeOwner(tx, caller, newOwner)
		})
		if err != nil {
			return nil, err
		}
		ev := events.New(events.OwnerChanged, caller, newOwner, map[string]any{"previousOwner": previous})
		return &ev, nil
	})
}

// Owner returns the current owner, or authority.ErrNotInitialized.
func (s *Service) Owner(ctx context.Context) (account.ID, error) {
	var owner account.ID
	err := s.call(ctx, "get_owner", "", "", nil, func(ctx context.Context) (*events.Event, error) {
		return nil, s.store.View(ctx, func(tx state.Tx) error {
			o, ok, err := tx.Owner()
			if err != nil {
				return err
			}
			if !ok {
				return authority.ErrNotInitialized
			}
			owner = o
			return nil
		})
	})
	return owner, err
}

// CreateReporter grants role to target.
func (s *Service) CreateReporter(ctx context.Context, caller, target account.ID, role authority.Role) error {
	attrs := []attribute.KeyValue{traces.Role(role.String())}
	return s.call(ctx, "create_reporter", caller, target, attrs, func(ctx context.Context) (*events.Event, error) {
		err := s.store.Update(ctx, func(tx state.Tx) error {
			_, err := authority.CreateReporter(tx, caller, target, role)
			return err
		})
		if err != nil {
			return nil, err
		}
		ev := events.New(events.ReporterCreated, caller, target, map[string]any{"role": role})
		return &ev, nil
	})
}

// UpdateReporter replaces target's role and returns the previous one.
func (s *Service) UpdateReporter(ctx context.Context, caller, target account.ID, role authority.Role) (authority.Role, error) {
	var previous authority.Role
	attrs := []attribute.KeyValue{traces.Role(role.String())}
	err := s.call(ctx, "update_reporter", caller, target, attrs, func(ctx context.Context) (*events.Event, error) {
		err := s.store.Update(ctx, func(tx state.Tx) error {
			var err error
			previous, err = authority.UpdateReporter(tx, caller, target, role)
			return err
		})
		if err != nil {
			return nil, err
		}
		ev := events.New(events.ReporterUpdated, caller, target, map[string]any{"role": role, "previousRole": previous})
		return &ev, nil
	})
	return previous, err
}

// GetRole returns target's role, or authority.ErrReporterNotFound.
func (s *Service) GetRole(ctx context.Context, target account.ID) (authority.Role, error) {
	var role authority.Role
	err := s.call(ctx, "get_role", "", target, nil, func(ctx context.Context) (*events.Event, error) {
		return nil, s.store.View(ctx, func(tx state.Tx) error {
			var err error
			role, err = authority.GetRole(tx, target)
			return err
		})
	})
	return role, err
}

// IsReporter reports whether target holds any role.
func (s *Service) IsReporter(ctx context.Context, target account.ID) (bool, error) {
	var ok bool
	err := s.call(ctx, "is_reporter", "", target, nil, func(ctx context.Context) (*events.Event, error) {
		return nil, s.store.View(ctx, func(tx state.Tx) error {
			var err error
			ok, err = authority.IsReporter(tx, target)
			return err
		})
	})
	return ok, err
}

// CreateAddress flags target.
func (s *Service) CreateAddress(ctx context.Context, caller, target account.ID, category registry.Category, risk int) error {
	attrs := []attribute.KeyValue{traces.Category(category.String()), traces.Risk(risk)}
	return s.call(ctx, "create_address", caller, target, attrs, func(ctx context.Context) (*events.Event, error) {
		err := s.store.Update(ctx, func(tx state.Tx) error {
			return registry.CreateAddress(tx, caller, target, category, risk)
		})
		if err != nil {
			return nil, err
		}
		ev := events.New(events.AddressCreated, caller, target, registry.AddressRecord{Category: category, Risk: uint8(risk)})
		return &ev, nil
	})
}

// UpdateAddress overwrites target's record.
func (s *Service) UpdateAddress(ctx context.Context, caller, target account.ID, category registry.Category, risk int) error {
	attrs := []attribute.KeyValue{traces.Category(category.String()), traces.Risk(risk)}
	return s.call(ctx, "update_address", caller, target, attrs, func(ctx context.Context) (*events.Event, error) {
		var previous registry.AddressRecord
		err := s.store.Update(ctx, func(tx state.Tx) error {
			previous, _, _ = tx.Address(target)
			return registry.UpdateAddress(tx, caller, target, category, risk)
		})
		if err != nil {
			return nil, err
		}
		ev := events.New(events.AddressUpdated, caller, target, map[string]any{
			"category":         category,
			"risk":             risk,
			"previousCategory": previous.Category,
			"previousRisk":     previous.Risk,
		})
		return &ev, nil
	})
}

// AddressView is a read of the address table. Flagged distinguishes an
// explicit record from the (None, 0) default.
type AddressView struct {
	registry.AddressRecord
	Flagged bool `json:"flagged"`
}

// GetAddress returns target's record; unflagged accounts read as (None, 0).
func (s *Service) GetAddress(ctx context.Context, target account.ID) (AddressView, error) {
	var view AddressView
	err := s.call(ctx, "get_address", "", target, nil, func(ctx context.Context) (*events.Event, error) {
		return nil, s.store.View(ctx, func(tx state.Tx) error {
			rec, err := registry.GetAddress(tx, target)
			if err != nil {
				return err
			}
			flagged, err := registry.IsFlagged(tx, target)
			if err != nil {
				return err
			}
			view = AddressView{AddressRecord: rec, Flagged: flagged}
			return nil
		})
	})
	return view, err
}

// Stats summarizes the store.
func (s *Service) Stats(ctx context.Context) (state.Stats, error) {
	return s.store.Stats(ctx)
}

// call wraps one operation with tracing, metrics and logging, and publishes
// the event fn returns once fn has committed.
func (s *Service) call(ctx context.Context, op string, caller, target account.ID, attrs []attribute.KeyValue,
	fn func(ctx context.Context) (*events.Event, error)) error {

	start := time.Now()
	attrs = append(attrs, traces.Operation(op), traces.Caller(caller.String()), traces.Target(target.String()))
	ctx, span := traces.StartSpan(ctx, "registry."+op, attrs...)

	ev, err := fn(ctx)
	outcome := Outcome(err)
	span.SetAttributes(traces.Outcome(outcome))
	if outcome == OutcomeError {
		traces.End(span, err)
	} else {
		span.End()
	}
	metrics.ObserveCall(op, outcome, time.Since(start))

	logger := s.log(ctx)
	switch outcome {
	case OutcomeOK:
		if ev != nil {
			logger.Info("registry call committed", "operation", op, "caller", caller, "target", target)
		}
	case OutcomeError:
		logger.Error("registry call failed", "operation", op, "caller", caller, "target", target, "error", err)
	default:
		logger.Info("registry call rejected", "operation", op, "caller", caller, "target", target, "outcome", outcome)
	}

	if err == nil && ev != nil {
		s.publish(ctx, *ev)
	}
	return err
}

// publish hands ev to the sink. The mutation has already committed, so a
// failure is logged and counted but never returned.
func (s *Service) publish(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.sink.Publish(ctx, ev); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(ev.Type, "error").Inc()
		s.log(ctx).Warn("failed to publish registry event", "event_id", ev.ID, "event_type", ev.Type, "error", err)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(ev.Type, "ok").Inc()
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	if id := logging.RequestID(ctx); id != "" {
		return s.logger.With("request_id", id)
	}
	return s.logger
}
