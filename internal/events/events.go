// Package events publishes registry change notifications after a mutation
// has committed. Sinks are best-effort: the registry never rolls back or
// fails a call because a sink could not deliver.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/riskproxy/internal/account"
)

// Event types.
const (
	OwnerInitialized = "owner.initialized"
	OwnerChanged     = "owner.changed"
	ReporterCreated  = "reporter.created"
	ReporterUpdated  = "reporter.updated"
	AddressCreated   = "address.created"
	AddressUpdated   = "address.updated"
)

// Types lists every event type in a stable order.
var Types = []string{
	OwnerInitialized, OwnerChanged,
	ReporterCreated, ReporterUpdated,
	AddressCreated, AddressUpdated,
}

// Event describes one committed mutation.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Caller    account.ID      `json:"caller,omitempty"`
	Target    account.ID      `json:"target"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// New builds an event with a fresh ID. data is JSON-encoded; an encoding
// failure leaves Data empty.
func New(typ string, caller, target account.ID, data any) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Caller:    caller,
		Target:    target,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			ev.Data = b
		}
	}
	return ev
}

// Sink receives committed events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }
func (discard) Close() error                         { return nil }

// Multi fans each event out to several sinks concurrently. Publish waits for
// all of them and returns every failure joined.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, ev Event) error {
	errs := make([]error, len(m))
	var g errgroup.Group
	for i, s := range m {
		g.Go(func() error {
			errs[i] = s.Publish(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
