// Package state holds the shared store behind the Role Authority and the
// Risk Registry: the owner scalar, the reporter table and the address table.
//
// All access goes through transactions. Update runs its callback as one
// atomic unit and serializes against every other Update, so check-then-act
// sequences inside a callback cannot race. The callback's writes are kept
// only if it returns nil.
package state

import (
	"context"
	"errors"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/registry"
)

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("state: write in read-only transaction")

// Tx is a transaction over the whole registry state.
type Tx interface {
	registry.Tx
}

// Stats summarizes the stored state.
type Stats struct {
	Initialized      bool       `json:"initialized"`
	Owner            account.ID `json:"owner,omitempty"`
	Reporters        int64      `json:"reporters"`
	Authorities      int64      `json:"authorities"`
	FlaggedAddresses int64      `json:"flaggedAddresses"`
}

// Store is the durable key/value store backing a registry instance.
type Store interface {
	// Update runs fn in a serialized read-write transaction. The transaction
	// commits iff fn returns nil.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Stats counts table entries.
	Stats(ctx context.Context) (Stats, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
