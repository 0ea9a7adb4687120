package state

import (
	"context"
	"sync"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/authority"
	"github.com/mbd888/riskproxy/internal/registry"
)

// MemoryStore is a thread-safe in-memory Store. Data does not survive a
// restart.
type MemoryStore struct {
	mu        sync.RWMutex
	owner     account.ID
	reporters map[account.ID]authority.Role
	addresses map[account.ID]registry.AddressRecord
}

// NewMemoryStore creates an empty, uninitialized store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reporters: make(map[account.ID]authority.Role),
		addresses: make(map[account.ID]registry.AddressRecord),
	}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		store:     m,
		reporters: make(map[account.ID]authority.Role),
		addresses: make(map[account.ID]registry.AddressRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}

	// Commit the overlay.
	if tx.owner != nil {
		m.owner = *tx.owner
	}
	for id, role := range tx.reporters {
		m.reporters[id] = role
	}
	for id, rec := range tx.addresses {
		m.addresses[id] = rec
	}
	return nil
}

func (m *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return fn(&memoryTx{store: m, readOnly: true})
}

func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Initialized:      m.owner != "",
		Owner:            m.owner,
		Reporters:        int64(len(m.reporters)),
		FlaggedAddresses: int64(len(m.addresses)),
	}
	for _, role := range m.reporters {
		if role == authority.Authority {
			s.Authorities++
		}
	}
	return s, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// memoryTx reads through a write overlay to the committed maps. The caller
// holds the store lock for the lifetime of the transaction.
type memoryTx struct {
	store    *MemoryStore
	readOnly bool

	owner     *account.ID
	reporters map[account.ID]authority.Role
	addresses map[account.ID]registry.AddressRecord
}

func (t *memoryTx) Owner() (account.ID, bool, error) {
	if t.owner != nil {
		return *t.owner, true, nil
	}
	return t.store.owner, t.store.owner != "", nil
}

func (t *memoryTx) SetOwner(owner account.ID) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.owner = &owner
	return nil
}

func (t *memoryTx) Role(id account.ID) (authority.Role, bool, error) {
	if role, ok := t.reporters[id]; ok {
		return role, true, nil
	}
	role, ok := t.store.reporters[id]
	return role, ok, nil
}

func (t *memoryTx) PutRole(id account.ID, role authority.Role) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.reporters[id] = role
	return nil
}

func (t *memoryTx) Address(id account.ID) (registry.AddressRecord, bool, error) {
	if rec, ok := t.addresses[id]; ok {
		return rec, true, nil
	}
	rec, ok := t.store.addresses[id]
	return rec, ok, nil
}

func (t *memoryTx) PutAddress(id account.ID, rec registry.AddressRecord) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.addresses[id] = rec
	return nil
}
