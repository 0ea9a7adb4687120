package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/authority"
	"github.com/mbd888/riskproxy/internal/registry"
)

// writeLockKey is the advisory lock every read-write transaction takes, so
// writers are serialized across all processes sharing the database.
const writeLockKey int64 = 0x7269736b // "risk"

// PostgresStore persists registry state in PostgreSQL. The schema lives in
// migrations/.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

func (p *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if _, err = sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, writeLockKey); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}

	if err = fn(&pgTx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	return fn(&pgTx{ctx: ctx, tx: sqlTx, readOnly: true})
}

func (p *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var owner sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT
			(SELECT owner FROM registry_owner WHERE id = 1),
			(SELECT COUNT(*) FROM reporters),
			(SELECT COUNT(*) FROM reporters WHERE role = $1),
			(SELECT COUNT(*) FROM flagged_addresses)
	`, int16(authority.Authority)).Scan(&owner, &s.Reporters, &s.Authorities, &s.FlaggedAddresses)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	if owner.Valid {
		s.Initialized = true
		s.Owner = account.ID(owner.String)
	}
	return s, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// pgTx adapts a *sql.Tx to Tx. The context is captured at Begin because the
// domain operations are context-free.
type pgTx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *pgTx) Owner() (account.ID, bool, error) {
	var owner string
	err := t.tx.QueryRowContext(t.ctx, `SELECT owner FROM registry_owner WHERE id = 1`).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return account.ID(owner), true, nil
}

func (t *pgTx) SetOwner(owner account.ID) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO registry_owner (id, owner) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET owner = EXCLUDED.owner, updated_at = NOW()
	`, string(owner))
	return err
}

func (t *pgTx) Role(id account.ID) (authority.Role, bool, error) {
	var role int16
	err := t.tx.QueryRowContext(t.ctx, `SELECT role FROM reporters WHERE account = $1`, string(id)).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	r := authority.Role(role)
	if !r.Valid() {
		return 0, false, fmt.Errorf("reporter %s: stored role %d out of range", id, role)
	}
	return r, true, nil
}

func (t *pgTx) PutRole(id account.ID, role authority.Role) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO reporters (account, role) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
	`, string(id), int16(role))
	return err
}

func (t *pgTx) Address(id account.ID) (registry.AddressRecord, bool, error) {
	var category, risk int16
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT category, risk FROM flagged_addresses WHERE address = $1
	`, string(id)).Scan(&category, &risk)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.AddressRecord{}, false, nil
	}
	if err != nil {
		return registry.AddressRecord{}, false, err
	}

	rec := registry.AddressRecord{Category: registry.Category(category), Risk: uint8(risk)}
	if err := rec.Validate(); err != nil {
		return registry.AddressRecord{}, false, fmt.Errorf("address %s: %w", id, err)
	}
	return rec, true, nil
}

func (t *pgTx) PutAddress(id account.ID, rec registry.AddressRecord) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO flagged_addresses (address, category, risk) VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET
			category = EXCLUDED.category,
			risk = EXCLUDED.risk,
			updated_at = NOW()
	`, string(id), int16(rec.Category), int16(rec.Risk))
	return err
}
