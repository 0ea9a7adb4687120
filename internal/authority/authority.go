// Package authority implements the Role Authority: the owner account and the
// reporter table, and the rules deciding who may manage either of them.
//
// Every function takes the transaction it operates on. Callers are expected
// to run one public operation per transaction so that a failed check leaves
// nothing behind.
package authority

import (
	"errors"
	"fmt"

	"github.com/mbd888/riskproxy/internal/account"
)

var (
	ErrUnauthorized       = errors.New("authority: caller is not permitted to perform this operation")
	ErrInvalidRole        = errors.New("authority: invalid role")
	ErrReporterExists     = errors.New("authority: reporter already exists")
	ErrReporterNotFound   = errors.New("authority: reporter does not exist")
	ErrAlreadyInitialized = errors.New("authority: registry is already initialized")
	ErrNotInitialized     = errors.New("authority: registry is not initialized")
	ErrInvalidOwner       = errors.New("authority: owner must be a valid account")
)

// Tx is the slice of the shared store the Role Authority reads and writes.
type Tx interface {
	// Owner returns the current owner, or ok=false before initialization.
	Owner() (owner account.ID, ok bool, err error)
	SetOwner(owner account.ID) error

	// Role returns the caller's entry in the reporter table, or ok=false if absent.
	Role(id account.ID) (role Role, ok bool, err error)
	PutRole(id account.ID, role Role) error
}

// Initialize sets the owner of a fresh registry. It fails if an owner has
// already been set.
func Initialize(tx Tx, owner account.ID) error {
	if owner.IsZero() {
		return ErrInvalidOwner
	}
	_, ok, err := tx.Owner()
	if err != nil {
		return fmt.Errorf("read owner: %w", err)
	}
	if ok {
		return ErrAlreadyInitialized
	}
	return tx.SetOwner(owner)
}

// ChangeOwner transfers ownership. Only the current owner may call it.
func ChangeOwner(tx Tx, caller, newOwner account.ID) error {
	if newOwner.IsZero() {
		return ErrInvalidOwner
	}
	owner, err := requireOwner(tx)
	if err != nil {
		return err
	}
	if caller != owner {
		return ErrUnauthorized
	}
	return tx.SetOwner(newOwner)
}

// CreateReporter grants role to target. The role is validated before the
// caller is authorized. The returned previous role is always nil because
// duplicates are rejected; it mirrors UpdateReporter's shape.
func CreateReporter(tx Tx, caller, target account.ID, role Role) (*Role, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if err := RequireOwnerOrAuthority(tx, caller); err != nil {
		return nil, err
	}

	_, exists, err := tx.Role(target)
	if err != nil {
		return nil, fmt.Errorf("read reporter: %w", err)
	}
	if exists {
		return nil, ErrReporterExists
	}

	if err := tx.PutRole(target, role); err != nil {
		return nil, err
	}
	return nil, nil
}

// UpdateReporter replaces target's role and returns the role it replaced.
func UpdateReporter(tx Tx, caller, target account.ID, role Role) (Role, error) {
	if !role.Valid() {
		return 0, ErrInvalidRole
	}
	if err := RequireOwnerOrAuthority(tx, caller); err != nil {
		return 0, err
	}

	previous, exists, err := tx.Role(target)
	if err != nil {
		return 0, fmt.Errorf("read reporter: %w", err)
	}
	if !exists {
		return 0, ErrReporterNotFound
	}

	if err := tx.PutRole(target, role); err != nil {
		return 0, err
	}
	return previous, nil
}

// GetRole returns target's role, or ErrReporterNotFound.
func GetRole(tx Tx, target account.ID) (Role, error) {
	role, ok, err := tx.Role(target)
	if err != nil {
		return 0, fmt.Errorf("read reporter: %w", err)
	}
	if !ok {
		return 0, ErrReporterNotFound
	}
	return role, nil
}

// IsReporter reports whether target holds any role.
func IsReporter(tx Tx, target account.ID) (bool, error) {
	_, ok, err := tx.Role(target)
	if err != nil {
		return false, fmt.Errorf("read reporter: %w", err)
	}
	return ok, nil
}

// RequireOwnerOrAuthority passes if caller is the owner or holds the
// Authority role. A plain Reporter is never enough.
func RequireOwnerOrAuthority(tx Tx, caller account.ID) error {
	owner, err := requireOwner(tx)
	if err != nil {
		return err
	}
	if caller == owner {
		return nil
	}

	role, ok, err := tx.Role(caller)
	if err != nil {
		return fmt.Errorf("read reporter: %w", err)
	}
	if ok && role == Authority {
		return nil
	}
	return ErrUnauthorized
}

// RequireReporter passes if caller holds any role. Ownership alone does not
// qualify.
func RequireReporter(tx Tx, caller account.ID) error {
	ok, err := IsReporter(tx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func requireOwner(tx Tx) (account.ID, error) {
	owner, ok, err := tx.Owner()
	if err != nil {
		return "", fmt.Errorf("read owner: %w", err)
	}
	if !ok {
		return "", ErrNotInitialized
	}
	return owner, nil
}
