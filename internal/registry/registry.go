package registry

import (
	"fmt"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/authority"
)

// Tx is the view of the shared store the Risk Registry works against. It
// includes the Role Authority's tables because every write is gated on them.
type Tx interface {
	authority.Tx

	// Address returns the stored record, or ok=false if target is unflagged.
	Address(target account.ID) (rec AddressRecord, ok bool, err error)
	PutAddress(target account.ID, rec AddressRecord) error
}

// CreateAddress flags target. Checks run in order: caller is a reporter,
// risk is in range, category is known, target is not already flagged.
func CreateAddress(tx Tx, caller, target account.ID, category Category, risk int) error {
	rec, err := checkWrite(tx, caller, category, risk)
	if err != nil {
		return err
	}

	_, exists, err := tx.Address(target)
	if err != nil {
		return fmt.Errorf("read address: %w", err)
	}
	if exists {
		return ErrAddressExists
	}

	return tx.PutAddress(target, rec)
}

// UpdateAddress replaces the whole record of an already flagged target.
func UpdateAddress(tx Tx, caller, target account.ID, category Category, risk int) error {
	rec, err := checkWrite(tx, caller, category, risk)
	if err != nil {
		return err
	}

	_, exists, err := tx.Address(target)
	if err != nil {
		return fmt.Errorf("read address: %w", err)
	}
	if !exists {
		return ErrAddressNotFound
	}

	return tx.PutAddress(target, rec)
}

// GetAddress returns target's record, or Unflagged if it has none. Absence
// is not an error.
func GetAddress(tx Tx, target account.ID) (AddressRecord, error) {
	rec, ok, err := tx.Address(target)
	if err != nil {
		return AddressRecord{}, fmt.Errorf("read address: %w", err)
	}
	if !ok {
		return Unflagged, nil
	}
	return rec, nil
}

// IsFlagged reports whether target has an explicit record, including one
// stored as (None, 0).
func IsFlagged(tx Tx, target account.ID) (bool, error) {
	_, ok, err := tx.Address(target)
	if err != nil {
		return false, fmt.Errorf("read address: %w", err)
	}
	return ok, nil
}

func checkWrite(tx Tx, caller account.ID, category Category, risk int) (AddressRecord, error) {
	if err := authority.RequireReporter(tx, caller); err != nil {
		return AddressRecord{}, err
	}
	if risk < 0 || risk > MaxRisk {
		return AddressRecord{}, ErrInvalidRisk
	}
	if !category.Valid() {
		return AddressRecord{}, ErrInvalidCategory
	}
	return AddressRecord{Category: category, Risk: uint8(risk)}, nil
}
