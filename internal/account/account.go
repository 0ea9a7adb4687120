// Package account defines the account identifier used as the key for every
// record in the registry.
//
// Two shapes are accepted:
//   - EVM hex addresses ("0x" + 40 hex chars), normalized to lower case
//   - named accounts ("alice", "mining.pool", "hapi-reporter.near")
package account

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidID is returned when an account identifier is not well-formed.
var ErrInvalidID = errors.New("account: invalid account identifier")

const (
	MinNameLength = 2
	MaxNameLength = 64
)

// ID identifies an account. The zero value is not a valid account.
type ID string

// String returns the identifier as stored.
func (id ID) String() string { return string(id) }

// IsZero reports whether id is the empty identifier.
func (id ID) IsZero() bool { return id == "" }

// IsHex reports whether id is an EVM hex address.
func (id ID) IsHex() bool { return common.IsHexAddress(string(id)) && strings.HasPrefix(string(id), "0x") }

// Parse validates and normalizes a raw account identifier.
func Parse(raw string) (ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidID
	}

	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		if len(raw) != 42 || !common.IsHexAddress(raw) {
			return "", ErrInvalidID
		}
		return ID(strings.ToLower(common.HexToAddress(raw).Hex())), nil
	}

	if !validName(raw) {
		return "", ErrInvalidID
	}
	return ID(raw), nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// validName checks the named-account grammar: lower-case alphanumeric parts
// separated by single '-', '_' or '.' characters.
func validName(s string) bool {
	if len(s) < MinNameLength || len(s) > MaxNameLength {
		return false
	}

	prevSep := true // disallows a leading separator
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevSep = false
		case c == '-' || c == '_' || c == '.':
			if prevSep {
				return false
			}
			prevSep = true
		default:
			return false
		}
	}
	return !prevSep
}
