package authority

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the privilege level attached to an entry in the reporter table.
// Only Reporter and Authority are valid; the zero value is deliberately
// invalid so that a missing entry can never be mistaken for a grant.
type Role uint8

const (
	// Reporter may create and update address records.
	Reporter Role = 1
	// Authority may additionally create and update reporters.
	Authority Role = 2
)

// Roles lists every valid role in ascending privilege order.
var Roles = []Role{Reporter, Authority}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r == Reporter || r == Authority
}

func (r Role) String() string {
	switch r {
	case Reporter:
		return "reporter"
	case Authority:
		return "authority"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole accepts either the role name ("reporter", "authority") or its
// numeric form ("1", "2"). Unknown input yields ErrInvalidRole.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reporter", "1":
		return Reporter, nil
	case "authority", "2":
		return Authority, nil
	}
	return 0, ErrInvalidRole
}

// MarshalJSON encodes the role as its integer value.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint8(r))
}

// UnmarshalJSON accepts an integer or a role name. Out-of-range integers
// decode to an invalid Role rather than failing, so the operation itself
// reports ErrInvalidRole in its usual check order.
func (r *Role) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		if n < 0 || n > 255 {
			*r = 0
			return nil
		}
		*r = Role(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("role must be an integer or a role name: %w", err)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		*r = 0
		return nil
	}
	*r = parsed
	return nil
}
