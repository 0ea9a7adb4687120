// Package registry implements the Risk Registry: the table of flagged
// accounts, each carrying a category and a risk score.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrInvalidRisk     = errors.New("registry: risk must be between 0 and 10")
	ErrInvalidCategory = errors.New("registry: invalid category")
	ErrAddressExists   = errors.New("registry: address already exists")
	ErrAddressNotFound = errors.New("registry: address does not exist")
)

// MaxRisk is the highest risk score an address can carry.
const MaxRisk = 10

// -----------------------------------------------------------------------------
// Category (the taxonomy)
// -----------------------------------------------------------------------------

// Category classifies why an address is flagged. The set is closed.
type Category uint8

const (
	None Category = iota
	WalletService
	MerchantService
	MiningPool
	Exchange
	DeFi
	OTCBroker
	ATM
	Gambling
	IllicitOrganization
	Mixer
	DarknetService
	Scam
	Ransomware
	Theft
	Counterfeit
	TerroristFinancing
	Sanctions
	ChildAbuse

	numCategories
)

var categoryNames = [numCategories]string{
	None:                "None",
	WalletService:       "WalletService",
	MerchantService:     "MerchantService",
	MiningPool:          "MiningPool",
	Exchange:            "Exchange",
	DeFi:                "DeFi",
	OTCBroker:           "OTCBroker",
	ATM:                 "ATM",
	Gambling:            "Gambling",
	IllicitOrganization: "IllicitOrganization",
	Mixer:               "Mixer",
	DarknetService:      "DarknetService",
	Scam:                "Scam",
	Ransomware:          "Ransomware",
	Theft:               "Theft",
	Counterfeit:         "Counterfeit",
	TerroristFinancing:  "TerroristFinancing",
	Sanctions:           "Sanctions",
	ChildAbuse:          "ChildAbuse",
}

// Categories returns every category in declaration order.
func Categories() []Category {
	out := make([]Category, 0, numCategories)
	for c := None; c < numCategories; c++ {
		out = append(out, c)
	}
	return out
}

// Valid reports whether c is a defined category.
func (c Category) Valid() bool { return c < numCategories }

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
	return categoryNames[c]
}

// ParseCategory looks a category up by its name (case-sensitive).
func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, ErrInvalidCategory
}

// MarshalJSON encodes the category by name.
func (c Category) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, ErrInvalidCategory
	}
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts a category name or its integer value.
func (c *Category) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseCategory(name)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return ErrInvalidCategory
	}
	if n < 0 || n >= int(numCategories) {
		return ErrInvalidCategory
	}
	*c = Category(n)
	return nil
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// AddressRecord is what the registry knows about a flagged account.
type AddressRecord struct {
	Category Category `json:"category"`
	Risk     uint8    `json:"risk"`
}

// Unflagged is what GetAddress returns for accounts absent from the table.
var Unflagged = AddressRecord{Category: None, Risk: 0}

// Validate checks the record invariants.
func (r AddressRecord) Validate() error {
	if r.Risk > MaxRisk {
		return ErrInvalidRisk
	}
	if !r.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}
