package partner

import (
	"strings"

	"github.com/gamehub/backend/internal/domain/shared"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PartnerType is one of the six ranked reseller tiers
type PartnerType string

const (
	PartnerTypeSystemAdmin PartnerType = "system_admin"
	PartnerTypeHeadOffice  PartnerType = "head_office"
	PartnerTypeMainOffice  PartnerType = "main_office"
	PartnerTypeSubOffice   PartnerType = "sub_office"
	PartnerTypeDistributor PartnerType = "distributor"
	PartnerTypeStore       PartnerType = "store"
)

// Tier ranks. Lower is higher in the tree.
const (
	LevelSystemAdmin = 1
	LevelHeadOffice  = 2
	LevelMainOffice  = 3
	LevelSubOffice   = 4
	LevelDistributor = 5
	LevelStore       = 6
)

var partnerTypeLevels = map[PartnerType]int{
	PartnerTypeSystemAdmin: LevelSystemAdmin,
	PartnerTypeHeadOffice:  LevelHeadOffice,
	PartnerTypeMainOffice:  LevelMainOffice,
	PartnerTypeSubOffice:   LevelSubOffice,
	PartnerTypeDistributor: LevelDistributor,
	PartnerTypeStore:       LevelStore,
}

var titleCaser = cases.Title(language.English)

// AllPartnerTypes returns the tiers in rank order
func AllPartnerTypes() []PartnerType {
	return []PartnerType{
		PartnerTypeSystemAdmin,
		PartnerTypeHeadOffice,
		PartnerTypeMainOffice,
		PartnerTypeSubOffice,
		PartnerTypeDistributor,
		PartnerTypeStore,
	}
}

func (t PartnerType) String() string {
	return string(t)
}

// IsValid returns true if the type is one of the known tiers
func (t PartnerType) IsValid() bool {
	_, ok := partnerTypeLevels[t]
	return ok
}

// Level returns the tier rank, or 0 for an unknown type
func (t PartnerType) Level() int {
	return partnerTypeLevels[t]
}

// DisplayName returns a human readable tier name, e.g. "Head Office"
func (t PartnerType) DisplayName() string {
	return titleCaser.String(strings.ReplaceAll(string(t), "_", " "))
}

// IsAbove reports whether t ranks strictly above other
func (t PartnerType) IsAbove(other PartnerType) bool {
	return t.IsValid() && other.IsValid() && t.Level() < other.Level()
}

// ParsePartnerType parses a tier name
func ParsePartnerType(s string) (PartnerType, error) {
	t := PartnerType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", shared.NewDomainError("INVALID_PARTNER_TYPE", "Unknown partner type: "+s)
	}
	return t, nil
}

// PartnerTypeForLevel maps a rank back to its tier
func PartnerTypeForLevel(level int) (PartnerType, bool) {
	for t, l := range partnerTypeLevels {
		if l == level {
			return t, true
		}
	}
	return "", false
}
