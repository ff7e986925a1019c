package refdata

import "fmt"

// EntityType is a category of reference data published by the manifest server.
type EntityType uint8

const (
	Undefined EntityType = iota
	ManifestItems
	Upgrades
	Weapons
	Warframes
	Sentinels
	Enemies
	Resources
	Drones
	Customs
	Flavour
	Keys
	Gear
	Regions
)

var entityTypeNames = map[EntityType]string{
	ManifestItems: "Manifest",
	Upgrades:      "Upgrades",
	Weapons:       "Weapons",
	Warframes:     "Warframes",
	Sentinels:     "Sentinels",
	Enemies:       "Enemies",
	Resources:     "Resources",
	Drones:        "Drones",
	Customs:       "Customs",
	Flavour:       "Flavour",
	Keys:          "Keys",
	Gear:          "Gear",
	Regions:       "Regions",
}

// EntityTypes returns all defined entity types.
func EntityTypes() []EntityType {
	return []EntityType{
		ManifestItems,
		Upgrades,
		Weapons,
		Warframes,
		Sentinels,
		Enemies,
		Resources,
		Drones,
		Customs,
		Flavour,
		Keys,
		Gear,
		Regions,
	}
}

// ParseEntityType returns the entity type for a name, e.g. "Drones".
func ParseEntityType(s string) (EntityType, error) {
	for et, name := range entityTypeNames {
		if name == s {
			return et, nil
		}
	}
	return Undefined, fmt.Errorf("unknown entity type: %s", s)
}

func (et EntityType) String() string {
	s, ok := entityTypeNames[et]
	if !ok {
		return "Undefined"
	}
	return s
}

// IsValid reports whether et is a defined entity type.
func (et EntityType) IsValid() bool {
	_, ok := entityTypeNames[et]
	return ok
}

// FileName returns the name of the export file on the manifest server.
func (et EntityType) FileName() string {
	return "Export" + et.String() + ".json"
}
