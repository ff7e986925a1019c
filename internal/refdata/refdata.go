// Package refdata provides access to the semi-static reference data
// published by the manifest server, e.g. item definitions and regions.
package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/cases"
)

var ErrNotFound = errors.New("entity not found")

// Lookup is the contract for accessing reference data.
type Lookup interface {
	// Fetch returns the entity of type et with the unique name uniqueName.
	// It returns [ErrNotFound] when no such entity exists.
	Fetch(ctx context.Context, et EntityType, uniqueName string) (Entity, error)

	// RegionsBySystem returns all regions grouped by their system.
	RegionsBySystem(ctx context.Context) ([]System, error)
}

// Entity is a reference data object in its original JSON form.
type Entity struct {
	Type       EntityType
	UniqueName string
	raw        json.RawMessage
}

// NewEntity returns a new entity from its JSON representation.
func NewEntity(et EntityType, uniqueName string, raw json.RawMessage) Entity {
	return Entity{Type: et, UniqueName: uniqueName, raw: raw}
}

// Decode decodes the entity's attributes into v.
func (e Entity) Decode(v any) error {
	if err := json.Unmarshal(e.raw, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", e.Type, e.UniqueName, err)
	}
	return nil
}

// Attributes returns the entity's raw attributes.
func (e Entity) Attributes() (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := e.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// System is a location in the game world which groups regions.
type System struct {
	Name    string
	Index   int
	Regions []string // unique names of the regions in manifest order
}

// FindSystem returns the system with the given name.
// Names are matched exactly first and then case-insensitively.
func FindSystem(systems []System, name string) (System, bool) {
	for _, s := range systems {
		if s.Name == name {
			return s, true
		}
	}
	fold := cases.Fold()
	n := fold.String(name)
	for _, s := range systems {
		if fold.String(s.Name) == n {
			return s, true
		}
	}
	return System{}, false
}

// ExtractorTypeInfo describes a type of extractor.
type ExtractorTypeInfo struct {
	UniqueName  string  `json:"uniqueName"`
	Name        string  `json:"name"`
	BinCount    int     `json:"binCount"`
	BinCapacity int     `json:"binCapacity"`
	Durability  float64 `json:"durability"`
	FillRate    float64 `json:"fillRate"` // hours per cycle
	RepairRate  float64 `json:"repairRate"`

	// These are sent to the drones endpoint as published.
	CapacityMultiplier json.RawMessage `json:"capacityMultiplier"`
	Probability        json.RawMessage `json:"probabilty"` // sic
	Specialities       json.RawMessage `json:"specialities"`
}

// FillDuration returns the time an extractor of this type needs to finish.
func (x ExtractorTypeInfo) FillDuration() time.Duration {
	return time.Duration(x.FillRate * float64(time.Hour))
}

// extractorPayload is the extractor data in the format expected by the drones endpoint.
type extractorPayload struct {
	DroneRes            string          `json:"droneRes"`
	BinCount            int             `json:"binCount"`
	BinCapacity         int             `json:"binCapacity"`
	DroneDurability     float64         `json:"droneDurability"`
	FillRate            float64         `json:"fillRate"`
	RepairRate          float64         `json:"repairRate"`
	CapacityMultipliers json.RawMessage `json:"capacityMultipliers"`
	Probabilities       json.RawMessage `json:"probabilities"`
	Specialities        json.RawMessage `json:"specialities"`
}

// Payload returns the extractor data as request body for the drones endpoint.
func (x ExtractorTypeInfo) Payload() ([]byte, error) {
	p := extractorPayload{
		DroneRes:            x.UniqueName,
		BinCount:            x.BinCount,
		BinCapacity:         x.BinCapacity,
		DroneDurability:     x.Durability,
		FillRate:            x.FillRate,
		RepairRate:          x.RepairRate,
		CapacityMultipliers: x.CapacityMultiplier,
		Probabilities:       x.Probability,
		Specialities:        x.Specialities,
	}
	return json.Marshal(p)
}

// ExtractorInfo returns the type info for an extractor type.
func ExtractorInfo(ctx context.Context, l Lookup, itemType string) (ExtractorTypeInfo, error) {
	e, err := l.Fetch(ctx, Drones, itemType)
	if err != nil {
		return ExtractorTypeInfo{}, err
	}
	var x ExtractorTypeInfo
	if err := e.Decode(&x); err != nil {
		return ExtractorTypeInfo{}, err
	}
	if x.UniqueName == "" {
		x.UniqueName = itemType
	}
	return x, nil
}

// region is a region as defined in the manifest.
type region struct {
	UniqueName  string `json:"uniqueName"`
	SystemName  string `json:"systemName"`
	SystemIndex int    `json:"systemIndex"`
}
