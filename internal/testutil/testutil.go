// Package testutil contains utilities for writing tests.
package testutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/icrowley/fake"

	"github.com/cephalon-sofis/wfbuddy/internal/refdata"
	"github.com/cephalon-sofis/wfbuddy/internal/storage"
)

// NewDBInMemory creates and returns a database in memory for tests.
func NewDBInMemory() (*sql.DB, *storage.Storage) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		panic(err)
	}
	// each connection would get it's own in-memory database
	db.SetMaxOpenConns(1)
	if err := storage.ApplySchema(db); err != nil {
		panic(err)
	}
	return db, storage.New(db)
}

// MustTruncateTables removes all data from all tables or panics.
func MustTruncateTables(db *sql.DB) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = "table"`)
	if err != nil {
		panic(err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			panic(err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	for _, n := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s;", n)); err != nil {
			panic(err)
		}
	}
}

// Account is a fake player account.
type Account struct {
	Email     string
	Password  string
	AccountID string
	Nonce     string
}

// NewAccount returns a new fake account.
func NewAccount() Account {
	return Account{
		Email:     strings.ToLower(fake.EmailAddress()),
		Password:  fake.SimplePassword(),
		AccountID: fake.DigitsN(24),
		Nonce:     fake.DigitsN(10),
	}
}

// Cache is an in-memory cache for tests.
type Cache map[string][]byte

func NewCache() Cache {
	return make(Cache)
}

func (c Cache) Get(k string) ([]byte, bool) {
	v, ok := c[k]
	return v, ok
}

func (c Cache) Set(k string, v []byte, d time.Duration) {
	c[k] = v
}

// Lookup is an in-memory reference data lookup for tests.
type Lookup struct {
	Entities map[refdata.EntityType]map[string]any
	Systems  []refdata.System
}

var _ refdata.Lookup = (*Lookup)(nil)

// NewLookup returns a lookup with the extractor types of [ExtractorTypes]
// and the systems of [Systems].
func NewLookup() *Lookup {
	l := &Lookup{
		Entities: map[refdata.EntityType]map[string]any{
			refdata.Drones: make(map[string]any),
		},
		Systems: Systems(),
	}
	for _, x := range ExtractorTypes() {
		l.Entities[refdata.Drones][x["uniqueName"].(string)] = x
	}
	return l
}

func (l *Lookup) Fetch(ctx context.Context, et refdata.EntityType, uniqueName string) (refdata.Entity, error) {
	x, ok := l.Entities[et][uniqueName]
	if !ok {
		return refdata.Entity{}, fmt.Errorf("%s %s: %w", et, uniqueName, refdata.ErrNotFound)
	}
	raw, err := json.Marshal(x)
	if err != nil {
		return refdata.Entity{}, err
	}
	return refdata.NewEntity(et, uniqueName, raw), nil
}

func (l *Lookup) RegionsBySystem(ctx context.Context) ([]refdata.System, error) {
	return l.Systems, nil
}

// Extractor types used in tests.
const (
	ExtractorBasic  = "/Lotus/Types/Items/Drones/HarvestingDrone"
	ExtractorTitan  = "/Lotus/Types/Items/Drones/TitanHarvestingDrone"
	ExtractorDistil = "/Lotus/Types/Items/Drones/DistilleryDrone"
)

// ExtractorTypes returns the manifest entries of the test extractor types.
func ExtractorTypes() []map[string]any {
	return []map[string]any{
		{
			"uniqueName":         ExtractorBasic,
			"name":               "Extractor",
			"binCount":           2,
			"binCapacity":        60,
			"durability":         1000,
			"fillRate":           4,
			"repairRate":         1,
			"capacityMultiplier": []float64{1, 1.2},
			"probabilty":         []float64{0.5, 0.5},
			"specialities":       []string{"/Lotus/Types/Items/Research/ChemComponent"},
		},
		{
			"uniqueName":         ExtractorTitan,
			"name":               "Titan Extractor",
			"binCount":           2,
			"binCapacity":        100,
			"durability":         1500,
			"fillRate":           4,
			"repairRate":         1,
			"capacityMultiplier": []float64{1, 1.5},
			"probabilty":         []float64{0.6, 0.4},
			"specialities":       []string{},
		},
		{
			"uniqueName":         ExtractorDistil,
			"name":               "Distilling Extractor",
			"binCount":           1,
			"binCapacity":        20,
			"durability":         500,
			"fillRate":           1.5,
			"repairRate":         2,
			"capacityMultiplier": []float64{1},
			"probabilty":         []float64{1},
			"specialities":       []string{},
		},
	}
}

// Systems returns some systems for tests.
func Systems() []refdata.System {
	return []refdata.System{
		{Name: "Earth", Index: 1, Regions: []string{"SolNode27", "SolNode63"}},
		{Name: "Venus", Index: 2, Regions: []string{"SolNode22"}},
		{Name: "Mars", Index: 3, Regions: []string{"SolNode30", "SolNode36"}},
	}
}

// ExportFile returns an export file for entries as published by the manifest server.
func ExportFile(key string, entries ...map[string]any) []byte {
	dat, err := json.Marshal(map[string]any{key: entries})
	if err != nil {
		panic(err)
	}
	return dat
}
