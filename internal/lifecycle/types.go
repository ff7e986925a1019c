package lifecycle

import (
	"encoding/json"
	"time"
)

// ItemID is the ID of an item in the player's inventory.
type ItemID struct {
	ID string `json:"$id"`
}

// Timestamp is a point in time as reported by the API.
type Timestamp struct {
	Sec  int64 `json:"sec"`
	Usec int64 `json:"usec"`
}

// Time returns the timestamp as time.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Sec, t.Usec*int64(time.Microsecond))
}

// Extractor identifies an extractor item.
type Extractor struct {
	ItemID   string
	ItemType string
}

// ExtractorState is an extractor currently deployed to a system.
type ExtractorState struct {
	ItemID     ItemID    `json:"ItemId"`
	ItemType   string    `json:"ItemType"`
	DeployTime Timestamp `json:"DeployTime"`
	System     int       `json:"System"` // system index
}

func (x ExtractorState) Extractor() Extractor {
	return Extractor{ItemID: x.ItemID.ID, ItemType: x.ItemType}
}

// Drone is an extractor in the inventory.
type Drone struct {
	ItemID    ItemID  `json:"ItemId"`
	ItemType  string  `json:"ItemType"`
	CurrentHP float64 `json:"CurrentHP"`
}

func (x Drone) Extractor() Extractor {
	return Extractor{ItemID: x.ItemID.ID, ItemType: x.ItemType}
}

// PendingRecipe is a recipe which has been started.
type PendingRecipe struct {
	ItemType       string    `json:"ItemType"`
	CompletionDate Timestamp `json:"CompletionDate"`
}

// Inventory is the inventory of an account.
//
// It contains only the parts used here. The complete response is available as Raw.
type Inventory struct {
	Drones         []Drone         `json:"Drones"`
	PendingRecipes []PendingRecipe `json:"PendingRecipes"`

	Raw json.RawMessage `json:"-"`
}

// RecipeDetail describes a recipe.
type RecipeDetail struct {
	ItemType    string            `json:"ItemType"`
	Ingredients []json.RawMessage `json:"Ingredients"`
}
