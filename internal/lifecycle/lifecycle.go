// Package lifecycle implements the time-gated operations on extractors and recipes.
//
// All operations check their preconditions against a snapshot of the account's
// active extractors or inventory. Callers can pass a snapshot they already have
// to avoid redundant requests within a batch of operations.
// When no snapshot is passed (nil) a fresh one is fetched.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/cephalon-sofis/wfbuddy/internal/clock"
	"github.com/cephalon-sofis/wfbuddy/internal/refdata"
	"github.com/cephalon-sofis/wfbuddy/internal/session"
	"github.com/cephalon-sofis/wfbuddy/internal/transport"
)

const (
	PathInventory   = "/API/PHP/inventory.php"
	PathRecipes     = "/API/PHP/mobileRetrieveRecipes.php"
	PathStartRecipe = "/API/PHP/startRecipe.php"
	PathClaimRecipe = "/API/PHP/claimCompletedRecipe.php"
	PathDrones      = "/API/PHP/drones.php"

	binIndexAll = -1
)

// Session sends requests with the token of a live session.
type Session interface {
	IsLoggedIn() bool
	Send(ctx context.Context, r session.Request) (transport.Result, error)
}

// Manager manages the lifecycle of extractors and recipes.
type Manager struct {
	// Clock is the source for the current time.
	Clock clock.Clock

	ref  refdata.Lookup
	sess Session
}

// New returns a new Manager.
func New(sess Session, ref refdata.Lookup) *Manager {
	m := &Manager{
		Clock: clock.Real{},
		ref:   ref,
		sess:  sess,
	}
	return m
}

// Inventory fetches the inventory of the account.
func (m *Manager) Inventory(ctx context.Context) (*Inventory, error) {
	r, err := m.sess.Send(ctx, session.Request{Path: PathInventory, Auth: session.AuthForm})
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	var inv Inventory
	if err := r.Decode(&inv); err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	inv.Raw = json.RawMessage(r.Text())
	return &inv, nil
}

// ActiveExtractors fetches all currently deployed extractors.
func (m *Manager) ActiveExtractors(ctx context.Context) ([]ExtractorState, error) {
	r, err := m.sess.Send(ctx, session.Request{
		Path:  PathDrones,
		Query: url.Values{"GetActive": {"true"}},
		Auth:  session.AuthQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("active extractors: %w", err)
	}
	var x struct {
		ActiveDrones []ExtractorState `json:"ActiveDrones"`
	}
	if err := r.Decode(&x); err != nil {
		return nil, fmt.Errorf("active extractors: %w", err)
	}
	if x.ActiveDrones == nil {
		x.ActiveDrones = []ExtractorState{}
	}
	return x.ActiveDrones, nil
}

// RecipeDetails fetches the details for recipes. This does not require a session.
func (m *Manager) RecipeDetails(ctx context.Context, itemTypes ...string) ([]RecipeDetail, error) {
	type recipe struct {
		ItemType string `json:"ItemType"`
	}
	recipes := make([]recipe, 0, len(itemTypes))
	for _, t := range itemTypes {
		recipes = append(recipes, recipe{ItemType: t})
	}
	dat, err := json.Marshal(recipes)
	if err != nil {
		return nil, err
	}
	v := url.Values{}
	v.Set("recipes", string(dat))
	v.Set("mobile", "True")
	r, err := m.sess.Send(ctx, session.Request{
		Path:        PathRecipes,
		Body:        []byte(v.Encode()),
		ContentType: transport.ContentTypeForm,
	})
	if err != nil {
		return nil, fmt.Errorf("recipe details: %w", err)
	}
	var details []RecipeDetail
	if err := r.Decode(&details); err != nil {
		return nil, fmt.Errorf("recipe details: %w", err)
	}
	return details, nil
}

// DeployExtractor deploys an extractor to a system.
// The outcome is AlreadyActive when the extractor is already deployed.
func (m *Manager) DeployExtractor(ctx context.Context, x Extractor, systemIndex int, active []ExtractorState) (Result, error) {
	if !m.sess.IsLoggedIn() {
		return Result{}, session.ErrNotLoggedIn
	}
	if active == nil {
		var err error
		active, err = m.ActiveExtractors(ctx)
		if err != nil {
			return Result{}, err
		}
	}
	if _, found := findExtractor(active, x.ItemID); found {
		return Result{Outcome: AlreadyActive, kind: kindExtractor}, nil
	}
	payload, err := m.extractorPayload(ctx, x.ItemType)
	if err != nil {
		return Result{}, err
	}
	r, err := m.sess.Send(ctx, session.Request{
		Path: PathDrones,
		Query: url.Values{
			"droneId":     {x.ItemID},
			"systemIndex": {strconv.Itoa(systemIndex)},
		},
		Body: payload,
		Auth: session.AuthQuery,
	})
	if err != nil {
		return Result{}, fmt.Errorf("deploy extractor %s: %w", x.ItemID, err)
	}
	slog.Info("Extractor deployed", "itemID", x.ItemID, "systemIndex", systemIndex)
	return Result{Outcome: Done, Response: r, kind: kindExtractor}, nil
}

// CollectExtractor collects a deployed extractor.
//
// The outcome is NotFound when the extractor is not deployed
// and NotFinished when it is still running and forceIfEarly is not set.
func (m *Manager) CollectExtractor(ctx context.Context, x Extractor, forceIfEarly bool, active []ExtractorState) (Result, error) {
	if !m.sess.IsLoggedIn() {
		return Result{}, session.ErrNotLoggedIn
	}
	if active == nil {
		var err error
		active, err = m.ActiveExtractors(ctx)
		if err != nil {
			return Result{}, err
		}
	}
	deployed, found := findExtractor(active, x.ItemID)
	if !found {
		return Result{Outcome: NotFound, kind: kindExtractor}, nil
	}
	info, err := refdata.ExtractorInfo(ctx, m.ref, deployed.ItemType)
	if err != nil {
		return Result{}, err
	}
	finishesAt := deployed.DeployTime.Time().Add(info.FillDuration())
	if !forceIfEarly && m.Clock.Now().Before(finishesAt) {
		return Result{Outcome: NotFinished, FinishesAt: finishesAt, kind: kindExtractor}, nil
	}
	payload, err := m.extractorPayload(ctx, x.ItemType)
	if err != nil {
		return Result{}, err
	}
	r, err := m.sess.Send(ctx, session.Request{
		Path: PathDrones,
		Query: url.Values{
			"collectDroneId": {x.ItemID},
			"binIndex":       {strconv.Itoa(binIndexAll)},
		},
		Body: payload,
		Auth: session.AuthQuery,
	})
	if err != nil {
		return Result{}, fmt.Errorf("collect extractor %s: %w", x.ItemID, err)
	}
	slog.Info("Extractor collected", "itemID", x.ItemID, "system", deployed.System)
	return Result{Outcome: Done, Response: r, FinishesAt: finishesAt, kind: kindExtractor}, nil
}

func (m *Manager) extractorPayload(ctx context.Context, itemType string) ([]byte, error) {
	info, err := refdata.ExtractorInfo(ctx, m.ref, itemType)
	if err != nil {
		return nil, err
	}
	return info.Payload()
}

func findExtractor(active []ExtractorState, itemID string) (ExtractorState, bool) {
	for _, x := range active {
		if x.ItemID.ID == itemID {
			return x, true
		}
	}
	return ExtractorState{}, false
}

// StartRecipe starts a recipe.
//
// The outcome is AlreadyActive when a recipe of the same type is pending.
// The server would accept it, but the game gets confused when claiming them.
func (m *Manager) StartRecipe(ctx context.Context, itemType string, inv *Inventory) (Result, error) {
	if !m.sess.IsLoggedIn() {
		return Result{}, session.ErrNotLoggedIn
	}
	if inv == nil {
		var err error
		inv, err = m.Inventory(ctx)
		if err != nil {
			return Result{}, err
		}
	}
	if pending, found := findRecipe(inv.PendingRecipes, itemType); found {
		return Result{
			Outcome:    AlreadyActive,
			FinishesAt: pending.CompletionDate.Time(),
			kind:       kindRecipe,
		}, nil
	}
	details, err := m.RecipeDetails(ctx, itemType)
	if err != nil {
		return Result{}, err
	}
	if len(details) == 0 {
		return Result{}, fmt.Errorf("start recipe %s: no recipe details", itemType)
	}
	// Ingredient IDs are assigned by the server, as in the mobile app.
	// This is probably why recipes with weapons as ingredients can not be started.
	body, err := json.Marshal(struct {
		RecipeName string   `json:"RecipeName"`
		IDs        []string `json:"Ids"`
	}{
		RecipeName: itemType,
		IDs:        make([]string, len(details[0].Ingredients)),
	})
	if err != nil {
		return Result{}, err
	}
	r, err := m.sess.Send(ctx, session.Request{
		Path: PathStartRecipe,
		Body: body,
		Auth: session.AuthQuery,
	})
	if err != nil {
		return Result{}, fmt.Errorf("start recipe %s: %w", itemType, err)
	}
	slog.Info("Recipe started", "itemType", itemType)
	return Result{Outcome: Done, Response: r, kind: kindRecipe}, nil
}

// ClaimRecipe claims a completed recipe.
//
// The outcome is NotFound when no recipe of this type is pending
// and NotFinished when it is not yet completed and rush is not set.
func (m *Manager) ClaimRecipe(ctx context.Context, itemType string, rush bool, inv *Inventory) (Result, error) {
	if !m.sess.IsLoggedIn() {
		return Result{}, session.ErrNotLoggedIn
	}
	if inv == nil {
		var err error
		inv, err = m.Inventory(ctx)
		if err != nil {
			return Result{}, err
		}
	}
	// Claiming a recipe which was not started might look suspicious.
	pending, found := findRecipe(inv.PendingRecipes, itemType)
	if !found {
		return Result{Outcome: NotFound, kind: kindRecipe}, nil
	}
	// Completion is reported with microseconds, but the server only gates on seconds.
	completedAt := time.Unix(pending.CompletionDate.Sec, 0)
	if !rush && m.Clock.Now().Before(completedAt) {
		return Result{Outcome: NotFinished, FinishesAt: completedAt, kind: kindRecipe}, nil
	}
	q := url.Values{"recipeName": {itemType}}
	if rush {
		q.Set("rush", "true")
	}
	r, err := m.sess.Send(ctx, session.Request{
		Path:  PathClaimRecipe,
		Query: q,
		Auth:  session.AuthQuery,
	})
	if err != nil {
		return Result{}, fmt.Errorf("claim recipe %s: %w", itemType, err)
	}
	slog.Info("Recipe claimed", "itemType", itemType, "rush", rush)
	return Result{Outcome: Done, Response: r, FinishesAt: completedAt, kind: kindRecipe}, nil
}

func findRecipe(recipes []PendingRecipe, itemType string) (PendingRecipe, bool) {
	for _, r := range recipes {
		if r.ItemType == itemType {
			return r, true
		}
	}
	return PendingRecipe{}, false
}
