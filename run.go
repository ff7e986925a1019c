package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/ErikKalkoken/go-set"
	"github.com/dustin/go-humanize"

	"github.com/cephalon-sofis/wfbuddy/internal/clock"
	"github.com/cephalon-sofis/wfbuddy/internal/lifecycle"
	"github.com/cephalon-sofis/wfbuddy/internal/refdata"
)

// routine collects finished extractors and redeploys extractors to the configured planets.
// It can also start and claim a recipe.
type routine struct {
	clock     clock.Clock
	lm        *lifecycle.Manager
	out       io.Writer
	ref       refdata.Lookup
	minHealth float64
	planets   []refdata.System

	startRecipe string
	claimRecipe string
	rush        bool
}

// resolvePlanets returns the systems for the configured planet names.
func resolvePlanets(ctx context.Context, ref refdata.Lookup, names []string) ([]refdata.System, error) {
	systems, err := ref.RegionsBySystem(ctx)
	if err != nil {
		return nil, err
	}
	var planets []refdata.System
	var seen set.Set[int]
	for _, n := range names {
		s, ok := refdata.FindSystem(systems, n)
		if !ok {
			return nil, fmt.Errorf("unknown planet: %q", n)
		}
		if seen.Contains(s.Index) {
			continue
		}
		seen.Add(s.Index)
		planets = append(planets, s)
	}
	return planets, nil
}

func (r *routine) run(ctx context.Context) error {
	active, err := r.collectExtractors(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Active planets: %d\n", active.Size())
	if active.Size() < len(r.planets) {
		if err := r.deployExtractors(ctx, active); err != nil {
			return err
		}
	}
	if r.claimRecipe != "" {
		if err := r.claim(ctx); err != nil {
			return err
		}
	}
	if r.startRecipe != "" {
		if err := r.start(ctx); err != nil {
			return err
		}
	}
	return r.printActiveExtractors(ctx)
}

// collectExtractors collects all finished extractors
// and returns the system indexes of the extractors still running.
func (r *routine) collectExtractors(ctx context.Context) (set.Set[int], error) {
	var running set.Set[int]
	active, err := r.lm.ActiveExtractors(ctx)
	if err != nil {
		return running, err
	}
	for _, x := range active {
		res, err := r.lm.CollectExtractor(ctx, x.Extractor(), false, active)
		if err != nil {
			return running, err
		}
		switch res.Outcome {
		case lifecycle.Done:
			fmt.Fprintf(r.out, "Collected extractor from %s\n", r.systemName(x.System))
		case lifecycle.NotFinished:
			running.Add(x.System)
			fmt.Fprintf(r.out, "Extractor on %s finishes %s\n", r.systemName(x.System), r.relTime(res))
		default:
			slog.Warn("Unexpected outcome when collecting extractor", "itemID", x.ItemID.ID, "outcome", res.Outcome)
		}
	}
	return running, nil
}

// deployExtractors deploys extractors to all configured planets without a running extractor.
// Extractors with the lowest health are deployed first, but only when they are still healthy enough.
func (r *routine) deployExtractors(ctx context.Context, running set.Set[int]) error {
	inv, err := r.lm.Inventory(ctx)
	if err != nil {
		return err
	}
	active, err := r.lm.ActiveExtractors(ctx)
	if err != nil {
		return err
	}
	var deployed set.Set[string]
	for _, x := range active {
		deployed.Add(x.ItemID.ID)
	}
	drones := slices.Clone(inv.Drones)
	slices.SortStableFunc(drones, func(a, b lifecycle.Drone) int {
		return cmp.Compare(a.CurrentHP, b.CurrentHP)
	})
	var healthy []lifecycle.Drone
	for _, d := range drones {
		if deployed.Contains(d.ItemID.ID) {
			continue
		}
		info, err := refdata.ExtractorInfo(ctx, r.ref, d.ItemType)
		if err != nil {
			slog.Warn("Skipping extractor with unknown type", "itemID", d.ItemID.ID, "itemType", d.ItemType, "error", err)
			continue
		}
		if info.Durability <= 0 || d.CurrentHP/info.Durability <= r.minHealth {
			continue
		}
		healthy = append(healthy, d)
	}
	var free []refdata.System
	for _, p := range r.planets {
		if !running.Contains(p.Index) {
			free = append(free, p)
		}
	}
	for i, p := range free {
		if i >= len(healthy) {
			fmt.Fprintf(r.out, "No healthy extractor left for %s\n", p.Name)
			continue
		}
		res, err := r.lm.DeployExtractor(ctx, healthy[i].Extractor(), p.Index, active)
		if err != nil {
			return err
		}
		if res.Outcome != lifecycle.Done {
			slog.Warn("Extractor not deployed", "itemID", healthy[i].ItemID.ID, "outcome", res.Outcome)
			continue
		}
		fmt.Fprintf(r.out, "Deployed extractor to %s\n", p.Name)
	}
	return nil
}

func (r *routine) claim(ctx context.Context) error {
	res, err := r.lm.ClaimRecipe(ctx, r.claimRecipe, r.rush, nil)
	if err != nil {
		return err
	}
	switch res.Outcome {
	case lifecycle.Done:
		fmt.Fprintf(r.out, "Claimed recipe %s\n", r.claimRecipe)
	case lifecycle.NotFinished:
		fmt.Fprintf(r.out, "Recipe %s finishes %s\n", r.claimRecipe, r.relTime(res))
	default:
		fmt.Fprintf(r.out, "Recipe %s: %s\n", r.claimRecipe, res.Err())
	}
	return nil
}

func (r *routine) start(ctx context.Context) error {
	res, err := r.lm.StartRecipe(ctx, r.startRecipe, nil)
	if err != nil {
		return err
	}
	if res.Outcome == lifecycle.Done {
		fmt.Fprintf(r.out, "Started recipe %s\n", r.startRecipe)
		return nil
	}
	fmt.Fprintf(r.out, "Recipe %s: %s\n", r.startRecipe, res.Err())
	return nil
}

func (r *routine) printActiveExtractors(ctx context.Context) error {
	active, err := r.lm.ActiveExtractors(ctx)
	if err != nil {
		return err
	}
	slices.SortFunc(active, func(a, b lifecycle.ExtractorState) int {
		return cmp.Compare(a.System, b.System)
	})
	fmt.Fprintln(r.out, "Active extractors:")
	for _, x := range active {
		fmt.Fprintf(r.out, "  %s: %s deployed %s\n",
			r.systemName(x.System),
			x.ItemType,
			humanize.RelTime(x.DeployTime.Time(), r.clock.Now(), "ago", "from now"),
		)
	}
	return nil
}

func (r *routine) relTime(res lifecycle.Result) string {
	return humanize.RelTime(res.FinishesAt, r.clock.Now(), "ago", "from now")
}

func (r *routine) systemName(index int) string {
	systems, err := r.ref.RegionsBySystem(context.Background())
	if err != nil {
		return fmt.Sprintf("system %d", index)
	}
	for _, s := range systems {
		if s.Index == index {
			return s.Name
		}
	}
	return fmt.Sprintf("system %d", index)
}
