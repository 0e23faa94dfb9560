package projection

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"courier/internal/eventstore"
)

// GroupByAggregate splits a type stream into per-aggregate groups, each
// sorted by version, in order of first appearance.
func GroupByAggregate(events []eventstore.Event) [][]eventstore.Event {
	index := make(map[string]int)
	var groups [][]eventstore.Event
	for _, evt := range events {
		i, ok := index[evt.AggregateID]
		if !ok {
			i = len(groups)
			index[evt.AggregateID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], evt)
	}
	for _, group := range groups {
		slices.SortStableFunc(group, func(a, b eventstore.Event) int {
			return cmp.Compare(a.Version, b.Version)
		})
	}
	return groups
}

// ForEachGroup calls fn for every group with at most limit calls in flight.
// A failing group is counted and its error collected; the others still run.
// Cancelling ctx stops new groups from starting and adds ctx.Err() to the
// returned error.
func ForEachGroup(ctx context.Context, groups [][]eventstore.Event, limit int, fn func(ctx context.Context, group []eventstore.Event) error) (Result, error) {
	var (
		mu     sync.Mutex
		result Result
		errs   []error
	)

	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, group := range groups {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := fn(ctx, group)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				errs = append(errs, err)
				return nil
			}
			result.Projected++
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return result, errors.Join(errs...)
}
