// Package aggregate fans out over all source adapters of one refresh
// family and merges their results into a single canonical event list.
package aggregate

import (
	"context"
	"sync"

	appLog "studiplan/internal/log"
	"studiplan/internal/model"
	"studiplan/internal/source"
)

// Aggregator runs source adapters concurrently with a tolerant join:
// an individual adapter failure contributes an empty list and never
// aborts the others.
type Aggregator struct {
	adapters []source.Adapter

	// fallback supplies the fixed demo dataset when no adapter is
	// configured or every configured adapter came back empty, so the
	// calendar surface is never blank.
	fallback func() []model.Event

	// onSource, if set, observes per-adapter completion for coarse
	// progress reporting.
	onSource func(name string, count int, err error)
}

// New creates an Aggregator over the given adapters.
func New(adapters []source.Adapter, fallback func() []model.Event) *Aggregator {
	return &Aggregator{adapters: adapters, fallback: fallback}
}

// OnSource registers a per-adapter completion observer.
func (a *Aggregator) OnSource(fn func(name string, count int, err error)) {
	a.onSource = fn
}

// Aggregate invokes every configured adapter concurrently, deduplicates
// by identity key (first seen wins, in adapter registration order) and
// returns the canonical list. It never fails: adapter errors are logged
// and absorbed.
func (a *Aggregator) Aggregate(ctx context.Context) []model.Event {
	configured := make([]source.Adapter, 0, len(a.adapters))
	for _, ad := range a.adapters {
		if ad.Configured() {
			configured = append(configured, ad)
		}
	}

	if len(configured) == 0 {
		appLog.Info("aggregate: no sources configured, using demo dataset")
		return a.demo()
	}

	// Results are slotted by adapter index so the merge order is
	// deterministic regardless of completion order.
	results := make([][]model.Event, len(configured))
	var wg sync.WaitGroup
	for i, ad := range configured {
		wg.Add(1)
		go func(i int, ad source.Adapter) {
			defer wg.Done()
			events, err := ad.Fetch(ctx)
			if err != nil {
				appLog.Error("aggregate: source failed", err, "source", ad.Name())
				events = nil
			}
			results[i] = events
			if a.onSource != nil {
				a.onSource(ad.Name(), len(events), err)
			}
		}(i, ad)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	merged := make([]model.Event, 0)
	for _, events := range results {
		for _, e := range events {
			key := e.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, e)
		}
	}

	if len(merged) == 0 {
		appLog.Warn("aggregate: all sources failed or empty, using demo dataset")
		return a.demo()
	}

	appLog.Info("aggregate: merged", "sources", len(configured), "events", len(merged))
	return merged
}

func (a *Aggregator) demo() []model.Event {
	if a.fallback == nil {
		return []model.Event{}
	}
	return a.fallback()
}
