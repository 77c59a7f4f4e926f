// Package source contains the upstream adapters that produce canonical
// events: ICS subscription feeds (fetched, parsed and recurrence-expanded)
// and the built-in demo datasets used when nothing is configured.
package source

import (
	"context"

	"studiplan/internal/model"
)

// Adapter is one upstream platform. Adapters must bound their own
// latency and must not panic; the aggregator treats any returned error
// as an empty contribution from that platform.
type Adapter interface {
	// Name identifies the adapter in logs and status output.
	Name() string
	// Configured reports whether the adapter has usable credentials or
	// endpoints. Unconfigured adapters are skipped entirely.
	Configured() bool
	// Fetch returns the adapter's current view of its platform.
	Fetch(ctx context.Context) ([]model.Event, error)
}
