// Package refresh owns the run/idle state machine of one refresh
// family and orchestrates aggregation, diffing, persistence and the
// notification hook.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studiplan/internal/aggregate"
	"studiplan/internal/diff"
	appLog "studiplan/internal/log"
	"studiplan/internal/model"
	"studiplan/internal/snapshot"
)

// defaultQuiescence is how long a done state lingers before the
// coordinator resets itself to idle.
const defaultQuiescence = 30 * time.Second

// NotifyHook is invoked at most once per refresh that both changed and
// requested notification. A false or failed result is logged and does
// not roll back the already-persisted snapshot.
type NotifyHook func(ctx context.Context, d model.Diff) (bool, error)

// Result is the outcome of one completed refresh run.
type Result struct {
	Events []model.Event `json:"events"`
	Diff   model.Diff    `json:"diff"`
}

// Coordinator serializes refreshes of one family. The mutex guards the
// state machine; holding it across the check-and-transition to running
// is what makes the single-flight guarantee sound under concurrent
// triggers.
type Coordinator struct {
	family string
	store  *snapshot.Store
	agg    *aggregate.Aggregator
	notify NotifyHook

	mu         sync.Mutex
	state      model.RefreshState
	quiescence time.Duration
	now        func() time.Time
}

// New creates a coordinator for one family. notify may be nil.
func New(family string, store *snapshot.Store, agg *aggregate.Aggregator, notify NotifyHook) *Coordinator {
	c := &Coordinator{
		family:     family,
		store:      store,
		agg:        agg,
		notify:     notify,
		state:      model.RefreshState{Status: model.StatusIdle, Message: "Bereit"},
		quiescence: defaultQuiescence,
		now:        time.Now,
	}
	agg.OnSource(func(name string, count int, err error) {
		if err != nil {
			return
		}
		c.advance(fmt.Sprintf("%s geladen", name))
	})
	return c
}

// Family returns the refresh family this coordinator owns.
func (c *Coordinator) Family() string { return c.family }

// State returns a copy of the current refresh state for polling.
func (c *Coordinator) State() model.RefreshState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Refresh executes one refresh run: read the prior snapshot, aggregate
// all sources, diff against that same prior snapshot, persist the new
// snapshot unconditionally, and notify if the diff is non-empty and
// notification was requested.
//
// If a run is already in flight the call returns (nil, nil) immediately
// and without side effects; callers may retry later.
func (c *Coordinator) Refresh(ctx context.Context, notifyOnChange bool) (*Result, error) {
	c.mu.Lock()
	if c.state.Status == model.StatusRunning {
		c.mu.Unlock()
		appLog.Debug("refresh already running, trigger ignored", "family", c.family)
		return nil, nil
	}
	c.state = model.RefreshState{
		Status:      model.StatusRunning,
		Message:     "Aktualisierung gestartet...",
		Progress:    10,
		LastUpdated: c.state.LastUpdated,
	}
	c.mu.Unlock()

	oldEvents, err := c.store.LoadEvents(c.family)
	if err != nil {
		return nil, c.fail(err)
	}

	c.setProgress(40, "Quellen werden abgefragt...")
	newEvents := c.agg.Aggregate(ctx)

	c.setProgress(75, "Verarbeitung...")
	d := diff.Compare(oldEvents, newEvents)

	// The snapshot is replaced even when the diff is empty, so the
	// stored last-updated stamp always reflects the latest run. The
	// diff above was computed against exactly the value being replaced.
	c.setProgress(95, "Speichere Ergebnisse...")
	if err := c.store.SaveEvents(c.family, newEvents); err != nil {
		return nil, c.fail(err)
	}

	if !d.Empty() {
		appLog.Info("snapshot changed",
			"family", c.family,
			"added", len(d.Added),
			"changed", len(d.Changed),
			"removed", len(d.Removed),
		)
		if notifyOnChange && c.notify != nil {
			sent, nerr := c.notify(ctx, d)
			if nerr != nil {
				appLog.Error("notification hook failed", nerr, "family", c.family)
			} else if !sent {
				appLog.Debug("notification skipped by hook", "family", c.family)
			}
		}
	}

	now := c.now()
	c.mu.Lock()
	c.state = model.RefreshState{
		Status:      model.StatusDone,
		Message:     fmt.Sprintf("%d Einträge aktualisiert", len(newEvents)),
		Progress:    100,
		LastUpdated: now,
		Diff:        &d,
	}
	c.mu.Unlock()

	// Auto-reset to idle after the quiescence window, unless another
	// run has started or failed in the meantime.
	time.AfterFunc(c.quiescence, func() {
		c.mu.Lock()
		if c.state.Status == model.StatusDone {
			c.state.Status = model.StatusIdle
		}
		c.mu.Unlock()
	})

	return &Result{Events: newEvents, Diff: d}, nil
}

// fail transitions the state machine to error. The error state is
// sticky until the next externally triggered run.
func (c *Coordinator) fail(err error) error {
	appLog.Error("refresh failed", err, "family", c.family)
	c.mu.Lock()
	c.state = model.RefreshState{
		Status:      model.StatusError,
		Message:     err.Error(),
		LastUpdated: c.state.LastUpdated,
	}
	c.mu.Unlock()
	return err
}

func (c *Coordinator) setProgress(p int, msg string) {
	c.mu.Lock()
	if c.state.Status == model.StatusRunning {
		c.state.Progress = p
		c.state.Message = msg
	}
	c.mu.Unlock()
}

// advance nudges progress forward during the fetch stage as individual
// sources complete.
func (c *Coordinator) advance(msg string) {
	c.mu.Lock()
	if c.state.Status == model.StatusRunning && c.state.Progress < 70 {
		c.state.Progress += 10
		c.state.Message = msg
	}
	c.mu.Unlock()
}
