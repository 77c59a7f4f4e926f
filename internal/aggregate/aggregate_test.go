package aggregate_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiplan/internal/aggregate"
	"studiplan/internal/model"
	"studiplan/internal/source"
)

type fakeAdapter struct {
	name       string
	configured bool
	events     []model.Event
	err        error
}

func (a *fakeAdapter) Name() string     { return a.name }
func (a *fakeAdapter) Configured() bool { return a.configured }

func (a *fakeAdapter) Fetch(_ context.Context) ([]model.Event, error) {
	return a.events, a.err
}

var _ source.Adapter = (*fakeAdapter)(nil)

func ev(id, title string) model.Event {
	return model.Event{ID: id, Title: title}
}

func demo() []model.Event {
	return []model.Event{ev("demo-1", "Demo")}
}

func TestAggregateMergesInRegistrationOrder(t *testing.T) {
	agg := aggregate.New([]source.Adapter{
		&fakeAdapter{name: "alma", configured: true, events: []model.Event{ev("a", "A"), ev("b", "B")}},
		&fakeAdapter{name: "moodle", configured: true, events: []model.Event{ev("c", "C")}},
	}, demo)

	got := agg.Aggregate(context.Background())
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestAggregateDedupesFirstSeenWins(t *testing.T) {
	agg := aggregate.New([]source.Adapter{
		&fakeAdapter{name: "alma", configured: true, events: []model.Event{ev("dup", "From ALMA")}},
		&fakeAdapter{name: "moodle", configured: true, events: []model.Event{ev("dup", "From Moodle"), ev("x", "X")}},
	}, demo)

	got := agg.Aggregate(context.Background())
	require.Len(t, got, 2)
	assert.Equal(t, "From ALMA", got[0].Title)
}

// One failing source must not poison the others.
func TestAggregateTolerantJoin(t *testing.T) {
	agg := aggregate.New([]source.Adapter{
		&fakeAdapter{name: "broken", configured: true, err: errors.New("connection refused")},
		&fakeAdapter{name: "alma", configured: true, events: []model.Event{ev("a", "A")}},
	}, demo)

	got := agg.Aggregate(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestAggregateSkipsUnconfiguredAdapters(t *testing.T) {
	agg := aggregate.New([]source.Adapter{
		&fakeAdapter{name: "off", configured: false, events: []model.Event{ev("off", "Off")}},
		&fakeAdapter{name: "on", configured: true, events: []model.Event{ev("on", "On")}},
	}, demo)

	got := agg.Aggregate(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "on", got[0].ID)
}

func TestAggregateDemoFallback(t *testing.T) {
	t.Run("no adapters configured", func(t *testing.T) {
		agg := aggregate.New(nil, demo)
		got := agg.Aggregate(context.Background())
		require.Len(t, got, 1)
		assert.Equal(t, "demo-1", got[0].ID)
	})

	t.Run("all sources failed or empty", func(t *testing.T) {
		agg := aggregate.New([]source.Adapter{
			&fakeAdapter{name: "broken", configured: true, err: errors.New("boom")},
			&fakeAdapter{name: "empty", configured: true},
		}, demo)
		got := agg.Aggregate(context.Background())
		require.Len(t, got, 1)
		assert.Equal(t, "demo-1", got[0].ID)
	})

	t.Run("nil fallback yields empty list", func(t *testing.T) {
		agg := aggregate.New(nil, nil)
		got := agg.Aggregate(context.Background())
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestAggregateOnSourceObserver(t *testing.T) {
	agg := aggregate.New([]source.Adapter{
		&fakeAdapter{name: "alma", configured: true, events: []model.Event{ev("a", "A")}},
		&fakeAdapter{name: "broken", configured: true, err: errors.New("boom")},
	}, demo)

	var completions atomic.Int32
	agg.OnSource(func(name string, count int, err error) {
		completions.Add(1)
		if name == "alma" {
			assert.Equal(t, 1, count)
			assert.NoError(t, err)
		} else {
			assert.Error(t, err)
		}
	})

	agg.Aggregate(context.Background())
	assert.Equal(t, int32(2), completions.Load())
}
