// Package diff classifies the delta between two event snapshots.
package diff

import "studiplan/internal/model"

// Compare classifies every record of two snapshots as added, removed or
// changed. It is a pure function: deterministic for a given input pair,
// no side effects, and Compare(x, x) is always empty.
//
// changed entries share an identity key but differ in title, time or
// location. Events with content-derived ids never reach this branch;
// it applies to adapters that assign ids independently of content,
// such as the ICS adapter's UID-based keys.
func Compare(oldEvents, newEvents []model.Event) model.Diff {
	oldByKey := make(map[string]model.Event, len(oldEvents))
	for _, e := range oldEvents {
		oldByKey[e.Key()] = e
	}
	newByKey := make(map[string]model.Event, len(newEvents))
	for _, e := range newEvents {
		newByKey[e.Key()] = e
	}

	d := model.Diff{
		Added:   []model.Event{},
		Removed: []model.Event{},
		Changed: []model.Change{},
	}

	for _, e := range newEvents {
		before, ok := oldByKey[e.Key()]
		if !ok {
			d.Added = append(d.Added, e)
			continue
		}
		if contentDiffers(before, e) {
			d.Changed = append(d.Changed, model.Change{Before: before, After: e})
		}
	}

	for _, e := range oldEvents {
		if _, ok := newByKey[e.Key()]; !ok {
			d.Removed = append(d.Removed, e)
		}
	}

	return d
}

func contentDiffers(a, b model.Event) bool {
	return a.TimeFrom != b.TimeFrom ||
		a.TimeTo != b.TimeTo ||
		a.Location != b.Location ||
		a.Title != b.Title
}
