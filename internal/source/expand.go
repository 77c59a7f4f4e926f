package source

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "studiplan/internal/log"
)

const maxOccurrencesPerEvent = 1000

// occurrence is one concrete instance of a feed event after recurrence
// expansion and timezone normalization.
type occurrence struct {
	Feed Feed

	UID      string
	Summary  string
	Location string
	AllDay   bool

	Start time.Time
	End   time.Time
}

// expandConfig bounds and localizes recurrence expansion.
type expandConfig struct {
	Location   *time.Location
	RangeStart time.Time
	RangeEnd   time.Time
}

// expandOccurrences turns parsed events into concrete occurrences
// inside the configured window. It handles single events, RRULE
// recurrence, EXDATE exceptions and RECURRENCE-ID overrides.
func expandOccurrences(events []parsedEvent, cfg expandConfig) ([]occurrence, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: range end is before range start")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	bases := make([]parsedEvent, 0, len(events))
	overridesByUID := make(map[string][]parsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	out := make([]occurrence, 0)
	for _, ev := range bases {
		out = append(out, expandEvent(ev, overridesByUID[ev.UID], cfg)...)
	}
	return out, nil
}

func expandEvent(ev parsedEvent, overrides []parsedEvent, cfg expandConfig) []occurrence {
	// DTEND is optional; a missing end means a zero-duration event
	// (RFC 5545 §3.6.1), same fallback the feed applies on output.
	if ev.End.IsZero() {
		ev.End = ev.Start
	}
	if ev.RawRRule == "" {
		if !rangesOverlap(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
			return nil
		}
		start, end := ev.Start, ev.End
		if o, ok := overrideForStart(overrides, start); ok {
			start, end, ev = o.Start, o.End, o
		}
		return []occurrence{makeOccurrence(ev, start, end, cfg.Location)}
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("expand: failed to parse RRULE", "uid", ev.UID, "err", err)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	rangeStart := cfg.RangeStart.In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())
	occTimes := set.Between(rangeStart, rangeEnd, true)
	if len(occTimes) > maxOccurrencesPerEvent {
		appLog.Warn("expand: occurrence cap hit", "uid", ev.UID, "cap", maxOccurrencesPerEvent)
		occTimes = occTimes[:maxOccurrencesPerEvent]
	}

	out := make([]occurrence, 0, len(occTimes))
	dur := ev.End.Sub(ev.Start)
	for _, occStart := range occTimes {
		var occEnd time.Time
		if ev.AllDay {
			day := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = day
			occEnd = day.Add(24 * time.Hour)
		} else {
			occEnd = occStart.Add(dur)
		}

		src := ev
		if o, ok := overrideForStart(overrides, occStart); ok {
			occStart, occEnd, src = o.Start, o.End, o
		}
		out = append(out, makeOccurrence(src, occStart, occEnd, cfg.Location))
	}
	return out
}

// overrideForStart finds an override whose RECURRENCE-ID matches the
// given instance start exactly.
func overrideForStart(overrides []parsedEvent, start time.Time) (parsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.In(start.Location()).Equal(start) {
			return ov, true
		}
	}
	return parsedEvent{}, false
}

func makeOccurrence(ev parsedEvent, start, end time.Time, loc *time.Location) occurrence {
	if end.IsZero() {
		end = start
	}
	return occurrence{
		Feed:     ev.Feed,
		UID:      ev.UID,
		Summary:  ev.Summary,
		Location: ev.Location,
		AllDay:   ev.AllDay,
		Start:    start.In(loc),
		End:      end.In(loc),
	}
}

func rangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
