package source

import (
	"context"
	"sort"
	"strings"
	"time"

	"studiplan/internal/model"
)

// ICSAdapter turns a single ICS subscription feed into canonical
// timetable events: fetch (with HTTP cache), parse, recurrence-expand
// within the horizon, then classify.
type ICSAdapter struct {
	feed    Feed
	fetcher *fetcher
	loc     *time.Location

	// horizonDays bounds expansion forward from "now"; one day of
	// backfill is always included so ongoing events survive a refresh.
	horizonDays int

	// now is swappable for tests.
	now func() time.Time
}

// NewICSAdapter creates an adapter for one feed. cacheDir hosts the
// shared ICS HTTP cache.
func NewICSAdapter(feed Feed, cacheDir string, loc *time.Location, horizonDays int) *ICSAdapter {
	if horizonDays <= 0 {
		horizonDays = 120
	}
	if loc == nil {
		loc = time.Local
	}
	return &ICSAdapter{
		feed:        feed,
		fetcher:     newFetcher(cacheDir),
		loc:         loc,
		horizonDays: horizonDays,
		now:         time.Now,
	}
}

func (a *ICSAdapter) Name() string { return a.feed.ID }

func (a *ICSAdapter) Configured() bool { return a.feed.URL != "" }

func (a *ICSAdapter) Fetch(ctx context.Context) ([]model.Event, error) {
	res, err := a.fetcher.FetchOne(ctx, a.feed)
	if err != nil {
		return nil, err
	}

	parsed, err := parseICS(a.feed, res.Body)
	if err != nil {
		return nil, err
	}

	now := a.now().In(a.loc)
	occs, err := expandOccurrences(parsed, expandConfig{
		Location:   a.loc,
		RangeStart: now.AddDate(0, 0, -1),
		RangeEnd:   now.AddDate(0, 0, a.horizonDays),
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(occs, func(i, j int) bool { return occs[i].Start.Before(occs[j].Start) })

	events := make([]model.Event, 0, len(occs))
	for _, occ := range occs {
		events = append(events, a.toEvent(occ))
	}
	return events, nil
}

func (a *ICSAdapter) toEvent(occ occurrence) model.Event {
	var timeFrom, timeTo string
	if !occ.AllDay {
		timeFrom = occ.Start.Format("15:04")
		timeTo = occ.End.Format("15:04")
	}
	// ICS feeds carry a source-assigned UID, so the identity does not
	// have to be derived from content. Combined with the instance start
	// it stays stable across title or location edits, which the diff
	// then reports as changed instead of remove-plus-add.
	id := occ.UID + "/" + occ.Start.Format("2006-01-02T15:04")

	return model.Event{
		ID:        id,
		Title:     occ.Summary,
		Date:      occ.Start,
		TimeFrom:  timeFrom,
		TimeTo:    timeTo,
		Location:  occ.Location,
		Subject:   GuessSubject(occ.Summary),
		Mandatory: IsMandatory(occ.Summary),
		Platform:  a.feed.Platform,
		Weekday:   int(occ.Start.Weekday()),
	}
}

var knownSubjects = []string{
	"Anatomie", "Physiologie", "Biochemie", "Histologie", "Biologie",
	"Physik", "Chemie", "SIMED", "Klinik", "Medizin",
}

// GuessSubject classifies an event title into a known subject, falling
// back to "Allgemein".
func GuessSubject(title string) string {
	lower := strings.ToLower(title)
	for _, s := range knownSubjects {
		if strings.Contains(lower, strings.ToLower(s)) {
			return s
		}
	}
	return "Allgemein"
}

var mandatoryKeywords = []string{
	"pflicht", "praktikum", "prak", "testat", "schein", "klausur", "dissek", "sezier",
}

// IsMandatory reports whether an event title indicates compulsory
// attendance. Mandatory events cap study-block density on their day.
func IsMandatory(title string) bool {
	lower := strings.ToLower(title)
	for _, k := range mandatoryKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
