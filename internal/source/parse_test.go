package source

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func icsBody(vevents ...string) []byte {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
	}
	lines = append(lines, vevents...)
	lines = append(lines, "END:VCALENDAR")
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

const simpleVEvent = `BEGIN:VEVENT
UID:ev1@alma
SUMMARY:Anatomie Vorlesung
LOCATION:Hörsaal 1
DTSTART:20260504T090000Z
DTEND:20260504T103000Z
END:VEVENT`

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestParseICSSingleEvent(t *testing.T) {
	feed := Feed{ID: "alma", URL: "https://alma.example/feed.ics", Platform: "ALMA"}

	events, err := parseICS(feed, icsBody(crlf(simpleVEvent)))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "ev1@alma", ev.UID)
	assert.Equal(t, "Anatomie Vorlesung", ev.Summary)
	assert.Equal(t, "Hörsaal 1", ev.Location)
	assert.Equal(t, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC), ev.Start.UTC())
	assert.Equal(t, time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC), ev.End.UTC())
	assert.False(t, ev.AllDay)
	assert.Empty(t, ev.RawRRule)
}

func TestParseICSEmptyBody(t *testing.T) {
	_, err := parseICS(Feed{ID: "x"}, nil)
	assert.Error(t, err)
}

// A VEVENT without a UID is skipped, not fatal.
func TestParseICSSkipsEventWithoutUID(t *testing.T) {
	broken := crlf(`BEGIN:VEVENT
SUMMARY:Kaputt
DTSTART:20260504T090000Z
END:VEVENT`)

	events, err := parseICS(Feed{ID: "alma"}, icsBody(broken, crlf(simpleVEvent)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev1@alma", events[0].UID)
}

func TestParseICSAllDay(t *testing.T) {
	allDay := crlf(`BEGIN:VEVENT
UID:holiday@alma
SUMMARY:Feiertag
DTSTART;VALUE=DATE:20260601
END:VEVENT`)

	events, err := parseICS(Feed{ID: "alma"}, icsBody(allDay))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].AllDay)
}

func TestParseICSRRuleAndExDates(t *testing.T) {
	recurring := crlf(`BEGIN:VEVENT
UID:weekly@alma
SUMMARY:Biochemie Seminar
DTSTART:20260504T140000Z
DTEND:20260504T153000Z
RRULE:FREQ=WEEKLY;COUNT=10
EXDATE:20260511T140000Z,20260518T140000Z
END:VEVENT`)

	events, err := parseICS(Feed{ID: "alma"}, icsBody(recurring))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "FREQ=WEEKLY;COUNT=10", ev.RawRRule)
	require.Len(t, ev.ExDates, 2)
	assert.Equal(t, time.Date(2026, 5, 11, 14, 0, 0, 0, time.UTC), ev.ExDates[0].UTC())
}

func TestParseICSRecurrenceOverride(t *testing.T) {
	override := crlf(`BEGIN:VEVENT
UID:weekly@alma
SUMMARY:Biochemie Seminar (verlegt)
DTSTART:20260512T160000Z
DTEND:20260512T173000Z
RECURRENCE-ID:20260511T140000Z
END:VEVENT`)

	events, err := parseICS(Feed{ID: "alma"}, icsBody(override))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.True(t, ev.IsOverride)
	require.NotNil(t, ev.Recurrence)
	assert.Equal(t, time.Date(2026, 5, 11, 14, 0, 0, 0, time.UTC), ev.Recurrence.UTC())
}

func TestParseICSTimeForms(t *testing.T) {
	utc, err := parseICSTime("20260504T090000Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC), utc)

	local, err := parseICSTime("20260504T090000")
	require.NoError(t, err)
	assert.Equal(t, 9, local.Hour())

	day, err := parseICSTime("20260504")
	require.NoError(t, err)
	assert.Equal(t, 4, day.Day())

	_, err = parseICSTime("")
	assert.Error(t, err)
}

func TestGuessSubject(t *testing.T) {
	cases := map[string]string{
		"Anatomie Vorlesung":       "Anatomie",
		"Seminar Biochemie II":     "Biochemie",
		"physiologie praktikum":    "Physiologie",
		"Ersti-Begrüßung":          "Allgemein",
		"SIMED Einführungskurs":    "SIMED",
		"Terminologie der Medizin": "Medizin",
	}
	for title, want := range cases {
		assert.Equal(t, want, GuessSubject(title), "title %q", title)
	}
}

func TestIsMandatory(t *testing.T) {
	assert.True(t, IsMandatory("Anatomie Praktikum"))
	assert.True(t, IsMandatory("Testat Histologie"))
	assert.True(t, IsMandatory("Pflichtseminar"))
	assert.True(t, IsMandatory("Präparierkurs (Dissektion)"))
	assert.False(t, IsMandatory("Anatomie Vorlesung"))
	assert.False(t, IsMandatory(""))
}
