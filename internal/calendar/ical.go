package calendar

import (
	"regexp"
	"strings"
	"time"

	"studiplan/internal/model"
)

// The feed is assembled line by line rather than through an iCal
// builder: subscribers depend on the exact escaping, UID construction
// and DTEND fallback below, and those are part of the feed contract.

const feedDomain = "studiplan.app"

// feedEntry is one VEVENT to be emitted.
type feedEntry struct {
	id          string
	date        time.Time
	timeFrom    string
	timeTo      string
	title       string
	location    string
	lecturer    string
	mandatory   bool
	description string
}

// Feed renders timetable events plus the blocks of all upcoming exams
// into a single iCal document. Timestamps are UTC-normalized; an entry
// without an end time gets DTEND equal to DTSTART.
func Feed(events []model.Event, exams []model.Exam, now time.Time) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//studiplan//Uni Tübingen//DE",
		"X-WR-CALNAME:studiplan – Stundenplan",
		"X-WR-TIMEZONE:Europe/Berlin",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	}

	stamp := feedTime(now, "")

	for _, e := range events {
		if e.Date.IsZero() {
			continue
		}
		lines = appendEntry(lines, stamp, feedEntry{
			id:        e.ID,
			date:      e.Date,
			timeFrom:  e.TimeFrom,
			timeTo:    e.TimeTo,
			title:     e.Title,
			location:  e.Location,
			lecturer:  e.Lecturer,
			mandatory: e.Mandatory,
		})
	}

	for _, exam := range exams {
		if exam.Status != model.ExamUpcoming {
			continue
		}
		lines = appendEntry(lines, stamp, feedEntry{
			id:          exam.ID,
			date:        exam.ExamDate,
			timeFrom:    "08:00",
			timeTo:      "12:00",
			title:       "🎯 Prüfung: " + exam.Subject,
			description: "Themen: " + strings.Join(exam.SelectedTopics, ", "),
			mandatory:   true,
		})
		for _, b := range exam.LearnBlocks {
			lines = appendEntry(lines, stamp, feedEntry{
				id:          b.ID,
				date:        b.Date,
				timeFrom:    b.TimeFrom,
				timeTo:      b.TimeTo,
				title:       b.Title,
				description: strings.Join(b.Topics, ", "),
			})
		}
	}

	lines = append(lines, "END:VCALENDAR")
	return strings.Join(lines, "\r\n")
}

func appendEntry(lines []string, stamp string, e feedEntry) []string {
	dtStart := feedTime(e.date, e.timeFrom)
	dtEnd := dtStart
	if e.timeTo != "" {
		dtEnd = feedTime(e.date, e.timeTo)
	}

	descParts := make([]string, 0, 4)
	if e.location != "" {
		descParts = append(descParts, "Ort: "+e.location)
	}
	if e.lecturer != "" {
		descParts = append(descParts, "Dozent: "+e.lecturer)
	}
	if e.mandatory {
		descParts = append(descParts, "Pflichtveranstaltung")
	}
	if e.description != "" {
		descParts = append(descParts, e.description)
	}

	lines = append(lines,
		"BEGIN:VEVENT",
		"UID:"+feedUID(e.id, e.title, e.date),
		"DTSTAMP:"+stamp,
		"DTSTART:"+dtStart,
		"DTEND:"+dtEnd,
		"SUMMARY:"+EscapeText(e.title),
	)
	if e.location != "" {
		lines = append(lines, "LOCATION:"+EscapeText(e.location))
	}
	if len(descParts) > 0 {
		lines = append(lines, "DESCRIPTION:"+EscapeText(strings.Join(descParts, " | ")))
	}
	if e.mandatory {
		lines = append(lines, "CATEGORIES:Pflicht")
	}
	return append(lines, "END:VEVENT")
}

// EscapeText escapes a value for embedding in an iCal property:
// backslash, semicolon, comma and newline, in that order.
func EscapeText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, ";", `\;`)
	s = strings.ReplaceAll(s, ",", `\,`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// feedUID builds the stable export identifier for a record.
func feedUID(id, title string, date time.Time) string {
	base := id
	if base == "" {
		base = title
	}
	base += date.Format(time.RFC3339)
	return nonAlnum.ReplaceAllString(base, "") + "@" + feedDomain
}

// feedTime renders a date plus optional HH:MM wall clock as a UTC iCal
// timestamp with zeroed seconds.
func feedTime(date time.Time, clock string) string {
	d := date
	if h, m, ok := splitClock(clock); ok {
		d = time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, d.Location())
	}
	return d.UTC().Format("20060102T1504") + "00Z"
}

func splitClock(clock string) (h, m int, ok bool) {
	if len(clock) != 5 || clock[2] != ':' {
		return 0, 0, false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if clock[i] < '0' || clock[i] > '9' {
			return 0, 0, false
		}
	}
	h = int(clock[0]-'0')*10 + int(clock[1]-'0')
	m = int(clock[3]-'0')*10 + int(clock[4]-'0')
	return h, m, true
}
