// Package calendar projects events, study blocks and exams into
// week-windowed views and an exportable iCal feed.
//
// Two windowing schemes coexist and must not be conflated: timetable
// events use semester-relative weeks (week 0 derived from a configured
// semester start), study and exam blocks use calendar-relative weeks
// (week 0 is always the Monday-to-Sunday span containing now).
package calendar

import (
	"sort"
	"time"

	"studiplan/internal/model"
)

const week = 7 * 24 * time.Hour

// SemesterWeekEvents filters events to one semester-relative week.
// weekOffset shifts in whole weeks from the semester week containing
// now; offset 0 is "the current semester week".
func SemesterWeekEvents(events []model.Event, weekOffset int, semesterStart, now time.Time) []model.Event {
	if len(events) == 0 {
		return []model.Event{}
	}

	weeksSince := floorDiv(now.Sub(semesterStart), week)
	weekStart := midnight(semesterStart.AddDate(0, 0, (weeksSince+weekOffset)*7))
	weekEnd := weekStart.AddDate(0, 0, 7)

	out := make([]model.Event, 0)
	for _, e := range events {
		if e.Date.IsZero() {
			continue
		}
		if !e.Date.Before(weekStart) && e.Date.Before(weekEnd) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// StudyWeekEvents collects the study and exam blocks of visible
// upcoming exams inside one calendar-relative week. weekOffset 0 is
// always the Monday-to-Sunday span containing now, independent of any
// semester anchor.
func StudyWeekEvents(exams []model.Exam, weekOffset int, now time.Time) []model.Block {
	weekStart := mondayOf(now).AddDate(0, 0, weekOffset*7)
	weekEnd := weekStart.AddDate(0, 0, 7)

	inWindow := func(t time.Time) bool {
		return !t.Before(weekStart) && t.Before(weekEnd)
	}

	out := make([]model.Block, 0)
	for _, exam := range exams {
		if !exam.ShowInCalendar || exam.Status != model.ExamUpcoming {
			continue
		}
		for _, b := range exam.LearnBlocks {
			if inWindow(b.Date) {
				out = append(out, b)
			}
		}
		if exam.ExamBlock != nil && inWindow(exam.ExamBlock.Date) {
			out = append(out, *exam.ExamBlock)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// mondayOf returns midnight of the Monday of the week containing t.
func mondayOf(t time.Time) time.Time {
	back := (int(t.Weekday()) + 6) % 7 // Monday = 0 … Sunday = 6
	return midnight(t.AddDate(0, 0, -back))
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// floorDiv divides rounding toward negative infinity, so weeks before
// the semester start land in negative indexes rather than week 0.
func floorDiv(d, unit time.Duration) int {
	q := d / unit
	if d%unit < 0 {
		q--
	}
	return int(q)
}
