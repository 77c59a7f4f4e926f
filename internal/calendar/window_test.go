package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiplan/internal/calendar"
	"studiplan/internal/model"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func TestSemesterWeekEventsCurrentWeek(t *testing.T) {
	loc := berlin(t)
	semStart := time.Date(2026, 4, 20, 0, 0, 0, 0, loc) // a Monday
	now := time.Date(2026, 5, 6, 12, 0, 0, 0, loc)      // week 2 (Wednesday)

	events := []model.Event{
		{ID: "w2", Title: "Anatomie", Date: time.Date(2026, 5, 4, 9, 0, 0, 0, loc)},
		{ID: "w2-late", Title: "Chemie", Date: time.Date(2026, 5, 10, 18, 0, 0, 0, loc)},
		{ID: "w1", Title: "Biochemie", Date: time.Date(2026, 4, 28, 9, 0, 0, 0, loc)},
		{ID: "w3", Title: "Physiologie", Date: time.Date(2026, 5, 11, 9, 0, 0, 0, loc)},
	}

	got := calendar.SemesterWeekEvents(events, 0, semStart, now)
	require.Len(t, got, 2)
	assert.Equal(t, "w2", got[0].ID)
	assert.Equal(t, "w2-late", got[1].ID)
}

func TestSemesterWeekEventsOffsets(t *testing.T) {
	loc := berlin(t)
	semStart := time.Date(2026, 4, 20, 0, 0, 0, 0, loc)
	now := time.Date(2026, 5, 6, 12, 0, 0, 0, loc)

	events := []model.Event{
		{ID: "w1", Date: time.Date(2026, 4, 28, 9, 0, 0, 0, loc)},
		{ID: "w3", Date: time.Date(2026, 5, 11, 9, 0, 0, 0, loc)},
	}

	prev := calendar.SemesterWeekEvents(events, -1, semStart, now)
	require.Len(t, prev, 1)
	assert.Equal(t, "w1", prev[0].ID)

	next := calendar.SemesterWeekEvents(events, 1, semStart, now)
	require.Len(t, next, 1)
	assert.Equal(t, "w3", next[0].ID)
}

// A now before the semester start lands in a negative week index, not
// in week 0.
func TestSemesterWeekEventsBeforeSemesterStart(t *testing.T) {
	loc := berlin(t)
	semStart := time.Date(2026, 4, 20, 0, 0, 0, 0, loc)
	now := time.Date(2026, 4, 15, 12, 0, 0, 0, loc) // 5 days before

	events := []model.Event{
		{ID: "pre", Date: time.Date(2026, 4, 15, 9, 0, 0, 0, loc)},
		{ID: "week0", Date: time.Date(2026, 4, 21, 9, 0, 0, 0, loc)},
	}

	got := calendar.SemesterWeekEvents(events, 0, semStart, now)
	require.Len(t, got, 1)
	assert.Equal(t, "pre", got[0].ID)

	// One week forward from there is semester week 0.
	got = calendar.SemesterWeekEvents(events, 1, semStart, now)
	require.Len(t, got, 1)
	assert.Equal(t, "week0", got[0].ID)
}

func TestSemesterWeekEventsSkipsZeroDates(t *testing.T) {
	loc := berlin(t)
	semStart := time.Date(2026, 4, 20, 0, 0, 0, 0, loc)
	now := semStart.Add(12 * time.Hour)

	events := []model.Event{{ID: "broken"}}
	got := calendar.SemesterWeekEvents(events, 0, semStart, now)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestStudyWeekEventsMondayAnchor(t *testing.T) {
	loc := berlin(t)
	// Sunday: the containing week still starts the previous Monday.
	now := time.Date(2026, 5, 31, 20, 0, 0, 0, loc)

	exam := model.Exam{
		ID:             "e1",
		Subject:        "Biochemie",
		Status:         model.ExamUpcoming,
		ShowInCalendar: true,
		LearnBlocks: []model.Block{
			{ID: "mon", Date: time.Date(2026, 5, 25, 9, 0, 0, 0, loc), Type: model.BlockLearn},
			{ID: "sun", Date: time.Date(2026, 5, 31, 9, 0, 0, 0, loc), Type: model.BlockLearn},
			{ID: "next-mon", Date: time.Date(2026, 6, 1, 9, 0, 0, 0, loc), Type: model.BlockLearn},
		},
		ExamBlock: &model.Block{ID: "exam", Date: time.Date(2026, 6, 1, 8, 0, 0, 0, loc), Type: model.BlockExam},
	}

	got := calendar.StudyWeekEvents([]model.Exam{exam}, 0, now)
	require.Len(t, got, 2)
	assert.Equal(t, "mon", got[0].ID)
	assert.Equal(t, "sun", got[1].ID)

	next := calendar.StudyWeekEvents([]model.Exam{exam}, 1, now)
	require.Len(t, next, 2)
	assert.Equal(t, "exam", next[0].ID)
	assert.Equal(t, "next-mon", next[1].ID)
}

func TestStudyWeekEventsVisibilityFilter(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2026, 5, 27, 12, 0, 0, 0, loc)
	block := model.Block{ID: "b", Date: time.Date(2026, 5, 27, 9, 0, 0, 0, loc)}

	base := model.Exam{
		ID:             "e1",
		Status:         model.ExamUpcoming,
		ShowInCalendar: true,
		LearnBlocks:    []model.Block{block},
	}

	hidden := base
	hidden.ShowInCalendar = false
	done := base
	done.Status = model.ExamDone
	cancelled := base
	cancelled.Status = model.ExamCancelled

	assert.Len(t, calendar.StudyWeekEvents([]model.Exam{base}, 0, now), 1)
	assert.Empty(t, calendar.StudyWeekEvents([]model.Exam{hidden}, 0, now))
	assert.Empty(t, calendar.StudyWeekEvents([]model.Exam{done}, 0, now))
	assert.Empty(t, calendar.StudyWeekEvents([]model.Exam{cancelled}, 0, now))
}

func TestStudyWeekEventsSortedAcrossExams(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2026, 5, 27, 12, 0, 0, 0, loc)

	mk := func(id string, day, hour int) model.Exam {
		return model.Exam{
			ID:             id,
			Status:         model.ExamUpcoming,
			ShowInCalendar: true,
			LearnBlocks: []model.Block{
				{ID: id + "-b", Date: time.Date(2026, 5, day, hour, 0, 0, 0, loc)},
			},
		}
	}

	got := calendar.StudyWeekEvents([]model.Exam{mk("late", 29, 9), mk("early", 26, 14)}, 0, now)
	require.Len(t, got, 2)
	assert.Equal(t, "early-b", got[0].ID)
	assert.Equal(t, "late-b", got[1].ID)
}
