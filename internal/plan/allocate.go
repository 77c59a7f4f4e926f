// Package plan turns exam declarations into study plans and manages
// the exam lifecycle.
package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"studiplan/internal/model"
)

// Planning rules: 45 minutes of study per topic, three fixed 90-minute
// slots per day, at most one slot on days carrying a mandatory event,
// lead time of one day per two topics clamped to [3, 30] days, and no
// study blocks on the exam day itself.
const (
	minutesPerTopic = 45
	slotDurationMin = 90
	minLearnDays    = 3
	maxLearnDays    = 30
)

type daySlot struct {
	hour, minute int
	label        string
}

var dailySlots = []daySlot{
	{9, 0, "09:00"},
	{14, 0, "14:00"},
	{18, 0, "18:00"},
}

// Plan is the allocator output for one exam. It is computed once at
// exam creation and owned by that exam afterwards.
type Plan struct {
	Blocks          []model.Block
	HoursNeeded     int
	LearnDaysNeeded int
	StartDate       time.Time
}

// Allocate distributes an exam's selected topics over study blocks in
// the days leading up to the exam. currentEvents is consulted only for
// days carrying a mandatory event, which are capped at one slot.
//
// Guarantees: every topic lands in exactly one block's topic list
// (overflow is appended to the last block rather than dropped), and no
// block is scheduled on or after the exam day. A topic count of zero
// yields zero blocks and zero hours.
func Allocate(exam model.Exam, currentEvents []model.Event) Plan {
	examDay := midnight(exam.ExamDate)
	topics := exam.SelectedTopics

	minutesNeeded := len(topics) * minutesPerTopic
	hoursNeeded := (minutesNeeded + 59) / 60

	learnDays := ceilDiv(len(topics), 2)
	if learnDays < minLearnDays {
		learnDays = minLearnDays
	}
	if learnDays > maxLearnDays {
		learnDays = maxLearnDays
	}
	startDate := examDay.AddDate(0, 0, -learnDays)

	busyDays := make(map[string]struct{})
	for _, e := range currentEvents {
		if e.Mandatory && !e.Date.IsZero() {
			busyDays[model.DayKey(e.Date)] = struct{}{}
		}
	}

	topicsPerDay := ceilDiv(len(topics), learnDays)
	if topicsPerDay < 1 {
		topicsPerDay = 1
	}

	blocks := make([]model.Block, 0)
	topicIndex := 0

	for current := startDate; current.Before(examDay) && topicIndex < len(topics); current = current.AddDate(0, 0, 1) {
		maxSlotsToday := len(dailySlots)
		if _, busy := busyDays[model.DayKey(current)]; busy {
			maxSlotsToday = 1
		}

		slotsUsed := 0
		for _, slot := range dailySlots {
			if slotsUsed >= maxSlotsToday || topicIndex >= len(topics) {
				break
			}

			end := topicIndex + topicsPerDay
			if end > len(topics) {
				end = len(topics)
			}
			chunk := append([]string(nil), topics[topicIndex:end]...)

			blockStart := time.Date(current.Year(), current.Month(), current.Day(),
				slot.hour, slot.minute, 0, 0, current.Location())
			blockEnd := blockStart.Add(slotDurationMin * time.Minute)

			blocks = append(blocks, model.Block{
				ID:          uuid.NewString(),
				ExamID:      exam.ID,
				Subject:     exam.Subject,
				Title:       fmt.Sprintf("📖 %s – Lernblock", exam.Subject),
				Topics:      chunk,
				Date:        blockStart,
				TimeFrom:    slot.label,
				TimeTo:      blockEnd.Format("15:04"),
				DurationMin: slotDurationMin,
				Type:        model.BlockLearn,
			})

			topicIndex += len(chunk)
			slotsUsed++
		}
	}

	// Topics left when the walk reached the exam day are appended to
	// the last block instead of being dropped or scheduled on the exam
	// day itself.
	if topicIndex < len(topics) && len(blocks) > 0 {
		last := &blocks[len(blocks)-1]
		remaining := len(topics) - topicIndex
		last.Topics = append(last.Topics, topics[topicIndex:]...)
		last.Title += fmt.Sprintf(" (+%d weitere)", remaining)
	}

	return Plan{
		Blocks:          blocks,
		HoursNeeded:     hoursNeeded,
		LearnDaysNeeded: learnDays,
		StartDate:       startDate,
	}
}

// ExamDayBlock builds the fixed exam-day block, 08:00 to 12:00 on the
// exam date.
func ExamDayBlock(exam model.Exam) model.Block {
	day := midnight(exam.ExamDate)
	return model.Block{
		ID:       uuid.NewString(),
		ExamID:   exam.ID,
		Subject:  exam.Subject,
		Title:    fmt.Sprintf("🎯 Prüfung: %s", exam.Subject),
		Date:     time.Date(day.Year(), day.Month(), day.Day(), 8, 0, 0, 0, day.Location()),
		TimeFrom: "08:00",
		TimeTo:   "12:00",
		Type:     model.BlockExam,
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
