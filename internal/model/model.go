package model

import (
	"encoding/base64"
	"time"
)

// Refresh families. Each family owns a disjoint snapshot and a disjoint
// refresh state; the timetable family carries lecture events, the
// materials family carries scraped course materials.
const (
	FamilyTimetable = "timetable"
	FamilyMaterials = "materials"
)

// Event is the canonical, platform-agnostic record produced by source
// adapters and persisted in snapshots. Events are immutable once diffed
// against; a content change upstream yields a new identity (see EventID).
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	TimeFrom  string    `json:"time_from,omitempty"`
	TimeTo    string    `json:"time_to,omitempty"`
	Location  string    `json:"location,omitempty"`
	Lecturer  string    `json:"lecturer,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Mandatory bool      `json:"mandatory"`
	Platform  string    `json:"platform,omitempty"`
	Weekday   int       `json:"weekday,omitempty"`
	Week      int       `json:"week,omitempty"`

	// Topics is populated for course-material records only and feeds
	// exam topic selection; it takes no part in identity or diffing.
	Topics []string `json:"topics,omitempty"`
}

// EventID derives the stable identity key for an event from its title,
// a time reference (start time or weekday slot) and location. Upstream
// edits to any of these fields therefore produce a new identity; a
// changed event surfaces in a diff as one removed plus one added entry.
func EventID(title, timeRef, location string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(title + "|" + timeRef + "|" + location))
	if len(enc) > 24 {
		enc = enc[:24]
	}
	return enc
}

// Key returns the identity key used for dedup and diffing, falling back
// to a derived id when the adapter did not set one.
func (e Event) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return EventID(e.Title, e.TimeFrom, e.Location)
}

// DayKey collapses a timestamp to its calendar day.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// BlockType distinguishes allocator output blocks.
type BlockType string

const (
	BlockLearn BlockType = "learn_block"
	BlockExam  BlockType = "exam"
)

// Block is a single study time-block or the exam-day block itself.
// Blocks are owned by the exam they were computed for and are never
// independently mutated.
type Block struct {
	ID          string    `json:"id"`
	ExamID      string    `json:"exam_id"`
	Subject     string    `json:"subject"`
	Title       string    `json:"title"`
	Topics      []string  `json:"topics,omitempty"`
	Date        time.Time `json:"date"`
	TimeFrom    string    `json:"time_from"`
	TimeTo      string    `json:"time_to"`
	DurationMin int       `json:"duration_min,omitempty"`
	Type        BlockType `json:"type"`
}

// ExamStatus is the lifecycle state of an exam declaration.
type ExamStatus string

const (
	ExamUpcoming  ExamStatus = "upcoming"
	ExamDone      ExamStatus = "done"
	ExamCancelled ExamStatus = "cancelled"
)

// Exam is a user-declared exam plus the study plan derived for it at
// creation time. Derived fields (blocks, hours, days, start date) are
// computed exactly once and never recomputed afterwards.
type Exam struct {
	ID             string     `json:"id"`
	Subject        string     `json:"subject"`
	ExamDate       time.Time  `json:"exam_date"`
	SelectedTopics []string   `json:"selected_topics"`
	Notes          string     `json:"notes,omitempty"`
	Status         ExamStatus `json:"status"`
	ShowInCalendar bool       `json:"show_in_calendar"`

	LearnBlocks     []Block   `json:"learn_blocks"`
	ExamBlock       *Block    `json:"exam_block,omitempty"`
	HoursNeeded     int       `json:"hours_needed"`
	LearnDaysNeeded int       `json:"learn_days_needed"`
	LearnStartDate  time.Time `json:"learn_start_date"`

	CreatedAt time.Time `json:"created_at"`
}

// Change pairs the before/after versions of an event whose identity
// survived a refresh while its content did not.
type Change struct {
	Before Event `json:"before"`
	After  Event `json:"after"`
}

// Diff is the classified delta between two snapshots.
type Diff struct {
	Added   []Event  `json:"added"`
	Removed []Event  `json:"removed"`
	Changed []Change `json:"changed"`
}

// Empty reports whether the diff carries no changes at all.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Total returns the number of classified entries across all categories.
func (d Diff) Total() int {
	return len(d.Added) + len(d.Removed) + len(d.Changed)
}

// RefreshStatus is the coordinator state machine position.
type RefreshStatus string

const (
	StatusIdle    RefreshStatus = "idle"
	StatusRunning RefreshStatus = "running"
	StatusDone    RefreshStatus = "done"
	StatusError   RefreshStatus = "error"
)

// RefreshState is the observable state of one refresh family, polled by
// UIs. Diff is retained only on the done transition.
type RefreshState struct {
	Status      RefreshStatus `json:"status"`
	Message     string        `json:"message"`
	Progress    int           `json:"progress"`
	LastUpdated time.Time     `json:"last_updated"`
	Diff        *Diff         `json:"diff,omitempty"`
}
