package plan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "studiplan/internal/log"
	"studiplan/internal/model"
	"studiplan/internal/snapshot"
)

// ErrNotFound is returned for operations on an unknown exam id.
var ErrNotFound = errors.New("exam not found")

// CreateRequest carries the user-declared fields of a new exam.
type CreateRequest struct {
	Subject        string    `json:"subject"`
	ExamDate       time.Time `json:"exam_date"`
	SelectedTopics []string  `json:"selected_topics"`
	Notes          string    `json:"notes"`
}

// Service manages exam declarations. The study plan is derived exactly
// once, at creation; later lifecycle operations never touch derived
// fields.
type Service struct {
	store *snapshot.Store
	now   func() time.Time
}

// NewService creates an exam service over the given store.
func NewService(store *snapshot.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create validates the declaration, invokes the allocator against the
// current timetable snapshot (for busy days) and persists the exam.
func (s *Service) Create(req CreateRequest) (model.Exam, error) {
	if req.Subject == "" {
		return model.Exam{}, errors.New("subject is required")
	}
	if req.ExamDate.IsZero() {
		return model.Exam{}, errors.New("exam date is required")
	}

	exam := model.Exam{
		ID:             uuid.NewString(),
		Subject:        req.Subject,
		ExamDate:       req.ExamDate,
		SelectedTopics: dedupeTopics(req.SelectedTopics),
		Notes:          req.Notes,
		Status:         model.ExamUpcoming,
		ShowInCalendar: true,
		CreatedAt:      s.now(),
	}

	events, err := s.store.LoadEvents(model.FamilyTimetable)
	if err != nil {
		// Busy-day data is best effort; plan on a free calendar rather
		// than failing the creation.
		appLog.Warn("exam create: timetable snapshot unavailable", "err", err)
		events = nil
	}

	p := Allocate(exam, events)
	exam.LearnBlocks = p.Blocks
	exam.HoursNeeded = p.HoursNeeded
	exam.LearnDaysNeeded = p.LearnDaysNeeded
	exam.LearnStartDate = p.StartDate
	examBlock := ExamDayBlock(exam)
	exam.ExamBlock = &examBlock

	if err := s.store.PutExam(exam); err != nil {
		return model.Exam{}, err
	}

	appLog.Info("exam created",
		"subject", exam.Subject,
		"topics", len(exam.SelectedTopics),
		"blocks", len(exam.LearnBlocks),
	)
	return exam, nil
}

// List returns all exams, oldest first.
func (s *Service) List() ([]model.Exam, error) {
	return s.store.ListExams()
}

// SetStatus transitions an exam's lifecycle state. done and cancelled
// are terminal for scheduling: calendar visibility is forced off.
func (s *Service) SetStatus(id string, status model.ExamStatus) (model.Exam, error) {
	switch status {
	case model.ExamUpcoming, model.ExamDone, model.ExamCancelled:
	default:
		return model.Exam{}, fmt.Errorf("invalid exam status %q", status)
	}

	exam, err := s.store.GetExam(id)
	if err != nil {
		return model.Exam{}, err
	}
	if exam == nil {
		return model.Exam{}, ErrNotFound
	}

	exam.Status = status
	if status == model.ExamDone || status == model.ExamCancelled {
		exam.ShowInCalendar = false
	}
	if err := s.store.PutExam(*exam); err != nil {
		return model.Exam{}, err
	}
	return *exam, nil
}

// SetCalendarVisibility toggles whether an exam's blocks appear in
// calendar projections.
func (s *Service) SetCalendarVisibility(id string, show bool) (model.Exam, error) {
	exam, err := s.store.GetExam(id)
	if err != nil {
		return model.Exam{}, err
	}
	if exam == nil {
		return model.Exam{}, ErrNotFound
	}

	exam.ShowInCalendar = show
	if err := s.store.PutExam(*exam); err != nil {
		return model.Exam{}, err
	}
	return *exam, nil
}

// Delete removes an exam and its derived blocks.
func (s *Service) Delete(id string) error {
	return s.store.DeleteExam(id)
}

// Import restores a backed-up exam list, but only into an empty store;
// existing data is never overwritten. It returns how many exams were
// restored.
func (s *Service) Import(exams []model.Exam) (int, error) {
	if len(exams) == 0 {
		return 0, nil
	}
	n, err := s.store.CountExams()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	restored := 0
	for _, exam := range exams {
		if exam.ID == "" {
			exam.ID = uuid.NewString()
		}
		if exam.Status == "" {
			exam.Status = model.ExamUpcoming
		}
		if err := s.store.PutExam(exam); err != nil {
			return restored, err
		}
		restored++
	}
	appLog.Info("exams imported from backup", "count", restored)
	return restored, nil
}

// dedupeTopics drops blank entries and duplicates while preserving
// first-seen order.
func dedupeTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
