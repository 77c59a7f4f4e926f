// Package sched registers the periodic background jobs: snapshot
// refreshes, notification-only change checks and the weekly overview
// mail. Every firing simply attempts a refresh; overlap safety comes
// from the coordinator's single-flight guard, so schedule entries may
// collide freely.
package sched

import (
	"context"

	"github.com/robfig/cron/v3"

	"studiplan/internal/config"
	appLog "studiplan/internal/log"
	"studiplan/internal/model"
	"studiplan/internal/notify"
	"studiplan/internal/refresh"
	"studiplan/internal/snapshot"
)

// Deps are the collaborators the background jobs drive.
type Deps struct {
	Timetable *refresh.Coordinator
	Materials *refresh.Coordinator
	Mailer    *notify.Mailer
	Store     *snapshot.Store
	Schedules config.SchedulesConfig
}

// Scheduler wraps the cron runner.
type Scheduler struct {
	cron *cron.Cron
}

// Start registers the standard job set and starts the cron runner:
//
//   - materials refresh (daily)
//   - timetable refresh, no notification (several times a day)
//   - change check: timetable refresh with notification on change
//   - weekly overview mail
func Start(deps Deps) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New()}

	for _, spec := range deps.Schedules.MaterialsRefresh {
		if err := s.add(spec, "materials refresh", func() {
			_, _ = deps.Materials.Refresh(context.Background(), false)
		}); err != nil {
			return nil, err
		}
	}

	for _, spec := range deps.Schedules.TimetableRefresh {
		if err := s.add(spec, "timetable refresh", func() {
			_, _ = deps.Timetable.Refresh(context.Background(), false)
		}); err != nil {
			return nil, err
		}
	}

	for _, spec := range deps.Schedules.ChangeCheck {
		if err := s.add(spec, "change check", func() {
			res, err := deps.Timetable.Refresh(context.Background(), true)
			if err != nil || res == nil {
				return
			}
			if res.Diff.Empty() {
				appLog.Info("change check: no changes")
			} else {
				appLog.Info("change check: changes detected", "total", res.Diff.Total())
			}
		}); err != nil {
			return nil, err
		}
	}

	for _, spec := range deps.Schedules.WeeklyOverview {
		if err := s.add(spec, "weekly overview", func() {
			events, err := deps.Store.LoadEvents(model.FamilyTimetable)
			if err != nil {
				appLog.Error("weekly overview: snapshot load failed", err)
				return
			}
			if err := deps.Mailer.SendWeeklyOverview(context.Background(), events); err != nil {
				appLog.Error("weekly overview mail failed", err)
			}
		}); err != nil {
			return nil, err
		}
	}

	s.cron.Start()
	appLog.Info("scheduler started",
		"materials", len(deps.Schedules.MaterialsRefresh),
		"timetable", len(deps.Schedules.TimetableRefresh),
		"change_check", len(deps.Schedules.ChangeCheck),
		"weekly_overview", len(deps.Schedules.WeeklyOverview),
	)
	return s, nil
}

func (s *Scheduler) add(spec, name string, run func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		appLog.Info("scheduled job firing", "job", name)
		run()
	})
	if err != nil {
		appLog.Error("invalid cron expression", err, "job", name, "spec", spec)
	}
	return err
}

// Stop halts the cron runner; running jobs finish on their own.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}
