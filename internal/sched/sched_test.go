package sched_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiplan/internal/aggregate"
	"studiplan/internal/config"
	"studiplan/internal/model"
	"studiplan/internal/notify"
	"studiplan/internal/refresh"
	"studiplan/internal/sched"
	"studiplan/internal/snapshot"
)

func testDeps(t *testing.T, schedules config.SchedulesConfig) sched.Deps {
	t.Helper()
	store, err := snapshot.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return sched.Deps{
		Timetable: refresh.New(model.FamilyTimetable, store, aggregate.New(nil, nil), nil),
		Materials: refresh.New(model.FamilyMaterials, store, aggregate.New(nil, nil), nil),
		Mailer:    notify.NewMailer(config.MailConfig{}),
		Store:     store,
		Schedules: schedules,
	}
}

func TestStartWithDefaultSchedules(t *testing.T) {
	deps := testDeps(t, config.DefaultConfig().Schedules)

	s, err := sched.Start(deps)
	require.NoError(t, err)
	require.NotNil(t, s)
	s.Stop()
}

func TestStartRejectsInvalidExpression(t *testing.T) {
	deps := testDeps(t, config.SchedulesConfig{
		TimetableRefresh: []string{"every other tuesday"},
	})

	s, err := sched.Start(deps)
	assert.Error(t, err)
	assert.Nil(t, s)
}
