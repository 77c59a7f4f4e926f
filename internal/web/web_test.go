package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiplan/internal/aggregate"
	"studiplan/internal/config"
	"studiplan/internal/model"
	"studiplan/internal/notify"
	"studiplan/internal/plan"
	"studiplan/internal/refresh"
	"studiplan/internal/snapshot"
	"studiplan/internal/source"
	"studiplan/internal/web"
)

type stubAdapter struct {
	events []model.Event
}

func (a *stubAdapter) Name() string     { return "stub" }
func (a *stubAdapter) Configured() bool { return true }

func (a *stubAdapter) Fetch(_ context.Context) ([]model.Event, error) {
	return a.events, nil
}

var _ source.Adapter = (*stubAdapter)(nil)

type fixture struct {
	cfg   *config.Config
	store *snapshot.Store
	exams *plan.Service
	srv   http.Handler
}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataPath = filepath.Join(t.TempDir(), "test.db")
	cfg.CacheDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	store, err := snapshot.Open(cfg.DataPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	exams := plan.NewService(store)
	mailer := notify.NewMailer(cfg.Mail)
	timetable := refresh.New(model.FamilyTimetable, store,
		aggregate.New([]source.Adapter{&stubAdapter{}}, nil), nil)
	materials := refresh.New(model.FamilyMaterials, store,
		aggregate.New(nil, nil), nil)

	srv := web.NewServer(cfg, store, exams, timetable, materials, mailer)
	return &fixture{cfg: cfg, store: store, exams: exams, srv: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestTimetableWeekSeedsDemoData(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/timetable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	type resp struct {
		Events []model.Event `json:"events"`
		Total  int           `json:"total"`
	}
	body := decode[resp](t, rec)
	assert.NotZero(t, body.Total, "empty snapshot must be seeded with demo data")

	// The seed was persisted, not just rendered.
	stored, err := f.store.LoadEvents(model.FamilyTimetable)
	require.NoError(t, err)
	assert.Len(t, stored, body.Total)
}

func TestTimetableWeekWindow(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.cfg.Location()

	// One event this semester week, one the week after.
	now := time.Now().In(loc)
	require.NoError(t, f.store.SaveEvents(model.FamilyTimetable, []model.Event{
		{ID: "now", Title: "Diese Woche", Date: now},
		{ID: "later", Title: "Später", Date: now.AddDate(0, 0, 14)},
	}))

	type resp struct {
		Events     []model.Event `json:"events"`
		Total      int           `json:"total"`
		WeekOffset int           `json:"week_offset"`
	}

	body := decode[resp](t, f.do(t, http.MethodGet, "/api/timetable?week=0", nil))
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "now", body.Events[0].ID)

	all := decode[resp](t, f.do(t, http.MethodGet, "/api/timetable/all", nil))
	assert.Len(t, all.Events, 2)
}

func TestTimetableStatusAndRefresh(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/timetable/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	type status struct {
		Status string `json:"status"`
	}
	assert.Equal(t, string(model.StatusIdle), decode[status](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/timetable/refresh", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestMaterialsGroupedBySubject(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/materials", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	type group struct {
		Name        string        `json:"name"`
		Lectures    []model.Event `json:"lectures"`
		TotalTopics int           `json:"total_topics"`
	}
	type resp struct {
		Subjects       []group `json:"subjects"`
		TotalMaterials int     `json:"total_materials"`
	}
	body := decode[resp](t, rec)
	require.NotEmpty(t, body.Subjects, "demo materials expected")
	assert.NotZero(t, body.TotalMaterials)

	total := 0
	for _, g := range body.Subjects {
		assert.NotEmpty(t, g.Name)
		assert.NotZero(t, g.TotalTopics)
		total += len(g.Lectures)
	}
	assert.Equal(t, body.TotalMaterials, total)
}

func TestExamCRUD(t *testing.T) {
	f := newFixture(t, nil)

	// Create.
	rec := f.do(t, http.MethodPost, "/api/exams", map[string]any{
		"subject":         "Biochemie",
		"exam_date":       "2026-06-01",
		"selected_topics": []string{"Glykolyse", "Citratzyklus"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[model.Exam](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.LearnBlocks)

	// List.
	rec = f.do(t, http.MethodGet, "/api/exams", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Exam](t, rec), 1)

	// Patch status.
	rec = f.do(t, http.MethodPatch, "/api/exams/"+created.ID, map[string]any{"status": "done"})
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decode[model.Exam](t, rec)
	assert.Equal(t, model.ExamDone, patched.Status)
	assert.False(t, patched.ShowInCalendar)

	// Patch visibility.
	rec = f.do(t, http.MethodPatch, "/api/exams/"+created.ID, map[string]any{"show_in_calendar": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Exam](t, rec).ShowInCalendar)

	// Delete.
	rec = f.do(t, http.MethodDelete, "/api/exams/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/exams", nil)
	assert.Empty(t, decode[[]model.Exam](t, rec))
}

func TestExamCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/exams", map[string]any{
		"subject":   "Biochemie",
		"exam_date": "morgen",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/exams", map[string]any{
		"exam_date": "2026-06-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExamPatchUnknownID(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPatch, "/api/exams/missing", map[string]any{"status": "done"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/exams/missing", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExamImport(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/exams/import", map[string]any{
		"exams": []map[string]any{
			{"id": "b1", "subject": "Anatomie"},
			{"id": "b2", "subject": "Chemie"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"restored": 2}, decode[map[string]int](t, rec))
}

func TestStudyCalendarWeek(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.cfg.Location()

	// An exam three days out has learn blocks inside the current or the
	// following calendar week.
	examDate := time.Now().In(loc).AddDate(0, 0, 3)
	_, err := f.exams.Create(plan.CreateRequest{
		Subject:        "Biochemie",
		ExamDate:       examDate,
		SelectedTopics: []string{"T1", "T2"},
	})
	require.NoError(t, err)

	type resp struct {
		Events []model.Block `json:"events"`
	}
	count := 0
	for _, week := range []string{"0", "1"} {
		rec := f.do(t, http.MethodGet, "/api/exams/calendar?week="+week, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		count += len(decode[resp](t, rec).Events)
	}
	assert.NotZero(t, count)
}

func TestFeedTokenGate(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.FeedToken = "secret"
	})

	rec := f.do(t, http.MethodGet, "/calendar.ics", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/calendar.ics?token=wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/calendar.ics?token=secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
}

func TestFeedWithoutToken(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/calendar.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "BEGIN:VCALENDAR"))
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "tabea", Password: "geheim"}
	})

	// API requires credentials.
	rec := f.do(t, http.MethodGet, "/api/exams", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/exams", nil)
	req.SetBasicAuth("tabea", "geheim")
	ok := httptest.NewRecorder()
	f.srv.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/exams", nil)
	req.SetBasicAuth("tabea", "falsch")
	bad := httptest.NewRecorder()
	f.srv.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	// Health and feed stay open.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/calendar.ics", nil).Code)
}

func TestMailTestUnconfigured(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/mail/test", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
