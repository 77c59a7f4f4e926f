// Package web exposes the HTTP API: week-windowed event queries, exam
// CRUD, refresh triggers and status polling, and the public iCal feed.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"studiplan/internal/calendar"
	"studiplan/internal/config"
	appLog "studiplan/internal/log"
	"studiplan/internal/model"
	"studiplan/internal/notify"
	"studiplan/internal/plan"
	"studiplan/internal/refresh"
	"studiplan/internal/snapshot"
	"studiplan/internal/source"
)

// Server wires the HTTP handlers to the application services.
type Server struct {
	cfg       *config.Config
	store     *snapshot.Store
	exams     *plan.Service
	timetable *refresh.Coordinator
	materials *refresh.Coordinator
	mailer    *notify.Mailer
	mux       *http.ServeMux

	now func() time.Time
}

// NewServer constructs the API server.
func NewServer(
	cfg *config.Config,
	store *snapshot.Store,
	exams *plan.Service,
	timetable, materials *refresh.Coordinator,
	mailer *notify.Mailer,
) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		exams:     exams,
		timetable: timetable,
		materials: materials,
		mailer:    mailer,
		mux:       http.NewServeMux(),
		now:       time.Now,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/timetable", s.handleTimetableWeek)
	s.mux.HandleFunc("GET /api/timetable/all", s.handleTimetableAll)
	s.mux.HandleFunc("GET /api/timetable/status", s.statusHandler(s.timetable, model.FamilyTimetable))
	s.mux.HandleFunc("POST /api/timetable/refresh", s.refreshHandler(s.timetable))

	s.mux.HandleFunc("GET /api/materials", s.handleMaterials)
	s.mux.HandleFunc("GET /api/materials/status", s.statusHandler(s.materials, model.FamilyMaterials))
	s.mux.HandleFunc("POST /api/materials/refresh", s.refreshHandler(s.materials))

	s.mux.HandleFunc("GET /api/exams", s.handleExamList)
	s.mux.HandleFunc("POST /api/exams", s.handleExamCreate)
	s.mux.HandleFunc("PATCH /api/exams/{id}", s.handleExamPatch)
	s.mux.HandleFunc("DELETE /api/exams/{id}", s.handleExamDelete)
	s.mux.HandleFunc("POST /api/exams/import", s.handleExamImport)
	s.mux.HandleFunc("GET /api/exams/calendar", s.handleStudyCalendar)

	s.mux.HandleFunc("POST /api/mail/test", s.handleMailTest)

	s.mux.HandleFunc("GET /calendar.ics", s.handleFeed)
}

// Handler returns the server's http.Handler, with basic auth applied
// when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware guards all endpoints except /health and the iCal
// feed, which carries its own shared-secret token gate.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/calendar.ics" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="studiplan", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// timetableEvents loads the timetable snapshot, seeding the demo
// dataset if the family was never populated so views are not blank.
func (s *Server) timetableEvents() ([]model.Event, error) {
	events, err := s.store.LoadEvents(model.FamilyTimetable)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		events = source.DemoTimetable(s.cfg.SemesterStart(""))
		if err := s.store.SaveEvents(model.FamilyTimetable, events); err != nil {
			return nil, err
		}
	}
	return events, nil
}

type timetableResponse struct {
	Events      []model.Event `json:"events"`
	Total       int           `json:"total"`
	WeekOffset  int           `json:"week_offset"`
	LastUpdated time.Time     `json:"last_updated"`
}

// handleTimetableWeek serves one semester-relative week.
//
// GET /api/timetable?week=0&semester=ss26
func (s *Server) handleTimetableWeek(w http.ResponseWriter, r *http.Request) {
	events, err := s.timetableEvents()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	q := r.URL.Query()
	weekOffset := parseIntDefault(q.Get("week"), 0)
	semStart := s.cfg.SemesterStart(q.Get("semester"))
	now := s.now().In(s.cfg.Location())

	meta, _ := s.store.FamilyMeta(model.FamilyTimetable)
	writeJSON(w, http.StatusOK, timetableResponse{
		Events:      calendar.SemesterWeekEvents(events, weekOffset, semStart, now),
		Total:       len(events),
		WeekOffset:  weekOffset,
		LastUpdated: meta.LastUpdated,
	})
}

func (s *Server) handleTimetableAll(w http.ResponseWriter, _ *http.Request) {
	events, err := s.timetableEvents()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	meta, _ := s.store.FamilyMeta(model.FamilyTimetable)
	writeJSON(w, http.StatusOK, timetableResponse{
		Events:      events,
		Total:       len(events),
		LastUpdated: meta.LastUpdated,
	})
}

type statusResponse struct {
	model.RefreshState
	SnapshotUpdated time.Time `json:"snapshot_updated"`
}

// statusHandler returns a polling handler for one family's refresh
// state.
func (s *Server) statusHandler(coord *refresh.Coordinator, family string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		meta, _ := s.store.FamilyMeta(family)
		writeJSON(w, http.StatusOK, statusResponse{
			RefreshState:    coord.State(),
			SnapshotUpdated: meta.LastUpdated,
		})
	}
}

// refreshHandler starts a refresh in the background and returns
// immediately. A trigger while a run is in flight is a no-op.
func (s *Server) refreshHandler(coord *refresh.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		go func() {
			if _, err := coord.Refresh(context.Background(), false); err != nil {
				appLog.Error("background refresh failed", err, "family", coord.Family())
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{
			"message": "Aktualisierung gestartet",
			"status":  string(model.StatusRunning),
		})
	}
}

type subjectGroup struct {
	Name        string        `json:"name"`
	Platform    string        `json:"platform"`
	Lectures    []model.Event `json:"lectures"`
	TotalTopics int           `json:"total_topics"`
}

type materialsResponse struct {
	Subjects       []subjectGroup `json:"subjects"`
	LastUpdated    time.Time      `json:"last_updated"`
	TotalMaterials int            `json:"total_materials"`
}

// handleMaterials serves the scraped course materials grouped by
// subject.
func (s *Server) handleMaterials(w http.ResponseWriter, _ *http.Request) {
	events, err := s.store.LoadEvents(model.FamilyMaterials)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(events) == 0 {
		events = source.DemoMaterialSet(s.cfg.SemesterStart(""))
		if err := s.store.SaveEvents(model.FamilyMaterials, events); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	grouped := make(map[string]*subjectGroup)
	order := make([]string, 0)
	for _, e := range events {
		key := e.Subject
		if key == "" {
			key = "Allgemein"
		}
		g, ok := grouped[key]
		if !ok {
			g = &subjectGroup{Name: key, Platform: e.Platform}
			grouped[key] = g
			order = append(order, key)
		}
		g.Lectures = append(g.Lectures, e)
		g.TotalTopics += len(e.Topics)
	}

	subjects := make([]subjectGroup, 0, len(order))
	for _, key := range order {
		subjects = append(subjects, *grouped[key])
	}

	meta, _ := s.store.FamilyMeta(model.FamilyMaterials)
	writeJSON(w, http.StatusOK, materialsResponse{
		Subjects:       subjects,
		LastUpdated:    meta.LastUpdated,
		TotalMaterials: len(events),
	})
}

func (s *Server) handleExamList(w http.ResponseWriter, _ *http.Request) {
	exams, err := s.exams.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

// examCreateDTO accepts the exam date as a plain day or a full
// timestamp.
type examCreateDTO struct {
	Subject        string   `json:"subject"`
	ExamDate       string   `json:"exam_date"`
	SelectedTopics []string `json:"selected_topics"`
	Notes          string   `json:"notes"`
}

func (s *Server) handleExamCreate(w http.ResponseWriter, r *http.Request) {
	var dto examCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	examDate, err := parseDate(dto.ExamDate, s.cfg.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid exam_date")
		return
	}

	exam, err := s.exams.Create(plan.CreateRequest{
		Subject:        dto.Subject,
		ExamDate:       examDate,
		SelectedTopics: dto.SelectedTopics,
		Notes:          dto.Notes,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

type examPatchDTO struct {
	Status         *model.ExamStatus `json:"status,omitempty"`
	ShowInCalendar *bool             `json:"show_in_calendar,omitempty"`
}

func (s *Server) handleExamPatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var dto examPatchDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if dto.Status == nil && dto.ShowInCalendar == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	var exam model.Exam
	var err error
	if dto.Status != nil {
		exam, err = s.exams.SetStatus(id, *dto.Status)
	}
	if err == nil && dto.ShowInCalendar != nil {
		exam, err = s.exams.SetCalendarVisibility(id, *dto.ShowInCalendar)
	}
	if errors.Is(err, plan.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Prüfung nicht gefunden")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (s *Server) handleExamDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.exams.Delete(r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type examImportDTO struct {
	Exams []model.Exam `json:"exams"`
}

func (s *Server) handleExamImport(w http.ResponseWriter, r *http.Request) {
	var dto examImportDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	restored, err := s.exams.Import(dto.Exams)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"restored": restored})
}

type studyCalendarResponse struct {
	Events     []model.Block `json:"events"`
	WeekOffset int           `json:"week_offset"`
}

// handleStudyCalendar serves one calendar-relative week of study and
// exam blocks.
//
// GET /api/exams/calendar?week=0
func (s *Server) handleStudyCalendar(w http.ResponseWriter, r *http.Request) {
	exams, err := s.exams.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	weekOffset := parseIntDefault(r.URL.Query().Get("week"), 0)
	now := s.now().In(s.cfg.Location())
	writeJSON(w, http.StatusOK, studyCalendarResponse{
		Events:     calendar.StudyWeekEvents(exams, weekOffset, now),
		WeekOffset: weekOffset,
	})
}

func (s *Server) handleMailTest(w http.ResponseWriter, r *http.Request) {
	if err := s.mailer.SendTestMail(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleFeed serves the public iCal document. The feed bypasses basic
// auth; if a feed token is configured it must be presented as a query
// parameter.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.cfg.FeedToken != "" && !secureCompare(r.URL.Query().Get("token"), s.cfg.FeedToken) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	events, err := s.timetableEvents()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	exams, err := s.exams.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	doc := calendar.Feed(events, exams, s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="studiplan.ics"`)
	w.Header().Set("Cache-Control", "no-cache, max-age=0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to encode JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
