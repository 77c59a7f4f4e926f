package source

import (
	"strconv"
	"time"

	"studiplan/internal/model"
)

// Demo datasets. Served whenever a family has no configured adapter so
// downstream views are never blank in an unconfigured deployment.

const demoWeeks = 14

type demoSlot struct {
	title     string
	timeFrom  string
	timeTo    string
	weekday   int // 1 = Monday … 5 = Friday
	subject   string
	mandatory bool
	location  string
}

var demoTimetableSlots = []demoSlot{
	{"Anatomie Vorlesung", "08:15", "09:45", 1, "Anatomie", false, "Hörsaal 1"},
	{"Anatomie Praktikum", "14:00", "17:00", 2, "Anatomie", true, "Seziersaal"},
	{"Physiologie Vorlesung", "10:15", "11:45", 1, "Physiologie", false, "Hörsaal 2"},
	{"Physiologie Praktikum", "14:00", "16:00", 4, "Physiologie", true, "Physiologie-Labor"},
	{"Biochemie Vorlesung", "08:15", "09:45", 3, "Biochemie", false, "Hörsaal 3"},
	{"Biochemie Praktikum", "14:00", "17:00", 5, "Biochemie", true, "Biochemie-Labor"},
	{"Histologie Kurs", "10:15", "12:15", 3, "Histologie", true, "Mikroskopiersaal"},
	{"Biologie Vorlesung", "12:15", "13:45", 2, "Biologie", false, "Hörsaal 4"},
	{"Medizinische Psychologie", "08:15", "09:45", 5, "Allgemein", false, "Hörsaal 5"},
	{"SIMED Kursus", "14:00", "16:00", 3, "SIMED", true, "SIMED-Zentrum"},
	{"Chemie Vorlesung", "10:15", "11:45", 4, "Chemie", false, "Chemie-Hörsaal"},
	{"Physik Vorlesung", "12:15", "13:45", 5, "Physik", false, "Physik-Hörsaal"},
}

// DemoTimetable generates the fixed demo lecture timetable: one entry
// per slot per semester week, anchored at semesterStart (a Monday).
func DemoTimetable(semesterStart time.Time) []model.Event {
	events := make([]model.Event, 0, demoWeeks*len(demoTimetableSlots))

	for week := 0; week < demoWeeks; week++ {
		for _, slot := range demoTimetableSlots {
			dayOffset := slot.weekday - 1
			if slot.weekday == 0 {
				dayOffset = 6
			}
			day := semesterStart.AddDate(0, 0, week*7+dayOffset)
			h, m := parseClock(slot.timeFrom)
			date := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())

			events = append(events, model.Event{
				ID:        model.EventID(slot.title, slot.timeFrom, strconv.Itoa(week)),
				Title:     slot.title,
				TimeFrom:  slot.timeFrom,
				TimeTo:    slot.timeTo,
				Weekday:   slot.weekday,
				Date:      date,
				Location:  slot.location,
				Lecturer:  "Demo-Dozent",
				Subject:   slot.subject,
				Mandatory: slot.mandatory,
				Platform:  "Demo",
				Week:      week + 1,
			})
		}
	}
	return events
}

type demoMaterial struct {
	course   string
	title    string
	topics   []string
	week     int
	platform string
}

var demoMaterials = []demoMaterial{
	{"Anatomie", "Einführung & Grundbegriffe", []string{"Anatomische Lage", "Körperebenen", "Organsysteme", "Gewebstypen", "Nomina anatomica"}, 1, "Demo"},
	{"Anatomie", "Bewegungsapparat", []string{"Skelett", "Muskulatur", "Gelenke", "Sehnen", "Bänder", "Knorpel"}, 2, "Demo"},
	{"Anatomie", "Herz und Kreislauf", []string{"Herzanatomie", "Herzklappen", "Koronararterien", "Blutgefäße", "Lymphsystem"}, 3, "Demo"},
	{"Physiologie", "Zellphysiologie", []string{"Membranpotential", "Ionenkanäle", "Aktionspotential", "Osmose", "Diffusion"}, 1, "Demo"},
	{"Physiologie", "Herzphysiologie", []string{"Erregungsleitung", "EKG", "Herzfrequenz", "Schlagvolumen", "Herzzyklus"}, 3, "Demo"},
	{"Physiologie", "Atemphysiologie", []string{"Lungenvolumina", "Gasaustausch", "Ventilation", "Perfusion", "Blutgase"}, 4, "Demo"},
	{"Biochemie", "Aminosäuren & Proteine", []string{"Aminosäurestruktur", "Peptidbindung", "Proteinstruktur", "Enzyme", "Km-Wert"}, 1, "Demo"},
	{"Biochemie", "Kohlenhydratstoffwechsel", []string{"Glykolyse", "Citratcyclus", "Gluconeogenese", "Glykogensynthese", "Pentosephosphatweg"}, 2, "Demo"},
	{"Biochemie", "Lipidstoffwechsel", []string{"Fettsäuresynthese", "β-Oxidation", "Cholesterin", "Lipoproteine", "Ketonkörper"}, 3, "Demo"},
	{"Histologie", "Grundgewebe", []string{"Epithelgewebe", "Bindegewebe", "Muskelgewebe", "Nervengewebe", "Zellorganellen"}, 1, "Demo"},
	{"Histologie", "Mikroskopie", []string{"Hämatoxylin/Eosin", "PAS-Färbung", "Immunhistochemie", "Lichtmikroskop", "Elektronenmikroskop"}, 2, "Demo"},
	{"Biologie", "Zellbiologie", []string{"Zellzyklus", "Mitose", "Meiose", "DNA-Replikation", "Transkription", "Translation"}, 1, "Demo"},
	{"Biologie", "Genetik", []string{"Mendel-Gesetze", "Mutation", "Chromosomen", "Genregulation", "Epigenetik"}, 2, "Demo"},
	{"Chemie", "Organische Chemie", []string{"Funktionelle Gruppen", "Reaktionsmechanismen", "Säure-Base", "Redoxreaktionen", "Puffer"}, 1, "Demo"},
	{"SIMED", "Klinische Untersuchung", []string{"Anamnese", "Inspektion", "Palpation", "Perkussion", "Auskultation"}, 2, "SIMED"},
}

// DemoMaterialSet generates the fixed demo course-material records,
// one per lecture, dated into semester weeks from semesterStart.
func DemoMaterialSet(semesterStart time.Time) []model.Event {
	events := make([]model.Event, 0, len(demoMaterials))
	for _, m := range demoMaterials {
		date := semesterStart.AddDate(0, 0, (m.week-1)*7)
		events = append(events, model.Event{
			ID:       model.EventID(m.title, model.DayKey(date), m.course),
			Title:    m.title,
			Subject:  m.course,
			Topics:   m.topics,
			Date:     date,
			Platform: m.platform,
			Week:     m.week,
		})
	}
	return events
}

func parseClock(hhmm string) (h, m int) {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return 0, 0
	}
	h = int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m = int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	return h, m
}
