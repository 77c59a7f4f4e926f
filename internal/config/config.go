package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS subscription source feeding the
// timetable family.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Platform is the provenance tag stamped on produced events
	// (e.g. "ALMA", "MOODLE"). Defaults to ID.
	Platform string `yaml:"platform" json:"platform"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// MailConfig configures the outbound notification mailer. The API key
// is typically supplied via the RESEND_API_KEY environment variable
// rather than the config file.
type MailConfig struct {
	APIKey   string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
}

// SchedulesConfig is the set of cron expressions driving background
// jobs. Every entry independently attempts a refresh; overlap safety
// comes from the coordinator's single-flight guard, not from the
// schedule layout.
type SchedulesConfig struct {
	MaterialsRefresh []string `yaml:"materials_refresh" json:"materials_refresh"`
	TimetableRefresh []string `yaml:"timetable_refresh" json:"timetable_refresh"`
	ChangeCheck      []string `yaml:"change_check" json:"change_check"`
	WeeklyOverview   []string `yaml:"weekly_overview" json:"weekly_overview"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone all wall-clock interpretation uses
	// (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataPath is the SQLite database file holding snapshots and exams.
	DataPath string `yaml:"data_path" json:"data_path"`

	// CacheDir is the base directory for the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Semester selects the default semester key for semester-relative
	// week views; Semesters maps keys to start dates (YYYY-MM-DD).
	Semester  string            `yaml:"semester" json:"semester"`
	Semesters map[string]string `yaml:"semesters" json:"semesters"`

	// HorizonDays bounds recurrence expansion of ICS sources.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	Schedules SchedulesConfig `yaml:"schedules" json:"schedules"`

	// ICS is the list of subscribed timetable sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// FeedToken, if non-empty, gates the public iCal feed behind a
	// shared-secret query parameter.
	FeedToken string `yaml:"feed_token,omitempty" json:"feed_token,omitempty"`

	Mail MailConfig `yaml:"mail" json:"mail"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health and the iCal feed.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Europe/Berlin",
		DataPath:    "./var/studiplan.db",
		CacheDir:    "./var/ics-cache",
		Semester:    "ss26",
		Semesters:   defaultSemesters(),
		HorizonDays: 120,
		Schedules: SchedulesConfig{
			MaterialsRefresh: []string{"0 7 * * *"},
			TimetableRefresh: []string{"0 7 * * *", "0 13 * * *", "0 19 * * *"},
			ChangeCheck:      []string{"0 6 * * *", "0 21 * * *"},
			WeeklyOverview:   []string{"0 16 * * 0"},
		},
		ICS: []ICSConfig{},
		Mail: MailConfig{
			Endpoint: "https://api.resend.com/emails",
		},
	}
}

func defaultSemesters() map[string]string {
	return map[string]string{
		"ss26":   "2026-04-20",
		"ws2627": "2026-10-15",
		"ss27":   "2027-04-19",
		"ws2728": "2027-10-14",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.DataPath == "" {
		c.DataPath = def.DataPath
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Semester == "" {
		c.Semester = def.Semester
	}
	if len(c.Semesters) == 0 {
		c.Semesters = defaultSemesters()
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if len(c.Schedules.MaterialsRefresh) == 0 {
		c.Schedules.MaterialsRefresh = def.Schedules.MaterialsRefresh
	}
	if len(c.Schedules.TimetableRefresh) == 0 {
		c.Schedules.TimetableRefresh = def.Schedules.TimetableRefresh
	}
	if len(c.Schedules.ChangeCheck) == 0 {
		c.Schedules.ChangeCheck = def.Schedules.ChangeCheck
	}
	if len(c.Schedules.WeeklyOverview) == 0 {
		c.Schedules.WeeklyOverview = def.Schedules.WeeklyOverview
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			if c.ICS[i].Name != "" {
				c.ICS[i].ID = c.ICS[i].Name
			} else {
				c.ICS[i].ID = c.ICS[i].URL
			}
		}
		if c.ICS[i].Platform == "" {
			c.ICS[i].Platform = c.ICS[i].ID
		}
	}
	if c.Mail.Endpoint == "" {
		c.Mail.Endpoint = def.Mail.Endpoint
	}
}

// ApplyEnv overlays secrets from the process environment. Values set in
// the environment win over the config file; empty env vars are ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		c.Mail.APIKey = v
	}
	if v := os.Getenv("MAIL_FROM"); v != "" {
		c.Mail.From = v
	}
	if v := os.Getenv("MAIL_TO"); v != "" {
		c.Mail.To = v
	}
	if v := os.Getenv("ICAL_TOKEN"); v != "" {
		c.FeedToken = v
	}
}

// Location resolves the configured timezone, falling back to time.Local
// on an unknown zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SemesterStart resolves a semester key to its start date (midnight in
// the configured timezone). Unknown or empty keys fall back to the
// configured default semester.
func (c *Config) SemesterStart(key string) time.Time {
	loc := c.Location()
	if key == "" {
		key = c.Semester
	}
	s, ok := c.Semesters[key]
	if !ok {
		s = c.Semesters[c.Semester]
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		// Unparseable entry: fall back to the compiled-in default.
		t, _ = time.ParseInLocation("2006-01-02", defaultSemesters()["ss26"], loc)
	}
	return t
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create parent directory if needed,
//     write a default config with 0600 perms, and return the default.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path, atomically
// via a temp file + rename, with 0600 final permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".studiplan-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
