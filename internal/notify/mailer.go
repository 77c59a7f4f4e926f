// Package notify sends change and overview mails through a Resend-style
// HTTPS mail API. All failures here are soft: callers log them and move
// on, notification never affects persisted state.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"studiplan/internal/config"
	appLog "studiplan/internal/log"
	"studiplan/internal/model"
)

// Mailer posts mails to the configured HTTPS endpoint.
type Mailer struct {
	cfg    config.MailConfig
	client *http.Client
	now    func() time.Time
}

// NewMailer creates a mailer; it is inert until an API key, sender and
// recipient are configured.
func NewMailer(cfg config.MailConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		now:    time.Now,
	}
}

// Configured reports whether the mailer can actually send.
func (m *Mailer) Configured() bool {
	return m.cfg.APIKey != "" && m.cfg.From != "" && m.cfg.To != ""
}

// SendChangeMail mails a before/after summary of a timetable diff. It
// returns false without error when the mailer is unconfigured or the
// diff is empty.
func (m *Mailer) SendChangeMail(ctx context.Context, d model.Diff) (bool, error) {
	if !m.Configured() {
		appLog.Warn("mail not configured, skipping change notification")
		return false, nil
	}
	if d.Empty() {
		return false, nil
	}

	subject := fmt.Sprintf("Stundenplan-Änderungen: %d neu, %d geändert, %d entfallen",
		len(d.Added), len(d.Changed), len(d.Removed))

	var b strings.Builder
	b.WriteString("<h2>Stundenplan-Änderungen</h2>")
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(m.now().Format("Mon, 02.01.2006 15:04")))
	b.WriteString("<table>")
	for _, e := range d.Added {
		fmt.Fprintf(&b, "<tr><td><strong>NEU</strong></td><td>%s</td></tr>", formatEvent(e))
	}
	for _, ch := range d.Changed {
		fmt.Fprintf(&b, "<tr><td><strong>GEÄNDERT</strong></td><td><del>%s</del><br>%s</td></tr>",
			formatEvent(ch.Before), formatEvent(ch.After))
	}
	for _, e := range d.Removed {
		fmt.Fprintf(&b, "<tr><td><strong>ENTFALLEN</strong></td><td><del>%s</del></td></tr>", formatEvent(e))
	}
	b.WriteString("</table>")

	if err := m.send(ctx, subject, b.String()); err != nil {
		return false, err
	}
	appLog.Info("change mail sent", "changes", d.Total())
	return true, nil
}

// SendWeeklyOverview mails the coming week's timetable, grouped by day.
func (m *Mailer) SendWeeklyOverview(ctx context.Context, events []model.Event) error {
	if !m.Configured() {
		appLog.Warn("mail not configured, skipping weekly overview")
		return nil
	}

	// The window is the next calendar week: from the coming Monday
	// (never today, a Monday send announces the week after) for 7 days.
	now := m.now()
	daysAhead := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	weekStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, daysAhead)
	weekEnd := weekStart.AddDate(0, 0, 7)

	byDay := make(map[string][]model.Event)
	for _, e := range events {
		if e.Date.IsZero() || e.Date.Before(weekStart) || !e.Date.Before(weekEnd) {
			continue
		}
		key := model.DayKey(e.Date)
		byDay[key] = append(byDay[key], e)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	var b strings.Builder
	b.WriteString("<h2>Wochenausblick</h2>")
	if len(days) == 0 {
		b.WriteString("<p>Keine Termine in der kommenden Woche.</p>")
	}
	for _, day := range days {
		fmt.Fprintf(&b, "<h3>%s</h3><ul>", html.EscapeString(day))
		entries := byDay[day]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date.Before(entries[j].Date) })
		for _, e := range entries {
			fmt.Fprintf(&b, "<li>%s</li>", formatEvent(e))
		}
		b.WriteString("</ul>")
	}

	if err := m.send(ctx, "Dein Wochenausblick", b.String()); err != nil {
		return err
	}
	appLog.Info("weekly overview mail sent", "days", len(days))
	return nil
}

// SendTestMail verifies the mail configuration end to end.
func (m *Mailer) SendTestMail(ctx context.Context) error {
	if !m.Configured() {
		return errors.New("mail is not configured")
	}
	return m.send(ctx, "studiplan Test-Mail",
		"<p>Die Mail-Konfiguration funktioniert.</p>")
}

type mailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (m *Mailer) send(ctx context.Context, subject, htmlBody string) error {
	payload, err := json.Marshal(mailRequest{
		From:    m.cfg.From,
		To:      []string{m.cfg.To},
		Subject: subject,
		HTML:    htmlBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail API returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

func formatEvent(e model.Event) string {
	parts := []string{html.EscapeString(e.Title)}
	if !e.Date.IsZero() {
		parts = append(parts, e.Date.Format("02.01.2006"))
	}
	if e.TimeFrom != "" {
		span := e.TimeFrom
		if e.TimeTo != "" {
			span += "–" + e.TimeTo
		}
		parts = append(parts, span)
	}
	if e.Location != "" {
		parts = append(parts, html.EscapeString(e.Location))
	}
	return strings.Join(parts, " · ")
}
