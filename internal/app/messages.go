// internal/app/messages.go
package app

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"oncall_reminder_engine/internal/domain/doctor"
	"oncall_reminder_engine/internal/domain/mail"
	"oncall_reminder_engine/internal/domain/period"
	"oncall_reminder_engine/internal/domain/reminder"
)

var messageTemplate = template.Must(template.New("reminder").Parse(
	`<p>Bonjour {{.Name}},</p>
<p>{{.Body}}</p>
{{if .Link}}<p><a href="{{.Link}}">Ouvrir mes disponibilités</a></p>{{end}}
<p style="color:#888;font-size:12px">Période {{.Period}}</p>`))

type messageData struct {
	Name   string
	Body   string
	Link   string
	Period string
}

// Composer builds the reminder emails. Content is intentionally plain.
type Composer struct {
	baseURL string
}

func NewComposer(baseURL string) *Composer {
	return &Composer{baseURL: strings.TrimRight(baseURL, "/")}
}

// Availability builds a weekly, deadline or opening reminder.
func (c *Composer) Availability(kind reminder.Kind, p *period.Period, rc doctor.Recipient) (mail.Message, error) {
	loc := p.Location()
	var deadline string
	if p.Settings != nil && !p.Settings.AvailDeadline.IsZero() {
		deadline = p.Settings.AvailDeadline.In(loc).Format("02/01/2006 15:04")
	}

	var subject, body string
	switch {
	case kind == reminder.KindWeekly:
		subject = fmt.Sprintf("Rappel : vos disponibilités %s", p.Label)
		body = fmt.Sprintf("Vos disponibilités pour la période %s ne sont pas encore validées. Date limite : %s.", p.Label, deadline)
	case kind == reminder.KindOpening:
		subject = fmt.Sprintf("Ouverture des disponibilités %s", p.Label)
		body = fmt.Sprintf("La saisie des disponibilités pour la période %s est ouverte jusqu'au %s.", p.Label, deadline)
	default:
		h, ok := kind.DeadlineHours()
		if !ok {
			return mail.Message{}, fmt.Errorf("no availability template for kind %s", kind)
		}
		subject = fmt.Sprintf("Plus que %dh pour valider vos disponibilités %s", h, p.Label)
		body = fmt.Sprintf("La saisie des disponibilités pour la période %s ferme le %s.", p.Label, deadline)
	}

	return c.render(subject, body, p.Label, rc, kind)
}

// Assignment builds a per-slot reminder for an assigned doctor.
func (c *Composer) Assignment(kind reminder.Kind, p *period.Period, a doctor.AssignedSlot) (mail.Message, error) {
	loc := p.Location()
	start := a.StartTS.In(loc)
	subject := fmt.Sprintf("Rappel de garde le %s", start.Format("02/01/2006"))
	body := fmt.Sprintf("Vous êtes de garde le %s de %s à %s.",
		start.Format("02/01/2006"), start.Format("15:04"), a.EndTS.In(loc).Format("15:04"))
	return c.render(subject, body, p.Label, a.Recipient, kind)
}

func (c *Composer) render(subject, body, label string, rc doctor.Recipient, kind reminder.Kind) (mail.Message, error) {
	name := rc.FullName
	if name == "" {
		name = "Docteur"
	}
	var link string
	if c.baseURL != "" {
		link = c.baseURL + "/availability"
	}

	var buf bytes.Buffer
	if err := messageTemplate.Execute(&buf, messageData{Name: name, Body: body, Link: link, Period: label}); err != nil {
		return mail.Message{}, fmt.Errorf("render %s message: %w", kind, err)
	}
	return mail.Message{
		To:      rc.Email,
		Subject: subject,
		HTML:    buf.String(),
		Text:    fmt.Sprintf("Bonjour %s,\n\n%s\n", name, body),
		Tags:    map[string]string{"kind": string(kind)},
	}, nil
}

func formatUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
