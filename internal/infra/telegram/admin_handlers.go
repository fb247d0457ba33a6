package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"oncall_reminder_engine/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const msgUnauthorized = "Erreur : vous n'avez pas les droits pour cette commande."

// RegisterAdminHandlers registers the operator commands. Only the configured
// admin may use them.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, baseLogger *logrus.Entry) {
	b.Handle("/start", func(c telebot.Context) error {
		return c.Send(helpText())
	})
	b.Handle("/help", func(c telebot.Context) error {
		return c.Send(helpText())
	})

	b.Handle("/status", func(c telebot.Context) error {
		handlerLogger := commandLogger(baseLogger, "/status", c)
		statuses, err := adminService.Status(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, handlerLogger, err, "Impossible de calculer l'état des périodes")
		}
		handlerLogger.WithField("periods", len(statuses)).Info("Status sent")
		return c.Send(FormatStatus(statuses))
	})

	b.Handle("/dry_run", func(c telebot.Context) error {
		handlerLogger := commandLogger(baseLogger, "/dry_run", c)
		summary, err := adminService.DryRun(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, handlerLogger, err, "Le dry run a échoué")
		}
		handlerLogger.WithField("run_id", summary.RunID).Info("Dry run completed")
		return c.Send(FormatTickSummary(summary))
	})

	b.Handle("/generate_period", func(c telebot.Context) error {
		handlerLogger := commandLogger(baseLogger, "/generate_period", c)
		res, err := adminService.GeneratePeriod(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, handlerLogger, err, "La génération de période a échoué")
		}
		handlerLogger.WithFields(logrus.Fields{"created": res.Created, "label": res.Label}).Info("Lifecycle run completed")
		return c.Send(FormatLifecycleResult(res))
	})
}

func commandLogger(base *logrus.Entry, command string, c telebot.Context) *logrus.Entry {
	l := base.WithFields(logrus.Fields{
		"handler":   command,
		"sender_id": c.Sender().ID,
	})
	l.Info("Command received")
	return l
}

func replyError(c telebot.Context, l *logrus.Entry, err error, what string) error {
	if errors.Is(err, app.ErrAdminNotAuthorized) {
		l.Warn("Unauthorized access attempt")
		return c.Send(msgUnauthorized)
	}
	l.WithError(err).Error(what)
	return c.Send(fmt.Sprintf("%s : %s", what, err.Error()))
}

func helpText() string {
	return strings.Join([]string{
		"Commandes disponibles :",
		"/status - état des périodes ouvertes",
		"/dry_run - rappels qui partiraient maintenant (aucun envoi)",
		"/generate_period - créer la prochaine période si elle est due",
	}, "\n")
}

// FormatStatus renders the per-period status list.
func FormatStatus(statuses []app.PeriodStatus) string {
	if len(statuses) == 0 {
		return "Aucune période ouverte."
	}
	var b strings.Builder
	for _, st := range statuses {
		fmt.Fprintf(&b, "--- %s (id %d) ---\n", st.Label, st.PeriodID)
		if st.AvailDeadline != nil {
			fmt.Fprintf(&b, "Date limite : %s\n", st.AvailDeadline.UTC().Format("2006-01-02 15:04 UTC"))
		} else {
			b.WriteString("Date limite : non définie\n")
		}
		fmt.Fprintf(&b, "Médecins en attente : %d / %d\n", st.DoctorsPending, st.DoctorsTotal)
		if len(st.DueKinds) > 0 {
			kinds := make([]string, len(st.DueKinds))
			for i, k := range st.DueKinds {
				kinds[i] = string(k)
			}
			fmt.Fprintf(&b, "Rappels dus : %s\n", strings.Join(kinds, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatLifecycleResult renders one lifecycle run.
func FormatLifecycleResult(res *app.LifecycleResult) string {
	switch {
	case res.Created:
		return fmt.Sprintf("Période %s créée avec %d créneaux.", res.Label, res.SlotsCreated)
	case res.Repaired:
		return fmt.Sprintf("Période %s complétée avec %d créneaux.", res.Label, res.SlotsCreated)
	case res.Note != "":
		return "Rien à faire : " + res.Note + "."
	case res.Label != "":
		return fmt.Sprintf("La période %s existe déjà.", res.Label)
	default:
		return "Aucune période à créer pour le moment."
	}
}
