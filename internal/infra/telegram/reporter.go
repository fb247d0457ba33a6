package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"oncall_reminder_engine/internal/app"

	"github.com/sirupsen/logrus"
)

// maxReportedErrors caps the error lines of one chat report.
const maxReportedErrors = 10

// RunReporter posts a short report of every real tick that sent something or
// hit errors to the admin chat.
type RunReporter struct {
	sender Sender
	chatID int64
	logger *logrus.Entry
}

func NewRunReporter(sender Sender, chatID int64, logger *logrus.Entry) *RunReporter {
	return &RunReporter{sender: sender, chatID: chatID, logger: logger}
}

func (r *RunReporter) ReportTick(_ context.Context, summary *app.TickSummary) {
	if summary.DryRun || (summary.SentCount == 0 && len(summary.Errors) == 0) {
		return
	}
	if err := r.sender.SendMessage(r.chatID, FormatTickSummary(summary), nil); err != nil {
		r.logger.WithError(err).WithField("run_id", summary.RunID).Warn("Failed to post tick report")
	}
}

// FormatTickSummary renders a tick summary as plain text.
func FormatTickSummary(s *app.TickSummary) string {
	var b strings.Builder
	mode := "Tick"
	if s.DryRun {
		mode = "Dry run"
	}
	fmt.Fprintf(&b, "%s %s (%s)\n", mode, s.RunID, s.Now.Format("2006-01-02 15:04 MST"))
	if s.Note != "" {
		fmt.Fprintf(&b, "%s\n", s.Note)
	}
	labels := make([]string, 0, len(s.DueKinds))
	for label := range s.DueKinds {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		kinds := make([]string, 0, len(s.DueKinds[label]))
		for _, k := range s.DueKinds[label] {
			kinds = append(kinds, string(k))
		}
		fmt.Fprintf(&b, "• %s: %s\n", label, strings.Join(kinds, ", "))
	}
	fmt.Fprintf(&b, "Destinataires: %d, envoyés: %d, ignorés: %d, échecs: %d\n",
		s.RecipientsConsidered, s.SentCount, s.SkippedCount, s.FailedCount)

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "Erreurs (%d):\n", len(s.Errors))
		for i, e := range s.Errors {
			if i == maxReportedErrors {
				fmt.Fprintf(&b, "… et %d autres\n", len(s.Errors)-maxReportedErrors)
				break
			}
			fmt.Fprintf(&b, "- [%s] %s\n", e.Stage, describeError(e))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeError(e app.TickError) string {
	var parts []string
	if e.PeriodID != 0 {
		parts = append(parts, fmt.Sprintf("période %d", e.PeriodID))
	}
	if e.Kind != "" {
		parts = append(parts, string(e.Kind))
	}
	if e.Target != "" {
		parts = append(parts, e.Target)
	}
	if len(parts) == 0 {
		return e.Message
	}
	return strings.Join(parts, " ") + ": " + e.Message
}
