package mailer

import (
	"context"

	"oncall_reminder_engine/internal/domain/mail"

	"github.com/sirupsen/logrus"
)

// LogTransport only logs messages. It is used when no email API key is set.
type LogTransport struct {
	logger *logrus.Entry
}

func NewLogTransport(logger *logrus.Entry) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, msg mail.Message) error {
	t.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
		"kind":    msg.Tags["kind"],
	}).Info("Email not sent (no transport configured)")
	return nil
}
