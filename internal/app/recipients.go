// internal/app/recipients.go
package app

import (
	"context"
	"fmt"
	"strings"

	"oncall_reminder_engine/internal/domain/doctor"

	"github.com/sirupsen/logrus"
)

// RecipientResolver computes the doctors who still must act for a period.
type RecipientResolver interface {
	Resolve(ctx context.Context, periodID int64) ([]doctor.Recipient, error)
}

// RecipientSource is one lookup strategy.
type RecipientSource interface {
	Name() string
	Recipients(ctx context.Context, periodID int64) ([]doctor.Recipient, error)
}

type viewSource struct{ q doctor.RecipientQueries }

func (viewSource) Name() string { return "aggregate_view" }
func (s viewSource) Recipients(ctx context.Context, periodID int64) ([]doctor.Recipient, error) {
	return s.q.PendingFromView(ctx, periodID)
}

type monthsSource struct{ q doctor.RecipientQueries }

func (monthsSource) Name() string { return "month_rows" }
func (s monthsSource) Recipients(ctx context.Context, periodID int64) ([]doctor.Recipient, error) {
	return s.q.PendingFromMonths(ctx, periodID)
}

// FallbackResolver tries the primary source and falls back when it yields
// nothing. Preferring the primary is a non-emptiness heuristic: an empty
// primary cannot be told apart from a stale one, so "everyone is done" also
// goes through the fallback.
type FallbackResolver struct {
	primary  RecipientSource
	fallback RecipientSource
	logger   *logrus.Entry
}

func NewFallbackResolver(primary, fallback RecipientSource, logger *logrus.Entry) *FallbackResolver {
	return &FallbackResolver{primary: primary, fallback: fallback, logger: logger}
}

// NewRecipientResolver uses the aggregate view first and the month rows as
// the fallback.
func NewRecipientResolver(q doctor.RecipientQueries, logger *logrus.Entry) *FallbackResolver {
	return NewFallbackResolver(viewSource{q}, monthsSource{q}, logger)
}

// Resolve returns recipients in source order, deduplicated by identity and
// without unusable addresses. A primary error is logged and the fallback
// tried; a fallback error is returned.
func (r *FallbackResolver) Resolve(ctx context.Context, periodID int64) ([]doctor.Recipient, error) {
	log := r.logger.WithField("period_id", periodID)

	primary, err := r.primary.Recipients(ctx, periodID)
	if err != nil {
		log.WithError(err).WithField("source", r.primary.Name()).Warn("Primary recipient source failed, using fallback")
	} else if cleaned := cleanRecipients(primary); len(cleaned) > 0 {
		log.WithFields(logrus.Fields{"source": r.primary.Name(), "count": len(cleaned)}).Debug("Recipients resolved")
		return cleaned, nil
	}

	fallback, err := r.fallback.Recipients(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients for period %d: %w", periodID, err)
	}
	cleaned := cleanRecipients(fallback)
	log.WithFields(logrus.Fields{"source": r.fallback.Name(), "count": len(cleaned)}).Info("Recipients resolved from fallback")
	return cleaned, nil
}

func cleanRecipients(in []doctor.Recipient) []doctor.Recipient {
	out := make([]doctor.Recipient, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, rc := range in {
		rc.Email = strings.TrimSpace(rc.Email)
		if rc.Email == "" {
			continue
		}
		id := rc.UserID
		if id == "" {
			id = strings.ToLower(rc.Email)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, rc)
	}
	return out
}
