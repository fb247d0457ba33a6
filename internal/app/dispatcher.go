// internal/app/dispatcher.go
package app

import (
	"context"
	"errors"
	"fmt"

	"oncall_reminder_engine/internal/domain/doctor"
	"oncall_reminder_engine/internal/domain/mail"
	"oncall_reminder_engine/internal/domain/reminder"

	"github.com/sirupsen/logrus"
)

// DefaultMaxSendAttempts bounds retries of a throttled message.
const DefaultMaxSendAttempts = 3

// Pacer enforces the transport's sending rate.
type Pacer interface {
	// Wait blocks until the next send is allowed.
	Wait(ctx context.Context) error
	// Backoff sleeps before retry number attempt+1 of a throttled message.
	Backoff(ctx context.Context, attempt int) error
}

// Delivery is one (recipient, message) pair of a batch.
type Delivery struct {
	Key       reminder.EventKey
	Recipient doctor.Recipient
	Message   mail.Message
	Meta      map[string]any
}

// Outcome of one delivery.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeSkipped     Outcome = "skipped"      // ledger already has the tuple
	OutcomeFailed      Outcome = "failed"       // permanent transport failure
	OutcomeThrottled   Outcome = "throttled"    // retries exhausted, claim released
	OutcomeLedgerError Outcome = "ledger_error" // claim failed, send not attempted
	OutcomeUnconfirmed Outcome = "unconfirmed"  // sent but the ledger row could not be completed
	OutcomeCancelled   Outcome = "cancelled"
)

// DeliveryResult reports what happened to one delivery.
type DeliveryResult struct {
	Key      reminder.EventKey
	Outcome  Outcome
	Attempts int
	Err      error
}

// BatchResult aggregates a Dispatch call.
type BatchResult struct {
	Results []DeliveryResult
	Sent    int
	Skipped int
	Failed  int
}

func (b *BatchResult) add(r DeliveryResult) {
	b.Results = append(b.Results, r)
	switch r.Outcome {
	case OutcomeSent, OutcomeUnconfirmed:
		b.Sent++
	case OutcomeSkipped:
		b.Skipped++
	case OutcomeCancelled:
	default:
		b.Failed++
	}
}

// Dispatcher sends a batch strictly one message at a time, claiming each
// ledger tuple before the send so a delivery happens at most once.
type Dispatcher struct {
	transport   mail.Transport
	ledger      reminder.Ledger
	pacer       Pacer
	maxAttempts int
	logger      *logrus.Entry
}

func NewDispatcher(t mail.Transport, l reminder.Ledger, p Pacer, maxAttempts int, logger *logrus.Entry) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxSendAttempts
	}
	return &Dispatcher{
		transport:   t,
		ledger:      l,
		pacer:       p,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Dispatch processes deliveries in order. One recipient's failure never stops
// the batch; only ctx cancellation does, between deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []Delivery) BatchResult {
	var res BatchResult
	for i, del := range batch {
		if err := ctx.Err(); err != nil {
			d.logger.WithError(err).WithField("remaining", len(batch)-i).Warn("Dispatch cancelled, remaining deliveries left for next tick")
			for _, rest := range batch[i:] {
				res.add(DeliveryResult{Key: rest.Key, Outcome: OutcomeCancelled, Err: err})
			}
			return res
		}
		res.add(d.deliver(ctx, del))
	}
	return res
}

func (d *Dispatcher) deliver(ctx context.Context, del Delivery) DeliveryResult {
	log := d.logger.WithFields(logrus.Fields{
		"period_id":  del.Key.PeriodID,
		"kind":       del.Key.Kind,
		"window_key": del.Key.WindowKey,
		"target":     del.Key.Target,
	})
	result := DeliveryResult{Key: del.Key}

	sent, err := d.ledger.AlreadySent(ctx, del.Key)
	if err != nil {
		log.WithError(err).Error("Ledger lookup failed, send not attempted")
		result.Outcome = OutcomeLedgerError
		result.Err = fmt.Errorf("ledger lookup: %w", err)
		return result
	}
	if sent {
		log.Debug("Already sent, skipping")
		result.Outcome = OutcomeSkipped
		return result
	}

	claim, err := d.ledger.Claim(ctx, del.Key, del.Meta)
	switch claim {
	case reminder.AlreadyClaimed:
		log.Debug("Claimed by another run, skipping")
		result.Outcome = OutcomeSkipped
		return result
	case reminder.Claimed:
	default:
		log.WithError(err).Error("Ledger claim failed, send not attempted")
		result.Outcome = OutcomeLedgerError
		result.Err = fmt.Errorf("ledger claim: %w", err)
		return result
	}

	if err := d.pacer.Wait(ctx); err != nil {
		d.release(ctx, del.Key, log)
		result.Outcome = OutcomeCancelled
		result.Err = err
		return result
	}

	var sendErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		result.Attempts = attempt
		sendErr = d.transport.Send(ctx, del.Message)
		if sendErr == nil || !errors.Is(sendErr, mail.ErrThrottled) {
			break
		}
		log.WithField("attempt", attempt).Warn("Transport throttled")
		if attempt < d.maxAttempts {
			if err := d.pacer.Backoff(ctx, attempt); err != nil {
				break
			}
		}
	}

	meta := map[string]any{"attempts": result.Attempts}
	switch {
	case sendErr == nil:
		if err := d.ledger.Complete(ctx, del.Key, reminder.StatusSent, meta); err != nil {
			log.WithError(err).Error("Reminder sent but ledger row could not be completed")
			result.Outcome = OutcomeUnconfirmed
			result.Err = fmt.Errorf("ledger complete: %w", err)
			return result
		}
		log.WithField("attempts", result.Attempts).Info("Reminder sent")
		result.Outcome = OutcomeSent
	case errors.Is(sendErr, mail.ErrThrottled):
		log.WithError(sendErr).Error("Throttled on every attempt, releasing claim for a later tick")
		d.release(ctx, del.Key, log)
		result.Outcome = OutcomeThrottled
		result.Err = sendErr
	default:
		log.WithError(sendErr).Error("Failed to send reminder")
		meta["error"] = sendErr.Error()
		if err := d.ledger.Complete(ctx, del.Key, reminder.StatusFailed, meta); err != nil {
			log.WithError(err).Warn("Could not mark ledger row as failed")
		}
		result.Outcome = OutcomeFailed
		result.Err = sendErr
	}
	return result
}

func (d *Dispatcher) release(ctx context.Context, key reminder.EventKey, log *logrus.Entry) {
	// The claim must be released even when ctx is already cancelled.
	if err := d.ledger.Release(context.WithoutCancel(ctx), key); err != nil {
		log.WithError(err).Warn("Could not release ledger claim")
	}
}
