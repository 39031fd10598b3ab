package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/fieldwork-scheduler/internal/audit"
	"github.com/example/fieldwork-scheduler/internal/messaging"
	"github.com/example/fieldwork-scheduler/internal/persistence"
)

// DeliveryStore persists delivery outcomes.
type DeliveryStore interface {
	AppendDelivery(ctx context.Context, record DeliveryRecord) (DeliveryRecord, error)
	TouchTemplate(ctx context.Context, id string, at time.Time) error
}

// Deliverer sends a message and records the attempt.
type Deliverer interface {
	Deliver(ctx context.Context, delivery Delivery) (DeliveryRecord, error)
}

// DispatcherConfig tunes outbound delivery.
type DispatcherConfig struct {
	// Timeout bounds each channel attempt. Zero means no timeout.
	Timeout time.Duration
	// RatePerSecond throttles outbound sends. Zero or negative disables throttling.
	RatePerSecond float64
	Burst         int
	// Recipients receives operational alerts.
	Recipients []string
	// Location formats times in alert bodies.
	Location *time.Location
}

// Dispatcher sends messages over the primary channel with an SMTP fallback
// and records every attempt.
type Dispatcher struct {
	primary   messaging.Sender
	secondary messaging.Sender
	store     DeliveryStore
	audit     AuditRecorder
	limiter   *rate.Limiter
	cfg       DispatcherConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewDispatcher constructs a dispatcher. primary may be nil when no identity-bound channel is configured.
func NewDispatcher(primary, secondary messaging.Sender, store DeliveryStore, recorder AuditRecorder, cfg DispatcherConfig, now func() time.Time) *Dispatcher {
	return NewDispatcherWithLogger(primary, secondary, store, recorder, cfg, now, nil)
}

// NewDispatcherWithLogger constructs a dispatcher with a specified logger.
func NewDispatcherWithLogger(primary, secondary messaging.Sender, store DeliveryStore, recorder AuditRecorder, cfg DispatcherConfig, now func() time.Time, logger *slog.Logger) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Dispatcher{
		primary:   primary,
		secondary: secondary,
		store:     store,
		audit:     recorder,
		limiter:   rate.NewLimiter(limit, burst),
		cfg:       cfg,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

func (d *Dispatcher) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, d.logger, "Dispatcher", operation, attrs...)
}

// OperationsRecipients returns the addresses that receive operational alerts.
func (d *Dispatcher) OperationsRecipients() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.cfg.Recipients...)
}

// Deliver sends delivery.Message, preferring the primary channel when asked
// and falling back to SMTP. The outcome is recorded whether or not sending
// succeeded. The returned error is a *DeliveryError when every channel failed.
func (d *Dispatcher) Deliver(ctx context.Context, delivery Delivery) (record DeliveryRecord, err error) {
	if d == nil {
		err = fmt.Errorf("Dispatcher is nil")
		return
	}

	logger := d.loggerWith(ctx, "Deliver",
		"kind", string(delivery.Kind),
		"rule_id", delivery.RuleID,
		"booking_id", delivery.BookingID,
	)

	if err = delivery.Message.Validate(); err != nil {
		err = &DeliveryError{Channel: "none", Err: err}
		logger.ErrorContext(ctx, "delivery rejected", "error", err, "error_kind", ErrorKind(err))
		return
	}

	channel, sendErr := d.send(ctx, logger, delivery)

	record = DeliveryRecord{
		Kind:        delivery.Kind,
		RuleID:      delivery.RuleID,
		TemplateID:  delivery.TemplateID,
		BookingID:   delivery.BookingID,
		TriggerDate: delivery.TriggerDate,
		Recipient:   strings.Join(delivery.Message.To, ","),
		Subject:     delivery.Message.Subject,
		Channel:     channel,
		Status:      DeliverySent,
		SentAt:      d.now(),
	}
	if sendErr != nil {
		record.Status = DeliveryFailed
		record.Error = sendErr.Error()
	}

	if delivery.TemplateID != "" {
		if touchErr := d.store.TouchTemplate(ctx, delivery.TemplateID, record.SentAt); touchErr != nil {
			logger.WarnContext(ctx, "failed to update template last used", "template_id", delivery.TemplateID, "error", touchErr)
		}
	}

	stored, appendErr := d.store.AppendDelivery(ctx, record)
	switch {
	case appendErr == nil:
		record = stored
	case errors.Is(appendErr, persistence.ErrDuplicate):
		logger.WarnContext(ctx, "delivery already recorded as sent", "trigger_date", delivery.TriggerDate)
	default:
		logger.ErrorContext(ctx, "failed to record delivery", "error", appendErr, "error_kind", ErrorKind(mapRepoError("append delivery", appendErr)))
	}

	actor := delivery.Actor
	if actor == "" {
		actor = audit.SystemActor
	}
	if d.audit != nil {
		entry := audit.Entry{
			Action:      audit.ActionEmailSent,
			Actor:       actor,
			EntityID:    delivery.BookingID,
			EntityLabel: delivery.Message.Subject,
			Details: map[string]any{
				"kind":      string(delivery.Kind),
				"rule_id":   delivery.RuleID,
				"recipient": record.Recipient,
				"status":    string(record.Status),
				"channel":   channel,
			},
		}
		if record.Error != "" {
			entry.Details["error"] = record.Error
		}
		if auditErr := d.audit.Record(ctx, entry); auditErr != nil {
			logger.WarnContext(ctx, "failed to record audit entry", "action", entry.Action, "error", auditErr)
		}
	}

	if sendErr != nil {
		err = sendErr
		logger.ErrorContext(ctx, "delivery failed", "channel", channel, "error", err, "error_kind", ErrorKind(err))
		return
	}
	logger.InfoContext(ctx, "message delivered", "channel", channel, "recipient", record.Recipient)
	return
}

// send returns the channel that produced the final outcome.
func (d *Dispatcher) send(ctx context.Context, logger *slog.Logger, delivery Delivery) (string, error) {
	if delivery.PreferPrimary && d.primary != nil {
		err := d.attempt(ctx, ChannelGraph, d.primary, delivery.Message)
		if err == nil {
			return ChannelGraph, nil
		}
		logger.WarnContext(ctx, "primary channel failed, falling back", "error", err)
		if d.secondary == nil {
			return ChannelGraph, err
		}
	}
	if d.secondary == nil {
		return ChannelSMTP, &DeliveryError{Channel: ChannelSMTP, Err: errors.New("no channel configured")}
	}
	return ChannelSMTP, d.attempt(ctx, ChannelSMTP, d.secondary, delivery.Message)
}

func (d *Dispatcher) attempt(ctx context.Context, channel string, sender messaging.Sender, msg messaging.Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return &DeliveryError{Channel: channel, Err: err}
	}
	attemptCtx := ctx
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}
	if err := sender.Send(attemptCtx, msg); err != nil {
		return &DeliveryError{Channel: channel, Err: err}
	}
	return nil
}

// NotifyConflict sends a conflict alert for a rejected booking to the operations recipients.
func (d *Dispatcher) NotifyConflict(ctx context.Context, alert ConflictAlert) error {
	if d == nil {
		return fmt.Errorf("Dispatcher is nil")
	}
	if len(d.cfg.Recipients) == 0 {
		d.loggerWith(ctx, "NotifyConflict").DebugContext(ctx, "no operations recipients configured, skipping conflict alert")
		return nil
	}

	const layout = "2006-01-02 15:04"
	parts := make([]string, 0, len(alert.Conflicts))
	for _, c := range alert.Conflicts {
		parts = append(parts, fmt.Sprintf("%s (%s, %s to %s)",
			c.JobName, c.Type,
			c.Start.In(d.cfg.Location).Format(layout),
			c.End.In(d.cfg.Location).Format(layout),
		))
	}

	_, err := d.Deliver(ctx, Delivery{
		Kind: DeliveryKindConflict,
		Message: messaging.Message{
			Subject: "Schedule Conflict Alert: " + alert.JobName,
			Body: fmt.Sprintf("Cannot schedule '%s' from %s to %s due to conflicts: %s",
				alert.JobName,
				alert.Start.In(d.cfg.Location).Format(layout),
				alert.End.In(d.cfg.Location).Format(layout),
				strings.Join(parts, "; "),
			),
			To: d.OperationsRecipients(),
		},
	})
	return err
}
