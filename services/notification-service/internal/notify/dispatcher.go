package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/clinicbook/clinicbook/libs/db"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/email"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/outbox"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/sms"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/storage"
)

// Dispatcher turns booking domain events into email/SMS deliveries. Every
// attempt lands in the notifications log; the aggregate outcome goes back out
// through the outbox as notification.sent.v1 or notification.failed.v1.
// Delivery errors are logged, never returned: a bounced email must not stall
// the consumer.
type Dispatcher struct {
	pool    *db.Pool
	log     *storage.Repository
	outbox  *outbox.Repository
	email   email.Sender
	sms     sms.Sender
	logger  *slog.Logger
	baseURL string
}

func NewDispatcher(pool *db.Pool, logRepo *storage.Repository, outboxRepo *outbox.Repository, emailSender email.Sender, smsSender sms.Sender, logger *slog.Logger, baseURL string) *Dispatcher {
	return &Dispatcher{
		pool:    pool,
		log:     logRepo,
		outbox:  outboxRepo,
		email:   emailSender,
		sms:     smsSender,
		logger:  logger,
		baseURL: baseURL,
	}
}

// delivery is one rendered message ready for both channels.
type delivery struct {
	eventType      string
	aggregateID    string
	professionalID string
	emailTo        string
	phoneTo        string
	subject        string
	emailBody      string
	smsBody        string
	payload        map[string]any
}

func (d *Dispatcher) HandleBooked(ctx context.Context, msg kafka.Message) error {
	var e BookedEvent
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		d.logger.Error("invalid booked payload", "err", err)
		return nil
	}
	if e.AppointmentID == "" {
		d.logger.Error("booked event missing appointment_id")
		return nil
	}
	return d.deliver(ctx, delivery{
		eventType:      msg.Topic,
		aggregateID:    e.AppointmentID,
		professionalID: e.ProfessionalID,
		emailTo:        e.PatientEmail,
		phoneTo:        e.PatientPhone,
		subject:        BookedSubject(),
		emailBody:      BookedBody(e),
		smsBody:        BookedSMS(e),
		payload:        eventPayload(msg.Value),
	})
}

func (d *Dispatcher) HandleCancelled(ctx context.Context, msg kafka.Message) error {
	var e CancelledEvent
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		d.logger.Error("invalid cancelled payload", "err", err)
		return nil
	}
	if e.AppointmentID == "" {
		d.logger.Error("cancelled event missing appointment_id")
		return nil
	}
	return d.deliver(ctx, delivery{
		eventType:      msg.Topic,
		aggregateID:    e.AppointmentID,
		professionalID: e.ProfessionalID,
		emailTo:        e.PatientEmail,
		phoneTo:        e.PatientPhone,
		subject:        CancelledSubject(),
		emailBody:      CancelledBody(e),
		smsBody:        CancelledSMS(e),
		payload:        eventPayload(msg.Value),
	})
}

func (d *Dispatcher) HandleOffer(ctx context.Context, msg kafka.Message) error {
	var e OfferEvent
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		d.logger.Error("invalid offer payload", "err", err)
		return nil
	}
	if e.EntryID == "" || e.Token == "" {
		d.logger.Error("offer event missing entry_id or token")
		return nil
	}
	return d.deliver(ctx, delivery{
		eventType:      msg.Topic,
		aggregateID:    e.EntryID,
		professionalID: e.ProfessionalID,
		emailTo:        e.Email,
		phoneTo:        e.Phone,
		subject:        OfferSubject(),
		emailBody:      OfferBody(e, d.baseURL),
		smsBody:        OfferSMS(e),
		payload:        eventPayload(msg.Value),
	})
}

func (d *Dispatcher) deliver(ctx context.Context, dv delivery) error {
	sentAny := false
	var failure string

	if strings.TrimSpace(dv.emailTo) != "" {
		status, reason := "sent", ""
		if err := d.email.Send(dv.emailTo, dv.subject, dv.emailBody); err != nil {
			status, reason = "failed", err.Error()
			failure = reason
			d.logger.Error("email send failed", "err", err, "recipient", dv.emailTo)
		} else {
			sentAny = true
		}
		if err := d.logAttempt(ctx, dv, "email", dv.emailTo, status, reason); err != nil {
			return err
		}
	}
	if strings.TrimSpace(dv.phoneTo) != "" {
		status, reason := "sent", ""
		if err := d.sms.Send(ctx, dv.phoneTo, dv.smsBody); err != nil {
			status, reason = "failed", err.Error()
			failure = reason
			d.logger.Error("sms send failed", "err", err, "recipient", dv.phoneTo)
		} else {
			sentAny = true
		}
		if err := d.logAttempt(ctx, dv, "sms", dv.phoneTo, status, reason); err != nil {
			return err
		}
	}

	if sentAny {
		return d.writeOutcome(ctx, dv, outbox.TopicNotificationSent, "")
	}
	if failure == "" {
		failure = "no reachable recipient"
	}
	return d.writeOutcome(ctx, dv, outbox.TopicNotificationFailed, failure)
}

func (d *Dispatcher) logAttempt(ctx context.Context, dv delivery, channel, recipient, status, reason string) error {
	return d.log.Insert(ctx, storage.Notification{
		EventType:      dv.eventType,
		AggregateID:    dv.aggregateID,
		ProfessionalID: dv.professionalID,
		Channel:        channel,
		Recipient:      recipient,
		Payload:        dv.payload,
		Status:         status,
		FailureReason:  reason,
	})
}

func (d *Dispatcher) writeOutcome(ctx context.Context, dv delivery, topic, reason string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fields := map[string]any{
		"event_type":      dv.eventType,
		"aggregate_id":    dv.aggregateID,
		"professional_id": dv.professionalID,
		"at":              time.Now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		fields["error_reason"] = reason
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if err := d.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   dv.aggregateID,
		EventType:     topic,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func eventPayload(raw []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
