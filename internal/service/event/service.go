package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
	"github.com/jwalitptl/clinic-identity/pkg/messaging"
	"github.com/jwalitptl/clinic-identity/pkg/metrics"
)

const (
	DefaultChannel = "appointment-events"
	publishTimeout = 3 * time.Second
)

// Notifier hands lifecycle events to the notification collaborator.
// Delivery is its concern; Notify never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, event *model.LifecycleEvent)
}

type BrokerNotifier struct {
	broker  messaging.Broker
	channel string
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewBrokerNotifier(broker messaging.Broker, channel string, m *metrics.Metrics, log *logger.Logger) *BrokerNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &BrokerNotifier{
		broker:  broker,
		channel: channel,
		metrics: m,
		log:     log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
}

func (n *BrokerNotifier) Notify(ctx context.Context, event *model.LifecycleEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	// The request may finish before the broker answers.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	msg := messaging.Message{Type: string(event.Type), Payload: event}
	if err := n.broker.Publish(ctx, n.channel, msg); err != nil {
		n.metrics.NotificationsFailed.Inc()
		n.log.Error(err, "lifecycle event not published",
			"event_id", event.ID.String(),
			"event_type", string(event.Type),
			"clinic_id", event.ClinicID.String(),
		)
		return
	}
	n.metrics.NotificationsPublished.Inc()
}

// NopNotifier drops events. Used when no broker is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *model.LifecycleEvent) {}

// Title and message texts for the notification collaborator.
func CreatedText(a *model.Appointment) (title, message string) {
	return "Appointment booked",
		fmt.Sprintf("Appointment on %s is booked and awaiting confirmation.", a.ScheduledAt.Format("2006-01-02 15:04"))
}

func StatusChangedText(a *model.Appointment, from model.AppointmentStatus) (title, message string) {
	switch a.Status {
	case model.AppointmentStatusConfirmed:
		title = "Appointment confirmed"
	case model.AppointmentStatusCompleted:
		title = "Appointment completed"
	case model.AppointmentStatusCancelled:
		title = "Appointment cancelled"
	default:
		title = "Appointment updated"
	}
	message = fmt.Sprintf("Appointment on %s changed from %s to %s.", a.ScheduledAt.Format("2006-01-02 15:04"), from, a.Status)
	if a.Status == model.AppointmentStatusCancelled && a.SuggestedAt != nil {
		message += fmt.Sprintf(" Suggested new time: %s.", a.SuggestedAt.Format("2006-01-02 15:04"))
	}
	return title, message
}
