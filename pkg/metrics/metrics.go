package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Migration engine
	MigrationRecords  *prometheus.CounterVec
	MigrationDuration *prometheus.HistogramVec
	MigrationAborts   *prometheus.CounterVec

	// Appointment lifecycle
	AppointmentsCreated    *prometheus.CounterVec
	AppointmentTransitions *prometheus.CounterVec
	IdentityResolutions    *prometheus.CounterVec

	// Notification collaborator
	NotificationsPublished prometheus.Counter
	NotificationsFailed    prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// New creates all collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MigrationRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "records_total",
			Help:      "Records visited by migration batches, by entity and outcome",
		}, []string{"entity", "outcome"}),
		MigrationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "batch_duration_seconds",
			Help:      "Duration of complete migration runs",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"entity"}),
		MigrationAborts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "aborts_total",
			Help:      "Migration runs aborted because the store became unavailable",
		}, []string{"entity"}),

		AppointmentsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointment",
			Name:      "created_total",
			Help:      "Appointments created, by reference model written",
		}, []string{"model"}),
		AppointmentTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointment",
			Name:      "transitions_total",
			Help:      "Appointment status transitions, by target status and result",
		}, []string{"status", "result"}),
		IdentityResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "resolutions_total",
			Help:      "Identity references resolved, by role and source representation",
		}, []string{"role", "source"}),

		NotificationsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "published_total",
			Help:      "Lifecycle events handed to the notification collaborator",
		}),
		NotificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "failed_total",
			Help:      "Lifecycle events the notification collaborator rejected",
		}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
