package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics holds the Prometheus collectors for the fundraising services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ProjectsCreated        prometheus.Counter
	ProjectTransitions     *prometheus.CounterVec
	DonationsCreated       *prometheus.CounterVec
	DonationTransitions    *prometheus.CounterVec
	DonorsCreated          prometheus.Counter
	DraftsStarted          prometheus.Counter
	WizardSteps            *prometheus.CounterVec
	WizardAbandoned        prometheus.Counter
	VerificationResends    *prometheus.CounterVec
	NotificationFailures   *prometheus.CounterVec
	RecomputeRetries       *prometheus.CounterVec
	AggregateRecomputeTime prometheus.Histogram
	FinalizeDuration       prometheus.Histogram
	HTTPRequestDuration    *prometheus.HistogramVec
}

// New registers all collectors on reg. Passing nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ProjectsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "fundly_projects_created_total",
			Help: "Total number of projects created",
		}),
		ProjectTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fundly_project_transitions_total",
			Help: "Project status transitions by source and target status",
		}, []string{"from", "to"}),
		DonationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fundly_donations_created_total",
			Help: "Donations recorded by payment method",
		}, []string{"method"}),
		DonationTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fundly_donation_transitions_total",
			Help: "Donation status transitions by target status",
		}, []string{"to"}),
		DonorsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "fundly_donors_created_total",
			Help: "Total number of donor records created on first donation",
		}),
		DraftsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "fundly_drafts_started_total",
			Help: "Donation drafts started",
		}),
		WizardSteps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fundly_wizard_steps_total",
			Help: "Completed donation wizard steps",
		}, []string{"step"}),
		WizardAbandoned: f.NewCounter(prometheus.CounterOpts{
			Name: "fundly_wizard_abandoned_total",
			Help: "Donation drafts discarded before finalization",
		}),
		VerificationResends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fundly_verification_resends_total",
			Help: "Verification code resend attempts by outcome",
		}, []string{"outcome"}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fundly_notification_failures_total",
			Help: "Notifications that could not be delivered",
		}, []string{"sink"}),
		RecomputeRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fundly_recompute_retries_total",
			Help: "Aggregate recompute attempts that had to be retried",
		}, []string{"aggregate"}),
		AggregateRecomputeTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundly_aggregate_recompute_duration_seconds",
			Help:    "Duration of project and donor aggregate recomputation",
			Buckets: durationBuckets,
		}),
		FinalizeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundly_wizard_finalize_duration_seconds",
			Help:    "Duration of wizard finalization",
			Buckets: durationBuckets,
		}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundly_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route pattern and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncrementProjectsCreated() {
	if m == nil {
		return
	}
	m.ProjectsCreated.Inc()
}

func (m *Metrics) IncrementProjectTransition(from, to string) {
	if m == nil {
		return
	}
	m.ProjectTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementDonationsCreated(method string) {
	if m == nil {
		return
	}
	m.DonationsCreated.WithLabelValues(method).Inc()
}

func (m *Metrics) IncrementDonationTransition(to string) {
	if m == nil {
		return
	}
	m.DonationTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) IncrementDonorsCreated() {
	if m == nil {
		return
	}
	m.DonorsCreated.Inc()
}

func (m *Metrics) IncrementDraftsStarted() {
	if m == nil {
		return
	}
	m.DraftsStarted.Inc()
}

func (m *Metrics) IncrementRecomputeRetry(aggregate string) {
	if m == nil {
		return
	}
	m.RecomputeRetries.WithLabelValues(aggregate).Inc()
}

func (m *Metrics) IncrementWizardStep(step string) {
	if m == nil {
		return
	}
	m.WizardSteps.WithLabelValues(step).Inc()
}

func (m *Metrics) IncrementWizardAbandoned() {
	if m == nil {
		return
	}
	m.WizardAbandoned.Inc()
}

func (m *Metrics) IncrementVerificationResend(outcome string) {
	if m == nil {
		return
	}
	m.VerificationResends.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementNotificationFailure(sink string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(sink).Inc()
}

// ObserveRecompute records the duration of an aggregate recomputation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRecompute(start time.Time) {
	if m == nil {
		return
	}
	m.AggregateRecomputeTime.Observe(time.Since(start).Seconds())
}

// ObserveFinalize records the duration of a wizard finalization.
func (m *Metrics) ObserveFinalize(start time.Time) {
	if m == nil {
		return
	}
	m.FinalizeDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
