// Package metrics exposes Prometheus instruments for the registry. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for registration attempts.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeClosed    = "closed"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
)

// Metrics holds the registry's counters and histograms.
type Metrics struct {
	Registrations        *prometheus.CounterVec
	RegistrationDuration prometheus.Histogram
	VotesMarked          prometheus.Counter
	AlreadyConfirmed     prometheus.Counter
	Logins               *prometheus.CounterVec
	StoreUpdateDuration  prometheus.Histogram
	EventsPublished      *prometheus.CounterVec
}

// New registers all instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		RegistrationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_registration_duration_seconds",
			Help:    "Duration of successful registrations including card rendering",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		VotesMarked: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_votes_marked_total",
			Help: "Voters transitioned to confirmed",
		}),
		AlreadyConfirmed: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_already_confirmed_total",
			Help: "Scans of voters that had already voted",
		}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_logins_total",
			Help: "Staff login attempts by result",
		}, []string{"result"}),
		StoreUpdateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_store_update_duration_seconds",
			Help:    "Duration of document read-modify-write cycles",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_events_published_total",
			Help: "Lifecycle events handed to the broker by result",
		}, []string{"result"}),
	}
}

// Registration records the outcome of a registration attempt.
func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcome).Inc()
}

// ObserveRegistration records the duration of a registration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegistration(start time.Time) {
	if m == nil {
		return
	}
	m.RegistrationDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) VoteMarked() {
	if m == nil {
		return
	}
	m.VotesMarked.Inc()
}

func (m *Metrics) AlreadyVoted() {
	if m == nil {
		return
	}
	m.AlreadyConfirmed.Inc()
}

// Login records a login attempt; result is "ok", "invalid" or "limited".
func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

// ObserveStoreUpdate records the duration of a store Update.
func (m *Metrics) ObserveStoreUpdate(start time.Time) {
	if m == nil {
		return
	}
	m.StoreUpdateDuration.Observe(time.Since(start).Seconds())
}

// EventPublished records a publish attempt; result is "ok", "error" or "dropped".
func (m *Metrics) EventPublished(result string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(result).Inc()
}
