package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dice-prediction-backend/internal/models"
)

// Metrics collects the bet and history counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	rounds            *prometheus.CounterVec
	validationErrors  *prometheus.CounterVec
	submissionErrors  *prometheus.CounterVec
	confirmation      prometheus.Histogram
	reconciliations   *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	quarantined       *prometheus.CounterVec
	timestampFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dice",
			Name:      "rounds_total",
			Help:      "Bet rounds by terminal status.",
		}, []string{"status"}),
		validationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dice",
			Name:      "validation_errors_total",
			Help:      "Bets refused before submission, by code.",
		}, []string{"code"}),
		submissionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dice",
			Name:      "submission_errors_total",
			Help:      "Failed bet transactions, by code.",
		}, []string{"code"}),
		confirmation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dice",
			Name:      "bet_confirmation_seconds",
			Help:      "Time from submission to confirmed result.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dice",
			Name:      "reconciliations_total",
			Help:      "History reconciliations by result.",
		}, []string{"result"}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dice",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of a full history reconciliation.",
			Buckets:   prometheus.DefBuckets,
		}),
		quarantined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dice",
			Name:      "quarantined_events_total",
			Help:      "GamePlayed entries excluded from history, by reason.",
		}, []string{"reason"}),
		timestampFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dice",
			Name:      "timestamp_failures_total",
			Help:      "Block timestamp lookups that failed.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.rounds,
			m.validationErrors,
			m.submissionErrors,
			m.confirmation,
			m.reconciliations,
			m.reconcileDuration,
			m.quarantined,
			m.timestampFailures,
		)
	}

	return m
}

func (m *Metrics) roundFinished(round models.GameRound) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues(string(round.Status)).Inc()
	if round.Error == nil {
		return
	}
	switch round.Error.Kind {
	case models.KindValidation:
		m.validationErrors.WithLabelValues(string(round.Error.Code)).Inc()
	default:
		m.submissionErrors.WithLabelValues(string(round.Error.Code)).Inc()
	}
}

func (m *Metrics) betConfirmed(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.confirmation.Observe(elapsed.Seconds())
}

func (m *Metrics) reconciled(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(result).Inc()
	m.reconcileDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) eventQuarantined(reason string) {
	if m == nil {
		return
	}
	m.quarantined.WithLabelValues(reason).Inc()
}

func (m *Metrics) timestampFailed() {
	if m == nil {
		return
	}
	m.timestampFailures.Inc()
}
