// Package metrics exposes Prometheus collectors for the metering and access
// decisions made on every public chat request.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatpilot"

// Decision outcome labels.
const (
	ResultAllowed      = "allowed"
	ResultDenied       = "denied"
	ResultError        = "error"
	ResultConsumed     = "consumed"
	ResultOutOfCredits = "out_of_credits"
	ResultContention   = "contention"
)

var (
	// AccessDecisions counts origin gate outcomes.
	AccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_decisions_total",
		Help:      "Bot access validation outcomes.",
	}, []string{"result"})

	// RateLimitDecisions counts fixed-window limiter outcomes.
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_decisions_total",
		Help:      "Per-bot per-IP rate limiter outcomes.",
	}, []string{"result"})

	// CreditDebits counts ledger debit outcomes.
	CreditDebits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credit_debits_total",
		Help:      "Credit ledger debit outcomes.",
	}, []string{"result"})

	// CreditCASConflicts counts compare-and-swap attempts lost to a concurrent writer.
	CreditCASConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credit_cas_conflicts_total",
		Help:      "Credit balance updates that lost the race and were retried.",
	})

	// JournalFailures counts credit transaction rows that could not be written.
	JournalFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credit_journal_failures_total",
		Help:      "Best-effort credit journal appends that failed.",
	})

	// HTTPRequests counts served requests by route template and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency by route template.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
