// Package metrics defines and registers all custom Prometheus metrics for the
// UAA service. It is the single source of truth for metric names, labels, and
// help strings.
//
// Metrics register with the default Prometheus registry on package init via
// promauto; the /metrics route exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uaa"

// ── Token metrics ─────────────────────────────────────────────────────────────

// TokensIssuedTotal counts token pairs issued.
// Label:
//   - reason: "login" or "refresh"
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_pairs_issued_total",
		Help:      "Total number of access/refresh token pairs issued.",
	},
	[]string{"reason"},
)

// VerificationsTotal counts verification outcomes.
// Labels:
//   - kind: expected token kind ("access", "refresh")
//   - result: "ok", "invalid_token", "unexpected_type", "session_not_found", "store_unavailable"
var VerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_verifications_total",
		Help:      "Total number of token verifications, by expected kind and result.",
	},
	[]string{"kind", "result"},
)

// VerificationDuration measures a verification from decode to session check.
var VerificationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "token_verification_duration_seconds",
		Help:      "Duration of token verification including the session check.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	},
	[]string{"kind"},
)

// IndexFallbacksTotal counts verifications answered by the durable store
// because the token index was unavailable.
var IndexFallbacksTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_index_fallbacks_total",
		Help:      "Total number of session checks served by the durable store after an index failure.",
	},
)

// ── Index mirror metrics ──────────────────────────────────────────────────────

// MirrorFailuresTotal counts index mirror attempts that failed.
// Label:
//   - stage: "issue" (first attempt) or "repair" (retry worker gave up)
var MirrorFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_index_mirror_failures_total",
		Help:      "Total number of failed token index mirror attempts, by stage.",
	},
	[]string{"stage"},
)

// MirrorRepairsTotal counts pairs handled by the repair workers.
// Label:
//   - result: "repaired", "dropped" (session gone), "queue_full", "failed"
var MirrorRepairsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_index_mirror_repairs_total",
		Help:      "Total number of index mirror repairs, by result.",
	},
	[]string{"result"},
)

// MirrorQueueDepth tracks the number of pairs waiting in each repair worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var MirrorQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "token_index_mirror_queue_depth",
		Help:      "Current number of pairs pending in each mirror repair worker channel.",
	},
	[]string{"worker_id"},
)

// ── Revocation metrics ────────────────────────────────────────────────────────

// RevocationsTotal counts revoked sessions.
// Label:
//   - reason: "logout", "refresh", "user_deleted"
var RevocationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_revoked_total",
		Help:      "Total number of sessions revoked, by reason.",
	},
	[]string{"reason"},
)

// UserDeletionsTotal counts user deletion outcomes.
// Label:
//   - result: "deleted", "not_found", "rolled_back", "compensation_failed", "index_unavailable"
var UserDeletionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "user_deletions_total",
		Help:      "Total number of user deletions, by result.",
	},
	[]string{"result"},
)

// CompensationFailuresTotal counts deletions that left the index and the
// durable store disagreeing. Alert on any increase.
var CompensationFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compensation_failures_total",
		Help:      "Total number of user deletions whose index compensation failed.",
	},
)
