package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered against the default Prometheus registry, the
// same one api.Server's /metrics route serves via promhttp.Handler().
// Counter labels are entry-point names, matching the method strings
// already used as config.RateLimits/requestlock key prefixes.
var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashier_actions_total",
		Help: "Actions processed per entry point and resulting state.",
	}, []string{"entry_point", "state"})

	rateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashier_rate_limit_rejections_total",
		Help: "Requests denied by the per-method business rate limiter.",
	}, []string{"method"})

	lockContentionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashier_lock_contention_total",
		Help: "Requests that found their request lock already held.",
	}, []string{"method"})
)
