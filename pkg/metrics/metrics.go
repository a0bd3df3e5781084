// Package metrics records cache and tier activity of tiered repositories.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "repository"
	tieredSubsystem  = "tiered"
)

// Tier names used as label values.
const (
	TierCache  = "cache"
	TierLocal  = "local"
	TierRemote = "remote"
)

// Recorder receives orchestrator events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// CacheLookup records a cache read for the entity namespace.
	CacheLookup(namespace string, hit bool)
	// TierCall records one call to a local or remote tier.
	TierCall(namespace, tier, operation string, success bool)
	// Fallback records that operation moved on from a failed tier.
	Fallback(namespace, operation, from string)
	// MirrorFailure records a failed write to the local tier or the cache
	// after a successful remote call.
	MirrorFailure(namespace, tier, operation string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) CacheLookup(string, bool) {}
func (Nop) TierCall(string, string, string, bool) {}
func (Nop) Fallback(string, string, string) {}
func (Nop) MirrorFailure(string, string, string) {}

// Prometheus implements Recorder with counters registered on a caller
// supplied registerer.
type Prometheus struct {
	// CacheLookupsTotal counts cache reads.
	// Labels: entity, result (hit, miss)
	CacheLookupsTotal *prometheus.CounterVec

	// TierCallsTotal counts calls to the local and remote tiers.
	// Labels: entity, tier (local, remote), operation, status (success, failure)
	TierCallsTotal *prometheus.CounterVec

	// FallbacksTotal counts fallbacks from a failed tier to the next one.
	// Labels: entity, operation, from
	FallbacksTotal *prometheus.CounterVec

	// MirrorFailuresTotal counts writes to local or cache that failed after
	// the remote call succeeded.
	// Labels: entity, tier, operation
	MirrorFailuresTotal *prometheus.CounterVec
}

// NewPrometheus registers the counters on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Prometheus{
		CacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tieredSubsystem,
			Name:      "cache_lookups_total",
			Help:      "Cache reads by entity and result",
		}, []string{"entity", "result"}),
		TierCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tieredSubsystem,
			Name:      "tier_calls_total",
			Help:      "Calls to local and remote tiers by entity, tier, operation and status",
		}, []string{"entity", "tier", "operation", "status"}),
		FallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tieredSubsystem,
			Name:      "fallbacks_total",
			Help:      "Fallbacks from a failed tier by entity, operation and source tier",
		}, []string{"entity", "operation", "from"}),
		MirrorFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tieredSubsystem,
			Name:      "mirror_failures_total",
			Help:      "Failed local or cache writes after a remote success",
		}, []string{"entity", "tier", "operation"}),
	}
}

func (p *Prometheus) CacheLookup(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.CacheLookupsTotal.WithLabelValues(namespace, result).Inc()
}

func (p *Prometheus) TierCall(namespace, tier, operation string, success bool) {
	status := "failure"
	if success {
		status = "success"
	}
	p.TierCallsTotal.WithLabelValues(namespace, tier, operation, status).Inc()
}

func (p *Prometheus) Fallback(namespace, operation, from string) {
	p.FallbacksTotal.WithLabelValues(namespace, operation, from).Inc()
}

func (p *Prometheus) MirrorFailure(namespace, tier, operation string) {
	p.MirrorFailuresTotal.WithLabelValues(namespace, tier, operation).Inc()
}
