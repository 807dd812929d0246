// Package metrics exposes rule evaluation telemetry in Prometheus format.
//
// Collector implements rules.Observer and is handed to the engine at startup;
// the gRPC server records per-method request counts through the same collector.
// All metrics live on a private registry so tests and multiple servers in one
// process never collide on the global default registry.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
)

const namespace = "formkeeper"

// maxRuleLabels caps distinct rule_id label values. Rules beyond the cap are
// counted under "other"; ids are caller-supplied and unbounded.
const maxRuleLabels = 1000

// otherRule aggregates fired counts once maxRuleLabels is reached.
const otherRule = "other"

// Evaluations take microseconds; buckets span 10µs to 100ms.
var durationBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

// Collector owns the Prometheus registry and every formkeeper metric.
type Collector struct {
	registry *prometheus.Registry

	evaluations *prometheus.CounterVec
	duration    prometheus.Histogram
	evaluated   prometheus.Counter
	fired       *prometheus.CounterVec
	warnings    *prometheus.CounterVec
	requests    *prometheus.CounterVec
	rulesLoaded prometheus.Gauge

	mu        sync.Mutex
	ruleLabel map[types.RuleID]struct{}
}

var _ rules.Observer = (*Collector)(nil)

// NewCollector registers all metrics on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Rule evaluation sessions, by whether any rule fired.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of one evaluation session.",
			Buckets:   durationBuckets,
		}),
		evaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_evaluated_total",
			Help:      "Enabled rules whose condition was evaluated.",
		}),
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_fired_total",
			Help:      "Rules whose condition held, by rule id.",
		}, []string{"rule_id"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Non-fatal evaluation warnings, by kind.",
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC requests handled, by method and status code.",
		}, []string{"method", "code"}),
		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_loaded",
			Help:      "Rules currently held by the registry.",
		}),
		ruleLabel: make(map[types.RuleID]struct{}),
	}

	c.registry.MustRegister(
		c.evaluations,
		c.duration,
		c.evaluated,
		c.fired,
		c.warnings,
		c.requests,
		c.rulesLoaded,
	)
	return c
}

// ObserveEvaluation records one completed session.
func (c *Collector) ObserveEvaluation(duration time.Duration, evaluated, fired int) {
	outcome := "no_match"
	if fired > 0 {
		outcome = "match"
	}
	c.evaluations.WithLabelValues(outcome).Inc()
	c.duration.Observe(duration.Seconds())
	c.evaluated.Add(float64(evaluated))
}

// ObserveRuleFired counts a fired rule.
func (c *Collector) ObserveRuleFired(ruleID types.RuleID) {
	c.fired.WithLabelValues(c.ruleLabelValue(ruleID)).Inc()
}

// ObserveWarning counts a warning by kind.
func (c *Collector) ObserveWarning(kind rules.WarningKind) {
	c.warnings.WithLabelValues(string(kind)).Inc()
}

// ObserveRequest counts a finished gRPC call.
func (c *Collector) ObserveRequest(method, code string) {
	c.requests.WithLabelValues(method, code).Inc()
}

// SetRulesLoaded publishes the registry size after a load or mutation.
func (c *Collector) SetRulesLoaded(n int) {
	c.rulesLoaded.Set(float64(n))
}

func (c *Collector) ruleLabelValue(id types.RuleID) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ruleLabel[id]; ok {
		return string(id)
	}
	if len(c.ruleLabel) >= maxRuleLabels {
		return otherRule
	}
	c.ruleLabel[id] = struct{}{}
	return string(id)
}

// Registry returns the collector's private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
