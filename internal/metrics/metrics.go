// Package metrics exposes prometheus instruments for the analysis passes.
package metrics

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics definitions
var (
	PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gfq_pass_seconds",
		Help:    "Time spent in one analysis pass of one unit.",
		Buckets: prometheus.DefBuckets,
	}, []string{"pass"})

	UnitsAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gfq_units_total",
		Help: "Translation units analyzed, by outcome.",
	}, []string{"outcome"})

	InferredDeclarations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gfq_inferred_declarations_total",
		Help: "Declarations synthesized for unresolved names.",
	}, []string{"kind"})

	CallsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gfq_calls_total",
		Help: "Call sites processed by the call resolver, by resolution kind.",
	}, []string{"kind"})

	AmbiguousOverloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gfq_ambiguous_overloads_total",
		Help: "Call sites where several candidates tied for the best rank.",
	})

	FixpointIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gfq_fixpoint_block_visits",
		Help:    "Block visits needed for a function to reach its fixpoint.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	DivergentFunctions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gfq_fixpoint_divergent_total",
		Help: "Functions whose fixpoint hit the iteration cap.",
	})

	SummaryCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gfq_summary_cache_total",
		Help: "Function summary cache lookups, by result.",
	}, []string{"result"})
)

// Snapshot returns the current value of every gfq counter, keyed by metric
// name plus label values. Histograms report their sample count.
func Snapshot() (map[string]float64, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, fam := range families {
		name := fam.GetName()
		if !strings.HasPrefix(name, "gfq_") {
			continue
		}
		for _, m := range fam.GetMetric() {
			key := name + labelSuffix(m.GetLabel())
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

func labelSuffix(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
