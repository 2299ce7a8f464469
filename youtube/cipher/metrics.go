package cipher

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "descramble"

// Metrics are the session's counters. Each session registers them on its own
// registry so sessions never share counts.
type Metrics struct {
	Registry *prometheus.Registry

	// SpecHits counts signatures answered from a cached PermutationSpec.
	SpecHits prometheus.Counter
	// SpecMisses counts signatures that needed a spec derivation or direct
	// interpretation.
	SpecMisses prometheus.Counter
	// InterpreterRuns counts guest-script calls by transform.
	InterpreterRuns *prometheus.CounterVec
	// Verifications counts fast-path results re-checked by interpretation.
	Verifications prometheus.Counter
	// Mismatches counts disagreements between fast path and interpreter.
	Mismatches prometheus.Counter
	// Failures counts failed decryptions by transform and stage.
	Failures *prometheus.CounterVec
	// Extractions counts functions extracted from player scripts.
	Extractions *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SpecHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "signature",
			Name:      "spec_hits_total",
			Help:      "Signatures answered from a cached permutation spec",
		}),
		SpecMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "signature",
			Name:      "spec_misses_total",
			Help:      "Signatures with no usable cached permutation spec",
		}),
		InterpreterRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "interp",
			Name:      "runs_total",
			Help:      "Guest-script function calls",
		}, []string{"transform"}),
		Verifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "signature",
			Name:      "verifications_total",
			Help:      "Fast-path results re-checked against the interpreter",
		}),
		Mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "signature",
			Name:      "fast_path_mismatches_total",
			Help:      "Fast-path results that disagreed with the interpreter",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failures_total",
			Help:      "Failed decryptions",
		}, []string{"transform", "stage"}),
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "extract",
			Name:      "functions_total",
			Help:      "Transform functions extracted from player scripts",
		}, []string{"transform", "pattern"}),
	}
	m.Registry.MustRegister(
		m.SpecHits,
		m.SpecMisses,
		m.InterpreterRuns,
		m.Verifications,
		m.Mismatches,
		m.Failures,
		m.Extractions,
	)
	return m
}
