// Package metrics exposes operation counters for the cipher components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CipherMetrics counts cipher operations by kind and outcome. A nil receiver
// is a no-op so library code can run without a registry.
type CipherMetrics struct {
	operations *prometheus.CounterVec
}

// NewCipherMetrics builds the counters and registers them on reg when it is
// non-nil.
func NewCipherMetrics(reg prometheus.Registerer) *CipherMetrics {
	m := &CipherMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_cipher_operations_total",
			Help: "Cipher operations by kind and outcome.",
		}, []string{"op", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations)
	}
	return m
}

var (
	defaultOnce    sync.Once
	defaultMetrics *CipherMetrics
)

// Default returns process-wide metrics registered on the default registerer.
func Default() *CipherMetrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewCipherMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Observe records one operation outcome.
func (m *CipherMetrics) Observe(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}
