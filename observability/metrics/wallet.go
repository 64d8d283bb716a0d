package metrics

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WalletMetrics tracks invocation outcomes and value flowing through wallet
// instances.
type WalletMetrics struct {
	invocations *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transferred *prometheus.CounterVec
	donated     *prometheus.CounterVec
}

// NewWalletMetrics builds wallet collectors under namespace and registers
// them with reg. A nil registerer leaves the collectors unregistered.
func NewWalletMetrics(reg prometheus.Registerer, namespace string) *WalletMetrics {
	if namespace == "" {
		namespace = "droplet"
	}
	m := &WalletMetrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "invocations_total",
			Help:      "Invocations executed by the host, by method and outcome.",
		}, []string{"method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "invocation_duration_seconds",
			Help:      "Wall-clock duration of host invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		transferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "transferred_total",
			Help:      "Token units paid to recipients by committed transfers.",
		}, []string{"token"}),
		donated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "donated_total",
			Help:      "Token units diverted to charities by committed transfers.",
		}, []string{"token"}),
	}
	if reg != nil {
		reg.MustRegister(m.invocations, m.latency, m.transferred, m.donated)
	}
	return m
}

// ObserveInvocation records the outcome and duration of one invocation.
func (m *WalletMetrics) ObserveInvocation(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.invocations.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveTransferred adds the recipient leg of a committed transfer.
func (m *WalletMetrics) ObserveTransferred(token string, amount *big.Int) {
	if m == nil {
		return
	}
	m.transferred.WithLabelValues(token).Add(toFloat(amount))
}

// ObserveDonated adds the charity leg of a committed transfer.
func (m *WalletMetrics) ObserveDonated(token string, amount *big.Int) {
	if m == nil {
		return
	}
	m.donated.WithLabelValues(token).Add(toFloat(amount))
}

// Counters cannot go down; negative or missing amounts contribute nothing.
func toFloat(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
