package metrics

import (
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// MintMetrics tracks mint outcomes, rejected attempts and paid volume.
type MintMetrics struct {
	minted     *prometheus.CounterVec
	rejections *prometheus.CounterVec
	paid       *prometheus.CounterVec
	payment    prometheus.Histogram
	withdrawn  *prometheus.CounterVec
	oracle     *prometheus.HistogramVec
	indexer    *prometheus.CounterVec
}

var (
	mintOnce     sync.Once
	mintRegistry *MintMetrics
)

// Mint returns the process wide mint metrics registered on the default
// Prometheus registerer.
func Mint() *MintMetrics {
	mintOnce.Do(func() {
		mintRegistry = NewMintMetrics(prometheus.DefaultRegisterer)
	})
	return mintRegistry
}

// NewMintMetrics builds the collectors and registers them on reg.
func NewMintMetrics(reg prometheus.Registerer) *MintMetrics {
	m := &MintMetrics{
		minted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mint",
			Name:      "tokens_minted_total",
			Help:      "Count of minted tokens segmented by sale phase and discount.",
		}, []string{"phase", "discounted"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mint",
			Name:      "rejections_total",
			Help:      "Count of rejected mint attempts by reason code.",
		}, []string{"reason"}),
		paid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mint",
			Name:      "paid_ether_total",
			Help:      "Native currency received by minting, in ether.",
		}, []string{"phase"}),
		payment: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mint",
			Name:      "payment_ether",
			Help:      "Distribution of per-mint payments in ether.",
			Buckets:   []float64{0.001, 0.01, 0.02, 0.05, 0.1, 0.5, 1, 5},
		}),
		withdrawn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mint",
			Name:      "withdrawn_ether_total",
			Help:      "Native currency released by withdrawals segmented by ledger.",
		}, []string{"ledger"}),
		oracle: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mint",
			Name:      "oracle_duration_seconds",
			Help:      "Latency of gating balance lookups.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "outcome"}),
		indexer: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mint",
			Name:      "indexer_failures_total",
			Help:      "Count of events the record store failed to persist, by event type.",
		}, []string{"event"}),
	}
	if reg != nil {
		reg.MustRegister(m.minted, m.rejections, m.paid, m.payment, m.withdrawn, m.oracle, m.indexer)
	}
	return m
}

// ObserveMint records a successful mint.
func (m *MintMetrics) ObserveMint(phase string, discounted bool, paid *big.Int) {
	if m == nil {
		return
	}
	phase = normalize(phase)
	m.minted.WithLabelValues(phase, strconv.FormatBool(discounted)).Inc()
	value := toEther(paid)
	m.paid.WithLabelValues(phase).Add(value)
	m.payment.Observe(value)
}

// ObserveRejection records a failed mint attempt.
func (m *MintMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(normalize(reason)).Inc()
}

// ObserveWithdrawal records the amount released from a ledger such as "team",
// "donation" or "royalty".
func (m *MintMetrics) ObserveWithdrawal(ledger string, amount *big.Int) {
	if m == nil {
		return
	}
	m.withdrawn.WithLabelValues(normalize(ledger)).Add(toEther(amount))
}

// ObserveOracle records the latency of one oracle lookup.
func (m *MintMetrics) ObserveOracle(kind string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.oracle.WithLabelValues(normalize(kind), outcome).Observe(seconds)
}

// ObserveIndexerFailure records an event that could not be persisted.
func (m *MintMetrics) ObserveIndexerFailure(eventType string) {
	if m == nil {
		return
	}
	m.indexer.WithLabelValues(normalize(eventType)).Inc()
}

func normalize(label string) string {
	trimmed := strings.ToLower(strings.TrimSpace(label))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func toEther(amount *big.Int) float64 {
	if amount == nil || amount.Sign() <= 0 {
		return 0
	}
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), weiPerEther).Float64()
	return value
}
