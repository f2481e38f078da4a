package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instruments for fund movement. All recording
// methods are nil-receiver safe so the engines can run without a registry.
type Metrics struct {
	TransfersTotal  *prometheus.CounterVec
	TransferVolume  *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	ResidualWallets prometheus.Gauge
	SwarmWallets    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "swarmvault_transfers_total",
			Help: "Fund movement attempts by action and status.",
		}, []string{"action", "status"}),
		TransferVolume: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "swarmvault_transfer_native_units_total",
			Help: "Native units moved by successful transfers, by action.",
		}, []string{"action"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swarmvault_run_duration_seconds",
			Help:    "Wall-clock duration of distribution and reclaim runs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"operation"}),
		ResidualWallets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swarmvault_residual_wallets",
			Help: "Wallets still holding balances above the reserve floor.",
		}),
		SwarmWallets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swarmvault_wallets",
			Help: "Wallets currently in the vault.",
		}),
	}
}

func (m *Metrics) RecordTransfer(action, status string, amountNative float64) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(action, status).Inc()
	if amountNative > 0 {
		m.TransferVolume.WithLabelValues(action).Add(amountNative)
	}
}

func (m *Metrics) ObserveRun(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) SetResidualWallets(count int) {
	if m == nil {
		return
	}
	m.ResidualWallets.Set(float64(count))
}

func (m *Metrics) SetSwarmWallets(count int) {
	if m == nil {
		return
	}
	m.SwarmWallets.Set(float64(count))
}
