package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics instruments the debt ledger surface: operation outcomes,
// accrued interest flow, and the drift-sensitive gauges operators alert on.
type LendingMetrics struct {
	operations       *prometheus.CounterVec
	interestAccrued  prometheus.Counter
	unroutedInterest prometheus.Gauge
	badDebt          prometheus.Gauge
	totalBorrows     prometheus.Gauge
	liquidations     prometheus.Counter
	seizedCollateral *prometheus.CounterVec
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// Lending returns the lazily-initialised lending metrics registry.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lumen",
				Subsystem: "lending",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			interestAccrued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lumen",
				Subsystem: "lending",
				Name:      "interest_accrued_wei_total",
				Help:      "Total interest added to the global debt accumulator, in wei.",
			}),
			unroutedInterest: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lumen",
				Subsystem: "lending",
				Name:      "unrouted_interest_wei",
				Help:      "Supplier interest that could not be forwarded to the yield destination.",
			}),
			badDebt: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lumen",
				Subsystem: "lending",
				Name:      "bad_debt_wei",
				Help:      "Current unbacked stablecoin shortfall.",
			}),
			totalBorrows: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lumen",
				Subsystem: "lending",
				Name:      "total_borrows_wei",
				Help:      "Global debt accumulator.",
			}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lumen",
				Subsystem: "lending",
				Name:      "liquidations_total",
				Help:      "Completed liquidations.",
			}),
			seizedCollateral: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lumen",
				Subsystem: "lending",
				Name:      "seized_collateral_total",
				Help:      "Collateral transferred to liquidators, in token units, by token.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.interestAccrued,
			lendingRegistry.unroutedInterest,
			lendingRegistry.badDebt,
			lendingRegistry.totalBorrows,
			lendingRegistry.liquidations,
			lendingRegistry.seizedCollateral,
		)
	})
	return lendingRegistry
}

// ObserveOperation records one ledger operation with its outcome.
func (m *LendingMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// AddInterestAccrued accumulates newly accrued interest.
func (m *LendingMetrics) AddInterestAccrued(interest *big.Int) {
	if m == nil {
		return
	}
	m.interestAccrued.Add(bigToFloat(interest))
}

// ObserveLiquidation records a completed liquidation and its seizure.
func (m *LendingMetrics) ObserveLiquidation(token string, seized *big.Int) {
	if m == nil {
		return
	}
	m.liquidations.Inc()
	m.seizedCollateral.WithLabelValues(token).Add(bigToFloat(seized))
}

// SetAggregates refreshes the drift-sensitive gauges from ledger state.
func (m *LendingMetrics) SetAggregates(totalBorrows, unrouted, badDebt *big.Int) {
	if m == nil {
		return
	}
	m.totalBorrows.Set(bigToFloat(totalBorrows))
	m.unroutedInterest.Set(bigToFloat(unrouted))
	m.badDebt.Set(bigToFloat(badDebt))
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
