package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics aggregates the prometheus collectors for ledger operations.
type StakingMetrics struct {
	stakes       *prometheus.CounterVec
	withdrawals  *prometheus.CounterVec
	rewardsPaid  *prometheus.CounterVec
	opRejections *prometheus.CounterVec
	poolCount    prometheus.Gauge
	totalVotes   prometheus.Gauge
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

// Staking returns the process-wide staking metrics registry.
func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			stakes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_stakes_total",
				Help: "Count of successful stake operations by pool.",
			}, []string{"pool"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_withdrawals_total",
				Help: "Count of successful withdraw operations by pool.",
			}, []string{"pool"}),
			rewardsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_rewards_paid_total",
				Help: "Count of non-zero reward payouts by pool.",
			}, []string{"pool"}),
			opRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_op_rejections_total",
				Help: "Count of rejected ledger operations by operation name.",
			}, []string{"op"}),
			poolCount: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_pool_count",
				Help: "Number of registered staking pools.",
			}),
			totalVotes: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_total_votes",
				Help: "Aggregate voting power across all delegates.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.stakes,
			stakingRegistry.withdrawals,
			stakingRegistry.rewardsPaid,
			stakingRegistry.opRejections,
			stakingRegistry.poolCount,
			stakingRegistry.totalVotes,
		)
	})
	return stakingRegistry
}

// RecordStake increments the stake counter for the pool.
func (m *StakingMetrics) RecordStake(pool string) {
	if m == nil {
		return
	}
	m.stakes.WithLabelValues(pool).Inc()
}

// RecordWithdrawal increments the withdraw counter for the pool.
func (m *StakingMetrics) RecordWithdrawal(pool string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(pool).Inc()
}

// RecordRewardPaid increments the payout counter for the pool.
func (m *StakingMetrics) RecordRewardPaid(pool string) {
	if m == nil {
		return
	}
	m.rewardsPaid.WithLabelValues(pool).Inc()
}

// RecordRejection increments the rejection counter for an operation.
func (m *StakingMetrics) RecordRejection(op string) {
	if m == nil {
		return
	}
	m.opRejections.WithLabelValues(op).Inc()
}

// SetPoolCount updates the registered pool gauge.
func (m *StakingMetrics) SetPoolCount(count uint64) {
	if m == nil {
		return
	}
	m.poolCount.Set(float64(count))
}

// SetTotalVotes updates the aggregate voting power gauge.
func (m *StakingMetrics) SetTotalVotes(votes float64) {
	if m == nil {
		return
	}
	m.totalVotes.Set(votes)
}
