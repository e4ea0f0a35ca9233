package metrics

import (
	"strconv"

	"stakehub/core/events"
	"stakehub/native/staking"
)

// Recorder bridges ledger events into the prometheus collectors. Wire it into
// the engine emitter (typically through an events.Fanout) to keep operation
// counters in step with the ledger.
type Recorder struct {
	metrics *StakingMetrics
}

// NewRecorder returns an emitter feeding the process-wide staking registry.
func NewRecorder() *Recorder {
	return &Recorder{metrics: Staking()}
}

// Emit implements the events.Emitter interface.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || r.metrics == nil || evt == nil {
		return
	}
	switch e := evt.(type) {
	case staking.Staked:
		r.metrics.RecordStake(strconv.FormatUint(e.PoolID, 10))
	case staking.Withdrawn:
		r.metrics.RecordWithdrawal(strconv.FormatUint(e.PoolID, 10))
	case staking.RewardPaid:
		r.metrics.RecordRewardPaid(strconv.FormatUint(e.PoolID, 10))
	}
}
