package staking

import (
	"math/big"
	"strconv"

	"stakehub/core/events"
	"stakehub/crypto"
)

const (
	EventTypePoolCreated            = "staking.pool_created"
	EventTypeRewardAdded            = "staking.reward_added"
	EventTypeRewardsDurationUpdated = "staking.rewards_duration_updated"
	EventTypeStaked                 = "staking.staked"
	EventTypeUnstakeRequested       = "staking.unstake_requested"
	EventTypeWithdrawn              = "staking.withdrawn"
	EventTypeRewardPaid             = "staking.reward_paid"
	EventTypeDelegateChanged        = "staking.delegate_changed"
	EventTypeDelegateVotesChanged   = "staking.delegate_votes_changed"
	EventTypeRecovered              = "staking.recovered"
)

// PoolCreated is emitted when a new pool is appended to the registry.
type PoolCreated struct {
	PoolID           uint64
	Token            string
	RewardsDuration  uint64
	LockPeriod       uint64
	WithdrawDelay    uint64
	VestingPeriod    uint64
	VotingMultiplier uint64
}

func (PoolCreated) EventType() string { return EventTypePoolCreated }

func (e PoolCreated) Event() *events.Record {
	return &events.Record{
		Type: EventTypePoolCreated,
		Attributes: map[string]string{
			"poolId":           formatUint(e.PoolID),
			"token":            e.Token,
			"rewardsDuration":  formatUint(e.RewardsDuration),
			"lockPeriod":       formatUint(e.LockPeriod),
			"withdrawDelay":    formatUint(e.WithdrawDelay),
			"vestingPeriod":    formatUint(e.VestingPeriod),
			"votingMultiplier": formatUint(e.VotingMultiplier),
		},
	}
}

// RewardAdded is emitted when new rewards are streamed into a pool.
type RewardAdded struct {
	PoolID       uint64
	Amount       *big.Int
	PeriodFinish uint64
}

func (RewardAdded) EventType() string { return EventTypeRewardAdded }

func (e RewardAdded) Event() *events.Record {
	return &events.Record{
		Type: EventTypeRewardAdded,
		Attributes: map[string]string{
			"poolId":       formatUint(e.PoolID),
			"amount":       formatAmount(e.Amount),
			"periodFinish": formatUint(e.PeriodFinish),
		},
	}
}

// RewardsDurationUpdated is emitted when a pool's streaming window changes.
type RewardsDurationUpdated struct {
	PoolID   uint64
	Duration uint64
}

func (RewardsDurationUpdated) EventType() string { return EventTypeRewardsDurationUpdated }

func (e RewardsDurationUpdated) Event() *events.Record {
	return &events.Record{
		Type: EventTypeRewardsDurationUpdated,
		Attributes: map[string]string{
			"poolId":   formatUint(e.PoolID),
			"duration": formatUint(e.Duration),
		},
	}
}

// Staked is emitted when a position gains stake.
type Staked struct {
	PoolID  uint64
	Account crypto.Address
	Amount  *big.Int
}

func (Staked) EventType() string { return EventTypeStaked }

func (e Staked) Event() *events.Record {
	return &events.Record{
		Type: EventTypeStaked,
		Attributes: map[string]string{
			"poolId":  formatUint(e.PoolID),
			"account": e.Account.String(),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// UnstakeRequested is emitted when an account starts its withdrawal delay.
type UnstakeRequested struct {
	PoolID      uint64
	Account     crypto.Address
	Amount      *big.Int
	AvailableAt uint64
}

func (UnstakeRequested) EventType() string { return EventTypeUnstakeRequested }

func (e UnstakeRequested) Event() *events.Record {
	return &events.Record{
		Type: EventTypeUnstakeRequested,
		Attributes: map[string]string{
			"poolId":      formatUint(e.PoolID),
			"account":     e.Account.String(),
			"amount":      formatAmount(e.Amount),
			"availableAt": formatUint(e.AvailableAt),
		},
	}
}

// Withdrawn is emitted when staked tokens are released back to the account.
type Withdrawn struct {
	PoolID  uint64
	Account crypto.Address
	Amount  *big.Int
}

func (Withdrawn) EventType() string { return EventTypeWithdrawn }

func (e Withdrawn) Event() *events.Record {
	return &events.Record{
		Type: EventTypeWithdrawn,
		Attributes: map[string]string{
			"poolId":  formatUint(e.PoolID),
			"account": e.Account.String(),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// RewardPaid is emitted when pending rewards are paid out.
type RewardPaid struct {
	PoolID  uint64
	Account crypto.Address
	Amount  *big.Int
}

func (RewardPaid) EventType() string { return EventTypeRewardPaid }

func (e RewardPaid) Event() *events.Record {
	return &events.Record{
		Type: EventTypeRewardPaid,
		Attributes: map[string]string{
			"poolId":  formatUint(e.PoolID),
			"account": e.Account.String(),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// DelegateChanged is emitted when a position's delegatee changes.
type DelegateChanged struct {
	PoolID       uint64
	Delegator    crypto.Address
	FromDelegate crypto.Address
	ToDelegate   crypto.Address
}

func (DelegateChanged) EventType() string { return EventTypeDelegateChanged }

func (e DelegateChanged) Event() *events.Record {
	return &events.Record{
		Type: EventTypeDelegateChanged,
		Attributes: map[string]string{
			"poolId":       formatUint(e.PoolID),
			"delegator":    e.Delegator.String(),
			"fromDelegate": e.FromDelegate.String(),
			"toDelegate":   e.ToDelegate.String(),
		},
	}
}

// DelegateVotesChanged is emitted for each delegate whose voting power moved.
type DelegateVotesChanged struct {
	Delegate      crypto.Address
	PreviousVotes *big.Int
	NewVotes      *big.Int
}

func (DelegateVotesChanged) EventType() string { return EventTypeDelegateVotesChanged }

func (e DelegateVotesChanged) Event() *events.Record {
	return &events.Record{
		Type: EventTypeDelegateVotesChanged,
		Attributes: map[string]string{
			"delegate":      e.Delegate.String(),
			"previousVotes": formatAmount(e.PreviousVotes),
			"newVotes":      formatAmount(e.NewVotes),
		},
	}
}

// Recovered is emitted when the owner sweeps a stray token out of the vault.
type Recovered struct {
	Token  string
	To     crypto.Address
	Amount *big.Int
}

func (Recovered) EventType() string { return EventTypeRecovered }

func (e Recovered) Event() *events.Record {
	return &events.Record{
		Type: EventTypeRecovered,
		Attributes: map[string]string{
			"token":  e.Token,
			"to":     e.To.String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
