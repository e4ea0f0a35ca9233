package staking

import (
	"math/big"

	"stakehub/crypto"
)

// PrecisionFactor is the 1e18 fixed-point scale shared by the reward-per-token
// accumulator and the reward rate.
var PrecisionFactor = big.NewInt(1_000_000_000_000_000_000)

// Pool is one staking configuration plus its aggregate reward state. Pools are
// appended to the registry once and never removed; their id is the index at
// which they were appended.
type Pool struct {
	Token                string   `json:"token"`
	DepositedAmount      *big.Int `json:"depositedAmount"`
	LastUpdateTime       uint64   `json:"lastUpdateTime"`
	RewardPerTokenStored *big.Int `json:"rewardPerTokenStored"`
	RewardsDuration      uint64   `json:"rewardsDuration"`
	RewardRate           *big.Int `json:"rewardRate"`
	PeriodFinish         uint64   `json:"periodFinish"`
	LockPeriod           uint64   `json:"lockPeriod"`
	WithdrawDelay        uint64   `json:"withdrawDelay"`
	VestingPeriod        uint64   `json:"vestingPeriod"`
	VotingMultiplier     uint64   `json:"votingMultiplier"`
}

// Position is one account's stake record within a pool. Created lazily on
// first stake and kept for its full history, even at zero balance, so the
// withdrawal and delegation bookkeeping survives.
type Position struct {
	Amount             *big.Int `json:"amount"`
	DepositTime        uint64   `json:"depositTime"`
	PendingRewards     *big.Int `json:"pendingRewards"`
	RewardPerTokenPaid *big.Int `json:"rewardPerTokenPaid"`
	UnstakeRequestTime uint64   `json:"unstakeRequestTime"`
	Withdrawn          *big.Int `json:"withdrawn"`
	Delegatee          [20]byte `json:"delegatee"`
}

// PositionStatus is the derived lock/vesting state of a position at a given
// moment. It is never stored; callers compute it from the pool timing
// parameters and the position timestamps.
type PositionStatus struct {
	Locked            bool     `json:"locked"`
	NeedUnstake       bool     `json:"needUnstake"`
	Unstaking         bool     `json:"unstaking"`
	Withdrawable      bool     `json:"withdrawable"`
	AvailableWithdraw *big.Int `json:"availableWithdraw"`
}

// PositionInfo groups a position with its derived state and earned rewards for
// account queries.
type PositionInfo struct {
	PoolID   uint64         `json:"poolId"`
	Amount   *big.Int       `json:"amount"`
	Earned   *big.Int       `json:"earned"`
	Status   PositionStatus `json:"status"`
	Delegate string         `json:"delegate"`
}

func (p *Pool) normalize() {
	if p.DepositedAmount == nil {
		p.DepositedAmount = big.NewInt(0)
	}
	if p.RewardPerTokenStored == nil {
		p.RewardPerTokenStored = big.NewInt(0)
	}
	if p.RewardRate == nil {
		p.RewardRate = big.NewInt(0)
	}
}

func (p *Position) normalize() {
	if p.Amount == nil {
		p.Amount = big.NewInt(0)
	}
	if p.PendingRewards == nil {
		p.PendingRewards = big.NewInt(0)
	}
	if p.RewardPerTokenPaid == nil {
		p.RewardPerTokenPaid = big.NewInt(0)
	}
	if p.Withdrawn == nil {
		p.Withdrawn = big.NewInt(0)
	}
}

// DelegateAddress returns the position's delegatee as an address.
func (p *Position) DelegateAddress() crypto.Address {
	return crypto.MustNewAddress(crypto.StakePrefix, p.Delegatee[:])
}

// HasDelegate reports whether the position delegates to a non-zero account.
func (p *Position) HasDelegate() bool {
	return p.Delegatee != [20]byte{}
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
