package staking

import (
	"math/big"

	"stakehub/crypto"
	nativecommon "stakehub/native/common"
)

// lastApplicable bounds reward accrual by the end of the current period.
func lastApplicable(pool *Pool, now uint64) uint64 {
	if now > pool.PeriodFinish {
		return pool.PeriodFinish
	}
	return now
}

// rewardPerToken returns the cumulative reward per staked unit, 1e18 scaled.
// The stored accumulator is returned untouched while the pool is empty or the
// streaming window has not advanced past the last settlement.
func rewardPerToken(pool *Pool, now uint64) *big.Int {
	if pool.DepositedAmount.Sign() == 0 {
		return copyBigInt(pool.RewardPerTokenStored)
	}
	applicable := lastApplicable(pool, now)
	if pool.LastUpdateTime == 0 || pool.LastUpdateTime > applicable {
		return copyBigInt(pool.RewardPerTokenStored)
	}
	elapsed := new(big.Int).SetUint64(applicable - pool.LastUpdateTime)
	accrued := new(big.Int).Mul(elapsed, pool.RewardRate)
	accrued.Quo(accrued, pool.DepositedAmount)
	return accrued.Add(accrued, pool.RewardPerTokenStored)
}

// earned returns the account's claimable reward amount. Accrual freezes at the
// unstake moment, so a position with a pending request reports only the
// rewards settled before the request.
func earned(pool *Pool, pos *Position, now uint64) *big.Int {
	if pos.UnstakeRequestTime != 0 {
		return copyBigInt(pos.PendingRewards)
	}
	perToken := rewardPerToken(pool, now)
	delta := perToken.Sub(perToken, pos.RewardPerTokenPaid)
	owed := delta.Mul(delta, pos.Amount)
	owed.Quo(owed, PrecisionFactor)
	return owed.Add(owed, pos.PendingRewards)
}

// settle brings the pool accumulator up to date and, when a position is given,
// persists its earned amount as pending. The first settlement of a pool only
// stamps the update time: no duration has started, so there is nothing to
// accrue.
func settle(pool *Pool, pos *Position, now uint64) {
	if pool.LastUpdateTime == 0 {
		pool.LastUpdateTime = now
	} else if applicable := lastApplicable(pool, now); applicable > pool.LastUpdateTime {
		pool.RewardPerTokenStored = rewardPerToken(pool, now)
		pool.LastUpdateTime = applicable
	}
	if pos != nil {
		pos.PendingRewards = earned(pool, pos, now)
		pos.RewardPerTokenPaid = copyBigInt(pool.RewardPerTokenStored)
	}
}

// AddReward pulls amount of the reward token from the distributor and streams
// it over the pool's rewards duration. Any undistributed remainder of a still
// running period rolls into the new rate.
func (e *Engine) AddReward(poolID uint64, caller crypto.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilToken
	}
	if caller.Raw() != e.distributor.Raw() {
		return errNotDistributor
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if pool.RewardsDuration == 0 {
		return errZeroDuration
	}

	now := e.now()
	settle(pool, nil, now)

	if err := e.tokens.TransferFrom(e.rewardToken, e.moduleAddr, caller, e.moduleAddr, amount); err != nil {
		return err
	}

	duration := new(big.Int).SetUint64(pool.RewardsDuration)
	scaled := new(big.Int).Mul(amount, PrecisionFactor)
	if now < pool.PeriodFinish {
		remaining := new(big.Int).SetUint64(pool.PeriodFinish - now)
		leftover := remaining.Mul(remaining, pool.RewardRate)
		scaled.Add(scaled, leftover)
	}
	pool.RewardRate = scaled.Quo(scaled, duration)
	pool.LastUpdateTime = now
	pool.PeriodFinish = now + pool.RewardsDuration

	if err := e.state.PutPool(poolID, pool); err != nil {
		return err
	}
	e.advanceHeight()
	e.emit(RewardAdded{PoolID: poolID, Amount: copyBigInt(amount), PeriodFinish: pool.PeriodFinish})
	return nil
}

// SetRewardsDuration changes the streaming window of a pool. Only allowed once
// the current period has fully finished.
func (e *Engine) SetRewardsDuration(poolID uint64, caller crypto.Address, duration uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.state == nil {
		return errNilState
	}
	if caller.Raw() != e.owner.Raw() {
		return errNotOwner
	}
	if duration == 0 {
		return errZeroDuration
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if e.now() <= pool.PeriodFinish {
		return errPeriodActive
	}
	pool.RewardsDuration = duration
	if err := e.state.PutPool(poolID, pool); err != nil {
		return err
	}
	e.advanceHeight()
	e.emit(RewardsDurationUpdated{PoolID: poolID, Duration: duration})
	return nil
}

// UpdatePeriodFinish early-stops (or extends) the current reward period. The
// pool is settled first so the old schedule is fully accounted.
func (e *Engine) UpdatePeriodFinish(poolID uint64, caller crypto.Address, timestamp uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.state == nil {
		return errNilState
	}
	if caller.Raw() != e.owner.Raw() {
		return errNotOwner
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	settle(pool, nil, e.now())
	if timestamp < pool.LastUpdateTime {
		return errPeriodFinishPast
	}
	pool.PeriodFinish = timestamp
	if err := e.state.PutPool(poolID, pool); err != nil {
		return err
	}
	e.advanceHeight()
	return nil
}

// GetReward pays out the caller's pending rewards. A zero pending balance is a
// successful no-op.
func (e *Engine) GetReward(poolID uint64, caller crypto.Address) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.leave()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	return e.getReward(poolID, caller)
}

func (e *Engine) getReward(poolID uint64, caller crypto.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if e.tokens == nil {
		return nil, errNilToken
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(poolID, caller)
	if err != nil {
		return nil, err
	}
	settle(pool, pos, e.now())

	reward := copyBigInt(pos.PendingRewards)
	if reward.Sign() > 0 {
		pos.PendingRewards = big.NewInt(0)
		if err := e.tokens.Transfer(e.rewardToken, e.moduleAddr, caller, reward); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutPosition(poolID, caller, pos); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(poolID, pool); err != nil {
		return nil, err
	}
	e.advanceHeight()
	if reward.Sign() > 0 {
		e.emit(RewardPaid{PoolID: poolID, Account: caller, Amount: reward})
	}
	return reward, nil
}
