package staking

import "math/big"

// positionStatus derives the lock/vesting state machine for a position. The
// state is recomputed from timestamps on every call, nothing is stored.
//
// A pool with neither lock nor withdraw delay is always withdrawable. A pool
// with a withdraw delay requires an explicit unstake request before the delay
// countdown starts; until then the position is not withdrawable regardless of
// lock state.
func positionStatus(pool *Pool, pos *Position, now uint64) PositionStatus {
	st := PositionStatus{AvailableWithdraw: big.NewInt(0)}
	st.Locked = now < pos.DepositTime+pool.LockPeriod
	st.NeedUnstake = pool.WithdrawDelay != 0 && pos.UnstakeRequestTime == 0
	st.Unstaking = pool.WithdrawDelay != 0 && !st.NeedUnstake &&
		now < pos.UnstakeRequestTime+pool.WithdrawDelay

	switch {
	case pool.LockPeriod == 0 && pool.WithdrawDelay == 0:
		st.Withdrawable = true
	case st.NeedUnstake:
		st.Withdrawable = false
	default:
		st.Withdrawable = !st.Locked && !st.Unstaking
	}
	if !st.Withdrawable || pos.Amount.Sign() == 0 {
		return st
	}

	st.AvailableWithdraw = availableWithdraw(pool, pos, now)
	return st
}

// availableWithdraw computes the currently releasable amount assuming the
// position is withdrawable: the full remaining stake once the lock plus
// vesting window has elapsed, otherwise the linear release minus what has
// already been taken out of the current vesting batch.
func availableWithdraw(pool *Pool, pos *Position, now uint64) *big.Int {
	window := pool.LockPeriod + pool.VestingPeriod
	if window == 0 || now >= pos.DepositTime+window {
		return copyBigInt(pos.Amount)
	}
	if now <= pos.DepositTime {
		return big.NewInt(0)
	}
	elapsed := new(big.Int).SetUint64(now - pos.DepositTime)
	released := elapsed.Mul(elapsed, pos.Amount)
	released.Quo(released, new(big.Int).SetUint64(window))
	released.Sub(released, pos.Withdrawn)
	if released.Sign() < 0 {
		return big.NewInt(0)
	}
	if released.Cmp(pos.Amount) > 0 {
		return copyBigInt(pos.Amount)
	}
	return released
}
