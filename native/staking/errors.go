package staking

import "errors"

var (
	errNilState            = errors.New("staking engine: state not configured")
	errNilToken            = errors.New("staking engine: token ledger not configured")
	errPoolNotFound        = errors.New("staking engine: pool not found")
	errInvalidAmount       = errors.New("staking engine: amount must be positive")
	errInvalidMultiplier   = errors.New("staking engine: voting multiplier must be >= 1")
	errNotOwner            = errors.New("staking engine: caller is not the owner")
	errNotDistributor      = errors.New("staking engine: caller is not the rewards distributor")
	errReentrantCall       = errors.New("staking engine: reentrant call")
	errZeroDuration        = errors.New("staking engine: rewards duration must be positive")
	errPeriodActive        = errors.New("staking engine: reward period still active")
	errPeriodFinishPast    = errors.New("staking engine: period finish precedes the period start")
	errPositionOccupied    = errors.New("staking engine: beneficiary already has an open position")
	errStillLocked         = errors.New("staking engine: stake still locked")
	errUnstakeNotNeeded    = errors.New("staking engine: pool does not require an unstake request")
	errAlreadyUnstaking    = errors.New("staking engine: unstake already requested")
	errNothingStaked       = errors.New("staking engine: no stake in position")
	errUnstakeRequired     = errors.New("staking engine: unstake request required before withdrawal")
	errWithdrawDelayActive = errors.New("staking engine: withdrawal delay still running")
	errInvalidDelegatee    = errors.New("staking engine: delegatee must be a non-zero address")
	errExceedsWithdrawable = errors.New("staking engine: amount exceeds withdrawable balance")
	errRecoverStakingToken = errors.New("staking engine: cannot recover the staking token")
	errSignatureExpired    = errors.New("staking engine: delegation signature expired")
	errSignatureInvalid    = errors.New("staking engine: delegation signature invalid")
)

// Exported aliases for callers that branch on rejection causes.
var (
	ErrPoolNotFound  = errPoolNotFound
	ErrInvalidAmount = errInvalidAmount
)
