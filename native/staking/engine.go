package staking

import (
	"math/big"
	"time"

	"stakehub/core/events"
	"stakehub/crypto"
	nativecommon "stakehub/native/common"
	"stakehub/native/votes"
)

const moduleName = "staking"

type engineState interface {
	PoolCount() (uint64, error)
	GetPool(id uint64) (*Pool, error)
	PutPool(id uint64, pool *Pool) error
	AppendPool(pool *Pool) (uint64, error)
	GetPosition(poolID uint64, account crypto.Address) (*Position, error)
	PutPosition(poolID uint64, account crypto.Address, pos *Position) error
}

// Engine orchestrates every state transition of the staking ledger: reward
// settlement, the lock/vesting machine and voting power movement always run
// inside the same call so the three stay consistent.
type Engine struct {
	state       engineState
	tokens      TokenLedger
	votes       *votes.Ledger
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	owner       crypto.Address
	distributor crypto.Address
	moduleAddr  crypto.Address
	rewardToken string
	nowFn       func() uint64
	heightFn    func() uint64
	opHeight    uint64
	entered     bool
}

// NewEngine constructs a staking engine. The module address is the vault that
// holds staked and undistributed reward tokens; the owner doubles as the
// default rewards distributor.
func NewEngine(moduleAddr, owner crypto.Address, rewardToken string) *Engine {
	e := &Engine{
		emitter:     events.NoopEmitter{},
		owner:       owner,
		distributor: owner,
		moduleAddr:  moduleAddr,
		rewardToken: rewardToken,
		nowFn:       func() uint64 { return uint64(time.Now().Unix()) },
	}
	e.votes = votes.NewLedger(e.currentHeight)
	return e
}

// SetState wires the engine to its persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokenLedger wires the external fungible-token collaborator.
func (e *Engine) SetTokenLedger(tokens TokenLedger) { e.tokens = tokens }

// SetPauses configures the administrative pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetRewardsDistributor changes the account allowed to call AddReward.
func (e *Engine) SetRewardsDistributor(addr crypto.Address) {
	if e == nil {
		return
	}
	e.distributor = addr
}

// SetNowFunc overrides the clock, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

// SetHeightFunc overrides the checkpoint height source. Without an override
// the engine advances an internal counter once per mutating operation.
func (e *Engine) SetHeightFunc(height func() uint64) { e.heightFn = height }

// Votes exposes the voting power checkpoint ledger for queries and storage.
func (e *Engine) Votes() *votes.Ledger { return e.votes }

// Height returns the current checkpoint height.
func (e *Engine) Height() uint64 { return e.currentHeight() }

// RestoreHeight resets the internal operation counter when reloading a
// persisted ledger. Ignored when a height override is installed.
func (e *Engine) RestoreHeight(h uint64) {
	if e.heightFn == nil {
		e.opHeight = h
	}
}

// Owner returns the configured administrative account.
func (e *Engine) Owner() crypto.Address { return e.owner }

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func (e *Engine) currentHeight() uint64 {
	if e.heightFn != nil {
		return e.heightFn()
	}
	return e.opHeight
}

func (e *Engine) advanceHeight() {
	if e.heightFn == nil {
		e.opHeight++
	}
}

func (e *Engine) enter() error {
	if e == nil {
		return errNilState
	}
	if e.entered {
		return errReentrantCall
	}
	e.entered = true
	return nil
}

func (e *Engine) leave() { e.entered = false }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) loadPool(id uint64) (*Pool, error) {
	pool, err := e.state.GetPool(id)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, errPoolNotFound
	}
	pool.normalize()
	return pool, nil
}

func (e *Engine) loadPosition(poolID uint64, account crypto.Address) (*Position, error) {
	pos, err := e.state.GetPosition(poolID, account)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{}
	}
	pos.normalize()
	return pos, nil
}

// AddPool appends a new staking configuration to the registry and returns its
// id. Pools are never removed.
func (e *Engine) AddPool(caller crypto.Address, token string, rewardsDuration, lockPeriod, withdrawDelay, vestingPeriod, votingMultiplier uint64) (uint64, error) {
	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.leave()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if e.state == nil {
		return 0, errNilState
	}
	if caller.Raw() != e.owner.Raw() {
		return 0, errNotOwner
	}
	if token == "" {
		return 0, errInvalidAmount
	}
	if rewardsDuration == 0 {
		return 0, errZeroDuration
	}
	if votingMultiplier < 1 {
		return 0, errInvalidMultiplier
	}
	pool := &Pool{
		Token:                token,
		DepositedAmount:      big.NewInt(0),
		RewardPerTokenStored: big.NewInt(0),
		RewardsDuration:      rewardsDuration,
		RewardRate:           big.NewInt(0),
		LockPeriod:           lockPeriod,
		WithdrawDelay:        withdrawDelay,
		VestingPeriod:        vestingPeriod,
		VotingMultiplier:     votingMultiplier,
	}
	id, err := e.state.AppendPool(pool)
	if err != nil {
		return 0, err
	}
	e.advanceHeight()
	e.emit(PoolCreated{
		PoolID:           id,
		Token:            token,
		RewardsDuration:  rewardsDuration,
		LockPeriod:       lockPeriod,
		WithdrawDelay:    withdrawDelay,
		VestingPeriod:    vestingPeriod,
		VotingMultiplier: votingMultiplier,
	})
	return id, nil
}

// Stake deposits amount into the caller's own position.
func (e *Engine) Stake(poolID uint64, caller crypto.Address, amount *big.Int) error {
	return e.StakeFor(poolID, caller, caller, amount, crypto.Address{})
}

// StakeFor deposits amount from the caller into the beneficiary's position,
// optionally assigning a delegatee. Staking on behalf of an account that
// already has an open position is rejected. Any stake resets the position's
// vesting clock, and a pending unstake request is cancelled, restoring the
// voting multiplier bonus.
func (e *Engine) StakeFor(poolID uint64, caller, beneficiary crypto.Address, amount *big.Int, delegatee crypto.Address) error {
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
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	pos, err := e.loadPosition(poolID, beneficiary)
	if err != nil {
		return err
	}
	if caller.Raw() != beneficiary.Raw() && pos.Amount.Sign() > 0 {
		return errPositionOccupied
	}

	now := e.now()
	settle(pool, pos, now)

	oldDelegate := pos.DelegateAddress()
	oldContribution := votingContribution(pool, pos)

	newDelegate := oldDelegate
	if !delegatee.IsZero() {
		newDelegate = delegatee
	} else if !pos.HasDelegate() {
		newDelegate = beneficiary
	}

	// All fallible steps run before any state is touched: once the token pull
	// succeeds the rest of the operation cannot fail.
	if err := e.checkVotesRemoval(oldDelegate, oldContribution); err != nil {
		return err
	}
	if err := e.tokens.TransferFrom(pool.Token, e.moduleAddr, caller, e.moduleAddr, amount); err != nil {
		return err
	}

	pos.UnstakeRequestTime = 0
	pos.Amount = new(big.Int).Add(pos.Amount, amount)
	pos.DepositTime = now
	pos.Withdrawn = big.NewInt(0)
	pos.Delegatee = newDelegate.Raw()
	pool.DepositedAmount = new(big.Int).Add(pool.DepositedAmount, amount)

	e.advanceHeight()
	newContribution := votingContribution(pool, pos)
	e.moveVotingPower(poolID, beneficiary, oldDelegate, oldContribution, newDelegate, newContribution)

	if err := e.state.PutPosition(poolID, beneficiary, pos); err != nil {
		return err
	}
	if err := e.state.PutPool(poolID, pool); err != nil {
		return err
	}
	e.emit(Staked{PoolID: poolID, Account: beneficiary, Amount: copyBigInt(amount)})
	return nil
}

// Unstake starts the withdrawal delay countdown for the caller's position.
// Only valid on pools with a withdraw delay, once the lock has elapsed and no
// request is already pending. Reward accrual freezes and the voting multiplier
// bonus is suspended until the position is restaked.
func (e *Engine) Unstake(poolID uint64, caller crypto.Address) (uint64, error) {
	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.leave()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if e.state == nil {
		return 0, errNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return 0, err
	}
	pos, err := e.loadPosition(poolID, caller)
	if err != nil {
		return 0, err
	}
	if pos.Amount.Sign() == 0 {
		return 0, errNothingStaked
	}
	if pool.WithdrawDelay == 0 {
		return 0, errUnstakeNotNeeded
	}
	if pos.UnstakeRequestTime != 0 {
		return 0, errAlreadyUnstaking
	}
	now := e.now()
	if now < pos.DepositTime+pool.LockPeriod {
		return 0, errStillLocked
	}

	settle(pool, pos, now)

	// Suspend the multiplier bonus: the position keeps plain-amount votes.
	bonus := new(big.Int).Mul(pos.Amount, new(big.Int).SetUint64(pool.VotingMultiplier-1))
	if err := e.checkVotesRemoval(pos.DelegateAddress(), bonus); err != nil {
		return 0, err
	}

	pos.UnstakeRequestTime = now
	e.advanceHeight()
	if pos.HasDelegate() && bonus.Sign() > 0 {
		delegate := pos.DelegateAddress()
		prev := e.votes.CurrentVotes(delegate)
		if err := e.votes.Decrease(delegate, bonus); err != nil {
			return 0, err
		}
		e.emit(DelegateVotesChanged{Delegate: delegate, PreviousVotes: prev, NewVotes: e.votes.CurrentVotes(delegate)})
	}

	if err := e.state.PutPosition(poolID, caller, pos); err != nil {
		return 0, err
	}
	if err := e.state.PutPool(poolID, pool); err != nil {
		return 0, err
	}
	availableAt := now + pool.WithdrawDelay
	e.emit(UnstakeRequested{PoolID: poolID, Account: caller, Amount: copyBigInt(pos.Amount), AvailableAt: availableAt})
	return availableAt, nil
}

// Withdraw releases amount of staked tokens back to the caller, bounded by the
// currently releasable vesting amount.
func (e *Engine) Withdraw(poolID uint64, caller crypto.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.withdraw(poolID, caller, amount)
}

func (e *Engine) withdraw(poolID uint64, caller crypto.Address, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilToken
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	pos, err := e.loadPosition(poolID, caller)
	if err != nil {
		return err
	}
	if pos.Amount.Sign() == 0 {
		return errNothingStaked
	}

	now := e.now()
	settle(pool, pos, now)

	status := positionStatus(pool, pos, now)
	if !status.Withdrawable {
		switch {
		case status.NeedUnstake:
			return errUnstakeRequired
		case status.Locked:
			return errStillLocked
		default:
			return errWithdrawDelayActive
		}
	}
	if amount.Cmp(status.AvailableWithdraw) > 0 {
		return errExceedsWithdrawable
	}

	removed := votingRemoval(pool, pos, amount)
	if err := e.checkVotesRemoval(pos.DelegateAddress(), removed); err != nil {
		return err
	}
	if err := e.tokens.Transfer(pool.Token, e.moduleAddr, caller, amount); err != nil {
		return err
	}

	pos.Amount = new(big.Int).Sub(pos.Amount, amount)
	pos.Withdrawn = new(big.Int).Add(pos.Withdrawn, amount)
	pool.DepositedAmount = new(big.Int).Sub(pool.DepositedAmount, amount)

	e.advanceHeight()
	if pos.HasDelegate() && removed.Sign() > 0 {
		delegate := pos.DelegateAddress()
		prev := e.votes.CurrentVotes(delegate)
		if err := e.votes.Decrease(delegate, removed); err != nil {
			return err
		}
		e.emit(DelegateVotesChanged{Delegate: delegate, PreviousVotes: prev, NewVotes: e.votes.CurrentVotes(delegate)})
	}

	if err := e.state.PutPosition(poolID, caller, pos); err != nil {
		return err
	}
	if err := e.state.PutPool(poolID, pool); err != nil {
		return err
	}
	e.emit(Withdrawn{PoolID: poolID, Account: caller, Amount: copyBigInt(amount)})
	return nil
}

// Exit withdraws everything currently releasable and claims pending rewards
// in a single call.
func (e *Engine) Exit(poolID uint64, caller crypto.Address) error {
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
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	pos, err := e.loadPosition(poolID, caller)
	if err != nil {
		return err
	}
	now := e.now()
	status := positionStatus(pool, pos, now)
	if status.AvailableWithdraw.Sign() > 0 {
		if err := e.withdraw(poolID, caller, status.AvailableWithdraw); err != nil {
			return err
		}
	}
	_, err = e.getReward(poolID, caller)
	return err
}

// RecoverERC20 sweeps a stray token out of the module vault to the owner. The
// pool's staking token itself can never be recovered.
func (e *Engine) RecoverERC20(poolID uint64, caller crypto.Address, token string, amount *big.Int) error {
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
	if caller.Raw() != e.owner.Raw() {
		return errNotOwner
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if token == pool.Token {
		return errRecoverStakingToken
	}
	balance, err := e.tokens.BalanceOf(token, e.moduleAddr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return errInvalidAmount
	}
	if err := e.tokens.Transfer(token, e.moduleAddr, e.owner, amount); err != nil {
		return err
	}
	e.advanceHeight()
	e.emit(Recovered{Token: token, To: e.owner, Amount: copyBigInt(amount)})
	return nil
}

// PoolCount returns the number of registered pools.
func (e *Engine) PoolCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.PoolCount()
}

// PoolInfo returns a copy of the pool configuration and aggregate state.
func (e *Engine) PoolInfo(poolID uint64) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	clone := *pool
	clone.DepositedAmount = copyBigInt(pool.DepositedAmount)
	clone.RewardPerTokenStored = copyBigInt(pool.RewardPerTokenStored)
	clone.RewardRate = copyBigInt(pool.RewardRate)
	return &clone, nil
}

// Earned returns the account's currently claimable reward amount.
func (e *Engine) Earned(poolID uint64, account crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(poolID, account)
	if err != nil {
		return nil, err
	}
	return earned(pool, pos, e.now()), nil
}

// StatusOf returns the derived lock/vesting state of the account's position.
func (e *Engine) StatusOf(poolID uint64, account crypto.Address) (PositionStatus, error) {
	if e == nil || e.state == nil {
		return PositionStatus{}, errNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return PositionStatus{}, err
	}
	pos, err := e.loadPosition(poolID, account)
	if err != nil {
		return PositionStatus{}, err
	}
	return positionStatus(pool, pos, e.now()), nil
}

// PositionOf returns a copy of the raw position record.
func (e *Engine) PositionOf(poolID uint64, account crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.loadPosition(poolID, account)
	if err != nil {
		return nil, err
	}
	clone := *pos
	clone.Amount = copyBigInt(pos.Amount)
	clone.PendingRewards = copyBigInt(pos.PendingRewards)
	clone.RewardPerTokenPaid = copyBigInt(pos.RewardPerTokenPaid)
	clone.Withdrawn = copyBigInt(pos.Withdrawn)
	return &clone, nil
}

// AccountInfo summarises the account's position in one call: raw amount,
// earned rewards and the derived lock/vesting state.
func (e *Engine) AccountInfo(poolID uint64, account crypto.Address) (*PositionInfo, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(poolID, account)
	if err != nil {
		return nil, err
	}
	now := e.now()
	info := &PositionInfo{
		PoolID: poolID,
		Amount: copyBigInt(pos.Amount),
		Earned: earned(pool, pos, now),
		Status: positionStatus(pool, pos, now),
	}
	if pos.HasDelegate() {
		info.Delegate = pos.DelegateAddress().String()
	}
	return info, nil
}
