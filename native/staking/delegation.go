package staking

import (
	"crypto/sha256"
	"math/big"
	"strconv"
	"strings"

	"stakehub/crypto"
	nativecommon "stakehub/native/common"
	"stakehub/native/votes"
)

// delegationDomain tags delegation digests so signatures cannot be replayed
// against other signed surfaces.
const delegationDomain = "stakehub_delegate_v1"

// votingContribution is the voting power a position currently grants its
// delegatee: the full multiplier-boosted amount, or the plain amount while an
// unstake request is pending.
func votingContribution(pool *Pool, pos *Position) *big.Int {
	if pos.Amount.Sign() == 0 {
		return big.NewInt(0)
	}
	if pos.UnstakeRequestTime != 0 {
		return copyBigInt(pos.Amount)
	}
	return new(big.Int).Mul(pos.Amount, new(big.Int).SetUint64(pool.VotingMultiplier))
}

// votingRemoval is the voting power released when amount leaves the position.
func votingRemoval(pool *Pool, pos *Position, amount *big.Int) *big.Int {
	if pos.UnstakeRequestTime != 0 {
		return copyBigInt(amount)
	}
	return new(big.Int).Mul(amount, new(big.Int).SetUint64(pool.VotingMultiplier))
}

// checkVotesRemoval verifies up front that removing amount from the delegate
// cannot underflow, so later ledger writes are infallible.
func (e *Engine) checkVotesRemoval(delegate crypto.Address, amount *big.Int) error {
	if delegate.IsZero() || amount == nil || amount.Sign() == 0 {
		return nil
	}
	if e.votes.CurrentVotes(delegate).Cmp(amount) < 0 {
		return votes.ErrVotesUnderflow
	}
	return nil
}

// moveVotingPower shifts a position's contribution between delegates,
// emitting a votes-changed event for every delegate touched. Removal
// preconditions must have been checked already.
func (e *Engine) moveVotingPower(poolID uint64, delegator, oldDelegate crypto.Address, oldContribution *big.Int, newDelegate crypto.Address, newContribution *big.Int) {
	sameDelegate := oldDelegate.Raw() == newDelegate.Raw()
	if sameDelegate && !newDelegate.IsZero() {
		delta := new(big.Int).Sub(newContribution, oldContribution)
		if delta.Sign() == 0 {
			return
		}
		prev := e.votes.CurrentVotes(newDelegate)
		if delta.Sign() > 0 {
			_ = e.votes.Increase(newDelegate, delta)
		} else {
			_ = e.votes.Decrease(newDelegate, delta.Neg(delta))
		}
		e.emit(DelegateVotesChanged{Delegate: newDelegate, PreviousVotes: prev, NewVotes: e.votes.CurrentVotes(newDelegate)})
		return
	}
	if !oldDelegate.IsZero() && oldContribution.Sign() > 0 {
		prev := e.votes.CurrentVotes(oldDelegate)
		_ = e.votes.Decrease(oldDelegate, oldContribution)
		e.emit(DelegateVotesChanged{Delegate: oldDelegate, PreviousVotes: prev, NewVotes: e.votes.CurrentVotes(oldDelegate)})
	}
	if !newDelegate.IsZero() && newContribution.Sign() > 0 {
		prev := e.votes.CurrentVotes(newDelegate)
		_ = e.votes.Increase(newDelegate, newContribution)
		e.emit(DelegateVotesChanged{Delegate: newDelegate, PreviousVotes: prev, NewVotes: e.votes.CurrentVotes(newDelegate)})
	}
	if !sameDelegate {
		e.emit(DelegateChanged{PoolID: poolID, Delegator: delegator, FromDelegate: oldDelegate, ToDelegate: newDelegate})
	}
}

// Delegate moves the caller's voting power for one pool to a new delegatee.
func (e *Engine) Delegate(poolID uint64, caller, delegatee crypto.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.delegate(poolID, caller, delegatee)
}

func (e *Engine) delegate(poolID uint64, caller, delegatee crypto.Address) error {
	if e.state == nil {
		return errNilState
	}
	if delegatee.IsZero() {
		return errInvalidDelegatee
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

	settle(pool, pos, e.now())

	oldDelegate := pos.DelegateAddress()
	contribution := votingContribution(pool, pos)
	if err := e.checkVotesRemoval(oldDelegate, contribution); err != nil {
		return err
	}

	pos.Delegatee = delegatee.Raw()
	e.advanceHeight()
	e.moveVotingPower(poolID, caller, oldDelegate, contribution, delegatee, contribution)

	if err := e.state.PutPosition(poolID, caller, pos); err != nil {
		return err
	}
	return e.state.PutPool(poolID, pool)
}

// DelegationDigest is the structured hash a delegator signs off-chain to
// authorise DelegateBySig.
func DelegationDigest(poolID uint64, delegatee crypto.Address, nonce, expiry uint64) []byte {
	payload := strings.Join([]string{
		delegationDomain,
		strconv.FormatUint(poolID, 10),
		strings.ToLower(delegatee.String()),
		strconv.FormatUint(nonce, 10),
		strconv.FormatUint(expiry, 10),
	}, "|")
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

// DelegateBySig performs a delegation authorised by a recoverable signature
// over the delegation digest. The nonce must equal the signer's next expected
// nonce and is consumed atomically; expired requests are rejected.
func (e *Engine) DelegateBySig(poolID uint64, delegatee crypto.Address, nonce, expiry uint64, sig []byte) (crypto.Address, error) {
	if err := e.enter(); err != nil {
		return crypto.Address{}, err
	}
	defer e.leave()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return crypto.Address{}, err
	}
	if e.state == nil {
		return crypto.Address{}, errNilState
	}
	if delegatee.IsZero() {
		return crypto.Address{}, errInvalidDelegatee
	}

	digest := DelegationDigest(poolID, delegatee, nonce, expiry)
	signer, err := crypto.RecoverSigner(digest, sig)
	if err != nil {
		return crypto.Address{}, errSignatureInvalid
	}
	if e.now() > expiry {
		return crypto.Address{}, errSignatureExpired
	}

	// Validate the delegation itself before consuming the nonce so a rejected
	// call leaves no trace.
	pool, err := e.loadPool(poolID)
	if err != nil {
		return crypto.Address{}, err
	}
	pos, err := e.loadPosition(poolID, signer)
	if err != nil {
		return crypto.Address{}, err
	}
	if pos.Amount.Sign() == 0 {
		return crypto.Address{}, errNothingStaked
	}
	if err := e.checkVotesRemoval(pos.DelegateAddress(), votingContribution(pool, pos)); err != nil {
		return crypto.Address{}, err
	}

	if err := e.votes.ConsumeNonce(signer, nonce); err != nil {
		return crypto.Address{}, err
	}
	if err := e.delegate(poolID, signer, delegatee); err != nil {
		return crypto.Address{}, err
	}
	return signer, nil
}

// DelegateAll delegates every pool position of the caller with positive
// balance and a different current delegatee. Cost is linear in the number of
// registered pools.
func (e *Engine) DelegateAll(caller, delegatee crypto.Address) error {
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
	if delegatee.IsZero() {
		return errInvalidDelegatee
	}
	count, err := e.state.PoolCount()
	if err != nil {
		return err
	}
	for id := uint64(0); id < count; id++ {
		pos, err := e.loadPosition(id, caller)
		if err != nil {
			return err
		}
		if pos.Amount.Sign() == 0 || pos.Delegatee == delegatee.Raw() {
			continue
		}
		if err := e.delegate(id, caller, delegatee); err != nil {
			return err
		}
	}
	return nil
}

// DelegationNonce returns the next expected DelegateBySig nonce for account.
func (e *Engine) DelegationNonce(account crypto.Address) uint64 {
	if e == nil || e.votes == nil {
		return 0
	}
	return e.votes.Nonce(account)
}
