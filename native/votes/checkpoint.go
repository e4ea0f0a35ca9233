package votes

import (
	"errors"
	"math/big"

	"stakehub/crypto"
)

var (
	// ErrHeightNotFinal indicates a historical query at or beyond the current
	// height, which would answer about still-mutable state.
	ErrHeightNotFinal = errors.New("votes: height not yet finalised")
	// ErrVotesUnderflow indicates an attempt to remove more voting power than a
	// delegate currently holds. It signals a broken ledger invariant.
	ErrVotesUnderflow = errors.New("votes: vote amount underflows current votes")
	// ErrNonceMismatch indicates a delegation nonce that is not the signer's
	// next expected nonce.
	ErrNonceMismatch = errors.New("votes: nonce mismatch")
)

// Checkpoint marks a delegate's cumulative voting power from a given height.
type Checkpoint struct {
	FromHeight uint64   `json:"fromHeight"`
	Votes      *big.Int `json:"votes"`
}

// Ledger is the append-only per-delegate voting power log. Two writes within
// the same height collapse into a single entry. Heights are supplied by the
// configured height source, so the ledger itself carries no clock.
type Ledger struct {
	checkpoints map[[20]byte][]Checkpoint
	nonces      map[[20]byte]uint64
	totalVotes  *big.Int
	heightFn    func() uint64
}

// NewLedger constructs an empty ledger reading heights from heightFn.
func NewLedger(heightFn func() uint64) *Ledger {
	return &Ledger{
		checkpoints: make(map[[20]byte][]Checkpoint),
		nonces:      make(map[[20]byte]uint64),
		totalVotes:  big.NewInt(0),
		heightFn:    heightFn,
	}
}

func (l *Ledger) height() uint64 {
	if l == nil || l.heightFn == nil {
		return 0
	}
	return l.heightFn()
}

// CurrentVotes returns the delegate's latest checkpoint value, zero if none.
func (l *Ledger) CurrentVotes(delegate crypto.Address) *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	entries := l.checkpoints[delegate.Raw()]
	if len(entries) == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(entries[len(entries)-1].Votes)
}

// TotalVotes returns the sum of every delegate's latest checkpoint value.
func (l *Ledger) TotalVotes() *big.Int {
	if l == nil || l.totalVotes == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(l.totalVotes)
}

// PriorVotes returns the delegate's voting power as of the given height. The
// height must be strictly in the past relative to the current height.
func (l *Ledger) PriorVotes(delegate crypto.Address, height uint64) (*big.Int, error) {
	if l == nil {
		return nil, ErrHeightNotFinal
	}
	if height >= l.height() {
		return nil, ErrHeightNotFinal
	}
	entries := l.checkpoints[delegate.Raw()]
	if len(entries) == 0 {
		return big.NewInt(0), nil
	}
	// Common case: no checkpoint written after the queried height.
	if entries[len(entries)-1].FromHeight <= height {
		return new(big.Int).Set(entries[len(entries)-1].Votes), nil
	}
	if entries[0].FromHeight > height {
		return big.NewInt(0), nil
	}
	lower, upper := 0, len(entries)-1
	for upper > lower {
		// Rounds toward upper so the loop always narrows.
		center := upper - (upper-lower)/2
		cp := entries[center]
		switch {
		case cp.FromHeight == height:
			return new(big.Int).Set(cp.Votes), nil
		case cp.FromHeight < height:
			lower = center
		default:
			upper = center - 1
		}
	}
	return new(big.Int).Set(entries[lower].Votes), nil
}

// WriteCheckpoint records newVotes for the delegate at the current height,
// merging in place when the latest entry already sits at that height, and
// adjusts the running total by the signed delta.
func (l *Ledger) WriteCheckpoint(delegate crypto.Address, newVotes *big.Int) {
	if l == nil || newVotes == nil {
		return
	}
	key := delegate.Raw()
	entries := l.checkpoints[key]
	height := l.height()

	old := big.NewInt(0)
	if len(entries) > 0 {
		old = entries[len(entries)-1].Votes
	}
	delta := new(big.Int).Sub(newVotes, old)
	l.totalVotes = new(big.Int).Add(l.totalVotes, delta)

	stored := new(big.Int).Set(newVotes)
	if len(entries) > 0 && entries[len(entries)-1].FromHeight == height {
		entries[len(entries)-1].Votes = stored
	} else {
		entries = append(entries, Checkpoint{FromHeight: height, Votes: stored})
	}
	l.checkpoints[key] = entries
}

// Increase adds votes to the delegate's current voting power.
func (l *Ledger) Increase(delegate crypto.Address, amount *big.Int) error {
	if l == nil || amount == nil || amount.Sign() == 0 {
		return nil
	}
	current := l.CurrentVotes(delegate)
	l.WriteCheckpoint(delegate, current.Add(current, amount))
	return nil
}

// Decrease removes votes from the delegate's current voting power. Removing
// more than the delegate holds is a ledger invariant breach.
func (l *Ledger) Decrease(delegate crypto.Address, amount *big.Int) error {
	if l == nil || amount == nil || amount.Sign() == 0 {
		return nil
	}
	current := l.CurrentVotes(delegate)
	if current.Cmp(amount) < 0 {
		return ErrVotesUnderflow
	}
	l.WriteCheckpoint(delegate, current.Sub(current, amount))
	return nil
}

// CheckpointCount returns the number of entries recorded for the delegate.
func (l *Ledger) CheckpointCount(delegate crypto.Address) int {
	if l == nil {
		return 0
	}
	return len(l.checkpoints[delegate.Raw()])
}

// CheckpointAt returns a copy of the delegate's i-th checkpoint.
func (l *Ledger) CheckpointAt(delegate crypto.Address, i int) (Checkpoint, bool) {
	if l == nil {
		return Checkpoint{}, false
	}
	entries := l.checkpoints[delegate.Raw()]
	if i < 0 || i >= len(entries) {
		return Checkpoint{}, false
	}
	cp := entries[i]
	return Checkpoint{FromHeight: cp.FromHeight, Votes: new(big.Int).Set(cp.Votes)}, true
}

// Nonce returns the next expected delegation nonce for the account.
func (l *Ledger) Nonce(account crypto.Address) uint64 {
	if l == nil {
		return 0
	}
	return l.nonces[account.Raw()]
}

// ConsumeNonce accepts the supplied nonce when it equals the account's next
// expected nonce and increments the stored value, consuming it atomically.
func (l *Ledger) ConsumeNonce(account crypto.Address, nonce uint64) error {
	if l == nil {
		return ErrNonceMismatch
	}
	key := account.Raw()
	if l.nonces[key] != nonce {
		return ErrNonceMismatch
	}
	l.nonces[key] = nonce + 1
	return nil
}
