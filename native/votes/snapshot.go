package votes

import (
	"math/big"
	"sort"

	"stakehub/crypto"
)

// DelegateLog captures one delegate's full checkpoint history.
type DelegateLog struct {
	Delegate    [20]byte     `json:"delegate"`
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// NonceEntry captures one account's next expected delegation nonce.
type NonceEntry struct {
	Account [20]byte `json:"account"`
	Nonce   uint64   `json:"nonce"`
}

// Snapshot is the durable form of the ledger, ordered deterministically so
// repeated snapshots of the same state encode identically.
type Snapshot struct {
	Logs       []DelegateLog `json:"logs"`
	Nonces     []NonceEntry  `json:"nonces"`
	TotalVotes *big.Int      `json:"totalVotes"`
}

// Snapshot copies the ledger contents into their durable form.
func (l *Ledger) Snapshot() *Snapshot {
	if l == nil {
		return &Snapshot{TotalVotes: big.NewInt(0)}
	}
	snap := &Snapshot{TotalVotes: l.TotalVotes()}
	for key, entries := range l.checkpoints {
		log := DelegateLog{Delegate: key, Checkpoints: make([]Checkpoint, 0, len(entries))}
		for _, cp := range entries {
			log.Checkpoints = append(log.Checkpoints, Checkpoint{
				FromHeight: cp.FromHeight,
				Votes:      new(big.Int).Set(cp.Votes),
			})
		}
		snap.Logs = append(snap.Logs, log)
	}
	sort.Slice(snap.Logs, func(i, j int) bool {
		return string(snap.Logs[i].Delegate[:]) < string(snap.Logs[j].Delegate[:])
	})
	for key, nonce := range l.nonces {
		snap.Nonces = append(snap.Nonces, NonceEntry{Account: key, Nonce: nonce})
	}
	sort.Slice(snap.Nonces, func(i, j int) bool {
		return string(snap.Nonces[i].Account[:]) < string(snap.Nonces[j].Account[:])
	})
	return snap
}

// Restore replaces the ledger contents with the snapshot's.
func (l *Ledger) Restore(snap *Snapshot) {
	if l == nil || snap == nil {
		return
	}
	l.checkpoints = make(map[[20]byte][]Checkpoint, len(snap.Logs))
	l.nonces = make(map[[20]byte]uint64, len(snap.Nonces))
	for _, log := range snap.Logs {
		entries := make([]Checkpoint, 0, len(log.Checkpoints))
		for _, cp := range log.Checkpoints {
			v := cp.Votes
			if v == nil {
				v = big.NewInt(0)
			}
			entries = append(entries, Checkpoint{FromHeight: cp.FromHeight, Votes: new(big.Int).Set(v)})
		}
		l.checkpoints[log.Delegate] = entries
	}
	for _, entry := range snap.Nonces {
		l.nonces[entry.Account] = entry.Nonce
	}
	if snap.TotalVotes != nil {
		l.totalVotes = new(big.Int).Set(snap.TotalVotes)
	} else {
		l.totalVotes = big.NewInt(0)
	}
}

// Delegates returns every delegate that has at least one checkpoint.
func (l *Ledger) Delegates() []crypto.Address {
	if l == nil {
		return nil
	}
	out := make([]crypto.Address, 0, len(l.checkpoints))
	for key := range l.checkpoints {
		out = append(out, crypto.MustNewAddress(crypto.StakePrefix, key[:]))
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Bytes()) < string(out[j].Bytes()) })
	return out
}
