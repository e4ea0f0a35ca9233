package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"stakehub/crypto"
	"stakehub/native/staking"
	"stakehub/native/votes"
)

const (
	poolKeyPrefix     = "pool:"
	positionKeyPrefix = "pos:"
	poolCountKey      = "poolcount"
	votesKey          = "votes"
	heightKey         = "height"
)

// LedgerStore persists the staking ledger into a Database: the pool table and
// position table as individually keyed JSON records, the voting checkpoint
// log and nonce table as a single snapshot blob, plus the operation height
// counter. It implements the staking engine's state interface.
type LedgerStore struct {
	db Database
}

// NewLedgerStore wraps a Database as the engine's persistence layer.
func NewLedgerStore(db Database) *LedgerStore {
	return &LedgerStore{db: db}
}

func poolKey(id uint64) []byte {
	key := make([]byte, len(poolKeyPrefix)+8)
	copy(key, poolKeyPrefix)
	binary.BigEndian.PutUint64(key[len(poolKeyPrefix):], id)
	return key
}

func positionKey(poolID uint64, account crypto.Address) []byte {
	key := make([]byte, len(positionKeyPrefix)+8+crypto.AddressLength)
	copy(key, positionKeyPrefix)
	binary.BigEndian.PutUint64(key[len(positionKeyPrefix):], poolID)
	copy(key[len(positionKeyPrefix)+8:], account.Bytes())
	return key
}

// PoolCount returns the number of pools appended so far.
func (s *LedgerStore) PoolCount() (uint64, error) {
	raw, err := s.db.Get([]byte(poolCountKey))
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("storage: malformed pool count record")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// GetPool loads a pool record, nil when the id has never been assigned.
func (s *LedgerStore) GetPool(id uint64) (*staking.Pool, error) {
	raw, err := s.db.Get(poolKey(id))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pool := new(staking.Pool)
	if err := json.Unmarshal(raw, pool); err != nil {
		return nil, fmt.Errorf("storage: decode pool %d: %w", id, err)
	}
	return pool, nil
}

// PutPool stores a pool record under its id.
func (s *LedgerStore) PutPool(id uint64, pool *staking.Pool) error {
	raw, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("storage: encode pool %d: %w", id, err)
	}
	return s.db.Put(poolKey(id), raw)
}

// AppendPool stores a new pool at the next free id and returns that id.
func (s *LedgerStore) AppendPool(pool *staking.Pool) (uint64, error) {
	count, err := s.PoolCount()
	if err != nil {
		return 0, err
	}
	if err := s.PutPool(count, pool); err != nil {
		return 0, err
	}
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, count+1)
	if err := s.db.Put([]byte(poolCountKey), next); err != nil {
		return 0, err
	}
	return count, nil
}

// GetPosition loads a position record, nil when the account never staked.
func (s *LedgerStore) GetPosition(poolID uint64, account crypto.Address) (*staking.Position, error) {
	raw, err := s.db.Get(positionKey(poolID, account))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pos := new(staking.Position)
	if err := json.Unmarshal(raw, pos); err != nil {
		return nil, fmt.Errorf("storage: decode position: %w", err)
	}
	return pos, nil
}

// PutPosition stores a position record under (pool id, account).
func (s *LedgerStore) PutPosition(poolID uint64, account crypto.Address, pos *staking.Position) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("storage: encode position: %w", err)
	}
	return s.db.Put(positionKey(poolID, account), raw)
}

// PoolPositions returns the accounts holding a position in the pool, in key
// order.
func (s *LedgerStore) PoolPositions(poolID uint64) ([]crypto.Address, error) {
	prefix := positionKey(poolID, crypto.Address{})
	prefix = prefix[:len(positionKeyPrefix)+8]
	keys, err := s.db.Keys(prefix)
	if err != nil {
		return nil, err
	}
	accounts := make([]crypto.Address, 0, len(keys))
	for _, key := range keys {
		raw := key[len(prefix):]
		addr, err := crypto.NewAddress(crypto.StakePrefix, raw)
		if err != nil {
			return nil, fmt.Errorf("storage: malformed position key: %w", err)
		}
		accounts = append(accounts, addr)
	}
	return accounts, nil
}

// SaveVotes persists the checkpoint ledger snapshot.
func (s *LedgerStore) SaveVotes(ledger *votes.Ledger) error {
	raw, err := json.Marshal(ledger.Snapshot())
	if err != nil {
		return fmt.Errorf("storage: encode votes snapshot: %w", err)
	}
	return s.db.Put([]byte(votesKey), raw)
}

// LoadVotes restores the checkpoint ledger from its persisted snapshot, a
// no-op when none has been saved yet.
func (s *LedgerStore) LoadVotes(ledger *votes.Ledger) error {
	raw, err := s.db.Get([]byte(votesKey))
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	snap := new(votes.Snapshot)
	if err := json.Unmarshal(raw, snap); err != nil {
		return fmt.Errorf("storage: decode votes snapshot: %w", err)
	}
	ledger.Restore(snap)
	return nil
}

// SaveHeight persists the operation height counter.
func (s *LedgerStore) SaveHeight(height uint64) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, height)
	return s.db.Put([]byte(heightKey), raw)
}

// LoadHeight returns the persisted operation height counter, zero when unset.
func (s *LedgerStore) LoadHeight() (uint64, error) {
	raw, err := s.db.Get([]byte(heightKey))
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("storage: malformed height record")
	}
	return binary.BigEndian.Uint64(raw), nil
}
