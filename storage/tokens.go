package storage

import (
	"errors"
	"fmt"
	"math/big"

	"stakehub/crypto"
)

const balanceKeyPrefix = "bal:"

var (
	errInsufficientBalance = errors.New("storage: insufficient token balance")
	errInvalidTransfer     = errors.New("storage: transfer amount must be positive")
)

// BalanceLedger is a Database-backed fungible-token ledger. It satisfies the
// staking engine's token collaborator for single-node deployments where no
// external token module exists.
type BalanceLedger struct {
	db Database
}

// NewBalanceLedger wraps a Database as a token balance table.
func NewBalanceLedger(db Database) *BalanceLedger {
	return &BalanceLedger{db: db}
}

func balanceKey(token string, account crypto.Address) []byte {
	key := make([]byte, 0, len(balanceKeyPrefix)+len(token)+1+crypto.AddressLength)
	key = append(key, balanceKeyPrefix...)
	key = append(key, token...)
	key = append(key, ':')
	key = append(key, account.Bytes()...)
	return key
}

// BalanceOf returns the stored balance, zero when the account has none.
func (l *BalanceLedger) BalanceOf(token string, account crypto.Address) (*big.Int, error) {
	raw, err := l.db.Get(balanceKey(token, account))
	if errors.Is(err, ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (l *BalanceLedger) setBalance(token string, account crypto.Address, amount *big.Int) error {
	return l.db.Put(balanceKey(token, account), amount.Bytes())
}

// Mint credits an account out of thin air. Used at genesis provisioning only.
func (l *BalanceLedger) Mint(token string, account crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidTransfer
	}
	balance, err := l.BalanceOf(token, account)
	if err != nil {
		return err
	}
	return l.setBalance(token, account, balance.Add(balance, amount))
}

// Transfer moves tokens between accounts, failing on insufficient funds.
func (l *BalanceLedger) Transfer(token string, from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidTransfer
	}
	fromBal, err := l.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", errInsufficientBalance, from.String(), fromBal, amount)
	}
	toBal, err := l.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := l.setBalance(token, from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.setBalance(token, to, toBal.Add(toBal, amount))
}

// TransferFrom moves tokens on the spender's authority. The single-node
// ledger has no allowance table: the staking engine is its only spender, so
// the authority grant is implicit and the spender argument is not checked.
func (l *BalanceLedger) TransferFrom(token string, _, from, to crypto.Address, amount *big.Int) error {
	return l.Transfer(token, from, to, amount)
}
