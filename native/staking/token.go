package staking

import (
	"math/big"

	"stakehub/crypto"
)

// TokenLedger is the external fungible-token collaborator. The engine never
// holds custody logic of its own; every asset movement goes through this
// interface and a returned error aborts the whole operation.
type TokenLedger interface {
	// Transfer moves tokens out of the module vault.
	Transfer(token string, from, to crypto.Address, amount *big.Int) error
	// TransferFrom pulls tokens from an account into the module vault on the
	// spender's authority.
	TransferFrom(token string, spender, from, to crypto.Address, amount *big.Int) error
	// BalanceOf reports the current balance of the account for a token.
	BalanceOf(token string, account crypto.Address) (*big.Int, error)
}
