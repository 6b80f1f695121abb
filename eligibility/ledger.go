package eligibility

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pkg/errors"
)

// applyTransfer mutates the balance ledger for one vault-token transfer.
//
// The recipient is credited only when the sender is an approved source; value
// arriving from anywhere else does not count toward eligibility even though
// it moved on chain. The sender is always debited, unless the transfer was
// recognized as a liquidity add, in which case the value stays counted
// through the tracked position instead.
//
// Returns the sender's and recipient's balances prior to the transfer.
func (e *Engine) applyTransfer(vault, from, to common.Address, amount *big.Int, fromApproved, suppressDebit bool) (oldFrom, oldTo *big.Int, err error) {
	debit := new(big.Int)
	if !suppressDebit {
		debit.Neg(amount)
	}
	oldFrom, _, err = e.adjustBalance(vault, from, debit)
	if err != nil {
		return nil, nil, err
	}

	credit := new(big.Int)
	if fromApproved {
		credit.Set(amount)
	}
	oldTo, _, err = e.adjustBalance(vault, to, credit)
	if err != nil {
		return nil, nil, err
	}
	return oldFrom, oldTo, nil
}

// adjustBalance applies a signed delta to (vault, owner), feeding the
// resulting positive-part delta into the totals aggregator and refreshing
// the owner's current share. A zero delta still runs the full path so that
// every touched pair drives the recomputation hooks identically.
func (e *Engine) adjustBalance(vault, owner common.Address, delta *big.Int) (old, now *big.Int, err error) {
	acc, err := e.getOrCreateAccount(owner)
	if err != nil {
		return nil, nil, err
	}

	vb, err := e.store.VaultBalance(vault, owner)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load vault balance")
	}
	if vb == nil {
		vb = NewVaultBalance(vault, owner)
	}

	old = new(big.Int).Set(vb.Balance)
	vb.Balance.Add(vb.Balance, delta)
	if err := e.store.SaveVaultBalance(vb); err != nil {
		return nil, nil, errors.Wrap(err, "failed to save vault balance")
	}

	if err := e.applyTotalsDelta(acc, vault, old, vb.Balance); err != nil {
		return nil, nil, err
	}
	return old, vb.Balance, nil
}

// getOrCreateAccount loads the account record, creating and registering it
// in the discovery index on first reference.
func (e *Engine) getOrCreateAccount(addr common.Address) (*Account, error) {
	acc, err := e.store.Account(addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load account")
	}
	if acc != nil {
		return acc, nil
	}
	acc = NewAccount(addr)
	if err := e.store.SaveAccount(acc); err != nil {
		return nil, errors.Wrap(err, "failed to create account")
	}
	return acc, nil
}
