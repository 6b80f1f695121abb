package eligibility

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// positivePart returns max(x, 0).
func positivePart(x *big.Int) *big.Int {
	if x.Sign() > 0 {
		return new(big.Int).Set(x)
	}
	return new(big.Int)
}

// positiveDelta returns max(now, 0) - max(old, 0): the change of the
// eligible (positive) portion between two balance values.
func positiveDelta(old, now *big.Int) *big.Int {
	return new(big.Int).Sub(positivePart(now), positivePart(old))
}

// applyTotalsDelta folds one balance change into the running sums: the
// owner's positive total, the per-vault total and the grand total. Only the
// positive portion of a balance ever contributes, and the sums are updated
// incrementally so processing stays O(1) per event.
func (e *Engine) applyTotalsDelta(acc *Account, vault common.Address, old, now *big.Int) error {
	delta := positiveDelta(old, now)

	acc.TotalBalance.Add(acc.TotalBalance, delta)

	vt, err := e.store.VaultTotals(vault)
	if err != nil {
		return errors.Wrap(err, "failed to load vault totals")
	}
	if vt == nil {
		vt = NewVaultTotals(vault)
	}
	vt.TotalEligible.Add(vt.TotalEligible, delta)
	if err := e.store.SaveVaultTotals(vt); err != nil {
		return errors.Wrap(err, "failed to save vault totals")
	}

	totals, err := e.loadTotals()
	if err != nil {
		return err
	}
	totals.TotalEligibleSum.Add(totals.TotalEligibleSum, delta)
	if err := e.store.SaveTotals(totals); err != nil {
		return errors.Wrap(err, "failed to save totals")
	}

	acc.EligibleShare = shareOf(acc.TotalBalance, totals.TotalEligibleSum)
	return errors.Wrap(e.store.SaveAccount(acc), "failed to save account")
}

// shareOf computes an account's fraction of the grand total: zero for a
// non-positive balance, one when the account alone holds a positive balance
// against an empty total.
func shareOf(balance, total *big.Int) decimal.Decimal {
	if balance.Sign() <= 0 {
		return decimal.Zero
	}
	if total.Sign() == 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromBigInt(balance, 0).Div(decimal.NewFromBigInt(total, 0))
}

func (e *Engine) loadTotals() (*EligibleTotals, error) {
	totals, err := e.store.Totals()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load totals")
	}
	if totals == nil {
		totals = NewEligibleTotals()
	}
	return totals, nil
}
