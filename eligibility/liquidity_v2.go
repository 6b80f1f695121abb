package eligibility

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cyclofinance/cy-ledger/inter"
)

// one18 is the fixed-point scale for proportional withdraw ratios.
var one18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// applyV2Add records a V2 liquidity deposit: the minted LP shares and the
// vault-token value that backs them, keyed by (pool, owner, vault). The pool
// is registered as a tracked LP token so its share transfers are observed
// from here on.
func (e *Engine) applyV2Add(ev *inter.TokenTransfer, act Action) error {
	owner := ev.TxFrom

	pos, err := e.store.LiquidityV2(act.Pool, owner, ev.Token)
	if err != nil {
		return errors.Wrap(err, "failed to load v2 position")
	}
	if pos == nil {
		pos = &LiquidityV2Position{
			Pool:           act.Pool,
			Owner:          owner,
			Vault:          ev.Token,
			Liquidity:      new(big.Int).Set(act.Shares),
			DepositBalance: new(big.Int).Set(ev.Value),
		}
	} else {
		pos.Liquidity.Add(pos.Liquidity, act.Shares)
		pos.DepositBalance.Add(pos.DepositBalance, ev.Value)
	}
	if err := e.store.SaveLiquidityV2(pos); err != nil {
		return errors.Wrap(err, "failed to save v2 position")
	}

	if err := e.trackPool(act.Pool); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"pool":    act.Pool,
		"owner":   owner,
		"vault":   ev.Token,
		"shares":  act.Shares,
		"deposit": ev.Value,
	}).Debug("v2 liquidity add")
	return nil
}

// handleLPTransfer processes a transfer of a tracked pool's own LP share
// token. Mints are skipped (already accounted by the liquidity add), as are
// self transfers. For each pool leg that is a tracked vault token, the
// owner's position is reduced proportionally.
func (e *Engine) handleLPTransfer(ev *inter.TokenTransfer) error {
	if ev.From == (common.Address{}) || ev.From == ev.To {
		return nil
	}

	token0, token1, ok := e.chain.PoolTokens(ev.Token)
	if !ok {
		return nil
	}
	for _, vault := range []common.Address{token0, token1} {
		if !e.tracksVault(vault) {
			continue
		}
		if err := e.applyV2Deduction(ev, vault); err != nil {
			return err
		}
	}
	return nil
}

// applyV2Deduction reduces the (pool, owner, vault) position in proportion
// to the transferred share amount and debits the deducted deposit value from
// the owner's vault balance. A transfer to the zero address or back to the
// pool is a withdrawal (the value returns through the pool's own transfer);
// anything else moves the position to a holder tracked independently.
func (e *Engine) applyV2Deduction(ev *inter.TokenTransfer, vault common.Address) error {
	pos, err := e.store.LiquidityV2(ev.Token, ev.From, vault)
	if err != nil {
		return errors.Wrap(err, "failed to load v2 position")
	}
	if pos == nil {
		return nil
	}
	if pos.Liquidity.Sign() == 0 {
		// A zero-liquidity position must have been removed already.
		return errors.Errorf("v2 position %s/%s/%s has zero liquidity", ev.Token, ev.From, vault)
	}

	deduction := proportionalDeduction(pos.DepositBalance, ev.Value, pos.Liquidity)
	pos.DepositBalance.Sub(pos.DepositBalance, deduction)
	pos.Liquidity.Sub(pos.Liquidity, ev.Value)

	if pos.Liquidity.Sign() == 0 {
		if err := e.store.DeleteLiquidityV2(ev.Token, ev.From, vault); err != nil {
			return errors.Wrap(err, "failed to delete v2 position")
		}
	} else if err := e.store.SaveLiquidityV2(pos); err != nil {
		return errors.Wrap(err, "failed to save v2 position")
	}

	if _, _, err := e.adjustBalance(vault, ev.From, new(big.Int).Neg(deduction)); err != nil {
		return err
	}

	kind := "transfer"
	if ev.To == (common.Address{}) || ev.To == ev.Token {
		kind = "withdraw"
	}
	e.log.WithFields(logrus.Fields{
		"pool":      ev.Token,
		"owner":     ev.From,
		"vault":     vault,
		"shares":    ev.Value,
		"deduction": deduction,
		"kind":      kind,
	}).Debug("v2 liquidity deduction")
	return nil
}

// proportionalDeduction computes deposit*shares/liquidity at fixed-point
// 18-decimal precision with truncation, matching the preserved
// deposit/liquidity ratio invariant.
func proportionalDeduction(deposit, shares, liquidity *big.Int) *big.Int {
	ratio := new(big.Int).Mul(shares, one18)
	ratio.Div(ratio, liquidity)
	deduction := new(big.Int).Mul(deposit, ratio)
	return deduction.Div(deduction, one18)
}
