package eligibility

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cyclofinance/cy-ledger/inter"
)

// applyV3Add records a V3 liquidity deposit keyed by
// (manager, owner, vault, tokenID). On first creation the position's pool,
// fee tier and tick range are resolved through the Positions collaborator;
// if that lookup fails the transfer falls back to ordinary semantics and no
// position is created (reported by the false return).
func (e *Engine) applyV3Add(ev *inter.TokenTransfer, act Action) (bool, error) {
	owner := ev.TxFrom
	manager := *ev.TxTo

	pos, err := e.store.LiquidityV3(manager, owner, ev.Token, act.TokenID)
	if err != nil {
		return false, errors.Wrap(err, "failed to load v3 position")
	}
	if pos == nil {
		meta, ok := e.chain.PositionOf(manager, act.TokenID)
		if !ok {
			e.log.WithFields(logrus.Fields{
				"manager": manager,
				"tokenId": act.TokenID,
			}).Warn("v3 position metadata unavailable, treating as ordinary transfer")
			return false, nil
		}
		pos = &LiquidityV3Position{
			Manager:        manager,
			Owner:          owner,
			Vault:          ev.Token,
			TokenID:        new(big.Int).Set(act.TokenID),
			Liquidity:      new(big.Int).Set(act.Liquidity),
			DepositBalance: new(big.Int).Set(ev.Value),
			Pool:           e.resolveV3Pool(ev.To, meta),
			FeeTier:        meta.Fee,
			LowerTick:      meta.LowerTick,
			UpperTick:      meta.UpperTick,
		}
	} else {
		pos.Liquidity.Add(pos.Liquidity, act.Liquidity)
		pos.DepositBalance.Add(pos.DepositBalance, ev.Value)
	}
	if err := e.store.SaveLiquidityV3(pos); err != nil {
		return false, errors.Wrap(err, "failed to save v3 position")
	}

	e.log.WithFields(logrus.Fields{
		"manager":   manager,
		"owner":     owner,
		"vault":     ev.Token,
		"tokenId":   act.TokenID,
		"liquidity": act.Liquidity,
		"deposit":   ev.Value,
	}).Debug("v3 liquidity add")
	return true, nil
}

// resolveV3Pool derives the position's pool from its (token0, token1, fee)
// triple through the counterparty's factory. Falls back to the transfer
// counterparty itself when the lookup fails.
func (e *Engine) resolveV3Pool(counterparty common.Address, meta PositionMeta) common.Address {
	factory, ok := e.classifier.factoryOf(counterparty)
	if !ok {
		return counterparty
	}
	pool, ok := e.chain.PoolFor(factory, meta.Token0, meta.Token1, meta.Fee)
	if !ok {
		return counterparty
	}
	return pool
}

// applyV3Withdraw reduces the position in proportion to the withdrawn
// liquidity and returns the vault-token amount to debit from the recipient's
// balance (the withdrawn value itself arrives through the pool's transfer
// and is credited by the ordinary approved path). The position is removed
// only when liquidity reaches zero.
func (e *Engine) applyV3Withdraw(ev *inter.TokenTransfer, act Action) (*big.Int, error) {
	owner := ev.To
	manager := *ev.TxTo

	pos, err := e.store.LiquidityV3(manager, owner, ev.Token, act.TokenID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load v3 position")
	}
	if pos == nil {
		return new(big.Int), nil
	}
	if pos.Liquidity.Sign() == 0 {
		return nil, errors.Errorf("v3 position %s/%s/%s has zero liquidity", manager, owner, pos.TokenID)
	}

	deduction := proportionalDeduction(pos.DepositBalance, act.Liquidity, pos.Liquidity)
	pos.DepositBalance.Sub(pos.DepositBalance, deduction)
	pos.Liquidity.Sub(pos.Liquidity, act.Liquidity)

	if pos.Liquidity.Sign() == 0 {
		if err := e.store.DeleteLiquidityV3(manager, owner, ev.Token, act.TokenID); err != nil {
			return nil, errors.Wrap(err, "failed to delete v3 position")
		}
	} else if err := e.store.SaveLiquidityV3(pos); err != nil {
		return nil, errors.Wrap(err, "failed to save v3 position")
	}

	e.log.WithFields(logrus.Fields{
		"manager":   manager,
		"owner":     owner,
		"vault":     ev.Token,
		"tokenId":   act.TokenID,
		"liquidity": act.Liquidity,
		"deduction": deduction,
	}).Debug("v3 liquidity withdraw")
	return deduction, nil
}

// ProcessNFTTransfer handles an ownership transfer of a position NFT. V3
// positions are non-fungible: the record is closed outright for the old
// owner and the full tracked deposit is debited. Mints are skipped (handled
// by the liquidity add), as are self transfers.
func (e *Engine) ProcessNFTTransfer(ev *inter.NFTTransfer) error {
	if ev.From != (common.Address{}) && ev.From != ev.To {
		if err := e.closeV3Positions(ev); err != nil {
			return err
		}
	}
	return e.observe(ev.EventMeta)
}

func (e *Engine) closeV3Positions(ev *inter.NFTTransfer) error {
	positions, err := e.store.LiquidityV3Of(ev.From)
	if err != nil {
		return errors.Wrap(err, "failed to list v3 positions")
	}
	for _, pos := range positions {
		if pos.Manager != ev.Manager || pos.TokenID.Cmp(ev.TokenID) != 0 {
			continue
		}
		if err := e.store.DeleteLiquidityV3(pos.Manager, pos.Owner, pos.Vault, pos.TokenID); err != nil {
			return errors.Wrap(err, "failed to delete v3 position")
		}
		if _, _, err := e.adjustBalance(pos.Vault, pos.Owner, new(big.Int).Neg(pos.DepositBalance)); err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{
			"manager": pos.Manager,
			"owner":   pos.Owner,
			"vault":   pos.Vault,
			"tokenId": pos.TokenID,
			"deposit": pos.DepositBalance,
			"to":      ev.To,
		}).Debug("v3 position transferred, closed for old owner")
	}
	return nil
}
