package eligibility

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cyclofinance/cy-ledger/epoch"
	"github.com/cyclofinance/cy-ledger/inter"
)

// tickCache memoizes pool tick lookups for the duration of one snapshot
// pass; it is discarded when the pass ends.
type tickCache struct {
	state PoolState
	ticks map[common.Address]tickResult
}

type tickResult struct {
	tick int32
	ok   bool
}

func newTickCache(state PoolState) *tickCache {
	return &tickCache{
		state: state,
		ticks: make(map[common.Address]tickResult),
	}
}

func (c *tickCache) currentTick(pool common.Address) (int32, bool) {
	if res, hit := c.ticks[pool]; hit {
		return res.tick, res.ok
	}
	tick, ok := c.state.CurrentTick(pool)
	c.ticks[pool] = tickResult{tick: tick, ok: ok}
	return tick, ok
}

// maybeTakeSnapshot runs the epoch-day averaging pass when the observed time
// has advanced into a new snapshot day. The last-snapshot markers are
// persisted before the account pass so a crash mid-pass cannot re-run the
// same day; partial updates are accepted in the absence of transactional
// scoping.
func (e *Engine) maybeTakeSnapshot(ts *epoch.TimeState) error {
	schedule := e.rules.Epochs

	currentEpoch := schedule.IndexOf(ts.Current)
	currentDay := schedule.DayOf(ts.Current)

	prevEpoch := ts.LastSnapshotEpoch
	prevDay := ts.LastSnapshotDay

	if currentEpoch < prevEpoch {
		// Defensive: cannot snapshot for an older epoch than already taken.
		return nil
	}
	newEpoch := currentEpoch > prevEpoch

	var count inter.Day
	if newEpoch {
		count = currentDay
	} else {
		count = currentDay - prevDay
	}
	if count <= 0 {
		return nil
	}

	ts.LastSnapshotEpoch = currentEpoch
	ts.LastSnapshotDay = currentDay
	if err := e.store.SaveTimeState(ts); err != nil {
		return errors.Wrap(err, "failed to save time state")
	}

	e.log.WithFields(logrus.Fields{
		"epoch":    schedule.Record(currentEpoch).Label,
		"day":      currentDay,
		"prevDay":  prevDay,
		"count":    count,
		"newEpoch": newEpoch,
	}).Info("taking daily snapshot")

	return e.runSnapshotPass(newEpoch, prevDay, currentDay, count)
}

// runSnapshotPass folds the current effective balances into every account's
// running epoch average and recomputes the snapshot totals and shares.
// O(accounts x vaults); runs to completion before further events.
func (e *Engine) runSnapshotPass(newEpoch bool, prevDay, currentDay, count inter.Day) error {
	ticks := newTickCache(e.chain)
	vaultSnapshots := make(map[common.Address]*big.Int)

	accounts, err := e.store.Accounts()
	if err != nil {
		return errors.Wrap(err, "failed to list accounts")
	}

	for _, addr := range accounts {
		acc, err := e.store.Account(addr)
		if err != nil {
			return errors.Wrap(err, "failed to load account")
		}
		if acc == nil {
			continue
		}

		positions, err := e.store.LiquidityV3Of(addr)
		if err != nil {
			return errors.Wrap(err, "failed to list v3 positions")
		}
		balances, err := e.store.VaultBalancesOf(addr)
		if err != nil {
			return errors.Wrap(err, "failed to list vault balances")
		}

		accountSnapshot := new(big.Int)
		for _, vb := range balances {
			effective := e.effectiveBalance(vb, positions, ticks)

			newAvg := weightedAverage(vb.AvgSnapshot, effective, newEpoch, prevDay, currentDay, count)
			vb.AvgSnapshot = newAvg
			if err := e.store.SaveVaultBalance(vb); err != nil {
				return errors.Wrap(err, "failed to save vault balance")
			}

			normalized := positivePart(newAvg)
			accountSnapshot.Add(accountSnapshot, normalized)

			sum, ok := vaultSnapshots[vb.Vault]
			if !ok {
				sum = new(big.Int)
				vaultSnapshots[vb.Vault] = sum
			}
			sum.Add(sum, normalized)
		}

		acc.TotalBalanceSnapshot = accountSnapshot
		if err := e.store.SaveAccount(acc); err != nil {
			return errors.Wrap(err, "failed to save account")
		}
	}

	grandTotal, err := e.saveVaultSnapshots(vaultSnapshots)
	if err != nil {
		return err
	}
	return e.updateSnapshotShares(accounts, grandTotal)
}

// effectiveBalance starts from the raw vault balance and excludes the
// deposit value of every V3 position on the same vault whose pool tick is
// currently outside the position's range. V2 positions have no price range
// and are never excluded. An unavailable tick skips the exclusion.
func (e *Engine) effectiveBalance(vb *VaultBalance, positions []*LiquidityV3Position, ticks *tickCache) *big.Int {
	effective := new(big.Int).Set(vb.Balance)
	for _, pos := range positions {
		if pos.Vault != vb.Vault {
			continue
		}
		tick, ok := ticks.currentTick(pos.Pool)
		if !ok {
			continue
		}
		if !pos.InRange(tick) {
			effective.Sub(effective, pos.DepositBalance)
		}
	}
	return effective
}

// weightedAverage folds the newly observed balance into the running epoch
// average: (oldAvg*prevDay + balance*count) / currentDay, truncating. A new
// epoch discards the previous average and starts from scratch.
func weightedAverage(oldAvg, balance *big.Int, newEpoch bool, prevDay, currentDay, count inter.Day) *big.Int {
	sum := new(big.Int)
	if !newEpoch {
		sum.Mul(oldAvg, big.NewInt(int64(prevDay)))
	}
	weighted := new(big.Int).Mul(balance, big.NewInt(int64(count)))
	sum.Add(sum, weighted)
	return sum.Quo(sum, big.NewInt(int64(currentDay)))
}

// saveVaultSnapshots persists the per-vault snapshot totals and returns the
// snapshot grand total. Vaults are written in address order so re-running
// the pass on identical state produces identical writes.
func (e *Engine) saveVaultSnapshots(vaultSnapshots map[common.Address]*big.Int) (*big.Int, error) {
	vaults := make([]common.Address, 0, len(vaultSnapshots))
	for vault := range vaultSnapshots {
		vaults = append(vaults, vault)
	}
	sort.Slice(vaults, func(i, j int) bool {
		return bytes.Compare(vaults[i][:], vaults[j][:]) < 0
	})

	grandTotal := new(big.Int)
	for _, vault := range vaults {
		normalized := positivePart(vaultSnapshots[vault])
		grandTotal.Add(grandTotal, normalized)

		vt, err := e.store.VaultTotals(vault)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load vault totals")
		}
		if vt == nil {
			vt = NewVaultTotals(vault)
		}
		vt.TotalEligibleSnapshot = normalized
		if err := e.store.SaveVaultTotals(vt); err != nil {
			return nil, errors.Wrap(err, "failed to save vault totals")
		}
	}

	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	totals.TotalEligibleSumSnapshot = grandTotal
	if err := e.store.SaveTotals(totals); err != nil {
		return nil, errors.Wrap(err, "failed to save totals")
	}
	return grandTotal, nil
}

// updateSnapshotShares recomputes every account's snapshot share against the
// new grand total.
func (e *Engine) updateSnapshotShares(accounts []common.Address, grandTotal *big.Int) error {
	for _, addr := range accounts {
		acc, err := e.store.Account(addr)
		if err != nil {
			return errors.Wrap(err, "failed to load account")
		}
		if acc == nil {
			continue
		}
		acc.EligibleShareSnapshot = shareOf(acc.TotalBalanceSnapshot, grandTotal)
		if err := e.store.SaveAccount(acc); err != nil {
			return errors.Wrap(err, "failed to save account")
		}
	}
	return nil
}
