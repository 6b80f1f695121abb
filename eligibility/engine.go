package eligibility

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cyclofinance/cy-ledger/cyclo"
	"github.com/cyclofinance/cy-ledger/epoch"
	"github.com/cyclofinance/cy-ledger/inter"
)

// Engine consumes the ordered event stream and maintains the eligibility
// state. Single-threaded by contract: callers feed events one at a time, in
// ascending (block, logIndex) order.
type Engine struct {
	rules      cyclo.Rules
	store      Store
	chain      ChainReader
	classifier *Classifier

	time *epoch.TimeState

	trackedVaults   map[common.Address]struct{}
	trackedReceipts map[common.Address]struct{}
	trackedPools    map[common.Address]struct{}

	log *logrus.Entry
}

// New builds an engine over the given rules, store and chain reader, loading
// the persisted time state and the tracked vault/receipt/pool sets.
func New(rules cyclo.Rules, store Store, chain ChainReader, lg *logrus.Logger) (*Engine, error) {
	e := &Engine{
		rules:           rules,
		store:           store,
		chain:           chain,
		classifier:      NewClassifier(rules, chain),
		trackedVaults:   make(map[common.Address]struct{}),
		trackedReceipts: make(map[common.Address]struct{}),
		trackedPools:    make(map[common.Address]struct{}),
		log:             lg.WithField("module", "eligibility"),
	}

	for vault := range rules.Vaults {
		e.trackedVaults[vault] = struct{}{}
		desc := rules.Vaults[vault]
		e.trackedReceipts[desc.Receipt] = struct{}{}
	}

	vaults, err := store.VaultInfos()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load vault registry")
	}
	for _, v := range vaults {
		e.trackedVaults[v.Address] = struct{}{}
	}
	receipts, err := store.ReceiptInfos()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load receipt registry")
	}
	for _, r := range receipts {
		e.trackedReceipts[r.Address] = struct{}{}
	}
	pools, err := store.TrackedPools()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tracked pools")
	}
	for _, pool := range pools {
		e.trackedPools[pool] = struct{}{}
	}

	ts, err := store.TimeState()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load time state")
	}
	if ts == nil {
		ts = &epoch.TimeState{}
	}
	e.time = ts

	e.log.WithFields(logrus.Fields{
		"vaults":   len(e.trackedVaults),
		"receipts": len(e.trackedReceipts),
		"pools":    len(e.trackedPools),
	}).Info("eligibility engine initialized")
	return e, nil
}

// Rules returns the network rules the engine runs under.
func (e *Engine) Rules() cyclo.Rules {
	return e.rules
}

// TracksToken reports whether ERC20 transfers of the token are consumed by
// the engine: vault tokens and discovered LP share tokens.
func (e *Engine) TracksToken(token common.Address) bool {
	return e.tracksVault(token) || e.tracksPool(token)
}

// TracksReceipt reports whether the address is a tracked vault receipt.
func (e *Engine) TracksReceipt(receipt common.Address) bool {
	_, ok := e.trackedReceipts[receipt]
	return ok
}

func (e *Engine) tracksVault(token common.Address) bool {
	_, ok := e.trackedVaults[token]
	return ok
}

func (e *Engine) tracksPool(token common.Address) bool {
	_, ok := e.trackedPools[token]
	return ok
}

// trackPool registers a pool's LP share token for transfer tracking. Idempotent.
func (e *Engine) trackPool(pool common.Address) error {
	if _, ok := e.trackedPools[pool]; ok {
		return nil
	}
	e.trackedPools[pool] = struct{}{}
	if err := e.store.SaveTrackedPool(pool); err != nil {
		return errors.Wrap(err, "failed to save tracked pool")
	}
	e.log.WithField("pool", pool).Info("tracking new liquidity pool")
	return nil
}

// ProcessTokenTransfer dispatches an ERC20 transfer to the vault ledger or
// the LP share tracker. Transfers of unknown tokens are ignored.
func (e *Engine) ProcessTokenTransfer(ev *inter.TokenTransfer) error {
	switch {
	case e.tracksVault(ev.Token):
		if err := e.handleVaultTransfer(ev); err != nil {
			return err
		}
	case e.tracksPool(ev.Token):
		if err := e.handleLPTransfer(ev); err != nil {
			return err
		}
	default:
		return nil
	}
	return e.observe(ev.EventMeta)
}

// handleVaultTransfer runs the full pipeline for one vault-token transfer:
// source classification, liquidity correlation, position bookkeeping, the
// ledger mutation and the journal entry.
func (e *Engine) handleVaultTransfer(ev *inter.TokenTransfer) error {
	fromApproved := e.classifier.IsApproved(ev.From)
	act := e.correlate(ev)

	suppressDebit := false
	var withdrawDeduction *big.Int

	switch act.Kind {
	case ActionV2Add:
		if err := e.applyV2Add(ev, act); err != nil {
			return err
		}
		suppressDebit = true
	case ActionV3Add:
		tracked, err := e.applyV3Add(ev, act)
		if err != nil {
			return err
		}
		suppressDebit = tracked
	case ActionV3Withdraw:
		deduction, err := e.applyV3Withdraw(ev, act)
		if err != nil {
			return err
		}
		withdrawDeduction = deduction
	}

	if _, _, err := e.applyTransfer(ev.Token, ev.From, ev.To, ev.Value, fromApproved, suppressDebit); err != nil {
		return err
	}

	if withdrawDeduction != nil && withdrawDeduction.Sign() > 0 {
		if _, _, err := e.adjustBalance(ev.Token, ev.To, new(big.Int).Neg(withdrawDeduction)); err != nil {
			return err
		}
	}

	record := &TransferRecord{
		TxHash:       ev.TxHash,
		LogIndex:     ev.LogIndex,
		Block:        ev.Block,
		Time:         ev.Time,
		Token:        ev.Token,
		From:         ev.From,
		To:           ev.To,
		Value:        ev.Value,
		FromApproved: fromApproved,
	}
	return errors.Wrap(e.store.SaveTransfer(record), "failed to save transfer record")
}

// ProcessReceiptTransfer maintains the ERC1155 receipt balances of a tracked
// vault receipt token. Mint and burn legs against the zero address are
// skipped on that side only.
func (e *Engine) ProcessReceiptTransfer(ev *inter.ReceiptTransfer) error {
	if !e.TracksReceipt(ev.Receipt) {
		return nil
	}
	for i, id := range ev.IDs {
		value := ev.Values[i]
		if ev.From != (common.Address{}) {
			if err := e.adjustReceiptBalance(ev.Receipt, id, ev.From, new(big.Int).Neg(value)); err != nil {
				return err
			}
		}
		if ev.To != (common.Address{}) {
			if err := e.adjustReceiptBalance(ev.Receipt, id, ev.To, value); err != nil {
				return err
			}
		}
	}
	return e.observe(ev.EventMeta)
}

func (e *Engine) adjustReceiptBalance(receipt common.Address, id *big.Int, owner common.Address, delta *big.Int) error {
	rb, err := e.store.ReceiptBalance(receipt, id, owner)
	if err != nil {
		return errors.Wrap(err, "failed to load receipt balance")
	}
	if rb == nil {
		rb = NewReceiptBalance(receipt, id, owner)
	}
	rb.Balance.Add(rb.Balance, delta)
	return errors.Wrap(e.store.SaveReceiptBalance(rb), "failed to save receipt balance")
}

// ProcessNewClone registers vaults and receipts deployed through the clone
// factory. Clones of unknown implementations are ignored.
func (e *Engine) ProcessNewClone(ev *inter.NewClone) error {
	switch {
	case e.rules.IsVaultImplementation(ev.Implementation):
		info := &VaultInfo{
			Address:     ev.Clone,
			DeployBlock: ev.Block,
			DeployTime:  ev.Time,
			Deployer:    ev.Sender,
		}
		if err := e.store.SaveVaultInfo(info); err != nil {
			return errors.Wrap(err, "failed to save vault info")
		}
		e.trackedVaults[ev.Clone] = struct{}{}
		e.log.WithFields(logrus.Fields{
			"vault":    ev.Clone,
			"deployer": ev.Sender,
		}).Info("discovered vault clone")
	case e.rules.IsReceiptImplementation(ev.Implementation):
		info := &ReceiptInfo{
			Address:     ev.Clone,
			DeployBlock: ev.Block,
			DeployTime:  ev.Time,
			Deployer:    ev.Sender,
		}
		if err := e.store.SaveReceiptInfo(info); err != nil {
			return errors.Wrap(err, "failed to save receipt info")
		}
		e.trackedReceipts[ev.Clone] = struct{}{}
		e.log.WithFields(logrus.Fields{
			"receipt":  ev.Clone,
			"deployer": ev.Sender,
		}).Info("discovered receipt clone")
	default:
		return nil
	}
	return e.observe(ev.EventMeta)
}

// observe advances the stream clock past the processed event and triggers
// the snapshot pass when the clock crossed into a new epoch day. Runs after
// the event's own mutations, so the crossing event is included in the day it
// closes.
func (e *Engine) observe(meta inter.EventMeta) error {
	e.time.Advance(meta.Time, meta.Block)
	if err := e.maybeTakeSnapshot(e.time); err != nil {
		return err
	}
	return errors.Wrap(e.store.SaveTimeState(e.time), "failed to save time state")
}
