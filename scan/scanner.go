// Package scan pulls logs off the chain in block-range batches, rebuilds the
// per-transaction context the eligibility engine needs and feeds the decoded
// events to it in (block, logIndex) order.
package scan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cyclofinance/cy-ledger/eligibility"
	"github.com/cyclofinance/cy-ledger/inter"
)

var (
	transferTopic       = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	transferSingleTopic = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
	transferBatchTopic  = crypto.Keccak256Hash([]byte("TransferBatch(address,address,address,uint256[],uint256[])"))
	newCloneTopic       = crypto.Keccak256Hash([]byte("NewClone(address,address,address)"))
)

var (
	uint256Args      abi.Arguments // (uint256)
	idValueArgs      abi.Arguments // (uint256, uint256)
	idValueBatchArgs abi.Arguments // (uint256[], uint256[])
	newCloneArgs     abi.Arguments // (address, address, address)
)

func init() {
	uint256T, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	uint256SliceT, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		panic(err)
	}
	addressT, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uint256Args = abi.Arguments{{Type: uint256T}}
	idValueArgs = abi.Arguments{{Type: uint256T}, {Type: uint256T}}
	idValueBatchArgs = abi.Arguments{{Type: uint256SliceT}, {Type: uint256SliceT}}
	newCloneArgs = abi.Arguments{{Type: addressT}, {Type: addressT}, {Type: addressT}}
}

// Backend is the subset of the RPC client used for scanning.
// ethclient.Client satisfies it.
type Backend interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Scanner walks a block range and feeds the engine.
type Scanner struct {
	backend Backend
	engine  *eligibility.Engine
	signer  types.Signer

	batchSize uint64

	// caches within one Run: block timestamps and tx contexts
	blockTimes map[uint64]inter.Timestamp
	txMeta     map[common.Hash]*txContext

	log *logrus.Entry
}

type txContext struct {
	from common.Address
	to   *common.Address
	logs []*types.Log
}

// NewScanner builds a scanner over the backend for the engine's network.
func NewScanner(backend Backend, engine *eligibility.Engine, batchSize uint64, lg *logrus.Logger) *Scanner {
	if batchSize == 0 {
		batchSize = 2048
	}
	return &Scanner{
		backend:    backend,
		engine:     engine,
		signer:     types.LatestSignerForChainID(new(big.Int).SetUint64(engine.Rules().NetworkID)),
		batchSize:  batchSize,
		blockTimes: make(map[uint64]inter.Timestamp),
		txMeta:     make(map[common.Hash]*txContext),
		log:        lg.WithField("module", "scan"),
	}
}

// Run processes blocks [from, to] inclusive, batch by batch. Events within a
// batch arrive from the node ordered by (block, logIndex) and are dispatched
// in that order.
func (s *Scanner) Run(ctx context.Context, from, to uint64) error {
	for start := from; start <= to; start += s.batchSize {
		end := start + s.batchSize - 1
		if end > to {
			end = to
		}
		if err := s.runBatch(ctx, start, end); err != nil {
			return err
		}
		// keep the caches bounded across batches
		s.blockTimes = make(map[uint64]inter.Timestamp)
		s.txMeta = make(map[common.Hash]*txContext)
	}
	return nil
}

func (s *Scanner) runBatch(ctx context.Context, from, to uint64) error {
	logs, err := s.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Topics: [][]common.Hash{{
			transferTopic,
			transferSingleTopic,
			transferBatchTopic,
			newCloneTopic,
		}},
	})
	if err != nil {
		return errors.Wrap(err, "failed to filter logs")
	}

	s.log.WithFields(logrus.Fields{
		"from": from,
		"to":   to,
		"logs": len(logs),
	}).Debug("scanning block range")

	for i := range logs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.dispatch(ctx, &logs[i]); err != nil {
			return errors.Wrapf(err, "failed at block %d log %d", logs[i].BlockNumber, logs[i].Index)
		}
	}
	return nil
}

// dispatch decodes one log and feeds it to the engine. Logs of untracked
// contracts are dropped before the per-transaction context is fetched, so
// unrelated transfers cost no extra RPC calls.
func (s *Scanner) dispatch(ctx context.Context, log *types.Log) error {
	if len(log.Topics) == 0 {
		return nil
	}
	rules := s.engine.Rules()

	switch log.Topics[0] {
	case transferTopic:
		switch {
		case len(log.Topics) == 3 && s.engine.TracksToken(log.Address):
			return s.dispatchTokenTransfer(ctx, log)
		case len(log.Topics) == 4 && log.Address == rules.V3PositionManager:
			return s.dispatchNFTTransfer(ctx, log)
		}
	case transferSingleTopic:
		if s.engine.TracksReceipt(log.Address) {
			return s.dispatchReceiptSingle(ctx, log)
		}
	case transferBatchTopic:
		if s.engine.TracksReceipt(log.Address) {
			return s.dispatchReceiptBatch(ctx, log)
		}
	case newCloneTopic:
		if log.Address == rules.CloneFactory {
			return s.dispatchNewClone(ctx, log)
		}
	}
	return nil
}

func (s *Scanner) dispatchTokenTransfer(ctx context.Context, log *types.Log) error {
	vals, err := uint256Args.Unpack(log.Data)
	if err != nil {
		return errors.Wrap(err, "failed to decode transfer value")
	}
	meta, err := s.eventMeta(ctx, log, true)
	if err != nil {
		return err
	}
	return s.engine.ProcessTokenTransfer(&inter.TokenTransfer{
		EventMeta: *meta,
		Token:     log.Address,
		From:      common.BytesToAddress(log.Topics[1].Bytes()),
		To:        common.BytesToAddress(log.Topics[2].Bytes()),
		Value:     vals[0].(*big.Int),
	})
}

func (s *Scanner) dispatchNFTTransfer(ctx context.Context, log *types.Log) error {
	meta, err := s.eventMeta(ctx, log, false)
	if err != nil {
		return err
	}
	return s.engine.ProcessNFTTransfer(&inter.NFTTransfer{
		EventMeta: *meta,
		Manager:   log.Address,
		From:      common.BytesToAddress(log.Topics[1].Bytes()),
		To:        common.BytesToAddress(log.Topics[2].Bytes()),
		TokenID:   new(big.Int).SetBytes(log.Topics[3].Bytes()),
	})
}

func (s *Scanner) dispatchReceiptSingle(ctx context.Context, log *types.Log) error {
	vals, err := idValueArgs.Unpack(log.Data)
	if err != nil {
		return errors.Wrap(err, "failed to decode single receipt transfer")
	}
	meta, err := s.eventMeta(ctx, log, false)
	if err != nil {
		return err
	}
	return s.engine.ProcessReceiptTransfer(&inter.ReceiptTransfer{
		EventMeta: *meta,
		Receipt:   log.Address,
		From:      common.BytesToAddress(log.Topics[2].Bytes()),
		To:        common.BytesToAddress(log.Topics[3].Bytes()),
		IDs:       []*big.Int{vals[0].(*big.Int)},
		Values:    []*big.Int{vals[1].(*big.Int)},
	})
}

func (s *Scanner) dispatchReceiptBatch(ctx context.Context, log *types.Log) error {
	vals, err := idValueBatchArgs.Unpack(log.Data)
	if err != nil {
		return errors.Wrap(err, "failed to decode batch receipt transfer")
	}
	ids := vals[0].([]*big.Int)
	values := vals[1].([]*big.Int)
	if len(ids) != len(values) {
		return errors.New("receipt batch ids/values length mismatch")
	}
	meta, err := s.eventMeta(ctx, log, false)
	if err != nil {
		return err
	}
	return s.engine.ProcessReceiptTransfer(&inter.ReceiptTransfer{
		EventMeta: *meta,
		Receipt:   log.Address,
		From:      common.BytesToAddress(log.Topics[2].Bytes()),
		To:        common.BytesToAddress(log.Topics[3].Bytes()),
		IDs:       ids,
		Values:    values,
	})
}

func (s *Scanner) dispatchNewClone(ctx context.Context, log *types.Log) error {
	vals, err := newCloneArgs.Unpack(log.Data)
	if err != nil {
		return errors.Wrap(err, "failed to decode clone event")
	}
	meta, err := s.eventMeta(ctx, log, false)
	if err != nil {
		return err
	}
	return s.engine.ProcessNewClone(&inter.NewClone{
		EventMeta:      *meta,
		Factory:        log.Address,
		Sender:         vals[0].(common.Address),
		Implementation: vals[1].(common.Address),
		Clone:          vals[2].(common.Address),
	})
}

// eventMeta resolves the block timestamp and, when needed, the transaction's
// originator, recipient and full log list. Both lookups are cached for the
// duration of the batch.
func (s *Scanner) eventMeta(ctx context.Context, log *types.Log, withTx bool) (*inter.EventMeta, error) {
	time, err := s.blockTime(ctx, log.BlockNumber)
	if err != nil {
		return nil, err
	}
	meta := &inter.EventMeta{
		Block:    inter.Block(log.BlockNumber),
		Time:     time,
		TxHash:   log.TxHash,
		LogIndex: log.Index,
	}
	if !withTx {
		return meta, nil
	}

	txc, err := s.txContext(ctx, log.TxHash)
	if err != nil {
		return nil, err
	}
	meta.TxFrom = txc.from
	meta.TxTo = txc.to
	meta.ReceiptLogs = txc.logs
	return meta, nil
}

func (s *Scanner) blockTime(ctx context.Context, number uint64) (inter.Timestamp, error) {
	if t, ok := s.blockTimes[number]; ok {
		return t, nil
	}
	header, err := s.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch header")
	}
	t := inter.Timestamp(header.Time)
	s.blockTimes[number] = t
	return t, nil
}

func (s *Scanner) txContext(ctx context.Context, hash common.Hash) (*txContext, error) {
	if txc, ok := s.txMeta[hash]; ok {
		return txc, nil
	}

	tx, pending, err := s.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch transaction")
	}
	if pending {
		return nil, errors.Errorf("transaction %s still pending", hash)
	}
	from, err := types.Sender(s.signer, tx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to recover sender")
	}

	receipt, err := s.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch receipt")
	}

	txc := &txContext{
		from: from,
		to:   tx.To(),
		logs: receipt.Logs,
	}
	s.txMeta[hash] = txc
	return txc, nil
}
