// Package inter defines the value types exchanged between the event source
// and the eligibility engine: timestamps, chain indexes, and the decoded
// event shapes the engine consumes. Events are expected to arrive exactly
// once, in ascending (block, logIndex) order.
package inter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventMeta carries the chain context shared by all decoded events.
type EventMeta struct {
	Block    Block
	Time     Timestamp
	TxHash   common.Hash
	LogIndex uint

	// TxFrom is the transaction originator (the externally owned account).
	TxFrom common.Address

	// TxTo is the top-level call recipient. Nil for contract creations.
	TxTo *common.Address

	// ReceiptLogs holds every log emitted by the enclosing transaction, in
	// emission order. Liquidity correlation scans this list.
	ReceiptLogs []*types.Log
}

// TokenTransfer is a decoded ERC20 Transfer event. Token is the emitting
// contract: either a tracked vault token or an LP share token.
type TokenTransfer struct {
	EventMeta

	Token common.Address
	From  common.Address
	To    common.Address
	Value *big.Int
}

// NFTTransfer is a decoded ERC721 Transfer event emitted by a V3 position
// manager.
type NFTTransfer struct {
	EventMeta

	Manager common.Address
	From    common.Address
	To      common.Address
	TokenID *big.Int
}

// ReceiptTransfer is a decoded ERC1155 TransferSingle or TransferBatch event
// emitted by a vault receipt token. A TransferSingle is represented as a
// batch of one.
type ReceiptTransfer struct {
	EventMeta

	Receipt common.Address
	From    common.Address
	To      common.Address
	IDs     []*big.Int
	Values  []*big.Int
}

// NewClone is a decoded clone-factory NewClone event announcing a freshly
// deployed proxy.
type NewClone struct {
	EventMeta

	Factory        common.Address
	Implementation common.Address
	Clone          common.Address
	Sender         common.Address
}
