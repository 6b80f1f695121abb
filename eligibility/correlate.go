package eligibility

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/cyclofinance/cy-ledger/inter"
)

// Event topics of the correlated liquidity-manager logs.
var (
	// Transfer(address indexed from, address indexed to, uint256 value)
	transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

	// IncreaseLiquidity(uint256 indexed tokenId, uint128 liquidity, uint256 amount0, uint256 amount1)
	increaseLiquidityTopic = common.HexToHash("0x3067048beee31b25b2f1681f88dac838c8bba36af25bfb2b7cf7473a5847e35f")

	// DecreaseLiquidity(uint256 indexed tokenId, uint128 liquidity, uint256 amount0, uint256 amount1)
	decreaseLiquidityTopic = common.HexToHash("0x26f6a048ee9138f2c0ce266f322cb99228e8d619ae2bff30c67f8dcf9d2377b4")
)

var (
	uint256Args         abi.Arguments // (uint256)
	liquidityChangeArgs abi.Arguments // (uint128, uint256, uint256)
)

func init() {
	uint128T, err := abi.NewType("uint128", "", nil)
	if err != nil {
		panic(err)
	}
	uint256T, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	uint256Args = abi.Arguments{{Type: uint256T}}
	liquidityChangeArgs = abi.Arguments{{Type: uint128T}, {Type: uint256T}, {Type: uint256T}}
}

// ActionKind tags the result of correlating a vault-token transfer against
// the liquidity-manager logs of its transaction.
type ActionKind uint8

const (
	// ActionNone marks an ordinary transfer.
	ActionNone ActionKind = iota
	// ActionV2Add marks a deposit into a V2 pool via a known router.
	ActionV2Add
	// ActionV3Add marks a deposit into a V3 position.
	ActionV3Add
	// ActionV3Withdraw marks a V3 position withdrawal.
	ActionV3Withdraw
)

// Action is the structured correlation result consumed by the ledger and
// the position trackers.
type Action struct {
	Kind ActionKind

	// Pool is the V2 pool (and LP share token) for ActionV2Add.
	Pool common.Address
	// Shares is the minted LP share amount for ActionV2Add.
	Shares *big.Int

	// TokenID and Liquidity identify the V3 position delta for
	// ActionV3Add/ActionV3Withdraw.
	TokenID   *big.Int
	Liquidity *big.Int
}

// correlate scans the transaction's log list once and classifies the
// transfer. Heuristic and deliberately conservative: on any ambiguity
// (missing receipt, decode failure, no qualifying log) the transfer falls
// back to ordinary semantics. The first qualifying log wins.
func (e *Engine) correlate(ev *inter.TokenTransfer) Action {
	none := Action{Kind: ActionNone}
	if ev.TxTo == nil || len(ev.ReceiptLogs) == 0 {
		return none
	}
	owner := ev.TxFrom

	// Deposit direction: the originator sends vault tokens into a pool.
	if owner == ev.From {
		if e.rules.IsV2LiquidityManager(*ev.TxTo) && e.poolFactoryIsV2(ev.To) {
			return e.correlateV2Add(ev, owner)
		}
		if *ev.TxTo == e.rules.V3PositionManager && e.poolFactoryIsV3(ev.To) {
			return e.correlateV3(ev, increaseLiquidityTopic, ActionV3Add)
		}
		return none
	}

	// Withdraw direction: the pool sends vault tokens back to the originator.
	if owner == ev.To {
		if *ev.TxTo == e.rules.V3PositionManager && e.poolFactoryIsV3(ev.From) {
			return e.correlateV3(ev, decreaseLiquidityTopic, ActionV3Withdraw)
		}
	}
	return none
}

// correlateV2Add looks for the LP share mint emitted by the pool the vault
// tokens were transferred to: a Transfer from the zero address to the
// transaction originator.
func (e *Engine) correlateV2Add(ev *inter.TokenTransfer, owner common.Address) Action {
	for _, log := range ev.ReceiptLogs {
		if log.Address != ev.To {
			continue
		}
		if len(log.Topics) < 3 || log.Topics[0] != transferTopic {
			continue
		}
		if log.Topics[1] != (common.Hash{}) || log.Topics[2] != addressTopic(owner) {
			continue
		}
		vals, err := uint256Args.Unpack(log.Data)
		if err != nil {
			continue
		}
		return Action{
			Kind:   ActionV2Add,
			Pool:   ev.To,
			Shares: vals[0].(*big.Int),
		}
	}
	return Action{Kind: ActionNone}
}

// correlateV3 looks for an IncreaseLiquidity/DecreaseLiquidity log emitted
// by the position manager whose amount0 or amount1 matches the transferred
// vault-token amount.
func (e *Engine) correlateV3(ev *inter.TokenTransfer, topic common.Hash, kind ActionKind) Action {
	for _, log := range ev.ReceiptLogs {
		if log.Address != e.rules.V3PositionManager {
			continue
		}
		if len(log.Topics) < 2 || log.Topics[0] != topic {
			continue
		}
		vals, err := liquidityChangeArgs.Unpack(log.Data)
		if err != nil {
			continue
		}
		liquidity := vals[0].(*big.Int)
		amount0 := vals[1].(*big.Int)
		amount1 := vals[2].(*big.Int)
		if amount0.Cmp(ev.Value) != 0 && amount1.Cmp(ev.Value) != 0 {
			continue
		}
		return Action{
			Kind:      kind,
			TokenID:   new(big.Int).SetBytes(log.Topics[1].Bytes()),
			Liquidity: liquidity,
		}
	}
	return Action{Kind: ActionNone}
}

func (e *Engine) poolFactoryIsV2(pool common.Address) bool {
	factory, ok := e.classifier.factoryOf(pool)
	return ok && e.rules.IsV2Factory(factory)
}

func (e *Engine) poolFactoryIsV3(pool common.Address) bool {
	factory, ok := e.classifier.factoryOf(pool)
	return ok && e.rules.IsV3Factory(factory)
}

// addressTopic left-pads an address into an indexed event topic.
func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
