// Package chain implements the on-chain view calls the eligibility engine
// needs: pool deployment lookups, pool state and V3 position metadata. Every
// lookup degrades to ok=false when the target reverts or does not implement
// the method, since arbitrary addresses are probed.
package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/cyclofinance/cy-ledger/eligibility"
)

const (
	pairABIJson = `[
		{"inputs":[],"name":"factory","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"token0","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"token1","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"}
	]`
	factoryABIJson = `[
		{"inputs":[{"type":"address"},{"type":"address"},{"type":"uint24"}],"name":"getPool","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"}
	]`
	poolABIJson = `[
		{"inputs":[],"name":"slot0","outputs":[{"type":"uint160"},{"type":"int24"},{"type":"uint16"},{"type":"uint16"},{"type":"uint16"},{"type":"uint8"},{"type":"bool"}],"stateMutability":"view","type":"function"}
	]`
	managerABIJson = `[
		{"inputs":[{"type":"uint256"}],"name":"positions","outputs":[{"type":"uint96"},{"type":"address"},{"type":"address"},{"type":"address"},{"type":"uint24"},{"type":"int24"},{"type":"int24"},{"type":"uint128"},{"type":"uint256"},{"type":"uint256"},{"type":"uint128"},{"type":"uint128"}],"stateMutability":"view","type":"function"}
	]`
)

var (
	pairABI    abi.ABI
	factoryABI abi.ABI
	poolABI    abi.ABI
	managerABI abi.ABI
)

func init() {
	for _, def := range []struct {
		json string
		dst  *abi.ABI
	}{
		{pairABIJson, &pairABI},
		{factoryABIJson, &factoryABI},
		{poolABIJson, &poolABI},
		{managerABIJson, &managerABI},
	} {
		parsed, err := abi.JSON(strings.NewReader(def.json))
		if err != nil {
			panic(err)
		}
		*def.dst = parsed
	}
}

// Caller is the subset of the RPC client used for view calls.
// ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client resolves engine lookups through eth_call.
type Client struct {
	caller  Caller
	timeout time.Duration
	log     *logrus.Entry
}

var _ eligibility.ChainReader = (*Client)(nil)

// NewClient wraps an RPC caller.
func NewClient(caller Caller, timeout time.Duration, lg *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		caller:  caller,
		timeout: timeout,
		log:     lg.WithField("module", "chain"),
	}
}

// call packs, executes and unpacks one view call at the latest block.
func (c *Client) call(target common.Address, contract abi.ABI, method string, args ...interface{}) ([]interface{}, bool) {
	input, err := contract.Pack(method, args...)
	if err != nil {
		c.log.WithError(err).WithField("method", method).Warn("failed to pack call input")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	output, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: input}, nil)
	if err != nil || len(output) == 0 {
		// reverts and non-contracts land here
		return nil, false
	}

	vals, err := contract.Unpack(method, output)
	if err != nil {
		return nil, false
	}
	return vals, true
}

// FactoryOf returns the deploying factory the pool reports, if any.
func (c *Client) FactoryOf(pool common.Address) (common.Address, bool) {
	vals, ok := c.call(pool, pairABI, "factory")
	if !ok {
		return common.Address{}, false
	}
	return vals[0].(common.Address), true
}

// PoolTokens returns the pool's pair tokens.
func (c *Client) PoolTokens(pool common.Address) (token0, token1 common.Address, ok bool) {
	vals0, ok := c.call(pool, pairABI, "token0")
	if !ok {
		return common.Address{}, common.Address{}, false
	}
	vals1, ok := c.call(pool, pairABI, "token1")
	if !ok {
		return common.Address{}, common.Address{}, false
	}
	return vals0[0].(common.Address), vals1[0].(common.Address), true
}

// PoolFor resolves the pool of a (factory, token0, token1, fee) tuple.
func (c *Client) PoolFor(factory, token0, token1 common.Address, fee uint32) (common.Address, bool) {
	vals, ok := c.call(factory, factoryABI, "getPool", token0, token1, big.NewInt(int64(fee)))
	if !ok {
		return common.Address{}, false
	}
	pool := vals[0].(common.Address)
	if pool == (common.Address{}) {
		return common.Address{}, false
	}
	return pool, true
}

// CurrentTick returns the pool's current price tick from slot0.
func (c *Client) CurrentTick(pool common.Address) (int32, bool) {
	vals, ok := c.call(pool, poolABI, "slot0")
	if !ok {
		return 0, false
	}
	tick := vals[1].(*big.Int)
	return int32(tick.Int64()), true
}

// PositionOf returns the position metadata the manager reports for tokenID.
func (c *Client) PositionOf(manager common.Address, tokenID *big.Int) (eligibility.PositionMeta, bool) {
	vals, ok := c.call(manager, managerABI, "positions", tokenID)
	if !ok {
		return eligibility.PositionMeta{}, false
	}
	return eligibility.PositionMeta{
		Token0:    vals[2].(common.Address),
		Token1:    vals[3].(common.Address),
		Fee:       uint32(vals[4].(*big.Int).Uint64()),
		LowerTick: int32(vals[5].(*big.Int).Int64()),
		UpperTick: int32(vals[6].(*big.Int).Int64()),
	}, true
}
