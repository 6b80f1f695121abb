package eligibility

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// The engine's only external reads are on-chain view calls. Each lookup
// reports ok=false when the call reverts or the target does not implement
// the method; callers degrade to a documented default instead of failing.

// Registry resolves pool deployment relationships.
type Registry interface {
	// FactoryOf returns the factory that deployed the pool, if the address
	// exposes one.
	FactoryOf(pool common.Address) (common.Address, bool)

	// PoolTokens returns the pool's pair tokens.
	PoolTokens(pool common.Address) (token0, token1 common.Address, ok bool)

	// PoolFor resolves the pool for a (factory, token0, token1, fee) tuple.
	PoolFor(factory, token0, token1 common.Address, fee uint32) (common.Address, bool)
}

// PoolState reads the current price tick of a V3 pool.
type PoolState interface {
	CurrentTick(pool common.Address) (int32, bool)
}

// PositionMeta describes a V3 position as reported by its manager.
type PositionMeta struct {
	Token0    common.Address
	Token1    common.Address
	Fee       uint32
	LowerTick int32
	UpperTick int32
}

// Positions reads position metadata from a V3 position manager.
type Positions interface {
	PositionOf(manager common.Address, tokenID *big.Int) (PositionMeta, bool)
}

// ChainReader bundles all view-call collaborators.
type ChainReader interface {
	Registry
	PoolState
	Positions
}
