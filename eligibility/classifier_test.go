package eligibility

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cyclofinance/cy-ledger/cyclo"
)

// countingRegistry serves factory lookups from a map and counts the calls.
type countingRegistry struct {
	factories map[common.Address]common.Address
	calls     int
}

func (r *countingRegistry) FactoryOf(pool common.Address) (common.Address, bool) {
	r.calls++
	f, ok := r.factories[pool]
	return f, ok
}

func (r *countingRegistry) PoolTokens(common.Address) (common.Address, common.Address, bool) {
	return common.Address{}, common.Address{}, false
}

func (r *countingRegistry) PoolFor(common.Address, common.Address, common.Address, uint32) (common.Address, bool) {
	return common.Address{}, false
}

func (r *countingRegistry) CurrentTick(common.Address) (int32, bool) { return 0, false }

func (r *countingRegistry) PositionOf(common.Address, *big.Int) (PositionMeta, bool) {
	return PositionMeta{}, false
}

func TestClassifierAllowList(t *testing.T) {
	require := require.New(t)

	rules := cyclo.FakeNetRules()
	reg := &countingRegistry{}
	c := NewClassifier(rules, reg)

	require.True(c.IsApproved(rules.RewardSources[0]))
	require.False(c.IsApproved(common.HexToAddress("0x1000000000000000000000000000000000000001")))
}

func TestClassifierFactoryPool(t *testing.T) {
	require := require.New(t)

	rules := cyclo.FakeNetRules()
	v2Pool := common.HexToAddress("0x1000000000000000000000000000000000000010")
	v3Pool := common.HexToAddress("0x1000000000000000000000000000000000000011")
	foreignPool := common.HexToAddress("0x1000000000000000000000000000000000000012")

	reg := &countingRegistry{factories: map[common.Address]common.Address{
		v2Pool:      rules.V2Factories[0],
		v3Pool:      rules.V3Factories[0],
		foreignPool: common.HexToAddress("0x1000000000000000000000000000000000000099"),
	}}
	c := NewClassifier(rules, reg)

	require.True(c.IsApproved(v2Pool))
	require.True(c.IsApproved(v3Pool))
	require.False(c.IsApproved(foreignPool))
}

func TestClassifierCachesLookups(t *testing.T) {
	require := require.New(t)

	rules := cyclo.FakeNetRules()
	pool := common.HexToAddress("0x1000000000000000000000000000000000000010")
	eoa := common.HexToAddress("0x1000000000000000000000000000000000000001")

	reg := &countingRegistry{factories: map[common.Address]common.Address{
		pool: rules.V2Factories[0],
	}}
	c := NewClassifier(rules, reg)

	require.True(c.IsApproved(pool))
	require.True(c.IsApproved(pool))
	require.Equal(1, reg.calls)

	// negative results are cached too
	require.False(c.IsApproved(eoa))
	require.False(c.IsApproved(eoa))
	require.Equal(2, reg.calls)
}
