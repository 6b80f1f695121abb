package eligibility_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/cyclofinance/cy-ledger/cyclo"
	"github.com/cyclofinance/cy-ledger/eligibility"
	"github.com/cyclofinance/cy-ledger/inter"
	"github.com/cyclofinance/cy-ledger/store"
)

var (
	erc20TransferTopic     = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	increaseLiquidityTopic = crypto.Keccak256Hash([]byte("IncreaseLiquidity(uint256,uint128,uint256,uint256)"))
	decreaseLiquidityTopic = crypto.Keccak256Hash([]byte("DecreaseLiquidity(uint256,uint128,uint256,uint256)"))
)

var (
	packUint256   abi.Arguments
	packLiquidity abi.Arguments
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
	packUint256 = abi.Arguments{{Type: uint256T}}
	packLiquidity = abi.Arguments{{Type: uint128T}, {Type: uint256T}, {Type: uint256T}}
}

// fakeChain answers the engine's view calls from canned tables.
type fakeChain struct {
	factories map[common.Address]common.Address
	tokens    map[common.Address][2]common.Address
	ticks     map[common.Address]int32
	positions map[uint64]eligibility.PositionMeta
}

func (f *fakeChain) FactoryOf(pool common.Address) (common.Address, bool) {
	factory, ok := f.factories[pool]
	return factory, ok
}

func (f *fakeChain) PoolTokens(pool common.Address) (common.Address, common.Address, bool) {
	tokens, ok := f.tokens[pool]
	return tokens[0], tokens[1], ok
}

func (f *fakeChain) PoolFor(common.Address, common.Address, common.Address, uint32) (common.Address, bool) {
	return common.Address{}, false
}

func (f *fakeChain) CurrentTick(pool common.Address) (int32, bool) {
	tick, ok := f.ticks[pool]
	return tick, ok
}

func (f *fakeChain) PositionOf(_ common.Address, tokenID *big.Int) (eligibility.PositionMeta, bool) {
	meta, ok := f.positions[tokenID.Uint64()]
	return meta, ok
}

const epoch0Start = 1720267200 // first epoch of the fakenet schedule
const epoch1Start = 1722859200

var (
	vaultA = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	user1  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	user2  = common.HexToAddress("0x1000000000000000000000000000000000000002")
)

func newTestEngine(t *testing.T, chain eligibility.ChainReader) (*eligibility.Engine, *store.Store) {
	db, err := store.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	lg := logrus.New()
	lg.SetLevel(logrus.PanicLevel)

	engine, err := eligibility.New(cyclo.FakeNetRules(), db, chain, lg)
	require.NoError(t, err)
	return engine, db
}

// dayTS returns a timestamp inside the given 1-based day of an epoch.
func dayTS(epochStart uint64, day int) inter.Timestamp {
	return inter.Timestamp(epochStart + uint64(day-1)*86400 + 10)
}

func meta(block uint64, ts inter.Timestamp, logIndex uint) inter.EventMeta {
	return inter.EventMeta{
		Block:    inter.Block(block),
		Time:     ts,
		TxHash:   common.Hash{0: byte(block), 1: byte(logIndex)},
		LogIndex: logIndex,
	}
}

// credit transfers value from the approved fakenet reward source to the owner.
func credit(t *testing.T, e *eligibility.Engine, block uint64, ts inter.Timestamp, to common.Address, value int64) {
	source := e.Rules().RewardSources[0]
	require.NoError(t, e.ProcessTokenTransfer(&inter.TokenTransfer{
		EventMeta: meta(block, ts, 0),
		Token:     vaultA,
		From:      source,
		To:        to,
		Value:     big.NewInt(value),
	}))
}

func transfer(t *testing.T, e *eligibility.Engine, block uint64, ts inter.Timestamp, from, to common.Address, value int64) {
	require.NoError(t, e.ProcessTokenTransfer(&inter.TokenTransfer{
		EventMeta: meta(block, ts, 0),
		Token:     vaultA,
		From:      from,
		To:        to,
		Value:     big.NewInt(value),
	}))
}

func TestVaultTransferGating(t *testing.T) {
	require := require.New(t)
	e, db := newTestEngine(t, &fakeChain{})
	source := e.Rules().RewardSources[0]

	credit(t, e, 1, dayTS(epoch0Start, 1), user1, 1000)

	vb, err := db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(1000), vb.Balance)

	// the sender is debited even below zero
	vb, err = db.VaultBalance(vaultA, source)
	require.NoError(err)
	require.Equal(big.NewInt(-1000), vb.Balance)

	totals, err := db.Totals()
	require.NoError(err)
	require.Equal(big.NewInt(1000), totals.TotalEligibleSum)

	acc, err := db.Account(user1)
	require.NoError(err)
	require.True(acc.EligibleShare.Equal(decimal.NewFromInt(1)))

	// value from an unapproved sender moves but earns nothing
	transfer(t, e, 2, dayTS(epoch0Start, 1)+100, user1, user2, 400)

	vb, err = db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(600), vb.Balance)

	vb, err = db.VaultBalance(vaultA, user2)
	require.NoError(err)
	require.Equal(big.NewInt(0), vb.Balance)

	totals, err = db.Totals()
	require.NoError(err)
	require.Equal(big.NewInt(600), totals.TotalEligibleSum)

	acc, err = db.Account(user2)
	require.NoError(err)
	require.Equal(big.NewInt(0), acc.TotalBalance)
	require.True(acc.EligibleShare.Equal(decimal.Zero))

	// both transfers landed in the journal with their gating verdicts
	journal, err := db.Transfers(1)
	require.NoError(err)
	require.Len(journal, 1)
	require.True(journal[0].FromApproved)

	journal, err = db.Transfers(2)
	require.NoError(err)
	require.Len(journal, 1)
	require.False(journal[0].FromApproved)
}

func TestV2LiquidityLifecycle(t *testing.T) {
	require := require.New(t)

	pool := common.HexToAddress("0x2000000000000000000000000000000000000020")
	rules := cyclo.FakeNetRules()
	chain := &fakeChain{
		factories: map[common.Address]common.Address{pool: rules.V2Factories[0]},
		tokens:    map[common.Address][2]common.Address{pool: {vaultA, common.Address{0xEE}}},
	}
	e, db := newTestEngine(t, chain)
	router := e.Rules().V2LiquidityManagers[0]

	credit(t, e, 1, dayTS(epoch0Start, 1), user1, 1000)

	// deposit 500 vault tokens through the router, minting 200 LP shares
	mintData, err := packUint256.Pack(big.NewInt(200))
	require.NoError(err)
	ev := &inter.TokenTransfer{
		EventMeta: meta(2, dayTS(epoch0Start, 1)+60, 1),
		Token:     vaultA,
		From:      user1,
		To:        pool,
		Value:     big.NewInt(500),
	}
	ev.TxFrom = user1
	ev.TxTo = &router
	ev.ReceiptLogs = []*types.Log{{
		Address: pool,
		Topics:  []common.Hash{erc20TransferTopic, {}, common.BytesToHash(user1.Bytes())},
		Data:    mintData,
	}}
	require.NoError(e.ProcessTokenTransfer(ev))

	// the deposit does not reduce the eligible balance
	vb, err := db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(1000), vb.Balance)

	pos, err := db.LiquidityV2(pool, user1, vaultA)
	require.NoError(err)
	require.Equal(big.NewInt(200), pos.Liquidity)
	require.Equal(big.NewInt(500), pos.DepositBalance)
	require.True(e.TracksToken(pool))

	// burning half the shares releases half the deposit from the balance
	require.NoError(e.ProcessTokenTransfer(&inter.TokenTransfer{
		EventMeta: meta(3, dayTS(epoch0Start, 1)+120, 0),
		Token:     pool,
		From:      user1,
		To:        common.Address{},
		Value:     big.NewInt(100),
	}))

	vb, err = db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(750), vb.Balance)

	pos, err = db.LiquidityV2(pool, user1, vaultA)
	require.NoError(err)
	require.Equal(big.NewInt(100), pos.Liquidity)
	require.Equal(big.NewInt(250), pos.DepositBalance)

	// burning the rest removes the position entirely
	require.NoError(e.ProcessTokenTransfer(&inter.TokenTransfer{
		EventMeta: meta(4, dayTS(epoch0Start, 1)+180, 0),
		Token:     pool,
		From:      user1,
		To:        common.Address{},
		Value:     big.NewInt(100),
	}))

	vb, err = db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(500), vb.Balance)

	pos, err = db.LiquidityV2(pool, user1, vaultA)
	require.NoError(err)
	require.Nil(pos)

	// the withdrawn value returns through the pool, which is an approved source
	transfer(t, e, 5, dayTS(epoch0Start, 1)+240, pool, user1, 260)

	vb, err = db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(760), vb.Balance)
}

func TestV3LiquidityLifecycle(t *testing.T) {
	require := require.New(t)

	pool := common.HexToAddress("0x3000000000000000000000000000000000000030")
	rules := cyclo.FakeNetRules()
	chain := &fakeChain{
		factories: map[common.Address]common.Address{pool: rules.V3Factories[0]},
		positions: map[uint64]eligibility.PositionMeta{
			7: {Token0: vaultA, Token1: common.Address{0xEE}, Fee: 3000, LowerTick: -3000, UpperTick: -1000},
		},
	}
	e, db := newTestEngine(t, chain)
	manager := e.Rules().V3PositionManager

	credit(t, e, 1, dayTS(epoch0Start, 1), user1, 1000)

	// deposit 600 into position 7
	addData, err := packLiquidity.Pack(big.NewInt(500), big.NewInt(600), big.NewInt(0))
	require.NoError(err)
	ev := &inter.TokenTransfer{
		EventMeta: meta(2, dayTS(epoch0Start, 1)+60, 1),
		Token:     vaultA,
		From:      user1,
		To:        pool,
		Value:     big.NewInt(600),
	}
	ev.TxFrom = user1
	ev.TxTo = &manager
	ev.ReceiptLogs = []*types.Log{{
		Address: manager,
		Topics:  []common.Hash{increaseLiquidityTopic, common.BigToHash(big.NewInt(7))},
		Data:    addData,
	}}
	require.NoError(e.ProcessTokenTransfer(ev))

	vb, err := db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(1000), vb.Balance)

	pos, err := db.LiquidityV3(manager, user1, vaultA, big.NewInt(7))
	require.NoError(err)
	require.Equal(big.NewInt(500), pos.Liquidity)
	require.Equal(big.NewInt(600), pos.DepositBalance)
	require.Equal(pool, pos.Pool)
	require.Equal(int32(-3000), pos.LowerTick)
	require.Equal(int32(-1000), pos.UpperTick)

	// withdrawing half the liquidity leaves the eligible balance unchanged:
	// the returned value is credited and the released deposit debited
	withdrawData, err := packLiquidity.Pack(big.NewInt(250), big.NewInt(300), big.NewInt(0))
	require.NoError(err)
	ev = &inter.TokenTransfer{
		EventMeta: meta(3, dayTS(epoch0Start, 1)+120, 1),
		Token:     vaultA,
		From:      pool,
		To:        user1,
		Value:     big.NewInt(300),
	}
	ev.TxFrom = user1
	ev.TxTo = &manager
	ev.ReceiptLogs = []*types.Log{{
		Address: manager,
		Topics:  []common.Hash{decreaseLiquidityTopic, common.BigToHash(big.NewInt(7))},
		Data:    withdrawData,
	}}
	require.NoError(e.ProcessTokenTransfer(ev))

	vb, err = db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(1000), vb.Balance)

	pos, err = db.LiquidityV3(manager, user1, vaultA, big.NewInt(7))
	require.NoError(err)
	require.Equal(big.NewInt(250), pos.Liquidity)
	require.Equal(big.NewInt(300), pos.DepositBalance)

	// selling the NFT closes the position and forfeits the tracked deposit
	require.NoError(e.ProcessNFTTransfer(&inter.NFTTransfer{
		EventMeta: meta(4, dayTS(epoch0Start, 1)+180, 0),
		Manager:   manager,
		From:      user1,
		To:        user2,
		TokenID:   big.NewInt(7),
	}))

	vb, err = db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(700), vb.Balance)

	pos, err = db.LiquidityV3(manager, user1, vaultA, big.NewInt(7))
	require.NoError(err)
	require.Nil(pos)
}

func TestSnapshotAveraging(t *testing.T) {
	require := require.New(t)
	e, db := newTestEngine(t, &fakeChain{})

	// day 1: the first event both credits and closes day 1
	credit(t, e, 1, dayTS(epoch0Start, 1), user1, 700)

	vb, err := db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(700), vb.AvgSnapshot)

	// day 3: two unseen days at the new balance fold in
	credit(t, e, 2, dayTS(epoch0Start, 3), user1, 4300)

	vb, err = db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(3566), vb.AvgSnapshot) // (700*1 + 5000*2) / 3

	acc, err := db.Account(user1)
	require.NoError(err)
	require.Equal(big.NewInt(3566), acc.TotalBalanceSnapshot)
	require.True(acc.EligibleShareSnapshot.Equal(decimal.NewFromInt(1)))

	vt, err := db.VaultTotals(vaultA)
	require.NoError(err)
	require.Equal(big.NewInt(3566), vt.TotalEligibleSnapshot)

	totals, err := db.Totals()
	require.NoError(err)
	require.Equal(big.NewInt(3566), totals.TotalEligibleSumSnapshot)

	// a new epoch starts the average from scratch
	transfer(t, e, 3, dayTS(epoch1Start, 1), user1, user2, 1000)

	vb, err = db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(4000), vb.AvgSnapshot)

	totals, err = db.Totals()
	require.NoError(err)
	require.Equal(big.NewInt(4000), totals.TotalEligibleSumSnapshot)
}

func TestSnapshotTickExclusion(t *testing.T) {
	require := require.New(t)

	pool := common.HexToAddress("0x3000000000000000000000000000000000000030")
	rules := cyclo.FakeNetRules()
	chain := &fakeChain{
		factories: map[common.Address]common.Address{pool: rules.V3Factories[0]},
		positions: map[uint64]eligibility.PositionMeta{
			7: {Token0: vaultA, Token1: common.Address{0xEE}, Fee: 3000, LowerTick: -3000, UpperTick: -1000},
		},
		ticks: map[common.Address]int32{pool: -500},
	}
	e, db := newTestEngine(t, chain)
	manager := e.Rules().V3PositionManager

	credit(t, e, 1, dayTS(epoch0Start, 1), user1, 1000)

	addData, err := packLiquidity.Pack(big.NewInt(500), big.NewInt(600), big.NewInt(0))
	require.NoError(err)
	ev := &inter.TokenTransfer{
		EventMeta: meta(2, dayTS(epoch0Start, 1)+60, 1),
		Token:     vaultA,
		From:      user1,
		To:        pool,
		Value:     big.NewInt(600),
	}
	ev.TxFrom = user1
	ev.TxTo = &manager
	ev.ReceiptLogs = []*types.Log{{
		Address: manager,
		Topics:  []common.Hash{increaseLiquidityTopic, common.BigToHash(big.NewInt(7))},
		Data:    addData,
	}}
	require.NoError(e.ProcessTokenTransfer(ev))

	// day 2 snapshot: tick -500 is outside [-3000,-1000], so the position's
	// deposit is excluded from the effective balance
	transfer(t, e, 3, dayTS(epoch0Start, 2), user1, user2, 1)

	vb, err := db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(699), vb.AvgSnapshot) // (1000*1 + (999-600)*1) / 2

	// day 3 snapshot: the pool moved back into range, nothing is excluded
	chain.ticks[pool] = -2000
	transfer(t, e, 4, dayTS(epoch0Start, 3), user1, user2, 1)

	vb, err = db.VaultBalance(vaultA, user1)
	require.NoError(err)
	require.Equal(big.NewInt(798), vb.AvgSnapshot) // (699*2 + 998*1) / 3
}

func TestReceiptTransfers(t *testing.T) {
	require := require.New(t)
	e, db := newTestEngine(t, &fakeChain{})
	receipt := e.Rules().Vaults[vaultA].Receipt

	// mint: the zero-address side is not booked
	require.NoError(e.ProcessReceiptTransfer(&inter.ReceiptTransfer{
		EventMeta: meta(1, dayTS(epoch0Start, 1), 0),
		Receipt:   receipt,
		From:      common.Address{},
		To:        user1,
		IDs:       []*big.Int{big.NewInt(1)},
		Values:    []*big.Int{big.NewInt(10)},
	}))

	rb, err := db.ReceiptBalance(receipt, big.NewInt(1), user1)
	require.NoError(err)
	require.Equal(big.NewInt(10), rb.Balance)

	rb, err = db.ReceiptBalance(receipt, big.NewInt(1), common.Address{})
	require.NoError(err)
	require.Nil(rb)

	// batch transfer moves both ids
	require.NoError(e.ProcessReceiptTransfer(&inter.ReceiptTransfer{
		EventMeta: meta(2, dayTS(epoch0Start, 1)+60, 0),
		Receipt:   receipt,
		From:      user1,
		To:        user2,
		IDs:       []*big.Int{big.NewInt(1), big.NewInt(2)},
		Values:    []*big.Int{big.NewInt(4), big.NewInt(3)},
	}))

	rb, err = db.ReceiptBalance(receipt, big.NewInt(1), user1)
	require.NoError(err)
	require.Equal(big.NewInt(6), rb.Balance)

	rb, err = db.ReceiptBalance(receipt, big.NewInt(1), user2)
	require.NoError(err)
	require.Equal(big.NewInt(4), rb.Balance)

	rb, err = db.ReceiptBalance(receipt, big.NewInt(2), user2)
	require.NoError(err)
	require.Equal(big.NewInt(3), rb.Balance)

	// transfers of an untracked 1155 are dropped
	require.NoError(e.ProcessReceiptTransfer(&inter.ReceiptTransfer{
		EventMeta: meta(3, dayTS(epoch0Start, 1)+120, 0),
		Receipt:   common.Address{0x99},
		From:      user1,
		To:        user2,
		IDs:       []*big.Int{big.NewInt(1)},
		Values:    []*big.Int{big.NewInt(1)},
	}))
	rb, err = db.ReceiptBalance(common.Address{0x99}, big.NewInt(1), user2)
	require.NoError(err)
	require.Nil(rb)
}

func TestCloneRegistration(t *testing.T) {
	require := require.New(t)
	e, db := newTestEngine(t, &fakeChain{})
	rules := e.Rules()

	vaultClone := common.HexToAddress("0x4000000000000000000000000000000000000040")
	receiptClone := common.HexToAddress("0x4000000000000000000000000000000000000041")
	deployer := common.HexToAddress("0x4000000000000000000000000000000000000042")

	require.NoError(e.ProcessNewClone(&inter.NewClone{
		EventMeta:      meta(1, dayTS(epoch0Start, 1), 0),
		Factory:        rules.CloneFactory,
		Implementation: rules.VaultImplementations[0],
		Clone:          vaultClone,
		Sender:         deployer,
	}))
	require.NoError(e.ProcessNewClone(&inter.NewClone{
		EventMeta:      meta(1, dayTS(epoch0Start, 1), 1),
		Factory:        rules.CloneFactory,
		Implementation: rules.ReceiptImplementations[0],
		Clone:          receiptClone,
		Sender:         deployer,
	}))
	// clones of unknown implementations are ignored
	require.NoError(e.ProcessNewClone(&inter.NewClone{
		EventMeta:      meta(1, dayTS(epoch0Start, 1), 2),
		Factory:        rules.CloneFactory,
		Implementation: common.Address{0x99},
		Clone:          common.Address{0x9A},
		Sender:         deployer,
	}))

	require.True(e.TracksToken(vaultClone))
	require.True(e.TracksReceipt(receiptClone))
	require.False(e.TracksToken(common.Address{0x9A}))

	infos, err := db.VaultInfos()
	require.NoError(err)
	require.Len(infos, 1)
	require.Equal(vaultClone, infos[0].Address)
	require.Equal(deployer, infos[0].Deployer)
}

func TestEngineResumesFromStore(t *testing.T) {
	require := require.New(t)

	pool := common.HexToAddress("0x2000000000000000000000000000000000000020")
	rules := cyclo.FakeNetRules()
	chain := &fakeChain{
		factories: map[common.Address]common.Address{pool: rules.V2Factories[0]},
		tokens:    map[common.Address][2]common.Address{pool: {vaultA, common.Address{0xEE}}},
	}

	db, err := store.NewMem()
	require.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	lg := logrus.New()
	lg.SetLevel(logrus.PanicLevel)

	e, err := eligibility.New(cyclo.FakeNetRules(), db, chain, lg)
	require.NoError(err)

	credit(t, e, 1, dayTS(epoch0Start, 1), user1, 1000)

	mintData, err := packUint256.Pack(big.NewInt(200))
	require.NoError(err)
	router := rules.V2LiquidityManagers[0]
	ev := &inter.TokenTransfer{
		EventMeta: meta(2, dayTS(epoch0Start, 1)+60, 1),
		Token:     vaultA,
		From:      user1,
		To:        pool,
		Value:     big.NewInt(500),
	}
	ev.TxFrom = user1
	ev.TxTo = &router
	ev.ReceiptLogs = []*types.Log{{
		Address: pool,
		Topics:  []common.Hash{erc20TransferTopic, {}, common.BytesToHash(user1.Bytes())},
		Data:    mintData,
	}}
	require.NoError(e.ProcessTokenTransfer(ev))

	// a fresh engine over the same database picks up the tracked pool and
	// the stream clock
	e2, err := eligibility.New(cyclo.FakeNetRules(), db, chain, lg)
	require.NoError(err)
	require.True(e2.TracksToken(pool))

	ts, err := db.TimeState()
	require.NoError(err)
	require.Equal(dayTS(epoch0Start, 1)+60, ts.Current)
	require.Equal(inter.Day(1), ts.LastSnapshotDay)
}
