// Package cyclo defines the per-network rules for the eligibility ledger:
// tracked vault tokens and their receipt tokens, approved reward sources,
// recognized AMM factories and liquidity managers, clone-factory
// implementation sets, and the reward epoch schedule.
//
// The Rules type is the central configuration structure; FlareRules,
// ArbitrumRules and FakeNetRules construct the known deployments.
package cyclo

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/cyclofinance/cy-ledger/epoch"
)

// Network identification constants.
const (
	FlareNetworkID    uint64 = 14
	ArbitrumNetworkID uint64 = 42161
	FakeNetworkID     uint64 = 4003
)

// VaultDescriptor describes one tracked vault token.
type VaultDescriptor struct {
	Symbol  string
	Receipt common.Address
}

// Rules describes the complete ledger configuration for one network.
type Rules struct {
	Name      string
	NetworkID uint64

	// Vaults maps each tracked vault token address to its descriptor.
	// Handlers look vaults up here instead of branching per token.
	Vaults map[common.Address]VaultDescriptor

	// RewardSources is the static allow-list of approved origins.
	RewardSources []common.Address

	// Recognized AMM factories. A transfer counterparty whose factory()
	// resolves to one of these is treated as a pool.
	V2Factories []common.Address
	V3Factories []common.Address

	// V2LiquidityManagers are the router contracts through which V2
	// liquidity is added.
	V2LiquidityManagers []common.Address

	// V3PositionManager is the nonfungible position manager.
	V3PositionManager common.Address

	// CloneFactory emits NewClone events; clones of the implementation sets
	// below are registered as vaults or receipts.
	CloneFactory           common.Address
	VaultImplementations   []common.Address
	ReceiptImplementations []common.Address

	// Epochs is the reward epoch schedule for this network.
	Epochs epoch.Schedule
}

// Vault returns the descriptor of a tracked vault token.
func (r Rules) Vault(addr common.Address) (VaultDescriptor, bool) {
	d, ok := r.Vaults[addr]
	return d, ok
}

// IsVault reports whether addr is a tracked vault token.
func (r Rules) IsVault(addr common.Address) bool {
	_, ok := r.Vaults[addr]
	return ok
}

// IsRewardSource reports whether addr is on the static allow-list.
func (r Rules) IsRewardSource(addr common.Address) bool {
	return containsAddress(r.RewardSources, addr)
}

// IsV2Factory reports whether addr is a recognized V2 pool factory.
func (r Rules) IsV2Factory(addr common.Address) bool {
	return containsAddress(r.V2Factories, addr)
}

// IsV3Factory reports whether addr is a recognized V3 pool factory.
func (r Rules) IsV3Factory(addr common.Address) bool {
	return containsAddress(r.V3Factories, addr)
}

// IsFactory reports whether addr is any recognized pool factory.
func (r Rules) IsFactory(addr common.Address) bool {
	return r.IsV2Factory(addr) || r.IsV3Factory(addr)
}

// IsV2LiquidityManager reports whether addr is a known V2 router.
func (r Rules) IsV2LiquidityManager(addr common.Address) bool {
	return containsAddress(r.V2LiquidityManagers, addr)
}

// IsVaultImplementation reports whether addr is a known vault implementation.
func (r Rules) IsVaultImplementation(addr common.Address) bool {
	return containsAddress(r.VaultImplementations, addr)
}

// IsReceiptImplementation reports whether addr is a known receipt implementation.
func (r Rules) IsReceiptImplementation(addr common.Address) bool {
	return containsAddress(r.ReceiptImplementations, addr)
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

// FlareRules returns the production configuration for Flare mainnet.
func FlareRules() Rules {
	return Rules{
		Name:      "flare",
		NetworkID: FlareNetworkID,
		Vaults: map[common.Address]VaultDescriptor{
			common.HexToAddress("0x19831cfB53A0dbeAD9866C43557C1D48DfF76567"): {Symbol: "cysFLR", Receipt: common.HexToAddress("0xd387FC43E19a63036d8FCeD559E81f5dDeF7ef09")},
			common.HexToAddress("0xd8BF1d2720E9fFD01a2F9A2eFc3E101a05B852b4"): {Symbol: "cyWETH", Receipt: common.HexToAddress("0xBE2615A0fcB54A49A1eB472be30d992599FE0968")},
			common.HexToAddress("0xF23595Ede14b54817397B1dAb899bA061BdCe7b5"): {Symbol: "cyFXRP", Receipt: common.HexToAddress("0xC46600cEbD84Ed2FE60Ec525dF13E341D24642f2")},
			common.HexToAddress("0x229917ac2842Eaab42060a1A9213CA78e01b572a"): {Symbol: "cyWBTC", Receipt: common.HexToAddress("0x922A293D4d0af30D67A51e5510a487916a2bb494")},
			common.HexToAddress("0x9fC9dA918552df0DAd6C00051351e335656da100"): {Symbol: "cycbBTC", Receipt: common.HexToAddress("0x3a5eDe5AE4EC55F61c4aFf2CDfC920b5029Abf05")},
			common.HexToAddress("0x715aa5f9A5b3C2b51c432C9028C8692029BCE609"): {Symbol: "cyLINK", Receipt: common.HexToAddress("0xDF66e921C8C29e1b1CA729848790A4D0bd6cbde9")},
			common.HexToAddress("0xEE6a7019679f96CED1Ea861Aae0c88D4481c7226"): {Symbol: "cyDOT", Receipt: common.HexToAddress("0x3B22b5cE7F9901fe6a676E57E079873775aAA331")},
			common.HexToAddress("0x7Cad3F864639738f9cC25952433cd844c07D16a4"): {Symbol: "cyUNI", Receipt: common.HexToAddress("0xBF979c720c730738e25D766748F7063f223F1d27")},
			common.HexToAddress("0x4DD4230F3B4d6118D905eD0B6f5f20A3b2472166"): {Symbol: "cyPEPE", Receipt: common.HexToAddress("0xdb2C91313aAAaE40aedf6E91a1E78443241a64c0")},
			common.HexToAddress("0x5D938CAf878BD56ACcF2B27Fad9F697aA206dF40"): {Symbol: "cyENA", Receipt: common.HexToAddress("0x7426ddC75b522e40552ea24D647898fAcE0E2360")},
			common.HexToAddress("0xc83563177290bdd391DB56553Ed828413b7689bc"): {Symbol: "cyARB", Receipt: common.HexToAddress("0x3fEe841c184dCF93f15CD28144b6E5514fFfC18e")},
			common.HexToAddress("0xC43ee790dc819dB728e2c5bB6285359BBdE7E016"): {Symbol: "cywstETH", Receipt: common.HexToAddress("0x8C1843A9f3278C94f6d79cebA9828596F524E898")},
		},
		RewardSources: []common.Address{
			common.HexToAddress("0xcee8cd002f151a536394e564b84076c41bbbcd4d"), // orderbook
			common.HexToAddress("0x0f3D8a38D4c74afBebc2c42695642f0e3acb15D3"), // Sparkdex Universal Router
			common.HexToAddress("0x6352a56caadC4F1E25CD6c75970Fa768A3304e64"), // OpenOcean Exchange Proxy
			common.HexToAddress("0xeD85325119cCFc6aCB16FA931bAC6378B76e4615"), // OpenOcean Exchange Impl
			common.HexToAddress("0x8c7ba8f245aef3216698087461e05b85483f791f"), // OpenOcean Exchange Router
			common.HexToAddress("0x9D70B0b90915Bb8b9bdAC7e6a7e6435bBF1feC4D"), // Sparkdex TWAP
		},
		V2Factories: []common.Address{
			common.HexToAddress("0x16b619B04c961E8f4F06C10B42FDAbb328980A89"), // Sparkdex V2
			common.HexToAddress("0x440602f459D7Dd500a74528003e6A20A46d6e2A6"), // Blazeswap
		},
		V3Factories: []common.Address{
			common.HexToAddress("0xb3fB4f96175f6f9D716c17744e5A6d4BA9da8176"), // Sparkdex V3
			common.HexToAddress("0x8A2578d23d4C532cC9A98FaD91C0523f5efDE652"), // Sparkdex V3.1
		},
		V2LiquidityManagers: []common.Address{
			common.HexToAddress("0xe3A1b355ca63abCBC9589334B5e609583C7BAa06"), // Blazeswap router
			common.HexToAddress("0x4a1E5A90e9943467FAd1acea1E7F0e5e88472a1e"), // Sparkdex V2 router
		},
		V3PositionManager: common.HexToAddress("0xEE5FF5Bc5F852764b5584d92A4d592A53DC527da"),
		CloneFactory:      common.HexToAddress("0x59401C9302E79Eb8AC6aea659B8B3ae475715e86"),
		VaultImplementations: []common.Address{
			common.HexToAddress("0x35ea13bBEfF8115fb63E4164237922E491dd21BC"),
			common.HexToAddress("0x76A064c006B62eb26565B91dB59c62666d291F4d"),
			common.HexToAddress("0xb04c8ca7127997f8832152112a00cd37dc3f49e9"),
		},
		ReceiptImplementations: []common.Address{
			common.HexToAddress("0xd387FC43E19a63036d8FCeD559E81f5dDeF7ef09"),
			common.HexToAddress("0x3aCEB4F257c169f9143524FF11092f268294fC7c"),
			common.HexToAddress("0xac2c4d2d2fb38e26064fe7e8e4dc734bdf0add14"),
		},
		Epochs: DefaultEpochs(),
	}
}

// ArbitrumRules returns the configuration for Arbitrum One.
func ArbitrumRules() Rules {
	r := FlareRules()
	r.Name = "arbitrum-one"
	r.NetworkID = ArbitrumNetworkID
	r.Vaults = map[common.Address]VaultDescriptor{
		common.HexToAddress("0x28C7747D7eA25ED3dDCd075c6CCC3634313a0F59"): {Symbol: "cyWETH", Receipt: common.HexToAddress("0x0E67a81B967c189Cf50353B0fE6fef572dC55319")},
	}
	r.VaultImplementations = []common.Address{
		common.HexToAddress("0x934CAD642Ec68A0f33C15DB129a13028Afa616fC"),
	}
	r.ReceiptImplementations = []common.Address{
		common.HexToAddress("0xfF5d5E89F4Cd37c413716531506CfaE062ab77cB"),
	}
	return r
}

// FakeNetRules returns a synthetic configuration for local testing. Two
// vaults, one reward source, one factory of each kind, and a short epoch
// schedule starting at the first rFLR epoch.
func FakeNetRules() Rules {
	schedule, err := epoch.NewSchedule([]epoch.Record{
		{Label: "2024-07-06T12:00:00Z", Start: 1720267200, Days: 30},
		{Label: "2024-08-05T12:00:00Z", Start: 1722859200, Days: 30},
		{Label: "2024-09-04T12:00:00Z", Start: 1725451200, Days: 30},
	})
	if err != nil {
		panic(err)
	}
	return Rules{
		Name:      "fake",
		NetworkID: FakeNetworkID,
		Vaults: map[common.Address]VaultDescriptor{
			common.HexToAddress("0x00000000000000000000000000000000000000A1"): {Symbol: "cysFLR", Receipt: common.HexToAddress("0x00000000000000000000000000000000000000B1")},
			common.HexToAddress("0x00000000000000000000000000000000000000A2"): {Symbol: "cyWETH", Receipt: common.HexToAddress("0x00000000000000000000000000000000000000B2")},
		},
		RewardSources: []common.Address{
			common.HexToAddress("0x00000000000000000000000000000000000000C1"),
		},
		V2Factories: []common.Address{
			common.HexToAddress("0x00000000000000000000000000000000000000D2"),
		},
		V3Factories: []common.Address{
			common.HexToAddress("0x00000000000000000000000000000000000000D3"),
		},
		V2LiquidityManagers: []common.Address{
			common.HexToAddress("0x00000000000000000000000000000000000000E2"),
		},
		V3PositionManager: common.HexToAddress("0x00000000000000000000000000000000000000E3"),
		CloneFactory:      common.HexToAddress("0x00000000000000000000000000000000000000F1"),
		VaultImplementations: []common.Address{
			common.HexToAddress("0x00000000000000000000000000000000000000F2"),
		},
		ReceiptImplementations: []common.Address{
			common.HexToAddress("0x00000000000000000000000000000000000000F3"),
		},
		Epochs: schedule,
	}
}

// RulesByName resolves a network name into its rules.
func RulesByName(name string) (Rules, error) {
	switch name {
	case "flare":
		return FlareRules(), nil
	case "arbitrum-one":
		return ArbitrumRules(), nil
	case "fake":
		return FakeNetRules(), nil
	default:
		return Rules{}, errors.Errorf("unknown network %q", name)
	}
}

// Copy creates a deep copy of Rules.
func (r Rules) Copy() Rules {
	cp := r
	cp.Vaults = make(map[common.Address]VaultDescriptor, len(r.Vaults))
	for k, v := range r.Vaults {
		cp.Vaults[k] = v
	}
	cp.RewardSources = append([]common.Address(nil), r.RewardSources...)
	cp.V2Factories = append([]common.Address(nil), r.V2Factories...)
	cp.V3Factories = append([]common.Address(nil), r.V3Factories...)
	cp.V2LiquidityManagers = append([]common.Address(nil), r.V2LiquidityManagers...)
	cp.VaultImplementations = append([]common.Address(nil), r.VaultImplementations...)
	cp.ReceiptImplementations = append([]common.Address(nil), r.ReceiptImplementations...)
	return cp
}

// String returns a JSON representation of Rules for logging.
func (r Rules) String() string {
	b, _ := json.Marshal(&struct {
		Name      string
		NetworkID uint64
		Vaults    int
		Epochs    int
	}{r.Name, r.NetworkID, len(r.Vaults), r.Epochs.Len()})
	return string(b)
}
