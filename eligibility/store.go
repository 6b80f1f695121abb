package eligibility

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cyclofinance/cy-ledger/epoch"
)

// Store is the persistence collaborator: a key-indexed record store with
// load/save primitives per entity kind. Loads return nil (and no error) for
// absent records; every write is independently durable once Save returns.
// No transactional batch commit is assumed.
type Store interface {
	// Account bookkeeping. Accounts returns every account ever referenced,
	// in discovery order; the snapshot pass iterates it.
	Account(addr common.Address) (*Account, error)
	SaveAccount(acc *Account) error
	Accounts() ([]common.Address, error)

	VaultBalance(vault, owner common.Address) (*VaultBalance, error)
	SaveVaultBalance(vb *VaultBalance) error
	// VaultBalancesOf returns every vault balance held by the owner.
	VaultBalancesOf(owner common.Address) ([]*VaultBalance, error)

	LiquidityV2(pool, owner, vault common.Address) (*LiquidityV2Position, error)
	SaveLiquidityV2(pos *LiquidityV2Position) error
	DeleteLiquidityV2(pool, owner, vault common.Address) error

	LiquidityV3(manager, owner, vault common.Address, tokenID *big.Int) (*LiquidityV3Position, error)
	SaveLiquidityV3(pos *LiquidityV3Position) error
	DeleteLiquidityV3(manager, owner, vault common.Address, tokenID *big.Int) error
	// LiquidityV3Of returns every V3 position owned by the owner.
	LiquidityV3Of(owner common.Address) ([]*LiquidityV3Position, error)

	VaultTotals(vault common.Address) (*VaultTotals, error)
	SaveVaultTotals(vt *VaultTotals) error

	Totals() (*EligibleTotals, error)
	SaveTotals(t *EligibleTotals) error

	TimeState() (*epoch.TimeState, error)
	SaveTimeState(ts *epoch.TimeState) error

	// Vault/receipt registry and the tracked LP pool set, populated by
	// clone discovery and V2 liquidity adds.
	SaveVaultInfo(v *VaultInfo) error
	VaultInfos() ([]*VaultInfo, error)
	SaveReceiptInfo(r *ReceiptInfo) error
	ReceiptInfos() ([]*ReceiptInfo, error)
	SaveTrackedPool(pool common.Address) error
	TrackedPools() ([]common.Address, error)

	ReceiptBalance(receipt common.Address, tokenID *big.Int, owner common.Address) (*ReceiptBalance, error)
	SaveReceiptBalance(rb *ReceiptBalance) error

	SaveTransfer(tr *TransferRecord) error
}
