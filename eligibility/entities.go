// Package eligibility implements the reward-eligibility accounting engine:
// the approved-source gated balance ledger, the V2/V3 liquidity position
// trackers, the incremental totals aggregator and the epoch-day snapshot
// averaging pass.
//
// All entities are owned by the engine and mutated only through its event
// handlers. Events must arrive exactly once, in ascending (block, logIndex)
// order; the incremental aggregation depends on it.
package eligibility

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/cyclofinance/cy-ledger/inter"
)

// Account aggregates an address's standing across all tracked vaults.
// Created lazily on first reference, never deleted.
type Account struct {
	Address common.Address

	// TotalBalance is the sum of the account's positive vault balances.
	TotalBalance *big.Int

	// TotalBalanceSnapshot is the time-weighted counterpart, recomputed by
	// the snapshot pass.
	TotalBalanceSnapshot *big.Int

	// EligibleShare is the account's fraction of the current grand total.
	// Refreshed for accounts touched by an event; the authoritative share is
	// EligibleShareSnapshot.
	EligibleShare decimal.Decimal

	// EligibleShareSnapshot is the fraction of the snapshot grand total,
	// recomputed for every account on each snapshot pass.
	EligibleShareSnapshot decimal.Decimal
}

// NewAccount returns a zero-balance account record.
func NewAccount(addr common.Address) *Account {
	return &Account{
		Address:              addr,
		TotalBalance:         new(big.Int),
		TotalBalanceSnapshot: new(big.Int),
	}
}

// VaultBalance is the signed eligible balance of one owner in one vault
// token. The balance can go negative (a debit with no prior approved credit);
// only the positive part contributes to totals.
type VaultBalance struct {
	Vault common.Address
	Owner common.Address

	Balance *big.Int

	// AvgSnapshot is the running time-weighted average balance for the
	// current epoch.
	AvgSnapshot *big.Int
}

// NewVaultBalance returns a zero balance record for (vault, owner).
func NewVaultBalance(vault, owner common.Address) *VaultBalance {
	return &VaultBalance{
		Vault:       vault,
		Owner:       owner,
		Balance:     new(big.Int),
		AvgSnapshot: new(big.Int),
	}
}

// LiquidityV2Position records vault-token value deposited into a fungible
// pool-share position. The DepositBalance/Liquidity ratio is preserved under
// partial withdraws; the record is removed when Liquidity reaches zero.
type LiquidityV2Position struct {
	Pool  common.Address
	Owner common.Address
	Vault common.Address

	Liquidity      *big.Int
	DepositBalance *big.Int
}

// LiquidityV3Position records one leg of a concentrated-liquidity NFT
// position. One record per (manager, owner, vault, tokenID); removed on full
// withdrawal or on ownership transfer.
type LiquidityV3Position struct {
	Manager common.Address
	Owner   common.Address
	Vault   common.Address
	TokenID *big.Int

	Liquidity      *big.Int
	DepositBalance *big.Int

	// Pool, FeeTier and the tick range are resolved once, at creation.
	Pool      common.Address
	FeeTier   uint32
	LowerTick int32
	UpperTick int32
}

// InRange reports whether the pool's current tick falls inside the position's
// active range.
func (p *LiquidityV3Position) InRange(tick int32) bool {
	return p.LowerTick <= tick && tick <= p.UpperTick
}

// VaultTotals is the per-vault running sum of positive eligible balances and
// its snapshot counterpart.
type VaultTotals struct {
	Vault common.Address

	TotalEligible         *big.Int
	TotalEligibleSnapshot *big.Int
}

// NewVaultTotals returns zero totals for a vault.
func NewVaultTotals(vault common.Address) *VaultTotals {
	return &VaultTotals{
		Vault:                 vault,
		TotalEligible:         new(big.Int),
		TotalEligibleSnapshot: new(big.Int),
	}
}

// EligibleTotals is the singleton grand total used as the share denominator.
type EligibleTotals struct {
	TotalEligibleSum         *big.Int
	TotalEligibleSumSnapshot *big.Int
}

// NewEligibleTotals returns zero grand totals.
func NewEligibleTotals() *EligibleTotals {
	return &EligibleTotals{
		TotalEligibleSum:         new(big.Int),
		TotalEligibleSumSnapshot: new(big.Int),
	}
}

// VaultInfo registers a vault token discovered through the clone factory.
type VaultInfo struct {
	Address     common.Address
	DeployBlock inter.Block
	DeployTime  inter.Timestamp
	Deployer    common.Address
}

// ReceiptInfo registers a vault receipt token discovered through the clone
// factory.
type ReceiptInfo struct {
	Address     common.Address
	DeployBlock inter.Block
	DeployTime  inter.Timestamp
	Deployer    common.Address
}

// ReceiptBalance is the ERC1155 receipt balance of one owner for one token id.
type ReceiptBalance struct {
	Receipt common.Address
	TokenID *big.Int
	Owner   common.Address

	Balance *big.Int
}

// NewReceiptBalance returns a zero receipt balance record.
func NewReceiptBalance(receipt common.Address, tokenID *big.Int, owner common.Address) *ReceiptBalance {
	return &ReceiptBalance{
		Receipt: receipt,
		TokenID: new(big.Int).Set(tokenID),
		Owner:   owner,
		Balance: new(big.Int),
	}
}

// TransferRecord is the journal entry persisted for every processed
// vault-token transfer, for downstream consumers.
type TransferRecord struct {
	TxHash   common.Hash
	LogIndex uint
	Block    inter.Block
	Time     inter.Timestamp

	Token        common.Address
	From         common.Address
	To           common.Address
	Value        *big.Int
	FromApproved bool
}
