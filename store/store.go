// Package store persists the eligibility entities in LevelDB. Records are
// encoded with the cser codec and laid out under single-byte key prefixes;
// owner-first composite keys let the per-owner listings run as prefix scans.
package store

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/cyclofinance/cy-ledger/eligibility"
	"github.com/cyclofinance/cy-ledger/epoch"
)

// Key prefixes. One byte each, chosen to keep related records adjacent.
const (
	pfxAccount      = 'a' // addr -> Account
	pfxAccountIndex = 'i' // seq(8) -> addr, discovery-ordered
	pfxAccountSeq   = 'I' // -> next seq
	pfxBalance      = 'b' // owner+vault -> VaultBalance
	pfxLiquidityV2  = '2' // pool+owner+vault -> LiquidityV2Position
	pfxLiquidityV3  = '3' // owner+manager+vault+tokenID(32) -> LiquidityV3Position
	pfxVaultTotals  = 'v' // vault -> VaultTotals
	pfxTotals       = 'T' // -> EligibleTotals
	pfxTimeState    = 't' // -> TimeState
	pfxVaultInfo    = 'V' // addr -> VaultInfo
	pfxReceiptInfo  = 'R' // addr -> ReceiptInfo
	pfxTrackedPool  = 'p' // pool -> nil
	pfxReceiptBal   = 'r' // receipt+tokenID(32)+owner -> ReceiptBalance
	pfxTransfer     = 'x' // block(8)+logIndex(8) -> TransferRecord
)

// Options tune the underlying LevelDB instance.
type Options struct {
	CacheSize              int
	OpenFilesCacheCapacity int
}

// Store is the LevelDB-backed implementation of eligibility.Store.
type Store struct {
	db *leveldb.DB
}

var _ eligibility.Store = (*Store)(nil)

// New opens (or creates) a persistent store at path.
func New(path string, opts Options) (*Store, error) {
	stg, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db storage")
	}
	return open(stg, opts)
}

// NewMem creates an in-memory store, for tests.
func NewMem() (*Store, error) {
	return open(storage.NewMemStorage(), Options{})
}

func open(stg storage.Storage, opts Options) (*Store, error) {
	cacheSize := opts.CacheSize
	if cacheSize < 16 {
		cacheSize = 16
	}
	openFiles := opts.OpenFilesCacheCapacity
	if openFiles < 16 {
		openFiles = 16
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: openFiles,
		BlockCacheCapacity:     cacheSize / 2 * opt.MiB,
		WriteBuffer:            cacheSize / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open leveldb")
	}
	return &Store{db: db}, nil
}

// Close closes the store. Later operations fail.
func (s *Store) Close() error {
	return s.db.Close()
}

// get returns nil without error for absent keys.
func (s *Store) get(key []byte) ([]byte, error) {
	buf, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "db get")
	}
	return buf, nil
}

func (s *Store) put(key, value []byte) error {
	return errors.Wrap(s.db.Put(key, value, nil), "db put")
}

func (s *Store) delete(key []byte) error {
	return errors.Wrap(s.db.Delete(key, nil), "db delete")
}

func (s *Store) has(key []byte) (bool, error) {
	ok, err := s.db.Has(key, nil)
	return ok, errors.Wrap(err, "db has")
}

// scan calls fn for every key/value under the prefix, in key order.
func (s *Store) scan(prefix []byte, fn func(key, value []byte) error) error {
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		key := append([]byte{}, it.Key()[len(prefix):]...)
		value := append([]byte{}, it.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return errors.Wrap(it.Error(), "db iterator")
}

func key(pfx byte, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}
	k := make([]byte, 0, n)
	k = append(k, pfx)
	for _, p := range parts {
		k = append(k, p...)
	}
	return k
}

// tokenIDKey renders a token id as a fixed 32-byte big-endian key part.
func tokenIDKey(tokenID *big.Int) []byte {
	return paddedTokenID(tokenID)
}

// Account loads an account record.
func (s *Store) Account(addr common.Address) (*eligibility.Account, error) {
	buf, err := s.get(key(pfxAccount, addr.Bytes()))
	if err != nil || buf == nil {
		return nil, err
	}
	return accountFromBytes(buf)
}

// SaveAccount stores an account, registering it in the discovery-order index
// on first save.
func (s *Store) SaveAccount(acc *eligibility.Account) error {
	k := key(pfxAccount, acc.Address.Bytes())
	known, err := s.has(k)
	if err != nil {
		return err
	}
	if !known {
		if err := s.appendAccountIndex(acc.Address); err != nil {
			return err
		}
	}
	buf, err := accountToBytes(acc)
	if err != nil {
		return err
	}
	return s.put(k, buf)
}

func (s *Store) appendAccountIndex(addr common.Address) error {
	seqKey := []byte{pfxAccountSeq}
	buf, err := s.get(seqKey)
	if err != nil {
		return err
	}
	seq := uint64(0)
	if buf != nil {
		seq = bigEndianToU64(buf)
	}
	if err := s.put(key(pfxAccountIndex, u64ToBigEndian(seq)), addr.Bytes()); err != nil {
		return err
	}
	return s.put(seqKey, u64ToBigEndian(seq+1))
}

// Accounts returns every account address in discovery order.
func (s *Store) Accounts() ([]common.Address, error) {
	var out []common.Address
	err := s.scan([]byte{pfxAccountIndex}, func(_, value []byte) error {
		out = append(out, common.BytesToAddress(value))
		return nil
	})
	return out, err
}

// VaultBalance loads the (vault, owner) balance record.
func (s *Store) VaultBalance(vault, owner common.Address) (*eligibility.VaultBalance, error) {
	buf, err := s.get(key(pfxBalance, owner.Bytes(), vault.Bytes()))
	if err != nil || buf == nil {
		return nil, err
	}
	return vaultBalanceFromBytes(buf)
}

// SaveVaultBalance stores a balance record.
func (s *Store) SaveVaultBalance(vb *eligibility.VaultBalance) error {
	buf, err := vaultBalanceToBytes(vb)
	if err != nil {
		return err
	}
	return s.put(key(pfxBalance, vb.Owner.Bytes(), vb.Vault.Bytes()), buf)
}

// VaultBalancesOf returns every vault balance held by the owner.
func (s *Store) VaultBalancesOf(owner common.Address) ([]*eligibility.VaultBalance, error) {
	var out []*eligibility.VaultBalance
	err := s.scan(key(pfxBalance, owner.Bytes()), func(_, value []byte) error {
		vb, err := vaultBalanceFromBytes(value)
		if err != nil {
			return err
		}
		out = append(out, vb)
		return nil
	})
	return out, err
}

// LiquidityV2 loads the (pool, owner, vault) position.
func (s *Store) LiquidityV2(pool, owner, vault common.Address) (*eligibility.LiquidityV2Position, error) {
	buf, err := s.get(key(pfxLiquidityV2, pool.Bytes(), owner.Bytes(), vault.Bytes()))
	if err != nil || buf == nil {
		return nil, err
	}
	return liquidityV2FromBytes(buf)
}

// SaveLiquidityV2 stores a V2 position.
func (s *Store) SaveLiquidityV2(pos *eligibility.LiquidityV2Position) error {
	buf, err := liquidityV2ToBytes(pos)
	if err != nil {
		return err
	}
	return s.put(key(pfxLiquidityV2, pos.Pool.Bytes(), pos.Owner.Bytes(), pos.Vault.Bytes()), buf)
}

// DeleteLiquidityV2 removes a V2 position.
func (s *Store) DeleteLiquidityV2(pool, owner, vault common.Address) error {
	return s.delete(key(pfxLiquidityV2, pool.Bytes(), owner.Bytes(), vault.Bytes()))
}

// LiquidityV3 loads the (manager, owner, vault, tokenID) position.
func (s *Store) LiquidityV3(manager, owner, vault common.Address, tokenID *big.Int) (*eligibility.LiquidityV3Position, error) {
	buf, err := s.get(key(pfxLiquidityV3, owner.Bytes(), manager.Bytes(), vault.Bytes(), tokenIDKey(tokenID)))
	if err != nil || buf == nil {
		return nil, err
	}
	return liquidityV3FromBytes(buf)
}

// SaveLiquidityV3 stores a V3 position.
func (s *Store) SaveLiquidityV3(pos *eligibility.LiquidityV3Position) error {
	buf, err := liquidityV3ToBytes(pos)
	if err != nil {
		return err
	}
	k := key(pfxLiquidityV3, pos.Owner.Bytes(), pos.Manager.Bytes(), pos.Vault.Bytes(), tokenIDKey(pos.TokenID))
	return s.put(k, buf)
}

// DeleteLiquidityV3 removes a V3 position.
func (s *Store) DeleteLiquidityV3(manager, owner, vault common.Address, tokenID *big.Int) error {
	return s.delete(key(pfxLiquidityV3, owner.Bytes(), manager.Bytes(), vault.Bytes(), tokenIDKey(tokenID)))
}

// LiquidityV3Of returns every V3 position owned by the owner.
func (s *Store) LiquidityV3Of(owner common.Address) ([]*eligibility.LiquidityV3Position, error) {
	var out []*eligibility.LiquidityV3Position
	err := s.scan(key(pfxLiquidityV3, owner.Bytes()), func(_, value []byte) error {
		pos, err := liquidityV3FromBytes(value)
		if err != nil {
			return err
		}
		out = append(out, pos)
		return nil
	})
	return out, err
}

// VaultTotals loads the per-vault totals.
func (s *Store) VaultTotals(vault common.Address) (*eligibility.VaultTotals, error) {
	buf, err := s.get(key(pfxVaultTotals, vault.Bytes()))
	if err != nil || buf == nil {
		return nil, err
	}
	return vaultTotalsFromBytes(buf)
}

// SaveVaultTotals stores the per-vault totals.
func (s *Store) SaveVaultTotals(vt *eligibility.VaultTotals) error {
	buf, err := vaultTotalsToBytes(vt)
	if err != nil {
		return err
	}
	return s.put(key(pfxVaultTotals, vt.Vault.Bytes()), buf)
}

// Totals loads the grand totals singleton.
func (s *Store) Totals() (*eligibility.EligibleTotals, error) {
	buf, err := s.get([]byte{pfxTotals})
	if err != nil || buf == nil {
		return nil, err
	}
	return totalsFromBytes(buf)
}

// SaveTotals stores the grand totals singleton.
func (s *Store) SaveTotals(t *eligibility.EligibleTotals) error {
	buf, err := totalsToBytes(t)
	if err != nil {
		return err
	}
	return s.put([]byte{pfxTotals}, buf)
}

// TimeState loads the stream clock singleton.
func (s *Store) TimeState() (*epoch.TimeState, error) {
	buf, err := s.get([]byte{pfxTimeState})
	if err != nil || buf == nil {
		return nil, err
	}
	return timeStateFromBytes(buf)
}

// SaveTimeState stores the stream clock singleton.
func (s *Store) SaveTimeState(ts *epoch.TimeState) error {
	buf, err := timeStateToBytes(ts)
	if err != nil {
		return err
	}
	return s.put([]byte{pfxTimeState}, buf)
}

// SaveVaultInfo registers a discovered vault.
func (s *Store) SaveVaultInfo(v *eligibility.VaultInfo) error {
	buf, err := deployInfoToBytes(v.Address, v.DeployBlock, v.DeployTime, v.Deployer)
	if err != nil {
		return err
	}
	return s.put(key(pfxVaultInfo, v.Address.Bytes()), buf)
}

// VaultInfos returns every registered vault.
func (s *Store) VaultInfos() ([]*eligibility.VaultInfo, error) {
	var out []*eligibility.VaultInfo
	err := s.scan([]byte{pfxVaultInfo}, func(_, value []byte) error {
		addr, block, time, deployer, err := deployInfoFromBytes(value)
		if err != nil {
			return err
		}
		out = append(out, &eligibility.VaultInfo{
			Address:     addr,
			DeployBlock: block,
			DeployTime:  time,
			Deployer:    deployer,
		})
		return nil
	})
	return out, err
}

// SaveReceiptInfo registers a discovered receipt token.
func (s *Store) SaveReceiptInfo(r *eligibility.ReceiptInfo) error {
	buf, err := deployInfoToBytes(r.Address, r.DeployBlock, r.DeployTime, r.Deployer)
	if err != nil {
		return err
	}
	return s.put(key(pfxReceiptInfo, r.Address.Bytes()), buf)
}

// ReceiptInfos returns every registered receipt token.
func (s *Store) ReceiptInfos() ([]*eligibility.ReceiptInfo, error) {
	var out []*eligibility.ReceiptInfo
	err := s.scan([]byte{pfxReceiptInfo}, func(_, value []byte) error {
		addr, block, time, deployer, err := deployInfoFromBytes(value)
		if err != nil {
			return err
		}
		out = append(out, &eligibility.ReceiptInfo{
			Address:     addr,
			DeployBlock: block,
			DeployTime:  time,
			Deployer:    deployer,
		})
		return nil
	})
	return out, err
}

// SaveTrackedPool registers an LP share token.
func (s *Store) SaveTrackedPool(pool common.Address) error {
	return s.put(key(pfxTrackedPool, pool.Bytes()), nil)
}

// TrackedPools returns every registered LP share token.
func (s *Store) TrackedPools() ([]common.Address, error) {
	var out []common.Address
	err := s.scan([]byte{pfxTrackedPool}, func(k, _ []byte) error {
		out = append(out, common.BytesToAddress(k))
		return nil
	})
	return out, err
}

// ReceiptBalance loads the (receipt, tokenID, owner) balance.
func (s *Store) ReceiptBalance(receipt common.Address, tokenID *big.Int, owner common.Address) (*eligibility.ReceiptBalance, error) {
	buf, err := s.get(key(pfxReceiptBal, receipt.Bytes(), tokenIDKey(tokenID), owner.Bytes()))
	if err != nil || buf == nil {
		return nil, err
	}
	return receiptBalanceFromBytes(buf)
}

// SaveReceiptBalance stores a receipt balance.
func (s *Store) SaveReceiptBalance(rb *eligibility.ReceiptBalance) error {
	buf, err := receiptBalanceToBytes(rb)
	if err != nil {
		return err
	}
	return s.put(key(pfxReceiptBal, rb.Receipt.Bytes(), tokenIDKey(rb.TokenID), rb.Owner.Bytes()), buf)
}

// SaveTransfer appends a journal entry keyed by (block, logIndex).
func (s *Store) SaveTransfer(tr *eligibility.TransferRecord) error {
	buf, err := transferToBytes(tr)
	if err != nil {
		return err
	}
	k := key(pfxTransfer, u64ToBigEndian(uint64(tr.Block)), u64ToBigEndian(uint64(tr.LogIndex)))
	return s.put(k, buf)
}

// Transfers returns the journal entries of one block, in log order.
func (s *Store) Transfers(block uint64) ([]*eligibility.TransferRecord, error) {
	var out []*eligibility.TransferRecord
	err := s.scan(key(pfxTransfer, u64ToBigEndian(block)), func(_, value []byte) error {
		tr, err := transferFromBytes(value)
		if err != nil {
			return err
		}
		out = append(out, tr)
		return nil
	})
	return out, err
}
