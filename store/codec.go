package store

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/cyclofinance/cy-ledger/eligibility"
	"github.com/cyclofinance/cy-ledger/epoch"
	"github.com/cyclofinance/cy-ledger/inter"
	"github.com/cyclofinance/cy-ledger/utils/cser"
)

func u64ToBigEndian(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func bigEndianToU64(buf []byte) uint64 {
	return binary.BigEndian.Uint64(buf)
}

func paddedTokenID(tokenID *big.Int) []byte {
	return cser.PaddedBytes(tokenID.Bytes(), 32)
}

func writeAddress(w *cser.Writer, addr common.Address) {
	w.FixedBytes(addr.Bytes())
}

func readAddress(r *cser.Reader) common.Address {
	var addr common.Address
	r.FixedBytes(addr[:])
	return addr
}

func writeHash(w *cser.Writer, h common.Hash) {
	w.FixedBytes(h.Bytes())
}

func readHash(r *cser.Reader) common.Hash {
	var h common.Hash
	r.FixedBytes(h[:])
	return h
}

// Decimals are stored in their canonical string form: the codec doesn't
// assume anything about scale or precision.
func writeDecimal(w *cser.Writer, d decimal.Decimal) {
	w.SliceBytes([]byte(d.String()))
}

func readDecimal(r *cser.Reader) (decimal.Decimal, error) {
	return decimal.NewFromString(string(r.SliceBytes(64)))
}

func accountToBytes(acc *eligibility.Account) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		writeAddress(w, acc.Address)
		w.SignedBigInt(acc.TotalBalance)
		w.SignedBigInt(acc.TotalBalanceSnapshot)
		writeDecimal(w, acc.EligibleShare)
		writeDecimal(w, acc.EligibleShareSnapshot)
		return nil
	})
}

func accountFromBytes(buf []byte) (acc *eligibility.Account, err error) {
	err = cser.UnmarshalBinaryAdapter(buf, func(r *cser.Reader) error {
		acc = &eligibility.Account{
			Address:              readAddress(r),
			TotalBalance:         r.SignedBigInt(),
			TotalBalanceSnapshot: r.SignedBigInt(),
		}
		var derr error
		if acc.EligibleShare, derr = readDecimal(r); derr != nil {
			return derr
		}
		acc.EligibleShareSnapshot, derr = readDecimal(r)
		return derr
	})
	return
}

func vaultBalanceToBytes(vb *eligibility.VaultBalance) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		writeAddress(w, vb.Vault)
		writeAddress(w, vb.Owner)
		w.SignedBigInt(vb.Balance)
		w.SignedBigInt(vb.AvgSnapshot)
		return nil
	})
}

func vaultBalanceFromBytes(buf []byte) (vb *eligibility.VaultBalance, err error) {
	err = cser.UnmarshalBinaryAdapter(buf, func(r *cser.Reader) error {
		vb = &eligibility.VaultBalance{
			Vault:       readAddress(r),
			Owner:       readAddress(r),
			Balance:     r.SignedBigInt(),
			AvgSnapshot: r.SignedBigInt(),
		}
		return nil
	})
	return
}

func liquidityV2ToBytes(pos *eligibility.LiquidityV2Position) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		writeAddress(w, pos.Pool)
		writeAddress(w, pos.Owner)
		writeAddress(w, pos.Vault)
		w.BigInt(pos.Liquidity)
		w.BigInt(pos.DepositBalance)
		return nil
	})
}

func liquidityV2FromBytes(buf []byte) (pos *eligibility.LiquidityV2Position, err error) {
	err = cser.UnmarshalBinaryAdapter(buf, func(r *cser.Reader) error {
		pos = &eligibility.LiquidityV2Position{
			Pool:           readAddress(r),
			Owner:          readAddress(r),
			Vault:          readAddress(r),
			Liquidity:      r.BigInt(),
			DepositBalance: r.BigInt(),
		}
		return nil
	})
	return
}

func liquidityV3ToBytes(pos *eligibility.LiquidityV3Position) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		writeAddress(w, pos.Manager)
		writeAddress(w, pos.Owner)
		writeAddress(w, pos.Vault)
		w.BigInt(pos.TokenID)
		w.BigInt(pos.Liquidity)
		w.BigInt(pos.DepositBalance)
		writeAddress(w, pos.Pool)
		w.U32(pos.FeeTier)
		w.I32(pos.LowerTick)
		w.I32(pos.UpperTick)
		return nil
	})
}

func liquidityV3FromBytes(buf []byte) (pos *eligibility.LiquidityV3Position, err error) {
	err = cser.UnmarshalBinaryAdapter(buf, func(r *cser.Reader) error {
		pos = &eligibility.LiquidityV3Position{
			Manager:        readAddress(r),
			Owner:          readAddress(r),
			Vault:          readAddress(r),
			TokenID:        r.BigInt(),
			Liquidity:      r.BigInt(),
			DepositBalance: r.BigInt(),
			Pool:           readAddress(r),
			FeeTier:        r.U32(),
			LowerTick:      r.I32(),
			UpperTick:      r.I32(),
		}
		return nil
	})
	return
}

func vaultTotalsToBytes(vt *eligibility.VaultTotals) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		writeAddress(w, vt.Vault)
		w.BigInt(vt.TotalEligible)
		w.BigInt(vt.TotalEligibleSnapshot)
		return nil
	})
}

func vaultTotalsFromBytes(buf []byte) (vt *eligibility.VaultTotals, err error) {
	err = cser.UnmarshalBinaryAdapter(buf, func(r *cser.Reader) error {
		vt = &eligibility.VaultTotals{
			Vault:                 readAddress(r),
			TotalEligible:         r.BigInt(),
			TotalEligibleSnapshot: r.BigInt(),
		}
		return nil
	})
	return
}

func totalsToBytes(t *eligibility.EligibleTotals) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		w.BigInt(t.TotalEligibleSum)
		w.BigInt(t.TotalEligibleSumSnapshot)
		return nil
	})
}

func totalsFromBytes(buf []byte) (t *eligibility.EligibleTotals, err error) {
	err = cser.UnmarshalBinaryAdapter(buf, func(r *cser.Reader) error {
		t = &eligibility.EligibleTotals{
			TotalEligibleSum:         r.BigInt(),
			TotalEligibleSumSnapshot: r.BigInt(),
		}
		return nil
	})
	return
}

func timeStateToBytes(ts *epoch.TimeState) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		w.U64(uint64(ts.Origin))
		w.U64(uint64(ts.Current))
		w.U64(uint64(ts.Previous))
		w.U64(uint64(ts.CurrentBlock))
		w.U64(uint64(ts.PreviousBlock))
		w.I64(int64(ts.LastSnapshotEpoch))
		w.I64(int64(ts.LastSnapshotDay))
		return nil
	})
}

func timeStateFromBytes(buf []byte) (ts *epoch.TimeState, err error) {
	err = cser.UnmarshalBinaryAdapter(buf, func(r *cser.Reader) error {
		ts = &epoch.TimeState{
			Origin:            inter.Timestamp(r.U64()),
			Current:           inter.Timestamp(r.U64()),
			Previous:          inter.Timestamp(r.U64()),
			CurrentBlock:      inter.Block(r.U64()),
			PreviousBlock:     inter.Block(r.U64()),
			LastSnapshotEpoch: inter.Epoch(r.I64()),
			LastSnapshotDay:   inter.Day(r.I64()),
		}
		return nil
	})
	return
}

func deployInfoToBytes(addr common.Address, block inter.Block, time inter.Timestamp, deployer common.Address) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		writeAddress(w, addr)
		w.U64(uint64(block))
		w.U64(uint64(time))
		writeAddress(w, deployer)
		return nil
	})
}

func deployInfoFromBytes(buf []byte) (addr common.Address, block inter.Block, time inter.Timestamp, deployer common.Address, err error) {
	err = cser.UnmarshalBinaryAdapter(buf, func(r *cser.Reader) error {
		addr = readAddress(r)
		block = inter.Block(r.U64())
		time = inter.Timestamp(r.U64())
		deployer = readAddress(r)
		return nil
	})
	return
}

func receiptBalanceToBytes(rb *eligibility.ReceiptBalance) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		writeAddress(w, rb.Receipt)
		w.BigInt(rb.TokenID)
		writeAddress(w, rb.Owner)
		w.SignedBigInt(rb.Balance)
		return nil
	})
}

func receiptBalanceFromBytes(buf []byte) (rb *eligibility.ReceiptBalance, err error) {
	err = cser.UnmarshalBinaryAdapter(buf, func(r *cser.Reader) error {
		rb = &eligibility.ReceiptBalance{
			Receipt: readAddress(r),
			TokenID: r.BigInt(),
			Owner:   readAddress(r),
			Balance: r.SignedBigInt(),
		}
		return nil
	})
	return
}

func transferToBytes(tr *eligibility.TransferRecord) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		writeHash(w, tr.TxHash)
		w.U64(uint64(tr.LogIndex))
		w.U64(uint64(tr.Block))
		w.U64(uint64(tr.Time))
		writeAddress(w, tr.Token)
		writeAddress(w, tr.From)
		writeAddress(w, tr.To)
		w.BigInt(tr.Value)
		w.Bool(tr.FromApproved)
		return nil
	})
}

func transferFromBytes(buf []byte) (tr *eligibility.TransferRecord, err error) {
	err = cser.UnmarshalBinaryAdapter(buf, func(r *cser.Reader) error {
		tr = &eligibility.TransferRecord{
			TxHash:       readHash(r),
			LogIndex:     uint(r.U64()),
			Block:        inter.Block(r.U64()),
			Time:         inter.Timestamp(r.U64()),
			Token:        readAddress(r),
			From:         readAddress(r),
			To:           readAddress(r),
			Value:        r.BigInt(),
			FromApproved: r.Bool(),
		}
		return nil
	})
	return
}
