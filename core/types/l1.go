// Package types holds the derivation pipeline's own domain entities — L1
// and L2 block/transaction records, parsed batches and mint state — as
// distinct from go-ethereum/core/types, which this package leans on for
// standard EIP-2718 transaction encoding.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// L1Transaction is the subset of an L1 transaction's fields the derivation
// pipeline needs. Immutable once fetched.
type L1Transaction struct {
	Hash              common.Hash
	TxIndex           uint64
	From              common.Address
	To                *common.Address
	Input             []byte
	Type              uint8
	BlobVersionedHash []common.Hash
}

// IsBlobCarrier reports whether this transaction can carry blob sidecars.
func (tx *L1Transaction) IsBlobCarrier() bool {
	return tx.Type == 3 && len(tx.BlobVersionedHash) > 0
}

// L1Log is the subset of an L1 log entry the collector inspects.
type L1Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// L1Receipt carries only what the collector needs: the success status and
// emitted logs, keyed by tx hash via L1Block.ReceiptFor.
type L1Receipt struct {
	TxHash  common.Hash
	Success bool
	Logs    []L1Log
}

// L1Block is an immutable, fully fetched L1 block plus its receipts.
// Invariant: ParentHash of block N equals Hash of block N-1 on the
// canonical chain; a violation is detected by the pipeline and triggers a
// re-fetch at the divergence point (see storage.Store.TruncateFrom).
type L1Block struct {
	Number                 uint64
	Hash                   common.Hash
	ParentHash             common.Hash
	Timestamp              uint64
	BaseFeePerGas          *big.Int
	MixHash                common.Hash
	ParentBeaconBlockRoot  *common.Hash
	Transactions           []L1Transaction
	Receipts               []L1Receipt
}

// ReceiptFor returns the receipt for the given transaction hash, if present.
func (b *L1Block) ReceiptFor(hash common.Hash) (L1Receipt, bool) {
	for _, r := range b.Receipts {
		if r.TxHash == hash {
			return r, true
		}
	}
	return L1Receipt{}, false
}
