package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// Origin tags where an L2 transaction came from. Downstream code dispatches
// on this tag instead of on a class hierarchy (see DESIGN.md, Polymorphism
// over transaction origins).
type Origin uint8

const (
	OriginCalldata Origin = iota
	OriginEvent
	OriginBatch
)

func (o Origin) String() string {
	switch o {
	case OriginCalldata:
		return "calldata"
	case OriginEvent:
		return "event"
	case OriginBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// L2Transaction is a standard EIP-2718 typed transaction, carried as raw
// bytes until a consumer needs its parsed fields (see core/txdecode).
type L2Transaction struct {
	Origin  Origin
	Payload []byte

	// L1TxIndex is the index, within the source L1 block, of the carrier
	// transaction this L2 transaction derives from. Used for ordering and
	// for dedup tie-breaking (spec §4.5).
	L1TxIndex uint64
}

// SystemTransaction is an unsigned, type-0x7E deposit-style transaction
// produced by the proposer. Never appears in batches.
type SystemTransaction struct {
	Payload []byte
}

// L2Block is the fully assembled, ordered block the proposer submits to the
// execution engine.
//
// Invariants (spec §3):
//   - Timestamp = max(l1Timestamp, parent.Timestamp + BlockInterval)
//   - Number = parent.Number + 1
//   - Transactions[0] is always the L1-attributes system transaction.
type L2Block struct {
	Number        uint64
	Hash          common.Hash
	ParentHash    common.Hash
	Timestamp     uint64
	BaseFeePerGas uint64
	PrevRandao    common.Hash
	ExtraData     []byte
	GasLimit      uint64
	GasUsed       uint64

	// Transactions is the final ordering: system transactions first (L1
	// attributes, then any migration/upgrade transactions), followed by the
	// user transactions BlockBuilder produced.
	Transactions [][]byte

	Mint MintPeriodState

	// SourceL1Number is the L1 block this L2 block derives from. A filler
	// block shares its SourceL1Number with the real block that follows it,
	// since both close the same L1 timestamp gap. Used by storage.Store to
	// resolve a reorg's divergence point to the L2 blocks it invalidates
	// (spec §6: "a detected L1 reorg deletes L2 blocks whose source L1
	// block number >= divergence point").
	SourceL1Number uint64
}
