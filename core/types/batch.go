package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// Role is the batch's wire-level role byte. Older derivation code called
// role 0x00 "FORCED"; current code calls it "PERMISSIONLESS" — the two
// names are synonyms, the wire byte value is authoritative (spec §9b).
type Role uint8

const (
	RolePermissionless Role = 0x00
	RolePriority       Role = 0x01
)

func (r Role) String() string {
	switch r {
	case RolePermissionless:
		return "permissionless"
	case RolePriority:
		return "priority"
	default:
		return "unknown"
	}
}

func (r Role) Valid() bool {
	return r == RolePermissionless || r == RolePriority
}

// Source distinguishes where a batch or single was carried.
type Source uint8

const (
	SourceCalldata Source = iota
	SourceBlob
	SourceEvent
)

func (s Source) String() string {
	switch s {
	case SourceCalldata:
		return "calldata"
	case SourceBlob:
		return "blob"
	case SourceEvent:
		return "event"
	default:
		return "unknown"
	}
}

// ParsedBatch is one batch successfully scanned out of a carrier's bytes.
//
// Invariant: Signer is non-nil iff signature verification succeeded; a
// PRIORITY batch without a valid signer must be discarded before dedup
// (enforced by core/batch.Parser, never constructed any other way).
type ParsedBatch struct {
	Role         Role
	Signer       *common.Address
	L1TxIndex    uint64
	Source       Source
	ChainID      uint64
	Transactions [][]byte // raw EIP-2718 tx bytes, in batch order
	ContentHash  common.Hash
}

// FacetSingleV1 is a legacy single-transaction carrier (the pre-batch V1
// protocol). The payload is itself a typed transaction whose first byte is
// the Facet type tag.
type FacetSingleV1 struct {
	Source    Source // SourceCalldata or SourceEvent only
	L1TxIndex uint64
	L1TxHash  common.Hash
	From      common.Address // L1 sender, or log-emitter address for events
	Payload   []byte
}
