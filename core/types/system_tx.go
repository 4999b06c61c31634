package types

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// FacetTxType is the EIP-2718 type byte shared by every Facet-produced
// transaction: user transactions synthesized from singles/batches (spec
// §4.5 step 3, scenario S1's "input = 0x7E ∥ rlp(...)") and the
// derivation-produced system transactions below.
const FacetTxType = byte(0x7E)

var ErrNotDepositTx = errors.New("types: not a deposit-style system transaction")

// DepositTxData is the RLP body of an unsigned, deposit-style system
// transaction (spec glossary: "System transaction"). SourceHash ties the
// transaction back to the L1 event or derivation step that produced it, so
// replaying derivation reproduces an identical hash.
type DepositTxData struct {
	SourceHash common.Hash
	From       common.Address
	To         *common.Address
	Nonce      uint64
	Mint       *big.Int
	Value      *big.Int
	GasLimit   uint64
	IsSystemTx bool
	Data       []byte
}

// MarshalBinary encodes the transaction as FacetTxType || rlp(DepositTxData),
// the same type-byte-then-RLP-body shape every Facet transaction uses.
func (d *DepositTxData) MarshalBinary() ([]byte, error) {
	body, err := rlp.EncodeToBytes(d)
	if err != nil {
		return nil, err
	}
	return append([]byte{FacetTxType}, body...), nil
}

// UnmarshalDepositTx decodes a FacetTxType-prefixed deposit transaction.
func UnmarshalDepositTx(raw []byte) (*DepositTxData, error) {
	if len(raw) == 0 || raw[0] != FacetTxType {
		return nil, ErrNotDepositTx
	}
	var d DepositTxData
	if err := rlp.DecodeBytes(raw[1:], &d); err != nil {
		return nil, err
	}
	return &d, nil
}
