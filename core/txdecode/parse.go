// Package txdecode is the shared EIP-2718 transaction parsing helper
// described in spec §4.9: given raw transaction bytes, extract the
// transaction hash, gas limit, sender and nonce needed by core/builder and
// core/mint. Built directly on github.com/ethereum/go-ethereum/core/types,
// which already implements the exact per-type signing-preimage and
// EIP-155 reconstruction rules spec §4.9 describes — hand-rolling RLP
// field layout here would just reproduce that package less reliably.
package txdecode

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// SafeDefaultGasLimit is substituted when a transaction fails to parse.
// core/builder's filterZeroGas (spec §4.5 step 4) drops any transaction whose
// gas limit is zero, so a parse failure is filtered out the same way a
// declared-zero gas limit is.
const SafeDefaultGasLimit = 0

// Parsed holds the fields the derivation pipeline needs out of an L2
// transaction payload.
type Parsed struct {
	GasLimit uint64
	From     common.Address
	Nonce    uint64
	Hash     common.Hash
}

// Parse decodes raw EIP-2718 transaction bytes and recovers its sender
// against chainID. On any failure it returns a Parsed with GasLimit ==
// SafeDefaultGasLimit and a non-nil error; callers filter on gas limit
// alone (per spec §4.9, a parse failure simply downgrades gas_limit so the
// transaction is dropped later, it never aborts derivation).
func Parse(raw []byte, chainID uint64) (Parsed, error) {
	var tx gethtypes.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return Parsed{GasLimit: SafeDefaultGasLimit}, err
	}

	signer := gethtypes.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	from, err := gethtypes.Sender(signer, &tx)
	if err != nil {
		return Parsed{GasLimit: SafeDefaultGasLimit}, err
	}

	return Parsed{
		GasLimit: tx.Gas(),
		From:     from,
		Nonce:    tx.Nonce(),
		Hash:     tx.Hash(),
	}, nil
}
