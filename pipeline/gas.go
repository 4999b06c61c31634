package pipeline

import (
	"math/big"

	"github.com/facet-protocol/facet-node/params"
)

// l1DataGas returns the calldata gas charge EIP-2028 assigns to raw, the
// classic per-byte zero/nonzero formula also used to price an L1
// transaction's calldata. The mint controller's burn input is this value
// times the L1 block's base fee (spec §4.6: "proportion to L1 data gas
// burned"), not the EIP-7706 token-based calldata pricing introduced
// alongside blob-carrying transactions, since every single and batch this
// pipeline reads arrived as plain calldata or already-decoded blob bytes.
func l1DataGas(raw []byte) uint64 {
	var gas uint64
	for _, b := range raw {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}

// computeBurns returns, for each user transaction in order, l1_data_gas_used
// * l1BaseFee — the per-transaction burn core/mint.Controller.ProcessBlock
// consumes.
func computeBurns(userTxs [][]byte, l1BaseFee *big.Int) []*big.Int {
	burns := make([]*big.Int, len(userTxs))
	for i, raw := range userTxs {
		gas := new(big.Int).SetUint64(l1DataGas(raw))
		burns[i] = new(big.Int).Mul(gas, l1BaseFee)
	}
	return burns
}
