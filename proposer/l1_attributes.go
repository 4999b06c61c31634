package proposer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	facettypes "github.com/facet-protocol/facet-node/core/types"
)

// l1AttributesSignature is the system contract method invoked by the
// L1-attributes transaction. Six fixed uint256 parameters carry every mint
// controller state field except HalvingLevel, plus the one piece of L1
// context it depends on, the base fee.
const l1AttributesSignature = "setL1BlockValues(uint256,uint256,uint256,uint256,uint256,uint256)"

// l1AttributesCallData builds the calldata for the L1-attributes system
// transaction: a 4-byte method selector followed by six 32-byte-padded
// parameters at fixed offsets, the same method-id-plus-padded-parameters
// shape core/state_processor_rollup.go's L1OriginSource.
// UpdateL1OriginSourceCallData uses for RIP-7859's block-info system call.
func l1AttributesCallData(mint facettypes.MintPeriodState, baseFee *big.Int) []byte {
	methodID := crypto.Keccak256([]byte(l1AttributesSignature))[0:4]

	data := make([]byte, 4+32*6)
	copy(data[0:4], methodID)
	putUint256(data[4:36], mint.MintRate)
	putUint256(data[36:68], mint.TotalMinted)
	putUint256(data[68:100], new(big.Int).SetUint64(mint.PeriodStartBlock))
	putUint256(data[100:132], mint.PeriodMinted)
	putUint256(data[132:164], mint.InitialTargetPerPeriod)
	putUint256(data[164:196], baseFee)
	return data
}

// putUint256 encodes v as a 32-byte big-endian word, the ABI encoding of a
// uint256 parameter. Converts through holiman/uint256, as
// core/state_transition_rollup.go does for every big.Int headed into a
// fixed-width slot, rather than hand-rolling the left-pad.
func putUint256(slot []byte, v *big.Int) {
	if v == nil {
		return
	}
	word := uint256.MustFromBig(v).Bytes32()
	copy(slot, word[:])
}
