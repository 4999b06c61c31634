// Package params holds the network-specific and protocol-wide constants the
// derivation pipeline is parameterized by: chain ids, fork blocks, the batch
// wire-format magic prefix, mint-controller constants and well-known
// addresses. Mirrors the role of go-ethereum's own params package, one step
// removed: where geth's params.ChainConfig describes consensus upgrades,
// ChainSpec here describes derivation-pipeline upgrades.
package params

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Network selects which L1 network this pipeline derives against. It governs
// chain id, fork-block heights and the authorized-signer registry mode.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkSepolia Network = "sepolia"
	NetworkHoodi   Network = "hoodi"
)

// BatchMagicSize is the length, in bytes, of the fixed magic prefix that
// marks the start of a batch in calldata or decoded blob bytes.
const BatchMagicSize = 8

// BatchHeaderSize is the number of bytes in the header that immediately
// follows the magic prefix: CHAIN_ID(8) + VERSION(1) + ROLE(1) + LENGTH(4).
const BatchHeaderSize = 8 + 1 + 1 + 4

// BatchSignatureSize is the length of the 65-byte r||s||v signature that
// trails a PRIORITY batch's RLP transaction list.
const BatchSignatureSize = 65

// BatchVersion is the only wire-format version this pipeline accepts.
const BatchVersion = uint8(1)

const (
	MaxBatchBytes        = 131072
	MaxTxsPerBatch        = 1000
	MaxBatchesPerPayload  = 10
)

// BlockInterval is the fixed L2 block spacing in seconds (spec §3).
const BlockInterval = uint64(12)

// MaxFillerBlocks bounds how many empty blocks the proposer synthesizes to
// close an L1 timestamp gap, guarding against a pathological L1 stall.
const MaxFillerBlocks = 100

// PriorityShareBPS is the maximum share, in basis points, of the L2 block gas
// limit a priority batch's declared gas may consume.
const PriorityShareBPS = uint64(5000)

// SystemAddress is the fixed sender of every SystemTransaction.
var SystemAddress = common.HexToAddress("0xdeaddeaddeaddeaddeaddeaddeaddeaddead0001")

// L1AttributesPredeployAddress receives the L1-attributes system call.
var L1AttributesPredeployAddress = common.HexToAddress("0x4200000000000000000000000000000000000015")

// MigrationManagerAddress is queried for transactionsRequired() at the
// V1->V2 migration block and is the target of the resulting system calls.
var MigrationManagerAddress = common.HexToAddress("0x420000000000000000000000000000000000F0")

// L1BlockPredeployAddress is redeployed immediately before the bluebird fork.
var L1BlockPredeployAddress = common.HexToAddress("0x4200000000000000000000000000000000000F")

// BatchMagic is the fixed byte string recognized at any offset in carrier
// bytes as the start of a batch. Compiled into both this reader and the
// separate sequencer/writer component.
var BatchMagic = [BatchMagicSize]byte{0x46, 0x41, 0x43, 0x45, 0x54, 0x42, 0x41, 0x54} // "FACETBAT"

// FacetInboxAddress is the legacy single-transaction carrier address (V1).
var FacetInboxAddress = common.HexToAddress("0x00000000000000000000000000000000FacE7b")

// FacetLogTopic identifies a Facet-carrying event log in V1 single mode.
var FacetLogTopic = common.HexToHash("0xfacef00dfacef00dfacef00dfacef00dfacef00dfacef00dfacef00dfacef0")

// MintConstants holds the fee-issuance controller's protocol constants.
type MintConstants struct {
	AdjustmentPeriodTargetLength uint64   // blocks per adjustment period (ideal case)
	TargetNumBlocksInHalving     uint64   // blocks per halving epoch at the idealized rate
	MaxRateAdjustmentUpFactor    *big.Int // numerator, denominator 1
	MaxRateAdjustmentDownFactor  *big.Rat // e.g. 1/4
	MinMintRate                  *big.Int
	MaxMintRate                  *big.Int
	MaxSupply                    *big.Int // 1.5e9 * 1e18
}

// DefaultMintConstants returns the protocol-wide mint constants. These do not
// vary by network: only fork-block heights and chain id do.
func DefaultMintConstants() MintConstants {
	maxSupply := new(big.Int).Mul(big.NewInt(1_500_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	maxRate := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	return MintConstants{
		AdjustmentPeriodTargetLength: 500,
		TargetNumBlocksInHalving:     2_630_000, // ~1 year at 12s blocks, same order as Bitcoin's halving cadence
		MaxRateAdjustmentUpFactor:    big.NewInt(4),
		MaxRateAdjustmentDownFactor:  big.NewRat(1, 4),
		MinMintRate:                  big.NewInt(1),
		MaxMintRate:                  maxRate,
		MaxSupply:                    maxSupply,
	}
}

// ChainSpec is the fully resolved, network-specific configuration consumed
// by every derivation component. It is passed explicitly through call sites
// rather than held in a process-wide singleton (see DESIGN.md, Open
// Questions / global-state note).
type ChainSpec struct {
	Network Network
	ChainID uint64

	// V1ToV2MigrationBlock is the first L2 block at which migration system
	// transactions are injected.
	V1ToV2MigrationBlock uint64

	// BluebirdForkBlock is the L2 block immediately before which the
	// L1-block predeploy is redeployed and upgraded.
	BluebirdForkBlock uint64

	// MintForkBlock is the L2 block at which the MintController bootstraps
	// from the historical pre-fork issuance ledger.
	MintForkBlock uint64

	Mint MintConstants
}

// Resolve returns the ChainSpec for a named network.
func Resolve(network Network) (ChainSpec, error) {
	switch network {
	case NetworkMainnet:
		return ChainSpec{
			Network:              NetworkMainnet,
			ChainID:              0xface7b,
			V1ToV2MigrationBlock: 9_900_000,
			BluebirdForkBlock:    10_200_000,
			MintForkBlock:        8_100_000,
			Mint:                 DefaultMintConstants(),
		}, nil
	case NetworkSepolia:
		return ChainSpec{
			Network:              NetworkSepolia,
			ChainID:              0xface7bb,
			V1ToV2MigrationBlock: 4_200_000,
			BluebirdForkBlock:    4_500_000,
			MintForkBlock:        3_000_000,
			Mint:                 DefaultMintConstants(),
		}, nil
	case NetworkHoodi:
		return ChainSpec{
			Network:              NetworkHoodi,
			ChainID:              0xface7bc,
			V1ToV2MigrationBlock: 100_000,
			BluebirdForkBlock:    150_000,
			MintForkBlock:        1,
			Mint:                 DefaultMintConstants(),
		}, nil
	default:
		return ChainSpec{}, fmt.Errorf("unknown L1 network %q", network)
	}
}

// ChainIDBytes returns the big-endian 8-byte encoding of the chain id, as
// used in the batch header and in content-hash/signed-data preimages.
func (c ChainSpec) ChainIDBytes() [8]byte {
	var out [8]byte
	id := c.ChainID
	for i := 7; i >= 0; i-- {
		out[i] = byte(id)
		id >>= 8
	}
	return out
}
