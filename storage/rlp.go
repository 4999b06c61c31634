package storage

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	facettypes "github.com/facet-protocol/facet-node/core/types"
)

// l1BlockRLP is the RLP-encodable projection of facettypes.L1Block stored
// on disk. The domain type carries a *common.Hash for an optional field,
// which rlp cannot encode directly; HasBeaconRoot disambiguates a present
// zero hash from an absent one.
type l1BlockRLP struct {
	Number                uint64
	Hash                  common.Hash
	ParentHash            common.Hash
	Timestamp             uint64
	BaseFeePerGas         *big.Int
	MixHash               common.Hash
	ParentBeaconBlockRoot common.Hash
	HasBeaconRoot         bool
}

type l2BlockRLP struct {
	Number         uint64
	Hash           common.Hash
	ParentHash     common.Hash
	Timestamp      uint64
	BaseFeePerGas  uint64
	PrevRandao     common.Hash
	ExtraData      []byte
	GasLimit       uint64
	GasUsed        uint64
	Transactions   [][]byte
	Mint           mintRLP
	SourceL1Number uint64
}

// mintRLP is the RLP-encodable projection of facettypes.MintPeriodState.
type mintRLP struct {
	TotalMinted            *big.Int
	PeriodStartBlock       uint64
	PeriodMinted           *big.Int
	MintRate               *big.Int
	InitialTargetPerPeriod *big.Int
	HalvingLevel           uint64
}

func newMintRLP(m facettypes.MintPeriodState) mintRLP {
	return mintRLP{
		TotalMinted:            m.TotalMinted,
		PeriodStartBlock:       m.PeriodStartBlock,
		PeriodMinted:           m.PeriodMinted,
		MintRate:               m.MintRate,
		InitialTargetPerPeriod: m.InitialTargetPerPeriod,
		HalvingLevel:           m.HalvingLevel,
	}
}

func (m mintRLP) toDomain() facettypes.MintPeriodState {
	return facettypes.MintPeriodState{
		TotalMinted:            m.TotalMinted,
		PeriodStartBlock:       m.PeriodStartBlock,
		PeriodMinted:           m.PeriodMinted,
		MintRate:               m.MintRate,
		InitialTargetPerPeriod: m.InitialTargetPerPeriod,
		HalvingLevel:           m.HalvingLevel,
	}
}
