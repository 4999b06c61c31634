package types

import "math/big"

// MintPeriodState is the fee-issuance controller's state, carried block to
// block embedded in the L1-attributes system transaction and read back on
// the next block (spec §3, §4.6).
//
// Invariants:
//   - 0 <= TotalMinted <= MAX_SUPPLY
//   - MinMintRate <= MintRate <= MaxMintRate
//   - PeriodMinted <= CurrentTarget, except momentarily while a quota is
//     closing mid-transaction (core/mint.Controller.ProcessBlock).
type MintPeriodState struct {
	TotalMinted    *big.Int
	PeriodStartBlock uint64
	PeriodMinted   *big.Int
	MintRate       *big.Int

	// InitialTargetPerPeriod is the per-period quota before any halving is
	// applied; CurrentTarget is derived from it via HalvingLevel.
	InitialTargetPerPeriod *big.Int

	HalvingLevel uint64
}

// Copy returns a deep copy so callers can mutate the result without
// aliasing the state stored on a block.
func (m MintPeriodState) Copy() MintPeriodState {
	return MintPeriodState{
		TotalMinted:            new(big.Int).Set(m.TotalMinted),
		PeriodStartBlock:       m.PeriodStartBlock,
		PeriodMinted:           new(big.Int).Set(m.PeriodMinted),
		MintRate:               new(big.Int).Set(m.MintRate),
		InitialTargetPerPeriod: new(big.Int).Set(m.InitialTargetPerPeriod),
		HalvingLevel:           m.HalvingLevel,
	}
}
