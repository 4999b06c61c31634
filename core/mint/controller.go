// Package mint implements the MintController described in spec §4.6: a
// period-based, halving-adjusted issuance schedule driven entirely by
// exact integer and rational arithmetic (spec §9, "Arithmetic" — no
// floating point, division floors).
package mint

import (
	"errors"
	"math/big"

	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/params"
)

// MintPeriodState is re-exported for callers that only import core/mint.
type MintPeriodState = facettypes.MintPeriodState

var (
	ErrZeroBaseFee          = errors.New("mint: previous base fee is zero")
	ErrZeroRemainingPeriods = errors.New("mint: zero remaining pre-fork periods")
)

// Controller applies the period/halving/rate-adjustment state machine
// block-by-block. It holds no mutable state itself; every call takes the
// previous MintPeriodState and returns the next one, so the derivation
// loop's single-threaded, atomic-per-block model (spec §5) applies
// unchanged.
type Controller struct {
	constants params.MintConstants
}

func New(constants params.MintConstants) *Controller {
	return &Controller{constants: constants}
}

// Bootstrap computes the fork-block initial MintPeriodState from the
// historical pre-fork issuance ledger (spec §4.6, "Fork-block bootstrap").
// preForkRatePerGas is the stored pre-fork rate in FCT per L1 gas unit;
// previousBaseFee converts it to the post-fork rate in FCT per wei burned.
func (c *Controller) Bootstrap(historicalTotalMinted, preForkRatePerGas, previousBaseFee *big.Int, forkBlock uint64, remainingPreForkPeriods uint64) (MintPeriodState, error) {
	if previousBaseFee == nil || previousBaseFee.Sign() == 0 {
		return MintPeriodState{}, ErrZeroBaseFee
	}
	if remainingPreForkPeriods == 0 {
		return MintPeriodState{}, ErrZeroRemainingPeriods
	}

	halvingEpochs := c.constants.TargetNumBlocksInHalving / c.constants.AdjustmentPeriodTargetLength
	idealizedInitialTarget := new(big.Int).Div(
		new(big.Int).Div(c.constants.MaxSupply, big.NewInt(2)),
		new(big.Int).SetUint64(halvingEpochs),
	)

	remainingSupply := new(big.Int).Sub(c.constants.MaxSupply, historicalTotalMinted)
	perPeriodShare := new(big.Int).Div(remainingSupply, new(big.Int).SetUint64(remainingPreForkPeriods))

	initialTarget := idealizedInitialTarget
	if perPeriodShare.Cmp(initialTarget) > 0 {
		initialTarget = perPeriodShare
	}

	rate := clampInt(new(big.Int).Div(preForkRatePerGas, previousBaseFee), c.constants.MinMintRate, c.constants.MaxMintRate)

	state := MintPeriodState{
		TotalMinted:            new(big.Int).Set(historicalTotalMinted),
		PeriodStartBlock:       forkBlock,
		PeriodMinted:           big.NewInt(0),
		MintRate:               rate,
		InitialTargetPerPeriod: initialTarget,
	}
	state.HalvingLevel = halvingLevel(state.TotalMinted, c.constants.MaxSupply)

	return state, nil
}

// ProcessBlock applies spec §4.6's per-transaction burn loop followed by
// the end-of-block time-based rate check, for one L2 block built on top of
// state at currentBlock. burns holds l1_data_gas_used ×
// current_l1_base_fee already computed per transaction, in transaction
// order; the returned slice holds the FCT minted against each, same order.
func (c *Controller) ProcessBlock(state MintPeriodState, currentBlock uint64, burns []*big.Int) (MintPeriodState, []*big.Int) {
	next := state.Copy()
	next.HalvingLevel = halvingLevel(next.TotalMinted, c.constants.MaxSupply)
	currentTarget := periodTarget(next)

	minted := make([]*big.Int, len(burns))

	for i, burnAmt := range burns {
		burn := new(big.Int).Set(burnAmt)
		mintedForTx := big.NewInt(0)

		for burn.Sign() > 0 && next.TotalMinted.Cmp(c.constants.MaxSupply) < 0 {
			quota := new(big.Int).Sub(currentTarget, next.PeriodMinted)
			supplyRemaining := new(big.Int).Sub(c.constants.MaxSupply, next.TotalMinted)
			mintPossible := new(big.Int).Mul(burn, next.MintRate)

			mint := minInt(mintPossible, quota, supplyRemaining)
			if mint.Sign() <= 0 {
				break
			}

			mintedForTx.Add(mintedForTx, mint)
			next.PeriodMinted.Add(next.PeriodMinted, mint)
			next.TotalMinted.Add(next.TotalMinted, mint)

			consumed := new(big.Int).Div(mint, next.MintRate)
			burn.Sub(burn, consumed)
			if consumed.Sign() == 0 {
				// mint_rate exceeds mint, so no burn is ever consumed again.
				break
			}

			if next.PeriodMinted.Cmp(currentTarget) == 0 {
				elapsed := currentBlock - next.PeriodStartBlock
				factor := clampRat(
					big.NewRat(int64(elapsed), int64(c.constants.AdjustmentPeriodTargetLength)),
					c.constants.MaxRateAdjustmentDownFactor,
					big.NewRat(1, 1),
				)
				next.MintRate = clampInt(applyRateFactor(next.MintRate, factor), c.constants.MinMintRate, c.constants.MaxMintRate)
				startNewPeriod(&next, currentBlock)
				next.HalvingLevel = halvingLevel(next.TotalMinted, c.constants.MaxSupply)
				currentTarget = periodTarget(next)
			}
		}

		minted[i] = mintedForTx
	}

	if currentBlock-next.PeriodStartBlock >= c.constants.AdjustmentPeriodTargetLength {
		var factor *big.Rat
		if next.PeriodMinted.Sign() > 0 {
			factor = clampRat(new(big.Rat).SetFrac(currentTarget, next.PeriodMinted), big.NewRat(1, 1), new(big.Rat).SetFrac(c.constants.MaxRateAdjustmentUpFactor, big.NewInt(1)))
		} else {
			factor = new(big.Rat).SetFrac(c.constants.MaxRateAdjustmentUpFactor, big.NewInt(1))
		}
		next.MintRate = clampInt(applyRateFactor(next.MintRate, factor), c.constants.MinMintRate, c.constants.MaxMintRate)
		startNewPeriod(&next, currentBlock)
		next.HalvingLevel = halvingLevel(next.TotalMinted, c.constants.MaxSupply)
	}

	return next, minted
}

// startNewPeriod resets the quota window to begin at block (spec §4.6).
func startNewPeriod(state *MintPeriodState, block uint64) {
	state.PeriodStartBlock = block
	state.PeriodMinted = big.NewInt(0)
}

// halvingLevel returns ⌊log₂(maxSupply / (maxSupply - totalMinted))⌋,
// saturating to 0 when totalMinted has not yet made any progress toward
// maxSupply (spec §4.6, "Halving").
func halvingLevel(totalMinted, maxSupply *big.Int) uint64 {
	if totalMinted.Sign() <= 0 {
		return 0
	}
	remaining := new(big.Int).Sub(maxSupply, totalMinted)
	if remaining.Sign() <= 0 {
		// Fully minted: halving level is irrelevant once MAX_SUPPLY is hit,
		// since the burn loop above never mints again.
		return 0
	}

	var level uint64
	doubled := new(big.Int).Set(remaining)
	for {
		doubled.Lsh(doubled, 1)
		if doubled.Cmp(maxSupply) > 0 {
			break
		}
		level++
	}
	return level
}

// periodTarget is current_target = initial_target_per_period / 2^halving_level.
func periodTarget(state MintPeriodState) *big.Int {
	return new(big.Int).Rsh(state.InitialTargetPerPeriod, uint(state.HalvingLevel))
}

func applyRateFactor(rate *big.Int, factor *big.Rat) *big.Int {
	num := new(big.Int).Mul(rate, factor.Num())
	return new(big.Int).Div(num, factor.Denom())
}

func clampInt(v, lo, hi *big.Int) *big.Int {
	if v.Cmp(lo) < 0 {
		return new(big.Int).Set(lo)
	}
	if v.Cmp(hi) > 0 {
		return new(big.Int).Set(hi)
	}
	return v
}

func clampRat(v, lo, hi *big.Rat) *big.Rat {
	if v.Cmp(lo) < 0 {
		return new(big.Rat).Set(lo)
	}
	if v.Cmp(hi) > 0 {
		return new(big.Rat).Set(hi)
	}
	return v
}

func minInt(vals ...*big.Int) *big.Int {
	min := vals[0]
	for _, v := range vals[1:] {
		if v.Cmp(min) < 0 {
			min = v
		}
	}
	return new(big.Int).Set(min)
}
