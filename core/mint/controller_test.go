package mint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facet-protocol/facet-node/params"
)

func smallConstants() params.MintConstants {
	return params.MintConstants{
		AdjustmentPeriodTargetLength: 10,
		TargetNumBlocksInHalving:     100,
		MaxRateAdjustmentUpFactor:    big.NewInt(4),
		MaxRateAdjustmentDownFactor:  big.NewRat(1, 4),
		MinMintRate:                  big.NewInt(1),
		MaxMintRate:                  new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)),
		MaxSupply:                    big.NewInt(1_000_000),
	}
}

func freshState() MintPeriodState {
	return MintPeriodState{
		TotalMinted:            big.NewInt(0),
		PeriodStartBlock:       0,
		PeriodMinted:           big.NewInt(0),
		MintRate:               big.NewInt(2),
		InitialTargetPerPeriod: big.NewInt(1000),
		HalvingLevel:           0,
	}
}

func TestProcessBlockMintsProportionalToBurn(t *testing.T) {
	c := New(smallConstants())
	state := freshState()

	next, minted := c.ProcessBlock(state, 1, []*big.Int{big.NewInt(10)})

	require.Len(t, minted, 1)
	require.Equal(t, big.NewInt(20), minted[0]) // burn(10) * rate(2), under quota and supply
	require.Equal(t, big.NewInt(20), next.TotalMinted)
	require.Equal(t, big.NewInt(20), next.PeriodMinted)
}

func TestProcessBlockNeverExceedsMaxSupply(t *testing.T) {
	c := New(smallConstants())
	state := freshState()
	state.MintRate = big.NewInt(1)
	state.InitialTargetPerPeriod = big.NewInt(1_000_000) // == MaxSupply, so only supply binds

	next, minted := c.ProcessBlock(state, 1, []*big.Int{big.NewInt(2_000_000)})

	require.Equal(t, 0, next.TotalMinted.Cmp(c.constants.MaxSupply))
	require.Equal(t, big.NewInt(1_000_000), minted[0])
}

func TestProcessBlockQuotaClosesExactlyAtTarget(t *testing.T) {
	c := New(smallConstants())
	state := freshState()
	state.InitialTargetPerPeriod = big.NewInt(20) // quota == burn*rate exactly

	next, minted := c.ProcessBlock(state, 1, []*big.Int{big.NewInt(10)})

	require.Equal(t, big.NewInt(20), minted[0])
	// Quota closed exactly: new period starts at the current block.
	require.Equal(t, uint64(1), next.PeriodStartBlock)
	require.Equal(t, big.NewInt(0), next.PeriodMinted)
}

func TestProcessBlockEndOfBlockRateCheckRaisesRateWhenUnderTarget(t *testing.T) {
	c := New(smallConstants())
	state := freshState()
	state.PeriodStartBlock = 0

	// No burns at all; advance past the period length so the end-of-block
	// check fires with period_minted == 0, applying MAX_RATE_ADJUSTMENT_UP_FACTOR.
	next, _ := c.ProcessBlock(state, 10, nil)

	require.Equal(t, big.NewInt(8), next.MintRate) // 2 * 4
	require.Equal(t, uint64(10), next.PeriodStartBlock)
}

func TestHalvingLevelSaturatesAtZero(t *testing.T) {
	require.Equal(t, uint64(0), halvingLevel(big.NewInt(0), big.NewInt(1_000_000)))
}

func TestHalvingLevelIncreasesAsSupplyFills(t *testing.T) {
	maxSupply := big.NewInt(1_000_000)
	require.Equal(t, uint64(1), halvingLevel(big.NewInt(500_001), maxSupply))
	require.Equal(t, uint64(2), halvingLevel(big.NewInt(750_001), maxSupply))
}

func TestBootstrapRejectsZeroBaseFee(t *testing.T) {
	c := New(smallConstants())
	_, err := c.Bootstrap(big.NewInt(0), big.NewInt(1), big.NewInt(0), 1, 10)
	require.ErrorIs(t, err, ErrZeroBaseFee)
}

func TestBootstrapComputesFloorDivisionRate(t *testing.T) {
	c := New(smallConstants())
	state, err := c.Bootstrap(big.NewInt(0), big.NewInt(100), big.NewInt(7), 1, 5)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(14), state.MintRate) // floor(100/7) = 14
}
