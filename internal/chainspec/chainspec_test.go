package chainspec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facet-protocol/facet-node/params"
)

func TestLoadMatchesHardcodedFallback(t *testing.T) {
	for _, network := range []params.Network{params.NetworkMainnet, params.NetworkSepolia, params.NetworkHoodi} {
		fallback, err := params.Resolve(network)
		require.NoError(t, err)

		spec, err := Load(network)
		require.NoError(t, err)

		require.Equal(t, fallback.ChainID, spec.ChainID)
		require.Equal(t, fallback.V1ToV2MigrationBlock, spec.V1ToV2MigrationBlock)
		require.Equal(t, fallback.BluebirdForkBlock, spec.BluebirdForkBlock)
		require.Equal(t, fallback.MintForkBlock, spec.MintForkBlock)
	}
}

func TestLoadUnknownNetworkErrors(t *testing.T) {
	_, err := Load(params.Network("unknown"))
	require.Error(t, err)
}
