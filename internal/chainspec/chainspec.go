// Package chainspec loads the per-network fork-block and chain-id table
// embedded at build time, the same role naoina/toml plays for geth's own
// node/eth config defaults. params.Resolve carries the hardcoded
// fallback; Load is what internal/config actually calls, so a network's
// fork schedule can be amended by editing networks.toml rather than
// recompiling a Go switch statement.
package chainspec

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/facet-protocol/facet-node/params"
)

//go:embed networks.toml
var networksTOML []byte

type networkEntry struct {
	ChainID               uint64 `toml:"chain_id"`
	V1ToV2MigrationBlock  uint64 `toml:"v1_to_v2_migration_block"`
	BluebirdForkBlock     uint64 `toml:"bluebird_fork_block"`
	MintForkBlock         uint64 `toml:"mint_fork_block"`
}

type networkTable map[string]networkEntry

// Load decodes the embedded network table and returns the resolved
// ChainSpec for network, falling back to params.Resolve if the embedded
// table is somehow missing an entry (it never should be, for the three
// networks this repo ships).
func Load(network params.Network) (params.ChainSpec, error) {
	var table networkTable
	if _, err := toml.Decode(string(networksTOML), &table); err != nil {
		return params.ChainSpec{}, fmt.Errorf("chainspec: decoding embedded networks.toml: %w", err)
	}

	entry, ok := table[string(network)]
	if !ok {
		return params.Resolve(network)
	}

	return params.ChainSpec{
		Network:              network,
		ChainID:              entry.ChainID,
		V1ToV2MigrationBlock: entry.V1ToV2MigrationBlock,
		BluebirdForkBlock:    entry.BluebirdForkBlock,
		MintForkBlock:        entry.MintForkBlock,
		Mint:                 params.DefaultMintConstants(),
	}, nil
}
