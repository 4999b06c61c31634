package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/facet-protocol/facet-node/core/builder"
)

// PriorityRegistryMode selects how the authorized priority-batch signer is
// resolved (spec §6: PRIORITY_REGISTRY_MODE).
type PriorityRegistryMode string

const (
	RegistryModeEnv        PriorityRegistryMode = "env"
	RegistryModeStatic     PriorityRegistryMode = "static"
	RegistryModeRotation   PriorityRegistryMode = "rotation"
	RegistryModeMapping    PriorityRegistryMode = "mapping"
	RegistryModeDisabled   PriorityRegistryMode = "disabled"
)

// disabledRegistry makes every priority batch ineligible; builder.Builder
// treats (common.Address{}, false) as "no authorized signer at this height".
type disabledRegistry struct{}

func (disabledRegistry) AuthorizedSigner(uint64) (common.Address, bool) { return common.Address{}, false }

// fixedRegistry returns the same signer at every block, backing both the
// "env" and "static" modes: the two differ only in where the operator is
// expected to source the address from (a deploy-time env var vs. a value
// checked into the network's configuration), not in runtime behavior.
type fixedRegistry struct {
	signer common.Address
}

func (r fixedRegistry) AuthorizedSigner(uint64) (common.Address, bool) { return r.signer, true }

// rotationEntry is one (startBlock, signer) pair; rotationRegistry resolves
// a block to the entry with the largest startBlock <= that block.
type rotationEntry struct {
	startBlock uint64
	signer     common.Address
}

type rotationRegistry struct {
	entries []rotationEntry // sorted ascending by startBlock
}

func (r rotationRegistry) AuthorizedSigner(l1BlockNumber uint64) (common.Address, bool) {
	if len(r.entries) == 0 {
		return common.Address{}, false
	}
	idx := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].startBlock > l1BlockNumber }) - 1
	if idx < 0 {
		return common.Address{}, false
	}
	return r.entries[idx].signer, true
}

// mappingRegistry is functionally identical to rotationRegistry (both
// resolve a block number to the applicable entry in a sorted list); kept as
// a distinct type because PRIORITY_REGISTRY_MODE=mapping and =rotation are
// configured from different env keys and are conceptually different
// operator intents (explicit per-range mapping vs. a recurring rotation).
type mappingRegistry struct {
	rotationRegistry
}

var _ builder.AuthorizedSignerRegistry = disabledRegistry{}
var _ builder.AuthorizedSignerRegistry = fixedRegistry{}
var _ builder.AuthorizedSignerRegistry = rotationRegistry{}
var _ builder.AuthorizedSignerRegistry = mappingRegistry{}

// buildRegistry constructs the AuthorizedSignerRegistry named by c's
// PRIORITY_REGISTRY_MODE and associated keys.
func buildRegistry(c PriorityRegistryConfig) (builder.AuthorizedSignerRegistry, error) {
	switch c.Mode {
	case RegistryModeDisabled, "":
		return disabledRegistry{}, nil

	case RegistryModeEnv, RegistryModeStatic:
		if c.SignerAddress == "" {
			return nil, fmt.Errorf("config: PRIORITY_REGISTRY_MODE=%s requires PRIORITY_SIGNER_ADDRESS", c.Mode)
		}
		if !common.IsHexAddress(c.SignerAddress) {
			return nil, fmt.Errorf("config: PRIORITY_SIGNER_ADDRESS %q is not a valid address", c.SignerAddress)
		}
		return fixedRegistry{signer: common.HexToAddress(c.SignerAddress)}, nil

	case RegistryModeRotation:
		entries, err := parseEntries(c.SignerRotation)
		if err != nil {
			return nil, fmt.Errorf("config: PRIORITY_SIGNER_ROTATION: %w", err)
		}
		return rotationRegistry{entries: entries}, nil

	case RegistryModeMapping:
		entries, err := parseEntries(c.SignerMapping)
		if err != nil {
			return nil, fmt.Errorf("config: PRIORITY_SIGNER_MAPPING: %w", err)
		}
		return mappingRegistry{rotationRegistry{entries: entries}}, nil

	default:
		return nil, fmt.Errorf("config: unrecognized PRIORITY_REGISTRY_MODE %q", c.Mode)
	}
}

// parseEntries parses a comma-separated "block:address,block:address" list
// into ascending-sorted rotation entries.
func parseEntries(raw string) ([]rotationEntry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty entry list")
	}

	var entries []rotationEntry
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed entry %q, want block:address", part)
		}
		block, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed block height in %q: %w", part, err)
		}
		addr := strings.TrimSpace(fields[1])
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("malformed address in %q", part)
		}
		entries = append(entries, rotationEntry{startBlock: block, signer: common.HexToAddress(addr)})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].startBlock < entries[j].startBlock })
	return entries, nil
}
