package pipeline

import (
	"context"
	"errors"
	"fmt"

	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/prefetch"
	"github.com/facet-protocol/facet-node/storage"
)

// detectReorg compares l1Block's declared parent against the persisted
// L1Block for l1Block.Number-1 (spec §3: "parent_hash of block N equals
// hash of block N-1 on the canonical chain; violation triggers a re-fetch
// at the divergence point"). No prior stored block (genesis boundary, or
// first block the pipeline has ever seen) is not a reorg.
func (p *Pipeline) detectReorg(ctx context.Context, l1Block *facettypes.L1Block) (reorged bool, divergence uint64, err error) {
	if l1Block.Number == 0 {
		return false, 0, nil
	}

	prevStored, err := p.store.GetL1Block(l1Block.Number - 1)
	if errors.Is(err, storage.ErrNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}

	if prevStored.Hash == l1Block.ParentHash {
		return false, 0, nil
	}

	divergence, err = p.findDivergence(ctx, l1Block.Number-1)
	if err != nil {
		return false, 0, err
	}
	return true, divergence, nil
}

// findDivergence walks backward from (and including) from, comparing the
// persisted L1Block at each height against a fresh fetch, until the two
// agree. It returns the first height at which they disagreed.
func (p *Pipeline) findDivergence(ctx context.Context, from uint64) (uint64, error) {
	n := from
	for depth := 0; depth < maxReorgDepth; depth++ {
		stored, err := p.store.GetL1Block(n)
		if errors.Is(err, storage.ErrNotFound) {
			return n, nil
		}
		if err != nil {
			return 0, err
		}

		fresh, outcome, err := p.fetcher.Fetch(ctx, n)
		if err != nil {
			return 0, fmt.Errorf("pipeline: re-fetching l1 block %d while resolving reorg: %w", n, err)
		}
		if outcome != prefetch.Ready {
			return 0, fmt.Errorf("pipeline: l1 block %d not available while resolving reorg", n)
		}

		if fresh.Hash == stored.Hash {
			return n + 1, nil
		}
		if n == 0 {
			return 0, nil
		}
		n--
	}
	return 0, fmt.Errorf("%w: searched back to block %d from %d", ErrReorgTooDeep, n, from)
}
