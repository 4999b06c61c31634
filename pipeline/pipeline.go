// Package pipeline implements the top-level derivation loop described in
// spec §2 ("Pipeline"): tip discovery, per-L1-block derivation,
// persistence, advance. It wires core/collector, core/builder, core/mint
// and the proposer package together the way eth/backend_rollup.go wires
// the teacher's own mining loop to its block-building collaborators, but
// single-threaded and cooperative (spec §5: "the derivation loop is the
// sole consumer" of the prefetcher's futures).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/facet-protocol/facet-node/core/builder"
	"github.com/facet-protocol/facet-node/core/collector"
	"github.com/facet-protocol/facet-node/core/mint"
	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/internal/exitcode"
	"github.com/facet-protocol/facet-node/internal/metrics"
	"github.com/facet-protocol/facet-node/params"
	"github.com/facet-protocol/facet-node/prefetch"
	"github.com/facet-protocol/facet-node/proposer"
	"github.com/facet-protocol/facet-node/storage"
)

// maxBlockRetries bounds how many times the pipeline retries deriving the
// same L1 block after a non-fatal proposer error before giving up and
// returning that error wrapped as fatal. Errors the proposer already marks
// fatal, an engine INVALID payload status among them, are returned on the
// first attempt without any retry.
const maxBlockRetries = 5

const blockRetryBackoff = 2 * time.Second

const defaultPollInterval = 2 * time.Second

// maxReorgDepth bounds how far back the pipeline walks looking for a
// reorg's divergence point before giving up and returning ErrReorgTooDeep
// from Run; a deeper reorg than this needs operator intervention, not an
// automatic re-derive.
const maxReorgDepth = 256

// ErrReorgTooDeep is wrapped into the error Run returns when a detected
// reorg's divergence point lies more than maxReorgDepth blocks back.
var ErrReorgTooDeep = errors.New("pipeline: reorg divergence point exceeds max search depth")

// Fetcher supplies one L1 block at a time, reporting NotReady instead of
// blocking when the block hasn't been produced or prefetched yet.
// Satisfied by *prefetch.Prefetcher.
type Fetcher interface {
	Fetch(ctx context.Context, number uint64) (*facettypes.L1Block, prefetch.Outcome, error)
	Evict(lowWatermark uint64)
}

// Proposer is the subset of *proposer.Proposer the pipeline drives.
type Proposer interface {
	Propose(ctx context.Context, req proposer.BlockRequest) ([]*facettypes.L2Block, error)
}

// BlobTimestampSetter lets the pipeline tell a rolling blob provider (e.g.
// *beacon.RollingProvider) which L1 block's slot to resolve blobs against
// before each Collect call. Optional: a collector backed by a provider that
// needs no such cue (tests, a provider with no blob source at all) leaves
// this nil.
type BlobTimestampSetter interface {
	SetL1Block(ctx context.Context, timestamp uint64) error
}

// Genesis supplies the L2 parent fields the pipeline derives its first
// block on top of, consulted only when the store holds no prior L2 block.
// Every later run resumes from storage.Store.HeadL2Block instead.
type Genesis struct {
	ParentHash      common.Hash
	ParentNumber    uint64
	ParentTimestamp uint64
	ParentL1Number  uint64
	PrevRandao      common.Hash
	GasLimit        uint64
	Mint            facettypes.MintPeriodState
}

// Pipeline is the top-level derivation loop.
type Pipeline struct {
	spec      params.ChainSpec
	fetcher   Fetcher
	collector *collector.Collector
	builder   *builder.Builder
	mint      *mint.Controller
	proposer   Proposer
	store      *storage.Store
	blobSetter BlobTimestampSetter

	pollInterval time.Duration
}

func New(spec params.ChainSpec, fetcher Fetcher, col *collector.Collector, bld *builder.Builder, mintCtl *mint.Controller, prop Proposer, store *storage.Store, blobSetter BlobTimestampSetter) *Pipeline {
	return &Pipeline{
		spec:         spec,
		fetcher:      fetcher,
		collector:    col,
		builder:      bld,
		mint:         mintCtl,
		proposer:     prop,
		store:        store,
		blobSetter:   blobSetter,
		pollInterval: defaultPollInterval,
	}
}

// cursor tracks where derivation stands: the next L1 block to consume and
// the L2 chain tip it will extend.
type cursor struct {
	nextL1Number    uint64
	parentHash      common.Hash
	parentNumber    uint64
	parentTimestamp uint64
	prevRandao      common.Hash
	gasLimit        uint64
	mint            facettypes.MintPeriodState
}

// resume rebuilds the cursor from storage.Store.HeadL2Block, falling back
// to genesis when the store is empty (first launch).
func (p *Pipeline) resume(genesis Genesis) (cursor, error) {
	head, err := p.store.HeadL2Block()
	if errors.Is(err, storage.ErrNotFound) {
		return cursor{
			nextL1Number:    genesis.ParentL1Number + 1,
			parentHash:      genesis.ParentHash,
			parentNumber:    genesis.ParentNumber,
			parentTimestamp: genesis.ParentTimestamp,
			prevRandao:      genesis.PrevRandao,
			gasLimit:        genesis.GasLimit,
			mint:            genesis.Mint,
		}, nil
	}
	if err != nil {
		return cursor{}, fmt.Errorf("pipeline: resuming from storage: %w", err)
	}

	return cursor{
		nextL1Number:    head.SourceL1Number + 1,
		parentHash:      head.Hash,
		parentNumber:    head.Number,
		parentTimestamp: head.Timestamp,
		prevRandao:      head.PrevRandao,
		gasLimit:        head.GasLimit,
		mint:            head.Mint,
	}, nil
}

// Run derives every L2 block the fetcher can supply L1 blocks for,
// polling as the L1 chain advances. It returns only on context
// cancellation or an unrecoverable derivation error; a fatal proposer
// error is returned wrapped exactly as proposer.IsFatal would recognize
// it, so internal/exitcode can classify it.
func (p *Pipeline) Run(ctx context.Context, genesis Genesis) error {
	cur, err := p.resume(genesis)
	if err != nil {
		return err
	}
	log.Info("starting derivation pipeline", "network", p.spec.Network, "chain_id", p.spec.ChainID, "next_l1_block", cur.nextL1Number)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		l1Block, outcome, err := p.fetcher.Fetch(ctx, cur.nextL1Number)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pipeline: fetching l1 block %d: %w: %w", cur.nextL1Number, exitcode.ErrL1Unrecoverable, err)
		}
		if outcome == prefetch.NotReady {
			if !sleep(ctx, p.pollInterval) {
				return ctx.Err()
			}
			continue
		}

		reorged, divergence, err := p.detectReorg(ctx, l1Block)
		if err != nil {
			return err
		}
		if reorged {
			log.Warn("l1 reorg detected", "divergence", divergence)
			if err := p.store.TruncateFrom(divergence); err != nil {
				return fmt.Errorf("pipeline: truncating past reorg divergence %d: %w", divergence, err)
			}
			p.fetcher.Evict(divergence)
			cur, err = p.resume(genesis)
			if err != nil {
				return err
			}
			continue
		}

		produced, err := p.deriveBlock(ctx, cur, l1Block)
		if err != nil {
			return err
		}

		if err := p.persist(l1Block, produced); err != nil {
			return err
		}

		last := produced[len(produced)-1]
		cur.nextL1Number = l1Block.Number + 1
		cur.parentHash = last.Hash
		cur.parentNumber = last.Number
		cur.parentTimestamp = last.Timestamp
		cur.prevRandao = last.PrevRandao
		cur.mint = last.Mint

		p.fetcher.Evict(cur.nextL1Number)
		p.updateMetrics(l1Block, last, len(produced))
	}
}

// deriveBlock runs one L1 block through collect -> build -> propose,
// retrying non-fatal proposer errors up to maxBlockRetries times before
// surfacing them wrapped as fatal (spec §5 backpressure rule).
func (p *Pipeline) deriveBlock(ctx context.Context, cur cursor, l1Block *facettypes.L1Block) ([]*facettypes.L2Block, error) {
	if p.blobSetter != nil {
		if err := p.blobSetter.SetL1Block(ctx, l1Block.Timestamp); err != nil {
			return nil, fmt.Errorf("pipeline: resolving beacon slot for l1 block %d: %w", l1Block.Number, err)
		}
	}

	collected := p.collector.Collect(ctx, l1Block)
	metrics.BatchesDiscardedTotal.WithLabelValues("duplicate").Add(float64(collected.Stats.Duplicates))
	metrics.BatchesDiscardedTotal.WithLabelValues("missing_blob").Add(float64(collected.Stats.MissingBlobs))

	userTxs := p.builder.Build(l1Block.Number, cur.gasLimit, collected.Singles, collected.Batches)

	req := proposer.BlockRequest{
		L1BlockNumber:         l1Block.Number,
		L1Timestamp:           l1Block.Timestamp,
		BaseFee:               l1Block.BaseFeePerGas,
		ParentHash:            cur.parentHash,
		ParentNumber:          cur.parentNumber,
		ParentTimestamp:       cur.parentTimestamp,
		PrevRandao:            l1Block.MixHash,
		ParentBeaconBlockRoot: l1Block.ParentBeaconBlockRoot,
		GasLimit:              cur.gasLimit,
		UserTxs:               userTxs,
		Mint:                  cur.mint,
	}

	var produced []*facettypes.L2Block
	var err error
	for attempt := 0; attempt <= maxBlockRetries; attempt++ {
		produced, err = p.proposer.Propose(ctx, req)
		if err == nil {
			break
		}
		if proposer.IsFatal(err) {
			return nil, err
		}
		if attempt == maxBlockRetries {
			return nil, proposer.Fatal(fmt.Errorf("pipeline: l1 block %d: retry budget exhausted: %w", l1Block.Number, err))
		}
		log.Warn("retrying block derivation", "l1_block", l1Block.Number, "attempt", attempt+1, "err", err)
		if !sleep(ctx, blockRetryBackoff) {
			return nil, ctx.Err()
		}
	}

	// The real block's number is only known after filler blocks are
	// accounted for, so the mint state advance happens here rather than
	// before Propose: overwrite the real (final) block's embedded state
	// with the post-burn state, computed from its own transactions.
	last := produced[len(produced)-1]
	burns := computeBurns(userTxs, l1Block.BaseFeePerGas)
	next, _ := p.mint.ProcessBlock(cur.mint, last.Number, burns)
	last.Mint = next

	return produced, nil
}

func (p *Pipeline) persist(l1Block *facettypes.L1Block, produced []*facettypes.L2Block) error {
	if err := p.store.PutL1Block(l1Block); err != nil {
		return fmt.Errorf("pipeline: persisting l1 block %d: %w", l1Block.Number, err)
	}
	for _, b := range produced {
		if err := p.store.PutL2Block(b); err != nil {
			return fmt.Errorf("pipeline: persisting l2 block %d: %w", b.Number, err)
		}
	}
	return nil
}

func (p *Pipeline) updateMetrics(l1Block *facettypes.L1Block, last *facettypes.L2Block, producedCount int) {
	metrics.L1BlockHeight.Set(float64(l1Block.Number))
	metrics.DerivedBlocksTotal.Add(float64(producedCount))
	if last.Mint.TotalMinted != nil {
		totalMinted, _ := new(big.Float).SetInt(last.Mint.TotalMinted).Float64()
		metrics.MintTotalMinted.Set(totalMinted)
	}
	if depther, ok := p.fetcher.(interface{ QueueDepth() int }); ok {
		metrics.PrefetchQueueDepth.Set(float64(depther.QueueDepth()))
	}
}

// sleep waits for d or ctx cancellation, reporting which happened first.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
