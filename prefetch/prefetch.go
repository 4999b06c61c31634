// Package prefetch implements the bounded look-ahead Prefetcher described
// in spec §4.8: a fixed-size worker pool speculatively fetches upcoming L1
// blocks into a concurrency-safe future map, while the derivation loop
// consumes them strictly in order (spec §5). Built on
// golang.org/x/sync/errgroup to bound concurrent fetches and
// golang.org/x/sync/singleflight to dedupe concurrent tip-number refreshes,
// the same concurrency-primitives package the wider go-ethereum ecosystem
// reaches for instead of hand-rolled worker pools.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	facettypes "github.com/facet-protocol/facet-node/core/types"
)

// Source fetches one L1 block by number; normally l1.Client.BlockByNumber.
type Source interface {
	BlockByNumber(ctx context.Context, number uint64) (*facettypes.L1Block, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Outcome distinguishes a successfully fetched block from one that simply
// is not ready yet (spec §4.8 step 2: "timeout or 'block not yet
// available' is returned as a distinct NotReady outcome, not an error").
type Outcome int

const (
	Ready Outcome = iota
	NotReady
)

type future struct {
	done  chan struct{}
	block *facettypes.L1Block
	err   error
}

// Prefetcher maintains a concurrency-safe map of in-flight and completed L1
// block fetches, keyed by block number.
type Prefetcher struct {
	source  Source
	ahead   uint64
	timeout time.Duration
	tipTTL  time.Duration

	group    *errgroup.Group
	groupCtx context.Context

	mu      sync.Mutex
	futures map[uint64]*future

	tipGroup   singleflight.Group
	tipMu      sync.Mutex
	tip        uint64
	tipFetched time.Time

	cancel context.CancelFunc
}

// New constructs a Prefetcher over workers concurrent fetches, looking
// ahead persistently to ahead blocks beyond whatever number is requested,
// bounded per-fetch by timeout. Callers read workers/ahead/timeout from
// internal/config, which applies spec §6's L1_PREFETCH_THREADS/FORWARD/TIMEOUT
// defaults (2, 20, 30s); a caller that genuinely wants zero look-ahead
// passes ahead = 0 and gets exactly that.
func New(source Source, workers int, ahead uint64, timeout time.Duration) *Prefetcher {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	return &Prefetcher{
		source:   source,
		ahead:    ahead,
		timeout:  timeout,
		tipTTL:   5 * time.Second,
		group:    group,
		groupCtx: groupCtx,
		futures:  make(map[uint64]*future),
		cancel:   cancel,
	}
}

// tipNumber returns the TTL-cached L1 tip number, refreshing it when stale
// (spec §5: "L1 tip number with TTL... process-wide, initialized lazily").
// Concurrent cache-miss callers share a single underlying refresh via
// singleflight.
func (p *Prefetcher) tipNumber(ctx context.Context) (uint64, error) {
	p.tipMu.Lock()
	if time.Since(p.tipFetched) < p.tipTTL {
		defer p.tipMu.Unlock()
		return p.tip, nil
	}
	p.tipMu.Unlock()

	v, err, _ := p.tipGroup.Do("tip", func() (interface{}, error) {
		n, err := p.source.BlockNumber(ctx)
		if err != nil {
			return uint64(0), err
		}
		p.tipMu.Lock()
		p.tip = n
		p.tipFetched = time.Now()
		p.tipMu.Unlock()
		return n, nil
	})
	if err != nil {
		p.tipMu.Lock()
		cached := p.tip
		p.tipMu.Unlock()
		return cached, err
	}
	return v.(uint64), nil
}

// ensurePrefetched schedules any missing fetch jobs for n..n+ahead, capped
// by the cached tip (spec §4.8 step 1).
func (p *Prefetcher) ensurePrefetched(n uint64) {
	tip, err := p.tipNumber(p.groupCtx)
	if err != nil {
		log.Warn("prefetcher: failed to refresh L1 tip", "err", err)
		tip = n + p.ahead // best effort: schedule the full window anyway
	}

	end := n + p.ahead
	if tip < end {
		end = tip
	}

	for i := n; i <= end; i++ {
		p.scheduleOnce(i)
	}
}

func (p *Prefetcher) scheduleOnce(number uint64) {
	p.mu.Lock()
	if _, exists := p.futures[number]; exists {
		p.mu.Unlock()
		return
	}
	f := &future{done: make(chan struct{})}
	p.futures[number] = f
	p.mu.Unlock()

	jobID := uuid.NewString()
	p.group.Go(func() error {
		p.runJob(jobID, number, f)
		return nil // job errors are carried on f.err, never surfaced to errgroup
	})
}

func (p *Prefetcher) runJob(jobID string, number uint64, f *future) {
	defer close(f.done)

	ctx, cancel := context.WithTimeout(p.groupCtx, p.timeout)
	defer cancel()

	log.Debug("prefetch job started", "job", jobID, "l1_block", number)
	block, err := p.source.BlockByNumber(ctx, number)
	if err != nil {
		log.Debug("prefetch job failed", "job", jobID, "l1_block", number, "err", err)
	}
	f.block, f.err = block, err
}

// Fetch awaits the future for number, scheduling its look-ahead window
// first (spec §4.8 steps 1-2).
func (p *Prefetcher) Fetch(ctx context.Context, number uint64) (*facettypes.L1Block, Outcome, error) {
	p.ensurePrefetched(number)

	p.mu.Lock()
	f, ok := p.futures[number]
	p.mu.Unlock()
	if !ok {
		// Tip hasn't advanced far enough to schedule this block yet.
		return nil, NotReady, nil
	}

	select {
	case <-f.done:
		if f.err != nil {
			return nil, Ready, f.err
		}
		return f.block, Ready, nil
	case <-time.After(p.timeout):
		return nil, NotReady, nil
	case <-ctx.Done():
		return nil, NotReady, ctx.Err()
	}
}

// QueueDepth returns the number of futures currently scheduled or in
// flight, for internal/metrics' prefetch queue depth gauge.
func (p *Prefetcher) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.futures)
}

// Evict drops cached futures below lowWatermark (spec §4.8 step 3).
func (p *Prefetcher) Evict(lowWatermark uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for number := range p.futures {
		if number < lowWatermark {
			delete(p.futures, number)
		}
	}
}

// Shutdown cancels outstanding fetches and waits, best-effort, for
// in-flight jobs to unwind (spec §4.8 step 4).
func (p *Prefetcher) Shutdown() {
	p.cancel()
	if err := p.group.Wait(); err != nil {
		log.Warn("prefetcher: error during shutdown drain", "err", err)
	}
}
