package pipeline

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/facet-protocol/facet-node/core/builder"
	"github.com/facet-protocol/facet-node/core/collector"
	"github.com/facet-protocol/facet-node/core/mint"
	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/params"
	"github.com/facet-protocol/facet-node/prefetch"
	"github.com/facet-protocol/facet-node/proposer"
	"github.com/facet-protocol/facet-node/storage"
)

func TestL1DataGasZeroAndNonZeroBytes(t *testing.T) {
	require.Equal(t, params.TxDataZeroGas*3, l1DataGas([]byte{0, 0, 0}))
	require.Equal(t, params.TxDataNonZeroGasEIP2028*2, l1DataGas([]byte{1, 2}))
	require.Equal(t, params.TxDataZeroGas+params.TxDataNonZeroGasEIP2028, l1DataGas([]byte{0, 1}))
}

func TestComputeBurnsMultipliesByBaseFee(t *testing.T) {
	burns := computeBurns([][]byte{{1}, {0, 0}}, big.NewInt(10))
	require.Equal(t, big.NewInt(int64(params.TxDataNonZeroGasEIP2028)*10), burns[0])
	require.Equal(t, big.NewInt(int64(params.TxDataZeroGas)*2*10), burns[1])
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testMintState() facettypes.MintPeriodState {
	return facettypes.MintPeriodState{
		TotalMinted:            big.NewInt(0),
		PeriodStartBlock:       0,
		PeriodMinted:           big.NewInt(0),
		MintRate:               big.NewInt(1),
		InitialTargetPerPeriod: big.NewInt(1_000_000),
		HalvingLevel:           0,
	}
}

func testGenesis() Genesis {
	return Genesis{
		ParentHash:      common.HexToHash("0xgenesis"),
		ParentNumber:    0,
		ParentTimestamp: 1000,
		ParentL1Number:  0,
		PrevRandao:      common.Hash{},
		GasLimit:        30_000_000,
		Mint:            testMintState(),
	}
}

func newTestPipeline(t *testing.T, fetcher Fetcher, prop Proposer, store *storage.Store) *Pipeline {
	t.Helper()
	col := collector.New(1, fakeBlobProvider{})
	bld := builder.New(1, fakeRegistry{}, false)
	mintCtl := mint.New(params.DefaultMintConstants())
	return New(params.ChainSpec{ChainID: 1}, fetcher, col, bld, mintCtl, prop, store, nil)
}

type fakeBlobProvider struct{}

func (fakeBlobProvider) FetchBlob(context.Context, common.Hash) ([]byte, bool, error) {
	return nil, false, nil
}

type fakeRegistry struct{}

func (fakeRegistry) AuthorizedSigner(uint64) (common.Address, bool) { return common.Address{}, false }

func TestResumeFromGenesisWhenStoreEmpty(t *testing.T) {
	store := openTestStore(t)
	p := newTestPipeline(t, nil, nil, store)

	cur, err := p.resume(testGenesis())
	require.NoError(t, err)
	require.Equal(t, uint64(1), cur.nextL1Number)
	require.Equal(t, uint64(0), cur.parentNumber)
}

func TestResumeFromStoredHead(t *testing.T) {
	store := openTestStore(t)
	p := newTestPipeline(t, nil, nil, store)

	require.NoError(t, store.PutL2Block(&facettypes.L2Block{
		Number:         5,
		Hash:           common.HexToHash("0xabc"),
		SourceL1Number: 9,
		Mint:           testMintState(),
	}))

	cur, err := p.resume(testGenesis())
	require.NoError(t, err)
	require.Equal(t, uint64(10), cur.nextL1Number)
	require.Equal(t, uint64(5), cur.parentNumber)
	require.Equal(t, common.HexToHash("0xabc"), cur.parentHash)
}

func TestDetectReorgNoPriorStoredBlock(t *testing.T) {
	store := openTestStore(t)
	p := newTestPipeline(t, nil, nil, store)

	reorged, _, err := p.detectReorg(context.Background(), &facettypes.L1Block{Number: 5, ParentHash: common.HexToHash("0x1")})
	require.NoError(t, err)
	require.False(t, reorged)
}

func TestDetectReorgMatchingParent(t *testing.T) {
	store := openTestStore(t)
	p := newTestPipeline(t, nil, nil, store)

	require.NoError(t, store.PutL1Block(&facettypes.L1Block{Number: 4, Hash: common.HexToHash("0xparent"), BaseFeePerGas: big.NewInt(0)}))

	reorged, _, err := p.detectReorg(context.Background(), &facettypes.L1Block{Number: 5, ParentHash: common.HexToHash("0xparent")})
	require.NoError(t, err)
	require.False(t, reorged)
}

type mapFetcher struct {
	blocks map[uint64]*facettypes.L1Block
}

func (f mapFetcher) Fetch(_ context.Context, number uint64) (*facettypes.L1Block, prefetch.Outcome, error) {
	b, ok := f.blocks[number]
	if !ok {
		return nil, prefetch.NotReady, nil
	}
	return b, prefetch.Ready, nil
}

func (f mapFetcher) Evict(uint64) {}

func TestDetectReorgMismatchFindsDivergence(t *testing.T) {
	store := openTestStore(t)

	fetcher := mapFetcher{blocks: map[uint64]*facettypes.L1Block{
		3: {Number: 3, Hash: common.HexToHash("0x3-same"), BaseFeePerGas: big.NewInt(0)},
		4: {Number: 4, Hash: common.HexToHash("0x4-new"), BaseFeePerGas: big.NewInt(0)},
	}}
	p := newTestPipeline(t, fetcher, nil, store)

	require.NoError(t, store.PutL1Block(&facettypes.L1Block{Number: 3, Hash: common.HexToHash("0x3-same"), BaseFeePerGas: big.NewInt(0)}))
	require.NoError(t, store.PutL1Block(&facettypes.L1Block{Number: 4, Hash: common.HexToHash("0x4-old"), BaseFeePerGas: big.NewInt(0)}))

	reorged, divergence, err := p.detectReorg(context.Background(), &facettypes.L1Block{Number: 5, ParentHash: common.HexToHash("0x4-new")})
	require.NoError(t, err)
	require.True(t, reorged)
	require.Equal(t, uint64(4), divergence)
}

// fakeProposer mimics proposer.Proposer.Propose closely enough for the
// pipeline integration test: one block per request, no fillers, echoing
// the request's chain-linkage fields back into the produced block.
type fakeProposer struct{ nextHash byte }

func (f *fakeProposer) Propose(_ context.Context, req proposer.BlockRequest) ([]*facettypes.L2Block, error) {
	f.nextHash++
	return []*facettypes.L2Block{{
		Number:         req.ParentNumber + 1,
		Hash:           common.BytesToHash([]byte{f.nextHash}),
		ParentHash:     req.ParentHash,
		Timestamp:      req.L1Timestamp,
		PrevRandao:     req.PrevRandao,
		GasLimit:       req.GasLimit,
		Transactions:   req.UserTxs,
		Mint:           req.Mint,
		SourceL1Number: req.L1BlockNumber,
	}}, nil
}

func TestRunDerivesSuppliedBlocksThenBlocksOnTip(t *testing.T) {
	store := openTestStore(t)
	fetcher := mapFetcher{blocks: map[uint64]*facettypes.L1Block{
		1: {Number: 1, Hash: common.HexToHash("0x1"), ParentHash: common.HexToHash("0xgenesis"), Timestamp: 1012, BaseFeePerGas: big.NewInt(7)},
		2: {Number: 2, Hash: common.HexToHash("0x2"), ParentHash: common.HexToHash("0x1"), Timestamp: 1024, BaseFeePerGas: big.NewInt(7)},
	}}
	prop := &fakeProposer{}
	p := newTestPipeline(t, fetcher, prop, store)
	p.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := p.Run(ctx, testGenesis())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	head, err := store.HeadL2Block()
	require.NoError(t, err)
	require.Equal(t, uint64(2), head.Number)
	require.Equal(t, uint64(2), head.SourceL1Number)

	_, err = store.GetL1Block(1)
	require.NoError(t, err)
	_, err = store.GetL1Block(2)
	require.NoError(t, err)
}
