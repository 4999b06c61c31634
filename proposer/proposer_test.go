package proposer

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/engine"
	"github.com/facet-protocol/facet-node/params"
)

func TestFillerBlockCount(t *testing.T) {
	cases := []struct {
		name string
		head uint64
		next uint64
		want uint64
	}{
		{"exactly one interval", 100, 112, 0},
		{"no gap", 100, 100, 0},
		{"exact multiple of two intervals", 100, 124, 1},
		{"non-multiple gap", 100, 130, 2},
		{"huge gap capped", 0, (params.MaxFillerBlocks+50)*params.BlockInterval + 1, params.MaxFillerBlocks},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, fillerBlockCount(c.head, c.next))
		})
	}
}

type fakeExecReader struct {
	nonce           uint64
	callResult      []byte
	callErr         error
	receiptStatuses map[common.Hash]bool
}

func (f *fakeExecReader) Call(ctx context.Context, msg ethereum.CallMsg, blockNumber uint64) ([]byte, error) {
	return f.callResult, f.callErr
}

func (f *fakeExecReader) TransactionCount(ctx context.Context, account common.Address, blockNumber uint64) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeExecReader) CodeAt(ctx context.Context, account common.Address, blockNumber uint64) ([]byte, error) {
	return nil, nil
}

func (f *fakeExecReader) TransactionReceiptStatus(ctx context.Context, hash common.Hash) (bool, error) {
	if f.receiptStatuses == nil {
		return true, nil
	}
	return f.receiptStatuses[hash], nil
}

type fakeEngineDriver struct {
	blockHash common.Hash
	status    string
	calls     []string
}

func (f *fakeEngineDriver) ForkchoiceUpdated(ctx context.Context, state engine.ForkchoiceState, attrs *engine.PayloadAttributes) (engine.ForkchoiceUpdatedResult, error) {
	f.calls = append(f.calls, "forkchoiceUpdated")
	hashHex := f.blockHash.Hex()
	if attrs == nil {
		return engine.ForkchoiceUpdatedResult{PayloadStatus: engine.PayloadStatus{Status: "VALID", LatestValidHash: &hashHex}}, nil
	}
	id := "0x01"
	return engine.ForkchoiceUpdatedResult{PayloadStatus: engine.PayloadStatus{Status: "VALID"}, PayloadID: &id}, nil
}

func (f *fakeEngineDriver) GetPayload(ctx context.Context, payloadID string, version int) (engine.ExecutionPayloadEnvelope, error) {
	f.calls = append(f.calls, "getPayload")
	payload := map[string]interface{}{
		"blockHash":     f.blockHash.Hex(),
		"gasLimit":      "0x5f5e100",
		"gasUsed":       "0x0",
		"transactions":  []string{"0x7e00"},
		"baseFeePerGas": "0x1",
	}
	raw, _ := json.Marshal(payload)
	return engine.ExecutionPayloadEnvelope{ExecutionPayload: raw}, nil
}

func (f *fakeEngineDriver) NewPayload(ctx context.Context, payload interface{}, version int, extra ...interface{}) (engine.PayloadStatus, error) {
	f.calls = append(f.calls, "newPayload")
	hashHex := f.blockHash.Hex()
	status := f.status
	if status == "" {
		status = "VALID"
	}
	return engine.PayloadStatus{Status: status, LatestValidHash: &hashHex}, nil
}

func testSpec() params.ChainSpec {
	return params.ChainSpec{
		Network:              params.NetworkHoodi,
		ChainID:              1,
		V1ToV2MigrationBlock: 1000,
		BluebirdForkBlock:    2000,
		Mint:                 params.DefaultMintConstants(),
	}
}

func freshMint() facettypes.MintPeriodState {
	return facettypes.MintPeriodState{
		TotalMinted:            big.NewInt(0),
		PeriodMinted:           big.NewInt(0),
		MintRate:               big.NewInt(2),
		InitialTargetPerPeriod: big.NewInt(1000),
	}
}

func TestProposeDrivesEngineHandshake(t *testing.T) {
	want := common.HexToHash("0xabc123")
	eng := &fakeEngineDriver{blockHash: want}
	exec := &fakeExecReader{nonce: 5}
	p := New(testSpec(), eng, exec)

	blocks, err := p.Propose(context.Background(), BlockRequest{
		L1BlockNumber:   42,
		L1Timestamp:     1012,
		BaseFee:         big.NewInt(7),
		ParentHash:      common.HexToHash("0x1"),
		ParentNumber:    1,
		ParentTimestamp: 1000,
		GasLimit:        100_000_000,
		UserTxs:         [][]byte{{0x02, 0x01}},
		Mint:            freshMint(),
	})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, want, blocks[0].Hash)
	require.Equal(t, uint64(2), blocks[0].Number)
	require.Equal(t, []string{"forkchoiceUpdated", "getPayload", "newPayload", "forkchoiceUpdated"}, eng.calls)
}

func TestProposeEmitsFillerBlocksForTimestampGap(t *testing.T) {
	eng := &fakeEngineDriver{blockHash: common.HexToHash("0xdead")}
	exec := &fakeExecReader{nonce: 0}
	p := New(testSpec(), eng, exec)

	blocks, err := p.Propose(context.Background(), BlockRequest{
		L1BlockNumber:   5,
		L1Timestamp:     1036, // 1000 + 3*12: exact multiple, so 2 fillers + 1 real
		BaseFee:         big.NewInt(1),
		ParentHash:      common.HexToHash("0x1"),
		ParentNumber:    1,
		ParentTimestamp: 1000,
		GasLimit:        1_000_000,
		Mint:            freshMint(),
	})
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	require.Equal(t, uint64(2), blocks[0].Number)
	require.Equal(t, uint64(3), blocks[1].Number)
	require.Equal(t, uint64(4), blocks[2].Number)
}

func TestProposeFatalOnInvalidNewPayload(t *testing.T) {
	eng := &fakeEngineDriver{blockHash: common.HexToHash("0xbad"), status: "INVALID"}
	exec := &fakeExecReader{nonce: 0}
	p := New(testSpec(), eng, exec)

	_, err := p.Propose(context.Background(), BlockRequest{
		L1BlockNumber:   1,
		L1Timestamp:     1012,
		BaseFee:         big.NewInt(1),
		ParentHash:      common.HexToHash("0x1"),
		ParentNumber:    1,
		ParentTimestamp: 1000,
		GasLimit:        1_000_000,
		Mint:            freshMint(),
	})
	require.Error(t, err)
	require.True(t, IsFatal(err))
}

func TestComposeSystemTxsAppendsMigrationTransactions(t *testing.T) {
	spec := testSpec()
	eng := &fakeEngineDriver{blockHash: common.HexToHash("0x1")}
	result := make([]byte, 32)
	result[31] = 3 // transactionsRequired() == 3
	exec := &fakeExecReader{nonce: 10, callResult: result}
	p := New(spec, eng, exec)

	txs, err := p.composeSystemTxs(context.Background(), blockPlan{
		number:        spec.V1ToV2MigrationBlock,
		l1BlockNumber: 99,
		mint:          freshMint(),
	})
	require.NoError(t, err)
	// L1 attributes + 3 migration transactions.
	require.Len(t, txs, 4)
	require.True(t, txs[1].required)
	require.True(t, txs[2].required)
	require.True(t, txs[3].required)
}

func TestComposeSystemTxsPropagatesCallError(t *testing.T) {
	spec := testSpec()
	eng := &fakeEngineDriver{blockHash: common.HexToHash("0x1")}
	exec := &fakeExecReader{nonce: 0, callErr: errors.New("eth_call failed")}
	p := New(spec, eng, exec)

	_, err := p.composeSystemTxs(context.Background(), blockPlan{
		number:        spec.V1ToV2MigrationBlock,
		l1BlockNumber: 1,
		mint:          freshMint(),
	})
	require.Error(t, err)
}
