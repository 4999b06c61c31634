package collector

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/params"
)

const testChainID = uint64(0xface7b)

type noopBlobProvider struct{}

func (noopBlobProvider) FetchBlob(context.Context, common.Hash) ([]byte, bool, error) {
	return nil, false, nil
}

func encodeBatch(t *testing.T, role facettypes.Role, txs [][]byte) []byte {
	t.Helper()
	rlpTxList, err := rlp.EncodeToBytes(txs)
	require.NoError(t, err)

	header := make([]byte, params.BatchHeaderSize)
	binary.BigEndian.PutUint64(header[0:8], testChainID)
	header[8] = params.BatchVersion
	header[9] = byte(role)
	binary.BigEndian.PutUint32(header[10:14], uint32(len(rlpTxList)))

	out := append([]byte{}, params.BatchMagic[:]...)
	out = append(out, header...)
	out = append(out, rlpTxList...)
	return out
}

func successBlock(txs []facettypes.L1Transaction) *facettypes.L1Block {
	receipts := make([]facettypes.L1Receipt, len(txs))
	for i, tx := range txs {
		receipts[i] = facettypes.L1Receipt{TxHash: tx.Hash, Success: true}
	}
	return &facettypes.L1Block{Number: 100, Transactions: txs, Receipts: receipts}
}

func TestCollectCalldataSingle(t *testing.T) {
	inbox := params.FacetInboxAddress
	tx := facettypes.L1Transaction{
		Hash:    common.HexToHash("0x1"),
		TxIndex: 0,
		From:    common.HexToAddress("0xaaaa"),
		To:      &inbox,
		Input:   []byte{0x7e, 0x01, 0x02},
	}

	c := New(testChainID, noopBlobProvider{})
	result := c.Collect(context.Background(), successBlock([]facettypes.L1Transaction{tx}))

	require.Len(t, result.Singles, 1)
	require.Equal(t, facettypes.SourceCalldata, result.Singles[0].Source)
	require.Equal(t, tx.From, result.Singles[0].From)
	require.Empty(t, result.Batches)
}

func TestCollectPermissionlessBatch(t *testing.T) {
	wire := encodeBatch(t, facettypes.RolePermissionless, [][]byte{{0x01}, {0x02}})
	tx := facettypes.L1Transaction{
		Hash:    common.HexToHash("0x2"),
		TxIndex: 1,
		Input:   wire,
	}

	c := New(testChainID, noopBlobProvider{})
	result := c.Collect(context.Background(), successBlock([]facettypes.L1Transaction{tx}))

	require.Len(t, result.Batches, 1)
	require.Len(t, result.Batches[0].Transactions, 2)
}

func TestCollectDeduplicatesByContentHash(t *testing.T) {
	wire := encodeBatch(t, facettypes.RolePermissionless, [][]byte{{0x01}})
	tx3 := facettypes.L1Transaction{Hash: common.HexToHash("0x3"), TxIndex: 3, Input: wire}
	tx7 := facettypes.L1Transaction{Hash: common.HexToHash("0x7"), TxIndex: 7, Input: wire}

	c := New(testChainID, noopBlobProvider{})
	result := c.Collect(context.Background(), successBlock([]facettypes.L1Transaction{tx3, tx7}))

	require.Len(t, result.Batches, 1)
	require.Equal(t, uint64(3), result.Batches[0].L1TxIndex)
	require.Equal(t, 1, result.Stats.Duplicates)
}

func TestCollectSkipsFailedReceipts(t *testing.T) {
	inbox := params.FacetInboxAddress
	tx := facettypes.L1Transaction{Hash: common.HexToHash("0x9"), To: &inbox, Input: []byte{0x01}}
	block := &facettypes.L1Block{
		Transactions: []facettypes.L1Transaction{tx},
		Receipts:     []facettypes.L1Receipt{{TxHash: tx.Hash, Success: false}},
	}

	c := New(testChainID, noopBlobProvider{})
	result := c.Collect(context.Background(), block)
	require.Empty(t, result.Singles)
}

func TestCollectFirstEventLogWinsOverSubsequent(t *testing.T) {
	tx := facettypes.L1Transaction{Hash: common.HexToHash("0xa"), TxIndex: 0}
	logA := facettypes.L1Log{Address: common.HexToAddress("0x1111"), Topics: []common.Hash{params.FacetLogTopic}, Data: []byte{0x01}}
	logB := facettypes.L1Log{Address: common.HexToAddress("0x2222"), Topics: []common.Hash{params.FacetLogTopic}, Data: []byte{0x02}}

	block := &facettypes.L1Block{
		Transactions: []facettypes.L1Transaction{tx},
		Receipts:     []facettypes.L1Receipt{{TxHash: tx.Hash, Success: true, Logs: []facettypes.L1Log{logA, logB}}},
	}

	c := New(testChainID, noopBlobProvider{})
	result := c.Collect(context.Background(), block)

	require.Len(t, result.Singles, 1)
	require.Equal(t, logA.Address, result.Singles[0].From)
}

func TestCollectMissingBlobIncrementsStat(t *testing.T) {
	tx := facettypes.L1Transaction{
		Hash:              common.HexToHash("0xb"),
		Type:              3,
		BlobVersionedHash: []common.Hash{common.HexToHash("0xvh")},
	}
	block := successBlock([]facettypes.L1Transaction{tx})

	c := New(testChainID, noopBlobProvider{})
	result := c.Collect(context.Background(), block)

	require.Equal(t, 1, result.Stats.MissingBlobs)
	require.Empty(t, result.Batches)
}
