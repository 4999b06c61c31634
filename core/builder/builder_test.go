package builder

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/facet-protocol/facet-node/core/collector"
	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/params"
)

type noopBlobProvider struct{}

func (noopBlobProvider) FetchBlob(context.Context, common.Hash) ([]byte, bool, error) {
	return nil, false, nil
}

// facetSinglePayload builds a real FacetTxType-tagged payload (0x7E ∥
// rlp(DepositTxData)), the wire shape a calldata single actually carries
// (spec §4.5 step 3, scenario S1), as opposed to an ordinary signed
// EIP-1559 transaction.
func facetSinglePayload(t *testing.T, gasLimit uint64) []byte {
	t.Helper()
	to := common.HexToAddress("0xdddd")
	raw, err := (&facettypes.DepositTxData{
		From:     common.HexToAddress("0xaaaa"),
		To:       &to,
		GasLimit: gasLimit,
		Mint:     big.NewInt(0),
		Value:    big.NewInt(0),
	}).MarshalBinary()
	require.NoError(t, err)
	return raw
}

const testChainID = uint64(0xface7b)

func rawTx(t *testing.T, gas uint64, nonce uint64) []byte {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(testChainID),
		Nonce:     nonce,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       gas,
		Value:     big.NewInt(0),
	})
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(testChainID))
	signed, err := types.SignTx(tx, signer, key)
	require.NoError(t, err)

	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	return raw
}

type staticRegistry struct {
	signer common.Address
	ok     bool
}

func (r staticRegistry) AuthorizedSigner(uint64) (common.Address, bool) { return r.signer, r.ok }

func TestBuildOrdersPermissionlessByL1TxIndex(t *testing.T) {
	txA := rawTx(t, 21000, 0)
	txB := rawTx(t, 21000, 0)

	batches := []facettypes.ParsedBatch{
		{Role: facettypes.RolePermissionless, L1TxIndex: 5, Transactions: [][]byte{txB}},
		{Role: facettypes.RolePermissionless, L1TxIndex: 0, Transactions: [][]byte{txA}},
	}

	b := New(testChainID, staticRegistry{}, false)
	out := b.Build(100, 10_000_000, nil, batches)

	require.Equal(t, [][]byte{txA, txB}, out)
}

func TestBuildPrioritySelectedFirst(t *testing.T) {
	priorityTx := rawTx(t, 21000, 0)
	permissionlessTx := rawTx(t, 21000, 0)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	batches := []facettypes.ParsedBatch{
		{Role: facettypes.RolePermissionless, L1TxIndex: 0, Transactions: [][]byte{permissionlessTx}},
		{Role: facettypes.RolePriority, L1TxIndex: 2, Signer: &signer, Transactions: [][]byte{priorityTx}},
	}

	b := New(testChainID, staticRegistry{signer: signer, ok: true}, true)
	out := b.Build(100, 10_000_000, nil, batches)

	require.Equal(t, [][]byte{priorityTx, permissionlessTx}, out)
}

func TestBuildDiscardsPriorityOverGasShare(t *testing.T) {
	bigGasTx := rawTx(t, 20_000_000, 0)
	permissionlessTx := rawTx(t, 21000, 0)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	batches := []facettypes.ParsedBatch{
		{Role: facettypes.RolePermissionless, L1TxIndex: 0, Transactions: [][]byte{permissionlessTx}},
		{Role: facettypes.RolePriority, L1TxIndex: 1, Signer: &signer, Transactions: [][]byte{bigGasTx}},
	}

	// block gas limit 10M, PriorityShareBPS 5000 => allowance 5M < 20M declared.
	b := New(testChainID, staticRegistry{signer: signer, ok: true}, true)
	out := b.Build(100, 10_000_000, nil, batches)

	require.Equal(t, [][]byte{permissionlessTx}, out)
}

func TestBuildDiscardsUnauthorizedPrioritySigner(t *testing.T) {
	priorityTx := rawTx(t, 21000, 0)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	authorized := crypto.PubkeyToAddress(otherKey.PublicKey)

	batches := []facettypes.ParsedBatch{
		{Role: facettypes.RolePriority, L1TxIndex: 0, Signer: &signer, Transactions: [][]byte{priorityTx}},
	}

	b := New(testChainID, staticRegistry{signer: authorized, ok: true}, true)
	out := b.Build(100, 10_000_000, nil, batches)

	require.Empty(t, out)
}

func TestBuildSynthesizesSingles(t *testing.T) {
	txA := facetSinglePayload(t, 21000)
	txB := facetSinglePayload(t, 21000)

	singles := []facettypes.FacetSingleV1{
		{Source: facettypes.SourceCalldata, L1TxIndex: 0, From: common.HexToAddress("0xaaaa"), Payload: txA},
		{Source: facettypes.SourceCalldata, L1TxIndex: 1, From: common.HexToAddress("0xbbbb"), Payload: txB},
	}

	b := New(testChainID, staticRegistry{}, false)
	out := b.Build(100, 10_000_000, singles, nil)

	require.Equal(t, [][]byte{txA, txB}, out)
}

// TestBuildNeverFiltersSinglesByGas covers spec §4.5 step 4's zero-gas
// filter: it is scoped to batch-sourced transactions only. Singles carry
// the Facet type tag 0x7E, which txdecode.Parse's vanilla EIP-2718 decoder
// cannot recognize (it would report gas limit 0 for any single, real or
// not), so a single with a genuinely zero declared gas limit must still
// survive into the block, alongside one with real gas.
func TestBuildNeverFiltersSinglesByGas(t *testing.T) {
	zeroGasSingle := facetSinglePayload(t, 0)
	realGasSingle := facetSinglePayload(t, 21000)

	singles := []facettypes.FacetSingleV1{
		{Source: facettypes.SourceCalldata, L1TxIndex: 0, From: common.HexToAddress("0xaaaa"), Payload: zeroGasSingle},
		{Source: facettypes.SourceCalldata, L1TxIndex: 1, From: common.HexToAddress("0xbbbb"), Payload: realGasSingle},
	}

	b := New(testChainID, staticRegistry{}, false)
	out := b.Build(100, 10_000_000, singles, nil)

	require.Equal(t, [][]byte{zeroGasSingle, realGasSingle}, out)
}

// TestBuildDropsZeroGasBatchTransaction confirms the zero-gas filter still
// applies to batch-sourced transactions, which are ordinary EIP-2718
// envelopes txdecode.Parse decodes correctly.
func TestBuildDropsZeroGasBatchTransaction(t *testing.T) {
	zeroGasTx := rawTx(t, 0, 0)
	realTx := rawTx(t, 21000, 1)

	batches := []facettypes.ParsedBatch{
		{Role: facettypes.RolePermissionless, L1TxIndex: 0, Transactions: [][]byte{zeroGasTx, realTx}},
	}

	b := New(testChainID, staticRegistry{}, false)
	out := b.Build(100, 10_000_000, nil, batches)

	require.Equal(t, [][]byte{realTx}, out)
}

// TestBuildRoundTripsRealFacetSingleThroughCollector exercises the full
// path a calldata single actually takes: raw 0x7E-tagged L1 input bytes
// into core/collector.Collect, then the resulting single into
// Builder.Build, confirming the synthesized output carries the exact
// payload bytes through unfiltered.
func TestBuildRoundTripsRealFacetSingleThroughCollector(t *testing.T) {
	inbox := params.FacetInboxAddress
	payload := facetSinglePayload(t, 21000)
	l1Tx := facettypes.L1Transaction{
		Hash:    common.HexToHash("0x1"),
		TxIndex: 0,
		From:    common.HexToAddress("0xcccc"),
		To:      &inbox,
		Input:   payload,
	}
	receipts := []facettypes.L1Receipt{{TxHash: l1Tx.Hash, Success: true}}
	l1Block := &facettypes.L1Block{Number: 100, Transactions: []facettypes.L1Transaction{l1Tx}, Receipts: receipts}

	c := collector.New(testChainID, noopBlobProvider{})
	collected := c.Collect(context.Background(), l1Block)
	require.Len(t, collected.Singles, 1)

	b := New(testChainID, staticRegistry{}, false)
	out := b.Build(100, 10_000_000, collected.Singles, collected.Batches)

	require.Equal(t, [][]byte{payload}, out)
}
