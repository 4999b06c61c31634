package l1

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	facettypes "github.com/facet-protocol/facet-node/core/types"
)

// gethHeaderAndBody is the subset of eth_getBlockByNumber's (includeTxs =
// true) response this pipeline reads. Decoded directly from the raw JSON
// response rather than through go-ethereum's types.Block, since the block's
// transactions need their own type/to/input/blob-hash fields individually,
// not resolved into signed types.Transaction objects.
type gethHeaderAndBody struct {
	hash                  common.Hash
	parentHash            common.Hash
	timestamp             uint64
	baseFee               *big.Int
	mixHash               common.Hash
	parentBeaconBlockRoot *common.Hash
	transactions          []facettypes.L1Transaction
}

type rpcBlock struct {
	Hash                  common.Hash     `json:"hash"`
	ParentHash            common.Hash     `json:"parentHash"`
	Timestamp             hexutil.Uint64  `json:"timestamp"`
	BaseFeePerGas         *hexutil.Big    `json:"baseFeePerGas"`
	MixHash               common.Hash     `json:"mixHash"`
	ParentBeaconBlockRoot *common.Hash    `json:"parentBeaconBlockRoot"`
	Transactions          []rpcTransaction `json:"transactions"`
}

type rpcTransaction struct {
	Hash                 common.Hash      `json:"hash"`
	TransactionIndex     hexutil.Uint64   `json:"transactionIndex"`
	From                 common.Address   `json:"from"`
	To                   *common.Address  `json:"to"`
	Input                hexutil.Bytes    `json:"input"`
	Type                 hexutil.Uint64   `json:"type"`
	BlobVersionedHashes  []common.Hash    `json:"blobVersionedHashes"`
}

func (c *Client) fetchBlock(ctx context.Context, number uint64) (*gethHeaderAndBody, error) {
	var raw rpcBlock
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true); err != nil {
		return nil, err
	}
	if raw.Hash == (common.Hash{}) {
		return nil, fmt.Errorf("l1: block %d not found", number)
	}

	txs := make([]facettypes.L1Transaction, len(raw.Transactions))
	for i, t := range raw.Transactions {
		txs[i] = facettypes.L1Transaction{
			Hash:              t.Hash,
			TxIndex:           uint64(t.TransactionIndex),
			From:              t.From,
			To:                t.To,
			Input:             t.Input,
			Type:              uint8(t.Type),
			BlobVersionedHash: t.BlobVersionedHashes,
		}
	}

	baseFee := big.NewInt(0)
	if raw.BaseFeePerGas != nil {
		baseFee = raw.BaseFeePerGas.ToInt()
	}

	return &gethHeaderAndBody{
		hash:                  raw.Hash,
		parentHash:            raw.ParentHash,
		timestamp:             uint64(raw.Timestamp),
		baseFee:               baseFee,
		mixHash:               raw.MixHash,
		parentBeaconBlockRoot: raw.ParentBeaconBlockRoot,
		transactions:          txs,
	}, nil
}

type rpcReceipt struct {
	TransactionHash common.Hash `json:"transactionHash"`
	Status          hexutil.Uint64 `json:"status"`
	Logs            []rpcLog    `json:"logs"`
}

type rpcLog struct {
	Addr   common.Address `json:"address"`
	Topics []common.Hash  `json:"topics"`
	Data   hexutil.Bytes  `json:"data"`
}

func (c *Client) fetchReceipts(ctx context.Context, number uint64) ([]facettypes.L1Receipt, error) {
	var raws []rpcReceipt
	if err := c.rpc.CallContext(ctx, &raws, "eth_getBlockReceipts", hexutil.EncodeUint64(number)); err != nil {
		return nil, err
	}

	out := make([]facettypes.L1Receipt, len(raws))
	for i, r := range raws {
		logs := make([]facettypes.L1Log, len(r.Logs))
		for j, l := range r.Logs {
			logs[j] = facettypes.L1Log{Address: l.Addr, Topics: l.Topics, Data: l.Data}
		}
		out[i] = facettypes.L1Receipt{
			TxHash:  r.TransactionHash,
			Success: r.Status == 1,
			Logs:    logs,
		}
	}
	return out, nil
}
