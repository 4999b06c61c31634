// Package l1 wraps the L1 JSON-RPC methods the derivation pipeline consumes
// (spec §6): block and receipt retrieval, code/nonce lookups for the
// migration and priority-registry checks, and a diagnostics-only trace
// call. Built on github.com/ethereum/go-ethereum/ethclient and rpc, the
// same libraries cmd/utils/flags_rollup.go and ethclient/ethclient_rollup.go
// use to talk to an L1 node, with retry/backoff layered on top via
// github.com/cenkalti/backoff/v4.
package l1

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	facettypes "github.com/facet-protocol/facet-node/core/types"
)

// defaultRequestsPerSecond bounds outbound request rate ahead of the
// retry/backoff layer, so a burst of retries from several concurrent
// prefetch workers doesn't itself trip an RPC provider's own rate limit.
const defaultRequestsPerSecond = 25

// RetryPolicy configures the exponential backoff applied to retryable RPC
// calls (spec §6: "7 tries default, base 1s, max 32s, multiplier 2, jitter").
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      6, // the first attempt plus 6 retries: 7 tries
		InitialInterval: time.Second,
		MaxInterval:     32 * time.Second,
		Multiplier:      2,
	}
}

// Client wraps an L1 JSON-RPC connection with the specific reads the
// derivation pipeline needs.
type Client struct {
	eth     *ethclient.Client
	rpc     *rpc.Client
	policy  RetryPolicy
	limiter *rate.Limiter
}

func Dial(ctx context.Context, url string, policy RetryPolicy) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Client{
		eth:     ethclient.NewClient(rpcClient),
		rpc:     rpcClient,
		policy:  policy,
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
	}, nil
}

// notRetryable reports whether err is an on-chain revert, which spec §6
// says must short-circuit the retry loop rather than burn the backoff
// budget on a call that will never succeed.
func notRetryable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}

func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialInterval
	b.MaxInterval = c.policy.MaxInterval
	b.Multiplier = c.policy.Multiplier
	bounded := backoff.WithMaxRetries(b, c.policy.MaxRetries)

	reqID := uuid.NewString()
	return backoff.Retry(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := fn()
		if err == nil {
			return nil
		}
		if notRetryable(err) {
			return backoff.Permanent(err)
		}
		log.Warn("retrying L1 RPC call", "op", op, "req", reqID, "err", err)
		return err
	}, backoff.WithContext(bounded, ctx))
}

// ChainID returns the L1 chain id (eth_chainId).
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var id *big.Int
	err := c.withRetry(ctx, "eth_chainId", func() error {
		var innerErr error
		id, innerErr = c.eth.ChainID(ctx)
		return innerErr
	})
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// BlockNumber returns the current L1 head number (eth_blockNumber).
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.withRetry(ctx, "eth_blockNumber", func() error {
		var innerErr error
		n, innerErr = c.eth.BlockNumber(ctx)
		return innerErr
	})
	return n, err
}

// BlockByNumber fetches an L1 block with full transactions and converts it
// plus its receipts into the domain L1Block type (eth_getBlockByNumber +
// eth_getBlockReceipts).
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*facettypes.L1Block, error) {
	var header *gethHeaderAndBody
	err := c.withRetry(ctx, "eth_getBlockByNumber", func() error {
		h, innerErr := c.fetchBlock(ctx, number)
		header = h
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	var receipts []facettypes.L1Receipt
	err = c.withRetry(ctx, "eth_getBlockReceipts", func() error {
		r, innerErr := c.fetchReceipts(ctx, number)
		receipts = r
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	return &facettypes.L1Block{
		Number:                number,
		Hash:                  header.hash,
		ParentHash:            header.parentHash,
		Timestamp:             header.timestamp,
		BaseFeePerGas:         header.baseFee,
		MixHash:               header.mixHash,
		ParentBeaconBlockRoot: header.parentBeaconBlockRoot,
		Transactions:          header.transactions,
		Receipts:              receipts,
	}, nil
}

// TransactionCount returns the account nonce at a given block
// (eth_getTransactionCount), used by the proposer to decide whether a
// migration or upgrade system tx has already been applied.
func (c *Client) TransactionCount(ctx context.Context, account common.Address, blockNumber uint64) (uint64, error) {
	var n uint64
	err := c.withRetry(ctx, "eth_getTransactionCount", func() error {
		var innerErr error
		n, innerErr = c.eth.NonceAt(ctx, account, new(big.Int).SetUint64(blockNumber))
		return innerErr
	})
	return n, err
}

// CodeAt returns the deployed code at an address (eth_getCode).
func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber uint64) ([]byte, error) {
	var code []byte
	err := c.withRetry(ctx, "eth_getCode", func() error {
		var innerErr error
		code, innerErr = c.eth.CodeAt(ctx, account, new(big.Int).SetUint64(blockNumber))
		return innerErr
	})
	return code, err
}

// Call performs a read-only eth_call, used for transactionsRequired() probes
// against the migration manager. A revert is surfaced immediately, not
// retried (notRetryable).
func (c *Client) Call(ctx context.Context, msg ethereum.CallMsg, blockNumber uint64) ([]byte, error) {
	var out []byte
	err := c.withRetry(ctx, "eth_call", func() error {
		var innerErr error
		out, innerErr = c.eth.CallContract(ctx, msg, new(big.Int).SetUint64(blockNumber))
		return innerErr
	})
	return out, err
}

// TransactionReceiptStatus reports whether hash's receipt recorded success.
// Dialed against NON_AUTH_GETH_RPC_URL, this is how the proposer confirms a
// required system transaction actually executed (spec §4.7 step 4).
func (c *Client) TransactionReceiptStatus(ctx context.Context, hash common.Hash) (bool, error) {
	var r *gethtypes.Receipt
	err := c.withRetry(ctx, "eth_getTransactionReceipt", func() error {
		var innerErr error
		r, innerErr = c.eth.TransactionReceipt(ctx, hash)
		return innerErr
	})
	if err != nil {
		return false, err
	}
	return r.Status == gethtypes.ReceiptStatusSuccessful, nil
}

// TraceTransaction issues a debug_traceTransaction call for diagnostics
// only; its result is never consulted by derivation logic (spec §6).
func (c *Client) TraceTransaction(ctx context.Context, hash common.Hash) (json interface{}, err error) {
	err = c.rpc.CallContext(ctx, &json, "debug_traceTransaction", hash, struct{}{})
	return json, err
}
