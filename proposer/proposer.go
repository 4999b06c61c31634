// Package proposer drives L2 block production (spec §4.7): composing the
// L1-attributes and migration/upgrade system transactions that open every
// block, then running the execution engine through its
// forkchoiceUpdated -> getPayload -> newPayload -> forkchoiceUpdated
// handshake. Built on engine.Client and l1.Client, the same pairing
// eth/backend_rollup.go uses to drive block building against an execution
// engine over authenticated and plain JSON-RPC respectively.
package proposer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/engine"
	"github.com/facet-protocol/facet-node/params"
)

// ExecutionReader is the plain (non-authenticated) execution-node RPC
// surface the proposer needs beyond the engine API: nonce lookups for
// system-transaction sequencing and receipt status for the post-block
// required-system-tx check (spec §4.7 steps 2 and 4). l1.Client, dialed a
// second time against NON_AUTH_GETH_RPC_URL, satisfies this.
type ExecutionReader interface {
	Call(ctx context.Context, msg ethereum.CallMsg, blockNumber uint64) ([]byte, error)
	TransactionCount(ctx context.Context, account common.Address, blockNumber uint64) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber uint64) ([]byte, error)
	TransactionReceiptStatus(ctx context.Context, hash common.Hash) (bool, error)
}

// EngineDriver is the subset of engine.Client the proposer calls.
type EngineDriver interface {
	ForkchoiceUpdated(ctx context.Context, state engine.ForkchoiceState, attrs *engine.PayloadAttributes) (engine.ForkchoiceUpdatedResult, error)
	GetPayload(ctx context.Context, payloadID string, version int) (engine.ExecutionPayloadEnvelope, error)
	NewPayload(ctx context.Context, payload interface{}, version int, extra ...interface{}) (engine.PayloadStatus, error)
}

// Proposer composes and submits L2 blocks.
type Proposer struct {
	spec   params.ChainSpec
	engine EngineDriver
	exec   ExecutionReader
}

func New(spec params.ChainSpec, engineDriver EngineDriver, exec ExecutionReader) *Proposer {
	return &Proposer{spec: spec, engine: engineDriver, exec: exec}
}

// BlockRequest describes the real (non-filler) block the derivation loop
// wants proposed; the L1 block it derives from supplies the system
// transactions' inputs.
type BlockRequest struct {
	L1BlockNumber uint64
	L1Timestamp   uint64
	BaseFee       *big.Int

	ParentHash      common.Hash
	ParentNumber    uint64
	ParentTimestamp uint64

	PrevRandao            common.Hash
	ParentBeaconBlockRoot *common.Hash
	GasLimit              uint64

	UserTxs [][]byte
	Mint    facettypes.MintPeriodState
}

// fatalErr marks a condition spec §4.7 calls out as requiring the process
// to stop rather than continue derivation (see internal/exitcode).
type fatalErr struct{ error }

func Fatal(err error) error { return fatalErr{err} }

func IsFatal(err error) bool {
	_, ok := err.(fatalErr)
	return ok
}

// Propose builds every block needed to advance from req.ParentHash to an
// L2 block carrying req.UserTxs: first any filler blocks required to close
// the L1 timestamp gap (spec §4.7 step 1), then the real block. Returns
// every produced block in order.
func (p *Proposer) Propose(ctx context.Context, req BlockRequest) ([]*facettypes.L2Block, error) {
	var produced []*facettypes.L2Block

	parentHash := req.ParentHash
	parentNumber := req.ParentNumber
	parentTimestamp := req.ParentTimestamp
	mint := req.Mint

	fillers := fillerBlockCount(parentTimestamp, req.L1Timestamp)
	for i := uint64(0); i < fillers; i++ {
		timestamp := parentTimestamp + params.BlockInterval
		block, err := p.proposeOne(ctx, blockPlan{
			number:                parentNumber + 1,
			l1BlockNumber:         req.L1BlockNumber,
			timestamp:             timestamp,
			baseFee:               req.BaseFee,
			parentHash:            parentHash,
			prevRandao:            req.PrevRandao,
			parentBeaconBlockRoot: req.ParentBeaconBlockRoot,
			gasLimit:              req.GasLimit,
			userTxs:               nil,
			mint:                  mint,
		})
		if err != nil {
			return produced, err
		}
		produced = append(produced, block)
		parentHash, parentNumber, parentTimestamp = block.Hash, block.Number, block.Timestamp
	}

	block, err := p.proposeOne(ctx, blockPlan{
		number:                parentNumber + 1,
		l1BlockNumber:         req.L1BlockNumber,
		timestamp:             req.L1Timestamp,
		baseFee:               req.BaseFee,
		parentHash:            parentHash,
		prevRandao:            req.PrevRandao,
		parentBeaconBlockRoot: req.ParentBeaconBlockRoot,
		gasLimit:              req.GasLimit,
		userTxs:               req.UserTxs,
		mint:                  mint,
	})
	if err != nil {
		return produced, err
	}
	return append(produced, block), nil
}

// fillerBlockCount implements spec §4.7 step 1's gap-closing formula,
// capped at params.MaxFillerBlocks.
func fillerBlockCount(headTimestamp, newTimestamp uint64) uint64 {
	if newTimestamp <= headTimestamp {
		return 0
	}
	delta := newTimestamp - headTimestamp
	if delta <= params.BlockInterval {
		return 0
	}
	n := delta / params.BlockInterval
	if delta%params.BlockInterval == 0 {
		n--
	}
	if n > params.MaxFillerBlocks {
		log.Warn("capping filler blocks", "wanted", n, "cap", params.MaxFillerBlocks)
		n = params.MaxFillerBlocks
	}
	return n
}

type blockPlan struct {
	number                uint64
	l1BlockNumber         uint64
	timestamp             uint64
	baseFee               *big.Int
	parentHash            common.Hash
	prevRandao            common.Hash
	parentBeaconBlockRoot *common.Hash
	gasLimit              uint64
	userTxs               [][]byte
	mint                  facettypes.MintPeriodState
}

// proposeOne composes one block's system transactions and drives the
// engine through its full handshake (spec §4.7 steps 2-4).
func (p *Proposer) proposeOne(ctx context.Context, plan blockPlan) (*facettypes.L2Block, error) {
	systemTxs, err := p.composeSystemTxs(ctx, plan)
	if err != nil {
		return nil, err
	}

	allTxs := make([][]byte, 0, len(systemTxs)+len(plan.userTxs))
	for _, tx := range systemTxs {
		allTxs = append(allTxs, tx.raw)
	}
	allTxs = append(allTxs, plan.userTxs...)

	version := 2
	if plan.parentBeaconBlockRoot != nil {
		version = 3
	}

	attrs := &engine.PayloadAttributes{
		Timestamp:             plan.timestamp,
		PrevRandao:            plan.prevRandao,
		SuggestedFeeRecipient: common.Address{},
		Withdrawals:           []interface{}{},
		ParentBeaconBlockRoot: plan.parentBeaconBlockRoot,
		Transactions:          hexEncodeAll(allTxs),
		NoTxPool:              true,
		GasLimit:              &plan.gasLimit,
	}

	fcState := engine.ForkchoiceState{
		HeadBlockHash:      plan.parentHash,
		SafeBlockHash:      plan.parentHash,
		FinalizedBlockHash: plan.parentHash,
	}

	fcResult, err := p.engine.ForkchoiceUpdated(ctx, fcState, attrs)
	if err != nil {
		return nil, fmt.Errorf("proposer: forkchoiceUpdated (start): %w", err)
	}
	if fcResult.PayloadID == nil {
		return nil, Fatal(fmt.Errorf("proposer: forkchoiceUpdated returned no payloadId for block %d", plan.number))
	}

	envelope, err := p.engine.GetPayload(ctx, *fcResult.PayloadID, version)
	if err != nil {
		return nil, fmt.Errorf("proposer: getPayload: %w", err)
	}

	var payload executionPayload
	if err := json.Unmarshal(envelope.ExecutionPayload, &payload); err != nil {
		return nil, fmt.Errorf("proposer: decoding execution payload: %w", err)
	}

	warnOnUserTxMismatch(plan.userTxs, payload.Transactions)

	extra := []interface{}{}
	if version == 3 {
		extra = append(extra, []common.Hash{}, *plan.parentBeaconBlockRoot)
	}

	status, err := p.engine.NewPayload(ctx, envelope.ExecutionPayload, version, extra...)
	if err != nil {
		return nil, fmt.Errorf("proposer: newPayload: %w", err)
	}
	if !status.Valid() {
		return nil, Fatal(fmt.Errorf("proposer: newPayload rejected block %d: status=%s err=%v", plan.number, status.Status, status.ValidationError))
	}
	if status.LatestValidHash == nil || !hashMatches(*status.LatestValidHash, payload.BlockHash) {
		return nil, Fatal(fmt.Errorf("proposer: newPayload latestValidHash mismatch for block %d", plan.number))
	}

	finalResult, err := p.engine.ForkchoiceUpdated(ctx, engine.ForkchoiceState{
		HeadBlockHash:      payload.BlockHash,
		SafeBlockHash:      payload.BlockHash,
		FinalizedBlockHash: payload.BlockHash,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("proposer: forkchoiceUpdated (final): %w", err)
	}
	if !finalResult.PayloadStatus.Valid() || finalResult.PayloadStatus.LatestValidHash == nil ||
		!hashMatches(*finalResult.PayloadStatus.LatestValidHash, payload.BlockHash) {
		return nil, Fatal(fmt.Errorf("proposer: final forkchoiceUpdated did not confirm block %d as head", plan.number))
	}

	if err := p.checkRequiredSystemTxs(ctx, plan, systemTxs); err != nil {
		return nil, err
	}

	baseFee := uint64(0)
	if payload.BaseFeePerGas != nil {
		baseFee = (*big.Int)(payload.BaseFeePerGas).Uint64()
	}

	return &facettypes.L2Block{
		Number:         plan.number,
		Hash:           payload.BlockHash,
		ParentHash:     plan.parentHash,
		Timestamp:      plan.timestamp,
		BaseFeePerGas:  baseFee,
		PrevRandao:     plan.prevRandao,
		GasLimit:       uint64(payload.GasLimit),
		GasUsed:        uint64(payload.GasUsed),
		Transactions:   allTxs,
		Mint:           plan.mint,
		SourceL1Number: plan.l1BlockNumber,
	}, nil
}

// checkRequiredSystemTxs implements spec §4.7 step 4: the first V2 block's
// migration system transactions must have succeeded, or derivation is
// fatal. Skipped when not the migration block.
func (p *Proposer) checkRequiredSystemTxs(ctx context.Context, plan blockPlan, systemTxs []systemTx) error {
	if plan.number != p.spec.V1ToV2MigrationBlock {
		return nil
	}
	for _, tx := range systemTxs {
		if !tx.required {
			continue
		}
		ok, err := p.exec.TransactionReceiptStatus(ctx, tx.hash)
		if err != nil {
			return fmt.Errorf("proposer: checking required system tx %s: %w", tx.hash, err)
		}
		if !ok {
			return Fatal(fmt.Errorf("proposer: required system tx %s failed in block %d", tx.hash, plan.number))
		}
	}
	return nil
}

type executionPayload struct {
	BlockHash     common.Hash    `json:"blockHash"`
	GasLimit      hexutil.Uint64 `json:"gasLimit"`
	GasUsed       hexutil.Uint64 `json:"gasUsed"`
	Transactions  []string       `json:"transactions"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas"`
}

func hexEncodeAll(txs [][]byte) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = "0x" + hex.EncodeToString(tx)
	}
	return out
}

func hashMatches(hexHash string, h common.Hash) bool {
	return common.HexToHash(hexHash) == h
}

// warnOnUserTxMismatch logs, but does not fail derivation on, a submitted
// user transaction the engine silently dropped (spec §4.7 step 3: "the
// engine is authoritative over execution validity").
func warnOnUserTxMismatch(submitted [][]byte, returnedHex []string) {
	returned := make(map[common.Hash]bool, len(returnedHex))
	for _, hx := range returnedHex {
		raw, err := hex.DecodeString(trimHexPrefix(hx))
		if err != nil {
			continue
		}
		returned[crypto.Keccak256Hash(raw)] = true
	}
	for _, tx := range submitted {
		h := crypto.Keccak256Hash(tx)
		if !returned[h] {
			log.Warn("engine dropped submitted user transaction", "hash", h)
		}
	}
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
