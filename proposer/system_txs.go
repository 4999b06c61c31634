package proposer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/params"
)

// systemTx pairs a raw deposit-style transaction with the bookkeeping the
// driver needs after submission: its hash, for the post-block required-tx
// check (spec §4.7 step 4).
type systemTx struct {
	raw      []byte
	hash     common.Hash
	required bool
}

// composeSystemTxs builds every system transaction that opens plan.number,
// in the fixed order spec §4.7 step 2 requires: L1 attributes always
// first, then migration transactions at the migration block, then the
// bluebird predeploy deployment/upgrade immediately before its fork block.
func (p *Proposer) composeSystemTxs(ctx context.Context, plan blockPlan) ([]systemTx, error) {
	nonce, err := p.exec.TransactionCount(ctx, params.SystemAddress, plan.number-1)
	if err != nil {
		return nil, fmt.Errorf("proposer: reading system account nonce: %w", err)
	}

	var txs []systemTx
	txs = append(txs, p.buildL1AttributesTx(plan, nonce))
	nonce++

	if plan.number == p.spec.V1ToV2MigrationBlock {
		migrationTxs, err := p.buildMigrationTxs(ctx, plan, nonce)
		if err != nil {
			return nil, err
		}
		txs = append(txs, migrationTxs...)
		nonce += uint64(len(migrationTxs))
	}

	if plan.number == p.spec.BluebirdForkBlock-1 {
		txs = append(txs, p.buildBluebirdTxs(plan, nonce)...)
	}

	return txs, nil
}

// buildL1AttributesTx is always the first transaction in every block (spec
// §3, §4.7 step 2): it carries the mint controller's state, except
// HalvingLevel, plus the L1 base fee the controller's rate was derived
// against.
func (p *Proposer) buildL1AttributesTx(plan blockPlan, nonce uint64) systemTx {
	data := l1AttributesCallData(plan.mint, plan.baseFee)
	return newSystemTx(plan.l1BlockNumber, "l1-attributes", nonce, &params.L1AttributesPredeployAddress, data, false)
}

// transactionsRequiredSelector is the migration-manager probe spec §4.7
// step 2 calls via eth_call to learn how many migration system
// transactions to append.
var transactionsRequiredSelector = crypto.Keccak256([]byte("transactionsRequired()"))[0:4]

// buildMigrationTxs reads transactionsRequired() from the migration
// manager and appends that many numbered migration system transactions,
// each invoking the manager's executeMigrationStep(uint256).
func (p *Proposer) buildMigrationTxs(ctx context.Context, plan blockPlan, startNonce uint64) ([]systemTx, error) {
	out, err := p.exec.Call(ctx, ethereum.CallMsg{
		To:   &params.MigrationManagerAddress,
		Data: transactionsRequiredSelector,
	}, plan.number-1)
	if err != nil {
		return nil, fmt.Errorf("proposer: transactionsRequired(): %w", err)
	}

	count, err := decodeUint256Result(out)
	if err != nil {
		return nil, fmt.Errorf("proposer: decoding transactionsRequired() result: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	log.Info("appending migration system transactions", "count", count, "block", plan.number)

	methodID := crypto.Keccak256([]byte("executeMigrationStep(uint256)"))[0:4]
	txs := make([]systemTx, count)
	for i := uint64(0); i < count; i++ {
		data := make([]byte, 4+32)
		copy(data[0:4], methodID)
		putUint256(data[4:36], new(big.Int).SetUint64(i))
		txs[i] = newSystemTx(plan.l1BlockNumber, fmt.Sprintf("migration-%d", i), startNonce+i, &params.MigrationManagerAddress, data, true)
	}
	return txs, nil
}

// buildBluebirdTxs redeploys and upgrades the L1-block predeploy
// immediately before the bluebird fork activates (spec §4.7 step 2).
func (p *Proposer) buildBluebirdTxs(plan blockPlan, startNonce uint64) []systemTx {
	deploy := newSystemTx(plan.l1BlockNumber, "bluebird-deploy", startNonce, nil, bluebirdInitCode(), false)
	upgrade := newSystemTx(plan.l1BlockNumber, "bluebird-upgrade", startNonce+1, &params.L1BlockPredeployAddress, bluebirdUpgradeCallData(), false)
	return []systemTx{deploy, upgrade}
}

// bluebirdInitCode and bluebirdUpgradeCallData are placeholders for the
// predeploy bytecode and proxy-upgrade call: the init code is empty and the
// upgrade call data is the bare upgradeTo(address) selector with no address
// argument. Neither is read from network configuration.
func bluebirdInitCode() []byte { return []byte{} }

func bluebirdUpgradeCallData() []byte {
	return crypto.Keccak256([]byte("upgradeTo(address)"))[0:4]
}

// newSystemTx builds a deposit-style system transaction and computes its
// hash from a source tag unique to (l1BlockNumber, tag), so replaying
// derivation reproduces an identical transaction hash.
func newSystemTx(l1BlockNumber uint64, tag string, nonce uint64, to *common.Address, data []byte, required bool) systemTx {
	sourceHash := crypto.Keccak256Hash(fmt.Appendf(nil, "%d:%s", l1BlockNumber, tag))
	tx := &facettypes.DepositTxData{
		SourceHash: sourceHash,
		From:       params.SystemAddress,
		To:         to,
		Nonce:      nonce,
		Mint:       big.NewInt(0),
		Value:      big.NewInt(0),
		GasLimit:   1_000_000,
		IsSystemTx: true,
		Data:       data,
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		// Deterministic inputs only; MarshalBinary can only fail on an RLP
		// encoding bug, which a panic surfaces immediately during testing.
		panic(fmt.Sprintf("proposer: marshaling system tx %s: %v", tag, err))
	}
	return systemTx{raw: raw, hash: crypto.Keccak256Hash(raw), required: required}
}

// decodeUint256Result decodes a single uint256 return value from an
// eth_call result using go-ethereum's ABI package, the same decoder
// core/vm/contracts_rollup.go uses for precompile return values.
func decodeUint256Result(out []byte) (uint64, error) {
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return 0, err
	}
	args := abi.Arguments{{Type: uint256Ty}}
	values, err := args.Unpack(out)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("expected 1 return value, got %d", len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected return type %T", values[0])
	}
	return v.Uint64(), nil
}
