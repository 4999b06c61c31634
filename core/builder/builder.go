// Package builder implements the BlockBuilder described in spec §4.5:
// given one L1 block's collected singles and batches, produce the final,
// ordered list of L2 transaction payloads for that block.
package builder

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/facet-protocol/facet-node/core/txdecode"
	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/params"
)

// AuthorizedSignerRegistry resolves the signer authorized to post priority
// batches at a given L1 block number. Implementations back this with one of
// the PRIORITY_REGISTRY_MODE variants (env, static, rotation, mapping,
// disabled); disabled returns ok == false, which makes every priority batch
// ineligible.
type AuthorizedSignerRegistry interface {
	AuthorizedSigner(l1BlockNumber uint64) (signer common.Address, ok bool)
}

// Builder produces the ordered transaction list for one L2 block.
type Builder struct {
	chainID  uint64
	registry AuthorizedSignerRegistry

	// VerifySignatures toggles whether a priority batch's recovered signer
	// is checked against the registry at all (ENABLE_SIG_VERIFY).
	VerifySignatures bool
}

func New(chainID uint64, registry AuthorizedSignerRegistry, verifySignatures bool) *Builder {
	return &Builder{chainID: chainID, registry: registry, VerifySignatures: verifySignatures}
}

// Build orders singles and batches into the transaction payload list that
// goes into the L2 block for L1 block number l1BlockNumber, subject to
// l2GasLimit (spec §4.5).
func (b *Builder) Build(l1BlockNumber, l2GasLimit uint64, singles []facettypes.FacetSingleV1, batches []facettypes.ParsedBatch) [][]byte {
	priority, rest := b.selectPriority(l1BlockNumber, l2GasLimit, batches)

	var ordered [][]byte
	if priority != nil {
		ordered = append(ordered, filterZeroGas(priority.Transactions, b.chainID)...)
	}

	ordered = append(ordered, b.permissionless(rest, singles)...)

	return ordered
}

// selectPriority implements spec §4.5 step 1: pick the best eligible
// PRIORITY batch, validate its gas share, and return the remaining batches
// unselected (rejected priority batches are never readmitted as
// permissionless; spec §9 dedup rule extends to priority selection too).
func (b *Builder) selectPriority(l1BlockNumber, l2GasLimit uint64, batches []facettypes.ParsedBatch) (selected *facettypes.ParsedBatch, rest []facettypes.ParsedBatch) {
	var candidates []facettypes.ParsedBatch
	for _, bt := range batches {
		if bt.Role != facettypes.RolePriority {
			rest = append(rest, bt)
			continue
		}

		if b.VerifySignatures {
			authorized, ok := b.registry.AuthorizedSigner(l1BlockNumber)
			if !ok || bt.Signer == nil || *bt.Signer != authorized {
				log.Warn("discarding priority batch from unauthorized signer", "l1_block", l1BlockNumber, "l1_tx_index", bt.L1TxIndex)
				continue
			}
		}
		candidates = append(candidates, bt)
	}

	if len(candidates) == 0 {
		return nil, rest
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].L1TxIndex < candidates[j].L1TxIndex })
	best := candidates[0]

	if !b.withinGasShare(best, l2GasLimit) {
		log.Warn("discarding priority batch over gas share", "l1_block", l1BlockNumber, "l1_tx_index", best.L1TxIndex)
		return nil, rest
	}

	return &best, rest
}

// withinGasShare sums the declared gas limit of batch's transactions and
// compares it against (l2GasLimit * PRIORITY_SHARE_BPS) / 10_000 (spec §4.5
// step 1, scenario S5).
func (b *Builder) withinGasShare(batch facettypes.ParsedBatch, l2GasLimit uint64) bool {
	allowance := (l2GasLimit * params.PriorityShareBPS) / 10_000

	var total uint64
	for _, raw := range batch.Transactions {
		parsed, _ := txdecode.Parse(raw, b.chainID)
		total += parsed.GasLimit
	}

	return total <= allowance
}

// permissionless implements spec §4.5 step 2-3: union the non-priority
// batches and every single, ordered by l1_tx_index, unwrapping batches into
// their transactions and synthesizing one transaction per single. The zero
// gas filter (step 4) is scoped to batch-sourced transactions only: singles
// carry the Facet type tag (0x7E), which txdecode.Parse's vanilla EIP-2718
// decoder never recognizes, so running them through it would zero out and
// drop every single unconditionally.
func (b *Builder) permissionless(batches []facettypes.ParsedBatch, singles []facettypes.FacetSingleV1) [][]byte {
	type item struct {
		l1TxIndex uint64
		txs       [][]byte
	}

	items := make([]item, 0, len(batches)+len(singles))
	for _, bt := range batches {
		items = append(items, item{l1TxIndex: bt.L1TxIndex, txs: filterZeroGas(bt.Transactions, b.chainID)})
	}
	for _, s := range singles {
		items = append(items, item{l1TxIndex: s.L1TxIndex, txs: [][]byte{synthesize(s)}})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].l1TxIndex < items[j].l1TxIndex })

	var out [][]byte
	for _, it := range items {
		out = append(out, it.txs...)
	}
	return out
}

// synthesize builds the transaction byte payload for a legacy single. The
// payload carried by FacetSingleV1 already IS the transaction bytes; what
// changes by source is only the effective sender, which downstream
// transaction decode attributes via origin rather than by re-signing here
// (calldata singles are sender-attributed to the L1 sender, event singles to
// the log-emitting contract address — spec §4.5 step 3).
func synthesize(s facettypes.FacetSingleV1) []byte {
	return s.Payload
}

// filterZeroGas drops any transaction whose parsed gas limit is zero (spec
// §4.5 step 4), including transactions that failed to parse entirely
// (txdecode.Parse downgrades those to gas limit 0).
func filterZeroGas(txs [][]byte, chainID uint64) [][]byte {
	out := make([][]byte, 0, len(txs))
	for _, raw := range txs {
		parsed, err := txdecode.Parse(raw, chainID)
		if err != nil {
			log.Warn("dropping transaction that failed to parse", "err", err)
			continue
		}
		if parsed.GasLimit == 0 {
			log.Warn("dropping zero gas limit transaction", "hash", parsed.Hash)
			continue
		}
		out = append(out, raw)
	}
	return out
}
