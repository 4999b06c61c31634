// Package collector implements the per-L1-block enumeration described in
// spec §4.4: walk an L1 block's transactions and logs for legacy singles
// and batches in calldata, walk its blob sidecars for batches, then
// deduplicate by content hash.
package collector

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/facet-protocol/facet-node/core/batch"
	"github.com/facet-protocol/facet-node/core/blob"
	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/params"
)

// BlobProvider fetches blob bytes for a versioned hash. Implemented by the
// beacon package; kept as an interface here so the collector stays a pure,
// side-effect-free consumer aside from this one collaborator call (spec
// §4.4: "the collector is side-effect free aside from provider calls").
type BlobProvider interface {
	FetchBlob(ctx context.Context, versionedHash common.Hash) ([]byte, bool, error)
}

// Stats summarizes one L1 block's collection pass.
type Stats struct {
	SinglesCalldata int
	SinglesEvent    int
	BatchesCalldata int
	BatchesBlob     int
	MissingBlobs    int
	Duplicates      int
	ParseStats      batch.Stats
}

// Result is the output of collecting one L1 block: every legacy single, in
// transaction order, and every deduplicated batch, sorted by L1TxIndex
// ascending (BlockBuilder imposes the final ordering).
type Result struct {
	Singles []facettypes.FacetSingleV1
	Batches []facettypes.ParsedBatch
	Stats   Stats
}

// Collector enumerates singles and batches out of one L1 block at a time.
type Collector struct {
	parser       *batch.Parser
	blobProvider BlobProvider
}

func New(chainID uint64, blobProvider BlobProvider) *Collector {
	return &Collector{
		parser:       batch.New(chainID),
		blobProvider: blobProvider,
	}
}

// Collect walks block b and returns every single and deduplicated batch it
// carries. ctx bounds the blob-fetch calls only; the scan itself is pure
// and unbounded by context.
func (c *Collector) Collect(ctx context.Context, b *facettypes.L1Block) Result {
	var singles []facettypes.FacetSingleV1
	var batches []facettypes.ParsedBatch
	var st Stats

	receiptByHash := make(map[common.Hash]facettypes.L1Receipt, len(b.Receipts))
	for _, r := range b.Receipts {
		receiptByHash[r.TxHash] = r
	}

	eventFound := make(map[common.Hash]bool) // first-log-wins, keyed by carrier tx hash

	for _, tx := range b.Transactions {
		receipt, ok := receiptByHash[tx.Hash]
		if !ok || !receipt.Success {
			continue
		}

		if tx.To != nil && *tx.To == params.FacetInboxAddress && !batch.ContainsMagic(tx.Input) {
			singles = append(singles, facettypes.FacetSingleV1{
				Source:    facettypes.SourceCalldata,
				L1TxIndex: tx.TxIndex,
				L1TxHash:  tx.Hash,
				From:      tx.From,
				Payload:   tx.Input,
			})
			st.SinglesCalldata++
		}

		batches = append(batches, c.parser.Scan(tx.Input, facettypes.SourceCalldata, tx.TxIndex, &st.ParseStats)...)

		for _, l := range receipt.Logs {
			if eventFound[tx.Hash] {
				break // V1 protocol rule: only the first qualifying log per carrier tx
			}
			if len(l.Topics) != 1 || l.Topics[0] != params.FacetLogTopic {
				continue
			}
			if batch.ContainsMagic(l.Data) {
				// V2 batches live only in calldata and blobs, never events
				// (spec §9c); a batch-shaped log is simply ignored.
				continue
			}

			singles = append(singles, facettypes.FacetSingleV1{
				Source:    facettypes.SourceEvent,
				L1TxIndex: tx.TxIndex,
				L1TxHash:  tx.Hash,
				From:      l.Address,
				Payload:   l.Data,
			})
			eventFound[tx.Hash] = true
			st.SinglesEvent++
		}

		if tx.IsBlobCarrier() {
			for _, vh := range tx.BlobVersionedHash {
				blobBytes, found, err := c.blobProvider.FetchBlob(ctx, vh)
				if err != nil || !found {
					st.MissingBlobs++
					log.Warn("missing blob for carrier transaction", "l1_tx", tx.Hash, "versioned_hash", vh, "err", err)
					continue
				}

				decoded, err := blob.Decode(blobBytes)
				if err != nil {
					log.Warn("failed to decode blob", "l1_tx", tx.Hash, "versioned_hash", vh, "err", err)
					continue
				}

				found2 := c.parser.Scan(decoded, facettypes.SourceBlob, tx.TxIndex, &st.ParseStats)
				batches = append(batches, found2...)
				st.BatchesBlob += len(found2)
			}
		}
	}

	// Tally calldata batches now that every transaction has been scanned.
	st.BatchesCalldata = 0
	for _, bt := range batches {
		if bt.Source == facettypes.SourceCalldata {
			st.BatchesCalldata++
		}
	}
	batches, st.Duplicates = deduplicate(batches)

	return Result{Singles: singles, Batches: batches, Stats: st}
}

// deduplicate groups batches by content hash, keeping the one with the
// smallest L1TxIndex, then returns survivors sorted by L1TxIndex ascending
// (spec §4.4 step 4, §8 invariant 7).
func deduplicate(batches []facettypes.ParsedBatch) ([]facettypes.ParsedBatch, int) {
	best := make(map[common.Hash]facettypes.ParsedBatch, len(batches))
	duplicates := 0

	for _, b := range batches {
		existing, ok := best[b.ContentHash]
		if !ok || b.L1TxIndex < existing.L1TxIndex {
			if ok {
				duplicates++
			}
			best[b.ContentHash] = b
		} else {
			duplicates++
		}
	}

	survivors := make([]facettypes.ParsedBatch, 0, len(best))
	for _, b := range best {
		survivors = append(survivors, b)
	}
	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].L1TxIndex < survivors[j].L1TxIndex
	})

	return survivors, duplicates
}

