// Package batch implements the wire-format scan and RLP decode described in
// spec §4.2: locate the magic prefix at any offset in carrier bytes, parse
// the fixed header, RLP-decode the transaction list, verify the signature
// on PRIORITY batches, and compute the content hash used for dedup.
//
// The parser is pure: it never looks up chain state, and every rejection is
// recoverable — scanning always continues past the offending bytes.
package batch

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	facettypes "github.com/facet-protocol/facet-node/core/types"
	"github.com/facet-protocol/facet-node/core/sigverify"
	"github.com/facet-protocol/facet-node/params"
)

// Parser scans carrier bytes for batches belonging to one configured
// chain id. It is stateless and safe for concurrent use.
type Parser struct {
	chainID uint64
}

// New returns a Parser configured for the given chain id. Batches declaring
// any other chain id are skipped (fast path, spec §4.2 step 2).
func New(chainID uint64) *Parser {
	return &Parser{chainID: chainID}
}

// Stats accumulates scan-level counters a caller may want to log or export
// as metrics; it is optional and purely additive.
type Stats struct {
	WrongChainID      int
	BadHeader         int
	BadLength         int
	BadRole           int
	BadRLP            int
	TooManyTxs        int
	SignatureRejected int
}

// Scan walks input from offset 0, returning every batch successfully
// parsed and verified, tagged with the given source and l1TxIndex. Stats
// records recoverable rejections; st may be nil.
func (p *Parser) Scan(input []byte, source facettypes.Source, l1TxIndex uint64, st *Stats) []facettypes.ParsedBatch {
	var out []facettypes.ParsedBatch
	offset := 0

	for len(out) < params.MaxBatchesPerPayload {
		magicAt := indexMagic(input, offset)
		if magicAt < 0 {
			break
		}

		batch, consumed, ok := p.parseOne(input[magicAt:], source, l1TxIndex, st)
		if !ok {
			// consumed is still meaningful: either the claimed length (to
			// avoid O(N^2) rescans) or a single byte.
			offset = magicAt + consumed
			continue
		}

		out = append(out, batch)
		offset = magicAt + consumed
	}

	return out
}

// ContainsMagic reports whether the batch magic prefix occurs anywhere in
// data. Used by core/collector to distinguish a legacy single (no magic)
// from calldata/log data that actually carries a batch.
func ContainsMagic(data []byte) bool {
	return indexMagic(data, 0) >= 0
}

// indexMagic finds the next occurrence of params.BatchMagic at or after
// offset, or -1 if there is none.
func indexMagic(input []byte, offset int) int {
	if offset >= len(input) {
		return -1
	}
	magic := params.BatchMagic[:]
	for i := offset; i+len(magic) <= len(input); i++ {
		if string(input[i:i+len(magic)]) == string(magic) {
			return i
		}
	}
	return -1
}

// parseOne attempts to parse exactly one batch starting at buf[0] (which is
// known to begin with the magic prefix). It returns the number of bytes to
// advance the scan by regardless of success, per the fast-skip contract in
// spec §4.2 step 7.
func (p *Parser) parseOne(buf []byte, source facettypes.Source, l1TxIndex uint64, st *Stats) (facettypes.ParsedBatch, int, bool) {
	if len(buf) < params.BatchMagicSize+params.BatchHeaderSize {
		return facettypes.ParsedBatch{}, 1, false
	}

	header := buf[params.BatchMagicSize : params.BatchMagicSize+params.BatchHeaderSize]
	chainID := binary.BigEndian.Uint64(header[0:8])
	version := header[8]
	role := facettypes.Role(header[9])
	length := binary.BigEndian.Uint32(header[10:14])

	headerEnd := params.BatchMagicSize + params.BatchHeaderSize

	if chainID != p.chainID {
		bump(st).WrongChainID++
		return facettypes.ParsedBatch{}, p.skipWidth(headerEnd, length, role), false
	}

	if version != params.BatchVersion {
		bump(st).BadHeader++
		return facettypes.ParsedBatch{}, p.skipWidth(headerEnd, length, role), false
	}

	if !role.Valid() {
		bump(st).BadRole++
		return facettypes.ParsedBatch{}, p.skipWidth(headerEnd, length, role), false
	}

	if length > params.MaxBatchBytes {
		bump(st).BadLength++
		return facettypes.ParsedBatch{}, p.skipWidth(headerEnd, length, role), false
	}

	sigLen := 0
	if role == facettypes.RolePriority {
		sigLen = params.BatchSignatureSize
	}

	need := headerEnd + int(length) + sigLen
	if len(buf) < need {
		bump(st).BadLength++
		return facettypes.ParsedBatch{}, p.skipWidth(headerEnd, length, role), false
	}

	rlpTxList := buf[headerEnd : headerEnd+int(length)]
	var sig []byte
	if sigLen > 0 {
		sig = buf[headerEnd+int(length) : need]
	}

	txs, err := decodeTxList(rlpTxList)
	if err != nil {
		bump(st).BadRLP++
		return facettypes.ParsedBatch{}, need, false
	}
	if len(txs) > params.MaxTxsPerBatch {
		bump(st).TooManyTxs++
		return facettypes.ParsedBatch{}, need, false
	}

	contentHash := computeContentHash(header, rlpTxList, sig)

	var signer *common.Address
	if role == facettypes.RolePriority {
		signedData := append(append([]byte{}, header[0:10]...), rlpTxList...)
		digest := crypto.Keccak256(signedData)
		var digest32 [32]byte
		copy(digest32[:], digest)

		recovered, err := sigverify.Recover(digest32, sig)
		if err != nil {
			bump(st).SignatureRejected++
			return facettypes.ParsedBatch{}, need, false
		}
		signer = &recovered
	}

	return facettypes.ParsedBatch{
		Role:         role,
		Signer:       signer,
		L1TxIndex:    l1TxIndex,
		Source:       source,
		ChainID:      chainID,
		Transactions: txs,
		ContentHash:  contentHash,
	}, need, true
}

// skipWidth returns how far to advance the scan offset when the batch is
// rejected for a reason that still left a legible length field: skip the
// whole claimed batch to avoid rescanning inside it (O(N) total work even
// under adversarial magic-prefix spam, spec §8 invariant 8). If role is
// invalid the signature length is unknowable, so it is conservatively
// assumed absent.
func (p *Parser) skipWidth(headerEnd int, length uint32, role facettypes.Role) int {
	sigLen := 0
	if role == facettypes.RolePriority {
		sigLen = params.BatchSignatureSize
	}
	return headerEnd + int(length) + sigLen
}

// decodeTxList RLP-decodes the transaction list: it must be a list whose
// elements are all byte-strings (raw EIP-2718 transaction bytes).
func decodeTxList(rlpBytes []byte) ([][]byte, error) {
	var txs [][]byte
	if err := rlp.DecodeBytes(rlpBytes, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// computeContentHash hashes the header (chain id, version, role — length is
// implied by rlpTxList's own length and is not separately hashed) together
// with the tx list and, when present, the signature. Including the
// signature makes two batches with identical tx lists but different
// signatures distinct.
func computeContentHash(header []byte, rlpTxList []byte, sig []byte) common.Hash {
	chainIDAndFlags := header[0:10] // chain_id(8) + version(1) + role(1)
	data := make([]byte, 0, len(chainIDAndFlags)+len(rlpTxList)+len(sig))
	data = append(data, chainIDAndFlags...)
	data = append(data, rlpTxList...)
	data = append(data, sig...)
	return crypto.Keccak256Hash(data)
}

// bump returns a non-nil Stats to record into: a caller-supplied st, or a
// throwaway one if the caller passed nil (stats are optional, spec §4.2
// never requires them).
func bump(st *Stats) *Stats {
	if st == nil {
		return &Stats{}
	}
	return st
}
