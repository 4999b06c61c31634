// Package storage persists L1Block and L2Block records (spec §6:
// "Persistence (producer)"). Keys are big-endian block numbers prefixed by
// a short entity tag, RLP-encoded values, mirroring the
// prefix-plus-big-endian-key convention in
// core/rawdb/accessors_chain_rollup.go and schema_rollup.go. Backed by
// github.com/syndtr/goleveldb, the embedded key-value store this codebase's
// ecosystem uses when it is not running against go-ethereum's own pebble
// freezer — chosen here over cockroachdb/pebble because this is a single
// small append-mostly keyspace, not a full state trie.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	facettypes "github.com/facet-protocol/facet-node/core/types"
)

var (
	l1BlockPrefix = []byte("l1")
	l2BlockPrefix = []byte("l2")

	ErrNotFound = errors.New("storage: record not found")
)

func l1Key(number uint64) []byte { return append(append([]byte{}, l1BlockPrefix...), encodeNumber(number)...) }
func l2Key(number uint64) []byte { return append(append([]byte{}, l2BlockPrefix...), encodeNumber(number)...) }

func encodeNumber(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return buf[:]
}

func orZeroHash(h *common.Hash) common.Hash {
	if h == nil {
		return common.Hash{}
	}
	return *h
}

// Store is the append-only, reorg-aware persistence layer the derivation
// loop reads its tip from and writes every derived block to.
type Store struct {
	db *leveldb.DB
}

func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// PutL1Block stores the L1 header fields for b.Number.
func (s *Store) PutL1Block(b *facettypes.L1Block) error {
	enc, err := rlp.EncodeToBytes(l1BlockRLP{
		Number:                b.Number,
		Hash:                  b.Hash,
		ParentHash:            b.ParentHash,
		Timestamp:             b.Timestamp,
		BaseFeePerGas:         b.BaseFeePerGas,
		MixHash:               b.MixHash,
		ParentBeaconBlockRoot: orZeroHash(b.ParentBeaconBlockRoot),
		HasBeaconRoot:         b.ParentBeaconBlockRoot != nil,
	})
	if err != nil {
		return err
	}
	return s.db.Put(l1Key(b.Number), enc, nil)
}

// GetL1Block retrieves the L1 header fields stored for number.
func (s *Store) GetL1Block(number uint64) (*facettypes.L1Block, error) {
	raw, err := s.db.Get(l1Key(number), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var dec l1BlockRLP
	if err := rlp.DecodeBytes(raw, &dec); err != nil {
		return nil, err
	}

	b := &facettypes.L1Block{
		Number:        dec.Number,
		Hash:          dec.Hash,
		ParentHash:    dec.ParentHash,
		Timestamp:     dec.Timestamp,
		BaseFeePerGas: dec.BaseFeePerGas,
		MixHash:       dec.MixHash,
	}
	if dec.HasBeaconRoot {
		root := dec.ParentBeaconBlockRoot
		b.ParentBeaconBlockRoot = &root
	}
	return b, nil
}

// PutL2Block stores a fully assembled L2 block, including its embedded
// mint state, keyed by block number.
func (s *Store) PutL2Block(b *facettypes.L2Block) error {
	enc, err := rlp.EncodeToBytes(l2BlockRLP{
		Number:         b.Number,
		Hash:           b.Hash,
		ParentHash:     b.ParentHash,
		Timestamp:      b.Timestamp,
		BaseFeePerGas:  b.BaseFeePerGas,
		PrevRandao:     b.PrevRandao,
		ExtraData:      b.ExtraData,
		GasLimit:       b.GasLimit,
		GasUsed:        b.GasUsed,
		Transactions:   b.Transactions,
		Mint:           newMintRLP(b.Mint),
		SourceL1Number: b.SourceL1Number,
	})
	if err != nil {
		return err
	}
	return s.db.Put(l2Key(b.Number), enc, nil)
}

// GetL2Block retrieves the L2 block stored for number.
func (s *Store) GetL2Block(number uint64) (*facettypes.L2Block, error) {
	raw, err := s.db.Get(l2Key(number), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var dec l2BlockRLP
	if err := rlp.DecodeBytes(raw, &dec); err != nil {
		return nil, err
	}

	return &facettypes.L2Block{
		Number:         dec.Number,
		Hash:           dec.Hash,
		ParentHash:     dec.ParentHash,
		Timestamp:      dec.Timestamp,
		BaseFeePerGas:  dec.BaseFeePerGas,
		PrevRandao:     dec.PrevRandao,
		ExtraData:      dec.ExtraData,
		GasLimit:       dec.GasLimit,
		GasUsed:        dec.GasUsed,
		Transactions:   dec.Transactions,
		Mint:           dec.Mint.toDomain(),
		SourceL1Number: dec.SourceL1Number,
	}, nil
}

// HeadL2Block returns the highest-numbered stored L2 block, or ErrNotFound
// if none has been persisted yet. The pipeline uses this to resume
// derivation after a restart without needing a separate head-pointer key.
func (s *Store) HeadL2Block() (*facettypes.L2Block, error) {
	iter := s.db.NewIterator(util.BytesPrefix(l2BlockPrefix), nil)
	defer iter.Release()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	var dec l2BlockRLP
	if err := rlp.DecodeBytes(iter.Value(), &dec); err != nil {
		return nil, err
	}

	return &facettypes.L2Block{
		Number:         dec.Number,
		Hash:           dec.Hash,
		ParentHash:     dec.ParentHash,
		Timestamp:      dec.Timestamp,
		BaseFeePerGas:  dec.BaseFeePerGas,
		PrevRandao:     dec.PrevRandao,
		ExtraData:      dec.ExtraData,
		GasLimit:       dec.GasLimit,
		GasUsed:        dec.GasUsed,
		Transactions:   dec.Transactions,
		Mint:           dec.Mint.toDomain(),
		SourceL1Number: dec.SourceL1Number,
	}, nil
}

// TruncateFrom deletes every L1Block numbered >= from and every L2Block
// whose SourceL1Number >= from, the reorg-handling step spec §6 requires
// before re-deriving past a divergence point. L2 numbers are not compared
// directly against from: filler blocks mean many L2 blocks can share one
// SourceL1Number, so an L1 divergence point does not translate to the same
// numeric threshold in the L2 keyspace.
func (s *Store) TruncateFrom(from uint64) error {
	batch := new(leveldb.Batch)

	l1Iter := s.db.NewIterator(util.BytesPrefix(l1BlockPrefix), nil)
	for l1Iter.Next() {
		key := l1Iter.Key()
		number := binary.BigEndian.Uint64(key[len(l1BlockPrefix):])
		if number >= from {
			batch.Delete(append([]byte{}, key...))
		}
	}
	l1Iter.Release()
	if err := l1Iter.Error(); err != nil {
		return err
	}

	l2Iter := s.db.NewIterator(util.BytesPrefix(l2BlockPrefix), nil)
	for l2Iter.Next() {
		var dec l2BlockRLP
		if err := rlp.DecodeBytes(l2Iter.Value(), &dec); err != nil {
			l2Iter.Release()
			return err
		}
		if dec.SourceL1Number >= from {
			batch.Delete(append([]byte{}, l2Iter.Key()...))
		}
	}
	l2Iter.Release()
	if err := l2Iter.Error(); err != nil {
		return err
	}

	if batch.Len() == 0 {
		return nil
	}
	log.Warn("truncating persisted blocks for reorg", "from", from, "deleted", batch.Len())
	return s.db.Write(batch, nil)
}

