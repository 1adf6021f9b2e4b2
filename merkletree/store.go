package merkletree

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"umbra-core/kv"
	"umbra-core/wire"
)

// Store persists forest state through the kv.Store capability, under the
// namespaced keys spec.md §6 defines: merkle/<chainKey>/<tree>/<level>/<index>
// for nodes and merkle/<chainKey>/<tree>/meta for per-tree bookkeeping.
// Grounded on database/storage.go's bbolt bucket/key conventions,
// generalized from one flat "blocks" bucket to kv.Store's namespaced
// byte-slice keys, and from encoding/gob block serialization to gob
// encoding of the small tree-meta struct below.
type Store struct {
	backing kv.Store
}

// NewStore wraps an existing kv.Store capability.
func NewStore(backing kv.Store) *Store {
	return &Store{backing: backing}
}

type treeMeta struct {
	NextIndex uint64
	Root      wire.Hash
	Sealed    bool
}

func nodeKeyBytes(chainKey string, treeNumber uint64, level uint32, index uint64) []byte {
	return []byte(fmt.Sprintf("merkle/%s/%d/%d/%d", chainKey, treeNumber, level, index))
}

func metaKeyBytes(chainKey string, treeNumber uint64) []byte {
	return []byte(fmt.Sprintf("merkle/%s/%d/meta", chainKey, treeNumber))
}

// saveTree flushes exactly the node keys touched by one batch plus the
// tree's updated meta in a single kv.Store batch, so a reader never
// observes a root without its supporting nodes (spec.md §5's "tree
// write" invariant).
func (s *Store) saveTree(chainKey string, t *Tree, touched []nodeKey) error {
	if s == nil {
		return nil
	}

	ops := make([]kv.Op, 0, len(touched)+1)
	for _, k := range touched {
		h, ok := t.node(k.level, k.index)
		if !ok {
			continue
		}
		hv := h
		ops = append(ops, kv.Op{Key: nodeKeyBytes(chainKey, t.Number, k.level, k.index), Value: hv[:]})
	}

	var buf bytes.Buffer
	meta := treeMeta{NextIndex: t.NextIndex, Root: t.Root, Sealed: t.Sealed}
	if err := gob.NewEncoder(&buf).Encode(meta); err != nil {
		return fmt.Errorf("merkletree: encode meta: %w", err)
	}
	ops = append(ops, kv.Op{Key: metaKeyBytes(chainKey, t.Number), Value: buf.Bytes()})

	if err := s.backing.Batch(context.Background(), ops); err != nil {
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	return nil
}

// LoadForest rebuilds a Forest for chainKey from persisted state,
// reading every tree's meta and node rows under merkle/<chainKey>/.
func LoadForest(ctx context.Context, chainKey string, depth uint32, backing kv.Store, validator RootValidator) (*Forest, error) {
	store := NewStore(backing)
	f := NewForest(chainKey, depth, store, validator)

	prefix := []byte(fmt.Sprintf("merkle/%s/", chainKey))
	it, err := backing.Iterator(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	defer it.Close()

	metaKeys := make(map[uint64][]byte)
	nodeRows := make(map[uint64]map[uint32]map[uint64]wire.Hash)

	for it.Next() {
		kvPair := it.KeyValue()
		var treeNumber uint64
		var level uint32
		var index uint64
		var isMeta bool
		if n, _ := fmt.Sscanf(string(kvPair.Key), "merkle/"+chainKey+"/%d/meta", &treeNumber); n == 1 {
			isMeta = true
		} else if n, _ := fmt.Sscanf(string(kvPair.Key), "merkle/"+chainKey+"/%d/%d/%d", &treeNumber, &level, &index); n != 3 {
			continue
		}

		if isMeta {
			metaKeys[treeNumber] = kvPair.Value
			continue
		}

		rows, ok := nodeRows[treeNumber]
		if !ok {
			rows = make(map[uint32]map[uint64]wire.Hash)
			nodeRows[treeNumber] = rows
		}
		row, ok := rows[level]
		if !ok {
			row = make(map[uint64]wire.Hash)
			rows[level] = row
		}
		var h wire.Hash
		copy(h[:], kvPair.Value)
		row[index] = h
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}

	for treeNumber, raw := range metaKeys {
		var meta treeMeta
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&meta); err != nil {
			return nil, fmt.Errorf("merkletree: decode meta for tree %d: %w", treeNumber, err)
		}
		t := f.treeOrNew(treeNumber)
		t.NextIndex = meta.NextIndex
		t.Root = meta.Root
		t.Sealed = meta.Sealed
		t.historicalRoots[meta.Root] = struct{}{}
		if rows, ok := nodeRows[treeNumber]; ok {
			t.nodes = rows
		}
	}

	return f, nil
}
