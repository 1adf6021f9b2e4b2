// Package merkletree implements the append-only Poseidon commitment forest
// that mirrors a shielded pool's on-chain Merkle tree, one forest per
// chain. Generalized from blockchain/shielded_pool.go's ShieldedPool,
// which tracked commitments as a flat slice and returned its last entry
// as the "root"; here each tree is a real depth-16 incremental Merkle
// tree with queued insertion, rollover, and historical root acceptance.
package merkletree

import (
	"sort"
	"sync"

	"umbra-core/wire"
)

// DefaultDepth is the tree depth spec.md's protocol uses: 2^16 leaves per
// tree before rollover.
const DefaultDepth = 16

// RootValidator is called with a freshly recomputed root after a batch of
// leaves commits. Returning false rolls the batch back and surfaces
// wire.ErrRootValidationFailed, modeling an on-chain oracle rejecting a
// root the mirror computed independently.
type RootValidator func(chainKey string, treeNumber uint64, root wire.Hash) bool

// Tree is one depth-`Depth` incremental Merkle tree: a leaf is written
// once and never rewritten; the internal nodes on a new leaf's path to
// the root are recomputed each time a batch commits.
type Tree struct {
	Number    uint64
	Depth     uint32
	NextIndex uint64
	Root      wire.Hash
	Sealed    bool

	nodes           map[uint32]map[uint64]wire.Hash
	historicalRoots map[wire.Hash]struct{}
}

func newTree(number uint64, depth uint32, zeroRoot wire.Hash) *Tree {
	t := &Tree{
		Number:          number,
		Depth:           depth,
		NextIndex:       0,
		Root:            zeroRoot,
		nodes:           make(map[uint32]map[uint64]wire.Hash),
		historicalRoots: make(map[wire.Hash]struct{}),
	}
	t.historicalRoots[zeroRoot] = struct{}{}
	return t
}

// capacity is the number of leaves this tree can hold before rollover.
func (t *Tree) capacity() uint64 {
	return uint64(1) << t.Depth
}

func (t *Tree) node(level uint32, index uint64) (wire.Hash, bool) {
	lvl, ok := t.nodes[level]
	if !ok {
		return wire.Hash{}, false
	}
	h, ok := lvl[index]
	return h, ok
}

func (t *Tree) setNode(level uint32, index uint64, h wire.Hash) {
	lvl, ok := t.nodes[level]
	if !ok {
		lvl = make(map[uint64]wire.Hash)
		t.nodes[level] = lvl
	}
	lvl[index] = h
}

// MerkleProof is the sibling path returned by Forest.GetProof.
type MerkleProof struct {
	TreeNumber   uint64
	LeafIndex    uint64
	PathElements []wire.Hash
	PathIndices  []bool // false = sibling is right child, true = sibling is left child
	Root         wire.Hash
}

// Forest holds every tree observed for one chain, plus the leaves queued
// but not yet committed by UpdateTrees.
type Forest struct {
	mu sync.Mutex

	chainKey   string
	depth      uint32
	zeroHashes []wire.Hash // zeroHashes[i] is the value of an empty subtree of height i

	trees   map[uint64]*Tree
	pending map[uint64]map[uint64]wire.Hash // treeNumber -> leafIndex -> commitment

	validator RootValidator
	persist   *Store
}

// NewForest constructs an empty forest for chainKey. persist may be nil,
// in which case the forest is purely in-memory (used by tests that don't
// need durability). validator may be nil to accept every recomputed root
// unconditionally.
func NewForest(chainKey string, depth uint32, persist *Store, validator RootValidator) *Forest {
	if depth == 0 {
		depth = DefaultDepth
	}
	return &Forest{
		chainKey:   chainKey,
		depth:      depth,
		zeroHashes: computeZeroHashes(depth),
		trees:      make(map[uint64]*Tree),
		pending:    make(map[uint64]map[uint64]wire.Hash),
		validator:  validator,
		persist:    persist,
	}
}

func computeZeroHashes(depth uint32) []wire.Hash {
	zero := make([]wire.Hash, depth+1)
	zero[0] = wire.Hash{}
	for i := uint32(1); i <= depth; i++ {
		zero[i] = wire.PoseidonHash(zero[i-1].FieldElement(), zero[i-1].FieldElement())
	}
	return zero
}

func (f *Forest) treeOrNew(number uint64) *Tree {
	t, ok := f.trees[number]
	if !ok {
		t = newTree(number, f.depth, f.zeroHashes[f.depth])
		f.trees[number] = t
	}
	return t
}

// QueueLeaves records pending leaves for treeNumber starting at
// startIndex. Leaves are not committed until UpdateTrees runs. A leaf
// index already below the tree's NextIndex is dropped silently (it was
// already committed; rescans are idempotent). A duplicate queued leaf for
// the same index must match byte-for-byte or wire.ErrConflictingLeaf is
// returned. A zero-hash commitment is rejected outright.
func (f *Forest) QueueLeaves(treeNumber, startIndex uint64, commitments []wire.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.treeOrNew(treeNumber)
	queue, ok := f.pending[treeNumber]
	if !ok {
		queue = make(map[uint64]wire.Hash)
		f.pending[treeNumber] = queue
	}

	for i, cm := range commitments {
		if cm.IsZero() {
			return wire.ErrZeroCommitment
		}
		idx := startIndex + uint64(i)
		if idx < t.NextIndex {
			continue
		}
		if existing, ok := queue[idx]; ok {
			if existing != cm {
				return wire.ErrConflictingLeaf
			}
			continue
		}
		queue[idx] = cm
	}
	return nil
}

// UpdateTrees commits every contiguous prefix of queued leaves, in
// ascending tree-number order, recomputing affected internal nodes
// bottom-up with the zero-subtree precomputed per level. A write that
// would exceed a tree's capacity seals it at capacity and continues the
// remainder, if any, in treeNumber+1. If the injected validator rejects
// a recomputed root, the whole batch for that tree is rolled back and
// wire.ErrRootValidationFailed is returned; trees processed earlier in
// this call remain committed.
func (f *Forest) UpdateTrees() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	numbers := make([]uint64, 0, len(f.pending))
	for n := range f.pending {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	for _, number := range numbers {
		if err := f.updateOneTree(number); err != nil {
			return err
		}
	}
	return nil
}

func (f *Forest) updateOneTree(number uint64) error {
	t := f.treeOrNew(number)
	queue := f.pending[number]

	leaves, consumed := contiguousPrefix(queue, t.NextIndex)
	if len(leaves) == 0 {
		return nil
	}

	capacity := t.capacity()
	fit := leaves
	overflow := []wire.Hash(nil)
	if t.NextIndex+uint64(len(leaves)) > capacity {
		n := capacity - t.NextIndex
		fit = leaves[:n]
		overflow = leaves[n:]
	}

	writeStart := t.NextIndex
	prevRoot := t.Root
	root, touched := f.applyBatch(t, fit)

	if f.validator != nil && !f.validator(f.chainKey, number, root) {
		f.rollbackBatch(t, touched, writeStart, prevRoot, root)
		return wire.ErrRootValidationFailed
	}

	for _, idx := range consumed[:len(fit)] {
		delete(queue, idx)
	}

	if f.persist != nil {
		if err := f.persist.saveTree(f.chainKey, t, touched); err != nil {
			return err
		}
	}

	if t.NextIndex >= capacity {
		t.Sealed = true
		if len(overflow) > 0 {
			nextQueue, ok := f.pending[number+1]
			if !ok {
				nextQueue = make(map[uint64]wire.Hash)
				f.pending[number+1] = nextQueue
			}
			next := f.treeOrNew(number + 1)
			for i, cm := range overflow {
				idx := next.NextIndex + uint64(i)
				if _, ok := nextQueue[idx]; !ok {
					nextQueue[idx] = cm
				}
				delete(queue, consumed[len(fit)+i])
			}
			return f.updateOneTree(number + 1)
		}
	}
	return nil
}

// contiguousPrefix returns, in index order, the longest run of leaves in
// queue starting exactly at from, plus the absolute indices consumed.
func contiguousPrefix(queue map[uint64]wire.Hash, from uint64) ([]wire.Hash, []uint64) {
	var leaves []wire.Hash
	var indices []uint64
	idx := from
	for {
		cm, ok := queue[idx]
		if !ok {
			break
		}
		leaves = append(leaves, cm)
		indices = append(indices, idx)
		idx++
	}
	return leaves, indices
}

// nodeKey identifies one (level, index) node touched by a batch, so a
// rejected root can be rolled back by deleting exactly what was added.
type nodeKey struct {
	level uint32
	index uint64
}

// applyBatch writes leaves starting at t.NextIndex and recomputes
// ancestors bottom-up. It mutates t directly (NextIndex, Root,
// historicalRoots, nodes) and returns the new root plus every node key
// it wrote, so the caller can undo the write if the root is rejected.
func (f *Forest) applyBatch(t *Tree, leaves []wire.Hash) (wire.Hash, []nodeKey) {
	start := t.NextIndex
	var written []nodeKey

	touched := make(map[uint64]struct{}, len(leaves))
	for i, leaf := range leaves {
		idx := start + uint64(i)
		t.setNode(0, idx, leaf)
		written = append(written, nodeKey{0, idx})
		touched[idx] = struct{}{}
	}

	for level := uint32(0); level < t.Depth; level++ {
		parents := make(map[uint64]struct{})
		for idx := range touched {
			parents[idx/2] = struct{}{}
		}
		for parent := range parents {
			leftIdx, rightIdx := parent*2, parent*2+1
			left := f.childOrZero(t, level, leftIdx)
			right := f.childOrZero(t, level, rightIdx)
			t.setNode(level+1, parent, wire.PoseidonHash(left.FieldElement(), right.FieldElement()))
			written = append(written, nodeKey{level + 1, parent})
		}
		touched = parents
	}

	t.NextIndex = start + uint64(len(leaves))
	root, ok := t.node(t.Depth, 0)
	if !ok {
		root = f.zeroHashes[t.Depth]
	}
	t.Root = root
	t.historicalRoots[root] = struct{}{}
	return root, written
}

// rollbackBatch undoes applyBatch's mutations after a validator rejects
// the recomputed root.
func (f *Forest) rollbackBatch(t *Tree, written []nodeKey, prevNextIndex uint64, prevRoot, rejectedRoot wire.Hash) {
	for _, k := range written {
		if lvl, ok := t.nodes[k.level]; ok {
			delete(lvl, k.index)
		}
	}
	// Internal nodes that already covered committed leaves were overwritten
	// by the batch; written is ordered by level, so recomputing them from
	// their children in that order restores their previous values.
	for _, k := range written {
		if k.level == 0 || k.index<<k.level >= prevNextIndex {
			continue
		}
		left := f.childOrZero(t, k.level-1, k.index*2)
		right := f.childOrZero(t, k.level-1, k.index*2+1)
		t.setNode(k.level, k.index, wire.PoseidonHash(left.FieldElement(), right.FieldElement()))
	}
	t.NextIndex = prevNextIndex
	t.Root = prevRoot
	delete(t.historicalRoots, rejectedRoot)
}

func (f *Forest) childOrZero(t *Tree, level uint32, index uint64) wire.Hash {
	if h, ok := t.node(level, index); ok {
		return h
	}
	return f.zeroHashes[level]
}

// GetProof returns the sibling path for (treeNumber, leafIndex). Fails
// with wire.ErrLeafNotPresent if the leaf has not yet been committed.
func (f *Forest) GetProof(treeNumber, leafIndex uint64) (MerkleProof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.trees[treeNumber]
	if !ok || leafIndex >= t.NextIndex {
		return MerkleProof{}, wire.ErrLeafNotPresent
	}

	proof := MerkleProof{
		TreeNumber:   treeNumber,
		LeafIndex:    leafIndex,
		PathElements: make([]wire.Hash, t.Depth),
		PathIndices:  make([]bool, t.Depth),
		Root:         t.Root,
	}

	idx := leafIndex
	for level := uint32(0); level < t.Depth; level++ {
		isRightChild := idx%2 == 1
		var siblingIdx uint64
		if isRightChild {
			siblingIdx = idx - 1
		} else {
			siblingIdx = idx + 1
		}
		proof.PathElements[level] = f.childOrZero(t, level, siblingIdx)
		proof.PathIndices[level] = isRightChild
		idx /= 2
	}
	return proof, nil
}

// IsKnownRoot reports whether root is, or ever was, the root of
// treeNumber — used by verifiers accepting historical roots.
func (f *Forest) IsKnownRoot(treeNumber uint64, root wire.Hash) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.trees[treeNumber]
	if !ok {
		return false
	}
	_, known := t.historicalRoots[root]
	return known
}

// TreeNumbers returns every tree number this forest has observed, sorted
// ascending.
func (f *Forest) TreeNumbers() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]uint64, 0, len(f.trees))
	for n := range f.trees {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NextIndex returns the next free leaf index of treeNumber, or 0 if the
// tree has not been observed yet.
func (f *Forest) NextIndex(treeNumber uint64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.trees[treeNumber]; ok {
		return t.NextIndex
	}
	return 0
}

// Root returns treeNumber's current root, or the empty-tree root of depth
// zeroHashes if the tree has not been observed yet.
func (f *Forest) Root(treeNumber uint64) wire.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.trees[treeNumber]; ok {
		return t.Root
	}
	return f.zeroHashes[f.depth]
}
