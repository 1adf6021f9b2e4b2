package merkletree

import (
	"context"
	"testing"

	"umbra-core/kv"
	"umbra-core/wire"
)

func leafHash(seed byte) wire.Hash {
	var h wire.Hash
	h[31] = seed
	h[0] = 0x01
	return h
}

func TestQueueAndUpdateSingleLeaf(t *testing.T) {
	f := NewForest("evm:1", 4, nil, nil)
	leaf := leafHash(1)

	if err := f.QueueLeaves(0, 0, []wire.Hash{leaf}); err != nil {
		t.Fatalf("QueueLeaves: %v", err)
	}
	if err := f.UpdateTrees(); err != nil {
		t.Fatalf("UpdateTrees: %v", err)
	}

	proof, err := f.GetProof(0, 0)
	if err != nil {
		t.Fatalf("GetProof: %v", err)
	}

	root := leaf
	for level := 0; level < len(proof.PathElements); level++ {
		sibling := proof.PathElements[level]
		var combined wire.Hash
		if proof.PathIndices[level] {
			combined = wire.PoseidonHash(sibling.FieldElement(), root.FieldElement())
		} else {
			combined = wire.PoseidonHash(root.FieldElement(), sibling.FieldElement())
		}
		root = combined
	}
	if root != proof.Root {
		t.Errorf("recomputed root %s does not match proof root %s", root, proof.Root)
	}
}

func TestZeroCommitmentRejected(t *testing.T) {
	f := NewForest("evm:1", 4, nil, nil)
	if err := f.QueueLeaves(0, 0, []wire.Hash{{}}); err != wire.ErrZeroCommitment {
		t.Errorf("expected ErrZeroCommitment, got %v", err)
	}
}

func TestOutOfOrderLeavesBufferUntilPrefixCloses(t *testing.T) {
	f := NewForest("evm:1", 4, nil, nil)
	l0, l1, l2 := leafHash(1), leafHash(2), leafHash(3)

	if err := f.QueueLeaves(0, 1, []wire.Hash{l1}); err != nil {
		t.Fatalf("queue index 1: %v", err)
	}
	if err := f.UpdateTrees(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if f.NextIndex(0) != 0 {
		t.Fatalf("expected no commit with a gap at index 0, nextIndex=%d", f.NextIndex(0))
	}

	if err := f.QueueLeaves(0, 0, []wire.Hash{l0}); err != nil {
		t.Fatalf("queue index 0: %v", err)
	}
	if err := f.QueueLeaves(0, 2, []wire.Hash{l2}); err != nil {
		t.Fatalf("queue index 2: %v", err)
	}
	if err := f.UpdateTrees(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if f.NextIndex(0) != 3 {
		t.Fatalf("expected nextIndex=3 once the prefix closed, got %d", f.NextIndex(0))
	}
}

func TestDuplicateQueuedLeafMustMatch(t *testing.T) {
	f := NewForest("evm:1", 4, nil, nil)
	l0, l0Alt := leafHash(1), leafHash(2)

	if err := f.QueueLeaves(0, 5, []wire.Hash{l0}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := f.QueueLeaves(0, 5, []wire.Hash{l0}); err != nil {
		t.Errorf("identical re-queue should succeed, got %v", err)
	}
	if err := f.QueueLeaves(0, 5, []wire.Hash{l0Alt}); err != wire.ErrConflictingLeaf {
		t.Errorf("expected ErrConflictingLeaf, got %v", err)
	}
}

func TestStaleLeafDroppedSilently(t *testing.T) {
	f := NewForest("evm:1", 4, nil, nil)
	l0 := leafHash(1)
	if err := f.QueueLeaves(0, 0, []wire.Hash{l0}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := f.UpdateTrees(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.QueueLeaves(0, 0, []wire.Hash{leafHash(9)}); err != nil {
		t.Fatalf("re-queue stale index should not error: %v", err)
	}
	if err := f.UpdateTrees(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if f.NextIndex(0) != 1 {
		t.Fatalf("stale leaf should not advance nextIndex, got %d", f.NextIndex(0))
	}
}

func TestRolloverAtCapacity(t *testing.T) {
	f := NewForest("evm:1", 2, nil, nil) // capacity 4
	leaves := make([]wire.Hash, 5)
	for i := range leaves {
		leaves[i] = leafHash(byte(i + 1))
	}
	if err := f.QueueLeaves(0, 0, leaves); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := f.UpdateTrees(); err != nil {
		t.Fatalf("update: %v", err)
	}

	if f.NextIndex(0) != 4 {
		t.Fatalf("tree 0 should be full at 4, got %d", f.NextIndex(0))
	}
	if f.NextIndex(1) != 1 {
		t.Fatalf("overflow leaf should land in tree 1 at index 0, nextIndex=%d", f.NextIndex(1))
	}
}

func TestRootValidationFailureRollsBack(t *testing.T) {
	f := NewForest("evm:1", 4, nil, func(chainKey string, treeNumber uint64, root wire.Hash) bool {
		return false
	})
	if err := f.QueueLeaves(0, 0, []wire.Hash{leafHash(1)}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	err := f.UpdateTrees()
	if err != wire.ErrRootValidationFailed {
		t.Fatalf("expected ErrRootValidationFailed, got %v", err)
	}
	if f.NextIndex(0) != 0 {
		t.Fatalf("rejected batch should roll back nextIndex, got %d", f.NextIndex(0))
	}
	if _, err := f.GetProof(0, 0); err != wire.ErrLeafNotPresent {
		t.Errorf("rejected leaf should not be provable, got %v", err)
	}
}

func TestLeafNotPresent(t *testing.T) {
	f := NewForest("evm:1", 4, nil, nil)
	if _, err := f.GetProof(0, 0); err != wire.ErrLeafNotPresent {
		t.Errorf("expected ErrLeafNotPresent on empty tree, got %v", err)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemStore()
	store := NewStore(backing)

	f := NewForest("evm:1", 4, store, nil)
	if err := f.QueueLeaves(0, 0, []wire.Hash{leafHash(1), leafHash(2)}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := f.UpdateTrees(); err != nil {
		t.Fatalf("update: %v", err)
	}
	wantRoot := f.trees[0].Root

	loaded, err := LoadForest(ctx, "evm:1", 4, backing, nil)
	if err != nil {
		t.Fatalf("LoadForest: %v", err)
	}
	if loaded.NextIndex(0) != 2 {
		t.Fatalf("expected restored nextIndex=2, got %d", loaded.NextIndex(0))
	}
	proof, err := loaded.GetProof(0, 1)
	if err != nil {
		t.Fatalf("GetProof after reload: %v", err)
	}
	if proof.Root != wantRoot {
		t.Errorf("restored root %s != original root %s", proof.Root, wantRoot)
	}
}
