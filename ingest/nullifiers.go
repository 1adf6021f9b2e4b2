package ingest

import (
	"context"
	"fmt"

	"umbra-core/kv"
	"umbra-core/wire"
)

// NullifierStore tracks spent nullifiers per chain under the
// nullifiers/<chainKey>/<nullifier> keys spec.md §6 names.
type NullifierStore struct {
	backing kv.Store
}

func NewNullifierStore(backing kv.Store) *NullifierStore {
	return &NullifierStore{backing: backing}
}

func nullifierKey(chainKey string, nf wire.Hash) []byte {
	return []byte(fmt.Sprintf("nullifiers/%s/%s", chainKey, nf))
}

// Has reports whether nf has already been recorded as spent for chainKey.
func (n *NullifierStore) Has(ctx context.Context, chainKey string, nf wire.Hash) (bool, error) {
	_, err := n.backing.Get(ctx, nullifierKey(chainKey, nf))
	if err == kv.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	return true, nil
}

// Mark records nf as spent. Re-marking an already-spent nullifier is a
// no-op (idempotent re-ingestion of the same chain event), not an error:
// only a fresh transaction batch assembling an already-spent note is a
// real double-spend, and that is caught by the wallet/solver before a
// nullifier event is ever produced.
func (n *NullifierStore) Mark(ctx context.Context, chainKey string, nf wire.Hash, blockNumber uint64) error {
	already, err := n.Has(ctx, chainKey, nf)
	if err != nil {
		return err
	}
	if already {
		return nil
	}
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(blockNumber >> (8 * (7 - i)))
	}
	if err := n.backing.Put(ctx, nullifierKey(chainKey, nf), buf[:]); err != nil {
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	return nil
}
