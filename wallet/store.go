package wallet

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"umbra-core/kv"
	"umbra-core/wire"
)

// Persistence follows merkletree/store.go's pattern exactly: namespaced
// string keys under the spec.md §6 wallet/ prefix, gob encoding of the
// small serializable structs below, kv.Store.Put/Delete for writes, and
// kv.Store.Iterator for prefix-scoped rehydration. A Wallet built without a
// backing store (store == nil) behaves exactly as before persistence was
// added: every method below is then a no-op, so in-memory-only tests
// keep working unchanged.

func txoKeyBytes(walletID, chainKey string, treeNumber, leafIndex uint64) []byte {
	return []byte(fmt.Sprintf("wallet/%s/txo/%s/%d/%d", walletID, chainKey, treeNumber, leafIndex))
}

func txoPrefixBytes(walletID, chainKey string) []byte {
	return []byte(fmt.Sprintf("wallet/%s/txo/%s/", walletID, chainKey))
}

func detailsKeyBytes(walletID, chainKey string) []byte {
	return []byte(fmt.Sprintf("wallet/%s/details/%s", walletID, chainKey))
}

// saveTXO persists txo directly: Note's *uint256.Int fields and
// TokenData.SubID gob-encode fine as pointers to plain fixed-size arrays,
// so no separate wire form is needed.
func (w *Wallet) saveTXO(ctx context.Context, txo *TXO) error {
	if w.store == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(txo); err != nil {
		return fmt.Errorf("wallet: encode txo: %w", err)
	}
	key := txoKeyBytes(w.ID, txo.ChainKey, txo.TreeNumber, txo.LeafIndex)
	if err := w.store.Put(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	return nil
}

func (w *Wallet) saveDetails(ctx context.Context, chainKey string) error {
	if w.store == nil {
		return nil
	}
	details := w.detailsFor(chainKey)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(details); err != nil {
		return fmt.Errorf("wallet: encode details: %w", err)
	}
	key := detailsKeyBytes(w.ID, chainKey)
	if err := w.store.Put(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	return nil
}

// deletePersistedTXOs removes every persisted TXO row under chainKey's
// prefix, used by ClearScannedBalances to keep the store consistent with
// the in-memory reset.
func (w *Wallet) deletePersistedTXOs(ctx context.Context, chainKey string) error {
	if w.store == nil {
		return nil
	}
	it, err := w.store.Iterator(ctx, txoPrefixBytes(w.ID, chainKey))
	if err != nil {
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	defer it.Close()

	var keys [][]byte
	for it.Next() {
		kvPair := it.KeyValue()
		key := make([]byte, len(kvPair.Key))
		copy(key, kvPair.Key)
		keys = append(keys, key)
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	for _, key := range keys {
		if err := w.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
		}
	}
	return nil
}

// Load rehydrates chainKey's TXOs and scan cursor from the wallet's
// store, per spec.md §5's "a reopened wallet resumes, not rescans"
// guarantee. A wallet with no backing store, or one never previously
// saved under chainKey, ends up with empty state — identical to a fresh
// wallet, so Load is always safe to call on RegisterWallet.
func (w *Wallet) Load(ctx context.Context, chainKey string) error {
	if w.store == nil {
		return nil
	}

	raw, err := w.store.Get(ctx, detailsKeyBytes(w.ID, chainKey))
	switch err {
	case nil:
		var details WalletDetails
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&details); err != nil {
			return fmt.Errorf("wallet: decode details: %w", err)
		}
		if details.TreeScannedHeights == nil {
			details.TreeScannedHeights = make(map[uint64]uint64)
		}
		w.details[chainKey] = &details
	case kv.ErrNotFound:
		// never saved under this chainKey: detailsFor will lazily create a
		// fresh one on first use.
	default:
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}

	it, err := w.store.Iterator(ctx, txoPrefixBytes(w.ID, chainKey))
	if err != nil {
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	defer it.Close()

	txos := w.txosFor(chainKey)
	for it.Next() {
		kvPair := it.KeyValue()
		var txo TXO
		if err := gob.NewDecoder(bytes.NewReader(kvPair.Value)).Decode(&txo); err != nil {
			return fmt.Errorf("wallet: decode txo: %w", err)
		}
		txos[txoID(txo.ChainKey, txo.TreeNumber, txo.LeafIndex)] = &txo
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	return nil
}
