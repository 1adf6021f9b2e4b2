// Package wallet implements note scanning, TXO lifecycle tracking, and
// balance/history derivation for one wallet across the chains it is
// loaded on. Grounded on blockchain/shielded_pool.go's
// GetShieldedBalance (decrypt-and-classify scanning loop), generalized
// from its single-viewing-key placeholder into the full scan/persist/
// spend-tracking cycle spec.md §4.3 describes.
package wallet

import (
	"context"
	"fmt"
	"sort"

	"umbra-core/ingest"
	"umbra-core/keys"
	"umbra-core/kv"
	"umbra-core/merkletree"
	"umbra-core/note"
	"umbra-core/wire"
)

// TreeReader is the narrow capability the wallet needs from a chain's
// Merkle forest: read-only leaf/proof access. Declaring it here (rather
// than depending on *merkletree.Forest directly) breaks the cyclic
// reference spec.md §9 calls out between wallet and engine: the wallet
// depends only on this interface, never on the engine that owns it.
type TreeReader interface {
	NextIndex(treeNumber uint64) uint64
	TreeNumbers() []uint64
	GetProof(treeNumber, leafIndex uint64) (merkletree.MerkleProof, error)
}

// LeafSource supplies the raw commitment bytes a scan needs to attempt
// decryption against. In production this is backed by the same store the
// forest persists to; tests can supply a map.
type LeafSource interface {
	Commitment(treeNumber, leafIndex uint64) (wire.Hash, note.Envelope, bool)
}

// TokenResolver recovers the full TokenData behind a note's tokenHash,
// for display purposes (spec.md §8 scenario 4's NFT history entry needs
// the real ERC721/ERC1155 identity, not just the hash a commitment
// binds). A resolver that doesn't recognize a hash is as valid as an
// empty one; balances never depend on it, only history formatting does.
type TokenResolver interface {
	TokenData(tokenHash wire.Hash) (wire.TokenData, bool)
}

// TXO is a wallet-visible transaction output: a decrypted note plus its
// tree position and spend status. Unique by (chainKey, treeNumber, leafIndex).
type TXO struct {
	ChainKey    string
	TreeNumber  uint64
	LeafIndex   uint64
	Note        note.Note
	TxID        wire.Hash
	BlockNumber uint64
	Spent       bool
	Nullifier   wire.Hash
}

func txoID(chainKey string, treeNumber, leafIndex uint64) string {
	return fmt.Sprintf("%s/%d/%d", chainKey, treeNumber, leafIndex)
}

// WalletDetails is the per-chain scan cursor persisted alongside a
// wallet's TXOs.
type WalletDetails struct {
	TreeScannedHeights map[uint64]uint64 // treeNumber -> next unscanned leafIndex
	CreationTree       *uint64
	CreationTreeHeight *uint64
}

// Wallet scans a chain's commitments for notes addressed to it, tracks
// spend status, and derives balances and history on demand.
type Wallet struct {
	ID   string
	Keys *keys.WalletKeys // nil while locked

	encrypted *keys.EncryptedWalletKeys // nil for a wallet that was never locked
	store     kv.Store

	details map[string]*WalletDetails  // chainKey -> details
	txos    map[string]map[string]*TXO // chainKey -> txoID -> TXO
}

// NewWallet builds an already-unlocked wallet from a plaintext
// WalletKeys, e.g. immediately after generation or restoration.
func NewWallet(id string, walletKeys *keys.WalletKeys, store kv.Store) *Wallet {
	return &Wallet{
		ID:      id,
		Keys:    walletKeys,
		store:   store,
		details: make(map[string]*WalletDetails),
		txos:    make(map[string]map[string]*TXO),
	}
}

// NewLockedWallet builds a wallet whose spending/viewing keys stay
// encrypted at rest until Unlock is called, per spec.md §5: "wallet
// secrets live encrypted at rest; an encryptionKey is required to
// unlock and never stored."
func NewLockedWallet(id string, encrypted *keys.EncryptedWalletKeys, store kv.Store) *Wallet {
	return &Wallet{
		ID:        id,
		encrypted: encrypted,
		store:     store,
		details:   make(map[string]*WalletDetails),
		txos:      make(map[string]map[string]*TXO),
	}
}

// Unlock decrypts the wallet's keys with encryptionKey. A no-op if the
// wallet is already unlocked (including one built with NewWallet, which
// has no encrypted form to lock back to). Returns wire.ErrWalletLocked
// if encryptionKey does not match, or if a locked wallet has no
// encrypted form to decrypt.
func (w *Wallet) Unlock(encryptionKey []byte) error {
	if w.Keys != nil {
		return nil
	}
	if w.encrypted == nil {
		return wire.ErrWalletLocked
	}
	wk, err := keys.DecryptWalletKeys(w.encrypted, encryptionKey)
	if err != nil {
		return wire.ErrWalletLocked
	}
	w.Keys = wk
	return nil
}

// Lock discards the wallet's decrypted keys from memory. A wallet built
// with NewWallet (no encrypted form) cannot be locked, since there would
// be no way to unlock it again.
func (w *Wallet) Lock() {
	if w.encrypted != nil {
		w.Keys = nil
	}
}

func (w *Wallet) detailsFor(chainKey string) *WalletDetails {
	d, ok := w.details[chainKey]
	if !ok {
		d = &WalletDetails{TreeScannedHeights: make(map[uint64]uint64)}
		w.details[chainKey] = d
	}
	return d
}

func (w *Wallet) txosFor(chainKey string) map[string]*TXO {
	m, ok := w.txos[chainKey]
	if !ok {
		m = make(map[string]*TXO)
		w.txos[chainKey] = m
	}
	return m
}

// ScanBalances walks every tree from its last-scanned height to the
// chain's current nextIndex, attempting decryption of each commitment's
// envelope with the wallet's viewing key. A commitment that doesn't
// decrypt is simply not ours and is skipped silently, per spec.md §4.2's
// "decryption failure is silent" rule. progressCb, if non-nil, is called
// after every leaf with (treeNumber, leafIndex) processed. tokens may be
// nil: a note whose token can't be resolved simply keeps a zero-value
// TokenData (balances, keyed by tokenHash, are unaffected either way).
// Every newly found TXO and the advancing scan cursor are persisted
// through the wallet's store as they're discovered, so a host that
// restarts mid-scan resumes rather than starting over.
func (w *Wallet) ScanBalances(ctx context.Context, chainKey string, tree TreeReader, leaves LeafSource, tokens TokenResolver, progressCb func(treeNumber, leafIndex uint64)) error {
	if w.Keys == nil {
		return wire.ErrWalletLocked
	}
	details := w.detailsFor(chainKey)
	txos := w.txosFor(chainKey)

	for _, treeNumber := range tree.TreeNumbers() {
		next := tree.NextIndex(treeNumber)
		from := details.TreeScannedHeights[treeNumber]
		for leafIndex := from; leafIndex < next; leafIndex++ {
			commitment, env, ok := leaves.Commitment(treeNumber, leafIndex)
			if ok {
				if n, decrypted := w.tryDecrypt(commitment, env, tokens); decrypted {
					id := txoID(chainKey, treeNumber, leafIndex)
					txo := &TXO{
						ChainKey:   chainKey,
						TreeNumber: treeNumber,
						LeafIndex:  leafIndex,
						Note:       n,
					}
					txos[id] = txo
					if err := w.saveTXO(ctx, txo); err != nil {
						return err
					}
				}
			}
			details.TreeScannedHeights[treeNumber] = leafIndex + 1
			if progressCb != nil {
				progressCb(treeNumber, leafIndex)
			}
		}
	}
	return w.saveDetails(ctx, chainKey)
}

// tryDecrypt attempts to open env with the wallet's viewing key. The
// decrypted plaintext carries (random, value, tokenHash) but not npk, so
// npk is recomputed from the wallet's own spending public key and the
// decrypted random — exactly as the sender computed it from the
// recipient's address. Recomputing the commitment from that npk and
// checking it against the leaf's actual commitment rejects a ciphertext
// that happened to decrypt (GCM tag collision) under the wrong key.
// tokens, if it recognizes the note's tokenHash, fills in the note's
// real TokenData (kind/address/sub-id) for history display; the
// plaintext itself never carries more than the hash.
func (w *Wallet) tryDecrypt(commitment wire.Hash, env note.Envelope, tokens TokenResolver) (note.Note, bool) {
	n, err := note.Open(w.Keys.Viewing.PrivateKey, &env)
	if err != nil {
		return note.Note{}, false
	}
	n.Kind = note.KindTransact
	n.NPK = note.DerivePK(w.Keys.Spending.PublicKey, n.Random)
	if n.Commitment() != commitment {
		return note.Note{}, false
	}
	if tokens != nil {
		if td, ok := tokens.TokenData(n.TokenHash); ok {
			n.TokenData = td
		}
	}
	return *n, true
}

// ApplyNullifiers cross-references observed nullifiers against stored
// TXOs, marking any match spent exactly once and persisting the change.
func (w *Wallet) ApplyNullifiers(ctx context.Context, chainKey string, nullifiers []wire.Hash) error {
	if w.Keys == nil {
		return wire.ErrWalletLocked
	}
	txos := w.txosFor(chainKey)
	spent := make(map[wire.Hash]struct{}, len(nullifiers))
	for _, nf := range nullifiers {
		spent[nf] = struct{}{}
	}
	for _, txo := range txos {
		if txo.Spent {
			continue
		}
		nf := txo.Note.Nullifier(wire.Hash(w.Keys.Spending.PrivateKey.Bytes32()), txo.LeafIndex)
		if _, ok := spent[nf]; ok {
			txo.Spent = true
			txo.Nullifier = nf
			if err := w.saveTXO(ctx, txo); err != nil {
				return err
			}
		}
	}
	return nil
}

// FullRescanBalances resets the scan cursor and every TXO for chainKey,
// preserving CreationTree/CreationTreeHeight, then reruns the scan.
func (w *Wallet) FullRescanBalances(ctx context.Context, chainKey string, tree TreeReader, leaves LeafSource, tokens TokenResolver, progressCb func(treeNumber, leafIndex uint64)) error {
	if err := w.ClearScannedBalances(ctx, chainKey); err != nil {
		return err
	}
	return w.ScanBalances(ctx, chainKey, tree, leaves, tokens, progressCb)
}

// ClearScannedBalances deletes TXOs and resets the scan cursor for
// chainKey but preserves CreationTree/CreationTreeHeight, persisting the
// deletion through the wallet's store.
func (w *Wallet) ClearScannedBalances(ctx context.Context, chainKey string) error {
	if err := w.deletePersistedTXOs(ctx, chainKey); err != nil {
		return err
	}

	details := w.detailsFor(chainKey)
	creationTree, creationHeight := details.CreationTree, details.CreationTreeHeight
	w.details[chainKey] = &WalletDetails{
		TreeScannedHeights: make(map[uint64]uint64),
		CreationTree:       creationTree,
		CreationTreeHeight: creationHeight,
	}
	w.txos[chainKey] = make(map[string]*TXO)
	return w.saveDetails(ctx, chainKey)
}

// unspentTXOs returns every unspent TXO for chainKey, stably sorted by
// (treeNumber, leafIndex) for deterministic downstream consumers.
func (w *Wallet) unspentTXOs(chainKey string) []*TXO {
	var out []*TXO
	for _, txo := range w.txosFor(chainKey) {
		if !txo.Spent {
			out = append(out, txo)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TreeNumber != out[j].TreeNumber {
			return out[i].TreeNumber < out[j].TreeNumber
		}
		return out[i].LeafIndex < out[j].LeafIndex
	})
	return out
}

// ApplyIngestResult is a convenience wiring point: after an Ingester.Apply
// call, feed its nullifier events to the wallet so spent TXOs are marked
// in the same pass.
func (w *Wallet) ApplyIngestResult(ctx context.Context, chainKey string, events []ingest.NullifierEvent) error {
	var flat []wire.Hash
	for _, ev := range events {
		flat = append(flat, ev.Nullifiers...)
	}
	return w.ApplyNullifiers(ctx, chainKey, flat)
}
