package wallet

import (
	"context"
	"testing"

	"github.com/holiman/uint256"

	"umbra-core/keys"
	"umbra-core/kv"
	"umbra-core/merkletree"
	"umbra-core/note"
	"umbra-core/wire"
)

type fakeLeafSource struct {
	commitments map[uint64]map[uint64]wire.Hash
	envelopes   map[uint64]map[uint64]note.Envelope
}

func (s *fakeLeafSource) Commitment(tree, leaf uint64) (wire.Hash, note.Envelope, bool) {
	row, ok := s.commitments[tree]
	if !ok {
		return wire.Hash{}, note.Envelope{}, false
	}
	cm, ok := row[leaf]
	if !ok {
		return wire.Hash{}, note.Envelope{}, false
	}
	return cm, s.envelopes[tree][leaf], true
}

func mustWallet(t *testing.T) (*Wallet, *keys.WalletKeys) {
	t.Helper()
	mnemonic, err := keys.GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	wk, err := keys.DeriveWallet(mnemonic, 0)
	if err != nil {
		t.Fatalf("DeriveWallet: %v", err)
	}
	return NewWallet("w1", wk, kv.NewMemStore()), wk
}

func tokenFixture() wire.TokenData {
	var addr wire.Address20
	addr[19] = 0x01
	return wire.NewERC20Token(addr)
}

func TestScanBalancesFindsOwnNote(t *testing.T) {
	ctx := context.Background()
	w, wk := mustWallet(t)
	token := tokenFixture()

	value := uint256.NewInt(1000)
	n := note.NewTransactNote(wk.Spending.PublicKey, uint256.NewInt(42), token, value, note.Memo{})
	env, err := note.Seal(wk.Viewing.PublicKey, n)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	forest := merkletree.NewForest("evm:1", 4, nil, nil)
	if err := forest.QueueLeaves(0, 0, []wire.Hash{n.Commitment()}); err != nil {
		t.Fatalf("QueueLeaves: %v", err)
	}
	if err := forest.UpdateTrees(); err != nil {
		t.Fatalf("UpdateTrees: %v", err)
	}

	leaves := &fakeLeafSource{
		commitments: map[uint64]map[uint64]wire.Hash{0: {0: n.Commitment()}},
		envelopes:   map[uint64]map[uint64]note.Envelope{0: {0: *env}},
	}

	if err := w.ScanBalances(ctx, "evm:1", forest, leaves, nil, nil); err != nil {
		t.Fatalf("ScanBalances: %v", err)
	}

	balance := w.GetBalance("evm:1", token.Hash().String())
	if balance.Cmp(value) != 0 {
		t.Errorf("expected balance %s, got %s", value, balance)
	}
}

func TestScanBalancesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	w, wk := mustWallet(t)
	token := tokenFixture()

	n := note.NewTransactNote(wk.Spending.PublicKey, uint256.NewInt(1), token, uint256.NewInt(5), note.Memo{})
	env, _ := note.Seal(wk.Viewing.PublicKey, n)

	forest := merkletree.NewForest("evm:1", 4, nil, nil)
	_ = forest.QueueLeaves(0, 0, []wire.Hash{n.Commitment()})
	_ = forest.UpdateTrees()

	leaves := &fakeLeafSource{
		commitments: map[uint64]map[uint64]wire.Hash{0: {0: n.Commitment()}},
		envelopes:   map[uint64]map[uint64]note.Envelope{0: {0: *env}},
	}

	if err := w.ScanBalances(ctx, "evm:1", forest, leaves, nil, nil); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	first := w.GetBalance("evm:1", token.Hash().String())

	if err := w.ScanBalances(ctx, "evm:1", forest, leaves, nil, nil); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	second := w.GetBalance("evm:1", token.Hash().String())

	if first.Cmp(second) != 0 {
		t.Errorf("rescanning with no new events should not change balance: %s != %s", first, second)
	}
}

func TestApplyNullifiersMarksSpentExactlyOnce(t *testing.T) {
	ctx := context.Background()
	w, wk := mustWallet(t)
	token := tokenFixture()

	n := note.NewTransactNote(wk.Spending.PublicKey, uint256.NewInt(7), token, uint256.NewInt(10), note.Memo{})
	txos := w.txosFor("evm:1")
	txos["evm:1/0/0"] = &TXO{ChainKey: "evm:1", TreeNumber: 0, LeafIndex: 0, Note: n}

	nf := n.Nullifier(wire.Hash(wk.Spending.PrivateKey.Bytes32()), 0)
	if err := w.ApplyNullifiers(ctx, "evm:1", []wire.Hash{nf}); err != nil {
		t.Fatalf("ApplyNullifiers: %v", err)
	}

	if !txos["evm:1/0/0"].Spent {
		t.Fatalf("expected TXO marked spent")
	}

	if err := w.ApplyNullifiers(ctx, "evm:1", []wire.Hash{nf}); err != nil {
		t.Fatalf("ApplyNullifiers (repeat): %v", err)
	}
	if !txos["evm:1/0/0"].Spent {
		t.Fatalf("TXO should remain spent after a repeat nullifier")
	}
}

type fakeTokenResolver map[wire.Hash]wire.TokenData

func (r fakeTokenResolver) TokenData(tokenHash wire.Hash) (wire.TokenData, bool) {
	td, ok := r[tokenHash]
	return td, ok
}

func TestScanBalancesResolvesTokenData(t *testing.T) {
	ctx := context.Background()
	w, wk := mustWallet(t)
	token := tokenFixture()

	n := note.NewTransactNote(wk.Spending.PublicKey, uint256.NewInt(11), token, uint256.NewInt(50), note.Memo{})
	env, err := note.Seal(wk.Viewing.PublicKey, n)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	forest := merkletree.NewForest("evm:1", 4, nil, nil)
	_ = forest.QueueLeaves(0, 0, []wire.Hash{n.Commitment()})
	_ = forest.UpdateTrees()

	leaves := &fakeLeafSource{
		commitments: map[uint64]map[uint64]wire.Hash{0: {0: n.Commitment()}},
		envelopes:   map[uint64]map[uint64]note.Envelope{0: {0: *env}},
	}
	resolver := fakeTokenResolver{token.Hash(): token}

	if err := w.ScanBalances(ctx, "evm:1", forest, leaves, resolver, nil); err != nil {
		t.Fatalf("ScanBalances: %v", err)
	}

	txo := w.txosFor("evm:1")["evm:1/0/0"]
	if txo == nil {
		t.Fatalf("expected txo to be scanned")
	}
	if !txo.Note.TokenData.Equal(token) {
		t.Fatalf("expected TokenData resolved to %+v, got %+v", token, txo.Note.TokenData)
	}
}

func TestWalletPersistsAndReloadsScanState(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemStore()
	mnemonic, err := keys.GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	wk, err := keys.DeriveWallet(mnemonic, 0)
	if err != nil {
		t.Fatalf("DeriveWallet: %v", err)
	}
	token := tokenFixture()

	w := NewWallet("w1", wk, store)
	n := note.NewTransactNote(wk.Spending.PublicKey, uint256.NewInt(3), token, uint256.NewInt(77), note.Memo{})
	env, err := note.Seal(wk.Viewing.PublicKey, n)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	forest := merkletree.NewForest("evm:1", 4, nil, nil)
	_ = forest.QueueLeaves(0, 0, []wire.Hash{n.Commitment()})
	_ = forest.UpdateTrees()

	leaves := &fakeLeafSource{
		commitments: map[uint64]map[uint64]wire.Hash{0: {0: n.Commitment()}},
		envelopes:   map[uint64]map[uint64]note.Envelope{0: {0: *env}},
	}
	if err := w.ScanBalances(ctx, "evm:1", forest, leaves, nil, nil); err != nil {
		t.Fatalf("ScanBalances: %v", err)
	}
	want := w.GetBalance("evm:1", token.Hash().String())

	reopened := NewWallet("w1", wk, store)
	if err := reopened.Load(ctx, "evm:1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := reopened.GetBalance("evm:1", token.Hash().String())
	if got.Cmp(want) != 0 {
		t.Fatalf("expected reloaded wallet to recover balance %s, got %s", want, got)
	}

	details := reopened.detailsFor("evm:1")
	if details.TreeScannedHeights[0] != 1 {
		t.Fatalf("expected reloaded scan cursor at 1, got %d", details.TreeScannedHeights[0])
	}
}

func TestLockedWalletRejectsScanUntilUnlocked(t *testing.T) {
	ctx := context.Background()
	mnemonic, err := keys.GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	wk, err := keys.DeriveWallet(mnemonic, 0)
	if err != nil {
		t.Fatalf("DeriveWallet: %v", err)
	}
	passphrase := []byte("hunter2")
	enc, err := keys.EncryptWalletKeys(wk, passphrase)
	if err != nil {
		t.Fatalf("EncryptWalletKeys: %v", err)
	}

	w := NewLockedWallet("w1", enc, kv.NewMemStore())
	forest := merkletree.NewForest("evm:1", 4, nil, nil)
	leaves := &fakeLeafSource{}

	if err := w.ScanBalances(ctx, "evm:1", forest, leaves, nil, nil); err != wire.ErrWalletLocked {
		t.Fatalf("expected ErrWalletLocked on a locked wallet, got %v", err)
	}

	if err := w.Unlock([]byte("wrong")); err != wire.ErrWalletLocked {
		t.Fatalf("expected ErrWalletLocked for a wrong passphrase, got %v", err)
	}

	if err := w.Unlock(passphrase); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := w.ScanBalances(ctx, "evm:1", forest, leaves, nil, nil); err != nil {
		t.Fatalf("expected scan to succeed once unlocked: %v", err)
	}

	w.Lock()
	if w.Keys != nil {
		t.Fatalf("expected Lock to discard decrypted keys")
	}
}
