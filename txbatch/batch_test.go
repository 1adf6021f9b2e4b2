package txbatch

import (
	"context"
	"testing"

	"github.com/holiman/uint256"

	"umbra-core/keys"
	"umbra-core/kv"
	"umbra-core/merkletree"
	"umbra-core/note"
	"umbra-core/wallet"
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

type fakeProver struct{}

func (fakeProver) Prove(_ context.Context, _ string, _, _ []byte) (*Proof, error) {
	return &Proof{}, nil
}

type fakeArtifactGetter struct{}

func (fakeArtifactGetter) GetArtifacts(_ context.Context, _, _ int) (*Artifacts, error) {
	return &Artifacts{}, nil
}

func tokenFixture() wire.TokenData {
	var addr wire.Address20
	addr[19] = 0x22
	return wire.NewERC20Token(addr)
}

func mustWallet(t *testing.T) (*wallet.Wallet, *keys.WalletKeys) {
	t.Helper()
	mnemonic, err := keys.GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	wk, err := keys.DeriveWallet(mnemonic, 0)
	if err != nil {
		t.Fatalf("DeriveWallet: %v", err)
	}
	return wallet.NewWallet("w1", wk, kv.NewMemStore()), wk
}

// fundWallet seeds w with one unspent note of value on chainKey, in a
// forest with a single committed leaf, exactly as a real scan would
// after observing an on-chain shield.
func fundWallet(t *testing.T, w *wallet.Wallet, wk *keys.WalletKeys, chainKey string, value uint64) *merkletree.Forest {
	t.Helper()
	token := tokenFixture()
	n := note.NewTransactNote(wk.Spending.PublicKey, uint256.NewInt(99), token, uint256.NewInt(value), note.Memo{})
	env, err := note.Seal(wk.Viewing.PublicKey, n)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	forest := merkletree.NewForest(chainKey, 4, nil, nil)
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
	if err := w.ScanBalances(context.Background(), chainKey, forest, leaves, nil, nil); err != nil {
		t.Fatalf("ScanBalances: %v", err)
	}
	return forest
}

func TestGenerateTransactionsSimpleTransfer(t *testing.T) {
	ctx := context.Background()
	chainKey := "evm:1"
	token := tokenFixture()

	sender, senderKeys := mustWallet(t)
	forest := fundWallet(t, sender, senderKeys, chainKey, 1000)

	_, recipientKeys := mustWallet(t)
	recipientAddr := recipientKeys.WalletAddress(keys.Chain{Type: keys.ChainTypeEVM, ID: 1})

	b := NewTransactionBatch(chainKey, 0)
	if err := b.AddOutput(recipientAddr, token, uint256.NewInt(400), note.Memo{OutputType: note.OutputTransfer}); err != nil {
		t.Fatalf("AddOutput: %v", err)
	}

	txs, outgoing, err := b.GenerateTransactions(ctx, sender, forest, fakeProver{}, fakeArtifactGetter{}, nil, nil)
	if err != nil {
		t.Fatalf("GenerateTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected one transaction, got %d", len(txs))
	}
	tx := txs[0]
	if len(tx.Nullifiers) != 1 {
		t.Errorf("expected one nullifier, got %d", len(tx.Nullifiers))
	}
	// recipient output + change output, no unshield.
	if len(tx.CommitmentsOut) != 2 {
		t.Errorf("expected two output commitments (transfer + change), got %d", len(tx.CommitmentsOut))
	}
	if tx.Proof == nil {
		t.Errorf("expected a proof to be attached")
	}

	sent, ok := outgoing[tx.TxID]
	if !ok || len(sent) != 1 || sent[0].Value.Cmp(uint256.NewInt(400)) != 0 {
		t.Fatalf("expected outgoing log to record the 400 transfer, got %+v", outgoing)
	}
}

func TestAddUnshieldDataRejectsDuplicateToken(t *testing.T) {
	token := tokenFixture()
	b := NewTransactionBatch("evm:1", 0)

	var to wire.Address20
	to[19] = 0x55

	if err := b.AddUnshieldData(UnshieldData{To: to, Token: token, Value: uint256.NewInt(10)}); err != nil {
		t.Fatalf("first AddUnshieldData: %v", err)
	}
	err := b.AddUnshieldData(UnshieldData{To: to, Token: token, Value: uint256.NewInt(20)})
	if err != wire.ErrDuplicateUnshield {
		t.Fatalf("expected ErrDuplicateUnshield, got %v", err)
	}
}

func TestAddUnshieldDataRejectsZeroValue(t *testing.T) {
	token := tokenFixture()
	b := NewTransactionBatch("evm:1", 0)
	var to wire.Address20

	if err := b.AddUnshieldData(UnshieldData{To: to, Token: token, Value: uint256.NewInt(0)}); err == nil {
		t.Fatalf("expected an error for a zero-value unshield")
	}
}
