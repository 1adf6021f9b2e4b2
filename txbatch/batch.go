// Package txbatch implements transaction-batch assembly and proving:
// accumulating outputs and unshield requests, running the solutions
// engine per token, and turning each resulting spending-solution group
// into a proven Transaction. Grounded on spec.md §4.5; the injected
// Prover/ArtifactGetter pair mirrors wire/shielded.go's
// GenerateProof/VerifyProof call shape, generalized from an in-process
// SHA-256 stand-in to a real external proving backend.
package txbatch

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/holiman/uint256"

	"umbra-core/keys"
	"umbra-core/merkletree"
	"umbra-core/note"
	"umbra-core/solutions"
	"umbra-core/wallet"
	"umbra-core/wire"
)

// AdaptID optionally binds a batch's transactions to a companion
// contract call, per spec.md §4.5's setAdaptID.
type AdaptID struct {
	Contract   wire.Address20
	Parameters wire.Hash
}

// UnshieldData is one requested unshield: recipient address, token, and
// value, queued by AddUnshieldData before GenerateTransactions runs.
type UnshieldData struct {
	To    wire.Address20
	Token wire.TokenData
	Value *uint256.Int
}

// TreeSource is the narrow capability TransactionBatch needs from a
// chain's Merkle forest: the current root per tree and inclusion proofs
// for the UTXOs a spending solution selects. Declared here, rather than
// depending on *merkletree.Forest directly, for the same cyclic-reference
// reason wallet.TreeReader exists (spec.md §9): the batcher depends only
// on this slice of the engine's capability, never on the engine itself.
type TreeSource interface {
	Root(treeNumber uint64) wire.Hash
	GetProof(treeNumber, leafIndex uint64) (merkletree.MerkleProof, error)
}

type pendingOutput struct {
	note    note.Note
	viewPub wire.Hash
}

// TransactionBatch accumulates outputs and unshield requests for one
// chain, then assembles and proves a Transaction per spending-solution
// group produced by the solutions engine.
type TransactionBatch struct {
	ChainKey           string
	OverallMinGasPrice uint64

	outputs   []pendingOutput
	unshields map[wire.Hash]UnshieldData
	adaptID   AdaptID

	proverConcurrency int
}

// NewTransactionBatch starts an empty batch for chainKey.
// overallMinGasPrice floors every resulting transaction's BoundParams.
func NewTransactionBatch(chainKey string, overallMinGasPrice uint64) *TransactionBatch {
	return &TransactionBatch{
		ChainKey:           chainKey,
		OverallMinGasPrice: overallMinGasPrice,
		unshields:          make(map[wire.Hash]UnshieldData),
	}
}

// AddOutput queues a transfer to recipient, deriving a fresh note public
// key from the recipient's spending public key and a fresh random value.
// Grounded on wire/shielded.go's CreateNote, which likewise mints a fresh
// per-note randomness value at queue time.
func (b *TransactionBatch) AddOutput(recipient keys.Address, token wire.TokenData, value *uint256.Int, memo note.Memo) error {
	random, err := randomUint256()
	if err != nil {
		return err
	}
	n := note.NewTransactNote(recipient.MasterPublicKey, random, token, value, memo)
	b.outputs = append(b.outputs, pendingOutput{note: n, viewPub: recipient.ViewingPublicKey})
	return nil
}

// AddUnshieldData queues an unshield to a transparent recipient. At most
// one unshield per token-hash per batch is allowed; a second call for the
// same token returns wire.ErrDuplicateUnshield, per spec.md §4.5.
func (b *TransactionBatch) AddUnshieldData(data UnshieldData) error {
	if data.Value == nil || data.Value.IsZero() {
		return fmt.Errorf("txbatch: unshield value must be nonzero")
	}
	tokenHash := data.Token.Hash()
	if _, exists := b.unshields[tokenHash]; exists {
		return wire.ErrDuplicateUnshield
	}
	b.unshields[tokenHash] = data
	return nil
}

// SetAdaptID binds this batch's transactions to a companion contract
// call, per spec.md §4.5.
func (b *TransactionBatch) SetAdaptID(id AdaptID) {
	b.adaptID = id
}

type tokenGroup struct {
	token    wire.TokenData
	outputs  []pendingOutput
	unshield *UnshieldData
}

func (b *TransactionBatch) groupByToken() map[wire.Hash]*tokenGroup {
	groups := make(map[wire.Hash]*tokenGroup)
	for _, o := range b.outputs {
		th := o.note.TokenHash
		g, ok := groups[th]
		if !ok {
			g = &tokenGroup{token: o.note.TokenData}
			groups[th] = g
		}
		g.outputs = append(g.outputs, o)
	}
	for th, u := range b.unshields {
		g, ok := groups[th]
		if !ok {
			g = &tokenGroup{token: u.Token}
			groups[th] = g
		}
		uCopy := u
		g.unshield = &uCopy
	}
	return groups
}

type assembledGroup struct {
	group    solutions.SpendingSolutionGroup
	outputs  []pendingOutput
	unshield *UnshieldData
}

// ProgressFunc reports batch-wide proving progress in [0,1]: per
// spec.md §4.5, "the element-wise average across groups".
type ProgressFunc func(fraction float64)

// GenerateTransactions runs solutions.Solve per distinct output/unshield
// token and assembles one Transaction per resulting SpendingSolutionGroup
// sequentially, per spec.md §5's "assembled sequentially to avoid
// double-spending the same UTXO across groups." Once every Transaction
// is assembled, proving them is independent per group, so that phase runs
// concurrently over a bounded pool (see pool.go) per spec.md §5's
// "parallelism is limited to independent task fan-out ... proving
// multiple spending-solution groups concurrently". The second return
// value is a sender-side outgoing log (TxID -> what this wallet sent),
// meant to be merged into wallet.GetTransactionHistory's outgoing
// parameter.
//
// encryptionKey unlocks w for the duration of this call, per spec.md §5's
// "wallet secrets live encrypted at rest; an encryptionKey is required to
// unlock and never stored": a wrong key, or a wallet with no encrypted
// form to unlock against, fails with wire.ErrWalletLocked before any
// spending key is read. A wallet already unlocked (e.g. built directly
// from plaintext keys) accepts any encryptionKey, since Unlock is then a
// no-op.
func (b *TransactionBatch) GenerateTransactions(ctx context.Context, w *wallet.Wallet, trees TreeSource, prover Prover, artifacts ArtifactGetter, encryptionKey []byte, progressCb ProgressFunc) ([]*Transaction, map[wire.Hash][]wallet.TokenAmount, error) {
	if err := w.Unlock(encryptionKey); err != nil {
		return nil, nil, err
	}

	var allGroups []assembledGroup

	for _, tg := range b.groupByToken() {
		balances := w.BalancesByTree(b.ChainKey)[tg.token.Hash().String()]

		solveOutputs := make([]solutions.Output, len(tg.outputs))
		for i, o := range tg.outputs {
			solveOutputs[i] = solutions.Output{Token: tg.token, Value: o.note.Value}
		}
		var unshieldValue *uint256.Int
		if tg.unshield != nil {
			unshieldValue = tg.unshield.Value
		}

		solved, err := solutions.Solve(balances, solveOutputs, unshieldValue, tg.token)
		if err != nil {
			return nil, nil, err
		}

		remainingOutputs := append([]pendingOutput(nil), tg.outputs...)
		for _, g := range solved {
			var assigned []pendingOutput
			assigned, remainingOutputs = takeOutputs(remainingOutputs, g.TokenOutputs)

			var unshield *UnshieldData
			if g.UnshieldValue != nil && !g.UnshieldValue.IsZero() {
				unshield = tg.unshield
			}
			allGroups = append(allGroups, assembledGroup{group: g, outputs: assigned, unshield: unshield})
		}
	}

	outgoing := make(map[wire.Hash][]wallet.TokenAmount)
	txs := make([]*Transaction, 0, len(allGroups))

	for _, ag := range allGroups {
		tx, sent, err := b.buildTransaction(w, trees, ag)
		if err != nil {
			return nil, nil, err
		}
		outgoing[tx.TxID] = append(outgoing[tx.TxID], sent...)
		txs = append(txs, tx)
	}

	if len(txs) > 0 {
		if err := proveConcurrently(ctx, txs, prover, artifacts, b.proverConcurrency, progressCb); err != nil {
			return nil, nil, err
		}
	}

	return txs, outgoing, nil
}

// SetProverConcurrency bounds how many groups this batch proves at once.
// n <= 0 falls back to defaultProverConcurrency.
func (b *TransactionBatch) SetProverConcurrency(n int) {
	b.proverConcurrency = n
}

// takeOutputs removes, from remaining, one pending output per wanted
// entry matching its value: outputs of the same token and value are
// fungible from the solver's perspective, which only tracks value totals
// per group, not note identity.
func takeOutputs(remaining []pendingOutput, wanted []solutions.Output) (assigned, rest []pendingOutput) {
	used := make([]bool, len(remaining))
	for _, w := range wanted {
		for i, o := range remaining {
			if !used[i] && o.note.Value.Eq(w.Value) {
				used[i] = true
				assigned = append(assigned, o)
				break
			}
		}
	}
	for i, o := range remaining {
		if !used[i] {
			rest = append(rest, o)
		}
	}
	return assigned, rest
}

func randomUint256() (*uint256.Int, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return uint256.NewInt(0).SetBytes(buf[:]), nil
}

func uint256New() *uint256.Int {
	return uint256.NewInt(0)
}
