package txbatch

import (
	"encoding/binary"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"umbra-core/merkletree"
	"umbra-core/note"
	"umbra-core/wallet"
	"umbra-core/wire"
)

// BoundParams are the per-transaction parameters bound into the proof's
// public inputs: which tree it spends against and the minimum gas price
// a relayer must pay to submit it.
type BoundParams struct {
	TreeNumber  uint64
	MinGasPrice uint64
}

// Transaction is one proven sub-transaction assembled from a single
// solutions.SpendingSolutionGroup, per spec.md §4.5 step 2:
// {nullifiers[], commitmentsOut[], merkleRoot, boundParams, adaptID,
// encryptedRandoms[]}.
type Transaction struct {
	TxID             wire.Hash
	Nullifiers       []wire.Hash
	CommitmentsOut   []wire.Hash
	MerkleRoot       wire.Hash
	BoundParams      BoundParams
	AdaptID          AdaptID
	EncryptedRandoms []note.Envelope
	InclusionProofs  []merkletree.MerkleProof
	Proof            *Proof
}

// buildTransaction assembles one assembledGroup into a Transaction plus
// the (token, value) pairs this wallet sent to someone else in it. The
// sender builds these output notes itself, so recording what it sent
// needs no decryption step -- it is the same information
// wallet.GetTransactionHistory cannot recover from a TXO scan alone,
// supplied here instead of reconstructed there.
func (b *TransactionBatch) buildTransaction(w *wallet.Wallet, trees TreeSource, ag assembledGroup) (*Transaction, []wallet.TokenAmount, error) {
	nullifiers := make([]wire.Hash, len(ag.group.UTXOs))
	proofs := make([]merkletree.MerkleProof, len(ag.group.UTXOs))
	inputSum := uint256New()
	for i, utxo := range ag.group.UTXOs {
		nullifiers[i] = utxo.Note.Nullifier(wire.Hash(w.Keys.Spending.PrivateKey.Bytes32()), utxo.LeafIndex)
		proof, err := trees.GetProof(ag.group.SpendingTree, utxo.LeafIndex)
		if err != nil {
			return nil, nil, err
		}
		proofs[i] = proof
		inputSum.Add(inputSum, utxo.Note.Value)
	}

	var commitments []wire.Hash
	var envelopes []note.Envelope
	var sent []wallet.TokenAmount

	outputsSum := uint256New()
	for _, o := range ag.outputs {
		env, err := note.Seal(o.viewPub, o.note)
		if err != nil {
			return nil, nil, err
		}
		commitments = append(commitments, o.note.Commitment())
		envelopes = append(envelopes, *env)
		outputsSum.Add(outputsSum, o.note.Value)
		if o.note.Memo.OutputType == note.OutputTransfer {
			sent = append(sent, wallet.TokenAmount{Token: o.note.TokenData, Value: o.note.Value})
		}
	}

	unshieldValue := uint256New()
	if ag.unshield != nil {
		unshieldValue.Set(ag.unshield.Value)
		unshieldNote := note.NewUnshieldNote(ag.unshield.To, ag.group.TokenData, ag.unshield.Value)
		commitments = append(commitments, unshieldNote.Commitment())
		// Unshield recipients are transparent addresses; there is no
		// viewing key to encrypt to, so the slot carries an empty
		// envelope rather than a real ciphertext.
		envelopes = append(envelopes, note.Envelope{})
	}

	changeValue := uint256New()
	changeValue.Sub(inputSum, outputsSum)
	changeValue.Sub(changeValue, unshieldValue)
	if !changeValue.IsZero() {
		random, err := randomUint256()
		if err != nil {
			return nil, nil, err
		}
		changeNote := note.NewTransactNote(w.Keys.Spending.PublicKey, random, ag.group.TokenData, changeValue, note.Memo{OutputType: note.OutputChange})
		env, err := note.Seal(w.Keys.Viewing.PublicKey, changeNote)
		if err != nil {
			return nil, nil, err
		}
		commitments = append(commitments, changeNote.Commitment())
		envelopes = append(envelopes, *env)
	}

	txID := deriveTxID(nullifiers, commitments)

	tx := &Transaction{
		TxID:             txID,
		Nullifiers:       nullifiers,
		CommitmentsOut:   commitments,
		MerkleRoot:       trees.Root(ag.group.SpendingTree),
		BoundParams:      BoundParams{TreeNumber: ag.group.SpendingTree, MinGasPrice: b.OverallMinGasPrice},
		AdaptID:          b.adaptID,
		EncryptedRandoms: envelopes,
		InclusionProofs:  proofs,
	}
	return tx, sent, nil
}

// deriveTxID folds every nullifier and output commitment of a
// transaction into one id, used to key the sender-side outgoing log and
// to group a batch's own transactions in history.
func deriveTxID(nullifiers, commitments []wire.Hash) wire.Hash {
	fields := make([]fr.Element, 0, len(nullifiers)+len(commitments))
	for _, n := range nullifiers {
		fields = append(fields, n.FieldElement())
	}
	for _, c := range commitments {
		fields = append(fields, c.FieldElement())
	}
	return wire.PoseidonHash(fields...)
}

// encodePublicInputs serializes the fields the circuit exposes publicly:
// merkle root, nullifiers, output commitments, and the adapt binding.
// Big-endian, fixed-width per field, per spec.md §4.5.
func encodePublicInputs(tx *Transaction) []byte {
	buf := make([]byte, 0, wire.HashSize*(1+len(tx.Nullifiers)+len(tx.CommitmentsOut))+len(tx.AdaptID.Contract)+wire.HashSize)
	buf = append(buf, tx.MerkleRoot[:]...)
	for _, nf := range tx.Nullifiers {
		buf = append(buf, nf[:]...)
	}
	for _, cm := range tx.CommitmentsOut {
		buf = append(buf, cm[:]...)
	}
	buf = append(buf, tx.AdaptID.Contract[:]...)
	buf = append(buf, tx.AdaptID.Parameters[:]...)
	return buf
}

// encodeWitness serializes the private inclusion-proof data a prover
// needs alongside encodePublicInputs' output: each spent leaf's index and
// Merkle sibling path.
func encodeWitness(proofs []merkletree.MerkleProof) []byte {
	var buf []byte
	for _, p := range proofs {
		var idx [8]byte
		binary.BigEndian.PutUint64(idx[:], p.LeafIndex)
		buf = append(buf, idx[:]...)
		for _, el := range p.PathElements {
			buf = append(buf, el[:]...)
		}
	}
	return buf
}
