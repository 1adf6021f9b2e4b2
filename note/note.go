// Package note implements the shielded note model described in spec.md
// §3–§4.2: the Shield/Transact/Unshield note variants, their commitment
// and nullifier derivation, and the memo-field layout carried inside the
// encrypted envelope. It is grounded on the teacher's
// wire/shielded.go Note/NoteCommitment/Nullifier types, restructured from
// SHA-256 byte concatenation to Poseidon field hashing per spec.md §3.
package note

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"umbra-core/wire"
)

// OutputType tags why a note exists, carried in the memo field per
// spec.md §3.
type OutputType uint8

const (
	OutputTransfer OutputType = iota
	OutputRelayerFee
	OutputChange
)

// MemoSenderRandomNull marks "hide sender" in the memo field's
// senderRandom slot.
var MemoSenderRandomNull = wire.Hash{}

// Memo is the decrypted contents of a note's memo field: an outputType
// tag, a sender-identifying random value (or MemoSenderRandomNull to hide
// the sender), an optional wallet-source tag, and optional free-form text.
type Memo struct {
	OutputType   OutputType
	SenderRandom wire.Hash
	WalletSource string
	Text         string
}

// Kind tags which note variant a Note carries.
type Kind uint8

const (
	KindShield Kind = iota
	KindTransact
	KindUnshield
)

// Note is the tagged variant over ShieldNote/TransactNote/UnshieldNote
// from spec.md §9: common fields plus per-kind data, dispatched by Kind
// instead of a class hierarchy.
type Note struct {
	Kind Kind

	NPK       wire.Hash // note public key: Poseidon(spendingPK, random)
	TokenHash wire.Hash
	Value     *uint256.Int
	Random    *uint256.Int

	Memo Memo

	// RecipientAddr is set only for Kind == KindUnshield: the note's npk
	// is not a Poseidon hash but encodes this recipient address directly.
	RecipientAddr wire.Address20
	TokenData     wire.TokenData
}

// NewTransactNote builds a Transact-kind note: npk = Poseidon(spendingPK,
// random).
func NewTransactNote(spendingPK wire.Hash, random *uint256.Int, token wire.TokenData, value *uint256.Int, memo Memo) Note {
	npk := derivePK(spendingPK, random)
	return Note{
		Kind:      KindTransact,
		NPK:       npk,
		TokenHash: token.Hash(),
		Value:     value,
		Random:    random,
		Memo:      memo,
		TokenData: token,
	}
}

// NewShieldNote builds a Shield-kind note, sealed with a fresh ephemeral
// key by the shielder (see envelope.go for the sealing step).
func NewShieldNote(spendingPK wire.Hash, random *uint256.Int, token wire.TokenData, value *uint256.Int, memo Memo) Note {
	n := NewTransactNote(spendingPK, random, token, value, memo)
	n.Kind = KindShield
	return n
}

// NewUnshieldNote builds an Unshield-kind note: its npk encodes the
// recipient's transparent address rather than a Poseidon hash of a
// spending key, per spec.md §3.
func NewUnshieldNote(recipient wire.Address20, token wire.TokenData, value *uint256.Int) Note {
	var npk wire.Hash
	copy(npk[wire.HashSize-len(recipient):], recipient[:])
	return Note{
		Kind:          KindUnshield,
		NPK:           npk,
		TokenHash:     token.Hash(),
		Value:         value,
		Random:        uint256.NewInt(0),
		RecipientAddr: recipient,
		TokenData:     token,
	}
}

// DerivePK computes npk = Poseidon(spendingPublicKey, random). It is
// exported so a receiver who has decrypted a note's plaintext (random,
// value, tokenHash) can recompute the note's npk from their own spending
// public key without needing it to round-trip through the ciphertext.
func DerivePK(spendingPublicKey wire.Hash, random *uint256.Int) wire.Hash {
	return wire.PoseidonHash(spendingPublicKey.FieldElement(), uint256FieldElement(random))
}

func derivePK(spendingKey wire.Hash, random *uint256.Int) wire.Hash {
	return DerivePK(spendingKey, random)
}

func uint256FieldElement(v *uint256.Int) fr.Element {
	var e fr.Element
	b := v.Bytes32()
	e.SetBytes(b[:])
	return e
}

// Commitment derives the note's commitment: Poseidon(npk, tokenHash, value).
func (n Note) Commitment() wire.Hash {
	return wire.PoseidonHash(n.NPK.FieldElement(), n.TokenHash.FieldElement(), uint256FieldElement(n.Value))
}

// Nullifier derives the note's nullifier:
// Poseidon(spendingPrivateKey, leafIndex). It requires the spending key
// that produced this note's npk and the note's position in the Merkle
// tree, since the nullifier must be unforgeable without the spending key
// yet uniquely tied to that one leaf.
func (n Note) Nullifier(spendingKey wire.Hash, leafIndex uint64) wire.Hash {
	var idx fr.Element
	idx.SetUint64(leafIndex)
	return wire.PoseidonHash(spendingKey.FieldElement(), idx)
}

// IsZeroCommitment reports whether this note's commitment is the zero
// field element, which queueLeaves must reject per spec.md §4.1.
func (n Note) IsZeroCommitment() bool {
	return n.Commitment() == wire.Hash{}
}
