// Package wire defines the byte- and hash-level primitives shared across
// the engine: fixed-length hashes, hex conversions, and the field-element
// type backing Poseidon hashing of commitments and nullifiers.
package wire

import (
	"encoding/hex"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// HashSize is the length in bytes of a Hash.
const HashSize = 32

// Hash is a fixed-length 32-byte digest, used for token hashes,
// commitments and nullifiers once reduced to bytes.
type Hash [HashSize]byte

// String returns the big-endian hex encoding of the hash, prefixed with 0x.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// HashFromHex parses a big-endian hex string (with or without 0x prefix)
// into a Hash. The string must decode to at most HashSize bytes; shorter
// inputs are left-padded with zeros.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("wire: invalid hex hash %q: %w", s, err)
	}
	if len(b) > HashSize {
		return h, fmt.Errorf("wire: hash %q exceeds %d bytes", s, HashSize)
	}
	copy(h[HashSize-len(b):], b)
	return h, nil
}

// IsZero reports whether h is the all-zero hash, the zero-value leaf of
// an empty Merkle subtree and the sentinel for "no commitment".
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// FieldElement returns the hash reduced modulo the scalar field, the form
// every hash takes once it enters a Poseidon computation.
func (h Hash) FieldElement() fr.Element {
	var e fr.Element
	e.SetBytes(h[:])
	return e
}

// HashFromField serializes a field element back to its big-endian 32-byte
// form.
func HashFromField(e fr.Element) Hash {
	var h Hash
	b := e.Bytes()
	copy(h[:], b[:])
	return h
}

// PoseidonHash hashes a sequence of field elements with the Poseidon
// permutation and returns the squeezed element reduced to a Hash. The
// engine uses this single entry point everywhere a commitment, nullifier,
// npk, or token-hash is derived so that the permutation parameters stay
// in one place.
func PoseidonHash(inputs ...fr.Element) Hash {
	return HashFromField(PoseidonHashElement(inputs...))
}

// PoseidonHashElement is PoseidonHash without the final byte-serialization,
// for callers that keep working in field-element space.
func PoseidonHashElement(inputs ...fr.Element) fr.Element {
	state := make([]fr.Element, len(inputs)+1)
	copy(state[1:], inputs)
	poseidonPermute(state)
	return state[0]
}
