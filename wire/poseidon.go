package wire

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// poseidonWidth is the sponge width used for every Poseidon call in the
// engine: one capacity element plus up to poseidonWidth-1 rate elements.
// Eight inputs covers the largest fixed tuple we ever hash in one call
// (a note's npk/tokenHash/value plus spare capacity for tree nodes).
const (
	poseidonWidth        = 9
	poseidonFullRounds   = 8
	poseidonPartialRound = 56
)

var poseidonPerm = poseidon2.NewPermutation(poseidonWidth, poseidonFullRounds, poseidonPartialRound)

// poseidonPermute runs the shared Poseidon2 permutation over state in
// place. state[0] is the capacity element; callers read it back as the
// digest after the call. The permutation takes exactly poseidonWidth
// elements: a shorter state is zero-padded to that width, and a longer
// one is absorbed in chunks so an oversized tuple never silently
// truncates.
func poseidonPermute(state []fr.Element) {
	absorbed := make([]fr.Element, poseidonWidth)
	copy(absorbed, state)
	_ = poseidonPerm.Permutation(absorbed)
	for i := poseidonWidth; i < len(state); i += poseidonWidth - 1 {
		end := i + poseidonWidth - 1
		if end > len(state) {
			end = len(state)
		}
		copy(absorbed[1:1+end-i], state[i:end])
		_ = poseidonPerm.Permutation(absorbed)
	}
	copy(state, absorbed)
}
