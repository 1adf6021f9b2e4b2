package txbatch

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
)

// Proof is a Groth16-formatted proof over BN254: the wire shape spec.md
// §6 requires every Prover to return, ABI-encodable as raw u256
// coordinates for an on-chain verifier contract. This is deliberately
// not a gnark-crypto curve type: a circom/snarkjs-shaped prover (the
// artifact shape below) hands back coordinates, not gnark's own
// groth16.Proof object, so wrapping the latter here would misrepresent
// what an injected Prover actually returns.
type Proof struct {
	A [2]uint256.Int
	B [2][2]uint256.Int
	C [2]uint256.Int
}

// Prover is the injected proving backend. It never runs in-process here;
// the core only depends on this interface, per spec.md §6's "Prover
// (injected)".
type Prover interface {
	Prove(ctx context.Context, artifactID string, publicInputs, witness []byte) (*Proof, error)
}

// Artifacts bundles the verifying key, witness-generator wasm, and
// proving key for one (nullifierCount, outputCount) circuit shape.
type Artifacts struct {
	VKey []byte
	Wasm []byte
	Zkey []byte
}

// ArtifactGetter supplies proving artifacts on demand, keyed by arity,
// per spec.md §6's "Artifact getter (injected)".
type ArtifactGetter interface {
	GetArtifacts(ctx context.Context, nullifierCount, outputCount int) (*Artifacts, error)
}

// ArtifactID encodes (nullifierCount, outputCount) into the identifier a
// Prover expects, per spec.md §6: "artifact identifier encodes
// (nullifierCount, outputCount)".
func ArtifactID(nullifierCount, outputCount int) string {
	return fmt.Sprintf("%d-%d", nullifierCount, outputCount)
}
