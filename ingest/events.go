// Package ingest normalizes on-chain shield/transact/unshield/nullifier
// events into Merkle leaves and nullifier-store writes, and provides the
// quickSync backfill hook the engine facade calls on (re)load. Grounded
// on blockchain/shielded_pool.go's ProcessShieldedTransaction /
// ValidateShieldedTransaction control flow: nullifiers are recorded
// before commitments, generalized from a single mempool transaction to a
// stream of confirmed chain events. Re-recording a known nullifier is a
// no-op, not a double-spend error.
package ingest

import (
	"github.com/holiman/uint256"

	"umbra-core/note"
	"umbra-core/wire"
)

// ShieldEvent and TransactEvent share this shape: a contiguous run of
// new leaves observed at (treeNumber, startIndex) in one block. Envelopes,
// when non-nil, is parallel to Commitments: the encrypted randomness the
// chain published alongside each new leaf, for a wallet to later attempt
// decryption against. A leaf with no published ciphertext (e.g. an
// unshield's transparent leg) simply has no corresponding entry. Tokens,
// when non-nil, is also parallel to Commitments: a shield is the one
// event kind where the full TokenData is published on-chain (rather
// than folded into the commitment's tokenHash alone), so only shield
// events carry it.
type CommitmentEvent struct {
	TreeNumber  uint64
	StartIndex  uint64
	Commitments []wire.Hash
	Envelopes   []note.Envelope
	Tokens      []wire.TokenData
	BlockNumber uint64
}

// NullifierEvent is a batch of nullifiers spent in one block.
type NullifierEvent struct {
	Nullifiers  []wire.Hash
	BlockNumber uint64
}

// UnshieldEvent additionally carries the chain-observed recipient and
// amount a contract-side unshield paid out, so the wallet can record the
// fee actually charged rather than re-deriving it (spec.md's resolved
// Open Question: the chain event is authoritative for the fee).
type UnshieldEvent struct {
	CommitmentEvent
	Token  wire.TokenData
	To     wire.Address20
	Amount *uint256.Int
}

// QuickSyncResult is what an injected QuickSyncFunc produces: everything
// observed between the requested start block and chain head.
type QuickSyncResult struct {
	Shields    []CommitmentEvent
	Transacts  []CommitmentEvent
	Unshields  []UnshieldEvent
	Nullifiers []NullifierEvent
}
