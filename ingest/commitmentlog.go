package ingest

import (
	"context"
	"encoding/binary"
	"fmt"

	"umbra-core/kv"
	"umbra-core/note"
	"umbra-core/wire"
)

// CommitmentLog persists, per chain, the encrypted envelope published
// alongside each committed leaf. merkletree.Store already persists the
// commitment itself as a Merkle leaf; the ciphertext a wallet needs to
// attempt decryption against never enters the tree, so it is logged here
// instead -- the production backing for wallet.LeafSource, sibling to the
// in-memory fixture the package's own tests use.
type CommitmentLog struct {
	backing  kv.Store
	chainKey string
}

func NewCommitmentLog(backing kv.Store, chainKey string) *CommitmentLog {
	return &CommitmentLog{backing: backing, chainKey: chainKey}
}

func commitmentLogKey(chainKey string, treeNumber, leafIndex uint64) []byte {
	return []byte(fmt.Sprintf("commitments/%s/%d/%d", chainKey, treeNumber, leafIndex))
}

// Record stores one leaf's commitment and envelope. A zero-value envelope
// (no ciphertext published for this leaf) is stored as-is and will simply
// never decrypt.
func (l *CommitmentLog) Record(ctx context.Context, treeNumber, leafIndex uint64, commitment wire.Hash, env note.Envelope) error {
	row := encodeCommitmentRow(commitment, env)
	if err := l.backing.Put(ctx, commitmentLogKey(l.chainKey, treeNumber, leafIndex), row); err != nil {
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	return nil
}

// Commitment implements wallet.LeafSource. It takes no context because
// that capability interface doesn't carry one; a miss or I/O error both
// simply report "not present" to the scanning wallet.
func (l *CommitmentLog) Commitment(treeNumber, leafIndex uint64) (wire.Hash, note.Envelope, bool) {
	b, err := l.backing.Get(context.Background(), commitmentLogKey(l.chainKey, treeNumber, leafIndex))
	if err != nil {
		return wire.Hash{}, note.Envelope{}, false
	}
	commitment, env, ok := decodeCommitmentRow(b)
	return commitment, env, ok
}

func encodeCommitmentRow(commitment wire.Hash, env note.Envelope) []byte {
	buf := make([]byte, 0, wire.HashSize*2+4+len(env.Ciphertext))
	buf = append(buf, commitment[:]...)
	buf = append(buf, env.SenderEphPub[:]...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(env.Ciphertext)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, env.Ciphertext...)
	return buf
}

func decodeCommitmentRow(b []byte) (wire.Hash, note.Envelope, bool) {
	if len(b) < wire.HashSize*2+4 {
		return wire.Hash{}, note.Envelope{}, false
	}
	var commitment, ephPub wire.Hash
	copy(commitment[:], b[:wire.HashSize])
	copy(ephPub[:], b[wire.HashSize:wire.HashSize*2])
	n := binary.BigEndian.Uint32(b[wire.HashSize*2 : wire.HashSize*2+4])
	rest := b[wire.HashSize*2+4:]
	if uint32(len(rest)) < n {
		return wire.Hash{}, note.Envelope{}, false
	}
	ciphertext := append([]byte(nil), rest[:n]...)
	return commitment, note.Envelope{SenderEphPub: ephPub, Ciphertext: ciphertext}, true
}
