package ingest

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"umbra-core/kv"
	"umbra-core/wire"
)

// TokenRegistry persists the full TokenData (kind, contract address,
// sub-id) behind each tokenHash. A note's commitment only ever binds the
// tokenHash, and a Transact/Unshield envelope's decrypted plaintext
// carries the same truncated hash rather than the full token identity
// (note/envelope.go's plaintext layout) — so a wallet scan alone can
// never recover which ERC721/ERC1155 a received note actually names.
// This registry is fed from shield events, the one place a token's real
// identity is published on-chain rather than only folded into a hash,
// per spec.md §3.
type TokenRegistry struct {
	backing  kv.Store
	chainKey string
}

// NewTokenRegistry wraps an existing kv.Store capability.
func NewTokenRegistry(backing kv.Store, chainKey string) *TokenRegistry {
	return &TokenRegistry{backing: backing, chainKey: chainKey}
}

func tokenRegistryKey(chainKey string, tokenHash wire.Hash) []byte {
	return []byte(fmt.Sprintf("tokens/%s/%s", chainKey, tokenHash.String()))
}

// Record indexes token under its tokenHash, so a later scan can resolve
// any note carrying that hash back to the real token identity.
func (r *TokenRegistry) Record(ctx context.Context, token wire.TokenData) error {
	if err := r.backing.Put(ctx, tokenRegistryKey(r.chainKey, token.Hash()), encodeTokenData(token)); err != nil {
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	return nil
}

// TokenData implements wallet.TokenResolver. It takes no context for the
// same reason wallet.LeafSource doesn't: a miss or I/O error both simply
// report "unknown token" to the scanning wallet.
func (r *TokenRegistry) TokenData(tokenHash wire.Hash) (wire.TokenData, bool) {
	b, err := r.backing.Get(context.Background(), tokenRegistryKey(r.chainKey, tokenHash))
	if err != nil {
		return wire.TokenData{}, false
	}
	return decodeTokenData(b)
}

func encodeTokenData(t wire.TokenData) []byte {
	buf := make([]byte, 0, 1+20+32)
	buf = append(buf, byte(t.Kind))
	buf = append(buf, t.Addr[:]...)
	sub := t.SubID
	if sub == nil {
		sub = uint256.NewInt(0)
	}
	subBytes := sub.Bytes32()
	buf = append(buf, subBytes[:]...)
	return buf
}

func decodeTokenData(b []byte) (wire.TokenData, bool) {
	if len(b) != 1+20+32 {
		return wire.TokenData{}, false
	}
	var addr wire.Address20
	copy(addr[:], b[1:21])
	sub := uint256.NewInt(0).SetBytes(b[21:53])
	return wire.TokenData{Kind: wire.TokenKind(b[0]), Addr: addr, SubID: sub}, true
}
