package wire

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

// TokenKind tags the variant of TokenData.
type TokenKind uint8

const (
	TokenERC20 TokenKind = iota
	TokenERC721
	TokenERC1155
)

func (k TokenKind) String() string {
	switch k {
	case TokenERC20:
		return "ERC20"
	case TokenERC721:
		return "ERC721"
	case TokenERC1155:
		return "ERC1155"
	default:
		return "unknown"
	}
}

// Address20 is an EVM-style 20-byte contract address.
type Address20 [20]byte

func (a Address20) String() string {
	return Hash(append(make([]byte, 12), a[:]...)).String()
}

// TokenData is the tagged variant over ERC20/ERC721/ERC1155 token
// references described in spec.md §3. SubID is the unused zero value for
// ERC20.
type TokenData struct {
	Kind  TokenKind
	Addr  Address20
	SubID *uint256.Int // nil for ERC20
}

// NewERC20Token builds an ERC20 TokenData.
func NewERC20Token(addr Address20) TokenData {
	return TokenData{Kind: TokenERC20, Addr: addr, SubID: uint256.NewInt(0)}
}

// NewERC721Token builds an ERC721 TokenData for the given tokenId.
func NewERC721Token(addr Address20, tokenID *uint256.Int) TokenData {
	return TokenData{Kind: TokenERC721, Addr: addr, SubID: tokenID}
}

// NewERC1155Token builds an ERC1155 TokenData for the given tokenId.
func NewERC1155Token(addr Address20, tokenID *uint256.Int) TokenData {
	return TokenData{Kind: TokenERC1155, Addr: addr, SubID: tokenID}
}

// Hash derives the token-hash: Poseidon(tag || addr || subId), truncated to
// a field element, which keys all per-token storage in the wallet and
// solutions engine.
func (t TokenData) Hash() Hash {
	var tag fr.Element
	tag.SetUint64(uint64(t.Kind))

	var addrElem fr.Element
	addrElem.SetBytes(t.Addr[:])

	var subElem fr.Element
	sub := t.SubID
	if sub == nil {
		sub = uint256.NewInt(0)
	}
	subBytes := sub.Bytes32()
	subElem.SetBytes(subBytes[:])

	return PoseidonHash(tag, addrElem, subElem)
}

// Equal reports whether two TokenData values describe the same asset.
func (t TokenData) Equal(other TokenData) bool {
	if t.Kind != other.Kind || t.Addr != other.Addr {
		return false
	}
	ts, os := t.SubID, other.SubID
	if ts == nil {
		ts = uint256.NewInt(0)
	}
	if os == nil {
		os = uint256.NewInt(0)
	}
	return ts.Eq(os)
}
