package wire

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestHashFromHexRoundTrip(t *testing.T) {
	h, err := HashFromHex("0x01020304000000000000000000000000000000000000000000000000000000000a")
	if err == nil {
		t.Fatalf("expected error for oversized hex, got hash %s", h)
	}

	h, err = HashFromHex("0xdeadbeef")
	if err != nil {
		t.Fatalf("HashFromHex() error = %v", err)
	}
	if h.String() != "0x00000000000000000000000000000000000000000000000000000000deadbeef" {
		t.Errorf("unexpected left-padded hash: %s", h)
	}
}

func TestPoseidonHashDeterministic(t *testing.T) {
	a, err := HashFromHex("0x01")
	if err != nil {
		t.Fatalf("HashFromHex: %v", err)
	}
	b, err := HashFromHex("0x02")
	if err != nil {
		t.Fatalf("HashFromHex: %v", err)
	}

	h1 := PoseidonHash(a.FieldElement(), b.FieldElement())
	h2 := PoseidonHash(a.FieldElement(), b.FieldElement())
	if h1 != h2 {
		t.Fatalf("PoseidonHash not deterministic: %s != %s", h1, h2)
	}

	h3 := PoseidonHash(b.FieldElement(), a.FieldElement())
	if h1 == h3 {
		t.Fatalf("PoseidonHash should not be order-independent")
	}
}

func TestTokenHashDistinguishesKinds(t *testing.T) {
	addr := Address20{0x01}
	id := uint256.NewInt(7)

	erc20 := NewERC20Token(addr)
	erc721 := NewERC721Token(addr, id)
	erc1155 := NewERC1155Token(addr, id)

	if erc20.Hash() == erc721.Hash() {
		t.Error("ERC20 and ERC721 token hashes collide")
	}
	if erc721.Hash() == erc1155.Hash() {
		t.Error("ERC721 and ERC1155 token hashes collide for same addr/subId")
	}
}

func TestTokenDataEqual(t *testing.T) {
	addr := Address20{0x02}
	a := NewERC721Token(addr, uint256.NewInt(1))
	b := NewERC721Token(addr, uint256.NewInt(1))
	c := NewERC721Token(addr, uint256.NewInt(2))

	if !a.Equal(b) {
		t.Error("expected equal TokenData to compare equal")
	}
	if a.Equal(c) {
		t.Error("expected different subId to compare unequal")
	}
}
