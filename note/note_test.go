package note

import (
	"testing"

	"github.com/holiman/uint256"

	"umbra-core/wire"
)

func testToken(t *testing.T) wire.TokenData {
	t.Helper()
	return wire.NewERC20Token(wire.Address20{0xAA, 0xBB})
}

func TestCommitmentDeterministicAndNonZero(t *testing.T) {
	spendingKey, _ := wire.HashFromHex("0x01")
	token := testToken(t)

	n := NewTransactNote(spendingKey, uint256.NewInt(42), token, uint256.NewInt(1_000_000), Memo{})

	c1 := n.Commitment()
	c2 := n.Commitment()
	if c1 != c2 {
		t.Fatalf("commitment not deterministic")
	}
	if n.IsZeroCommitment() {
		t.Fatalf("commitment should not be zero for a real note")
	}
}

func TestNullifierVariesByLeafIndex(t *testing.T) {
	spendingKey, _ := wire.HashFromHex("0x01")
	token := testToken(t)
	n := NewTransactNote(spendingKey, uint256.NewInt(1), token, uint256.NewInt(5), Memo{})

	nf1 := n.Nullifier(spendingKey, 3)
	nf2 := n.Nullifier(spendingKey, 4)
	if nf1 == nf2 {
		t.Fatalf("nullifier must differ across leaf indices")
	}
}

func TestUnshieldNotePKEncodesRecipient(t *testing.T) {
	recipient := wire.Address20{0x01, 0x02, 0x03}
	token := testToken(t)
	n := NewUnshieldNote(recipient, token, uint256.NewInt(7))

	var want wire.Hash
	copy(want[wire.HashSize-len(recipient):], recipient[:])
	if n.NPK != want {
		t.Fatalf("unshield npk does not encode recipient address")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	receiverPriv, err := randomScalar()
	if err != nil {
		t.Fatalf("randomScalar: %v", err)
	}
	receiverPub := encodePoint(pointFromScalar(receiverPriv))

	spendingKey, _ := wire.HashFromHex("0xab")
	token := testToken(t)
	n := NewTransactNote(spendingKey, uint256.NewInt(9), token, uint256.NewInt(123456), Memo{
		OutputType:   OutputTransfer,
		SenderRandom: mustHash(t, "0x55"),
		WalletSource: "umbra",
		Text:         "hello",
	})

	env, err := Seal(receiverPub, n)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	opened, err := Open(receiverPriv, env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if !opened.Value.Eq(n.Value) {
		t.Errorf("value mismatch: got %s want %s", opened.Value, n.Value)
	}
	if opened.TokenHash != n.TokenHash {
		t.Errorf("token hash mismatch")
	}
	if opened.Memo.Text != "hello" {
		t.Errorf("memo text mismatch: %q", opened.Memo.Text)
	}
	if opened.Memo.WalletSource != "umbra" {
		t.Errorf("wallet source mismatch: %q", opened.Memo.WalletSource)
	}
}

func TestOpenWithWrongKeyFailsSilently(t *testing.T) {
	receiverPriv, _ := randomScalar()
	receiverPub := encodePoint(pointFromScalar(receiverPriv))
	wrongPriv, _ := randomScalar()

	spendingKey, _ := wire.HashFromHex("0xcd")
	token := testToken(t)
	n := NewTransactNote(spendingKey, uint256.NewInt(3), token, uint256.NewInt(99), Memo{})

	env, err := Seal(receiverPub, n)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := Open(wrongPriv, env); err == nil {
		t.Fatalf("expected decryption failure with non-matching key")
	}
}

func mustHash(t *testing.T, s string) wire.Hash {
	t.Helper()
	h, err := wire.HashFromHex(s)
	if err != nil {
		t.Fatalf("HashFromHex(%q): %v", s, err)
	}
	return h
}
