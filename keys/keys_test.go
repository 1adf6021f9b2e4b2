package keys

import (
	"strings"
	"testing"
)

func TestDeriveWalletDeterministic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	words := strings.Fields(mnemonic)
	if len(words) != 24 {
		t.Fatalf("expected 24-word mnemonic, got %d words", len(words))
	}

	w1, err := DeriveWallet(mnemonic, 0)
	if err != nil {
		t.Fatalf("DeriveWallet: %v", err)
	}
	w2, err := DeriveWallet(mnemonic, 0)
	if err != nil {
		t.Fatalf("DeriveWallet: %v", err)
	}

	if w1.Spending.PublicKey != w2.Spending.PublicKey {
		t.Errorf("spending key derivation is not deterministic")
	}
	if w1.Viewing.PublicKey != w2.Viewing.PublicKey {
		t.Errorf("viewing key derivation is not deterministic")
	}

	w3, err := DeriveWallet(mnemonic, 1)
	if err != nil {
		t.Fatalf("DeriveWallet index 1: %v", err)
	}
	if w1.Spending.PublicKey == w3.Spending.PublicKey {
		t.Errorf("different account indices produced the same spending key")
	}
	if w1.Spending.PublicKey == w1.Viewing.PublicKey {
		t.Errorf("spending and viewing keys collided within one account")
	}
}

func TestDeriveWalletRejectsInvalidMnemonic(t *testing.T) {
	invalid := []string{
		"",
		"invalid mnemonic phrase",
		"word1 word2 word3",
	}
	for _, m := range invalid {
		if _, err := DeriveWallet(m, 0); err == nil {
			t.Errorf("DeriveWallet(%q) should fail", m)
		}
	}
}

func TestAddressRoundTrip(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	w, err := DeriveWallet(mnemonic, 0)
	if err != nil {
		t.Fatalf("DeriveWallet: %v", err)
	}

	chain := Chain{Type: ChainTypeEVM, ID: 1}
	addr := w.WalletAddress(chain)
	encoded := addr.String()

	if !strings.HasPrefix(encoded, AddressHRP+"1") {
		t.Errorf("address %q missing expected hrp prefix", encoded)
	}

	decoded, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}

	if decoded.MasterPublicKey != addr.MasterPublicKey {
		t.Errorf("master public key mismatch after round trip")
	}
	if decoded.ViewingPublicKey != addr.ViewingPublicKey {
		t.Errorf("viewing public key mismatch after round trip")
	}
	if decoded.Chain != addr.Chain {
		t.Errorf("chain mismatch after round trip: got %+v want %+v", decoded.Chain, addr.Chain)
	}
}

func TestParseAddressRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"not-a-bech32-string",
		"0zk1notlongenough",
	}
	for _, c := range cases {
		if _, err := ParseAddress(c); err == nil {
			t.Errorf("ParseAddress(%q) should fail", c)
		}
	}
}

func TestAddressesForDifferentChainsDiffer(t *testing.T) {
	mnemonic, _ := GenerateMnemonic()
	w, _ := DeriveWallet(mnemonic, 0)

	a1 := w.WalletAddress(Chain{Type: ChainTypeEVM, ID: 1})
	a2 := w.WalletAddress(Chain{Type: ChainTypeEVM, ID: 137})

	if a1.String() == a2.String() {
		t.Errorf("addresses for different chain ids should differ")
	}
}

func TestGetAddressType(t *testing.T) {
	mnemonic, _ := GenerateMnemonic()
	w, _ := DeriveWallet(mnemonic, 0)
	valid := w.WalletAddress(Chain{Type: ChainTypeEVM, ID: 1}).String()

	tests := []struct {
		name     string
		address  string
		expected AddressType
	}{
		{"valid shielded address", valid, AddressTypeShielded},
		{"empty", "", AddressTypeUnknown},
		{"wrong hrp", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", AddressTypeUnknown},
		{"truncated", "0zk1notlongenough", AddressTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetAddressType(tt.address); got != tt.expected {
				t.Errorf("GetAddressType(%q) = %v, want %v", tt.address, got, tt.expected)
			}
		})
	}
}

func TestIsShieldedAddress(t *testing.T) {
	mnemonic, _ := GenerateMnemonic()
	w, _ := DeriveWallet(mnemonic, 0)
	valid := w.WalletAddress(Chain{Type: ChainTypeEVM, ID: 1}).String()

	if !IsShieldedAddress(valid) {
		t.Errorf("expected %q to be recognized as a shielded address", valid)
	}
	if IsShieldedAddress("not-an-address") {
		t.Errorf("expected malformed string to be rejected")
	}
}
