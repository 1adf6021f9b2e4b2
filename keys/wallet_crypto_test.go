package keys

import "testing"

func TestEncryptDecryptWalletKeysRoundTrip(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	wk, err := DeriveWallet(mnemonic, 3)
	if err != nil {
		t.Fatalf("DeriveWallet: %v", err)
	}

	passphrase := []byte("correct horse battery staple")
	enc, err := EncryptWalletKeys(wk, passphrase)
	if err != nil {
		t.Fatalf("EncryptWalletKeys: %v", err)
	}
	if enc.Index != wk.Index {
		t.Fatalf("expected encrypted form to carry Index %d, got %d", wk.Index, enc.Index)
	}

	got, err := DecryptWalletKeys(enc, passphrase)
	if err != nil {
		t.Fatalf("DecryptWalletKeys: %v", err)
	}
	if got.Mnemonic != wk.Mnemonic || got.Index != wk.Index {
		t.Fatalf("expected recovered keys to match original")
	}
	if got.Spending.PublicKey != wk.Spending.PublicKey || got.Viewing.PublicKey != wk.Viewing.PublicKey {
		t.Fatalf("expected recovered key pairs to match original")
	}
}

func TestDecryptWalletKeysRejectsWrongPassphrase(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	wk, err := DeriveWallet(mnemonic, 0)
	if err != nil {
		t.Fatalf("DeriveWallet: %v", err)
	}

	enc, err := EncryptWalletKeys(wk, []byte("right password"))
	if err != nil {
		t.Fatalf("EncryptWalletKeys: %v", err)
	}

	if _, err := DecryptWalletKeys(enc, []byte("wrong password")); err == nil {
		t.Fatalf("expected wrong passphrase to fail decryption")
	}
}
