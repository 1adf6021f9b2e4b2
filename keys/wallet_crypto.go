package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// EncryptedWalletKeys is the at-rest form of a WalletKeys: the mnemonic
// and account index needed to re-derive it, sealed under a key derived
// from the caller's encryption key via scrypt. Per spec.md §5, "wallet
// secrets live encrypted at rest; an encryptionKey is required to
// unlock and never stored" — this type is what a host persists instead
// of the plaintext WalletKeys.
type EncryptedWalletKeys struct {
	Index      uint32
	Salt       [16]byte
	Nonce      [12]byte
	Ciphertext []byte
}

func deriveEncryptionKey(encryptionKey, salt []byte) ([]byte, error) {
	return scrypt.Key(encryptionKey, salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

// EncryptWalletKeys seals wk's mnemonic under encryptionKey.
func EncryptWalletKeys(wk *WalletKeys, encryptionKey []byte) (*EncryptedWalletKeys, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := deriveEncryptionKey(encryptionKey, salt[:])
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce[:], []byte(wk.Mnemonic), nil)
	return &EncryptedWalletKeys{Index: wk.Index, Salt: salt, Nonce: nonce, Ciphertext: ciphertext}, nil
}

// DecryptWalletKeys reverses EncryptWalletKeys and re-derives the full
// WalletKeys from the recovered mnemonic. A wrong encryptionKey fails
// AEAD authentication rather than silently producing garbage keys.
func DecryptWalletKeys(enc *EncryptedWalletKeys, encryptionKey []byte) (*WalletKeys, error) {
	key, err := deriveEncryptionKey(encryptionKey, enc.Salt[:])
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	mnemonic, err := gcm.Open(nil, enc.Nonce[:], enc.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("keys: incorrect encryption key")
	}
	return DeriveWallet(string(mnemonic), enc.Index)
}
