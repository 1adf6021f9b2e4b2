// Package keys implements BIP32-like derivation of spending and viewing
// key pairs from a mnemonic plus an account index, and the bech32-style
// address encoding over those keys described in spec.md §6. Grounded on
// the teacher's crypto/signature.go (GenerateMnemonic/MnemonicToSeed/
// SeedToKeyPair) and the API surface implied by crypto/wallet_test.go's
// GenerateSecureWallet/RestoreSecureWallet.
package keys

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/holiman/uint256"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"umbra-core/wire"
)

// KeyPair is a spending or viewing scalar/point pair on the BabyJubJub
// companion curve.
type KeyPair struct {
	PrivateKey *uint256.Int
	PublicKey  wire.Hash
}

// WalletKeys holds the derived spending and viewing key pairs for one
// account index of one mnemonic.
type WalletKeys struct {
	Mnemonic string
	Index    uint32
	Spending KeyPair
	Viewing  KeyPair
}

var edwardsCurve = twistededwards.GetEdwardsCurve()

// GenerateMnemonic returns a fresh BIP39 24-word mnemonic (256 bits of
// entropy), matching the teacher's GenerateMnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// DeriveWallet derives the spending and viewing key pairs for account
// index from a mnemonic: mnemonic -> BIP39 seed -> BIP32 master key ->
// hardened child at index, one subtree per key kind, each child key
// folded into a BabyJubJub scalar via Poseidon.
func DeriveWallet(mnemonic string, index uint32) (*WalletKeys, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("keys: invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, err
	}

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}

	spendingChild, err := derivePath(master, index, 0)
	if err != nil {
		return nil, err
	}
	viewingChild, err := derivePath(master, index, 1)
	if err != nil {
		return nil, err
	}

	spending := keyPairFromChild(spendingChild)
	viewing := keyPairFromChild(viewingChild)

	return &WalletKeys{
		Mnemonic: mnemonic,
		Index:    index,
		Spending: spending,
		Viewing:  viewing,
	}, nil
}

// derivePath walks m/44'/index'/role' -- a hardened path per account
// index with a distinct hardened "role" leaf (0 = spending, 1 = viewing)
// so the two key kinds never collide even if one were leaked.
func derivePath(master *bip32.Key, index, role uint32) (*bip32.Key, error) {
	path := []uint32{
		44 + bip32.FirstHardenedChild,
		index + bip32.FirstHardenedChild,
		role + bip32.FirstHardenedChild,
	}
	child := master
	var err error
	for _, n := range path {
		child, err = child.NewChildKey(n)
		if err != nil {
			return nil, err
		}
	}
	return child, nil
}

// keyPairFromChild folds a BIP32 child key's 32-byte key material into a
// BabyJubJub scalar (the Poseidon hash of the raw key bytes) and derives
// the corresponding public point.
func keyPairFromChild(child *bip32.Key) KeyPair {
	_, pub := btcec.PrivKeyFromBytes(child.Key)
	_ = pub // the secp256k1 public key is discarded and plays no part in the derived pair

	var childMaterial wire.Hash
	copy(childMaterial[:], child.Key)
	scalarHash := wire.PoseidonHash(childMaterial.FieldElement())
	priv := uint256.NewInt(0).SetBytes(scalarHash[:])

	var point twistededwards.PointAffine
	s := new(big.Int)
	priv.ToBig(s)
	point.ScalarMultiplication(&edwardsCurve.Base, s)

	var pubHash wire.Hash
	yBytes := point.Y.Bytes()
	copy(pubHash[:], yBytes[:])

	return KeyPair{PrivateKey: priv, PublicKey: pubHash}
}
