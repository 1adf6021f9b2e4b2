package note

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/hkdf"

	"umbra-core/wire"
)

// Envelope is the published, on-chain form of an encrypted note: an
// ephemeral public key plus an AES-256-GCM sealed ciphertext (the GCM tag
// is appended to Ciphertext by cipher.AEAD.Seal). Grounded on the
// teacher's wire/shielded.go EncryptNote/DecryptNote shape, with
// DeriveSharedSecret's SHA-256 concatenation replaced by a real
// BabyJubJub ECDH.
type Envelope struct {
	SenderEphPub wire.Hash
	Ciphertext   []byte
}

const (
	// walletSourceTagSize is the fixed width of the memo's trailing
	// wallet-source identifier, zero-padded/truncated to fit.
	walletSourceTagSize = 16
	// memoHeaderSize is the real total width of the fixed-layout memo
	// prefix: outputType(1) || senderRandom(32) || walletSourceTag(16).
	memoHeaderSize  = 1 + wire.HashSize + walletSourceTagSize
	plaintextHeader = 16 + 16 + 32 // random(16) || value(16) || tokenHash(32)
)

var edwardsCurve = twistededwards.GetEdwardsCurve()

// pointFromScalar computes scalar*Base on the BabyJubJub companion curve,
// i.e. a public key from a private scalar.
func pointFromScalar(scalar *uint256.Int) twistededwards.PointAffine {
	var p twistededwards.PointAffine
	s := new(big.Int)
	scalar.ToBig(s)
	p.ScalarMultiplication(&edwardsCurve.Base, s)
	return p
}

// encodePoint compresses a curve point into the 32-byte form published on
// chain (Y coordinate; X sign folded into the top bit).
func encodePoint(p twistededwards.PointAffine) wire.Hash {
	var h wire.Hash
	yBytes := p.Y.Bytes()
	copy(h[:], yBytes[:])
	if isOdd(&p.X) {
		h[0] |= 0x80
	}
	return h
}

func isOdd(e *fr.Element) bool {
	b := e.Bytes()
	return b[len(b)-1]&1 == 1
}

// ecdh derives the shared secret for a sender holding scalar and a
// receiver's published public key point: shared = scalar * receiverPub.
func ecdh(scalar *uint256.Int, receiverPub twistededwards.PointAffine) twistededwards.PointAffine {
	var shared twistededwards.PointAffine
	s := new(big.Int)
	scalar.ToBig(s)
	shared.ScalarMultiplication(&receiverPub, s)
	return shared
}

// deriveEncKeyIV expands an ECDH shared point into a 32-byte AES-256 key
// and a 12-byte GCM nonce using HKDF, per spec.md §4.2
// ("(encKey, iv) = H(shared)").
func deriveEncKeyIV(shared twistededwards.PointAffine) (key [32]byte, iv [12]byte, err error) {
	yBytes := shared.Y.Bytes()
	r := hkdf.New(sha256.New, yBytes[:], nil, []byte("umbra-core/note-envelope"))
	if _, err = io.ReadFull(r, key[:]); err != nil {
		return key, iv, err
	}
	if _, err = io.ReadFull(r, iv[:]); err != nil {
		return key, iv, err
	}
	return key, iv, nil
}

// Seal encrypts a note for the receiver's viewing public key, per
// spec.md §4.2: plaintext is (random || value || tokenHash || memo),
// fixed-width where possible, sealed with AES-256-GCM under a key
// derived from an ECDH shared secret on BabyJubJub.
func Seal(receiverViewPub wire.Hash, n Note) (*Envelope, error) {
	ephPriv, err := randomScalar()
	if err != nil {
		return nil, err
	}
	receiverPoint, err := decodePoint(receiverViewPub)
	if err != nil {
		return nil, err
	}

	shared := ecdh(ephPriv, receiverPoint)
	key, iv, err := deriveEncKeyIV(shared)
	if err != nil {
		return nil, err
	}

	plaintext, err := encodePlaintext(n)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, iv[:], plaintext, nil)

	ephPub := pointFromScalar(ephPriv)
	return &Envelope{
		SenderEphPub: encodePoint(ephPub),
		Ciphertext:   ciphertext,
	}, nil
}

// Open attempts to decrypt env with the receiver's viewing private key.
// Per spec.md §4.2, failure is expected and silent whenever the note is
// not addressed to this key: the caller should treat a non-nil error as
// "not ours", not as a fault, and must not log it at error level during a
// wallet scan.
func Open(receiverViewPriv *uint256.Int, env *Envelope) (*Note, error) {
	senderPoint, err := decodePoint(env.SenderEphPub)
	if err != nil {
		return nil, wire.ErrDecryptionFailed
	}

	shared := ecdh(receiverViewPriv, senderPoint)
	key, iv, err := deriveEncKeyIV(shared)
	if err != nil {
		return nil, wire.ErrDecryptionFailed
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, wire.ErrDecryptionFailed
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, wire.ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, iv[:], env.Ciphertext, nil)
	if err != nil {
		return nil, wire.ErrDecryptionFailed
	}

	n, err := decodePlaintext(plaintext)
	if err != nil {
		return nil, wire.ErrDecryptionFailed
	}
	return n, nil
}

func randomScalar() (*uint256.Int, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return uint256.NewInt(0).SetBytes(buf[:]), nil
}

func decodePoint(h wire.Hash) (twistededwards.PointAffine, error) {
	var p twistededwards.PointAffine
	raw := h
	signBit := raw[0]&0x80 != 0
	raw[0] &^= 0x80
	p.Y.SetBytes(raw[:])
	x, err := recoverX(p.Y, signBit)
	if err != nil {
		return p, err
	}
	p.X = x
	return p, nil
}

// recoverX solves the twisted Edwards curve equation a*x^2 + y^2 = 1 +
// d*x^2*y^2 for x given y, selecting the root whose parity matches
// wantOdd.
func recoverX(y fr.Element, wantOdd bool) (fr.Element, error) {
	var y2, num, den, x2 fr.Element
	y2.Square(&y)
	num.SetOne()
	num.Sub(&num, &y2) // 1 - y^2
	den.Mul(&edwardsCurve.D, &y2)
	den.Sub(&edwardsCurve.A, &den) // a - d*y^2
	if den.IsZero() {
		return x2, fmt.Errorf("note: invalid curve point y")
	}
	den.Inverse(&den)
	x2.Mul(&num, &den)

	var x fr.Element
	if x.Sqrt(&x2) == nil {
		return x2, fmt.Errorf("note: y is not on curve")
	}
	if isOdd(&x) != wantOdd {
		x.Neg(&x)
	}
	return x, nil
}

func encodePlaintext(n Note) ([]byte, error) {
	buf := make([]byte, 0, plaintextHeader+memoHeaderSize+len(n.Memo.Text)+4)

	randB := n.Random.Bytes32()
	buf = append(buf, randB[16:]...) // low 128 bits

	valB := n.Value.Bytes32()
	buf = append(buf, valB[16:]...)

	buf = append(buf, n.TokenHash[:]...)

	buf = append(buf, byte(n.Memo.OutputType))
	buf = append(buf, n.Memo.SenderRandom[:]...)
	wsTag := []byte(n.Memo.WalletSource)
	if len(wsTag) > walletSourceTagSize {
		wsTag = wsTag[:walletSourceTagSize]
	}
	padded := make([]byte, walletSourceTagSize)
	copy(padded, wsTag)
	buf = append(buf, padded...)

	textLen := make([]byte, 4)
	binary.BigEndian.PutUint32(textLen, uint32(len(n.Memo.Text)))
	buf = append(buf, textLen...)
	buf = append(buf, []byte(n.Memo.Text)...)

	return buf, nil
}

func decodePlaintext(buf []byte) (*Note, error) {
	if len(buf) < plaintextHeader+memoHeaderSize+4 {
		return nil, fmt.Errorf("note: plaintext too short")
	}
	off := 0
	random := uint256.NewInt(0).SetBytes(buf[off : off+16])
	off += 16
	value := uint256.NewInt(0).SetBytes(buf[off : off+16])
	off += 16
	var tokenHash wire.Hash
	copy(tokenHash[:], buf[off:off+32])
	off += 32

	outputType := OutputType(buf[off])
	off++
	var senderRandom wire.Hash
	copy(senderRandom[:], buf[off:off+wire.HashSize])
	off += wire.HashSize
	walletSource := trimZero(buf[off : off+walletSourceTagSize])
	off += walletSourceTagSize

	textLen := binary.BigEndian.Uint32(buf[off : off+4])
	off += 4
	if int(textLen) > len(buf)-off {
		return nil, fmt.Errorf("note: memo text length out of range")
	}
	text := string(buf[off : off+int(textLen)])

	return &Note{
		TokenHash: tokenHash,
		Value:     value,
		Random:    random,
		Memo: Memo{
			OutputType:   outputType,
			SenderRandom: senderRandom,
			WalletSource: walletSource,
			Text:         text,
		},
	}, nil
}

func trimZero(b []byte) string {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return string(b[:i])
}
