// Package ecies implements the hybrid public-key encryption scheme used to
// seal DKG row/value material to a specific peer's long-term key, adapted
// from drand's ecies package: an ephemeral-static Diffie-Hellman exchange,
// HKDF key derivation, and AES-GCM for the payload.
package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/drand/kyber"
	"github.com/drand/kyber/util/random"
	"golang.org/x/crypto/hkdf"
)

const keyLength = 32
const nonceLength = 12

// Ciphertext is the wire representation of an encrypted payload: the
// ephemeral DH point, the AES-GCM nonce, and the sealed bytes.
type Ciphertext struct {
	Ephemeral []byte
	Nonce     []byte
	Payload   []byte
}

// Equal reports whether two ciphertexts are byte-identical.
func (c *Ciphertext) Equal(o *Ciphertext) bool {
	if o == nil {
		return false
	}
	return bytesEqual(c.Ephemeral, o.Ephemeral) &&
		bytesEqual(c.Nonce, o.Nonce) &&
		bytesEqual(c.Payload, o.Payload)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Encrypt seals msg to the recipient's public key public, on the given
// curve group g (G2 for drand-style long-term keys).
func Encrypt(g kyber.Group, public kyber.Point, msg []byte) (*Ciphertext, error) {
	r := g.Scalar().Pick(random.New())
	eph := g.Point().Mul(r, nil)
	ephBuf, err := eph.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("ecies: marshaling ephemeral point: %w", err)
	}

	dh := g.Point().Mul(r, public)
	dhBuf, err := dh.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("ecies: marshaling dh point: %w", err)
	}

	key, err := deriveKey(dhBuf)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("ecies: sampling nonce: %w", err)
	}

	aesgcm, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}
	payload := aesgcm.Seal(nil, nonce, msg, nil)

	return &Ciphertext{Ephemeral: ephBuf, Nonce: nonce, Payload: payload}, nil
}

// Decrypt opens a Ciphertext produced by Encrypt using the recipient's
// secret key. It returns an error if decryption or authentication fails;
// callers should treat that as a protocol-level fault, not a panic.
func Decrypt(g kyber.Group, priv kyber.Scalar, c *Ciphertext) ([]byte, error) {
	if c == nil {
		return nil, errors.New("ecies: nil ciphertext")
	}
	if len(c.Nonce) != nonceLength {
		return nil, fmt.Errorf("ecies: nonce of length %d, want %d", len(c.Nonce), nonceLength)
	}
	eph := g.Point()
	if err := eph.UnmarshalBinary(c.Ephemeral); err != nil {
		return nil, fmt.Errorf("ecies: unmarshaling ephemeral point: %w", err)
	}
	dh := g.Point().Mul(priv, eph)
	dhBuf, err := dh.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("ecies: marshaling dh point: %w", err)
	}

	key, err := deriveKey(dhBuf)
	if err != nil {
		return nil, err
	}

	aesgcm, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, c.Nonce, c.Payload, nil)
}

func deriveKey(secret []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, nil)
	key := make([]byte, keyLength)
	if _, err := reader.Read(key); err != nil {
		return nil, fmt.Errorf("ecies: deriving key: %w", err)
	}
	return key, nil
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ecies: building AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
