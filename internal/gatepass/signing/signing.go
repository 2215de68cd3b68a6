// Package signing issues and checks the Ed25519 signatures carried in QR
// payloads. Private keys never leave the package: callers hold an opaque key
// reference and a JWK-encoded public key.
package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrKeyGeneration is returned when a key pair cannot be created or stored.
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrUnknownKey is returned by Sign when the reference names no key.
	ErrUnknownKey = errors.New("unknown key reference")
)

// Service abstracts the key custodian.
type Service interface {
	// GenerateKeyPair creates a key pair stored under ref and returns the
	// reference together with the public key as a JWK JSON document.
	GenerateKeyPair(ctx context.Context, ref string) (keyRef string, publicKey string, err error)

	// Sign signs msg with the private key stored under keyRef.
	Sign(ctx context.Context, keyRef string, msg []byte) ([]byte, error)

	// Verify reports whether sig is a valid signature of msg under publicKey.
	// It never panics; any malformed input yields false.
	Verify(publicKey string, msg, sig []byte) bool
}

// Ed25519Signer implements Service with Ed25519 keys persisted as seeds in
// a KeyStore.
type Ed25519Signer struct {
	keys KeyStore
	rand io.Reader
}

func NewEd25519Signer(keys KeyStore) *Ed25519Signer {
	return &Ed25519Signer{keys: keys, rand: rand.Reader}
}

// WithRand replaces the entropy source. Used by tests to simulate failures.
func (s *Ed25519Signer) WithRand(r io.Reader) *Ed25519Signer {
	s.rand = r
	return s
}

func (s *Ed25519Signer) GenerateKeyPair(ctx context.Context, ref string) (string, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("%w: empty key reference", ErrKeyGeneration)
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(s.rand, seed); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	jwkJSON, err := PublicKeyToJWK(pub)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	if err := s.keys.Put(ctx, ref, priv.Seed()); err != nil {
		return "", "", fmt.Errorf("%w: store key: %v", ErrKeyGeneration, err)
	}

	return ref, jwkJSON, nil
}

func (s *Ed25519Signer) Sign(ctx context.Context, keyRef string, msg []byte) ([]byte, error) {
	seed, err := s.keys.Get(ctx, keyRef)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key %q: corrupt seed", keyRef)
	}
	return ed25519.Sign(ed25519.NewKeyFromSeed(seed), msg), nil
}

func (s *Ed25519Signer) Verify(publicKey string, msg, sig []byte) bool {
	pub, err := JWKToPublicKey(publicKey)
	if err != nil {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}
