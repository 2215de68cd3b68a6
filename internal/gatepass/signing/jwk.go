package signing

import (
	"crypto"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// PublicKeyToJWK encodes an Ed25519 public key as a JWK JSON document with
// kid set to the first 16 hex characters of its RFC 7638 thumbprint.
func PublicKeyToJWK(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid Ed25519 public key length %d", len(pub))
	}

	key, err := jwk.Import(pub)
	if err != nil {
		return "", fmt.Errorf("import public key: %w", err)
	}

	thumbprint, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("thumbprint: %w", err)
	}

	if err := key.Set(jwk.KeyIDKey, fmt.Sprintf("%x", thumbprint)[:16]); err != nil {
		return "", fmt.Errorf("set kid: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.EdDSA()); err != nil {
		return "", fmt.Errorf("set alg: %w", err)
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return "", fmt.Errorf("set use: %w", err)
	}

	b, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("marshal jwk: %w", err)
	}
	return string(b), nil
}

// JWKToPublicKey decodes a JWK JSON document produced by PublicKeyToJWK.
func JWKToPublicKey(doc string) (ed25519.PublicKey, error) {
	key, err := jwk.ParseKey([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("export jwk: %w", err)
	}

	pub, ok := raw.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("expected Ed25519 public key, got %T", raw)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid Ed25519 public key length %d", len(pub))
	}
	return pub, nil
}

// KeyID returns the kid of a JWK document, or "" if it has none.
func KeyID(doc string) string {
	key, err := jwk.ParseKey([]byte(doc))
	if err != nil {
		return ""
	}
	kid, ok := key.KeyID()
	if !ok {
		return ""
	}
	return kid
}
