package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
)

// KeyStore holds private key seeds by reference.
type KeyStore interface {
	Put(ctx context.Context, ref string, seed []byte) error
	// Get returns ErrUnknownKey if ref is absent.
	Get(ctx context.Context, ref string) ([]byte, error)
}

// MemoryKeyStore keeps seeds in process memory. Keys are lost on restart.
type MemoryKeyStore struct {
	mu    sync.RWMutex
	seeds map[string][]byte
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{seeds: make(map[string][]byte)}
}

func (s *MemoryKeyStore) Put(_ context.Context, ref string, seed []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeds[ref] = bytes.Clone(seed)
	return nil
}

func (s *MemoryKeyStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seed, ok := s.seeds[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, ref)
	}
	return bytes.Clone(seed), nil
}

// AgeFileKeyStore persists seeds in a single file encrypted with age to an
// X25519 identity. The whole map is rewritten on every Put; key creation is
// rare (one per principal) so this stays cheap.
type AgeFileKeyStore struct {
	path     string
	identity *age.X25519Identity

	mu    sync.RWMutex
	seeds map[string][]byte
}

// OpenAgeFileKeyStore loads the key file at path, decrypting it with the
// AGE-SECRET-KEY-1... identity. A missing file starts an empty store.
func OpenAgeFileKeyStore(path, identity string) (*AgeFileKeyStore, error) {
	id, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, fmt.Errorf("parsing keystore identity: %w", err)
	}

	s := &AgeFileKeyStore{
		path:     path,
		identity: id,
		seeds:    make(map[string][]byte),
	}

	ciphertext, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading keystore: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), id)
	if err != nil {
		return nil, fmt.Errorf("decrypting keystore: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted keystore: %w", err)
	}
	if err := json.Unmarshal(plaintext, &s.seeds); err != nil {
		return nil, fmt.Errorf("decoding keystore: %w", err)
	}
	return s, nil
}

func (s *AgeFileKeyStore) Put(_ context.Context, ref string, seed []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.seeds[ref]
	s.seeds[ref] = bytes.Clone(seed)

	if err := s.flush(); err != nil {
		if had {
			s.seeds[ref] = prev
		} else {
			delete(s.seeds, ref)
		}
		return err
	}
	return nil
}

func (s *AgeFileKeyStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seed, ok := s.seeds[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, ref)
	}
	return bytes.Clone(seed), nil
}

// flush encrypts the map and atomically replaces the key file. Caller holds mu.
func (s *AgeFileKeyStore) flush() error {
	plaintext, err := json.Marshal(s.seeds)
	if err != nil {
		return fmt.Errorf("encoding keystore: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir keystore dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return fmt.Errorf("create temp keystore: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp keystore: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp keystore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp keystore: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace keystore: %w", err)
	}
	return nil
}

// GenerateIdentity returns a fresh age X25519 identity and its recipient.
func GenerateIdentity() (identity, recipient string, err error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("generating age identity: %w", err)
	}
	return id.String(), id.Recipient().String(), nil
}

// ReadIdentityFile returns the age identity stored at path. When the file is
// missing and create is true a new identity is generated and written with
// owner-only permissions.
func ReadIdentityFile(path string, create bool) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		identity := strings.TrimSpace(string(data))
		if identity == "" {
			return "", fmt.Errorf("identity file %s is empty", path)
		}
		return identity, nil
	}
	if !os.IsNotExist(err) || !create {
		return "", fmt.Errorf("reading identity file: %w", err)
	}

	identity, _, err := GenerateIdentity()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("mkdir identity dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create identity file: %w", err)
	}
	if _, err := f.WriteString(identity + "\n"); err != nil {
		f.Close()
		return "", fmt.Errorf("write identity file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close identity file: %w", err)
	}
	return identity, nil
}
