package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrCreateSecret returns the hex secret kept in path, generating and
// writing a new one on first use. Concurrent first runs agree on a single
// secret: the file is published with a hard link, which fails if another
// process got there first.
func LoadOrCreateSecret(path string) ([]byte, error) {
	secret, err := readSecretFile(path)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return secret, err
	}

	secret = make([]byte, keyLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create secret directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".secret-*")
	if err != nil {
		return nil, fmt.Errorf("failed to write token secret: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, werr := tmp.WriteString(hex.EncodeToString(secret) + "\n")
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return nil, fmt.Errorf("failed to write token secret: %w", werr)
	}
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return readSecretFile(path)
		}
		return nil, fmt.Errorf("failed to write token secret: %w", err)
	}
	return secret, nil
}

func readSecretFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	secret, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(secret) < minSecret {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidSecret)
	}
	return secret, nil
}
