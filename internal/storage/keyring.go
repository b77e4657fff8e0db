package storage

import (
	"errors"
	"sync"

	"github.com/zalando/go-keyring"

	"wirevpn/internal/client/logger"
)

// DefaultKeyringService is the service name used in the system keyring.
const DefaultKeyringService = "wirevpn"

// KeyringStore keeps values in the OS keyring (Secret Service, Keychain,
// Credential Manager). When the keyring is unavailable it degrades to an
// in-memory store for the rest of the process.
type KeyringStore struct {
	service string

	mu       sync.RWMutex
	fallback *MemoryStore
}

// NewKeyringStore probes the system keyring and returns a store bound to service.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	s := &KeyringStore{service: service}

	// Try system keyring first
	testKey := service + "-probe"
	if err := keyring.Set(service, testKey, "probe"); err != nil {
		logger.Warn("System keyring unavailable, tokens will not survive restart: %v", err)
		s.fallback = NewMemoryStore()
	} else {
		keyring.Delete(service, testKey)
	}
	return s
}

// Degraded reports whether the store fell back to memory.
func (s *KeyringStore) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback != nil
}

func (s *KeyringStore) memory() *MemoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback
}

func (s *KeyringStore) Get(key string) (string, error) {
	if mem := s.memory(); mem != nil {
		return mem.Get(key)
	}
	v, err := keyring.Get(s.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func (s *KeyringStore) Set(key, value string) error {
	if mem := s.memory(); mem != nil {
		return mem.Set(key, value)
	}
	if err := keyring.Set(s.service, key, value); err != nil {
		// Fallback to memory for the rest of the process
		logger.Warn("Keyring write failed, falling back to memory: %v", err)
		s.mu.Lock()
		if s.fallback == nil {
			s.fallback = NewMemoryStore()
		}
		mem := s.fallback
		s.mu.Unlock()
		return mem.Set(key, value)
	}
	return nil
}

func (s *KeyringStore) Delete(key string) error {
	if mem := s.memory(); mem != nil {
		return mem.Delete(key)
	}
	if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

func (s *KeyringStore) Close() error {
	return nil
}
