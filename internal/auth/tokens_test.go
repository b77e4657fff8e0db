package auth

import (
	"bytes"
	"encoding/hex"
	"testing"

	"wirevpn/internal/storage"
)

// Helper to create a token store for tests (allows random keys)
func newTestTokenStore(t *testing.T, store storage.Store) *TokenStore {
	t.Helper()
	t.Setenv(SecretEnv, "")
	ts, err := NewTokenStore(store, Config{AllowInsecureKeys: true})
	if err != nil {
		t.Fatalf("Failed to create token store: %v", err)
	}
	return ts
}

func TestTokenStore_SaveAndLoad(t *testing.T) {
	mem := storage.NewMemoryStore()
	ts := newTestTokenStore(t, mem)

	if err := ts.Save("access-1", "refresh-1"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Values must be sealed at rest
	raw, err := mem.Get(AccessTokenKey)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if raw == "access-1" {
		t.Error("access token stored in plain text")
	}

	access, refresh, err := ts.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if access != "access-1" || refresh != "refresh-1" {
		t.Errorf("Load() = %q, %q; want access-1, refresh-1", access, refresh)
	}
}

func TestTokenStore_LoadEmpty(t *testing.T) {
	ts := newTestTokenStore(t, storage.NewMemoryStore())

	access, refresh, err := ts.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if access != "" || refresh != "" {
		t.Errorf("Load() = %q, %q; want empty", access, refresh)
	}
}

func TestTokenStore_TamperedValue(t *testing.T) {
	mem := storage.NewMemoryStore()
	ts := newTestTokenStore(t, mem)

	if err := mem.Set(RefreshTokenKey, "invalid-sealed-value"); err != nil {
		t.Fatal(err)
	}

	_, refresh, err := ts.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if refresh != "" {
		t.Errorf("refresh = %q, want empty for tampered value", refresh)
	}
	if _, err := mem.Get(RefreshTokenKey); err != storage.ErrNotFound {
		t.Errorf("tampered value should be removed, Get() error = %v", err)
	}
}

func TestTokenStore_SameSecretReadsAcrossInstances(t *testing.T) {
	mem := storage.NewMemoryStore()
	secret := bytes.Repeat([]byte{7}, 32)

	first, err := NewTokenStore(mem, Config{Secret: secret})
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	if err := first.Save("a", "r"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second, err := NewTokenStore(mem, Config{Secret: secret})
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	access, refresh, err := second.Load()
	if err != nil || access != "a" || refresh != "r" {
		t.Errorf("Load() = %q, %q, %v; want a, r, nil", access, refresh, err)
	}

	other, err := NewTokenStore(mem, Config{Secret: bytes.Repeat([]byte{9}, 32)})
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	if access, _, _ := other.Load(); access != "" {
		t.Errorf("store with another secret read %q", access)
	}
}

func TestTokenStore_SaveEmptyDeletes(t *testing.T) {
	mem := storage.NewMemoryStore()
	ts := newTestTokenStore(t, mem)

	if err := ts.Save("a", "r"); err != nil {
		t.Fatal(err)
	}
	if err := ts.Save("b", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Get(RefreshTokenKey); err != storage.ErrNotFound {
		t.Errorf("empty refresh token should delete key, Get() error = %v", err)
	}
}

func TestTokenStore_Clear(t *testing.T) {
	mem := storage.NewMemoryStore()
	ts := newTestTokenStore(t, mem)

	if err := ts.Save("a", "r"); err != nil {
		t.Fatal(err)
	}
	if err := ts.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	access, refresh, _ := ts.Load()
	if access != "" || refresh != "" {
		t.Errorf("Load() after Clear = %q, %q", access, refresh)
	}
}

func TestNewTokenStore_FailsWithoutSecretInProductionMode(t *testing.T) {
	t.Setenv(SecretEnv, "")

	_, err := NewTokenStore(storage.NewMemoryStore(), Config{AllowInsecureKeys: false})
	if err != ErrMissingSecret {
		t.Errorf("Expected ErrMissingSecret, got %v", err)
	}
}

func TestNewTokenStore_SecretFromEnv(t *testing.T) {
	t.Setenv(SecretEnv, hex.EncodeToString(bytes.Repeat([]byte{1}, 32)))

	if _, err := NewTokenStore(storage.NewMemoryStore(), Config{}); err != nil {
		t.Errorf("NewTokenStore() error = %v", err)
	}

	t.Setenv(SecretEnv, "not-hex")
	if _, err := NewTokenStore(storage.NewMemoryStore(), Config{}); err != ErrInvalidSecret {
		t.Errorf("Expected ErrInvalidSecret, got %v", err)
	}
}
