package storage

import (
	"errors"
	"os"
	"testing"

	"github.com/zalando/go-keyring"
)

// setupTestStore creates a temp-file SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	// Use a temp file so CGO sqlite works (some drivers don't support :memory: + multiple conns)
	f, err := os.CreateTemp("", "wirevpn-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db: %v", err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	store, err := NewSQLiteStore(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// exerciseStore runs the common contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	if _, err := s.Get("antiblock.entry"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() on empty store error = %v, want ErrNotFound", err)
	}

	if err := s.Set("antiblock.entry", "https://a.example.com"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set("antiblock.entry", "https://b.example.com"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	got, err := s.Get("antiblock.entry")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "https://b.example.com" {
		t.Errorf("Get() = %q, want https://b.example.com", got)
	}

	if err := s.Delete("antiblock.entry"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete("antiblock.entry"); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
	if _, err := s.Get("antiblock.entry"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}

	// Re-set after delete must work (unique index must not keep a tombstone)
	if err := s.Set("antiblock.entry", "https://c.example.com"); err != nil {
		t.Fatalf("Set() after Delete error = %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, setupTestStore(t))
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	f, err := os.CreateTemp("", "wirevpn-reopen-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db: %v", err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	first, err := NewSQLiteStore(f.Name())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := first.Set("auth.refresh_token", "r1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(f.Name())
	if err != nil {
		t.Fatalf("NewSQLiteStore() reopen error = %v", err)
	}
	defer second.Close()

	got, err := second.Get("auth.refresh_token")
	if err != nil || got != "r1" {
		t.Errorf("Get() = %q, %v; want r1, nil", got, err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	s := NewKeyringStore("wirevpn-test")
	if s.Degraded() {
		t.Fatal("mock keyring should not degrade")
	}
	exerciseStore(t, s)
}

func TestKeyringStore_Fallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("no secret service"))
	t.Cleanup(keyring.MockInit)

	s := NewKeyringStore("")
	if !s.Degraded() {
		t.Fatal("store should degrade to memory when keyring fails")
	}
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	s, err := Open(BackendMemory, "")
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Open(memory) = %T, want *MemoryStore", s)
	}

	if _, err := Open("floppy", ""); err == nil {
		t.Error("Open(floppy) should fail")
	}
}
