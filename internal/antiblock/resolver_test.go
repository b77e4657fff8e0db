package antiblock

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wirevpn/internal/storage"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// cdn serves body with status and counts hits.
func cdn(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestResolveEntry_CacheHitReturnsImmediately(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(CacheKey, "https://cached.example.com"))

	failing, hits := cdn(t, http.StatusInternalServerError, "")
	r := New(Options{Sources: []string{failing.URL}, Store: store})

	got := r.ResolveEntry(context.Background())
	assert.Equal(t, "https://cached.example.com", got)

	// Background revalidation fails quietly and leaves the cache alone
	r.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	cached, err := store.Get(CacheKey)
	require.NoError(t, err)
	assert.Equal(t, "https://cached.example.com", cached)
}

func TestResolveEntry_BackgroundRevalidationUpdatesCache(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(CacheKey, "https://old.example.com"))

	fresh, _ := cdn(t, http.StatusOK, fmt.Sprintf(`{"entries":[%q]}`, b64("https://new.example.com")))
	r := New(Options{Sources: []string{fresh.URL}, Store: store})

	assert.Equal(t, "https://old.example.com", r.ResolveEntry(context.Background()))
	r.Wait()
	assert.Equal(t, "https://new.example.com", r.ResolveEntry(context.Background()))
	r.Wait()
}

func TestResolveEntry_SourcesInOrder(t *testing.T) {
	down, downHits := cdn(t, http.StatusBadGateway, "")
	garbage, garbageHits := cdn(t, http.StatusOK, "<html>maintenance</html>")
	good, goodHits := cdn(t, http.StatusOK, fmt.Sprintf(
		"/* cdn */ callback({\"entries\": [%q, %q, %q, %q]});",
		"%%%not-base64",
		b64("ftp://files.example.com"),
		b64("https://api-2.example.com/"),
		b64("https://api-3.example.com"),
	))
	unused, unusedHits := cdn(t, http.StatusOK, fmt.Sprintf(`{"entries":[%q]}`, b64("https://never.example.com")))

	store := storage.NewMemoryStore()
	r := New(Options{
		Sources: []string{down.URL, garbage.URL, good.URL, unused.URL},
		Store:   store,
	})

	got := r.ResolveEntry(context.Background())
	assert.Equal(t, "https://api-2.example.com", got)

	assert.Equal(t, int32(1), atomic.LoadInt32(downHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(garbageHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(goodHits))
	assert.Equal(t, int32(0), atomic.LoadInt32(unusedHits))

	cached, err := store.Get(CacheKey)
	require.NoError(t, err)
	assert.Equal(t, "https://api-2.example.com", cached)
}

func TestResolveEntry_SourceWithOnlyBadEntriesFallsThrough(t *testing.T) {
	bad, _ := cdn(t, http.StatusOK, fmt.Sprintf(`{"entries":[%q]}`, b64("ftp://mirror.example.com")))
	good, _ := cdn(t, http.StatusOK, fmt.Sprintf(`{"entries":[%q]}`, b64("http://plain.example.com")))

	r := New(Options{Sources: []string{bad.URL, good.URL}})
	assert.Equal(t, "http://plain.example.com", r.ResolveEntry(context.Background()))
}

func TestResolveEntry_TotalFailureUsesDefault(t *testing.T) {
	down, _ := cdn(t, http.StatusServiceUnavailable, "")
	store := storage.NewMemoryStore()

	r := New(Options{
		Sources:      []string{down.URL, "http://127.0.0.1:1/unreachable"},
		DefaultEntry: "https://fallback.example.com/",
		Store:        store,
	})

	assert.Equal(t, "https://fallback.example.com", r.ResolveEntry(context.Background()))

	// The default is not cached
	_, err := store.Get(CacheKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResolveEntry_NoSources(t *testing.T) {
	r := New(Options{})
	assert.Equal(t, DefaultEntry, r.ResolveEntry(context.Background()))
}

func TestInvalidate(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(CacheKey, "https://cached.example.com"))

	r := New(Options{Store: store, DefaultEntry: "https://default.example.com"})
	require.NoError(t, r.Invalidate())
	assert.Equal(t, "https://default.example.com", r.ResolveEntry(context.Background()))
}

func TestExtractDocument(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"plain", `{"entries":["a","b"]}`, 2, false},
		{"wrapped", `var cfg = {"entries":["a"]};`, 1, false},
		{"nested first object without entries", `{"v":1} then {"entries":["a","b","c"]}`, 3, false},
		{"no json", `hello`, 0, true},
		{"object without entries", `{"hosts":["a"]}`, 0, true},
		{"entries wrong type", `{"entries":"a"}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := extractDocument([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, doc.Entries, tt.want)
		})
	}
}

func TestDecodeEntry(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{b64("https://a.example.com"), "https://a.example.com", true},
		{strings.TrimRight(b64("https://ab.example.com"), "="), "https://ab.example.com", true},
		{b64("ftp://a.example.com"), "", false},
		{b64("a.example.com"), "", false},
		{"!!!", "", false},
	}

	for _, tt := range tests {
		got, ok := decodeEntry(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
