// Package antiblock finds a reachable cloud API entry point.
package antiblock

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/storage"
	"wirevpn/pkg/protocol"
)

// CacheKey is the storage key holding the last discovered entry.
const CacheKey = "antiblock.entry"

// DefaultEntry is used when nothing better is known. Builds override it.
const DefaultEntry = "https://api.wirevpn.net"

const (
	maxBodySize       = 1 << 20
	revalidateTimeout = 30 * time.Second
)

var errNoDocument = errors.New("no discovery document in response")

// Options configures a Resolver.
type Options struct {
	// Sources are discovery URLs, tried strictly in order.
	Sources      []string
	DefaultEntry string
	Store        storage.Store
	HTTPClient   *http.Client
}

// Resolver returns the API entry point. It answers from cache when it can
// and refreshes the cache in the background.
type Resolver struct {
	sources      []string
	defaultEntry string
	store        storage.Store
	http         *http.Client

	wg           sync.WaitGroup
	revalidating atomic.Bool
}

// New creates a resolver. A nil store keeps the cache in memory.
func New(opts Options) *Resolver {
	store := opts.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	def := opts.DefaultEntry
	if def == "" {
		def = DefaultEntry
	}
	return &Resolver{
		sources:      append([]string(nil), opts.Sources...),
		defaultEntry: strings.TrimRight(def, "/"),
		store:        store,
		http:         httpClient,
	}
}

// ResolveEntry returns the API base URL. It never fails: a cached entry is
// returned at once, then discovery, then the built-in default.
func (r *Resolver) ResolveEntry(ctx context.Context) string {
	cached, err := r.store.Get(CacheKey)
	if err == nil && cached != "" {
		r.revalidate(ctx)
		return cached
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Debug("Entry cache unreadable: %v", err)
	}

	entry, err := r.Discover(ctx)
	if err != nil {
		logger.Debug("Entry discovery failed, using default: %v", err)
		return r.defaultEntry
	}
	r.save(entry)
	return entry
}

// revalidate refreshes the cache without blocking the caller. Only one
// refresh runs at a time.
func (r *Resolver) revalidate(ctx context.Context) {
	if len(r.sources) == 0 || !r.revalidating.CompareAndSwap(false, true) {
		return
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), revalidateTimeout)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.revalidating.Store(false)
		defer cancel()

		entry, err := r.Discover(bg)
		if err != nil {
			logger.Debug("Background entry revalidation failed: %v", err)
			return
		}
		r.save(entry)
	}()
}

// Wait blocks until background revalidation has finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Invalidate forgets the cached entry.
func (r *Resolver) Invalidate() error {
	return r.store.Delete(CacheKey)
}

func (r *Resolver) save(entry string) {
	if err := r.store.Set(CacheKey, entry); err != nil {
		logger.Warn("Failed to cache API entry: %v", err)
	}
}

// Discover walks the sources in order and returns the first usable entry.
func (r *Resolver) Discover(ctx context.Context) (string, error) {
	if len(r.sources) == 0 {
		return "", errors.New("no discovery sources configured")
	}

	var lastErr error
	for _, src := range r.sources {
		entry, err := r.fetchSource(ctx, src)
		if err == nil {
			return entry, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Debug("Discovery source %s failed: %v", src, err)
		lastErr = err
	}
	return "", fmt.Errorf("all %d discovery sources failed: %w", len(r.sources), lastErr)
}

func (r *Resolver) fetchSource(ctx context.Context, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", err
	}

	doc, err := extractDocument(body)
	if err != nil {
		return "", err
	}
	for _, candidate := range doc.Entries {
		if entry, ok := decodeEntry(candidate); ok {
			return entry, nil
		}
	}
	return "", errors.New("no usable entry in discovery document")
}

// extractDocument finds the first JSON object in body that has an "entries"
// field. Text around the object is ignored.
func extractDocument(body []byte) (*protocol.DiscoveryDocument, error) {
	for i := bytes.IndexByte(body, '{'); i >= 0; {
		var fields map[string]json.RawMessage
		if err := json.NewDecoder(bytes.NewReader(body[i:])).Decode(&fields); err == nil {
			if raw, ok := fields["entries"]; ok {
				var doc protocol.DiscoveryDocument
				if err := json.Unmarshal(raw, &doc.Entries); err == nil {
					return &doc, nil
				}
			}
		}

		next := bytes.IndexByte(body[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, errNoDocument
}

// decodeEntry base64-decodes a candidate and keeps it only if it is an http(s) URL.
func decodeEntry(candidate string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	raw, err := base64.StdEncoding.DecodeString(candidate)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(candidate); err != nil {
			return "", false
		}
	}
	entry := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(entry, "http") {
		return "", false
	}
	return strings.TrimRight(entry, "/"), true
}
