package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/storage"
)

// Storage keys for persisted tokens.
const (
	AccessTokenKey  = "auth.access_token"
	RefreshTokenKey = "auth.refresh_token"
)

// SecretEnv holds the hex-encoded master secret tokens are sealed with.
const SecretEnv = "WIREVPN_TOKEN_SECRET"

// Errors for token persistence
var (
	ErrMissingSecret = errors.New("token secret not configured")
	ErrInvalidSecret = errors.New("invalid token secret format")
)

const (
	keyLength = 32
	minSecret = 16
	// Refresh tokens older than this are treated as absent.
	tokenMaxAge = 90 * 24 * 60 * 60
)

// Config holds token store configuration
type Config struct {
	// Secret overrides SecretEnv when set.
	Secret []byte
	// AllowInsecureKeys allows a random per-process secret in dev mode.
	// If false and no secret is configured, NewTokenStore returns an error.
	AllowInsecureKeys bool
}

// TokenStore seals the access/refresh token pair with securecookie and keeps
// it in a storage.Store.
type TokenStore struct {
	store storage.Store
	sc    *securecookie.SecureCookie
}

var keyWarningOnce sync.Once

// NewTokenStore derives the sealing keys and binds them to store.
func NewTokenStore(store storage.Store, cfg Config) (*TokenStore, error) {
	secret, err := loadSecret(cfg)
	if err != nil {
		return nil, err
	}

	hashKey, err := deriveKey(secret, "wirevpn token hash")
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(secret, "wirevpn token block")
	if err != nil {
		return nil, err
	}

	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(tokenMaxAge)

	return &TokenStore{store: store, sc: sc}, nil
}

// loadSecret reads the master secret from config or environment, or generates
// a random one if allowed.
func loadSecret(cfg Config) ([]byte, error) {
	if len(cfg.Secret) > 0 {
		if len(cfg.Secret) < minSecret {
			return nil, ErrInvalidSecret
		}
		return cfg.Secret, nil
	}

	if secretHex := os.Getenv(SecretEnv); secretHex != "" {
		secret, err := hex.DecodeString(secretHex)
		if err != nil || len(secret) < minSecret {
			return nil, ErrInvalidSecret
		}
		return secret, nil
	}

	if !cfg.AllowInsecureKeys {
		return nil, ErrMissingSecret
	}

	// Tokens sealed with a random secret won't survive a restart
	secret := make([]byte, keyLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	keyWarningOnce.Do(func() {
		logger.Warn("Token secret not configured. Using a random secret - saved logins will not persist across restarts. Set %s for production.", SecretEnv)
	})
	return secret, nil
}

func deriveKey(secret []byte, info string) ([]byte, error) {
	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// Save seals and stores both tokens. An empty token removes its key.
func (ts *TokenStore) Save(accessToken, refreshToken string) error {
	if err := ts.put(AccessTokenKey, accessToken); err != nil {
		return err
	}
	return ts.put(RefreshTokenKey, refreshToken)
}

func (ts *TokenStore) put(key, token string) error {
	if token == "" {
		return ts.store.Delete(key)
	}
	sealed, err := ts.sc.Encode(key, token)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", key, err)
	}
	return ts.store.Set(key, sealed)
}

// Load returns the stored tokens. Missing, expired or tampered values come back
// empty without an error.
func (ts *TokenStore) Load() (accessToken, refreshToken string, err error) {
	if accessToken, err = ts.get(AccessTokenKey); err != nil {
		return "", "", err
	}
	if refreshToken, err = ts.get(RefreshTokenKey); err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (ts *TokenStore) get(key string) (string, error) {
	sealed, err := ts.store.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var token string
	if err := ts.sc.Decode(key, sealed, &token); err != nil {
		logger.Debug("Discarding unreadable %s: %v", key, err)
		if delErr := ts.store.Delete(key); delErr != nil {
			return "", delErr
		}
		return "", nil
	}
	return token, nil
}

// Clear removes both tokens.
func (ts *TokenStore) Clear() error {
	if err := ts.store.Delete(AccessTokenKey); err != nil {
		return err
	}
	return ts.store.Delete(RefreshTokenKey)
}
