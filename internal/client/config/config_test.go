package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wirevpn/internal/storage"
	"wirevpn/internal/vpn/daemon"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, daemon.ModeDevelopment, cfg.Mode)
	assert.Equal(t, daemon.ShellBrowser, cfg.Shell)
	assert.Equal(t, daemon.DefaultPort, cfg.DaemonPort)
	assert.Equal(t, daemon.DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, storage.BackendSQLite, cfg.Storage.Backend)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
mode: production
shell: native
daemon_port: 9000
poll_interval: 500ms
cdn_sources:
  - https://cdn.example.com/a.txt
storage:
  backend: memory
connect:
  server: vpn.example.com
  dns: 1.1.1.1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, daemon.ModeProduction, cfg.Mode)
	assert.Equal(t, daemon.ShellNative, cfg.Shell)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, []string{"https://cdn.example.com/a.txt"}, cfg.CDNSources)
	assert.Equal(t, storage.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "vpn.example.com", cfg.Connect.Server)
	assert.Equal(t, "1.1.1.1", cfg.Connect.DNS)
	assert.Equal(t, daemon.Env{Mode: "production", Shell: "native", Port: 9000}, cfg.DaemonEnv())
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load(writeFile(t, "moed: production\n"))
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, daemon.ModeDevelopment, cfg.Mode)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WIREVPN_MODE", "production")
	t.Setenv("WIREVPN_SHELL", "native")
	t.Setenv("WIREVPN_DAEMON_PORT", "7000")
	t.Setenv("WIREVPN_POLL_INTERVAL", "3s")
	t.Setenv("WIREVPN_CDN_SOURCES", " https://a.example.com , ,https://b.example.com")
	t.Setenv("WIREVPN_STORAGE_BACKEND", "keyring")

	cfg, err := Load(writeFile(t, "mode: development\n"))
	require.NoError(t, err)

	assert.Equal(t, daemon.ModeProduction, cfg.Mode)
	assert.Equal(t, daemon.ShellNative, cfg.Shell)
	assert.Equal(t, 7000, cfg.DaemonPort)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CDNSources)
	assert.Equal(t, storage.BackendKeyring, cfg.Storage.Backend)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "mode", body: "mode: staging\n"},
		{name: "shell", body: "shell: electron\n"},
		{name: "backend", body: "storage:\n  backend: floppy\n"},
		{name: "poll interval", body: "poll_interval: 0s\n"},
		{name: "port", body: "daemon_port: 70000\n"},
		{name: "bad env port", env: map[string]string{"WIREVPN_DAEMON_PORT": "http"}},
		{name: "bad env interval", env: map[string]string{"WIREVPN_POLL_INTERVAL": "often"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Mode = daemon.ModeProduction
	cfg.NativeHost = "127.0.0.1:7891"
	cfg.Connect.Server = "vpn.example.com"
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.lock")

	lock, err := acquireAt(path, "watch")
	require.NoError(t, err)

	// Same process may re-acquire its own lock.
	again, err := acquireAt(path, "watch")
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, again.Release())
}

func TestLock_StaleIsReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.lock")
	data, _ := json.Marshal(LockInfo{PID: -1, Command: "watch"})
	require.NoError(t, os.WriteFile(path, data, 0600))

	lock, err := acquireAt(path, "watch")
	require.NoError(t, err)
	defer lock.Release()

	info, err := readLockFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), info.PID)
}

func TestLock_LiveHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.lock")
	// PID 1 always exists on Unix.
	data, _ := json.Marshal(LockInfo{PID: 1, Command: "watch"})
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err := acquireAt(path, "watch")
	if err == nil {
		t.Skip("PID 1 not visible to signal probes here")
	}
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
}

func TestSecretPath(t *testing.T) {
	path, err := SecretPath(filepath.Join("/etc", "wirevpn", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/etc", "wirevpn", "token.secret"), path)

	dir, err := Dir()
	require.NoError(t, err)
	path, err = SecretPath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "token.secret"), path)
}
