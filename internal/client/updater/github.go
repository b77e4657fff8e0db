package updater

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/vpn"
	"wirevpn/pkg/protocol"
)

// PublicKeyBase64 is set via ldflags during build
var PublicKeyBase64 = ""

// GitHubRepo is the repository releases are published to
var GitHubRepo = "wirevpn/wirevpn"

// apiBase is overridden in tests.
var apiBase = "https://api.github.com"

const userAgent = "wirevpn-client"

// ErrNoPublicKey is returned when the build carries no signing key.
var ErrNoPublicKey = errors.New("update verification not configured (no public key)")

// Release represents a GitHub release
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Asset represents a release asset
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// ReleaseInfo describes the newest release for this platform.
type ReleaseInfo struct {
	Available      bool
	CurrentVersion string
	LatestVersion  string
	DownloadURL    string
	AssetName      string
}

// InstallResult represents the result of installing a downloaded binary
type InstallResult struct {
	Message       string
	NeedsRestart  bool
	PendingUpdate bool // Windows: binary staged, needs a manual restart
}

var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

// GitHubTier exposes the release check as a native update tier.
func GitHubTier(currentVersion string) Tier {
	return Tier{
		Type: vpn.UpdateNative,
		Check: func(ctx context.Context) (protocol.UpdatePayload, error) {
			info, err := CheckForUpdate(ctx, currentVersion)
			if err != nil {
				return protocol.UpdatePayload{}, err
			}
			return protocol.UpdatePayload{
				Available: info.Available,
				Version:   info.LatestVersion,
				URL:       info.DownloadURL,
			}, nil
		},
	}
}

// CheckForUpdate asks GitHub for the latest release and matches the asset for
// this platform. Dev builds never update.
func CheckForUpdate(ctx context.Context, currentVersion string) (*ReleaseInfo, error) {
	info := &ReleaseInfo{CurrentVersion: currentVersion}

	if currentVersion == "" || strings.HasPrefix(currentVersion, "dev") {
		return info, nil
	}

	url := fmt.Sprintf("%s/repos/%s/releases/latest", apiBase, GitHubRepo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Nothing published yet
		return info, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release: %w", err)
	}
	info.LatestVersion = release.TagName

	if release.TagName == "" || release.TagName == currentVersion {
		return info, nil
	}

	want := assetName(runtime.GOOS, runtime.GOARCH)
	for _, asset := range release.Assets {
		if asset.Name == want {
			info.Available = true
			info.DownloadURL = asset.BrowserDownloadURL
			info.AssetName = asset.Name
			break
		}
	}
	return info, nil
}

// assetName returns the release asset built for goos/goarch
func assetName(goos, goarch string) string {
	switch goos {
	case "linux":
		if goarch == "arm64" {
			return "wirevpn-linux-arm64"
		}
		return "wirevpn-linux-amd64"
	case "darwin":
		if goarch == "arm64" {
			return "wirevpn-macos-arm64"
		}
		return "wirevpn-macos-amd64"
	case "windows":
		return "wirevpn-windows-amd64.exe"
	default:
		return ""
	}
}

func publicKey() (ed25519.PublicKey, error) {
	if PublicKeyBase64 == "" {
		return nil, ErrNoPublicKey
	}
	raw, err := base64.StdEncoding.DecodeString(PublicKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size")
	}
	return ed25519.PublicKey(raw), nil
}

// Download fetches the release asset and verifies it against the signed
// checksums published next to it. It returns the path of the verified binary
// in a temp directory.
func Download(ctx context.Context, info *ReleaseInfo) (string, error) {
	pubKey, err := publicKey()
	if err != nil {
		return "", err
	}

	data, err := fetchVerified(ctx, info, pubKey)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "wirevpn-update-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write update: %w", err)
	}
	logger.Info("Downloaded %s (%d bytes)", info.AssetName, len(data))
	return f.Name(), nil
}

// fetchVerified downloads checksums.txt, checks its ed25519 signature and then
// downloads the asset and checks its sha256.
func fetchVerified(ctx context.Context, info *ReleaseInfo, pubKey ed25519.PublicKey) ([]byte, error) {
	baseURL := strings.TrimSuffix(info.DownloadURL, info.AssetName)

	checksums, err := downloadFile(ctx, baseURL+"checksums.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to download checksums: %w", err)
	}
	signature, err := downloadFile(ctx, baseURL+"checksums.sig")
	if err != nil {
		return nil, fmt.Errorf("failed to download signature: %w", err)
	}
	if !ed25519.Verify(pubKey, checksums, signature) {
		return nil, fmt.Errorf("signature verification failed - update rejected")
	}

	expectedHash, err := parseChecksum(checksums, info.AssetName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse checksum: %w", err)
	}

	data, err := downloadFile(ctx, info.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download binary: %w", err)
	}

	actual := sha256.Sum256(data)
	if actualHex := hex.EncodeToString(actual[:]); actualHex != expectedHash {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", expectedHash, actualHex)
	}
	return data, nil
}

// Install replaces the running executable with the binary at path.
func Install(path string) (*InstallResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read update: %w", err)
	}
	defer os.Remove(path)

	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable path: %w", err)
	}

	if runtime.GOOS == "windows" {
		return installWindows(execPath, data)
	}
	return installUnix(execPath, data)
}

// downloadFile downloads a file with retries
func downloadFile(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("download failed after 3 attempts: %w", lastErr)
}

// parseChecksum extracts the checksum for filename from a sha256sum listing
func parseChecksum(data []byte, filename string) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		// "hash  filename" or "hash filename"
		parts := strings.Fields(scanner.Text())
		if len(parts) >= 2 && parts[len(parts)-1] == filename {
			return parts[0], nil
		}
	}
	return "", fmt.Errorf("checksum not found for %s", filename)
}

// installUnix swaps the binary with an atomic rename
func installUnix(execPath string, data []byte) (*InstallResult, error) {
	tmpFile, err := os.CreateTemp(filepath.Dir(execPath), "wirevpn-update-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write update: %w", err)
	}
	tmpFile.Close()

	if err := os.Chmod(tmpPath, 0755); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, execPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to install update: %w", err)
	}

	return &InstallResult{
		Message:      "Update installed. Restart wirevpn to apply.",
		NeedsRestart: true,
	}, nil
}

// installWindows stages the binary; a running exe can't be replaced
func installWindows(execPath string, data []byte) (*InstallResult, error) {
	newPath := execPath + ".new"
	if err := os.WriteFile(newPath, data, 0755); err != nil {
		return nil, fmt.Errorf("failed to write update: %w", err)
	}

	batchPath := execPath + ".update.bat"
	batchContent := fmt.Sprintf(`@echo off
:retry
timeout /t 1 /nobreak >nul
del "%s" 2>nul
if exist "%s" goto retry
move "%s" "%s"
del "%%~f0"
`, execPath, execPath, newPath, execPath)

	if err := os.WriteFile(batchPath, []byte(batchContent), 0755); err != nil {
		os.Remove(newPath)
		return nil, fmt.Errorf("failed to create update script: %w", err)
	}

	return &InstallResult{
		Message:       "Update downloaded. Close wirevpn and run " + filepath.Base(batchPath) + " to finish.",
		NeedsRestart:  true,
		PendingUpdate: true,
	}, nil
}
