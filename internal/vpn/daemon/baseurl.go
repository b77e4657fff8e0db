package daemon

import (
	"fmt"
	"strings"
)

// Runtime modes.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Shells the client may run inside.
const (
	ShellBrowser = "browser"
	ShellNative  = "native"
)

// DefaultPort is the loopback port the packaged daemon listens on.
const DefaultPort = 7890

// Env describes where the client runs. It decides the daemon base URL.
type Env struct {
	Mode  string
	Shell string
	Port  int
}

// BaseURL returns the absolute loopback URL of the daemon when running inside
// the native shell in production, and "" otherwise. An empty base means
// requests go to the same origin the UI was served from.
func BaseURL(env Env) string {
	if !strings.EqualFold(env.Mode, ModeProduction) || !strings.EqualFold(env.Shell, ShellNative) {
		return ""
	}
	port := env.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}
