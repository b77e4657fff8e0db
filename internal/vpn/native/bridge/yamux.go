package bridge

import (
	"github.com/hashicorp/yamux"

	"wirevpn/internal/client/logger"
)

// sessionConfig is the yamux configuration used on both ends of the bridge.
// Library log lines go through the process logger instead of stderr.
func sessionConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = logger.DebugWriter()
	return cfg
}
