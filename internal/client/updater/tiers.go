package updater

import (
	"context"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/vpn"
	"wirevpn/pkg/protocol"
)

// Tier is one update channel. Tiers are consulted in order and the first one
// reporting an available update wins.
type Tier struct {
	Type  vpn.UpdateType
	Check func(ctx context.Context) (protocol.UpdatePayload, error)
}

// Resolve returns the first available update across tiers. A tier that
// errors counts as having nothing to offer.
func Resolve(ctx context.Context, tiers ...Tier) vpn.UpdateInfo {
	for _, tier := range tiers {
		if tier.Check == nil {
			continue
		}
		avail, err := tier.Check(ctx)
		if err != nil {
			logger.Debug("%s update check failed: %v", tier.Type, err)
			continue
		}
		if avail.Available {
			return vpn.UpdateInfo{Type: tier.Type, Version: avail.Version, URL: avail.URL}
		}
	}
	return vpn.UpdateInfo{Type: vpn.UpdateNone}
}
