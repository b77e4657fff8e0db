// Package vpn defines the vocabulary shared by every VPN transport.
//
// A transport is anything that can drive the local VPN control plane: the
// polling daemon client, the event-driven native plugin client, or the
// in-memory test double. All of them implement Client and report state using
// exactly the three State values below. Backend-specific state names are
// mapped through NormalizeState and never leak to callers.
//
// Events are ephemeral. A subscriber only sees what happens after it
// subscribed; current state is always re-queryable with GetStatus.
package vpn
