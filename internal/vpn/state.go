package vpn

import (
	"strings"
	"time"

	"wirevpn/pkg/protocol"
)

// State is the connection state of the VPN as seen by the UI.
type State string

const (
	StateStopped    State = "stopped"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
)

// String returns the wire name of the state.
func (s State) String() string {
	return string(s)
}

// NormalizeState maps a backend state name onto one of the three known states.
// The native plugin reports "disconnected" for a stopped tunnel; anything
// unrecognised is treated as stopped.
func NormalizeState(raw string) State {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "connecting":
		return StateConnecting
	case "connected":
		return StateConnected
	case "stopped", "disconnected":
		return StateStopped
	default:
		return StateStopped
	}
}

// Status is a point-in-time snapshot of the tunnel. It is rebuilt on every query.
type Status struct {
	State         State      `json:"state"`
	ConnectedAt   *time.Time `json:"connectedAt,omitempty"`
	UptimeSeconds *int64     `json:"uptimeSeconds,omitempty"`
	Error         string     `json:"error,omitempty"`
	EndpointURL   string     `json:"endpointUrl,omitempty"`
}

// Uptime returns the reported uptime, or zero when the backend did not send one.
func (s Status) Uptime() time.Duration {
	if s.UptimeSeconds == nil {
		return 0
	}
	return time.Duration(*s.UptimeSeconds) * time.Second
}

// ReadyReason explains why the control plane is not ready.
type ReadyReason string

const (
	ReasonNotRunning      ReadyReason = "not_running"
	ReasonVersionMismatch ReadyReason = "version_mismatch"
	ReasonNotInstalled    ReadyReason = "not_installed"
)

// ReadyState is the result of a readiness probe. Version is set only when
// Ready is true; Reason only when it is false.
type ReadyState struct {
	Ready   bool        `json:"ready"`
	Version string      `json:"version,omitempty"`
	Reason  ReadyReason `json:"reason,omitempty"`
}

// Ready builds a positive readiness result.
func Ready(version string) ReadyState {
	return ReadyState{Ready: true, Version: version}
}

// NotReady builds a negative readiness result.
func NotReady(reason ReadyReason) ReadyState {
	return ReadyState{Ready: false, Reason: reason}
}

// EventType tags an Event.
type EventType string

const (
	EventStateChange EventType = "state_change"
	EventError       EventType = "error"
)

// Event is delivered to subscribers. State is set for state_change events,
// Message for error events.
type Event struct {
	Type    EventType `json:"type"`
	State   State     `json:"state,omitempty"`
	Message string    `json:"message,omitempty"`
}

// StateChange builds a state_change event.
func StateChange(s State) Event {
	return Event{Type: EventStateChange, State: s}
}

// ErrorEvent builds an error event.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// Listener receives events from a transport.
type Listener func(Event)

// StatusFromPayload converts a backend status payload into a Status,
// normalizing the state name.
func StatusFromPayload(p protocol.StatusPayload) Status {
	st := Status{
		State:         NormalizeState(p.State),
		UptimeSeconds: p.UptimeSeconds,
		Error:         p.Error,
		EndpointURL:   p.EndpointURL,
	}
	if p.ConnectedAt != nil {
		t := time.Unix(*p.ConnectedAt, 0)
		st.ConnectedAt = &t
	}
	return st
}

// ParseReason maps a backend reason string onto a ReadyReason.
// Unknown reasons are reported as not running.
func ParseReason(raw string) ReadyReason {
	switch ReadyReason(strings.ToLower(strings.TrimSpace(raw))) {
	case ReasonVersionMismatch:
		return ReasonVersionMismatch
	case ReasonNotInstalled:
		return ReasonNotInstalled
	default:
		return ReasonNotRunning
	}
}
