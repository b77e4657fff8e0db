package protocol

import "encoding/json"

// Envelope wraps every response from both the local control daemon and the cloud API.
// Code 0 means success; Data is left raw so callers can decode it into their own type.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK reports whether the envelope carries a success code.
func (e *Envelope) OK() bool {
	return e.Code == 0
}

// Decode unmarshals Data into v. A missing payload leaves v untouched.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 || string(e.Data) == "null" || v == nil {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// CoreRequest is the single request shape accepted by the control daemon at /api/core.
type CoreRequest struct {
	Action string      `json:"action"`
	Params interface{} `json:"params,omitempty"`
}

// Control daemon actions.
const (
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
	ActionStatus     = "status"
	ActionVersion    = "version"
	ActionConfig     = "config"
)

// StatusPayload is the data returned by the daemon for the status action.
// State is the daemon's own vocabulary and must be normalized before use.
type StatusPayload struct {
	State         string `json:"state"`
	ConnectedAt   *int64 `json:"connectedAt,omitempty"` // unix seconds
	UptimeSeconds *int64 `json:"uptimeSeconds,omitempty"`
	Error         string `json:"error,omitempty"`
	EndpointURL   string `json:"endpointUrl,omitempty"`
	UDID          string `json:"udid,omitempty"`
}

// VersionPayload is the data returned by the daemon for the version action.
type VersionPayload struct {
	Version string `json:"version"`
}

// RefreshRequest is posted to the cloud API refresh endpoint.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenPair is returned by the login and refresh endpoints.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// DiscoveryDocument is the JSON object embedded in a CDN discovery response.
// Each entry is a base64-encoded absolute http(s) URL.
type DiscoveryDocument struct {
	Entries []string `json:"entries"`
}

// ReadyPayload is the native plugin's answer to checkReady.
type ReadyPayload struct {
	Ready   bool   `json:"ready"`
	Version string `json:"version,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// UpdatePayload is the answer of an update tier (checkNativeUpdate, checkWebUpdate).
type UpdatePayload struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Native plugin event names.
const (
	EventVPNStateChange = "vpnStateChange"
	EventVPNError       = "vpnError"
)

// StateEventPayload is carried by vpnStateChange events.
type StateEventPayload struct {
	State string `json:"state"`
}

// ErrorEventPayload is carried by vpnError events.
type ErrorEventPayload struct {
	Message string `json:"message"`
}
