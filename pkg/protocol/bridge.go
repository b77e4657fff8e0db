package protocol

import "encoding/json"

// Native bridge methods. Each call travels on its own yamux stream.
const (
	MethodConnect              = "connect"
	MethodDisconnect           = "disconnect"
	MethodGetStatus            = "getStatus"
	MethodGetVersion           = "getVersion"
	MethodGetConfig            = "getConfig"
	MethodCheckReady           = "checkReady"
	MethodGetUDID              = "getUDID"
	MethodCheckNativeUpdate    = "checkNativeUpdate"
	MethodCheckWebUpdate       = "checkWebUpdate"
	MethodDownloadNativeUpdate = "downloadNativeUpdate"
	MethodInstallNativeUpdate  = "installNativeUpdate"
	MethodApplyWebUpdate       = "applyWebUpdate"
	// MethodAddListener keeps its stream open; the host writes BridgeEvent
	// frames until the caller closes it.
	MethodAddListener = "addListener"
)

// BridgeCall is the first frame on every bridge stream.
type BridgeCall struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// BridgeReply answers a BridgeCall. Error is empty on success.
type BridgeReply struct {
	ID     string          `json:"id"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// BridgeEvent is pushed on an addListener stream.
type BridgeEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ConnectParams are the params of the connect method.
type ConnectParams struct {
	WireURL string `json:"wireUrl"`
}

// InstallParams are the params of installNativeUpdate.
type InstallParams struct {
	Path string `json:"path"`
}

// ListenerParams are the params of addListener.
type ListenerParams struct {
	Event string `json:"event"`
}

// DownloadResult is returned by downloadNativeUpdate.
type DownloadResult struct {
	Path string `json:"path"`
}
