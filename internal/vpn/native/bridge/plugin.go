// Package bridge carries the native plugin surface over a yamux session so a
// separate host process can provide it.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/yamux"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/vpn/native"
	"wirevpn/pkg/protocol"
)

// RemoteError is a failure reported by the host for a call.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("native host %s: %s", e.Method, e.Message)
}

// Plugin is a native.Plugin backed by a yamux session to a Host.
type Plugin struct {
	session *yamux.Session
}

var _ native.Plugin = (*Plugin)(nil)

// NewPlugin wraps an established client session.
func NewPlugin(session *yamux.Session) *Plugin {
	return &Plugin{session: session}
}

// Close tears the session down. Open listeners stop receiving events.
func (p *Plugin) Close() error {
	return p.session.Close()
}

// Closed is closed when the session ends.
func (p *Plugin) Closed() <-chan struct{} {
	return p.session.CloseChan()
}

// open starts a stream and sends the call frame.
func (p *Plugin) open(method string, params interface{}) (*yamux.Stream, *json.Decoder, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode %s params: %w", method, err)
		}
		raw = b
	}

	stream, err := p.session.OpenStream()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open stream: %w", err)
	}

	call := protocol.BridgeCall{ID: uuid.NewString(), Method: method, Params: raw}
	if err := json.NewEncoder(stream).Encode(call); err != nil {
		stream.Close()
		return nil, nil, fmt.Errorf("failed to send %s: %w", method, err)
	}
	return stream, json.NewDecoder(stream), nil
}

func readReply(dec *json.Decoder, method string, out interface{}) error {
	var reply protocol.BridgeReply
	if err := dec.Decode(&reply); err != nil {
		return fmt.Errorf("failed to read %s reply: %w", method, err)
	}
	if reply.Error != "" {
		return &RemoteError{Method: method, Message: reply.Error}
	}
	if out == nil || len(reply.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// call runs one request/reply exchange on a fresh stream.
func (p *Plugin) call(ctx context.Context, method string, params, out interface{}) error {
	stream, dec, err := p.open(method, params)
	if err != nil {
		return err
	}
	defer stream.Close()

	// Close alone only half-closes a yamux stream; the deadline unblocks the read.
	stop := context.AfterFunc(ctx, func() {
		stream.SetDeadline(time.Now())
		stream.Close()
	})
	defer stop()

	if err := readReply(dec, method, out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *Plugin) Connect(ctx context.Context, wireURL string) error {
	return p.call(ctx, protocol.MethodConnect, protocol.ConnectParams{WireURL: wireURL}, nil)
}

func (p *Plugin) Disconnect(ctx context.Context) error {
	return p.call(ctx, protocol.MethodDisconnect, nil, nil)
}

func (p *Plugin) GetStatus(ctx context.Context) (protocol.StatusPayload, error) {
	var st protocol.StatusPayload
	err := p.call(ctx, protocol.MethodGetStatus, nil, &st)
	return st, err
}

func (p *Plugin) GetVersion(ctx context.Context) (string, error) {
	var v protocol.VersionPayload
	err := p.call(ctx, protocol.MethodGetVersion, nil, &v)
	return v.Version, err
}

func (p *Plugin) GetConfig(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := p.call(ctx, protocol.MethodGetConfig, nil, &raw)
	return raw, err
}

func (p *Plugin) CheckReady(ctx context.Context) (protocol.ReadyPayload, error) {
	var rs protocol.ReadyPayload
	err := p.call(ctx, protocol.MethodCheckReady, nil, &rs)
	return rs, err
}

func (p *Plugin) GetUDID(ctx context.Context) (string, error) {
	var id string
	err := p.call(ctx, protocol.MethodGetUDID, nil, &id)
	return id, err
}

func (p *Plugin) CheckNativeUpdate(ctx context.Context) (protocol.UpdatePayload, error) {
	var u protocol.UpdatePayload
	err := p.call(ctx, protocol.MethodCheckNativeUpdate, nil, &u)
	return u, err
}

func (p *Plugin) CheckWebUpdate(ctx context.Context) (protocol.UpdatePayload, error) {
	var u protocol.UpdatePayload
	err := p.call(ctx, protocol.MethodCheckWebUpdate, nil, &u)
	return u, err
}

func (p *Plugin) DownloadNativeUpdate(ctx context.Context) (string, error) {
	var res protocol.DownloadResult
	err := p.call(ctx, protocol.MethodDownloadNativeUpdate, nil, &res)
	return res.Path, err
}

func (p *Plugin) InstallNativeUpdate(ctx context.Context, path string) error {
	return p.call(ctx, protocol.MethodInstallNativeUpdate, protocol.InstallParams{Path: path}, nil)
}

func (p *Plugin) ApplyWebUpdate(ctx context.Context) error {
	return p.call(ctx, protocol.MethodApplyWebUpdate, nil, nil)
}

// AddListener opens a long-lived stream on which the host pushes event
// frames. Removing the handle closes the stream.
func (p *Plugin) AddListener(event string, fn func(json.RawMessage)) (native.Handle, error) {
	stream, dec, err := p.open(protocol.MethodAddListener, protocol.ListenerParams{Event: event})
	if err != nil {
		return nil, err
	}
	if err := readReply(dec, protocol.MethodAddListener, nil); err != nil {
		stream.Close()
		return nil, err
	}

	go func() {
		for {
			var ev protocol.BridgeEvent
			if err := dec.Decode(&ev); err != nil {
				if err != io.EOF {
					logger.Debug("Listener stream for %s ended: %v", event, err)
				}
				return
			}
			fn(ev.Payload)
		}
	}()

	var once sync.Once
	return native.HandleFunc(func() error {
		var err error
		once.Do(func() { err = stream.Close() })
		return err
	}), nil
}
