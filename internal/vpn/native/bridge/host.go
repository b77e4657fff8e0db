package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/yamux"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/vpn/native"
	"wirevpn/pkg/protocol"
)

// Host serves a native.Plugin to bridge clients. Every client connection is
// a yamux session; every call is a stream.
type Host struct {
	Registry *SessionRegistry
	Addr     string

	plugin   native.Plugin
	listener net.Listener
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	// MaxConnections limits concurrent sessions (0 = unlimited)
	MaxConnections int
	connSem        chan struct{}
}

func NewHost(addr string, plugin native.Plugin) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		Registry:       NewSessionRegistry(),
		Addr:           addr,
		plugin:         plugin,
		ctx:            ctx,
		cancel:         cancel,
		MaxConnections: 16,
	}
}

// Listen binds the host address. Start calls it when needed.
func (h *Host) Listen() error {
	if h.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", h.Addr)
	if err != nil {
		return err
	}
	h.listener = l
	return nil
}

// ListenAddr returns the bound address, or "" before Listen.
func (h *Host) ListenAddr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Start accepts connections until Shutdown.
func (h *Host) Start() error {
	if err := h.Listen(); err != nil {
		return err
	}

	if h.MaxConnections > 0 {
		h.connSem = make(chan struct{}, h.MaxConnections)
	}

	logger.Info("Native host listening on %s (MaxConn=%d)", h.ListenAddr(), h.MaxConnections)

	for {
		select {
		case <-h.ctx.Done():
			return nil
		default:
		}

		conn, err := h.listener.Accept()
		if err != nil {
			if h.ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Warn("Temporary accept error: %v, retrying...", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}

		if h.connSem != nil {
			select {
			case h.connSem <- struct{}{}:
			case <-h.ctx.Done():
				conn.Close()
				return nil
			}
		}

		h.wg.Add(1)
		go func(c net.Conn) {
			defer h.wg.Done()
			defer func() {
				if h.connSem != nil {
					<-h.connSem
				}
			}()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Panic recovered in bridge session: %v", r)
				}
			}()
			h.ServeConn(c)
		}(conn)
	}
}

// Shutdown stops accepting, closes every session and waits for handlers
// until ctx expires.
func (h *Host) Shutdown(ctx context.Context) error {
	h.cancel()
	if h.listener != nil {
		if err := h.listener.Close(); err != nil {
			logger.Debug("Error closing listener: %v", err)
		}
	}
	h.Registry.CloseAll()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Native host stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeConn runs a bridge session on conn until it closes.
func (h *Host) ServeConn(conn net.Conn) {
	session, err := yamux.Server(conn, sessionConfig())
	if err != nil {
		logger.Warn("Failed to create yamux session for %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	id := uuid.NewString()
	h.Registry.Register(id, conn.RemoteAddr().String(), session)
	defer h.Registry.Unregister(id)
	logger.Debug("Bridge session %s opened from %s", id, conn.RemoteAddr())

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	go func() {
		select {
		case <-session.CloseChan():
			cancel()
		case <-ctx.Done():
			session.Close()
		}
	}()

	var streams sync.WaitGroup
	defer streams.Wait()

	for {
		stream, err := session.AcceptStream()
		if err != nil {
			if !session.IsClosed() {
				logger.Debug("Bridge session %s accept error: %v", id, err)
			}
			logger.Debug("Bridge session %s closed", id)
			return
		}
		streams.Add(1)
		go func() {
			defer streams.Done()
			h.serveStream(ctx, id, stream)
		}()
	}
}

func (h *Host) serveStream(ctx context.Context, sessionID string, stream *yamux.Stream) {
	defer stream.Close()

	dec := json.NewDecoder(stream)
	enc := json.NewEncoder(stream)

	var call protocol.BridgeCall
	if err := dec.Decode(&call); err != nil {
		logger.Debug("Bad bridge call: %v", err)
		return
	}

	if call.Method == protocol.MethodAddListener {
		h.serveListener(sessionID, call, stream, enc)
		return
	}

	result, err := h.dispatch(ctx, call)
	reply := protocol.BridgeReply{ID: call.ID}
	if err != nil {
		reply.Error = err.Error()
	} else if result != nil {
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			reply.Error = mErr.Error()
		} else {
			reply.Result = raw
		}
	}
	if err := enc.Encode(reply); err != nil {
		logger.Debug("Failed to reply to %s: %v", call.Method, err)
	}
}

// serveListener registers a plugin listener and streams its events until the
// client closes the stream.
func (h *Host) serveListener(sessionID string, call protocol.BridgeCall, stream *yamux.Stream, enc *json.Encoder) {
	var params protocol.ListenerParams
	if err := json.Unmarshal(call.Params, &params); err != nil || params.Event == "" {
		enc.Encode(protocol.BridgeReply{ID: call.ID, Error: "missing event name"})
		return
	}

	var mu sync.Mutex
	mu.Lock()
	handle, err := h.plugin.AddListener(params.Event, func(payload json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(protocol.BridgeEvent{Event: params.Event, Payload: payload}); err != nil {
			logger.Debug("Failed to push %s: %v", params.Event, err)
		}
	})
	if err != nil {
		enc.Encode(protocol.BridgeReply{ID: call.ID, Error: err.Error()})
		mu.Unlock()
		return
	}
	enc.Encode(protocol.BridgeReply{ID: call.ID})
	mu.Unlock()

	h.Registry.AddListeners(sessionID, 1)
	defer h.Registry.AddListeners(sessionID, -1)

	// Blocks until the client closes its side
	io.Copy(io.Discard, stream)

	if err := handle.Remove(); err != nil {
		logger.Debug("Failed to release %s listener: %v", params.Event, err)
	}
}

func (h *Host) dispatch(ctx context.Context, call protocol.BridgeCall) (interface{}, error) {
	p := h.plugin
	switch call.Method {
	case protocol.MethodConnect:
		var params protocol.ConnectParams
		if err := json.Unmarshal(call.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return nil, p.Connect(ctx, params.WireURL)
	case protocol.MethodDisconnect:
		return nil, p.Disconnect(ctx)
	case protocol.MethodGetStatus:
		return p.GetStatus(ctx)
	case protocol.MethodGetVersion:
		v, err := p.GetVersion(ctx)
		return protocol.VersionPayload{Version: v}, err
	case protocol.MethodGetConfig:
		return p.GetConfig(ctx)
	case protocol.MethodCheckReady:
		return p.CheckReady(ctx)
	case protocol.MethodGetUDID:
		return p.GetUDID(ctx)
	case protocol.MethodCheckNativeUpdate:
		return p.CheckNativeUpdate(ctx)
	case protocol.MethodCheckWebUpdate:
		return p.CheckWebUpdate(ctx)
	case protocol.MethodDownloadNativeUpdate:
		path, err := p.DownloadNativeUpdate(ctx)
		return protocol.DownloadResult{Path: path}, err
	case protocol.MethodInstallNativeUpdate:
		var params protocol.InstallParams
		if err := json.Unmarshal(call.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return nil, p.InstallNativeUpdate(ctx, params.Path)
	case protocol.MethodApplyWebUpdate:
		return nil, p.ApplyWebUpdate(ctx)
	default:
		return nil, fmt.Errorf("unknown method %q", call.Method)
	}
}
