package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wirevpn/internal/vpn"
	"wirevpn/internal/vpn/native"
	"wirevpn/internal/vpn/vpntest"
	"wirevpn/pkg/protocol"
)

// pipeBridge serves fake over an in-memory connection and returns the client side.
func pipeBridge(t *testing.T, fake *vpntest.Plugin) (*Plugin, *Host) {
	t.Helper()

	host := NewHost("", fake)
	serverConn, clientConn := net.Pipe()
	go host.ServeConn(serverConn)

	session, err := yamux.Client(clientConn, sessionConfig())
	require.NoError(t, err)

	p := NewPlugin(session)
	t.Cleanup(func() {
		p.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		host.Shutdown(ctx)
	})
	return p, host
}

func TestBridge_Calls(t *testing.T) {
	fake := vpntest.NewPlugin()
	fake.Status = protocol.StatusPayload{State: "connected", EndpointURL: "wg://edge-2"}
	fake.Version = "5.0.1"
	fake.UDID = "host-device"
	fake.Config = json.RawMessage(`{"dns":"9.9.9.9"}`)
	fake.NativeCheck = protocol.UpdatePayload{Available: true, Version: "5.1.0"}

	p, _ := pipeBridge(t, fake)
	ctx := context.Background()

	require.NoError(t, p.Connect(ctx, "wire://connect?server=edge-2"))
	assert.Equal(t, []string{"wire://connect?server=edge-2"}, fake.WireURLs())

	st, err := p.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "connected", st.State)
	assert.Equal(t, "wg://edge-2", st.EndpointURL)

	v, err := p.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5.0.1", v)

	id, err := p.GetUDID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "host-device", id)

	cfg, err := p.GetConfig(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dns":"9.9.9.9"}`, string(cfg))

	rs, err := p.CheckReady(ctx)
	require.NoError(t, err)
	assert.True(t, rs.Ready)

	upd, err := p.CheckNativeUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5.1.0", upd.Version)

	path, err := p.DownloadNativeUpdate(ctx)
	require.NoError(t, err)
	require.NoError(t, p.InstallNativeUpdate(ctx, path))
	assert.Equal(t, []string{path}, fake.Installed())

	require.NoError(t, p.ApplyWebUpdate(ctx))
	require.NoError(t, p.Disconnect(ctx))
}

func TestBridge_RemoteError(t *testing.T) {
	fake := vpntest.NewPlugin()
	fake.ReadyErr = errors.New("service not installed")

	p, _ := pipeBridge(t, fake)

	_, err := p.CheckReady(context.Background())
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, protocol.MethodCheckReady, remote.Method)
	assert.Contains(t, remote.Message, "service not installed")
}

// stallingPlugin holds Connect until release is closed or the host context ends.
type stallingPlugin struct {
	*vpntest.Plugin
	entered chan struct{}
	release chan struct{}
}

func (p *stallingPlugin) Connect(ctx context.Context, wireURL string) error {
	close(p.entered)
	select {
	case <-p.release:
	case <-ctx.Done():
	}
	return p.Plugin.Connect(ctx, wireURL)
}

func TestBridge_CallAbortsOnContextDone(t *testing.T) {
	stalling := &stallingPlugin{
		Plugin:  vpntest.NewPlugin(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	defer close(stalling.release)

	host := NewHost("", stalling)
	serverConn, clientConn := net.Pipe()
	go host.ServeConn(serverConn)

	session, err := yamux.Client(clientConn, sessionConfig())
	require.NoError(t, err)
	p := NewPlugin(session)
	t.Cleanup(func() {
		p.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		host.Shutdown(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Connect(ctx, "wire://connect?server=edge-1") }()

	select {
	case <-stalling.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("host never received Connect")
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("Connect still blocked after its context expired")
	}

	// The session stays usable for later calls
	v, err := p.GetVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0-test", v)
}

func TestBridge_ListenerStream(t *testing.T) {
	fake := vpntest.NewPlugin()
	p, host := pipeBridge(t, fake)

	received := make(chan json.RawMessage, 4)
	handle, err := p.AddListener(protocol.EventVPNStateChange, func(raw json.RawMessage) {
		received <- raw
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fake.ActiveListeners() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		sessions := host.Registry.List()
		return len(sessions) == 1 && sessions[0].Listeners == 1
	}, 2*time.Second, 5*time.Millisecond)

	fake.EmitState("connecting")

	select {
	case raw := <-received:
		var ev protocol.StateEventPayload
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, "connecting", ev.State)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered over bridge")
	}

	require.NoError(t, handle.Remove())
	require.NoError(t, handle.Remove())
	assert.Eventually(t, func() bool { return fake.ActiveListeners() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestBridge_NativeClientEndToEnd(t *testing.T) {
	fake := vpntest.NewPlugin()
	p, _ := pipeBridge(t, fake)

	c := native.New(p)
	defer c.Destroy()

	events := make(chan vpn.Event, 4)
	unsubscribe := c.Subscribe(func(e vpn.Event) { events <- e })
	defer unsubscribe()

	require.Eventually(t, func() bool { return fake.ActiveListeners() == 2 }, 2*time.Second, 5*time.Millisecond)

	fake.EmitState("disconnected")
	fake.EmitError("route table locked")

	var got []vpn.Event
	for len(got) < 2 {
		select {
		case e := <-events:
			got = append(got, e)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d events, want 2", len(got))
		}
	}

	// Separate streams, so order across kinds is not guaranteed
	var sawState, sawError bool
	for _, e := range got {
		switch e.Type {
		case vpn.EventStateChange:
			sawState = e.State == vpn.StateStopped
		case vpn.EventError:
			sawError = e.Message == "route table locked"
		}
	}
	assert.True(t, sawState, "state_change stopped not received")
	assert.True(t, sawError, "error event not received")

	assert.Equal(t, vpn.Ready("0.0.0-test"), c.CheckReady(context.Background()))
}

func TestBridge_SessionUnregisteredOnClose(t *testing.T) {
	fake := vpntest.NewPlugin()
	p, host := pipeBridge(t, fake)

	_, err := p.GetVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, host.Registry.Len())

	require.NoError(t, p.Close())
	assert.Eventually(t, func() bool { return host.Registry.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	_, err = p.GetVersion(context.Background())
	assert.Error(t, err)
}

func TestDial_LiveHost(t *testing.T) {
	fake := vpntest.NewPlugin()
	fake.Version = "7.7.7"

	host := NewHost("127.0.0.1:0", fake)
	require.NoError(t, host.Listen())
	go host.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		host.Shutdown(ctx)
	})

	ctx := context.Background()
	p, err := Dial(ctx, host.ListenAddr(), nil)
	require.NoError(t, err)
	defer p.Close()

	v, err := p.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7.7.7", v)

	detected := Detect(ctx, host.ListenAddr(), nil)
	require.NotNil(t, detected)
	detected.(*Plugin).Close()
}

func TestDial_BoundedAttempts(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	cfg := &ReconnectConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  3,
		DialTimeout:  100 * time.Millisecond,
	}

	_, err = Dial(context.Background(), addr, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")

	assert.Nil(t, Detect(context.Background(), addr, cfg))
	assert.Nil(t, Detect(context.Background(), "", cfg))
}

func TestDial_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, "127.0.0.1:1", &ReconnectConfig{MaxAttempts: 5, InitialDelay: time.Second})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionRegistry(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("a", "127.0.0.1:5000", nil)
	time.Sleep(time.Millisecond)
	r.Register("b", "127.0.0.1:5001", nil)

	r.AddListeners("a", 2)
	r.AddListeners("missing", 1)

	entry, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, entry.Listeners)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	r.Unregister("a")
	_, ok = r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}
