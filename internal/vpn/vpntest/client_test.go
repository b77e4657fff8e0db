package vpntest

import (
	"context"
	"errors"
	"testing"

	"wirevpn/internal/vpn"
)

func TestClient_CannedAnswers(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.SetState(vpn.StateConnected)
	c.SetVersion("9.9.9")
	c.SetReady(vpn.NotReady(vpn.ReasonVersionMismatch))
	c.SetUDID("u-1")

	if st, err := c.GetStatus(ctx); err != nil || st.State != vpn.StateConnected {
		t.Errorf("GetStatus() = %+v, %v", st, err)
	}
	if v, _ := c.GetVersion(ctx); v != "9.9.9" {
		t.Errorf("GetVersion() = %q", v)
	}
	if r := c.CheckReady(ctx); r.Reason != vpn.ReasonVersionMismatch {
		t.Errorf("CheckReady() = %+v", r)
	}
	if id, _ := c.GetUDID(ctx); id != "u-1" {
		t.Errorf("GetUDID() = %q", id)
	}

	boom := errors.New("boom")
	c.SetError(boom)
	if _, err := c.GetStatus(ctx); !errors.Is(err, boom) {
		t.Errorf("GetStatus() error = %v, want boom", err)
	}
}

func TestClient_Recorders(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.Connect(ctx, vpn.ClientConfig{Server: "a"})
	c.Connect(ctx, vpn.ClientConfig{Server: "b"})
	c.Disconnect(ctx)

	calls := c.ConnectCalls()
	if len(calls) != 2 || calls[0].Server != "a" || calls[1].Server != "b" {
		t.Errorf("ConnectCalls() = %+v", calls)
	}
	if n := c.DisconnectCount(); n != 1 {
		t.Errorf("DisconnectCount() = %d, want 1", n)
	}
}

func TestClient_SimulateEvent(t *testing.T) {
	c := New()

	var got []vpn.Event
	unsubscribe := c.Subscribe(func(e vpn.Event) { got = append(got, e) })

	c.SimulateEvent(vpn.StateChange(vpn.StateConnecting))
	c.SimulateEvent(vpn.ErrorEvent("handshake timeout"))

	// Synchronous: delivered before SimulateEvent returns
	if len(got) != 2 || got[0].State != vpn.StateConnecting || got[1].Message != "handshake timeout" {
		t.Fatalf("events = %+v", got)
	}

	unsubscribe()
	c.SimulateEvent(vpn.StateChange(vpn.StateConnected))
	if len(got) != 2 {
		t.Errorf("event delivered after unsubscribe")
	}
}

func TestClient_Destroy(t *testing.T) {
	c := New()
	c.Subscribe(func(vpn.Event) {})
	c.Subscribe(func(vpn.Event) {})
	if n := c.SubscriberCount(); n != 2 {
		t.Fatalf("SubscriberCount() = %d, want 2", n)
	}

	c.Destroy()
	if !c.Destroyed() || c.SubscriberCount() != 0 {
		t.Errorf("after Destroy: destroyed=%v subscribers=%d", c.Destroyed(), c.SubscriberCount())
	}
}
