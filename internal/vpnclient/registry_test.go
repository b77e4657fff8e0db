package vpnclient

import (
	"context"
	"errors"
	"testing"

	"wirevpn/internal/vpn"
	"wirevpn/internal/vpn/daemon"
	"wirevpn/internal/vpn/native"
	"wirevpn/internal/vpn/vpntest"
)

func newTestRegistry(built *int) *Registry {
	return NewRegistry(func() vpn.Client {
		*built++
		return vpntest.New()
	})
}

func TestRegistry_GetBeforeCreate(t *testing.T) {
	r := newTestRegistry(new(int))

	if _, err := r.Get(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Get() error = %v, want ErrNotInitialized", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustGet() should panic before Create")
		}
	}()
	r.MustGet()
}

func TestRegistry_CreateIsIdempotent(t *testing.T) {
	built := 0
	r := newTestRegistry(&built)

	first := r.Create(nil)
	second := r.Create(nil)
	if first != second {
		t.Error("Create() returned different instances")
	}
	if built != 1 {
		t.Errorf("factory called %d times, want 1", built)
	}

	got, err := r.Get()
	if err != nil || got != first {
		t.Errorf("Get() = %v, %v", got, err)
	}
}

func TestRegistry_OverrideWins(t *testing.T) {
	built := 0
	r := newTestRegistry(&built)

	r.Create(nil)
	override := vpntest.New()
	if got := r.Create(override); got != override {
		t.Error("Create(override) did not return the override")
	}
	if got := r.MustGet(); got != override {
		t.Error("override not installed")
	}
	if got := r.Create(nil); got != override {
		t.Error("Create(nil) replaced the override")
	}
}

func TestRegistry_Reset(t *testing.T) {
	built := 0
	r := newTestRegistry(&built)

	first := r.Create(nil)
	r.Reset()
	if _, err := r.Get(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Get() after Reset error = %v", err)
	}
	if second := r.Create(nil); second == first {
		t.Error("Create() after Reset returned the old instance")
	}
	if built != 2 {
		t.Errorf("factory called %d times, want 2", built)
	}
}

func TestRegistry_InitDetectsNativeHost(t *testing.T) {
	built := 0
	r := newTestRegistry(&built)

	detections := 0
	plugin := vpntest.NewPlugin()
	detect := func(context.Context) native.Plugin {
		detections++
		return plugin
	}

	c := r.Init(context.Background(), detect)
	if _, ok := c.(*native.Client); !ok {
		t.Fatalf("Init() = %T, want *native.Client", c)
	}
	if again := r.Init(context.Background(), detect); again != c {
		t.Error("Init() not memoized")
	}
	if detections != 1 {
		t.Errorf("detections = %d, want 1", detections)
	}
	if built != 0 {
		t.Errorf("default factory used %d times", built)
	}
	if got := r.Create(nil); got != c {
		t.Error("Create() after Init returned a different instance")
	}
}

func TestRegistry_InitFallsBackToDefault(t *testing.T) {
	built := 0
	r := newTestRegistry(&built)

	c := r.Init(context.Background(), func(context.Context) native.Plugin { return nil })
	if _, ok := c.(*vpntest.Client); !ok {
		t.Fatalf("Init() = %T, want default transport", c)
	}

	r.Reset()
	if c := r.Init(context.Background(), nil); c == nil || built != 2 {
		t.Errorf("Init(nil detector) = %v, built = %d", c, built)
	}
}

func TestPackageLevelRegistry(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	if _, err := Get(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Get() error = %v", err)
	}

	c := Create(nil)
	if _, ok := c.(*daemon.Client); !ok {
		t.Errorf("default transport = %T, want *daemon.Client", c)
	}
	if MustGet() != c {
		t.Error("MustGet() returned another instance")
	}

	double := vpntest.New()
	Create(double)
	if MustGet() != double {
		t.Error("override not installed in package registry")
	}
}
