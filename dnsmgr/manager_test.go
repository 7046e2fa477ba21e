package dnsmgr

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"testing"

	"github.com/dnschanger/dnschanger/dnsmgr/platform"
)

// fakeConfigurator keeps the resolver list in memory and records calls.
type fakeConfigurator struct {
	servers    []netip.Addr
	setErr     error
	clearErr   error
	currentErr error
	setCalls   int
	clearCalls int
}

func (f *fakeConfigurator) Current() ([]netip.Addr, error) {
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	out := make([]netip.Addr, len(f.servers))
	copy(out, f.servers)
	return out, nil
}

func (f *fakeConfigurator) Set(servers []netip.Addr) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.servers = make([]netip.Addr, len(servers))
	copy(f.servers, servers)
	return nil
}

func (f *fakeConfigurator) Clear() error {
	f.clearCalls++
	if f.clearErr != nil {
		return f.clearErr
	}
	f.servers = nil
	return nil
}

func (f *fakeConfigurator) Name() string { return "fake" }

func newTestManager(t *testing.T, fake *fakeConfigurator) *Manager {
	t.Helper()
	m := New(Options{StateDir: t.TempDir()})
	m.newConfigurator = func(iface string) (platform.Configurator, error) {
		return fake, nil
	}
	m.checkIface = func(iface string) error {
		if iface == "" || iface == "missing0" {
			return fmt.Errorf("%w: %s", ErrInterfaceNotFound, iface)
		}
		return nil
	}
	return m
}

func addrs(values ...string) []netip.Addr {
	out := make([]netip.Addr, 0, len(values))
	for _, v := range values {
		out = append(out, netip.MustParseAddr(v))
	}
	return out
}

func TestApplyThenCurrent(t *testing.T) {
	fake := &fakeConfigurator{servers: addrs("192.168.1.1")}
	m := newTestManager(t, fake)

	if err := m.Apply("eth0", []string{"8.8.8.8", "8.8.4.4"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got, err := m.CurrentDNS("eth0")
	if err != nil {
		t.Fatalf("CurrentDNS() error = %v", err)
	}
	want := addrs("8.8.8.8", "8.8.4.4")
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("CurrentDNS() = %v, want %v", got, want)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	fake := &fakeConfigurator{servers: addrs("192.168.1.1")}
	m := newTestManager(t, fake)

	current, err := m.CurrentDNS("eth0")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Apply("eth0", addrsToStrings(current)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got, err := m.CurrentDNS("eth0")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(current) || got[0] != current[0] {
		t.Errorf("CurrentDNS() after idempotent apply = %v, want %v", got, current)
	}
}

func TestApplyRejectsInvalidAddresses(t *testing.T) {
	tests := []struct {
		name   string
		values []string
	}{
		{name: "not an IP", values: []string{"not-an-ip"}},
		{name: "one bad entry", values: []string{"8.8.8.8", "8.8.4"}},
		{name: "empty list", values: nil},
		{name: "blank entry", values: []string{"8.8.8.8", " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeConfigurator{servers: addrs("192.168.1.1")}
			m := newTestManager(t, fake)

			err := m.Apply("eth0", tt.values)
			if !errors.Is(err, ErrInvalidAddress) {
				t.Fatalf("Apply(%v) error = %v, want ErrInvalidAddress", tt.values, err)
			}
			if fake.setCalls != 0 {
				t.Error("Apply with invalid addresses reached the backend")
			}

			got, err := m.CurrentDNS("eth0")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0] != netip.MustParseAddr("192.168.1.1") {
				t.Errorf("configuration changed after rejected apply: %v", got)
			}
		})
	}
}

func TestApplyUnknownInterface(t *testing.T) {
	m := newTestManager(t, &fakeConfigurator{})

	err := m.Apply("missing0", []string{"8.8.8.8"})
	if !errors.Is(err, ErrInterfaceNotFound) {
		t.Errorf("Apply on missing interface error = %v, want ErrInterfaceNotFound", err)
	}
}

func TestApplyClassifiesPermissionErrors(t *testing.T) {
	fake := &fakeConfigurator{
		servers: addrs("192.168.1.1"),
		setErr:  os.ErrPermission,
	}
	m := newTestManager(t, fake)

	err := m.Apply("eth0", []string{"8.8.8.8"})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Apply() error = %v, want ErrPermissionDenied", err)
	}
}

func TestApplyClassifiesBackendErrors(t *testing.T) {
	fake := &fakeConfigurator{
		servers: addrs("192.168.1.1"),
		setErr:  errors.New("reapply connection: something broke"),
	}
	m := newTestManager(t, fake)

	err := m.Apply("eth0", []string{"8.8.8.8"})
	if !errors.Is(err, ErrApplyFailed) {
		t.Errorf("Apply() error = %v, want ErrApplyFailed", err)
	}
}

func TestRestoreReproducesPreviousConfiguration(t *testing.T) {
	fake := &fakeConfigurator{servers: addrs("192.168.1.1", "192.168.1.2")}
	m := newTestManager(t, fake)

	if err := m.Apply("eth0", []string{"1.1.1.1", "1.0.0.1"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Restore("eth0"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	got, err := m.CurrentDNS("eth0")
	if err != nil {
		t.Fatal(err)
	}
	want := addrs("192.168.1.1", "192.168.1.2")
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("CurrentDNS() after restore = %v, want %v", got, want)
	}

	if m.PendingRestore() {
		t.Error("state file still present after successful restore")
	}
}

func TestRestoreClearsWhenPreviousWasAutomatic(t *testing.T) {
	fake := &fakeConfigurator{} // no static DNS before apply
	m := newTestManager(t, fake)

	if err := m.Apply("eth0", []string{"9.9.9.9"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Restore("eth0"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if fake.clearCalls != 1 {
		t.Errorf("Clear() called %d times, want 1", fake.clearCalls)
	}
}

func TestRestoreWithoutPriorApply(t *testing.T) {
	m := newTestManager(t, &fakeConfigurator{})

	err := m.Restore("eth0")
	if !errors.Is(err, ErrNothingToRestore) {
		t.Errorf("Restore() error = %v, want ErrNothingToRestore", err)
	}
}

func TestRestoreSurvivesNewSession(t *testing.T) {
	stateDir := t.TempDir()
	fake := &fakeConfigurator{servers: addrs("192.168.1.1")}

	build := func() *Manager {
		m := New(Options{StateDir: stateDir})
		m.newConfigurator = func(string) (platform.Configurator, error) { return fake, nil }
		m.checkIface = func(string) error { return nil }
		return m
	}

	if err := build().Apply("eth0", []string{"8.8.8.8"}); err != nil {
		t.Fatal(err)
	}

	// Fresh Manager, as after a crash or a new invocation.
	fresh := build()
	if !fresh.PendingRestore() {
		t.Fatal("PendingRestore() = false after apply in earlier session")
	}
	if err := fresh.Restore(""); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if len(fake.servers) != 1 || fake.servers[0] != netip.MustParseAddr("192.168.1.1") {
		t.Errorf("restored servers = %v, want [192.168.1.1]", fake.servers)
	}
}

func TestRestoreRejectsMismatchedInterface(t *testing.T) {
	fake := &fakeConfigurator{servers: addrs("192.168.1.1")}
	m := newTestManager(t, fake)

	if err := m.Apply("eth0", []string{"8.8.8.8"}); err != nil {
		t.Fatal(err)
	}

	err := m.Restore("wlan0")
	if !errors.Is(err, ErrNothingToRestore) {
		t.Errorf("Restore(wlan0) error = %v, want ErrNothingToRestore", err)
	}
}

func TestSetAutomatic(t *testing.T) {
	fake := &fakeConfigurator{servers: addrs("8.8.8.8")}
	m := newTestManager(t, fake)

	if err := m.SetAutomatic("eth0"); err != nil {
		t.Fatalf("SetAutomatic() error = %v", err)
	}
	if fake.clearCalls != 1 {
		t.Errorf("Clear() called %d times, want 1", fake.clearCalls)
	}

	// The static servers from before must be restorable.
	if err := m.Restore("eth0"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(fake.servers) != 1 || fake.servers[0] != netip.MustParseAddr("8.8.8.8") {
		t.Errorf("restored servers = %v, want [8.8.8.8]", fake.servers)
	}
}

func TestNotifyCallback(t *testing.T) {
	fake := &fakeConfigurator{servers: addrs("192.168.1.1")}
	m := newTestManager(t, fake)

	var events []Event
	m.SetNotify(func(ev Event) { events = append(events, ev) })

	if err := m.Apply("eth0", []string{"8.8.8.8"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Restore("eth0"); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != "apply" || events[1].Type != "restore" {
		t.Errorf("event types = %s, %s, want apply, restore", events[0].Type, events[1].Type)
	}
	if events[0].Interface != "eth0" {
		t.Errorf("event interface = %s, want eth0", events[0].Interface)
	}
}

func TestCurrentDNSPermissionDenied(t *testing.T) {
	fake := &fakeConfigurator{currentErr: os.ErrPermission}
	m := newTestManager(t, fake)

	_, err := m.CurrentDNS("eth0")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("CurrentDNS() error = %v, want ErrPermissionDenied", err)
	}
}

func TestFailedApplyLeavesNoRestoreRecord(t *testing.T) {
	fake := &fakeConfigurator{
		servers: addrs("192.168.1.1"),
		setErr:  errors.New("reapply connection: something broke"),
	}
	m := newTestManager(t, fake)

	if err := m.Apply("eth0", []string{"1.1.1.1"}); err == nil {
		t.Fatal("Apply() succeeded although the backend write failed")
	}
	if m.PendingRestore() {
		t.Error("PendingRestore() = true after a write that never changed the OS")
	}
	if m.Previous() != nil {
		t.Error("Previous() != nil after a failed first apply")
	}
}

func TestFailedSecondApplyKeepsFirstRecord(t *testing.T) {
	fake := &fakeConfigurator{servers: addrs("192.168.1.1")}
	m := newTestManager(t, fake)

	if err := m.Apply("eth0", []string{"1.1.1.1"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	fake.setErr = errors.New("reapply connection: something broke")
	if err := m.Apply("eth0", []string{"9.9.9.9"}); err == nil {
		t.Fatal("second Apply() succeeded although the backend write failed")
	}

	prev := m.Previous()
	if prev == nil {
		t.Fatal("Previous() = nil, the first apply's record was lost")
	}
	if len(prev.PreviousDNS) != 1 || prev.PreviousDNS[0] != "192.168.1.1" {
		t.Errorf("Previous().PreviousDNS = %v, want [192.168.1.1]", prev.PreviousDNS)
	}
}

func TestFailedAutomaticLeavesNoRestoreRecord(t *testing.T) {
	fake := &fakeConfigurator{
		servers:  addrs("8.8.8.8"),
		clearErr: errors.New("revert link: something broke"),
	}
	m := newTestManager(t, fake)

	if err := m.SetAutomatic("eth0"); err == nil {
		t.Fatal("SetAutomatic() succeeded although the backend clear failed")
	}
	if m.PendingRestore() {
		t.Error("PendingRestore() = true after a clear that never changed the OS")
	}
}
