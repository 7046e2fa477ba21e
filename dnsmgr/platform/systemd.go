//go:build (linux && !android) || freebsd

package platform

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

const (
	resolvedDest              = "org.freedesktop.resolve1"
	resolvedObjectNode        = "/org/freedesktop/resolve1"
	resolvedManagerIface      = "org.freedesktop.resolve1.Manager"
	resolvedGetLinkMethod     = resolvedManagerIface + ".GetLink"
	resolvedFlushCachesMethod = resolvedManagerIface + ".FlushCaches"
	resolvedLinkInterface     = "org.freedesktop.resolve1.Link"
	resolvedSetDNSMethod      = resolvedLinkInterface + ".SetDNS"
	resolvedRevertMethod      = resolvedLinkInterface + ".Revert"
	resolvedCallTimeout       = 5 * time.Second

	// resolvedStateDir holds per-link state files that expose the current
	// DNS servers; the D-Bus API has no simple read-back call.
	resolvedStateDir = "/run/systemd/resolve"
)

// resolvedDNSInput maps to the (iay) D-Bus input of SetDNS.
type resolvedDNSInput struct {
	Family  int32
	Address []byte
}

// SystemdResolvedConfigurator manages per-link DNS through the
// systemd-resolved D-Bus API.
type SystemdResolvedConfigurator struct {
	ifaceName  string
	ifaceIndex int
	linkPath   dbus.ObjectPath
}

// NewSystemdResolvedConfigurator looks up the resolved link object for the
// interface and returns a configurator bound to it.
func NewSystemdResolvedConfigurator(ifaceName string) (*SystemdResolvedConfigurator, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("get interface %s: %w", ifaceName, err)
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(resolvedDest, resolvedObjectNode)

	var linkPath string
	if err := obj.Call(resolvedGetLinkMethod, 0, iface.Index).Store(&linkPath); err != nil {
		return nil, fmt.Errorf("get link for %s: %w", ifaceName, err)
	}

	return &SystemdResolvedConfigurator{
		ifaceName:  ifaceName,
		ifaceIndex: iface.Index,
		linkPath:   dbus.ObjectPath(linkPath),
	}, nil
}

// Name returns the backend name.
func (s *SystemdResolvedConfigurator) Name() string {
	return "systemd-resolved"
}

// Current returns the per-link DNS servers by parsing resolved's runtime
// state file for the link. Returns an empty list when the link has no
// per-link servers configured.
func (s *SystemdResolvedConfigurator) Current() ([]netip.Addr, error) {
	path := fmt.Sprintf("%s/netif/%d", resolvedStateDir, s.ifaceIndex)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []netip.Addr{}, nil
		}
		return nil, fmt.Errorf("open resolved link state: %w", err)
	}
	defer file.Close()

	var servers []netip.Addr
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "DNS=") {
			continue
		}
		for _, field := range strings.Fields(strings.TrimPrefix(line, "DNS=")) {
			// Entries may carry a %zone or #name suffix.
			field, _, _ = strings.Cut(field, "%")
			field, _, _ = strings.Cut(field, "#")
			if addr, err := netip.ParseAddr(field); err == nil {
				servers = append(servers, addr)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read resolved link state: %w", err)
	}
	return servers, nil
}

// Set replaces the link's DNS servers via SetDNS and flushes the resolver
// cache so the change takes effect immediately.
func (s *SystemdResolvedConfigurator) Set(servers []netip.Addr) error {
	if len(servers) == 0 {
		return fmt.Errorf("no DNS servers provided")
	}

	inputs := make([]resolvedDNSInput, 0, len(servers))
	for _, server := range servers {
		family := unix.AF_INET
		if server.Is6() {
			family = unix.AF_INET6
		}
		inputs = append(inputs, resolvedDNSInput{
			Family:  int32(family),
			Address: server.AsSlice(),
		})
	}

	if err := s.callLinkMethod(resolvedSetDNSMethod, inputs); err != nil {
		return fmt.Errorf("set DNS servers: %w", err)
	}

	if err := s.flushCaches(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to flush DNS cache: %v\n", err)
	}
	return nil
}

// Clear reverts the link to resolved's defaults, dropping any per-link
// configuration in one call.
func (s *SystemdResolvedConfigurator) Clear() error {
	if err := s.callLinkMethod(resolvedRevertMethod, nil); err != nil {
		return fmt.Errorf("revert link DNS: %w", err)
	}

	if err := s.flushCaches(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to flush DNS cache: %v\n", err)
	}
	return nil
}

func (s *SystemdResolvedConfigurator) callLinkMethod(method string, value any) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(resolvedDest, s.linkPath)

	ctx, cancel := context.WithTimeout(context.Background(), resolvedCallTimeout)
	defer cancel()

	if value != nil {
		if err := obj.CallWithContext(ctx, method, 0, value).Store(); err != nil {
			return fmt.Errorf("call %s: %w", method, err)
		}
		return nil
	}
	if err := obj.CallWithContext(ctx, method, 0).Store(); err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	return nil
}

func (s *SystemdResolvedConfigurator) flushCaches() error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(resolvedDest, resolvedObjectNode)

	ctx, cancel := context.WithTimeout(context.Background(), resolvedCallTimeout)
	defer cancel()

	if err := obj.CallWithContext(ctx, resolvedFlushCachesMethod, 0).Store(); err != nil {
		return fmt.Errorf("flush caches: %w", err)
	}
	return nil
}

// IsSystemdResolvedAvailable checks whether systemd-resolved is on the bus
// and responsive.
func IsSystemdResolvedAvailable() bool {
	conn, err := dbus.SystemBus()
	if err != nil {
		return false
	}
	defer conn.Close()

	obj := conn.Object(resolvedDest, resolvedObjectNode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return obj.CallWithContext(ctx, "org.freedesktop.DBus.Peer.Ping", 0).Store() == nil
}
