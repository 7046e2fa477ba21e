//go:build (linux && !android) || freebsd

package platform

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	dbus "github.com/godbus/dbus/v5"
)

const (
	networkManagerDest                   = "org.freedesktop.NetworkManager"
	networkManagerObjectNode             = "/org/freedesktop/NetworkManager"
	networkManagerGetDeviceByIPIface     = networkManagerDest + ".GetDeviceByIpIface"
	networkManagerDeviceInterface        = "org.freedesktop.NetworkManager.Device"
	networkManagerDeviceGetApplied       = networkManagerDeviceInterface + ".GetAppliedConnection"
	networkManagerDeviceReapply          = networkManagerDeviceInterface + ".Reapply"
	networkManagerIPv4Key                = "ipv4"
	networkManagerIPv6Key                = "ipv6"
	networkManagerDNSKey                 = "dns"
	networkManagerDNSPriorityKey         = "dns-priority"
	networkManagerIgnoreAutoDNSKey       = "ignore-auto-dns"
	networkManagerStaticDNSPriority      = int32(-500)
	networkManagerCallTimeout            = 5 * time.Second
	networkManagerAvailabilityTimeout    = 2 * time.Second
	networkManagerDNSManagerObjectNode   = networkManagerObjectNode + "/DnsManager"
	networkManagerDNSManagerIface        = "org.freedesktop.NetworkManager.DnsManager"
	networkManagerDNSManagerModeProperty = networkManagerDNSManagerIface + ".Mode"
)

type nmConnSettings map[string]map[string]dbus.Variant
type nmConfigVersion uint64

// cleanDeprecatedSettings removes settings that GetAppliedConnection still
// returns but Reapply rejects.
func (s nmConnSettings) cleanDeprecatedSettings() {
	for _, key := range []string{"addresses", "routes"} {
		if ipv4, ok := s[networkManagerIPv4Key]; ok {
			delete(ipv4, key)
		}
		if ipv6, ok := s[networkManagerIPv6Key]; ok {
			delete(ipv6, key)
		}
	}
}

// NetworkManagerConfigurator manages interface DNS through the
// NetworkManager D-Bus API, reapplying the device's active connection with
// an updated dns property.
type NetworkManagerConfigurator struct {
	ifaceName  string
	devicePath dbus.ObjectPath
}

// NewNetworkManagerConfigurator resolves the D-Bus device object for the
// interface and returns a configurator bound to it.
func NewNetworkManagerConfigurator(ifaceName string) (*NetworkManagerConfigurator, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(networkManagerDest, networkManagerObjectNode)

	var devicePath string
	if err := obj.Call(networkManagerGetDeviceByIPIface, 0, ifaceName).Store(&devicePath); err != nil {
		return nil, fmt.Errorf("get device for %s: %w", ifaceName, err)
	}

	return &NetworkManagerConfigurator{
		ifaceName:  ifaceName,
		devicePath: dbus.ObjectPath(devicePath),
	}, nil
}

// Name returns the backend name.
func (n *NetworkManagerConfigurator) Name() string {
	return "networkmanager"
}

// Current returns the DNS servers configured on the device's applied
// connection. An empty list means DNS is managed globally or by DHCP.
func (n *NetworkManagerConfigurator) Current() ([]netip.Addr, error) {
	settings, _, err := n.getAppliedConnectionSettings()
	if err != nil {
		return nil, fmt.Errorf("get connection settings: %w", err)
	}
	return extractNMDNSServers(settings), nil
}

// Set writes the given servers as the connection's static DNS and marks
// auto-provided DNS as ignored, then reapplies the connection atomically.
func (n *NetworkManagerConfigurator) Set(servers []netip.Addr) error {
	settings, version, err := n.getAppliedConnectionSettings()
	if err != nil {
		return fmt.Errorf("get connection settings: %w", err)
	}

	settings.cleanDeprecatedSettings()

	if settings[networkManagerIPv4Key] == nil {
		settings[networkManagerIPv4Key] = make(map[string]dbus.Variant)
	}

	// NetworkManager wants IPv4 servers as little-endian uint32 values.
	var packed []uint32
	for _, server := range servers {
		if server.Is4() {
			packed = append(packed, binary.LittleEndian.Uint32(server.AsSlice()))
		}
	}
	if len(packed) == 0 {
		return fmt.Errorf("no IPv4 servers in address list")
	}

	settings[networkManagerIPv4Key][networkManagerDNSKey] = dbus.MakeVariant(packed)
	settings[networkManagerIPv4Key][networkManagerDNSPriorityKey] = dbus.MakeVariant(networkManagerStaticDNSPriority)
	settings[networkManagerIPv4Key][networkManagerIgnoreAutoDNSKey] = dbus.MakeVariant(true)

	if err := n.reapplyConnectionSettings(settings, version); err != nil {
		return fmt.Errorf("reapply connection settings: %w", err)
	}
	return nil
}

// Clear removes the static DNS configuration so the connection falls back
// to the DHCP/router-provided servers.
func (n *NetworkManagerConfigurator) Clear() error {
	settings, version, err := n.getAppliedConnectionSettings()
	if err != nil {
		return fmt.Errorf("get connection settings: %w", err)
	}

	settings.cleanDeprecatedSettings()

	if ipv4 := settings[networkManagerIPv4Key]; ipv4 != nil {
		delete(ipv4, networkManagerDNSKey)
		delete(ipv4, networkManagerDNSPriorityKey)
		ipv4[networkManagerIgnoreAutoDNSKey] = dbus.MakeVariant(false)
	}

	if err := n.reapplyConnectionSettings(settings, version); err != nil {
		return fmt.Errorf("reapply connection settings: %w", err)
	}
	return nil
}

func (n *NetworkManagerConfigurator) getAppliedConnectionSettings() (nmConnSettings, nmConfigVersion, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, 0, fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(networkManagerDest, n.devicePath)

	ctx, cancel := context.WithTimeout(context.Background(), networkManagerCallTimeout)
	defer cancel()

	var settings nmConnSettings
	var version nmConfigVersion
	if err := obj.CallWithContext(ctx, networkManagerDeviceGetApplied, 0, uint32(0)).Store(&settings, &version); err != nil {
		return nil, 0, fmt.Errorf("get applied connection: %w", err)
	}
	return settings, version, nil
}

func (n *NetworkManagerConfigurator) reapplyConnectionSettings(settings nmConnSettings, version nmConfigVersion) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(networkManagerDest, n.devicePath)

	ctx, cancel := context.WithTimeout(context.Background(), networkManagerCallTimeout)
	defer cancel()

	if err := obj.CallWithContext(ctx, networkManagerDeviceReapply, 0, settings, version, uint32(0)).Store(); err != nil {
		return fmt.Errorf("reapply connection: %w", err)
	}
	return nil
}

func extractNMDNSServers(settings nmConnSettings) []netip.Addr {
	var servers []netip.Addr

	ipv4, ok := settings[networkManagerIPv4Key]
	if !ok {
		return servers
	}

	dnsVariant, ok := ipv4[networkManagerDNSKey]
	if !ok {
		// No per-connection DNS. Normal when DHCP provides it.
		return servers
	}

	packed, ok := dnsVariant.Value().([]uint32)
	if !ok || packed == nil {
		return servers
	}

	for _, raw := range packed {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, raw)
		if addr, ok := netip.AddrFromSlice(buf); ok {
			servers = append(servers, addr)
		}
	}
	return servers
}

// IsNetworkManagerAvailable checks whether NetworkManager is on the bus and
// responsive.
func IsNetworkManagerAvailable() bool {
	conn, err := dbus.SystemBus()
	if err != nil {
		return false
	}
	defer conn.Close()

	obj := conn.Object(networkManagerDest, networkManagerObjectNode)

	ctx, cancel := context.WithTimeout(context.Background(), networkManagerAvailabilityTimeout)
	defer cancel()

	return obj.CallWithContext(ctx, "org.freedesktop.DBus.Peer.Ping", 0).Store() == nil
}

// IsNetworkManagerManagingDNS reports whether NetworkManager is resolving
// DNS itself rather than delegating to systemd-resolved. When it delegates,
// the systemd-resolved configurator should be used instead.
func IsNetworkManagerManagingDNS() bool {
	conn, err := dbus.SystemBus()
	if err != nil {
		return false
	}
	defer conn.Close()

	obj := conn.Object(networkManagerDest, networkManagerDNSManagerObjectNode)

	variant, err := obj.GetProperty(networkManagerDNSManagerModeProperty)
	if err != nil {
		// Older NetworkManager without DnsManager; assume it manages DNS.
		return true
	}

	mode, ok := variant.Value().(string)
	if !ok {
		return true
	}
	return mode != "systemd-resolved"
}
