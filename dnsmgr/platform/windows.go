//go:build windows

package platform

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

var (
	dnsapi                  = syscall.NewLazyDLL("dnsapi.dll")
	dnsFlushResolverCacheFn = dnsapi.NewProc("DnsFlushResolverCache")
)

const (
	interfaceConfigPath           = `SYSTEM\CurrentControlSet\Services\Tcpip\Parameters\Interfaces`
	interfaceConfigNameServer     = "NameServer"
	interfaceConfigDhcpNameServer = "DhcpNameServer"
)

// WindowsConfigurator manages per-interface DNS through the TCP/IP registry
// parameters, keyed by the adapter GUID.
type WindowsConfigurator struct {
	ifaceName string
	guid      string
}

// NewWindowsConfigurator resolves the registry GUID for the named interface
// and returns a configurator bound to it.
func NewWindowsConfigurator(ifaceName string) (*WindowsConfigurator, error) {
	guid, err := interfaceGUID(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("resolve GUID for %s: %w", ifaceName, err)
	}
	return &WindowsConfigurator{ifaceName: ifaceName, guid: guid}, nil
}

// Name returns the backend name.
func (w *WindowsConfigurator) Name() string {
	return "windows-registry"
}

// Current returns the interface's DNS servers: the static NameServer value
// when set, otherwise the DHCP-provided servers.
func (w *WindowsConfigurator) Current() ([]netip.Addr, error) {
	regKey, err := w.openInterfaceKey(registry.QUERY_VALUE)
	if err != nil {
		return nil, fmt.Errorf("get interface registry key: %w", err)
	}
	defer closeKey(regKey)

	nameServer, _, err := regKey.GetStringValue(interfaceConfigNameServer)
	if err == nil && nameServer != "" {
		return parseServerList(nameServer), nil
	}

	dhcpNameServer, _, err := regKey.GetStringValue(interfaceConfigDhcpNameServer)
	if err == nil && dhcpNameServer != "" {
		return parseServerList(dhcpNameServer), nil
	}

	return []netip.Addr{}, nil
}

// Set writes the servers as the static NameServer value and flushes the
// resolver cache. The value is a single registry write, so the update is
// all-or-nothing.
func (w *WindowsConfigurator) Set(servers []netip.Addr) error {
	if len(servers) == 0 {
		return fmt.Errorf("no DNS servers provided")
	}

	regKey, err := w.openInterfaceKey(registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("get interface registry key: %w", err)
	}
	defer closeKey(regKey)

	parts := make([]string, 0, len(servers))
	for _, server := range servers {
		parts = append(parts, server.String())
	}

	if err := regKey.SetStringValue(interfaceConfigNameServer, strings.Join(parts, ",")); err != nil {
		return fmt.Errorf("set NameServer: %w", err)
	}

	if err := w.flushCache(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to flush DNS cache: %v\n", err)
	}
	return nil
}

// Clear empties the static NameServer value, reverting to DHCP DNS.
func (w *WindowsConfigurator) Clear() error {
	regKey, err := w.openInterfaceKey(registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("get interface registry key: %w", err)
	}
	defer closeKey(regKey)

	if err := regKey.SetStringValue(interfaceConfigNameServer, ""); err != nil {
		return fmt.Errorf("clear NameServer: %w", err)
	}

	if err := w.flushCache(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to flush DNS cache: %v\n", err)
	}
	return nil
}

func (w *WindowsConfigurator) openInterfaceKey(access uint32) (registry.Key, error) {
	regKeyPath := interfaceConfigPath + `\` + w.guid

	regKey, err := registry.OpenKey(registry.LOCAL_MACHINE, regKeyPath, access)
	if err != nil {
		return 0, fmt.Errorf("open HKEY_LOCAL_MACHINE\\%s: %w", regKeyPath, err)
	}
	return regKey, nil
}

func (w *WindowsConfigurator) flushCache() error {
	// dnsFlushResolverCacheFn.Call() may panic if the proc is missing.
	defer func() {
		if rec := recover(); rec != nil {
			fmt.Fprintf(os.Stderr, "warning: DnsFlushResolverCache panicked: %v\n", rec)
		}
	}()

	ret, _, err := dnsFlushResolverCacheFn.Call()
	if ret == 0 {
		if err != nil && !errors.Is(err, syscall.Errno(0)) {
			return fmt.Errorf("DnsFlushResolverCache failed: %w", err)
		}
		return fmt.Errorf("DnsFlushResolverCache failed")
	}
	return nil
}

func parseServerList(serverList string) []netip.Addr {
	var servers []netip.Addr
	for _, part := range strings.FieldsFunc(serverList, func(r rune) bool {
		return r == ',' || r == ' '
	}) {
		if addr, err := netip.ParseAddr(part); err == nil {
			servers = append(servers, addr)
		}
	}
	return servers
}

func closeKey(closer io.Closer) {
	if err := closer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close registry key: %v\n", err)
	}
}

// interfaceGUID maps an interface name to the adapter GUID the TCP/IP
// registry keys are named after, going name -> index -> LUID -> GUID
// through the iphlpapi conversion APIs.
func interfaceGUID(ifaceName string) (string, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return "", fmt.Errorf("get interface: %w", err)
	}

	iphlpapi := windows.NewLazySystemDLL("iphlpapi.dll")
	convertIndexToLuid := iphlpapi.NewProc("ConvertInterfaceIndexToLuid")
	convertLuidToGuid := iphlpapi.NewProc("ConvertInterfaceLuidToGuid")

	var luid uint64
	ret, _, err := convertIndexToLuid.Call(
		uintptr(uint32(iface.Index)),
		uintptr(unsafe.Pointer(&luid)),
	)
	if ret != 0 {
		return "", fmt.Errorf("ConvertInterfaceIndexToLuid failed with code %d: %w", ret, err)
	}

	var guid windows.GUID
	ret, _, err = convertLuidToGuid.Call(
		uintptr(unsafe.Pointer(&luid)),
		uintptr(unsafe.Pointer(&guid)),
	)
	if ret != 0 {
		return "", fmt.Errorf("ConvertInterfaceLuidToGuid failed with code %d: %w", ret, err)
	}

	guidStr := fmt.Sprintf("{%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X}",
		guid.Data1, guid.Data2, guid.Data3,
		guid.Data4[0], guid.Data4[1], guid.Data4[2], guid.Data4[3],
		guid.Data4[4], guid.Data4[5], guid.Data4[6], guid.Data4[7])

	return guidStr, nil
}
