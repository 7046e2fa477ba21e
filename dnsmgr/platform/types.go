// Package platform implements the per-OS backends that read and write the
// system resolver configuration for one network interface.
package platform

import "net/netip"

// Configurator reads and writes the resolver configuration of a single
// network interface through whatever mechanism the platform provides.
type Configurator interface {
	// Current returns the resolver addresses configured right now. It
	// re-queries the OS on every call; nothing is cached.
	Current() ([]netip.Addr, error)

	// Set replaces the interface's resolver list with the given servers.
	// The write is all-or-nothing; a failed Set must not leave a partial
	// configuration behind.
	Set(servers []netip.Addr) error

	// Clear removes any static resolver configuration, returning the
	// interface to automatic (DHCP/router-provided) DNS.
	Clear() error

	// Name identifies the backend, e.g. "systemd-resolved" or "file".
	Name() string
}
