// Package providers holds the built-in DNS provider presets offered by the
// interactive menu and the CLI.
package providers

import (
	"fmt"
	"net/netip"
	"strings"
)

// Provider is a named DNS service with a fixed set of resolver addresses.
type Provider struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Addrs       []netip.Addr `json:"addrs"`
}

// String returns the menu label for the provider.
func (p Provider) String() string {
	return fmt.Sprintf("%s - %s", p.Name, p.Description)
}

// AddrStrings returns the provider addresses in textual form.
func (p Provider) AddrStrings() []string {
	out := make([]string, 0, len(p.Addrs))
	for _, a := range p.Addrs {
		out = append(out, a.String())
	}
	return out
}

var builtin = []Provider{
	{
		Name:        "Cloudflare",
		Description: "Fast and privacy-focused DNS",
		Addrs:       mustAddrs("1.1.1.1", "1.0.0.1"),
	},
	{
		Name:        "Google",
		Description: "Reliable Google DNS",
		Addrs:       mustAddrs("8.8.8.8", "8.8.4.4"),
	},
	{
		Name:        "Quad9",
		Description: "Security-focused DNS",
		Addrs:       mustAddrs("9.9.9.9", "149.112.112.112"),
	},
	{
		Name:        "OpenDNS",
		Description: "Family-safe DNS",
		Addrs:       mustAddrs("208.67.222.222", "208.67.220.220"),
	},
}

// Builtin returns the predefined providers in a stable, deterministic order.
// The returned slice is a copy; callers may append user-defined entries.
func Builtin() []Provider {
	out := make([]Provider, len(builtin))
	copy(out, builtin)
	return out
}

// Find looks up a provider by name, case-insensitively. The extra slice lets
// callers include user-defined providers from the config file in the search.
func Find(name string, extra []Provider) (Provider, bool) {
	for _, p := range extra {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	for _, p := range builtin {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Provider{}, false
}

// ParseAddrs parses a list of textual IP addresses into netip form. It fails
// on the first syntactically invalid entry so a bad list is rejected whole.
func ParseAddrs(values []string) ([]netip.Addr, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no addresses given")
	}

	addrs := make([]netip.Addr, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", v, err)
		}
		addrs = append(addrs, addr)
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses given")
	}
	return addrs, nil
}

func mustAddrs(values ...string) []netip.Addr {
	addrs := make([]netip.Addr, 0, len(values))
	for _, v := range values {
		addrs = append(addrs, netip.MustParseAddr(v))
	}
	return addrs
}
