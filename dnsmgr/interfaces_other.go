//go:build !linux

package dnsmgr

import (
	"fmt"
	"net"
)

// listInterfaces enumerates network interfaces with the standard library,
// skipping loopback.
func listInterfaces() ([]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("get interfaces: %w", err)
	}

	var names []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		names = append(names, iface.Name)
	}
	return names, nil
}
