//go:build linux

package dnsmgr

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// listInterfaces enumerates network interfaces through netlink, skipping
// loopback. Order follows the kernel's link index, so it is stable between
// calls.
func listInterfaces() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	var names []string
	for _, link := range links {
		attrs := link.Attrs()
		if attrs == nil {
			continue
		}
		if attrs.Flags&net.FlagLoopback != 0 {
			continue
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}
