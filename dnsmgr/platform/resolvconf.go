//go:build (linux && !android) || freebsd

package platform

import (
	"fmt"
	"net/netip"
	"os/exec"
	"strings"
)

// resolvconfRecordSuffix names the record this tool registers with
// resolvconf. Deleting the record undoes everything we added.
const resolvconfRecordSuffix = ".dnschanger"

// ResolvconfConfigurator manages DNS by registering a record with the
// resolvconf utility, which merges it into /etc/resolv.conf.
type ResolvconfConfigurator struct {
	ifaceName string
}

// NewResolvconfConfigurator returns a configurator that shells out to the
// resolvconf binary for the given interface.
func NewResolvconfConfigurator(ifaceName string) (*ResolvconfConfigurator, error) {
	if _, err := exec.LookPath("resolvconf"); err != nil {
		return nil, fmt.Errorf("resolvconf binary not found: %w", err)
	}
	return &ResolvconfConfigurator{ifaceName: ifaceName}, nil
}

// Name returns the backend name.
func (r *ResolvconfConfigurator) Name() string {
	return "resolvconf"
}

// Current reads the merged resolver configuration from /etc/resolv.conf.
func (r *ResolvconfConfigurator) Current() ([]netip.Addr, error) {
	return readResolvConfServers(defaultResolvConfPath)
}

// Set registers our record with resolvconf using an exclusive interface
// name so it takes precedence over DHCP-provided entries.
func (r *ResolvconfConfigurator) Set(servers []netip.Addr) error {
	if len(servers) == 0 {
		return fmt.Errorf("no DNS servers provided")
	}

	var record strings.Builder
	for _, server := range servers {
		fmt.Fprintf(&record, "nameserver %s\n", server)
	}

	cmd := exec.Command("resolvconf", "-a", r.recordName())
	cmd.Stdin = strings.NewReader(record.String())
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("resolvconf -a: %w, output: %s", err, output)
	}
	return nil
}

// Clear deletes our record, letting resolvconf regenerate resolv.conf from
// the remaining sources.
func (r *ResolvconfConfigurator) Clear() error {
	cmd := exec.Command("resolvconf", "-d", r.recordName())
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("resolvconf -d: %w, output: %s", err, output)
	}
	return nil
}

func (r *ResolvconfConfigurator) recordName() string {
	return r.ifaceName + resolvconfRecordSuffix
}

// IsResolvconfAvailable checks whether the resolvconf binary is installed.
func IsResolvconfAvailable() bool {
	_, err := exec.LookPath("resolvconf")
	return err == nil
}
