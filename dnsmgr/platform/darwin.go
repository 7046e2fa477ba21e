//go:build darwin && !ios

package platform

import (
	"bufio"
	"bytes"
	"fmt"
	"net/netip"
	"os"
	"os/exec"
	"strings"
)

const (
	scutilPath      = "/usr/sbin/scutil"
	dscacheutilPath = "/usr/bin/dscacheutil"

	overrideStateKey     = "State:/Network/Service/Dnschanger/DNS"
	globalIPv4State      = "State:/Network/Global/IPv4"
	primaryServiceFormat = "State:/Network/Service/%s/DNS"

	keyServerAddresses = "ServerAddresses"
	arraySymbol        = "* "
)

// DarwinConfigurator manages DNS on macOS through scutil dynamic store
// keys. The interface argument is ignored; macOS resolves per service, not
// per interface, and the override key applies system wide.
type DarwinConfigurator struct{}

// NewDarwinConfigurator returns the macOS configurator.
func NewDarwinConfigurator() (*DarwinConfigurator, error) {
	return &DarwinConfigurator{}, nil
}

// Name returns the backend name.
func (d *DarwinConfigurator) Name() string {
	return "darwin-scutil"
}

// Current returns the DNS servers of the primary network service.
func (d *DarwinConfigurator) Current() ([]netip.Addr, error) {
	primaryService, err := d.primaryServiceKey()
	if err != nil || primaryService == "" {
		return nil, fmt.Errorf("get primary service: %w", err)
	}

	output, err := d.runScutil(fmt.Sprintf("show %s\n", fmt.Sprintf(primaryServiceFormat, primaryService)))
	if err != nil {
		return nil, fmt.Errorf("run scutil: %w", err)
	}
	return d.parseServerAddresses(output), nil
}

// Set writes the servers into the dynamic store override key and flushes
// the system resolver cache.
func (d *DarwinConfigurator) Set(servers []netip.Addr) error {
	if len(servers) == 0 {
		return fmt.Errorf("no DNS servers provided")
	}

	var serverLines strings.Builder
	for _, server := range servers {
		serverLines.WriteString(arraySymbol)
		serverLines.WriteString(server.String())
		serverLines.WriteString("\n")
	}

	cmd := fmt.Sprintf(`d.init
d.add %s %s
set %s
`, keyServerAddresses, strings.TrimSpace(serverLines.String()), overrideStateKey)

	if _, err := d.runScutil(cmd); err != nil {
		return fmt.Errorf("set DNS servers: %w", err)
	}

	if err := d.flushCache(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to flush DNS cache: %v\n", err)
	}
	return nil
}

// Clear removes the override key so the service-provided DNS applies again.
func (d *DarwinConfigurator) Clear() error {
	if _, err := d.runScutil(fmt.Sprintf("remove %s\n", overrideStateKey)); err != nil {
		// The key is gone when nothing was applied; scutil still exits 0
		// then, so a real error here is worth surfacing.
		return fmt.Errorf("remove override key: %w", err)
	}

	if err := d.flushCache(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to flush DNS cache: %v\n", err)
	}
	return nil
}

func (d *DarwinConfigurator) primaryServiceKey() (string, error) {
	output, err := d.runScutil(fmt.Sprintf("show %s\n", globalIPv4State))
	if err != nil {
		return "", fmt.Errorf("run scutil: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "PrimaryService") {
			parts := strings.Split(line, ":")
			if len(parts) >= 2 {
				return strings.TrimSpace(parts[1]), nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan output: %w", err)
	}
	return "", fmt.Errorf("primary service not found")
}

func (d *DarwinConfigurator) parseServerAddresses(output []byte) []netip.Addr {
	var servers []netip.Addr
	inServerArray := false

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "ServerAddresses : <array> {") {
			inServerArray = true
			continue
		}
		if line == "}" {
			inServerArray = false
			continue
		}
		if inServerArray {
			// Line format: "0 : 8.8.8.8"
			parts := strings.Split(line, " : ")
			if len(parts) >= 2 {
				if addr, err := netip.ParseAddr(parts[1]); err == nil {
					servers = append(servers, addr)
				}
			}
		}
	}
	return servers
}

func (d *DarwinConfigurator) flushCache() error {
	if err := exec.Command(dscacheutilPath, "-flushcache").Run(); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}

	// mDNSResponder might not be running; not fatal.
	_ = exec.Command("killall", "-HUP", "mDNSResponder").Run()
	return nil
}

func (d *DarwinConfigurator) runScutil(commands string) ([]byte, error) {
	wrapped := fmt.Sprintf("open\n%squit\n", commands)

	cmd := exec.Command(scutilPath)
	cmd.Stdin = strings.NewReader(wrapped)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("scutil command failed: %w, output: %s", err, output)
	}
	return output, nil
}
