//go:build (linux && !android) || freebsd

package platform

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/fosrl/newt/logger"
)

// ManagerType identifies which mechanism owns the resolver configuration.
type ManagerType int

const (
	// UnknownManager means detection could not decide.
	UnknownManager ManagerType = iota
	// SystemdResolvedManager means systemd-resolved owns DNS.
	SystemdResolvedManager
	// NetworkManagerManager means NetworkManager owns DNS.
	NetworkManagerManager
	// ResolvconfManager means the resolvconf utility owns resolv.conf.
	ResolvconfManager
	// FileManager means resolv.conf is a plain file nobody manages.
	FileManager
)

// String returns a human-readable name for the manager type.
func (m ManagerType) String() string {
	switch m {
	case SystemdResolvedManager:
		return "systemd-resolved"
	case NetworkManagerManager:
		return "NetworkManager"
	case ResolvconfManager:
		return "resolvconf"
	case FileManager:
		return "file"
	default:
		return "unknown"
	}
}

// detectManagerFromFile reads a resolv.conf and looks for the signature
// comments the common managers leave at the top of the file.
func detectManagerFromFile(path string) ManagerType {
	file, err := os.Open(path)
	if err != nil {
		return UnknownManager
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		text := scanner.Text()
		if len(text) == 0 {
			continue
		}

		// First non-comment line without a signature means a plain file.
		if text[0] != '#' {
			return FileManager
		}

		if strings.Contains(text, "NetworkManager") {
			return NetworkManagerManager
		}
		if strings.Contains(text, "systemd-resolved") {
			return SystemdResolvedManager
		}
		if strings.Contains(text, "resolvconf") {
			return ResolvconfManager
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return UnknownManager
	}
	return FileManager
}

// DetectManager combines the resolv.conf hint with runtime availability
// checks and returns the manager a configurator should be built for.
func DetectManager() ManagerType {
	hint := detectManagerFromFile(defaultResolvConfPath)

	switch hint {
	case SystemdResolvedManager:
		if IsSystemdResolvedAvailable() {
			return SystemdResolvedManager
		}
		logger.Warn("resolv.conf points at systemd-resolved but it is not running, falling back to file")
		return FileManager

	case NetworkManagerManager:
		if IsNetworkManagerAvailable() {
			if !IsNetworkManagerManagingDNS() && IsSystemdResolvedAvailable() {
				logger.Info("NetworkManager delegates DNS to systemd-resolved, using systemd-resolved")
				return SystemdResolvedManager
			}
			return NetworkManagerManager
		}
		logger.Warn("resolv.conf points at NetworkManager but it is not running, falling back to file")
		return FileManager

	case ResolvconfManager:
		if IsResolvconfAvailable() {
			return ResolvconfManager
		}
		return FileManager

	default:
		// No file hint. Probe for managers that rewrite resolv.conf without
		// leaving a comment.
		if IsSystemdResolvedAvailable() {
			return SystemdResolvedManager
		}
		if IsNetworkManagerAvailable() {
			return NetworkManagerManager
		}
		if IsResolvconfAvailable() {
			return ResolvconfManager
		}
		return FileManager
	}
}

// NewConfigurator builds the best available configurator for the interface,
// falling through the detected manager to the file backend on construction
// errors.
func NewConfigurator(ifaceName string) (Configurator, error) {
	switch DetectManager() {
	case SystemdResolvedManager:
		c, err := NewSystemdResolvedConfigurator(ifaceName)
		if err == nil {
			return c, nil
		}
		logger.Warn("systemd-resolved configurator unavailable: %v, falling back", err)

	case NetworkManagerManager:
		c, err := NewNetworkManagerConfigurator(ifaceName)
		if err == nil {
			return c, nil
		}
		logger.Warn("NetworkManager configurator unavailable: %v, falling back", err)

	case ResolvconfManager:
		c, err := NewResolvconfConfigurator(ifaceName)
		if err == nil {
			return c, nil
		}
		logger.Warn("resolvconf configurator unavailable: %v, falling back", err)
	}

	return NewFileConfigurator()
}
