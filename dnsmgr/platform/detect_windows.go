//go:build windows

package platform

// NewConfigurator returns the registry-based configurator for the named
// interface. Windows has a single supported mechanism.
func NewConfigurator(ifaceName string) (Configurator, error) {
	return NewWindowsConfigurator(ifaceName)
}
