//go:build darwin && !ios

package platform

// NewConfigurator returns the scutil-based configurator. macOS has a single
// DNS mechanism, so there is nothing to detect.
func NewConfigurator(ifaceName string) (Configurator, error) {
	return NewDarwinConfigurator()
}
